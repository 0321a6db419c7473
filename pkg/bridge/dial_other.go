//go:build !windows

package bridge

import (
	"context"
	"net"
)

// DefaultAddr is an abstract Unix socket the native host listens on.
const DefaultAddr = "@biobridge"

func dialPlatform(ctx context.Context, addr string) (net.Conn, error) {
	return dialNetwork(ctx, addr)
}
