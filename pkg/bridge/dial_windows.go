package bridge

import (
	"context"
	"net"
	"strings"

	"github.com/Microsoft/go-winio"
)

const DefaultAddr = `\\.\pipe\biobridge`

func dialPlatform(ctx context.Context, addr string) (net.Conn, error) {
	if strings.HasPrefix(addr, `\\.\pipe\`) {
		return winio.DialPipeContext(ctx, addr)
	}
	return dialNetwork(ctx, addr)
}
