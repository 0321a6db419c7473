package bridge

import (
	"context"
	"net"
	"strings"

	"github.com/go-ctap/biobridge/pkg/options"
)

// Dial connects to the native host at addr and returns a ready client.
// addr is a Unix socket path, "tcp://host:port", or on Windows a named pipe path.
func Dial(ctx context.Context, addr string, opts ...options.Option) (*Client, error) {
	conn, err := dialPlatform(ctx, addr)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, opts...), nil
}

func dialNetwork(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	if hostport, ok := strings.CutPrefix(addr, "tcp://"); ok {
		return d.DialContext(ctx, "tcp", hostport)
	}
	return d.DialContext(ctx, "unix", strings.TrimPrefix(addr, "unix://"))
}
