package bridge

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-ctap/biobridge/pkg/options"
	"github.com/google/uuid"
)

// Caller performs one native plugin call. args is marshaled as the call arguments,
// and the plugin result is unmarshaled into reply when reply is non-nil.
type Caller interface {
	Call(ctx context.Context, plugin, method string, args, reply any) error
}

// Client multiplexes plugin calls over a single native bridge connection.
type Client struct {
	conn    io.ReadWriteCloser
	logger  *slog.Logger
	encMode cbor.EncMode

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uuid.UUID]chan *Reply
	err     error
	done    chan struct{}
}

// NewClient wraps an established connection and starts reading replies.
// The connection is closed once the options context is done.
func NewClient(conn io.ReadWriteCloser, opts ...options.Option) *Client {
	oo := options.NewOptions(opts...)

	c := &Client{
		conn:    conn,
		logger:  oo.Logger,
		encMode: oo.EncMode,
		pending: make(map[uuid.UUID]chan *Reply),
		done:    make(chan struct{}),
	}
	stop := context.AfterFunc(oo.Context, func() {
		c.logger.Debug("bridge: context done, closing connection")
		_ = conn.Close()
	})
	go c.readLoop(stop)

	return c
}

func (c *Client) Call(ctx context.Context, plugin, method string, args, reply any) error {
	call := &Call{
		ID:     uuid.New(),
		Plugin: plugin,
		Method: method,
	}
	if args != nil {
		b, err := c.encMode.Marshal(args)
		if err != nil {
			return fmt.Errorf("cannot marshal %s.%s arguments: %w", plugin, method, err)
		}
		call.Args = b
	}

	msg, err := NewMessage(c.encMode, CommandCall, call)
	if err != nil {
		return err
	}

	ch := make(chan *Reply, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return c.err
	}
	c.pending[call.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, call.ID)
		c.mu.Unlock()
	}()

	c.logger.Debug("bridge call", "plugin", plugin, "method", method, "id", call.ID, "hex", hex.EncodeToString(msg.Data))

	c.writeMu.Lock()
	_, err = msg.WriteTo(c.conn)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("cannot write %s.%s call: %w", plugin, method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.closedErr()
	case resp := <-ch:
		c.logger.Debug("bridge reply", "plugin", plugin, "method", method, "id", call.ID, "hex", hex.EncodeToString(resp.Result))

		if resp.Error != nil {
			resp.Error.Plugin = plugin
			resp.Error.Method = method
			return resp.Error
		}
		if reply == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := cbor.Unmarshal(resp.Result, reply); err != nil {
			return fmt.Errorf("cannot unmarshal %s.%s result: %w", plugin, method, err)
		}
		return nil
	}
}

// Err returns nil while the connection is up, and the reason it went down after.
func (c *Client) Err() error {
	return c.closedErr()
}

// Close closes the connection and fails every outstanding call.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) readLoop(stop func() bool) {
	var loopErr error
	defer func() {
		stop()
		c.mu.Lock()
		c.err = fmt.Errorf("%w: %v", ErrClosed, loopErr)
		c.mu.Unlock()
		close(c.done)
	}()

	for {
		msg, err := ParseMessage(c.conn)
		if err != nil {
			loopErr = err
			return
		}
		if msg.Command != CommandReply {
			c.logger.Warn("bridge: unexpected frame from host", "command", msg.Command)
			continue
		}

		resp := new(Reply)
		if err := msg.Decode(resp); err != nil {
			c.logger.Warn("bridge: cannot decode reply", "error", err)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		c.mu.Unlock()
		if !ok {
			// Reply to a call whose context was canceled.
			continue
		}
		ch <- resp
	}
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
