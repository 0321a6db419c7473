package bridge

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-ctap/biobridge/pkg/options"
)

// Args are the raw arguments of an incoming call.
type Args cbor.RawMessage

// Decode unmarshals the arguments into v. Empty arguments leave v untouched.
func (a Args) Decode(v any) error {
	if len(a) == 0 {
		return nil
	}
	return cbor.Unmarshal(a, v)
}

// Handler serves plugin calls on the native side of the bridge.
// Returning a *PluginError rejects the call with that code; any other error
// is reported as an "exception" rejection.
type Handler interface {
	Handle(ctx context.Context, plugin, method string, args Args) (any, error)
}

type HandlerFunc func(ctx context.Context, plugin, method string, args Args) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, plugin, method string, args Args) (any, error) {
	return f(ctx, plugin, method, args)
}

// Serve reads calls from conn until it is closed or ctx is done.
// Each call is handled on its own goroutine.
func Serve(ctx context.Context, conn io.ReadWriteCloser, h Handler, opts ...options.Option) error {
	oo := options.NewOptions(opts...)
	logger := oo.Logger

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	var (
		wg      sync.WaitGroup
		writeMu sync.Mutex
	)
	defer wg.Wait()

	for {
		msg, err := ParseMessage(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if msg.Command != CommandCall {
			logger.Warn("bridge: unexpected frame from client", "command", msg.Command)
			continue
		}

		call := new(Call)
		if err := msg.Decode(call); err != nil {
			logger.Warn("bridge: cannot decode call", "error", err)
			continue
		}

		wg.Add(1)
		go func(call *Call) {
			defer wg.Done()

			resp := &Reply{ID: call.ID}
			result, err := h.Handle(ctx, call.Plugin, call.Method, Args(call.Args))
			if err != nil {
				perr, ok := AsPluginError(err)
				if !ok {
					perr = &PluginError{Code: "exception", Message: err.Error()}
				}
				resp.Error = perr
			} else if result != nil {
				b, err := oo.EncMode.Marshal(result)
				if err != nil {
					resp.Error = &PluginError{Code: "exception", Message: err.Error()}
				} else {
					resp.Result = b
				}
			}

			out, err := NewMessage(oo.EncMode, CommandReply, resp)
			if err != nil {
				logger.Error("bridge: cannot encode reply", "error", err)
				return
			}

			writeMu.Lock()
			defer writeMu.Unlock()
			if _, err := out.WriteTo(conn); err != nil {
				logger.Warn("bridge: cannot write reply", "error", err)
			}
		}(call)
	}
}
