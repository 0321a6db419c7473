// Package bridgetest runs a scripted native host over an in-memory pipe.
package bridgetest

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/go-ctap/biobridge/pkg/bridge"
)

// MethodFunc answers one plugin method.
type MethodFunc func(ctx context.Context, args bridge.Args) (any, error)

// Host is a fake native side. Methods are registered as "Plugin.method".
type Host struct {
	mu      sync.Mutex
	methods map[string]MethodFunc
	calls   map[string]int
}

func NewHost() *Host {
	return &Host{
		methods: make(map[string]MethodFunc),
		calls:   make(map[string]int),
	}
}

// On registers fn for plugin.method, replacing any earlier registration.
func (h *Host) On(plugin, method string, fn MethodFunc) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.methods[plugin+"."+method] = fn
	return h
}

// Reply registers a method that always returns v.
func (h *Host) Reply(plugin, method string, v any) *Host {
	return h.On(plugin, method, func(context.Context, bridge.Args) (any, error) {
		return v, nil
	})
}

// Reject registers a method that always rejects with code and message.
func (h *Host) Reject(plugin, method, code, message string) *Host {
	return h.On(plugin, method, func(context.Context, bridge.Args) (any, error) {
		return nil, &bridge.PluginError{Code: code, Message: message}
	})
}

// Calls returns how many times plugin.method was invoked.
func (h *Host) Calls(plugin, method string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[plugin+"."+method]
}

func (h *Host) Handle(ctx context.Context, plugin, method string, args bridge.Args) (any, error) {
	key := plugin + "." + method

	h.mu.Lock()
	h.calls[key]++
	fn, ok := h.methods[key]
	h.mu.Unlock()

	if !ok {
		return nil, &bridge.PluginError{Code: "UNIMPLEMENTED", Message: bridge.ErrUnknownMethod.Error() + ": " + key}
	}
	return fn(ctx, args)
}

// Start serves h over a pipe and returns the connected client.
// Both ends are torn down when the test finishes.
func (h *Host) Start(t testing.TB) *bridge.Client {
	t.Helper()

	hostConn, clientConn := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	served := make(chan error, 1)
	go func() {
		served <- bridge.Serve(ctx, hostConn, h)
	}()

	c := bridge.NewClient(clientConn)
	t.Cleanup(func() {
		_ = c.Close()
		cancel()
		<-served
	})

	return c
}

// Slot emulates a plugin's single credential slot behind
// setCredentials, getCredentials and deleteCredentials.
type Slot struct {
	mu       sync.Mutex
	username string
	password string
}

type slotArgs struct {
	Username string `cbor:"username,omitempty"`
	Password string `cbor:"password,omitempty"`
	Server   string `cbor:"server"`
}

// NewSlot returns a slot, pre-filled when username is not empty.
func NewSlot(username, password string) *Slot {
	return &Slot{username: username, password: password}
}

// Register serves the slot methods of plugin on h.
func (s *Slot) Register(h *Host, plugin string) *Host {
	return h.
		On(plugin, "setCredentials", func(ctx context.Context, args bridge.Args) (any, error) {
			var in slotArgs
			if err := args.Decode(&in); err != nil {
				return nil, err
			}
			s.mu.Lock()
			defer s.mu.Unlock()
			s.username, s.password = in.Username, in.Password
			return nil, nil
		}).
		On(plugin, "getCredentials", func(ctx context.Context, args bridge.Args) (any, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.username == "" {
				return nil, &bridge.PluginError{Code: "-25300", Message: "No credentials found"}
			}
			return slotArgs{Username: s.username, Password: s.password}, nil
		}).
		On(plugin, "deleteCredentials", func(ctx context.Context, args bridge.Args) (any, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.username, s.password = "", ""
			return nil, nil
		})
}

// Stored returns the slot content.
func (s *Slot) Stored() (username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username, s.password
}
