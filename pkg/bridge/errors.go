package bridge

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCommand  = errors.New("bridge: invalid command")
	ErrMessageTooLarge = errors.New("bridge: message payload too large")
	ErrClosed          = errors.New("bridge: connection closed")
	ErrUnknownMethod   = errors.New("bridge: unknown plugin method")
)

// PluginError is a rejection raised by the native plugin itself,
// as opposed to a transport failure.
type PluginError struct {
	Plugin  string `cbor:"-"`
	Method  string `cbor:"-"`
	Code    string `cbor:"code"`
	Message string `cbor:"message"`
}

func (e *PluginError) Error() string {
	call := e.Plugin + "." + e.Method
	if call == "." {
		call = "plugin call"
	}
	if e.Message != "" {
		return fmt.Sprintf("bridge: %s rejected (code %s): %s", call, e.Code, e.Message)
	}
	return fmt.Sprintf("bridge: %s rejected (code %s)", call, e.Code)
}

// AsPluginError extracts a plugin rejection from err.
func AsPluginError(err error) (*PluginError, bool) {
	var perr *PluginError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
