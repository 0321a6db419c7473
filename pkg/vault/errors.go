package vault

import (
	"errors"
)

var (
	// ErrNotFound is returned by Load when the slot is empty.
	ErrNotFound = errors.New("vault: no credentials stored")
	// ErrPlatformUnavailable means there is no native secure storage in this environment.
	// It selects the fallback storage; it is not a hard failure.
	ErrPlatformUnavailable = errors.New("vault: platform secure storage unavailable")
	// ErrStorageFailure is a native storage call rejected for another reason.
	ErrStorageFailure = errors.New("vault: storage failure")
	// ErrAccessCanceled means the user dismissed the prompt raised by self-gating storage.
	// It is a user choice, never a storage failure.
	ErrAccessCanceled = errors.New("vault: access prompt canceled")
	// ErrInvalidCredential rejects an empty identity key or payload on save.
	ErrInvalidCredential = errors.New("vault: identity key and payload are required")
)

// Error attaches native detail to one of the sentinel errors.
type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func NewError(kind error, code, msg string, err error) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: msg,
		Err:     err,
	}
}

func (e *Error) Error() string {
	s := e.Kind.Error()
	if e.Code != "" {
		s += " [" + e.Code + "]"
	}
	if e.Message != "" {
		s += " (" + e.Message + ")"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
