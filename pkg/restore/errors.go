package restore

import (
	"errors"
	"fmt"

	"github.com/go-ctap/biobridge/pkg/biotypes"
)

var (
	// ErrUnavailable means the device cannot do biometric authentication right now.
	// It is not fatal; the user signs in manually.
	ErrUnavailable = errors.New("restore: biometric authentication not available")
	// ErrPayloadUnusable means the stored payload could not be turned into a session,
	// even through the raw-token fallback.
	ErrPayloadUnusable = errors.New("restore: failed to retrieve account data")
)

// VerificationError carries a failed verification, or a retry the gate refused.
type VerificationError struct {
	Failure biotypes.Failure
	// Err is the retry gate's refusal, if the prompt was never shown.
	Err error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("restore: verification refused: %v", e.Err)
	}
	if e.Failure.Message != "" {
		return fmt.Sprintf("restore: verification failed (%s): %s", e.Failure.Reason, e.Failure.Message)
	}
	return fmt.Sprintf("restore: verification failed (%s)", e.Failure.Reason)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// AsVerificationError extracts a verification error from err.
func AsVerificationError(err error) (*VerificationError, bool) {
	var verr *VerificationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
