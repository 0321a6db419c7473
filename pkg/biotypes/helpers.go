package biotypes

import (
	"fmt"

	"github.com/samber/lo"
)

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	kind, ok := ParseKind(string(text))
	if !ok {
		return fmt.Errorf("biotypes: unknown kind %q", text)
	}
	*k = kind
	return nil
}

// ParseKind resolves a kind from its name, also accepting the names vendor plugins use.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "faceid", "face_id":
		return KindFace, true
	case "touch_id":
		return KindTouchLegacy, true
	}
	return lo.FindKey(kindNames, name)
}

func (c SecurityClass) String() string {
	if name, ok := securityClassNames[c]; ok {
		return name
	}
	return fmt.Sprintf("SecurityClass(%d)", uint8(c))
}

func (c SecurityClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *SecurityClass) UnmarshalText(text []byte) error {
	class, ok := lo.FindKey(securityClassNames, string(text))
	if !ok {
		return fmt.Errorf("biotypes: unknown security class %q", text)
	}
	*c = class
	return nil
}

func (a AuthKind) String() string {
	if name, ok := authKindNames[a]; ok {
		return name
	}
	return fmt.Sprintf("AuthKind(%d)", uint8(a))
}

func (a AuthKind) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AuthKind) UnmarshalText(text []byte) error {
	kind, ok := lo.FindKey(authKindNames, string(text))
	if !ok {
		return fmt.Errorf("biotypes: unknown auth kind %q", text)
	}
	*a = kind
	return nil
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Reason(%d)", uint8(r))
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Reason) UnmarshalText(text []byte) error {
	reason, ok := lo.FindKey(reasonNames, string(text))
	if !ok {
		return fmt.Errorf("biotypes: unknown reason %q", text)
	}
	*r = reason
	return nil
}

// IsLockoutPermanent reports a lockout that only a device unlock (PIN/pattern) can clear.
func (f Failure) IsLockoutPermanent() bool {
	return f.Reason == ReasonLockout && f.PermanentLockout
}

// IsError tells whether the failure should be reported as an error.
// A cancellation is a normal user choice.
func (f Failure) IsError() bool {
	return f.Reason != ReasonUserCanceled
}

// Retryable tells whether the caller may offer another attempt.
// A temporary lockout is retryable only after a cool-down, which the caller enforces.
func (f Failure) Retryable() bool {
	switch f.Reason {
	case ReasonLockout:
		return !f.PermanentLockout
	case ReasonUserCanceled, ReasonTimeout, ReasonProcessingError:
		return true
	default:
		return false
	}
}

// UserMessage returns an actionable message for the failure.
func (f Failure) UserMessage() string {
	switch f.Reason {
	case ReasonUserCanceled:
		return "Verification was cancelled. You can try again or skip for now."
	case ReasonLockout:
		if f.PermanentLockout {
			return "Too many failed attempts. Please unlock your device with PIN/Pattern/Password first, then try again."
		}
		return "Too many failed attempts. Please wait 30 seconds and try again."
	case ReasonNotEnrolled:
		return "No biometric enrolled. Please set up Face ID or Fingerprint in Settings > Security > Biometrics."
	case ReasonHardwareUnavailable:
		return "Biometric hardware is unavailable on this device. Please sign in manually."
	case ReasonTimeout:
		return "Authentication timed out. Please try again."
	case ReasonProcessingError:
		return "Unable to process biometric. Please try again."
	case ReasonVendorError:
		return "A device-specific error occurred. Please try again."
	}
	if f.Message != "" && f.NativeCode != NativeCodeBridgeError {
		return f.Message
	}
	return "Biometric authentication failed. Please try again."
}

// FailureOrEmpty returns the failure detail, or a zero Failure for a success.
func (o VerificationOutcome) FailureOrEmpty() Failure {
	return o.Failure.OrEmpty()
}
