package biotypes

import (
	"github.com/samber/mo"
)

// Capability is a snapshot of the device's biometric hardware.
// It is computed on every probe and never persisted, since the user may enroll or
// remove biometrics between two calls.
type Capability struct {
	Available              bool          `json:"isAvailable"`
	Kind                   Kind          `json:"kind"`
	SecurityClass          SecurityClass `json:"securityClass"`
	HardwareBacked         bool          `json:"hardwareBacked"`
	EnrollmentPossible     bool          `json:"enrollmentPossible"`
	TemporarilyUnavailable bool          `json:"temporarilyUnavailable,omitempty"`
	NativeCode             int           `json:"nativeCode"`
	Message                string        `json:"message,omitempty"`
}

// UnknownCapability is returned when the platform could not be queried at all.
func UnknownCapability(message string) Capability {
	return Capability{
		Available:     false,
		Kind:          KindUnknown,
		SecurityClass: SecurityClassUnknown,
		NativeCode:    NativeCodeBridgeError,
		Message:       message,
	}
}

// PromptConfig holds the texts shown in the OS verification prompt.
type PromptConfig struct {
	Title       string `json:"title,omitempty" cbor:"title,omitempty"`
	Subtitle    string `json:"subtitle,omitempty" cbor:"subtitle,omitempty"`
	Description string `json:"description,omitempty" cbor:"description,omitempty"`
	CancelLabel string `json:"cancelLabel,omitempty" cbor:"negativeButtonText,omitempty"`
	Reason      string `json:"reason,omitempty" cbor:"reason,omitempty"`
}

// WithDefaults fills empty fields with the login prompt texts.
func (p PromptConfig) WithDefaults() PromptConfig {
	if p.Title == "" {
		p.Title = "Biometric Login"
	}
	if p.Subtitle == "" {
		p.Subtitle = "Authenticate to continue"
	}
	if p.Description == "" {
		p.Description = "Use your biometric to log in"
	}
	if p.CancelLabel == "" {
		p.CancelLabel = "Cancel"
	}
	if p.Reason == "" {
		p.Reason = "Login to your account"
	}
	return p
}

// Failure details a verification that did not succeed.
type Failure struct {
	Reason           Reason `json:"reason"`
	PermanentLockout bool   `json:"permanentLockout,omitempty"`
	NativeCode       int    `json:"nativeCode"`
	Message          string `json:"message,omitempty"`
}

// VerificationOutcome is produced once per verification attempt.
// Failure is present only when Succeeded is false.
type VerificationOutcome struct {
	Succeeded bool               `json:"succeeded"`
	AuthKind  AuthKind           `json:"authKind"`
	Failure   mo.Option[Failure] `json:"failure"`
}

// Verified builds a successful outcome.
func Verified(kind AuthKind) VerificationOutcome {
	return VerificationOutcome{
		Succeeded: true,
		AuthKind:  kind,
		Failure:   mo.None[Failure](),
	}
}

// Failed builds a failed outcome.
func Failed(f Failure) VerificationOutcome {
	return VerificationOutcome{
		Succeeded: false,
		AuthKind:  AuthKindUnknown,
		Failure:   mo.Some(f),
	}
}

// StoredCredential is the single slot kept in secure storage.
// Payload is opaque to storage; it is usually a serialized token and user bundle.
type StoredCredential struct {
	IdentityKey string `json:"username" cbor:"username"`
	Payload     string `json:"password" cbor:"password"`
}
