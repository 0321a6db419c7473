// Package nativebio talks to the vendor biometric plugin ("NativeBiometric").
// It is the backend for iOS, and its credential storage also serves Android.
package nativebio

import (
	"context"
	"log/slog"

	"github.com/go-ctap/biobridge/pkg/backend"
	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/go-ctap/biobridge/pkg/bridge"
	"github.com/go-ctap/biobridge/pkg/options"
	"github.com/go-ctap/biobridge/pkg/vault"
)

const PluginName = "NativeBiometric"

type availabilityArgs struct {
	UseFallback bool `cbor:"useFallback"`
}

type availabilityResult struct {
	IsAvailable  bool         `cbor:"isAvailable"`
	BiometryType BiometryType `cbor:"biometryType"`
	ErrorCode    int          `cbor:"errorCode"`
}

type Backend struct {
	caller  bridge.Caller
	storage *CredentialStorage
	logger  *slog.Logger
}

var _ backend.Backend = (*Backend)(nil)

// New returns the vendor backend. Keychain items on iOS are created with a
// biometry access control, so reading them raises the OS prompt on its own.
func New(caller bridge.Caller, opts ...options.Option) *Backend {
	oo := options.NewOptions(opts...)

	return &Backend{
		caller:  caller,
		storage: NewCredentialStorage(caller, oo.Service, true),
		logger:  oo.Logger,
	}
}

func (b *Backend) Name() string {
	return backend.NameNativeBio
}

// Probe reports the primary biometry only; the plugin never enumerates secondary sensors.
func (b *Backend) Probe(ctx context.Context) (biotypes.Capability, error) {
	var res availabilityResult
	if err := b.caller.Call(ctx, PluginName, "isAvailable", availabilityArgs{}, &res); err != nil {
		return biotypes.Capability{}, err
	}

	kind := res.BiometryType.Kind()
	capability := biotypes.Capability{
		Available:      res.IsAvailable,
		Kind:           kind,
		SecurityClass:  biotypes.SecurityClassUnknown,
		HardwareBacked: kind != biotypes.KindNone,
		NativeCode:     res.ErrorCode,
	}
	if res.IsAvailable {
		// Face ID and Touch ID matching happens in the Secure Enclave.
		capability.SecurityClass = biotypes.SecurityClassStrong
		capability.HardwareBacked = true
		return capability, nil
	}

	switch AuthError(res.ErrorCode) {
	case ErrBiometricsNotEnrolled, ErrPasscodeNotSet:
		capability.EnrollmentPossible = true
		capability.Message = "No biometric enrolled. Please set up Face ID or Touch ID in Settings."
	case ErrUserTemporaryLockout, ErrUserLockout:
		capability.TemporarilyUnavailable = true
		capability.Message = "Biometry is locked. Unlock your device with your passcode."
	default:
		capability.Message = "Biometric authentication is not available on this device."
	}

	return capability, nil
}

// Verify resolves on success and rejects with an AuthError code otherwise.
func (b *Backend) Verify(ctx context.Context, prompt biotypes.PromptConfig) (biotypes.VerificationOutcome, error) {
	err := b.caller.Call(ctx, PluginName, "verifyIdentity", prompt.WithDefaults(), nil)
	if err == nil {
		return biotypes.Verified(biotypes.AuthKindBiometric), nil
	}

	perr, ok := bridge.AsPluginError(err)
	if !ok {
		return biotypes.VerificationOutcome{}, err
	}

	return biotypes.Failed(failure(parseCode(perr.Code), perr.Message)), nil
}

func (b *Backend) Storage() vault.Storage {
	return b.storage
}
