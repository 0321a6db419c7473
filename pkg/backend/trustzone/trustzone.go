// Package trustzone drives the "NativeBiometricPrompt" plugin, which wraps
// androidx BiometricPrompt restricted to BIOMETRIC_STRONG (Class 3, TEE-backed).
// Credential storage goes through the vendor plugin, whose Android storage is
// Keystore-encrypted but does not prompt on read.
package trustzone

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-ctap/biobridge/pkg/backend"
	"github.com/go-ctap/biobridge/pkg/backend/nativebio"
	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/go-ctap/biobridge/pkg/bridge"
	"github.com/go-ctap/biobridge/pkg/options"
	"github.com/go-ctap/biobridge/pkg/vault"
)

const PluginName = "NativeBiometricPrompt"

type availabilityResult struct {
	IsAvailable            bool   `cbor:"isAvailable"`
	BiometryType           int    `cbor:"biometryType"`
	BiometryTypeName       string `cbor:"biometryTypeName"`
	ErrorCode              int    `cbor:"errorCode"`
	Message                string `cbor:"message"`
	SecurityLevel          string `cbor:"securityLevel"`
	SecurityClass          int    `cbor:"securityClass"`
	HardwareTEE            bool   `cbor:"hardwareTEE"`
	CanEnroll              bool   `cbor:"canEnroll"`
	TemporarilyUnavailable bool   `cbor:"temporarilyUnavailable"`
	SecurityUpdateRequired bool   `cbor:"securityUpdateRequired"`
	AndroidVersion         int    `cbor:"androidVersion"`
	DeviceModel            string `cbor:"deviceModel"`
	ExceptionType          string `cbor:"exceptionType"`
}

type verifyResult struct {
	Success            bool   `cbor:"success"`
	Message            string `cbor:"message"`
	AuthType           string `cbor:"authType"`
	AuthTypeCode       int    `cbor:"authTypeCode"`
	ErrorCode          int    `cbor:"errorCode"`
	ErrorType          string `cbor:"errorType"`
	ErrorMessage       string `cbor:"errorMessage"`
	IsUserCanceled     bool   `cbor:"isUserCanceled"`
	IsLockout          bool   `cbor:"isLockout"`
	IsLockoutPermanent bool   `cbor:"isLockoutPermanent"`
	ExceptionType      string `cbor:"exceptionType"`
}

type Backend struct {
	caller  bridge.Caller
	storage *nativebio.CredentialStorage
	logger  *slog.Logger
}

var _ backend.Backend = (*Backend)(nil)

func New(caller bridge.Caller, opts ...options.Option) *Backend {
	oo := options.NewOptions(opts...)

	return &Backend{
		caller:  caller,
		storage: nativebio.NewCredentialStorage(caller, oo.Service, false),
		logger:  oo.Logger,
	}
}

func (b *Backend) Name() string {
	return backend.NameTrustZone
}

func (b *Backend) Probe(ctx context.Context) (biotypes.Capability, error) {
	var res availabilityResult
	if err := b.caller.Call(ctx, PluginName, "isAvailable", nil, &res); err != nil {
		return biotypes.Capability{}, err
	}
	if res.ErrorCode == pluginException {
		return biotypes.Capability{}, fmt.Errorf("trustzone: isAvailable raised %s: %s", res.ExceptionType, res.Message)
	}

	b.logger.Debug("trustzone probe",
		"errorCode", res.ErrorCode,
		"biometryType", res.BiometryTypeName,
		"securityLevel", res.SecurityLevel,
		"androidVersion", res.AndroidVersion,
		"deviceModel", res.DeviceModel,
	)

	capability := biotypes.Capability{
		Available:              res.IsAvailable,
		Kind:                   kindFromCode(res.BiometryType),
		SecurityClass:          securityClassFromCode(res.SecurityClass),
		HardwareBacked:         res.HardwareTEE,
		EnrollmentPossible:     res.CanEnroll,
		TemporarilyUnavailable: res.TemporarilyUnavailable,
		NativeCode:             res.ErrorCode,
		Message:                res.Message,
	}

	switch res.ErrorCode {
	case availableSuccess:
		capability.Available = true
		if capability.SecurityClass == biotypes.SecurityClassUnknown {
			// canAuthenticate is called with BIOMETRIC_STRONG only.
			capability.SecurityClass = biotypes.SecurityClassStrong
		}
	case availableNoneEnrolled:
		capability.EnrollmentPossible = true
	case availableHardwareUnavailable:
		capability.TemporarilyUnavailable = true
	default:
		// availableNoHardware, availableSecurityUpdateRequired and codes this build does not know.
		capability.Available = false
	}

	return capability, nil
}

func (b *Backend) Verify(ctx context.Context, prompt biotypes.PromptConfig) (biotypes.VerificationOutcome, error) {
	var res verifyResult
	if err := b.caller.Call(ctx, PluginName, "verifyIdentity", prompt.WithDefaults(), &res); err != nil {
		return biotypes.VerificationOutcome{}, err
	}

	if res.Success {
		return biotypes.Verified(authKindFromString(res.AuthType)), nil
	}
	if res.ErrorCode == pluginException {
		b.logger.Warn("trustzone: verifyIdentity raised", "exceptionType", res.ExceptionType, "message", res.ErrorMessage)
		return biotypes.Failed(biotypes.Failure{
			Reason:     biotypes.ReasonUnknown,
			NativeCode: res.ErrorCode,
			Message:    res.ErrorMessage,
		}), nil
	}

	return biotypes.Failed(failure(res)), nil
}

func (b *Backend) Storage() vault.Storage {
	return b.storage
}
