package trustzone

import (
	"github.com/go-ctap/biobridge/pkg/biotypes"
)

// Availability codes reported by the plugin's isAvailable (BiometricManager.canAuthenticate).
const (
	availableSuccess                = 0
	availableNoHardware             = 1
	availableHardwareUnavailable    = 2
	availableNoneEnrolled           = 3
	availableSecurityUpdateRequired = 4
	pluginException                 = -99
)

// BiometricPrompt error codes.
const (
	ErrorHWUnavailable          = 1
	ErrorUnableToProcess        = 2
	ErrorTimeout                = 3
	ErrorNoSpace                = 4
	ErrorCanceled               = 5
	ErrorLockout                = 7
	ErrorVendor                 = 8
	ErrorLockoutPermanent       = 9
	ErrorUserCanceled           = 10
	ErrorNoBiometrics           = 11
	ErrorHWNotPresent           = 12
	ErrorNegativeButton         = 13
	ErrorNoDeviceCredential     = 14
	ErrorSecurityUpdateRequired = 15
)

// Biometry type codes emitted by the plugin. The plugin checks face, then
// fingerprint, then iris, so the reported kind is only the first match.
const (
	biometryNone        = 0
	biometryFingerprint = 3
	biometryFace        = 4
	biometryIris        = 5
)

func kindFromCode(code int) biotypes.Kind {
	switch code {
	case biometryNone:
		return biotypes.KindNone
	case biometryFingerprint:
		return biotypes.KindFingerprint
	case biometryFace:
		return biotypes.KindFace
	case biometryIris:
		return biotypes.KindIris
	default:
		return biotypes.KindUnknown
	}
}

func securityClassFromCode(class int) biotypes.SecurityClass {
	switch class {
	case 3:
		return biotypes.SecurityClassStrong
	case 2:
		return biotypes.SecurityClassWeak
	case 1:
		return biotypes.SecurityClassDeviceCredentialOnly
	default:
		return biotypes.SecurityClassUnknown
	}
}

func authKindFromString(s string) biotypes.AuthKind {
	switch s {
	case "biometric":
		return biotypes.AuthKindBiometric
	case "device_credential":
		return biotypes.AuthKindDeviceCredentialFallback
	default:
		return biotypes.AuthKindUnknown
	}
}

// failure maps a BiometricPrompt error to a verification failure.
// The plugin's own isUserCanceled/isLockout flags are trusted over the code table
// since they are computed next to the callback.
func failure(res verifyResult) biotypes.Failure {
	f := biotypes.Failure{
		NativeCode: res.ErrorCode,
		Message:    res.ErrorMessage,
	}

	switch {
	case res.IsUserCanceled:
		f.Reason = biotypes.ReasonUserCanceled
		return f
	case res.IsLockout:
		f.Reason = biotypes.ReasonLockout
		f.PermanentLockout = res.IsLockoutPermanent
		return f
	}

	switch res.ErrorCode {
	case ErrorCanceled, ErrorUserCanceled, ErrorNegativeButton:
		f.Reason = biotypes.ReasonUserCanceled
	case ErrorLockout:
		f.Reason = biotypes.ReasonLockout
	case ErrorLockoutPermanent:
		f.Reason = biotypes.ReasonLockout
		f.PermanentLockout = true
	case ErrorHWUnavailable, ErrorHWNotPresent, ErrorSecurityUpdateRequired:
		f.Reason = biotypes.ReasonHardwareUnavailable
	case ErrorNoBiometrics, ErrorNoDeviceCredential:
		f.Reason = biotypes.ReasonNotEnrolled
	case ErrorTimeout:
		f.Reason = biotypes.ReasonTimeout
	case ErrorUnableToProcess, ErrorNoSpace:
		f.Reason = biotypes.ReasonProcessingError
	case ErrorVendor:
		f.Reason = biotypes.ReasonVendorError
	default:
		f.Reason = biotypes.ReasonUnknown
	}

	return f
}
