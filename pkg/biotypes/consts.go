package biotypes

// NativeCodeBridgeError marks a result whose platform call never completed.
// Its message is transport detail, not something to show the user.
const NativeCodeBridgeError = -99

// Kind is the primary biometric modality reported by the platform.
// Platforms that can only report a single primary sensor make this a best-effort value:
// a Fingerprint kind does not mean face unlock is absent.
type Kind uint8

const (
	KindNone Kind = iota
	KindFingerprint
	KindFace
	KindIris
	KindTouchLegacy
	KindUnknown
)

// SecurityClass is the platform-defined biometric strength tier.
type SecurityClass uint8

const (
	SecurityClassUnknown SecurityClass = iota
	// SecurityClassStrong implies hardware trust-zone backing.
	SecurityClassStrong
	SecurityClassWeak
	SecurityClassDeviceCredentialOnly
)

// AuthKind tells how the user satisfied a successful verification.
type AuthKind uint8

const (
	AuthKindUnknown AuthKind = iota
	AuthKindBiometric
	AuthKindDeviceCredentialFallback
)

// Reason classifies a failed verification.
type Reason uint8

const (
	ReasonUnknown Reason = iota
	ReasonUserCanceled
	ReasonLockout
	ReasonHardwareUnavailable
	ReasonNotEnrolled
	ReasonTimeout
	ReasonProcessingError
	ReasonVendorError
)

var kindNames = map[Kind]string{
	KindNone:        "none",
	KindFingerprint: "fingerprint",
	KindFace:        "face",
	KindIris:        "iris",
	KindTouchLegacy: "touchid",
	KindUnknown:     "unknown",
}

var securityClassNames = map[SecurityClass]string{
	SecurityClassUnknown:              "unknown",
	SecurityClassStrong:               "BIOMETRIC_STRONG",
	SecurityClassWeak:                 "BIOMETRIC_WEAK",
	SecurityClassDeviceCredentialOnly: "DEVICE_CREDENTIAL",
}

var authKindNames = map[AuthKind]string{
	AuthKindUnknown:                  "unknown",
	AuthKindBiometric:                "biometric",
	AuthKindDeviceCredentialFallback: "device_credential",
}

var reasonNames = map[Reason]string{
	ReasonUnknown:             "unknown",
	ReasonUserCanceled:        "user_canceled",
	ReasonLockout:             "lockout",
	ReasonHardwareUnavailable: "hardware_unavailable",
	ReasonNotEnrolled:         "not_enrolled",
	ReasonTimeout:             "timeout",
	ReasonProcessingError:     "processing_error",
	ReasonVendorError:         "vendor_error",
}
