package nativebio

import (
	"strconv"
	"strings"

	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/samber/lo"
)

// BiometryType as reported by the vendor plugin.
type BiometryType int

const (
	BiometryNone BiometryType = iota
	BiometryTouchID
	BiometryFaceID
	BiometryFingerprint
	BiometryFaceAuthentication
	BiometryIrisAuthentication
	BiometryMultiple
)

// AuthError codes used by the vendor plugin to reject calls.
type AuthError int

const (
	ErrUnknown               AuthError = 0
	ErrBiometricsUnavailable AuthError = 1
	ErrUserLockout           AuthError = 2
	ErrBiometricsNotEnrolled AuthError = 3
	ErrUserTemporaryLockout  AuthError = 4
	ErrAuthenticationFailed  AuthError = 10
	ErrAppCancel             AuthError = 11
	ErrInvalidContext        AuthError = 12
	ErrNotInteractive        AuthError = 13
	ErrPasscodeNotSet        AuthError = 14
	ErrSystemCancel          AuthError = 15
	ErrUserCancel            AuthError = 16
	ErrUserFallback          AuthError = 17
)

// errSecItemNotFound is the Keychain status for an empty slot.
const errSecItemNotFound = "-25300"

var biometryKinds = map[BiometryType]biotypes.Kind{
	BiometryNone:               biotypes.KindNone,
	BiometryTouchID:            biotypes.KindTouchLegacy,
	BiometryFaceID:             biotypes.KindFace,
	BiometryFingerprint:        biotypes.KindFingerprint,
	BiometryFaceAuthentication: biotypes.KindFace,
	BiometryIrisAuthentication: biotypes.KindIris,
	BiometryMultiple:           biotypes.KindUnknown,
}

func (t BiometryType) Kind() biotypes.Kind {
	if kind, ok := biometryKinds[t]; ok {
		return kind
	}
	return biotypes.KindUnknown
}

// failure maps a verifyIdentity rejection code to a verification failure.
func failure(code AuthError, message string) biotypes.Failure {
	f := biotypes.Failure{
		NativeCode: int(code),
		Message:    message,
	}

	switch code {
	case ErrUserCancel, ErrSystemCancel, ErrAppCancel, ErrUserFallback:
		f.Reason = biotypes.ReasonUserCanceled
	case ErrUserLockout:
		f.Reason = biotypes.ReasonLockout
		f.PermanentLockout = true
	case ErrUserTemporaryLockout:
		f.Reason = biotypes.ReasonLockout
	case ErrBiometricsUnavailable:
		f.Reason = biotypes.ReasonHardwareUnavailable
	case ErrBiometricsNotEnrolled, ErrPasscodeNotSet:
		f.Reason = biotypes.ReasonNotEnrolled
	case ErrAuthenticationFailed:
		f.Reason = biotypes.ReasonProcessingError
	case ErrInvalidContext, ErrNotInteractive:
		f.Reason = biotypes.ReasonVendorError
	default:
		f.Reason = biotypes.ReasonUnknown
	}

	return f
}

func parseCode(code string) AuthError {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return ErrUnknown
	}
	return AuthError(n)
}

var notFoundMessages = []string{"no credentials", "not found", "item could not be found"}

func isNotFound(code, message string) bool {
	if code == errSecItemNotFound {
		return true
	}
	msg := strings.ToLower(message)
	return lo.ContainsBy(notFoundMessages, func(s string) bool {
		return strings.Contains(msg, s)
	})
}
