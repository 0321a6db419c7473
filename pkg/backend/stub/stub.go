// Package stub is the backend for environments without a native biometric
// stack (web preview, desktop, tests): nothing is ever available.
package stub

import (
	"context"

	"github.com/go-ctap/biobridge/pkg/backend"
	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/go-ctap/biobridge/pkg/vault"
)

const notNative = -1

type Backend struct{}

var _ backend.Backend = Backend{}

func New() Backend {
	return Backend{}
}

func (Backend) Name() string {
	return backend.NameStub
}

func (Backend) Probe(context.Context) (biotypes.Capability, error) {
	return biotypes.Capability{
		Available:     false,
		Kind:          biotypes.KindNone,
		SecurityClass: biotypes.SecurityClassUnknown,
		NativeCode:    notNative,
		Message:       "Biometric authentication only available on native mobile app",
	}, nil
}

func (Backend) Verify(context.Context, biotypes.PromptConfig) (biotypes.VerificationOutcome, error) {
	return biotypes.Failed(biotypes.Failure{
		Reason:     biotypes.ReasonHardwareUnavailable,
		NativeCode: notNative,
		Message:    "Biometric authentication only available on native mobile app",
	}), nil
}

func (Backend) Storage() vault.Storage {
	return storage{}
}

// storage reports every call as unavailable so the vault falls back.
type storage struct{}

func (storage) Save(context.Context, biotypes.StoredCredential) error {
	return vault.ErrPlatformUnavailable
}

func (storage) Load(context.Context) (biotypes.StoredCredential, error) {
	return biotypes.StoredCredential{}, vault.ErrPlatformUnavailable
}

func (storage) Delete(context.Context) error {
	return vault.ErrPlatformUnavailable
}

func (storage) Metadata() vault.Metadata {
	return vault.Metadata{Protection: vault.ProtectionPlain}
}
