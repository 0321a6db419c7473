// Package vault stores the single biometric credential slot.
//
// Native secure storage is tried first. When the environment has none
// (ErrPlatformUnavailable) a weaker fallback storage is used, and the returned
// Metadata says so, so the UI never shows a hardware trust indicator for it.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/go-ctap/biobridge/pkg/options"
)

type Protection uint8

const (
	ProtectionPlain Protection = iota
	ProtectionOSKeychain
	ProtectionHardware
)

func (p Protection) String() string {
	switch p {
	case ProtectionHardware:
		return "hardware"
	case ProtectionOSKeychain:
		return "os_keychain"
	default:
		return "plain"
	}
}

func (p Protection) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Metadata describes the storage that served a call.
type Metadata struct {
	Protection Protection `json:"protection"`
	// SelfGating storage releases the payload only after its own OS biometric confirmation.
	SelfGating bool `json:"selfGating"`
	// Fallback is set when native storage was unavailable and the fallback served the call.
	Fallback bool `json:"fallback"`
}

// HardwareBacked tells whether the "secured by device hardware" indicator may be shown.
func (m Metadata) HardwareBacked() bool {
	return m.Protection == ProtectionHardware
}

// Storage is a single-slot credential store. Save overwrites, Delete is idempotent
// and Load returns ErrNotFound for an empty slot.
type Storage interface {
	Save(ctx context.Context, cred biotypes.StoredCredential) error
	Load(ctx context.Context) (biotypes.StoredCredential, error)
	Delete(ctx context.Context) error
	Metadata() Metadata
}

type Vault struct {
	primary  Storage
	fallback Storage
	logger   *slog.Logger
}

// New returns a vault over primary. fallback may be nil, in which case
// ErrPlatformUnavailable is returned as is.
func New(primary, fallback Storage, opts ...options.Option) *Vault {
	oo := options.NewOptions(opts...)

	return &Vault{
		primary:  primary,
		fallback: fallback,
		logger:   oo.Logger,
	}
}

func (v *Vault) Save(ctx context.Context, identityKey, payload string) (Metadata, error) {
	if identityKey == "" || payload == "" {
		return Metadata{}, ErrInvalidCredential
	}
	cred := biotypes.StoredCredential{IdentityKey: identityKey, Payload: payload}

	err := v.primary.Save(ctx, cred)
	if err == nil {
		return v.primary.Metadata(), nil
	}
	if !errors.Is(err, ErrPlatformUnavailable) || v.fallback == nil {
		return Metadata{}, storageErr(err)
	}

	v.logger.Warn("vault: native secure storage unavailable, saving to fallback storage",
		"protection", v.fallback.Metadata().Protection)
	if err := v.fallback.Save(ctx, cred); err != nil {
		return Metadata{}, storageErr(err)
	}
	return v.fallbackMetadata(), nil
}

func (v *Vault) Load(ctx context.Context) (biotypes.StoredCredential, Metadata, error) {
	cred, err := v.primary.Load(ctx)
	if err == nil {
		return cred, v.primary.Metadata(), nil
	}
	if !errors.Is(err, ErrPlatformUnavailable) || v.fallback == nil {
		return biotypes.StoredCredential{}, v.primary.Metadata(), storageErr(err)
	}

	cred, err = v.fallback.Load(ctx)
	if err != nil {
		return biotypes.StoredCredential{}, v.fallbackMetadata(), storageErr(err)
	}
	return cred, v.fallbackMetadata(), nil
}

func (v *Vault) Delete(ctx context.Context) error {
	err := v.primary.Delete(ctx)
	if errors.Is(err, ErrPlatformUnavailable) && v.fallback != nil {
		err = v.fallback.Delete(ctx)
	}
	if err == nil || errors.Is(err, ErrNotFound) {
		return nil
	}
	return storageErr(err)
}

// Metadata describes the native storage, without touching it.
func (v *Vault) Metadata() Metadata {
	return v.primary.Metadata()
}

func (v *Vault) fallbackMetadata() Metadata {
	md := v.fallback.Metadata()
	md.Fallback = true
	return md
}

// storageErr keeps taxonomy errors and classifies anything else as a storage failure.
func storageErr(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPlatformUnavailable) ||
		errors.Is(err, ErrStorageFailure) || errors.Is(err, ErrInvalidCredential) ||
		errors.Is(err, ErrAccessCanceled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageFailure, err)
}
