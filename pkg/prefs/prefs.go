// Package prefs owns the biometric preference flags kept in ordinary local storage.
// They drive UI decisions only ("show the biometric button") and never hold
// credential material.
package prefs

import (
	"context"
	"strconv"

	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/go-ctap/biobridge/pkg/localstore"
	"github.com/google/uuid"
	"github.com/samber/mo"
)

const (
	keyEnabled          = "biometricEnabled"
	keyType             = "biometricType"
	keyCompleted        = "faceVerificationCompleted"
	keySkipped          = "faceVerificationSkipped"
	keySecurityLevel    = "biometricSecurityLevel"
	keyHardwareTEE      = "biometricHardwareTEE"
	keyStored           = "biometricCredentialStored"
	keyUser             = "user"
	keyDeviceID         = "deviceId"
	flagTrue            = "true"
	defaultSecurityName = "BIOMETRIC_STRONG"
)

// Enrollment is what gets recorded when biometric login is turned on.
type Enrollment struct {
	Kind           biotypes.Kind
	SecurityClass  biotypes.SecurityClass
	HardwareBacked bool
}

// Preferences is a snapshot of the flags.
type Preferences struct {
	Enabled                   bool   `json:"biometricEnabled"`
	Type                      string `json:"biometricType,omitempty"`
	FaceVerificationCompleted bool   `json:"faceVerificationCompleted"`
	FaceVerificationSkipped   bool   `json:"faceVerificationSkipped"`
	SecurityLevel             string `json:"securityLevel,omitempty"`
	HardwareTEE               bool   `json:"hardwareTEE"`
	CredentialStored          bool   `json:"credentialStored"`
}

type Store struct {
	kv localstore.KV
}

func New(kv localstore.KV) *Store {
	return &Store{kv: kv}
}

// Enable records that biometric login was set up on this device.
func (s *Store) Enable(ctx context.Context, e Enrollment) error {
	level := e.SecurityClass.String()
	if e.SecurityClass == biotypes.SecurityClassUnknown {
		level = defaultSecurityName
	}

	for _, kv := range [][2]string{
		{keyEnabled, flagTrue},
		{keyType, TypeName(e.Kind)},
		{keyCompleted, flagTrue},
		{keySecurityLevel, level},
		{keyHardwareTEE, strconv.FormatBool(e.HardwareBacked)},
	} {
		if err := s.kv.Set(ctx, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return s.kv.Remove(ctx, keySkipped)
}

// Skip records that the user declined enrollment.
func (s *Store) Skip(ctx context.Context) error {
	return s.kv.Set(ctx, keySkipped, flagTrue)
}

// Disable clears the enrollment flags and the stored-credential marker.
// The cached user and device ID stay.
func (s *Store) Disable(ctx context.Context) error {
	return s.kv.Remove(ctx, keyEnabled, keyType, keyCompleted, keySecurityLevel, keyHardwareTEE, keyStored)
}

// MarkCredentialStored records that the vault slot holds a credential. Storage
// that prompts on every read is never read just to answer "is anything there".
func (s *Store) MarkCredentialStored(ctx context.Context) error {
	return s.kv.Set(ctx, keyStored, flagTrue)
}

func (s *Store) CredentialStored(ctx context.Context) (bool, error) {
	v, _, err := s.kv.Get(ctx, keyStored)
	return v == flagTrue, err
}

func (s *Store) Enabled(ctx context.Context) (bool, error) {
	v, _, err := s.kv.Get(ctx, keyEnabled)
	return v == flagTrue, err
}

// Type returns the recorded biometric type name ("face_id", "fingerprint", ...).
func (s *Store) Type(ctx context.Context) (mo.Option[string], error) {
	return s.get(ctx, keyType)
}

func (s *Store) Load(ctx context.Context) (Preferences, error) {
	var (
		p   Preferences
		err error
	)
	get := func(key string) string {
		if err != nil {
			return ""
		}
		var v string
		v, _, err = s.kv.Get(ctx, key)
		return v
	}

	p.Enabled = get(keyEnabled) == flagTrue
	p.Type = get(keyType)
	p.FaceVerificationCompleted = get(keyCompleted) == flagTrue
	p.FaceVerificationSkipped = get(keySkipped) == flagTrue
	p.SecurityLevel = get(keySecurityLevel)
	p.HardwareTEE = get(keyHardwareTEE) == flagTrue
	p.CredentialStored = get(keyStored) == flagTrue

	return p, err
}

// CachedUser returns the JSON user record the app cached at its last sign in.
func (s *Store) CachedUser(ctx context.Context) (mo.Option[string], error) {
	return s.get(ctx, keyUser)
}

func (s *Store) CacheUser(ctx context.Context, userJSON string) error {
	return s.kv.Set(ctx, keyUser, userJSON)
}

// DeviceID returns a stable identifier for this installation, creating it on first use.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	id, ok, err := s.kv.Get(ctx, keyDeviceID)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := s.kv.Set(ctx, keyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) get(ctx context.Context, key string) (mo.Option[string], error) {
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok || v == "" {
		return mo.None[string](), err
	}
	return mo.Some(v), nil
}

// TypeName is the biometric type string recorded locally and sent to the backend.
func TypeName(kind biotypes.Kind) string {
	switch kind {
	case biotypes.KindFace:
		return "face_id"
	case biotypes.KindFingerprint:
		return "fingerprint"
	case biotypes.KindTouchLegacy:
		return "touchid"
	case biotypes.KindIris:
		return "iris"
	default:
		return "biometric"
	}
}
