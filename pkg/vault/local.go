package vault

import (
	"context"

	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/go-ctap/biobridge/pkg/localstore"
)

const (
	localUsernameKey = "biometric_username"
	localPasswordKey = "biometric_password"
)

// LocalStorage keeps the slot in plain local storage. Nothing gates reads,
// so the restoration protocol's verify-then-load ordering is the only protection.
type LocalStorage struct {
	kv localstore.KV
}

func NewLocalStorage(kv localstore.KV) *LocalStorage {
	return &LocalStorage{kv: kv}
}

func (s *LocalStorage) Save(ctx context.Context, cred biotypes.StoredCredential) error {
	if err := s.kv.Set(ctx, localUsernameKey, cred.IdentityKey); err != nil {
		return NewError(ErrStorageFailure, "", "local storage", err)
	}
	if err := s.kv.Set(ctx, localPasswordKey, cred.Payload); err != nil {
		return NewError(ErrStorageFailure, "", "local storage", err)
	}
	return nil
}

func (s *LocalStorage) Load(ctx context.Context) (biotypes.StoredCredential, error) {
	username, okUser, err := s.kv.Get(ctx, localUsernameKey)
	if err != nil {
		return biotypes.StoredCredential{}, NewError(ErrStorageFailure, "", "local storage", err)
	}
	password, okPass, err := s.kv.Get(ctx, localPasswordKey)
	if err != nil {
		return biotypes.StoredCredential{}, NewError(ErrStorageFailure, "", "local storage", err)
	}
	if !okUser || !okPass || username == "" || password == "" {
		return biotypes.StoredCredential{}, ErrNotFound
	}
	return biotypes.StoredCredential{IdentityKey: username, Payload: password}, nil
}

func (s *LocalStorage) Delete(ctx context.Context) error {
	if err := s.kv.Remove(ctx, localUsernameKey, localPasswordKey); err != nil {
		return NewError(ErrStorageFailure, "", "local storage", err)
	}
	return nil
}

func (s *LocalStorage) Metadata() Metadata {
	return Metadata{Protection: ProtectionPlain}
}
