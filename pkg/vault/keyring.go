package vault

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/zalando/go-keyring"
)

const keyringAccount = "biometric_credential"

// KeyringStorage keeps the slot in the OS credential manager
// (Keychain, Secret Service, Windows Credential Manager).
// It is protected by the OS login, not by a biometric prompt.
type KeyringStorage struct {
	service string
}

func NewKeyringStorage(service string) *KeyringStorage {
	return &KeyringStorage{service: service}
}

func (s *KeyringStorage) Save(_ context.Context, cred biotypes.StoredCredential) error {
	b, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	return keyringErr(keyring.Set(s.service, keyringAccount, string(b)))
}

func (s *KeyringStorage) Load(_ context.Context) (biotypes.StoredCredential, error) {
	raw, err := keyring.Get(s.service, keyringAccount)
	if err != nil {
		return biotypes.StoredCredential{}, keyringErr(err)
	}

	var cred biotypes.StoredCredential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return biotypes.StoredCredential{}, NewError(ErrStorageFailure, "", "corrupt keyring entry", err)
	}
	if cred.IdentityKey == "" || cred.Payload == "" {
		return biotypes.StoredCredential{}, ErrNotFound
	}
	return cred, nil
}

func (s *KeyringStorage) Delete(_ context.Context) error {
	err := keyringErr(keyring.Delete(s.service, keyringAccount))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (s *KeyringStorage) Metadata() Metadata {
	return Metadata{Protection: ProtectionOSKeychain}
}

func keyringErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keyring.ErrNotFound):
		return ErrNotFound
	default:
		return NewError(ErrStorageFailure, "", "keyring", err)
	}
}
