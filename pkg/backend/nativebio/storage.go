package nativebio

import (
	"context"

	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/go-ctap/biobridge/pkg/bridge"
	"github.com/go-ctap/biobridge/pkg/vault"
)

type credentialArgs struct {
	Username string `cbor:"username,omitempty"`
	Password string `cbor:"password,omitempty"`
	Server   string `cbor:"server"`
}

// CredentialStorage keeps the slot through the vendor plugin's
// set/get/deleteCredentials, scoped to one server identifier.
type CredentialStorage struct {
	caller     bridge.Caller
	server     string
	selfGating bool
}

var _ vault.Storage = (*CredentialStorage)(nil)

func NewCredentialStorage(caller bridge.Caller, server string, selfGating bool) *CredentialStorage {
	return &CredentialStorage{
		caller:     caller,
		server:     server,
		selfGating: selfGating,
	}
}

func (s *CredentialStorage) Save(ctx context.Context, cred biotypes.StoredCredential) error {
	args := credentialArgs{
		Username: cred.IdentityKey,
		Password: cred.Payload,
		Server:   s.server,
	}
	return storageErr(s.caller.Call(ctx, PluginName, "setCredentials", args, nil))
}

func (s *CredentialStorage) Load(ctx context.Context) (biotypes.StoredCredential, error) {
	var res credentialArgs
	if err := s.caller.Call(ctx, PluginName, "getCredentials", credentialArgs{Server: s.server}, &res); err != nil {
		return biotypes.StoredCredential{}, storageErr(err)
	}
	if res.Username == "" || res.Password == "" {
		return biotypes.StoredCredential{}, vault.ErrNotFound
	}
	return biotypes.StoredCredential{IdentityKey: res.Username, Payload: res.Password}, nil
}

func (s *CredentialStorage) Delete(ctx context.Context) error {
	return storageErr(s.caller.Call(ctx, PluginName, "deleteCredentials", credentialArgs{Server: s.server}, nil))
}

func (s *CredentialStorage) Metadata() vault.Metadata {
	return vault.Metadata{
		Protection: vault.ProtectionHardware,
		SelfGating: s.selfGating,
	}
}

func storageErr(err error) error {
	if err == nil {
		return nil
	}

	perr, ok := bridge.AsPluginError(err)
	if !ok {
		return vault.NewError(vault.ErrStorageFailure, "", "bridge", err)
	}
	if isNotFound(perr.Code, perr.Message) {
		return vault.ErrNotFound
	}
	if failure(parseCode(perr.Code), perr.Message).Reason == biotypes.ReasonUserCanceled {
		return vault.NewError(vault.ErrAccessCanceled, perr.Code, perr.Message, nil)
	}
	if perr.Code == "UNIMPLEMENTED" {
		return vault.NewError(vault.ErrPlatformUnavailable, perr.Code, perr.Message, nil)
	}
	return vault.NewError(vault.ErrStorageFailure, perr.Code, perr.Message, nil)
}
