package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/go-ctap/biobridge/pkg/localstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

type memoryStorage struct {
	cred    *biotypes.StoredCredential
	saveErr error
}

func (m *memoryStorage) Save(_ context.Context, cred biotypes.StoredCredential) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.cred = &cred
	return nil
}

func (m *memoryStorage) Load(_ context.Context) (biotypes.StoredCredential, error) {
	if m.cred == nil {
		return biotypes.StoredCredential{}, ErrNotFound
	}
	return *m.cred, nil
}

func (m *memoryStorage) Delete(_ context.Context) error {
	m.cred = nil
	return nil
}

func (m *memoryStorage) Metadata() Metadata {
	return Metadata{Protection: ProtectionHardware, SelfGating: true}
}

type unavailableStorage struct{}

func (unavailableStorage) Save(context.Context, biotypes.StoredCredential) error {
	return ErrPlatformUnavailable
}

func (unavailableStorage) Load(context.Context) (biotypes.StoredCredential, error) {
	return biotypes.StoredCredential{}, ErrPlatformUnavailable
}

func (unavailableStorage) Delete(context.Context) error { return ErrPlatformUnavailable }

func (unavailableStorage) Metadata() Metadata { return Metadata{} }

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()

	kv, err := localstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	return NewLocalStorage(kv)
}

func TestSaveIsLastWriteWins(t *testing.T) {
	ctx := context.Background()
	v := New(&memoryStorage{}, nil)

	_, err := v.Save(ctx, "user@example.com", "payloadA")
	require.NoError(t, err)
	_, err = v.Save(ctx, "user@example.com", "payloadB")
	require.NoError(t, err)

	cred, md, err := v.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "payloadB", cred.Payload)
	assert.Equal(t, "user@example.com", cred.IdentityKey)
	assert.True(t, md.HardwareBacked())
	assert.True(t, md.SelfGating)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()

	for name, v := range map[string]*Vault{
		"native":   New(&memoryStorage{}, nil),
		"fallback": New(unavailableStorage{}, newLocal(t)),
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, v.Delete(ctx))

			_, _, err := v.Load(ctx)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFallbackIsDistinguishable(t *testing.T) {
	ctx := context.Background()
	v := New(unavailableStorage{}, newLocal(t))

	md, err := v.Save(ctx, "user@example.com", `{"token":"t1"}`)
	require.NoError(t, err)
	assert.False(t, md.HardwareBacked())
	assert.True(t, md.Fallback)
	assert.False(t, md.SelfGating)
	assert.Equal(t, ProtectionPlain, md.Protection)

	cred, md, err := v.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"token":"t1"}`, cred.Payload)
	assert.True(t, md.Fallback)
}

func TestNoFallbackReportsPlatformUnavailable(t *testing.T) {
	ctx := context.Background()
	v := New(unavailableStorage{}, nil)

	_, err := v.Save(ctx, "user@example.com", "p")
	assert.ErrorIs(t, err, ErrPlatformUnavailable)

	_, _, err = v.Load(ctx)
	assert.ErrorIs(t, err, ErrPlatformUnavailable)
}

func TestNativeRejectionIsStorageFailure(t *testing.T) {
	ctx := context.Background()
	v := New(&memoryStorage{saveErr: errors.New("keystore locked")}, newLocal(t))

	_, err := v.Save(ctx, "user@example.com", "p")
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSaveRequiresKeyAndPayload(t *testing.T) {
	v := New(&memoryStorage{}, nil)

	_, err := v.Save(context.Background(), "", "p")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestKeyringStorage(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()
	v := New(unavailableStorage{}, NewKeyringStorage("com.jackson.app"))

	require.NoError(t, v.Delete(ctx))
	_, _, err := v.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	md, err := v.Save(ctx, "user@example.com", "payloadA")
	require.NoError(t, err)
	assert.Equal(t, ProtectionOSKeychain, md.Protection)
	assert.False(t, md.HardwareBacked())

	_, err = v.Save(ctx, "user@example.com", "payloadB")
	require.NoError(t, err)

	cred, _, err := v.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "payloadB", cred.Payload)
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("KeyStoreException")
	err := NewError(ErrStorageFailure, "-25299", "duplicate item", cause)

	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "-25299")
}
