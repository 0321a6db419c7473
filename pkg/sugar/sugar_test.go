package sugar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-ctap/biobridge/pkg/backend/nativebio"
	"github.com/go-ctap/biobridge/pkg/backend/trustzone"
	"github.com/go-ctap/biobridge/pkg/backendapi"
	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/go-ctap/biobridge/pkg/bridge"
	"github.com/go-ctap/biobridge/pkg/bridge/bridgetest"
	"github.com/go-ctap/biobridge/pkg/dispatch"
	"github.com/go-ctap/biobridge/pkg/localstore"
	"github.com/go-ctap/biobridge/pkg/options"
	"github.com/go-ctap/biobridge/pkg/prefs"
	"github.com/go-ctap/biobridge/pkg/restore"
	"github.com/go-ctap/biobridge/pkg/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func androidHost(slot *bridgetest.Slot) *bridgetest.Host {
	h := bridgetest.NewHost().
		Reply(trustzone.PluginName, "isAvailable", map[string]any{
			"isAvailable":   true,
			"biometryType":  4,
			"securityClass": 3,
			"hardwareTEE":   true,
		}).
		Reply(trustzone.PluginName, "verifyIdentity", map[string]any{"success": true, "authType": "biometric"})
	return slot.Register(h, nativebio.PluginName)
}

func iosHost(slot *bridgetest.Slot) *bridgetest.Host {
	h := bridgetest.NewHost().
		Reply(nativebio.PluginName, "isAvailable", map[string]any{"isAvailable": true, "biometryType": int(nativebio.BiometryFaceID)}).
		Reply(nativebio.PluginName, "verifyIdentity", nil)
	return slot.Register(h, nativebio.PluginName)
}

func newBridge(t *testing.T, host *bridgetest.Host, platform string, api *backendapi.Client) *Bridge {
	t.Helper()

	kv, err := localstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	var caller bridge.Caller
	if host != nil {
		caller = host.Start(t)
	}

	opts := []options.Option{options.WithPlatform(platform)}
	p := prefs.New(kv)
	d := dispatch.New(caller, vault.NewLocalStorage(kv), opts...)

	return New(restore.New(d, p, opts...), p, api, opts...)
}

func TestEnableThenAuthenticate(t *testing.T) {
	var toggles, registrations atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/biometric/toggle":
			toggles.Add(1)
			_, _ = w.Write([]byte(`{"success":true,"data":{"biometric":{"enabled":true}}}`))
		case "/biometric/face/register":
			registrations.Add(1)
			var profile backendapi.FaceProfile
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&profile))
			assert.Equal(t, "face_id", profile.Type)
			assert.Equal(t, "+15550100", profile.Mobile)
			assert.NotEmpty(t, profile.DeviceID)
			_, _ = w.Write([]byte(`{"success":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	slot := bridgetest.NewSlot("", "")
	b := newBridge(t, androidHost(slot), dispatch.PlatformAndroid, backendapi.NewClient(srv.URL))
	ctx := context.Background()

	assert.False(t, b.HasBiometricCredentials(ctx))

	enabled := b.EnableBiometric(ctx, EnableRequest{
		Token: "t1",
		User:  map[string]any{"id": 1, "email": "user@example.com", "mobile": "+15550100"},
	})
	require.True(t, enabled.Enrolled, enabled.Error)
	assert.Empty(t, enabled.BackendErrors)
	assert.True(t, enabled.Storage.HardwareBacked())
	assert.Equal(t, int32(1), toggles.Load())
	assert.Equal(t, int32(1), registrations.Load())

	username, _ := slot.Stored()
	assert.Equal(t, "user@example.com", username)
	assert.True(t, b.IsBiometricEnabledLocally(ctx))
	assert.Equal(t, "face_id", b.BiometricType(ctx))
	assert.True(t, b.HasBiometricCredentials(ctx))

	res := b.AuthenticateWithBiometric(ctx, biotypes.PromptConfig{})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "user@example.com", res.Username)
	assert.Equal(t, biotypes.KindFace, res.Kind)
	require.NotNil(t, res.Session)
	assert.Equal(t, "t1", res.Session.Token)
	assert.Nil(t, res.ExpiresAt)

	require.NoError(t, b.DisableBiometricLocally(ctx))
	assert.False(t, b.IsBiometricEnabledLocally(ctx))
	assert.False(t, b.HasBiometricCredentials(ctx))
}

func TestEnableBiometricBackendFailureDoesNotBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"database down"}`))
	}))
	defer srv.Close()

	b := newBridge(t, androidHost(bridgetest.NewSlot("", "")), dispatch.PlatformAndroid, backendapi.NewClient(srv.URL))

	res := b.EnableBiometric(context.Background(), EnableRequest{Token: "t1", User: map[string]any{"mobile": "+15550100"}})
	assert.True(t, res.Enrolled)
	assert.Equal(t, []string{"database down", "database down"}, res.BackendErrors)
}

func TestEnableBiometricRequiresUser(t *testing.T) {
	b := newBridge(t, androidHost(bridgetest.NewSlot("", "")), dispatch.PlatformAndroid, nil)

	res := b.EnableBiometric(context.Background(), EnableRequest{Token: "t1", User: map[string]any{"id": 1}})
	assert.False(t, res.Enrolled)
	assert.NotEmpty(t, res.Error)
}

func TestWebIsUnavailable(t *testing.T) {
	b := newBridge(t, nil, dispatch.PlatformWeb, nil)
	ctx := context.Background()

	capability := b.CheckBiometricAvailability(ctx)
	assert.False(t, capability.Available)

	res := b.AuthenticateWithBiometric(ctx, biotypes.PromptConfig{})
	assert.False(t, res.Success)
	assert.Equal(t, restore.StateUnavailable, res.State)
	assert.NotEmpty(t, res.Error)

	_, err := b.SetCredentials(ctx, "user@example.com", "payload")
	assert.ErrorIs(t, err, restore.ErrUnavailable)

	enabled := b.EnableBiometric(ctx, EnableRequest{Token: "t1", User: map[string]any{"email": "user@example.com"}})
	assert.False(t, enabled.Enrolled)
	assert.Contains(t, enabled.Error, "only available on native mobile app")
}

func TestAuthenticatePermanentLockout(t *testing.T) {
	host := androidHost(bridgetest.NewSlot("user@example.com", `{"token":"t1","user":{"id":1}}`)).
		Reply(trustzone.PluginName, "verifyIdentity", map[string]any{"success": false, "errorCode": trustzone.ErrorLockoutPermanent})
	b := newBridge(t, host, dispatch.PlatformAndroid, nil)

	res := b.AuthenticateWithBiometric(context.Background(), biotypes.PromptConfig{})
	assert.False(t, res.Success)
	assert.True(t, res.PermanentLockout)
	assert.False(t, res.Retryable)
	assert.Contains(t, res.Error, "unlock your device")
	assert.Empty(t, res.Password)
}

func TestResetAfterPermanentLockout(t *testing.T) {
	var attempts atomic.Int32
	host := androidHost(bridgetest.NewSlot("user@example.com", `{"token":"t1","user":{"id":1}}`)).
		On(trustzone.PluginName, "verifyIdentity", func(context.Context, bridge.Args) (any, error) {
			if attempts.Add(1) == 1 {
				return map[string]any{"success": false, "errorCode": trustzone.ErrorLockoutPermanent}, nil
			}
			return map[string]any{"success": true, "authType": "biometric"}, nil
		})
	b := newBridge(t, host, dispatch.PlatformAndroid, nil)
	ctx := context.Background()

	res := b.AuthenticateWithBiometric(ctx, biotypes.PromptConfig{})
	require.True(t, res.PermanentLockout)

	// The device is still locked as far as the bridge knows.
	res = b.AuthenticateWithBiometric(ctx, biotypes.PromptConfig{})
	assert.False(t, res.Success)
	assert.True(t, res.PermanentLockout)
	assert.Equal(t, int32(1), attempts.Load())

	b.ResetBiometricRetry(ctx)

	res = b.AuthenticateWithBiometric(ctx, biotypes.PromptConfig{})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "user@example.com", res.Username)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestSetCredentialsIsVisibleOnSelfGatingStorage(t *testing.T) {
	host := iosHost(bridgetest.NewSlot("", ""))
	b := newBridge(t, host, dispatch.PlatformIOS, nil)
	ctx := context.Background()

	assert.False(t, b.HasBiometricCredentials(ctx))

	md, err := b.SetCredentials(ctx, "user@example.com", `{"token":"t1","user":{"id":1}}`)
	require.NoError(t, err)
	assert.True(t, md.SelfGating)

	assert.True(t, b.HasBiometricCredentials(ctx))
	assert.Equal(t, 0, host.Calls(nativebio.PluginName, "getCredentials"))

	res := b.AuthenticateWithBiometric(ctx, biotypes.PromptConfig{})
	require.True(t, res.Success, res.Error)

	require.NoError(t, b.DisableBiometricLocally(ctx))
	assert.False(t, b.HasBiometricCredentials(ctx))
}

func TestLocalFlagsAndDeviceID(t *testing.T) {
	b := newBridge(t, nil, dispatch.PlatformWeb, nil)
	ctx := context.Background()

	assert.False(t, b.IsBiometricEnabledLocally(ctx))
	assert.Empty(t, b.BiometricType(ctx))

	require.NoError(t, b.EnableBiometricLocally(ctx, "fingerprint"))
	assert.True(t, b.IsBiometricEnabledLocally(ctx))
	assert.Equal(t, "fingerprint", b.BiometricType(ctx))

	id := b.DeviceID(ctx)
	assert.NotEqual(t, unknownDeviceID, id)
	assert.Equal(t, id, b.DeviceID(ctx))
}
