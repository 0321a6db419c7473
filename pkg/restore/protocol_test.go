package restore

import (
	"context"
	"testing"

	"github.com/go-ctap/biobridge/pkg/backend/nativebio"
	"github.com/go-ctap/biobridge/pkg/backend/trustzone"
	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/go-ctap/biobridge/pkg/bridge"
	"github.com/go-ctap/biobridge/pkg/bridge/bridgetest"
	"github.com/go-ctap/biobridge/pkg/dispatch"
	"github.com/go-ctap/biobridge/pkg/localstore"
	"github.com/go-ctap/biobridge/pkg/options"
	"github.com/go-ctap/biobridge/pkg/prefs"
	"github.com/go-ctap/biobridge/pkg/vault"
	"github.com/go-ctap/biobridge/pkg/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bundlePayload = `{"token":"t1","user":{"id":1}}`

func iosHost(s *bridgetest.Slot) *bridgetest.Host {
	h := bridgetest.NewHost().
		Reply(nativebio.PluginName, "isAvailable", map[string]any{"isAvailable": true, "biometryType": int(nativebio.BiometryFaceID)}).
		Reply(nativebio.PluginName, "verifyIdentity", nil)
	return s.Register(h, nativebio.PluginName)
}

func androidHost(s *bridgetest.Slot) *bridgetest.Host {
	h := bridgetest.NewHost().
		Reply(trustzone.PluginName, "isAvailable", map[string]any{
			"isAvailable":   true,
			"biometryType":  3,
			"securityClass": 3,
			"hardwareTEE":   true,
		}).
		Reply(trustzone.PluginName, "verifyIdentity", map[string]any{"success": true, "authType": "biometric"})
	return s.Register(h, nativebio.PluginName)
}

type env struct {
	protocol *Protocol
	prefs    *prefs.Store
}

func newEnv(t *testing.T, host *bridgetest.Host, platform string) env {
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

	return env{protocol: New(d, p, opts...), prefs: p}
}

func TestEnrollThenRestore(t *testing.T) {
	for _, platform := range []string{dispatch.PlatformIOS, dispatch.PlatformAndroid} {
		t.Run(platform, func(t *testing.T) {
			s := bridgetest.NewSlot("", "")
			host := iosHost(s)
			if platform == dispatch.PlatformAndroid {
				host = androidHost(s)
			}
			e := newEnv(t, host, platform)
			ctx := context.Background()

			enrolled, err := e.protocol.Enroll(ctx, "user@example.com", bundlePayload)
			require.NoError(t, err)
			assert.True(t, enrolled.Storage.HardwareBacked())

			enabled, err := e.prefs.Enabled(ctx)
			require.NoError(t, err)
			assert.True(t, enabled)

			res := e.protocol.Restore(ctx, biotypes.PromptConfig{})
			require.Equal(t, StateRestored, res.State, res.Message)
			assert.NoError(t, res.Err)

			bundle, ok := res.Session.Get()
			require.True(t, ok)
			assert.Equal(t, "t1", bundle.Token)
			assert.Equal(t, float64(1), bundle.User["id"])
			assert.Equal(t, "user@example.com", res.Credential.OrEmpty().IdentityKey)
		})
	}
}

func TestRestoreTransitions(t *testing.T) {
	s := bridgetest.NewSlot("user@example.com", bundlePayload)
	e := newEnv(t, androidHost(s), dispatch.PlatformAndroid)

	var seen []State
	e.protocol.WithObserver(func(from, to State) {
		assert.True(t, CanTransition(from, to), "%s -> %s", from, to)
		seen = append(seen, to)
	})

	res := e.protocol.Restore(context.Background(), biotypes.PromptConfig{})
	require.True(t, res.Restored())
	assert.Equal(t, []State{
		StateProbing, StateReady, StateVerifying, StateVerified, StateRetrieving, StateRestored,
	}, seen)
	assert.True(t, res.State.Terminal())
}

func TestRestoreUnavailableNeverVerifies(t *testing.T) {
	host := bridgetest.NewHost().
		Reply(trustzone.PluginName, "isAvailable", map[string]any{"isAvailable": false, "errorCode": 1})
	e := newEnv(t, host, dispatch.PlatformAndroid)

	res := e.protocol.Restore(context.Background(), biotypes.PromptConfig{})
	assert.Equal(t, StateUnavailable, res.State)
	assert.ErrorIs(t, res.Err, ErrUnavailable)
	assert.NotEmpty(t, res.Message)
	assert.Equal(t, 0, host.Calls(trustzone.PluginName, "verifyIdentity"))
	assert.Equal(t, 0, host.Calls(nativebio.PluginName, "getCredentials"))
}

func TestRestoreWithoutBridgeIsUnavailable(t *testing.T) {
	e := newEnv(t, nil, dispatch.PlatformWeb)

	res := e.protocol.Restore(context.Background(), biotypes.PromptConfig{})
	assert.Equal(t, StateUnavailable, res.State)
	assert.Equal(t, biotypes.KindNone, res.Capability.Kind)
}

func TestRestorePermanentLockout(t *testing.T) {
	s := bridgetest.NewSlot("user@example.com", bundlePayload)
	host := androidHost(s).
		Reply(trustzone.PluginName, "verifyIdentity", map[string]any{
			"success":            false,
			"errorCode":          trustzone.ErrorLockoutPermanent,
			"isLockout":          true,
			"isLockoutPermanent": true,
		})
	e := newEnv(t, host, dispatch.PlatformAndroid)
	ctx := context.Background()

	res := e.protocol.Restore(ctx, biotypes.PromptConfig{})
	require.Equal(t, StateFailed, res.State)
	assert.False(t, res.Retryable)
	assert.Contains(t, res.Message, "unlock your device")

	verr, ok := AsVerificationError(res.Err)
	require.True(t, ok)
	assert.True(t, verr.Failure.IsLockoutPermanent())

	// The immediate retry is refused without raising another prompt.
	retry := e.protocol.Restore(ctx, biotypes.PromptConfig{})
	assert.Equal(t, StateFailed, retry.State)
	assert.False(t, retry.Retryable)
	assert.ErrorIs(t, retry.Err, verify.ErrLockedOut)
	assert.Equal(t, 1, host.Calls(trustzone.PluginName, "verifyIdentity"))
	assert.Equal(t, 0, host.Calls(nativebio.PluginName, "getCredentials"))

	e.protocol.Gate().Reset()
	e.protocol.Restore(ctx, biotypes.PromptConfig{})
	assert.Equal(t, 2, host.Calls(trustzone.PluginName, "verifyIdentity"))
}

func TestRestoreUserCancel(t *testing.T) {
	host := iosHost(bridgetest.NewSlot("", "")).Reject(nativebio.PluginName, "verifyIdentity", "16", "User cancelled")
	e := newEnv(t, host, dispatch.PlatformIOS)

	res := e.protocol.Restore(context.Background(), biotypes.PromptConfig{})
	assert.Equal(t, StateFailed, res.State)
	assert.True(t, res.Retryable)
	assert.NotErrorIs(t, res.Err, vault.ErrStorageFailure)
	assert.Equal(t, biotypes.ReasonUserCanceled, res.Verification.OrEmpty().FailureOrEmpty().Reason)
}

func TestRestoreNoCredentials(t *testing.T) {
	e := newEnv(t, iosHost(bridgetest.NewSlot("", "")), dispatch.PlatformIOS)

	res := e.protocol.Restore(context.Background(), biotypes.PromptConfig{})
	assert.Equal(t, StateNoCredentials, res.State)
	assert.ErrorIs(t, res.Err, vault.ErrNotFound)
	assert.Contains(t, res.Message, "sign in manually once")
}

func TestRestoreStoragePromptCanceled(t *testing.T) {
	host := iosHost(bridgetest.NewSlot("", "")).Reject(nativebio.PluginName, "getCredentials", "16", "User cancelled")
	e := newEnv(t, host, dispatch.PlatformIOS)

	res := e.protocol.Restore(context.Background(), biotypes.PromptConfig{})
	assert.Equal(t, StateVaultError, res.State)
	assert.True(t, res.Retryable)
	assert.ErrorIs(t, res.Err, vault.ErrAccessCanceled)
	assert.NotErrorIs(t, res.Err, vault.ErrStorageFailure)
}

func TestRestoreRawTokenFallback(t *testing.T) {
	s := bridgetest.NewSlot("user@example.com", "raw-token")
	e := newEnv(t, androidHost(s), dispatch.PlatformAndroid)
	ctx := context.Background()

	res := e.protocol.Restore(ctx, biotypes.PromptConfig{})
	assert.Equal(t, StateVaultError, res.State)
	assert.ErrorIs(t, res.Err, ErrPayloadUnusable)
	assert.Equal(t, msgUnusable, res.Message)

	require.NoError(t, e.prefs.CacheUser(ctx, `{"id":7}`))

	res = e.protocol.Restore(ctx, biotypes.PromptConfig{})
	require.Equal(t, StateRestored, res.State)
	bundle := res.Session.OrEmpty()
	assert.Equal(t, "raw-token", bundle.Token)
	assert.True(t, bundle.FromRawToken)
	assert.Equal(t, float64(7), bundle.User["id"])
}

func TestEnrollRequiresAvailability(t *testing.T) {
	s := bridgetest.NewSlot("", "")
	host := s.Register(bridgetest.NewHost().
		Reply(nativebio.PluginName, "isAvailable", map[string]any{"isAvailable": false, "errorCode": int(nativebio.ErrBiometricsNotEnrolled)}), nativebio.PluginName)
	e := newEnv(t, host, dispatch.PlatformIOS)

	res, err := e.protocol.Enroll(context.Background(), "user@example.com", bundlePayload)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, res.Capability.EnrollmentPossible)
	assert.Equal(t, 0, host.Calls(nativebio.PluginName, "setCredentials"))
	assert.Equal(t, 0, host.Calls(nativebio.PluginName, "verifyIdentity"))
}

func TestEnrollCachesUser(t *testing.T) {
	e := newEnv(t, iosHost(bridgetest.NewSlot("", "")), dispatch.PlatformIOS)
	ctx := context.Background()

	_, err := e.protocol.Enroll(ctx, "user@example.com", bundlePayload)
	require.NoError(t, err)

	user, err := e.prefs.CachedUser(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1}`, user.OrEmpty())
}

func TestDisable(t *testing.T) {
	s := bridgetest.NewSlot("", "")
	host := iosHost(s)
	e := newEnv(t, host, dispatch.PlatformIOS)
	ctx := context.Background()

	_, err := e.protocol.Enroll(ctx, "user@example.com", bundlePayload)
	require.NoError(t, err)

	require.NoError(t, e.protocol.Disable(ctx))
	assert.Equal(t, 1, host.Calls(nativebio.PluginName, "deleteCredentials"))

	enabled, err := e.prefs.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	// Deleting again is fine.
	require.NoError(t, e.protocol.Disable(ctx))

	res := e.protocol.Restore(ctx, biotypes.PromptConfig{})
	assert.Equal(t, StateNoCredentials, res.State)
}

func TestDisableWithoutStorage(t *testing.T) {
	kv, err := localstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	opts := []options.Option{options.WithPlatform(dispatch.PlatformWeb)}
	p := prefs.New(kv)
	protocol := New(dispatch.New(nil, nil, opts...), p, opts...)
	ctx := context.Background()

	require.NoError(t, protocol.Disable(ctx))

	has, err := protocol.HasCredentials(ctx)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestHasCredentials(t *testing.T) {
	ctx := context.Background()

	t.Run("self-gating storage answers from the flag", func(t *testing.T) {
		host := iosHost(bridgetest.NewSlot("", ""))
		e := newEnv(t, host, dispatch.PlatformIOS)

		ok, err := e.protocol.HasCredentials(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = e.protocol.Enroll(ctx, "user@example.com", bundlePayload)
		require.NoError(t, err)

		ok, err = e.protocol.HasCredentials(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 0, host.Calls(nativebio.PluginName, "getCredentials"))
	})

	t.Run("self-gating storage after a bare save", func(t *testing.T) {
		host := iosHost(bridgetest.NewSlot("", ""))
		e := newEnv(t, host, dispatch.PlatformIOS)

		_, err := e.protocol.SaveCredentials(ctx, "user@example.com", bundlePayload)
		require.NoError(t, err)

		ok, err := e.protocol.HasCredentials(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 0, host.Calls(nativebio.PluginName, "getCredentials"))

		res := e.protocol.Restore(ctx, biotypes.PromptConfig{})
		assert.Equal(t, StateRestored, res.State)

		require.NoError(t, e.protocol.Disable(ctx))
		ok, err = e.protocol.HasCredentials(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("self-gating storage ignores the enabled flag alone", func(t *testing.T) {
		e := newEnv(t, iosHost(bridgetest.NewSlot("", "")), dispatch.PlatformIOS)
		require.NoError(t, e.prefs.Enable(ctx, prefs.Enrollment{Kind: biotypes.KindFace}))

		ok, err := e.protocol.HasCredentials(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("other storage is read", func(t *testing.T) {
		s := bridgetest.NewSlot("user@example.com", bundlePayload)
		host := androidHost(s)
		e := newEnv(t, host, dispatch.PlatformAndroid)

		ok, err := e.protocol.HasCredentials(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, host.Calls(nativebio.PluginName, "getCredentials"))
	})

	t.Run("web without credentials", func(t *testing.T) {
		e := newEnv(t, nil, dispatch.PlatformWeb)

		ok, err := e.protocol.HasCredentials(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
