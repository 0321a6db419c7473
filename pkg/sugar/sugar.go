package sugar

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-ctap/biobridge/pkg/backendapi"
	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/go-ctap/biobridge/pkg/options"
	"github.com/go-ctap/biobridge/pkg/prefs"
	"github.com/go-ctap/biobridge/pkg/restore"
	"github.com/go-ctap/biobridge/pkg/session"
	"github.com/go-ctap/biobridge/pkg/vault"
	"github.com/go-ctap/biobridge/pkg/verify"
	"github.com/samber/lo"
)

const unknownDeviceID = "unknown"

// AuthResult is what the app receives from a biometric sign in attempt.
type AuthResult struct {
	Success          bool            `json:"success"`
	Username         string          `json:"username,omitempty"`
	Password         string          `json:"password,omitempty"`
	Kind             biotypes.Kind   `json:"biometryType"`
	Error            string          `json:"error,omitempty"`
	State            restore.State   `json:"state"`
	Retryable        bool            `json:"retryable"`
	PermanentLockout bool            `json:"permanentLockout,omitempty"`
	Busy             bool            `json:"busy,omitempty"` // another biometric prompt was already open
	Session          *session.Bundle `json:"session,omitempty"`
	ExpiresAt        *time.Time      `json:"expiresAt,omitempty"`
	Storage          vault.Metadata  `json:"storage"`
}

// EnableRequest carries what the app has right after a manual sign in.
type EnableRequest struct {
	Token string         `json:"token"`
	User  map[string]any `json:"user"`
}

// EnableResult reports the enrollment and the backend notifications.
type EnableResult struct {
	Enrolled      bool                `json:"enrolled"`
	Capability    biotypes.Capability `json:"capability"`
	Storage       vault.Metadata      `json:"storage"`
	Error         string              `json:"error,omitempty"`
	BackendErrors []string            `json:"backendErrors,omitempty"`
}

// Bridge is the single entry point the app talks to.
type Bridge struct {
	protocol *restore.Protocol
	prefs    *prefs.Store
	api      *backendapi.Client
	logger   *slog.Logger
}

// New builds the bridge. api may be nil, in which case the backend is never notified.
func New(protocol *restore.Protocol, p *prefs.Store, api *backendapi.Client, opts ...options.Option) *Bridge {
	oo := options.NewOptions(opts...)

	return &Bridge{
		protocol: protocol,
		prefs:    p,
		api:      api,
		logger:   oo.Logger,
	}
}

// AuthenticateWithBiometric runs the full restore: probe, verify, then read the stored credential.
func (b *Bridge) AuthenticateWithBiometric(ctx context.Context, prompt biotypes.PromptConfig) AuthResult {
	res := b.protocol.Restore(ctx, prompt)

	out := AuthResult{
		Success:   res.Restored(),
		Kind:      res.Capability.Kind,
		State:     res.State,
		Retryable: res.Retryable,
		Storage:   res.Storage,
	}
	if verr, ok := restore.AsVerificationError(res.Err); ok {
		out.PermanentLockout = verr.Failure.IsLockoutPermanent()
	}
	if outcome, ok := res.Verification.Get(); ok {
		out.Busy = verify.InProgress(outcome)
	}
	if !out.Success {
		out.Error = res.Message
		return out
	}

	cred := res.Credential.OrEmpty()
	out.Username = cred.IdentityKey
	out.Password = cred.Payload
	if bundle, ok := res.Session.Get(); ok {
		out.Session = lo.ToPtr(bundle)
		if exp, ok := bundle.ExpiresAt().Get(); ok {
			out.ExpiresAt = lo.ToPtr(exp)
		}
	}

	return out
}

// SetCredentials stores a credential when biometrics are available on this device.
func (b *Bridge) SetCredentials(ctx context.Context, username, password string) (vault.Metadata, error) {
	res, err := b.protocol.SaveCredentials(ctx, username, password)
	return res.Storage, err
}

func (b *Bridge) CheckBiometricAvailability(ctx context.Context) biotypes.Capability {
	return b.protocol.Prober().Probe(ctx)
}

// HasBiometricCredentials never fails; an unreadable store counts as empty.
func (b *Bridge) HasBiometricCredentials(ctx context.Context) bool {
	ok, err := b.protocol.HasCredentials(ctx)
	if err != nil {
		b.logger.Warn("sugar: cannot check stored credentials", "error", err)
		return false
	}
	return ok
}

// ResetBiometricRetry lifts a recorded lockout so the next sign in attempt opens the
// prompt again. The app calls it once the user has unlocked the device, or after a
// manual sign in.
func (b *Bridge) ResetBiometricRetry(context.Context) {
	b.protocol.Gate().Reset()
	b.logger.Info("sugar: biometric retry reset")
}

// EnableBiometricLocally records the flags only; the credential is saved separately.
func (b *Bridge) EnableBiometricLocally(ctx context.Context, typeName string) error {
	kind, ok := biotypes.ParseKind(typeName)
	if !ok {
		kind = biotypes.KindUnknown
	}
	return b.prefs.Enable(ctx, prefs.Enrollment{Kind: kind})
}

// DisableBiometricLocally clears the flags and deletes the stored credential.
func (b *Bridge) DisableBiometricLocally(ctx context.Context) error {
	return b.protocol.Disable(ctx)
}

func (b *Bridge) IsBiometricEnabledLocally(ctx context.Context) bool {
	ok, err := b.prefs.Enabled(ctx)
	if err != nil {
		b.logger.Warn("sugar: cannot read biometric flag", "error", err)
	}
	return ok
}

// BiometricType returns the recorded type name, or "" when none is recorded.
func (b *Bridge) BiometricType(ctx context.Context) string {
	typ, err := b.prefs.Type(ctx)
	if err != nil {
		b.logger.Warn("sugar: cannot read biometric type", "error", err)
	}
	return typ.OrEmpty()
}

func (b *Bridge) Preferences(ctx context.Context) (prefs.Preferences, error) {
	return b.prefs.Load(ctx)
}

// DeviceID never fails; "unknown" stands in when local storage is broken.
func (b *Bridge) DeviceID(ctx context.Context) string {
	id, err := b.prefs.DeviceID(ctx)
	if err != nil {
		b.logger.Warn("sugar: cannot read device id", "error", err)
		return unknownDeviceID
	}
	return id
}

// EnableBiometric turns biometric login on after a manual sign in: it tells the
// backend, then saves {token, user} under the user's email or mobile number.
// Backend failures are reported but never stop the local enrollment.
func (b *Bridge) EnableBiometric(ctx context.Context, req EnableRequest) EnableResult {
	identityKey := identityKeyOf(req.User)
	payload, err := session.Bundle{Token: req.Token, User: req.User}.Encode()
	if err != nil || identityKey == "" {
		return EnableResult{Error: "A signed-in user with an email or mobile number is required."}
	}

	out := EnableResult{}
	capability := b.protocol.Prober().Probe(ctx)
	if capability.Available {
		out.BackendErrors = b.notifyBackend(ctx, req, capability)
	}

	res, err := b.protocol.Enroll(ctx, identityKey, payload)
	out.Capability = res.Capability
	out.Storage = res.Storage
	switch {
	case err == nil:
		out.Enrolled = true
	case errors.Is(err, restore.ErrUnavailable):
		out.Error = lo.CoalesceOrEmpty(res.Capability.Message, "Biometric authentication not available")
	default:
		b.logger.Warn("sugar: enrollment failed", "error", err)
		out.Error = "Could not save your biometric sign in. Please try again."
	}

	return out
}

func (b *Bridge) notifyBackend(ctx context.Context, req EnableRequest, capability biotypes.Capability) []string {
	if b.api == nil {
		return nil
	}

	var errs []string
	report := func(call string, resp backendapi.Response, err error) {
		switch {
		case err != nil:
			b.logger.Warn("sugar: backend call failed", "call", call, "error", err)
			errs = append(errs, err.Error())
		case !resp.Success:
			b.logger.Warn("sugar: backend rejected call", "call", call, "error", resp.Error)
			errs = append(errs, resp.Error)
		}
	}

	resp, err := b.api.ToggleBiometric(ctx, req.Token)
	report("toggleBiometric", resp, err)

	level := capability.SecurityClass.String()
	if capability.SecurityClass == biotypes.SecurityClassUnknown {
		level = biotypes.SecurityClassStrong.String()
	}
	mobile, _ := req.User["mobile"].(string)
	resp, err = b.api.RegisterFace(ctx, backendapi.FaceProfile{
		Mobile:   mobile,
		Type:     prefs.TypeName(capability.Kind),
		DeviceID: b.DeviceID(ctx),
		VerificationData: backendapi.VerificationData{
			LivenessScore:  1,
			FaceMatchScore: 1,
			SecurityLevel:  level,
			HardwareTEE:    capability.HardwareBacked,
		},
	}, req.Token)
	report("registerFace", resp, err)

	return errs
}

func identityKeyOf(user map[string]any) string {
	for _, key := range []string{"email", "mobile"} {
		if v, ok := user[key].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
