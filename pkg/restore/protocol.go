// Package restore signs a returning user back in with biometrics:
// probe the hardware, verify the user, then read the stored session from the vault.
// It also runs the inverse enrollment path after a manual sign in.
package restore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-ctap/biobridge/pkg/backend"
	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/go-ctap/biobridge/pkg/options"
	"github.com/go-ctap/biobridge/pkg/prefs"
	"github.com/go-ctap/biobridge/pkg/session"
	"github.com/go-ctap/biobridge/pkg/vault"
	"github.com/go-ctap/biobridge/pkg/verify"
	"github.com/samber/mo"
)

const (
	msgUnavailable   = "Biometric authentication not available"
	msgNoCredentials = "Biometric login is not set up. Please sign in manually once to enable biometric login."
	msgUnusable      = "Failed to retrieve your account data. Please sign in manually."
	msgStorage       = "Could not read your saved sign in. Please try again or sign in manually."
	msgNoStorage     = "Secure storage is not available on this device. Please sign in manually."
	msgAccessCancel  = "Verification was cancelled. You can try again or skip for now."
	msgInProgress    = "A biometric prompt is already open."
)

// Dispatcher resolves the backend and its vault for each call.
type Dispatcher interface {
	backend.Resolver
	Vault(ctx context.Context) *vault.Vault
}

// Result is the outcome of one restoration run. It always carries a terminal
// state and a message the UI can show as is.
type Result struct {
	State        State                                   `json:"state"`
	Capability   biotypes.Capability                     `json:"capability"`
	Verification mo.Option[biotypes.VerificationOutcome] `json:"verification"`
	Credential   mo.Option[biotypes.StoredCredential]    `json:"-"`
	Session      mo.Option[session.Bundle]               `json:"-"`
	Storage      vault.Metadata                          `json:"storage"`
	Message      string                                  `json:"message,omitempty"`
	Retryable    bool                                    `json:"retryable"`
	Err          error                                   `json:"-"`
}

// Restored tells whether the run produced a session.
func (r Result) Restored() bool {
	return r.State == StateRestored
}

// EnrollResult is the outcome of enabling biometric login.
type EnrollResult struct {
	Capability biotypes.Capability `json:"capability"`
	Storage    vault.Metadata      `json:"storage"`
}

type Protocol struct {
	dispatcher   Dispatcher
	prober       *verify.Prober
	orchestrator *verify.Orchestrator
	gate         *verify.RetryGate
	prefs        *prefs.Store
	observer     Observer
	now          func() time.Time
	logger       *slog.Logger
}

func New(d Dispatcher, p *prefs.Store, opts ...options.Option) *Protocol {
	oo := options.NewOptions(opts...)

	return &Protocol{
		dispatcher:   d,
		prober:       verify.NewProber(d, opts...),
		orchestrator: verify.NewOrchestrator(d, opts...),
		gate:         verify.NewRetryGate(opts...),
		prefs:        p,
		now:          oo.Now,
		logger:       oo.Logger,
	}
}

// WithObserver registers an observer for every state transition.
func (p *Protocol) WithObserver(o Observer) *Protocol {
	p.observer = o
	return p
}

// Gate is the retry policy consulted before each verification.
func (p *Protocol) Gate() *verify.RetryGate {
	return p.gate
}

// Prober exposes the capability prober used by the protocol.
func (p *Protocol) Prober() *verify.Prober {
	return p.prober
}

type run struct {
	p     *Protocol
	state State
}

func (r *run) to(next State) {
	if !CanTransition(r.state, next) {
		// Programming error; keep going so the caller still gets a result.
		r.p.logger.Error("restore: invalid transition", "from", r.state, "to", next)
	}
	r.p.logger.Info("restore: transition", "from", r.state, "to", next)
	if r.p.observer != nil {
		r.p.observer(r.state, next)
	}
	r.state = next
}

// Restore runs probe, verify and retrieve. The payload is never read without a
// successful verification in the same run.
func (p *Protocol) Restore(ctx context.Context, prompt biotypes.PromptConfig) Result {
	r := &run{p: p, state: StateIdle}
	res := Result{Verification: mo.None[biotypes.VerificationOutcome]()}

	r.to(StateProbing)
	res.Capability = p.prober.Probe(ctx)
	if !res.Capability.Available {
		r.to(StateUnavailable)
		res.State = r.state
		res.Message = msgUnavailable
		if res.Capability.Message != "" && res.Capability.NativeCode != biotypes.NativeCodeBridgeError {
			res.Message = res.Capability.Message
		}
		res.Retryable = res.Capability.TemporarilyUnavailable
		res.Err = ErrUnavailable
		return res
	}
	r.to(StateReady)

	r.to(StateVerifying)
	if err := p.gate.Allow(); err != nil {
		r.to(StateFailed)
		f := p.gate.Last().OrEmpty()
		res.State = r.state
		res.Message = f.UserMessage()
		res.Retryable = !errors.Is(err, verify.ErrLockedOut)
		res.Err = &VerificationError{Failure: f, Err: err}
		return res
	}

	outcome := p.orchestrator.Verify(ctx, prompt)
	p.gate.Record(outcome)
	res.Verification = mo.Some(outcome)
	if !outcome.Succeeded {
		r.to(StateFailed)
		f := outcome.FailureOrEmpty()
		res.State = r.state
		res.Message = f.UserMessage()
		if verify.InProgress(outcome) {
			res.Message = msgInProgress
		}
		res.Retryable = f.Retryable()
		res.Err = &VerificationError{Failure: f}
		return res
	}
	r.to(StateVerified)

	r.to(StateRetrieving)
	cred, md, err := p.dispatcher.Vault(ctx).Load(ctx)
	res.Storage = md
	if err != nil {
		return p.vaultFailure(r, res, err)
	}

	bundle, err := session.Parse(cred.Payload, p.cachedUser(ctx))
	if err != nil {
		p.logger.Warn("restore: stored payload is unusable", "error", err)
		r.to(StateVaultError)
		res.State = r.state
		res.Message = msgUnusable
		res.Err = fmt.Errorf("%w: %w", ErrPayloadUnusable, err)
		return res
	}
	if bundle.Expired(p.now()) {
		p.logger.Warn("restore: restored token is expired", "expiresAt", bundle.ExpiresAt().OrEmpty())
	}

	r.to(StateRestored)
	res.State = r.state
	res.Credential = mo.Some(cred)
	res.Session = mo.Some(bundle)
	return res
}

func (p *Protocol) vaultFailure(r *run, res Result, err error) Result {
	switch {
	case errors.Is(err, vault.ErrNotFound):
		r.to(StateNoCredentials)
		res.Message = msgNoCredentials
	case errors.Is(err, vault.ErrAccessCanceled):
		p.logger.Info("restore: storage prompt canceled")
		r.to(StateVaultError)
		res.Message = msgAccessCancel
		res.Retryable = true
	case errors.Is(err, vault.ErrPlatformUnavailable):
		p.logger.Info("restore: no secure storage and no fallback")
		r.to(StateVaultError)
		res.Message = msgNoStorage
	default:
		p.logger.Error("restore: cannot load credentials", "error", err)
		r.to(StateVaultError)
		res.Message = msgStorage
		res.Retryable = true
	}

	res.State = r.state
	res.Err = err
	return res
}

func (p *Protocol) cachedUser(ctx context.Context) mo.Option[string] {
	user, err := p.prefs.CachedUser(ctx)
	if err != nil {
		p.logger.Warn("restore: cannot read cached user", "error", err)
		return mo.None[string]()
	}
	return user
}

// SaveCredentials probes and, when biometrics are available, stores the credential.
// It requires available hardware but no fresh verification: the save is the trust
// boundary, and on self-gating storage every later read is confirmed by the OS anyway.
func (p *Protocol) SaveCredentials(ctx context.Context, identityKey, payload string) (EnrollResult, error) {
	r := &run{p: p, state: StateIdle}

	r.to(StateProbing)
	res := EnrollResult{Capability: p.prober.Probe(ctx)}
	if !res.Capability.Available {
		r.to(StateUnavailable)
		return res, ErrUnavailable
	}
	r.to(StateReady)

	md, err := p.dispatcher.Vault(ctx).Save(ctx, identityKey, payload)
	if err != nil {
		p.logger.Error("restore: cannot save credentials", "error", err)
		return res, err
	}
	res.Storage = md
	if err := p.prefs.MarkCredentialStored(ctx); err != nil {
		return res, fmt.Errorf("restore: credentials saved but not recorded: %w", err)
	}
	return res, nil
}

// Enroll saves the credential after a manual sign in and records the local flags.
func (p *Protocol) Enroll(ctx context.Context, identityKey, payload string) (EnrollResult, error) {
	res, err := p.SaveCredentials(ctx, identityKey, payload)
	if err != nil {
		return res, err
	}
	md := res.Storage

	if err := p.prefs.Enable(ctx, prefs.Enrollment{
		Kind:           res.Capability.Kind,
		SecurityClass:  res.Capability.SecurityClass,
		HardwareBacked: md.HardwareBacked(),
	}); err != nil {
		return res, fmt.Errorf("restore: credentials saved but preferences not recorded: %w", err)
	}

	// Keep the user record for the raw-token fallback.
	if bundle, err := session.Parse(payload, mo.None[string]()); err == nil {
		if user, err := session.EncodeUser(bundle.User); err == nil {
			if err := p.prefs.CacheUser(ctx, user); err != nil {
				p.logger.Warn("restore: cannot cache user", "error", err)
			}
		}
	}

	p.gate.Reset()
	p.logger.Info("restore: biometric login enabled", "kind", res.Capability.Kind, "protection", md.Protection, "fallback", md.Fallback)
	return res, nil
}

// Disable clears the local flags and deletes the stored credential.
func (p *Protocol) Disable(ctx context.Context) error {
	if err := p.prefs.Disable(ctx); err != nil {
		return err
	}
	// Without any storage there is no slot to delete.
	if err := p.dispatcher.Vault(ctx).Delete(ctx); err != nil && !errors.Is(err, vault.ErrPlatformUnavailable) {
		return err
	}
	p.gate.Reset()
	p.logger.Info("restore: biometric login disabled")
	return nil
}

// HasCredentials tells whether a credential is stored. Self-gating storage
// would raise an OS prompt on read, so for it the marker recorded on save answers instead.
func (p *Protocol) HasCredentials(ctx context.Context) (bool, error) {
	v := p.dispatcher.Vault(ctx)
	if v.Metadata().SelfGating {
		return p.prefs.CredentialStored(ctx)
	}

	_, _, err := v.Load(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, vault.ErrNotFound), errors.Is(err, vault.ErrPlatformUnavailable):
		return false, nil
	default:
		return false, err
	}
}
