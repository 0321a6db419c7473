package verify

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/go-ctap/biobridge/pkg/options"
	"github.com/samber/mo"
)

var (
	// ErrLockedOut blocks retries after a permanent lockout until the gate is reset.
	ErrLockedOut = errors.New("verify: biometric locked out, unlock the device first")
	// ErrCoolingDown blocks retries while a temporary lockout cool-down runs.
	ErrCoolingDown = errors.New("verify: biometric temporarily locked out")
)

// RetryGate is the caller-side retry policy. It remembers the last verification
// failure and decides whether another prompt may be offered.
type RetryGate struct {
	cooldown time.Duration
	now      func() time.Time

	mu    sync.Mutex
	last  mo.Option[biotypes.Failure]
	until time.Time
}

func NewRetryGate(opts ...options.Option) *RetryGate {
	oo := options.NewOptions(opts...)

	return &RetryGate{
		cooldown: oo.LockoutCooldown,
		now:      oo.Now,
		last:     mo.None[biotypes.Failure](),
	}
}

// Record notes the outcome of an attempt. A success clears the gate.
func (g *RetryGate) Record(outcome biotypes.VerificationOutcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	f, failed := outcome.Failure.Get()
	if outcome.Succeeded || !failed {
		g.last = mo.None[biotypes.Failure]()
		g.until = time.Time{}
		return
	}
	// The single-prompt rejection says nothing about the user or the sensor.
	if f.Reason == biotypes.ReasonProcessingError && f.NativeCode == CodeInProgress {
		return
	}

	g.last = mo.Some(f)
	g.until = time.Time{}
	if f.Reason == biotypes.ReasonLockout && !f.PermanentLockout {
		g.until = g.now().Add(g.cooldown)
	}
}

// Allow returns nil when a new attempt may be started.
func (g *RetryGate) Allow() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	f, ok := g.last.Get()
	if !ok {
		return nil
	}

	switch {
	case f.IsLockoutPermanent():
		return ErrLockedOut
	case f.Reason == biotypes.ReasonLockout:
		if remaining := g.until.Sub(g.now()); remaining > 0 {
			return fmt.Errorf("%w: retry in %s", ErrCoolingDown, remaining.Round(time.Second))
		}
		return nil
	default:
		// Anything else is advisory; enrollment and hardware state are re-checked by the next probe.
		return nil
	}
}

// Last returns the failure the gate is holding, if any.
func (g *RetryGate) Last() mo.Option[biotypes.Failure] {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Reset clears the gate, e.g. after the user unlocked the device or signed in manually.
func (g *RetryGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = mo.None[biotypes.Failure]()
	g.until = time.Time{}
}
