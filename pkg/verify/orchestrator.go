package verify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/go-ctap/biobridge/pkg/backend"
	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/go-ctap/biobridge/pkg/options"
)

// ErrVerificationInProgress rejects a verification started while another one is outstanding.
var ErrVerificationInProgress = errors.New("verify: verification already in progress")

const (
	// CodeInProgress is the native code of an outcome rejected by the single-prompt rule.
	CodeInProgress = -3
	// CodeBridgeError is the native code of an outcome whose platform call never completed.
	CodeBridgeError = biotypes.NativeCodeBridgeError
)

// Orchestrator issues one verification challenge at a time.
// It never retries on its own; retry policy belongs to the caller (see RetryGate).
type Orchestrator struct {
	resolver backend.Resolver
	logger   *slog.Logger

	mu sync.Mutex
}

func NewOrchestrator(resolver backend.Resolver, opts ...options.Option) *Orchestrator {
	oo := options.NewOptions(opts...)

	return &Orchestrator{
		resolver: resolver,
		logger:   oo.Logger,
	}
}

// Verify runs a single OS prompt and always returns a well-formed outcome.
// An overlapping call is rejected without raising a second prompt.
func (o *Orchestrator) Verify(ctx context.Context, prompt biotypes.PromptConfig) biotypes.VerificationOutcome {
	if !o.mu.TryLock() {
		o.logger.Info("verify: rejected overlapping verification")
		return biotypes.Failed(biotypes.Failure{
			Reason:     biotypes.ReasonProcessingError,
			NativeCode: CodeInProgress,
			Message:    ErrVerificationInProgress.Error(),
		})
	}
	defer o.mu.Unlock()

	b := o.resolver.Resolve(ctx)

	outcome, err := b.Verify(ctx, prompt)
	if err != nil {
		outcome = o.transportFailure(b, err)
	}

	if outcome.Succeeded {
		o.logger.Info("verify: verification succeeded", "backend", b.Name(), "authKind", outcome.AuthKind)
		return outcome
	}

	f := outcome.FailureOrEmpty()
	attrs := []any{
		"backend", b.Name(),
		"reason", f.Reason,
		"permanentLockout", f.PermanentLockout,
		"nativeCode", f.NativeCode,
	}
	if f.IsError() {
		o.logger.Warn("verify: verification failed", attrs...)
	} else {
		o.logger.Info("verify: verification canceled", attrs...)
	}

	return outcome
}

func (o *Orchestrator) transportFailure(b backend.Backend, err error) biotypes.VerificationOutcome {
	// The caller gave up waiting; to the user that is the same as dismissing the prompt.
	if errors.Is(err, context.Canceled) {
		return biotypes.Failed(biotypes.Failure{
			Reason:     biotypes.ReasonUserCanceled,
			NativeCode: CodeBridgeError,
			Message:    err.Error(),
		})
	}

	o.logger.Error("verify: platform call failed", "backend", b.Name(), "error", err)
	return biotypes.Failed(biotypes.Failure{
		Reason:     biotypes.ReasonUnknown,
		NativeCode: CodeBridgeError,
		Message:    err.Error(),
	})
}

// InProgress tells whether outcome was rejected because another verification was running.
func InProgress(outcome biotypes.VerificationOutcome) bool {
	f, ok := outcome.Failure.Get()
	return ok && f.Reason == biotypes.ReasonProcessingError && f.NativeCode == CodeInProgress
}
