// Package backend defines the contract every platform implementation of the
// biometric bridge satisfies. The dispatcher picks one implementation per call.
package backend

import (
	"context"

	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/go-ctap/biobridge/pkg/vault"
)

// Backend is one platform's biometric stack.
//
// Probe and Verify return an error only when the platform could not be reached
// (bridge transport failure, plugin exception). "No hardware" and every prompt
// outcome, including cancellation and lockout, are normal results.
type Backend interface {
	Name() string
	Probe(ctx context.Context) (biotypes.Capability, error)
	Verify(ctx context.Context, prompt biotypes.PromptConfig) (biotypes.VerificationOutcome, error)
	Storage() vault.Storage
}

const (
	NameTrustZone = "trustzone"
	NameNativeBio = "nativebio"
	NameStub      = "stub"
)

// Resolver picks the backend for one call.
type Resolver interface {
	Resolve(ctx context.Context) Backend
}

type ResolverFunc func(ctx context.Context) Backend

func (f ResolverFunc) Resolve(ctx context.Context) Backend {
	return f(ctx)
}

// Fixed always resolves to b.
func Fixed(b Backend) Resolver {
	return ResolverFunc(func(context.Context) Backend {
		return b
	})
}
