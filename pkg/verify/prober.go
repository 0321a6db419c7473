// Package verify queries biometric capability and runs verification challenges
// against whichever backend the resolver picks for the call.
package verify

import (
	"context"
	"log/slog"

	"github.com/go-ctap/biobridge/pkg/backend"
	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/go-ctap/biobridge/pkg/options"
)

// Prober reports the current biometric capability.
//
// The reported kind is the platform's primary biometry only. A device with both
// face and fingerprint enrolled reports one of them; callers must not conclude
// the other is missing.
type Prober struct {
	resolver backend.Resolver
	logger   *slog.Logger
}

func NewProber(resolver backend.Resolver, opts ...options.Option) *Prober {
	oo := options.NewOptions(opts...)

	return &Prober{
		resolver: resolver,
		logger:   oo.Logger,
	}
}

// Probe never fails. Absent hardware is a normal unavailable capability, and a
// platform that cannot be queried yields an unknown one.
func (p *Prober) Probe(ctx context.Context) biotypes.Capability {
	b := p.resolver.Resolve(ctx)

	capability, err := b.Probe(ctx)
	if err != nil {
		p.logger.Warn("verify: capability probe failed", "backend", b.Name(), "error", err)
		return biotypes.UnknownCapability(err.Error())
	}

	p.logger.Debug("verify: capability probed",
		"backend", b.Name(),
		"available", capability.Available,
		"kind", capability.Kind,
		"securityClass", capability.SecurityClass,
		"nativeCode", capability.NativeCode,
	)

	return capability
}
