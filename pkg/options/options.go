package options

import (
	"context"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// DefaultService scopes the secure storage slot. It matches the app identifier.
const DefaultService = "com.jackson.app"

type Options struct {
	Logger          *slog.Logger
	EncMode         cbor.EncMode
	Context         context.Context
	Platform        string
	Service         string
	LockoutCooldown time.Duration
	Now             func() time.Time
}

type Option func(*Options)

func WithLogger(logger *slog.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

func WithEncMode(encMode cbor.EncMode) Option {
	return func(opts *Options) {
		opts.EncMode = encMode
	}
}

// WithContext bounds the lifetime of a bridge client: its connection is closed
// when ctx is done.
func WithContext(ctx context.Context) Option {
	return func(opts *Options) {
		opts.Context = ctx
	}
}

// WithPlatform overrides platform detection ("android", "ios", "web").
func WithPlatform(platform string) Option {
	return func(opts *Options) {
		opts.Platform = platform
	}
}

// WithService sets the secure storage service identifier.
func WithService(service string) Option {
	return func(opts *Options) {
		opts.Service = service
	}
}

func WithLockoutCooldown(d time.Duration) Option {
	return func(opts *Options) {
		opts.LockoutCooldown = d
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

func NewOptions(opts ...Option) *Options {
	encMode, _ := cbor.CoreDetEncOptions().EncMode()
	oo := &Options{
		Logger:          slog.Default(),
		EncMode:         encMode,
		Context:         context.Background(),
		Service:         DefaultService,
		LockoutCooldown: 30 * time.Second,
		Now:             time.Now,
	}

	for _, opt := range opts {
		opt(oo)
	}

	return oo
}
