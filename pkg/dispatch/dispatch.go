// Package dispatch picks the biometric backend for the platform the app runs on.
// The choice is made on every call, never cached, since the bridge connection
// and the OS settings may change while the app runs.
package dispatch

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-ctap/biobridge/pkg/backend"
	"github.com/go-ctap/biobridge/pkg/backend/nativebio"
	"github.com/go-ctap/biobridge/pkg/backend/stub"
	"github.com/go-ctap/biobridge/pkg/backend/trustzone"
	"github.com/go-ctap/biobridge/pkg/bridge"
	"github.com/go-ctap/biobridge/pkg/options"
	"github.com/go-ctap/biobridge/pkg/vault"
)

const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
	PlatformWeb     = "web"
)

// Detector reports the platform name for a call.
type Detector interface {
	Platform(ctx context.Context) string
}

type DetectorFunc func(ctx context.Context) string

func (f DetectorFunc) Platform(ctx context.Context) string {
	return f(ctx)
}

// DefaultDetector returns override when set, runtime.GOOS otherwise.
func DefaultDetector(override string) Detector {
	platform := strings.ToLower(strings.TrimSpace(override))
	if platform == "" {
		platform = runtime.GOOS
	}
	return DetectorFunc(func(context.Context) string {
		return platform
	})
}

// connState is implemented by bridge.Client.
type connState interface {
	Err() error
}

// DialFunc connects to the native host. It must return a nil Caller with a
// non-nil error, never a typed nil.
type DialFunc func(ctx context.Context) (bridge.Caller, error)

// RedialInterval is the minimum time between two dial attempts.
const RedialInterval = 5 * time.Second

type Dispatcher struct {
	mu       sync.Mutex
	caller   bridge.Caller
	dial     DialFunc
	lastDial time.Time

	fallback vault.Storage
	detector Detector
	opts     []options.Option
	logger   *slog.Logger
	now      func() time.Time
}

var _ backend.Resolver = (*Dispatcher)(nil)

// New returns a dispatcher over caller, which may be nil when no native bridge
// is connected. fallback serves credential storage when the resolved backend has
// none; nil disables the fallback.
func New(caller bridge.Caller, fallback vault.Storage, opts ...options.Option) *Dispatcher {
	oo := options.NewOptions(opts...)

	return &Dispatcher{
		caller:   caller,
		fallback: fallback,
		detector: DefaultDetector(oo.Platform),
		opts:     opts,
		logger:   oo.Logger,
		now:      oo.Now,
	}
}

// WithDialer lets the dispatcher reconnect when the bridge is missing or went down.
// Attempts are made lazily on resolution, at most once per RedialInterval.
func (d *Dispatcher) WithDialer(dial DialFunc) *Dispatcher {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dial = dial
	return d
}

// WithDetector replaces platform detection.
func (d *Dispatcher) WithDetector(detector Detector) *Dispatcher {
	d.detector = detector
	return d
}

func (d *Dispatcher) Resolve(ctx context.Context) backend.Backend {
	platform := d.detector.Platform(ctx)

	caller := d.connected(ctx)
	if caller == nil {
		d.logger.Debug("dispatch: no native bridge, using stub", "platform", platform)
		return stub.New()
	}

	switch platform {
	case PlatformAndroid:
		return trustzone.New(caller, d.opts...)
	case PlatformIOS:
		return nativebio.New(caller, d.opts...)
	default:
		d.logger.Debug("dispatch: unsupported platform, using stub", "platform", platform)
		return stub.New()
	}
}

// Vault returns the credential vault for the backend resolved for this call.
func (d *Dispatcher) Vault(ctx context.Context) *vault.Vault {
	return vault.New(d.Resolve(ctx).Storage(), d.fallback, d.opts...)
}

// Platform reports the platform the next call will be resolved for.
func (d *Dispatcher) Platform(ctx context.Context) string {
	return d.detector.Platform(ctx)
}

// Close closes the current bridge connection, if the dispatcher holds one that can be closed.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.caller.(io.Closer)
	if !ok {
		return nil
	}
	d.caller = nil
	return c.Close()
}

// connected returns a live caller, redialling when allowed, or nil.
func (d *Dispatcher) connected(ctx context.Context) bridge.Caller {
	d.mu.Lock()
	defer d.mu.Unlock()

	if alive(d.caller) {
		return d.caller
	}
	if d.dial == nil {
		return nil
	}
	now := d.now()
	if !d.lastDial.IsZero() && now.Sub(d.lastDial) < RedialInterval {
		return nil
	}
	d.lastDial = now

	caller, err := d.dial(ctx)
	if err != nil {
		d.logger.Debug("dispatch: cannot reach native bridge", "error", err)
		return nil
	}
	if c, ok := d.caller.(io.Closer); ok {
		_ = c.Close()
	}
	d.logger.Info("dispatch: native bridge connected")
	d.caller = caller
	return caller
}

func alive(caller bridge.Caller) bool {
	if caller == nil {
		return false
	}
	if cs, ok := caller.(connState); ok && cs.Err() != nil {
		return false
	}
	return true
}
