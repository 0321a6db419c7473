// Package config loads the daemon settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-ctap/biobridge/pkg/options"
	"github.com/joho/godotenv"
)

// Fallback selects the storage used when the platform offers no secure storage.
type Fallback string

const (
	FallbackKeyring Fallback = "keyring"
	FallbackLocal   Fallback = "local"
	FallbackNone    Fallback = "none"
)

var ErrInvalid = errors.New("config: invalid value")

type Config struct {
	Platform        string        `env:"BIOBRIDGE_PLATFORM"`
	BridgeAddr      string        `env:"BIOBRIDGE_BRIDGE_ADDR"`
	ListenAddr      string        `env:"BIOBRIDGE_LISTEN_ADDR" envDefault:"127.0.0.1:8765"`
	StatePath       string        `env:"BIOBRIDGE_STATE_PATH" envDefault:"biobridge.db"`
	Service         string        `env:"BIOBRIDGE_SERVICE"`
	Fallback        Fallback      `env:"BIOBRIDGE_FALLBACK" envDefault:"keyring"`
	BackendURL      string        `env:"BIOBRIDGE_BACKEND_URL"`
	LockoutCooldown time.Duration `env:"BIOBRIDGE_LOCKOUT_COOLDOWN" envDefault:"30s"`
	AllowedOrigins  []string      `env:"BIOBRIDGE_ALLOWED_ORIGINS" envSeparator:","`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads an optional .env file, then the environment.
func Load(dotenv ...string) (Config, error) {
	if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if cfg.Service == "" {
		cfg.Service = options.DefaultService
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Fallback {
	case FallbackKeyring, FallbackLocal, FallbackNone:
	default:
		return fmt.Errorf("%w: BIOBRIDGE_FALLBACK %q", ErrInvalid, c.Fallback)
	}
	switch c.Platform {
	case "", "android", "ios", "web":
	default:
		return fmt.Errorf("%w: BIOBRIDGE_PLATFORM %q", ErrInvalid, c.Platform)
	}
	if c.LockoutCooldown < 0 {
		return fmt.Errorf("%w: BIOBRIDGE_LOCKOUT_COOLDOWN %s", ErrInvalid, c.LockoutCooldown)
	}
	return nil
}

// Logger builds the slog handler named by LOG_FORMAT at LOG_LEVEL.
func (c Config) Logger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		lvl = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}

	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// Options turns the settings shared with the library into functional options.
func (c Config) Options(logger *slog.Logger) []options.Option {
	opts := []options.Option{
		options.WithLogger(logger),
		options.WithService(c.Service),
		options.WithLockoutCooldown(c.LockoutCooldown),
	}
	if c.Platform != "" {
		opts = append(opts, options.WithPlatform(c.Platform))
	}
	return opts
}
