package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-ctap/biobridge/internal/config"
	"github.com/go-ctap/biobridge/pkg/backendapi"
	"github.com/go-ctap/biobridge/pkg/bridge"
	"github.com/go-ctap/biobridge/pkg/dispatch"
	"github.com/go-ctap/biobridge/pkg/httpapi"
	"github.com/go-ctap/biobridge/pkg/localstore"
	"github.com/go-ctap/biobridge/pkg/options"
	"github.com/go-ctap/biobridge/pkg/prefs"
	"github.com/go-ctap/biobridge/pkg/restore"
	"github.com/go-ctap/biobridge/pkg/sugar"
	"github.com/go-ctap/biobridge/pkg/vault"
)

func main() {
	if err := run(); err != nil {
		slog.Error("biobridged: fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)
	opts := cfg.Options(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := localstore.Open(cfg.StatePath)
	if err != nil {
		return err
	}
	defer func() {
		_ = kv.Close()
	}()

	addr := cfg.BridgeAddr
	if addr == "" {
		addr = bridge.DefaultAddr
	}
	// Clients dialled here are closed when the daemon shuts down.
	clientOpts := append(opts[:len(opts):len(opts)], options.WithContext(ctx))
	dial := func(ctx context.Context) (bridge.Caller, error) {
		dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		client, err := bridge.Dial(dialCtx, addr, clientOpts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	// A nil interface, never a nil *bridge.Client, so the dispatcher sees "no bridge".
	var caller bridge.Caller
	if client, err := dial(ctx); err != nil {
		logger.Warn("biobridged: native host unreachable, will retry on demand", "addr", addr, "error", err)
	} else {
		caller = client
	}

	var fallback vault.Storage
	switch cfg.Fallback {
	case config.FallbackKeyring:
		fallback = vault.NewKeyringStorage(cfg.Service)
	case config.FallbackLocal:
		fallback = vault.NewLocalStorage(kv)
	}

	var api *backendapi.Client
	if cfg.BackendURL != "" {
		api = backendapi.NewClient(cfg.BackendURL, opts...)
	}

	d := dispatch.New(caller, fallback, opts...).WithDialer(dial)
	defer func() {
		_ = d.Close()
	}()

	p := prefs.New(kv)
	protocol := restore.New(d, p, opts...).
		WithObserver(func(from, to restore.State) {
			logger.Debug("biobridged: restore transition", "from", from, "to", to)
		})
	b := sugar.New(protocol, p, api, opts...)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.NewRouter(httpapi.NewHandler(b, logger), cfg.AllowedOrigins, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("biobridged: listening", "addr", cfg.ListenAddr, "fallback", cfg.Fallback)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("biobridged: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
