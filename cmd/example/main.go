package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/go-ctap/biobridge/pkg/bridge"
	"github.com/go-ctap/biobridge/pkg/dispatch"
	"github.com/go-ctap/biobridge/pkg/localstore"
	"github.com/go-ctap/biobridge/pkg/options"
	"github.com/go-ctap/biobridge/pkg/prefs"
	"github.com/go-ctap/biobridge/pkg/restore"
	"github.com/go-ctap/biobridge/pkg/vault"
)

func main() {
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelDebug)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))
	ctx := context.Background()

	client, err := bridge.Dial(ctx, bridge.DefaultAddr,
		// Uncomment to force a platform when the host cannot be detected
		//options.WithPlatform(dispatch.PlatformAndroid),
		options.WithLogger(logger),
	)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = client.Close()
	}()

	kv, err := localstore.Open(":memory:")
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = kv.Close()
	}()

	d := dispatch.New(client, vault.NewLocalStorage(kv), options.WithLogger(logger))
	protocol := restore.New(d, prefs.New(kv), options.WithLogger(logger)).
		WithObserver(func(from, to restore.State) {
			fmt.Printf("%s -> %s\n", from, to)
		})

	capability := protocol.Prober().Probe(ctx)
	fmt.Printf("Platform: %s\n", d.Platform(ctx))
	fmt.Printf("Available: %t (%s, %s)\n", capability.Available, capability.Kind, capability.SecurityClass)
	if !capability.Available {
		fmt.Printf("Reason: %s\n", capability.Message)
		return
	}

	if _, err := protocol.Enroll(ctx, "user@example.com", `{"token":"demo","user":{"id":1}}`); err != nil {
		panic(err)
	}

	res := protocol.Restore(ctx, biotypes.PromptConfig{Title: "Biometric demo"})
	if !res.Restored() {
		fmt.Printf("Not restored: %s (retryable: %t)\n", res.Message, res.Retryable)
		return
	}

	cred := res.Credential.OrEmpty()
	fmt.Printf("Restored %s from %s storage\n", cred.IdentityKey, res.Storage.Protection)
}
