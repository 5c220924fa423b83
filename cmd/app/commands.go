package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/atotto/clipboard"
	"github.com/urfave/cli/v3"

	"github.com/starford/postwriter/internal"
	"github.com/starford/postwriter/internal/document"
	"github.com/starford/postwriter/internal/serializer"
	"github.com/starford/postwriter/internal/storage"
)

// withStore loads the configured document and runs fn against it. CLI logs
// go to stderr so stdout carries only command output.
func withStore(ctx context.Context, cmd *cli.Command, fn func(*internal.Config, *document.Store, storage.Provider) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)
	store, provider, closeStore, err := internal.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(cfg, store, provider)
}

func copyAction(ctx context.Context, cmd *cli.Command) error {
	return withStore(ctx, cmd, func(cfg *internal.Config, store *document.Store, _ storage.Provider) error {
		legacy := cfg.Export.Legacy
		if cmd.IsSet("legacy") {
			legacy = cmd.Bool("legacy")
		}
		out := render(store, legacy)
		if cmd.Bool("stdout") {
			_, err := io.WriteString(os.Stdout, out)
			return err
		}
		if err := clipboard.WriteAll(out); err != nil {
			return fmt.Errorf("copy to clipboard: %w", err)
		}
		fmt.Fprintln(os.Stderr, "copied to clipboard")
		return nil
	})
}

func exportAction(ctx context.Context, cmd *cli.Command) error {
	return withStore(ctx, cmd, func(_ *internal.Config, store *document.Store, _ storage.Provider) error {
		data, err := serializer.ExportJSON(store.Snapshot().Fields)
		if err != nil {
			return err
		}
		path := cmd.String("output")
		if path == "" {
			_, err = os.Stdout.Write(data)
			return err
		}
		return os.WriteFile(path, data, 0o644)
	})
}

func importAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("import: file argument is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return withStore(ctx, cmd, func(_ *internal.Config, store *document.Store, _ storage.Provider) error {
		n, err := store.Import(ctx, data)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		slog.Info("imported fields", slog.Int("count", n), slog.String("file", path))
		return nil
	})
}

func migrateAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("migrate: file argument is required")
	}
	return withStore(ctx, cmd, func(_ *internal.Config, _ *document.Store, provider storage.Provider) error {
		n, err := migrate(ctx, path, provider)
		if err != nil {
			return err
		}
		slog.Info("migrated legacy dump", slog.Int("fields", n), slog.String("file", path))
		return nil
	})
}

func render(store *document.Store, legacy bool) string {
	snap := store.Snapshot()
	return serializer.Markdown(snap.Fields, snap.Body, serializer.Options{Legacy: legacy})
}

// migrate decodes a local-storage dump (a JSON object of key to string) and
// saves it through p, replacing the stored document.
func migrate(ctx context.Context, path string, p storage.Provider) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("migrate: %w", err)
	}
	var kv map[string]string
	if err := json.Unmarshal(data, &kv); err != nil {
		return 0, fmt.Errorf("migrate: %s is not a local-storage dump: %w", path, err)
	}
	snap := storage.DecodeLegacy(kv)
	if err := p.Save(ctx, snap); err != nil {
		return 0, fmt.Errorf("migrate: %w", err)
	}
	return len(snap.Fields), nil
}
