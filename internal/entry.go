// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/postwriter/internal/api"
	"github.com/starford/postwriter/internal/document"
	"github.com/starford/postwriter/internal/mcpserver"
	"github.com/starford/postwriter/internal/preview"
	"github.com/starford/postwriter/internal/sse"
	"github.com/starford/postwriter/internal/storage"
	"github.com/starford/postwriter/internal/watcher"
)

// NewLogger returns a structured JSON logger writing to w.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// OpenProvider opens the storage provider selected by cfg. The returned
// close function releases it.
func OpenProvider(cfg StorageConfig) (storage.Provider, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case storage.DriverSQLite:
		db, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("init sqlite storage: %w", err)
		}
		return db, db.Close, nil
	case storage.DriverFile, "":
		// Ensure storage directory exists.
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create storage dir: %w", err)
		}
		fs, err := storage.NewFS(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("init storage: %w", err)
		}
		return fs, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// OpenStore opens the configured provider and loads the document from it.
func OpenStore(ctx context.Context, cfg *Config, logger *slog.Logger) (*document.Store, storage.Provider, func() error, error) {
	provider, closeFn, err := OpenProvider(cfg.Storage)
	if err != nil {
		return nil, nil, nil, err
	}
	store := document.New(provider, logger)
	if err := store.Load(ctx); err != nil {
		_ = closeFn()
		return nil, nil, nil, err
	}
	return store, provider, closeFn, nil
}

func (a *application) openStore(ctx context.Context, logger *slog.Logger) (*document.Store, storage.Provider, func() error, error) {
	if a.provider == nil {
		return OpenStore(ctx, a.config, logger)
	}
	store := document.New(a.provider, logger)
	if err := store.Load(ctx); err != nil {
		return nil, nil, nil, err
	}
	return store, a.provider, func() error { return nil }, nil
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// bodyChange reports whether a change may alter the rendered preview.
func bodyChange(kind document.ChangeKind) bool {
	return kind == document.BodyUpdated || kind == document.DocumentReloaded
}

// NewHTTPHandler builds the root router: health endpoints, the API under
// /api and the SSE stream at /api/events.
func NewHTTPHandler(cfg *Config, store *document.Store, broker *sse.Broker) http.Handler {
	h := api.NewHandler(store, preview.New(), cfg.Export.Legacy)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", readyHandler(store, broker))

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	return r
}

// readyHandler reports the current document revision and the number of
// connected event streams.
func readyHandler(store *document.Store, broker *sse.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := struct {
			Status   string `json:"status"`
			Revision string `json:"revision"`
			Clients  int    `json:"clients"`
		}{Status: "ok", Revision: store.Revision()}
		if broker != nil {
			resp.Clients = broker.ClientCount()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// closeBroker tells connected editors the server is going away, then ends
// their streams.
func closeBroker(broker *sse.Broker) {
	broker.Publish(sse.Event{Type: sse.ServerShutdown, Data: map[string]string{}})
	broker.Close()
}

// Run starts the HTTP service with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := NewLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("sqlite_path", cfg.Storage.SQLitePath),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, provider, closeStore, err := app.openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// SSE broker.
	broker := sse.NewBroker(cfg.Events.PreviewThrottle)
	defer broker.Close()
	store.OnChange(func(c document.Change) {
		broker.PublishDocumentEvent(string(c.Kind), c, bodyChange(c.Kind))
	})

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: NewHTTPHandler(cfg, store, broker),
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Reload the document when the snapshot file is edited elsewhere.
	if fs, ok := provider.(*storage.FS); ok && cfg.Storage.Watch {
		g.Go(func() error {
			if err := watcher.Watch(gCtx, store, fs.Path(), logger, nil); err != nil {
				logger.Warn("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// SSE streams only end when the broker closes them.
		closeBroker(broker)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr so they
// never mix with the protocol stream.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := NewLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	store, _, closeStore, err := app.openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	logger.Info("MCP server starting on stdio", slog.String("storage_driver", cfg.Storage.Driver))
	return mcpserver.New(store, cfg.Export.Legacy).ServeStdio()
}
