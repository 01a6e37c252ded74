// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
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

	"github.com/starford/folio/internal/api"
	"github.com/starford/folio/internal/identity"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/links"
	"github.com/starford/folio/internal/mcpserver"
	"github.com/starford/folio/internal/profile"
	"github.com/starford/folio/internal/publish"
	"github.com/starford/folio/internal/render"
	"github.com/starford/folio/internal/sse"
	"github.com/starford/folio/internal/storage"
	"github.com/starford/folio/internal/upload"
	"github.com/starford/folio/internal/vault"
)

// App holds the wired components shared by the HTTP server, the MCP server
// and one-shot CLI commands.
type App struct {
	Config    *Config
	Logger    *slog.Logger
	DB        *index.DB
	Store     *storage.FS
	Vault     *vault.Service
	Profiles  *profile.Store
	Publisher *publish.Publisher
	Broker    *sse.Broker
}

// Open builds every component from the configuration and syncs the index
// with the vault. Callers must Close the returned App.
func Open(opts ...Option) (*App, error) {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = newLogger(os.Stdout, cfg.App.LogLevel)
		slog.SetDefault(logger)
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("state_dir", cfg.State.Dir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	for _, dir := range []string{cfg.Vault.Path, cfg.State.Dir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	state, err := storage.NewFS(cfg.State.Dir)
	if err != nil {
		return nil, fmt.Errorf("init state: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	profiles, err := profile.OpenStore(cfg.State.ProfilesPath())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open profiles: %w", err)
	}

	v := vault.NewService(store, db, cfg.Frontmatter.Keys(), logger)
	if err := v.Sync(); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	broker := sse.NewBroker(cfg.Events.LinksThrottle)

	renderer := render.New(cfg.Render.Concurrency)
	ids := identity.New(v, cfg.Frontmatter.UIDKey, logger)
	resolver := links.New(v, ids, renderer, logger)
	publisher := publish.New(v, profiles, ids, resolver, state, upload.NewFactory(app.runner, logger),
		publish.WithLogger(logger),
		publish.WithRenderer(renderer),
		publish.WithObserver(broker),
	)

	return &App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Store:     store,
		Vault:     v,
		Profiles:  profiles,
		Publisher: publisher,
		Broker:    broker,
	}, nil
}

// Close releases the index and stops the event broker.
func (a *App) Close() error {
	a.Broker.Close()
	return a.DB.Close()
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Handler returns the HTTP handler: health checks plus the API under /api.
func (a *App) Handler() http.Handler {
	cfg := a.Config

	svc := api.NewService(a.Profiles, a.Publisher, a.Vault)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, a.Broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := a.DB.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)
	return r
}

// Run starts the HTTP server and the vault watcher and blocks until a
// shutdown signal or ctx cancellation.
func Run(ctx context.Context, opts ...Option) error {
	a, err := Open(opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.Config
	logger := a.Logger

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Keep the index current and tell SSE clients about vault changes.
	g.Go(func() error {
		if err := index.Watch(gCtx, a.DB, a.Store, cfg.Frontmatter.Keys(), a.Store.Root(), logger, a.Broker.PublishNoteEvent); err != nil {
			logger.Error("watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr so they
// never interleave with the protocol stream.
func RunMCP(_ context.Context, opts ...Option) error {
	a := &application{}
	for _, opt := range opts {
		opt(a)
	}
	if a.config == nil {
		return fmt.Errorf("config is required")
	}
	if a.logger == nil {
		opts = append(opts, WithLogger(newLogger(os.Stderr, a.config.App.LogLevel)))
	}

	app, err := Open(opts...)
	if err != nil {
		return err
	}
	defer app.Close()

	return mcpserver.New(app.Profiles, app.Publisher).ServeStdio()
}
