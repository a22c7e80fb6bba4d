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

	"github.com/starford/snix/internal/api"
	"github.com/starford/snix/internal/assist"
	"github.com/starford/snix/internal/backup"
	"github.com/starford/snix/internal/index"
	"github.com/starford/snix/internal/metrics"
	"github.com/starford/snix/internal/snippetservice"
	"github.com/starford/snix/internal/sse"
	"github.com/starford/snix/internal/storage"
)

// NewLogger builds the structured JSON logger used across the application.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// App is an opened store with everything built on top of it. The store lock
// is held until Close.
type App struct {
	Config  *Config
	Logger  *slog.Logger
	Store   storage.Provider
	Service *snippetservice.Service
	Backups *backup.Manager
	// Assist is nil unless assist.enabled is set.
	Assist *assist.Assistant
}

// Open takes the store lock, loads the store and wires the service, the
// backup manager and the assistant. Extra service options are applied last.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger, opts ...snippetservice.Option) (*App, error) {
	store, err := storage.Open(cfg.Store.Backend, cfg.Store.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	all := append([]snippetservice.Option{
		snippetservice.WithLogger(logger),
		snippetservice.WithRecentCapacity(cfg.Store.RecentCapacity),
	}, opts...)
	svc := snippetservice.New(store, index.New(cfg.Search.Weights), all...)
	if err := svc.Load(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("load store: %w", err)
	}

	sink, err := openSink(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init backups: %w", err)
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Service: svc,
		Backups: backup.NewManager(svc, sink, logger, cfg.Backup.BackupOptions()),
	}

	if cfg.Assist.Enabled {
		gen, err := assist.NewOllama(cfg.Assist.Host)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("init assist: %w", err)
		}
		app.Assist = assist.New(svc, gen, cfg.Assist.Model, logger)
	}
	return app, nil
}

// Close releases the store lock.
func (a *App) Close() error {
	return a.Store.Close()
}

func openSink(ctx context.Context, cfg *Config) (backup.Sink, error) {
	if s3 := cfg.Backup.S3; s3.Enabled() {
		return backup.NewS3Sink(ctx, backup.S3Config{
			Bucket:          s3.Bucket,
			Prefix:          s3.Prefix,
			Region:          s3.Region,
			Endpoint:        s3.Endpoint,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
			PathStyle:       s3.PathStyle,
		})
	}
	return backup.NewDirSink(cfg.BackupDir())
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = NewLogger(os.Stdout, cfg.App.LogLevel)
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.String("store_backend", cfg.Store.Backend),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker receives every applied change.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	a, err := Open(ctx, cfg, logger, snippetservice.WithChangeHook(broker.PublishChange))
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("Store opened",
		slog.String("location", a.Service.Location()),
		slog.String("backups", a.Backups.Location()),
		slog.Int("snippets", a.Service.Stats().Snippets))

	apiRouter := api.NewRouter(a.Service, api.RouterOptions{
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Events:      broker,
		Backups:     a.Backups,
		Assist:      a.Assist,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","version":%q}`, app.version)
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ok, err := a.Store.Verify(r.Context()); err != nil || !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"diverged"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(runCtx)

	// Reconcile with writes made outside this process.
	g.Go(func() error {
		return a.Service.Watch(gCtx)
	})

	if every := cfg.Backup.Interval; every > 0 {
		g.Go(func() error {
			logger.Info("Automatic backups enabled",
				slog.String("interval", every.String()),
				slog.Int("keep", cfg.Backup.Keep))
			return a.Backups.RunAuto(gCtx, every)
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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		stop()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
