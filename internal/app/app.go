package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/sophialabs/mimic/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/mimic/internal/infrastructure/outbound/logging"
	"github.com/sophialabs/mimic/internal/infrastructure/wiring"
)

// App is the thin lifecycle manager that delegates dependency construction to wiring.Container.
type App struct {
	cfg        Config
	container  *wiring.Container
	httpServer *http.Server
}

// New constructs the application by creating a logger, wiring infrastructure
// components via the container, and setting up the HTTP server.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	handler, err := logging.NewHandler(cfg.LogFormat, cfg.LogLevel, os.Stdout)
	if err != nil {
		return nil, err
	}
	logger := logging.New(slog.New(handler))

	container, err := wiring.New(wiring.Params{
		RootDir:        cfg.RootDir,
		Glob:           cfg.Glob,
		Port:           cfg.Port,
		TraceSize:      cfg.TraceSize,
		RegexCacheSize: cfg.RegexCacheSize,
		ScriptWorkers:  cfg.ScriptWorkers,
		StoreBackend:   cfg.StoreBackend,
		StoreDir:       cfg.StoreDir,
		TemplatePolicy: cfg.TemplatePolicy,
		DefaultEngine:  cfg.DefaultEngine,
		DefaultStatus:  cfg.DefaultStatus,
		TimeZone:       cfg.TimeZone,
		RateLimiterTTL: cfg.RateLimiterTTL,
		Config:         cfg.Values,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to wire infrastructure: %w", err)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      container.Server(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(handler, slog.LevelWarn),
	}

	return &App{
		cfg:        cfg,
		container:  container,
		httpServer: httpServer,
	}, nil
}

// Run executes the full application lifecycle: load resources, start watcher,
// serve HTTP, and handle graceful shutdown on SIGINT/SIGTERM or context cancellation.
func (a *App) Run(ctx context.Context) error {
	defer a.container.Close()

	logger := a.container.Logger()
	server := a.container.Server()

	idx, err := a.container.LoadResourcesUseCase().Execute(ctx)
	if err != nil {
		return fmt.Errorf("failed to load resources: %w", err)
	}
	server.Rebuild(idx)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !a.cfg.DisableWatcher {
		if watcher := a.setupWatcher(ctx); watcher != nil {
			defer watcher.Stop()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting mimic server", "addr", a.httpServer.Addr, "root", a.cfg.RootDir, "resources", idx.Len())
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func (a *App) setupWatcher(ctx context.Context) *filesystem.Watcher {
	logger := a.container.Logger()
	server := a.container.Server()
	loadUC := a.container.LoadResourcesUseCase()

	watcher, err := filesystem.NewWatcher(a.cfg.RootDir, a.cfg.WatcherDebounce, logger, func() {
		newIdx, err := loadUC.Execute(context.WithoutCancel(ctx))
		if err != nil {
			logger.Error("hot reload failed, keeping previous resources", "error", err)
			return
		}
		server.Rebuild(newIdx)
		logger.Info("hot reload complete", "resources", newIdx.Len())
	}, a.cfg.StoreDir)
	if err != nil {
		logger.Warn("file watcher not available", "error", err)
		return nil
	}

	watcher.Start()
	logger.Info("file watcher started", "root", a.cfg.RootDir)
	return watcher
}
