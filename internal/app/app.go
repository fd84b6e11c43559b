// Package app provides the top-level application lifecycle management for the
// crypto screener. It wires together all dependencies (ticker source, caches,
// audit store, notifications) and starts the goroutines of the configured
// operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/cryptoscreener/internal/config"
)

// runMode starts one operating mode and blocks until ctx is done.
type runMode func(a *App, ctx context.Context, deps *Dependencies) error

var modes = map[string]runMode{
	"full":   (*App).FullMode,
	"engine": (*App).EngineMode,
	"api":    (*App).APIMode,
}

// App is the root application object. It owns the configuration, logger, and
// the cleanup functions run in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies, then runs the configured mode until ctx is
// cancelled. Resources are released by Close, not by Run.
func (a *App) Run(ctx context.Context) error {
	run, ok := modes[a.cfg.Mode]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
	a.logger.InfoContext(ctx, "starting screener",
		slog.String("mode", a.cfg.Mode),
		slog.String("provider", a.cfg.Screener.Provider),
		slog.Int("symbols", len(a.cfg.Screener.Symbols)),
		slog.Duration("poll_interval", a.cfg.Screener.PollInterval.Duration),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.Bool("postgres", a.cfg.Postgres.Enabled),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return run(a, ctx, deps)
}

// Close releases everything Run acquired. Calling it again is a no-op.
func (a *App) Close() {
	if len(a.closers) == 0 {
		return
	}
	a.logger.Info("releasing resources")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
