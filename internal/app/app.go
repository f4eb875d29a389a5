// Package app wires the asset lifecycle together and runs it in the
// configured mode: the HTTP API, the keeper, or both.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/actus/internal/actor"
	"github.com/alanyoungcy/actus/internal/config"
	"github.com/alanyoungcy/actus/internal/service"
)

// App owns the configuration, the logger and the cleanup functions that
// run in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from a validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies and blocks in the configured mode until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	svc := a.NewAssetService(deps)

	switch strings.ToLower(a.cfg.Mode) {
	case "server":
		return a.ServerMode(ctx, deps, svc)
	case "keeper":
		return a.KeeperMode(ctx, deps, svc)
	case "full", "memory":
		return a.FullMode(ctx, deps, svc)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// NewAssetService builds the actor and the service on top of deps.
func (a *App) NewAssetService(deps *Dependencies) *service.AssetService {
	act := actor.New(actor.Deps{
		Registry:   deps.Registry,
		Data:       deps.Data,
		Settlement: deps.Ledger,
		Locks:      deps.Locks,
		Engines:    deps.Engines,
		Bus:        deps.Bus,
		Audit:      deps.Audit,
		Notifier:   deps.Notifier,
	}, actor.Config{
		LockTTL: a.cfg.Engine.LockTTL.Duration,
		Horizon: a.cfg.Engine.Horizon.Duration,
	}, a.logger)

	return service.NewAssetService(
		act, deps.Registry, deps.Ledger, deps.Data, deps.Engines,
		a.cfg.Engine.Horizon.Duration, a.logger,
	)
}

// Close tears down resources in reverse registration order. Later calls
// are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
