package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/actus/internal/keeper"
	"github.com/alanyoungcy/actus/internal/server"
	"github.com/alanyoungcy/actus/internal/server/handler"
	"github.com/alanyoungcy/actus/internal/server/ws"
	"github.com/alanyoungcy/actus/internal/service"
)

const shutdownTimeout = 10 * time.Second

// ServerMode serves the HTTP and websocket API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies, svc *service.AssetService) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, svc)
	return g.Wait()
}

// KeeperMode progresses due assets and runs the archive job.
func (a *App) KeeperMode(ctx context.Context, deps *Dependencies, svc *service.AssetService) error {
	a.logger.InfoContext(ctx, "starting keeper mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startKeeper(ctx, g, deps, svc)
	return g.Wait()
}

// FullMode runs the API and the keeper in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies, svc *service.AssetService) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, svc)
	a.startKeeper(ctx, g, deps, svc)
	return g.Wait()
}

func (a *App) startKeeper(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *service.AssetService) {
	k := keeper.New(svc, deps.Archiver, deps.Notifier, keeper.Config{
		Interval:     a.cfg.Keeper.Interval.Duration,
		Concurrency:  a.cfg.Keeper.Concurrency,
		BatchSize:    a.cfg.Keeper.BatchSize,
		ArchiveCron:  a.cfg.Keeper.ArchiveCron,
		ArchiveAfter: a.cfg.Keeper.ArchiveAfter.Duration,
	}, a.logger)
	if deps.Archiver == nil && a.cfg.Keeper.ArchiveCron != "" {
		a.logger.InfoContext(ctx, "archive job disabled: s3 is not enabled")
	}
	g.Go(func() error {
		return k.Run(ctx)
	})
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *service.AssetService) {
	hub := ws.NewHub(deps.Bus, a.cfg.Mode, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:      handler.NewHealthHandler(a.cfg.Mode, deps.Checks, a.logger),
		Assets:      handler.NewAssetHandler(svc, a.logger),
		Data:        handler.NewDataHandler(svc, a.logger),
		Settlements: handler.NewSettlementHandler(svc, a.logger),
		Schedule:    handler.NewScheduleHandler(svc, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			a.logger.WarnContext(shutCtx, "http shutdown", slog.String("error", err.Error()))
		}
		return nil
	})
}
