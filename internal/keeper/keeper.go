// Package keeper drives asset progression on a timer and exports closed
// assets to cold storage on a cron schedule.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/actus/internal/actor"
	"github.com/alanyoungcy/actus/internal/domain"
)

// maxArchiveRounds caps the batches one archive run exports.
const maxArchiveRounds = 100

// Progressor is the slice of service.AssetService the keeper drives.
type Progressor interface {
	ListActive(ctx context.Context, limit, offset int) ([]domain.AssetSummary, error)
	ProgressDue(ctx context.Context, id domain.AssetID) ([]actor.ProgressResult, error)
}

// Alerter sends operator alerts. *notify.Notifier satisfies it.
type Alerter interface {
	NotifyAll(ctx context.Context, title, message string) error
}

// Config controls the sweep and archive cadence.
type Config struct {
	Interval    time.Duration
	Concurrency int
	BatchSize   int
	// ArchiveCron is a five-field cron expression; empty disables archiving.
	ArchiveCron  string
	ArchiveAfter time.Duration
}

// Stats summarises one sweep.
type Stats struct {
	Assets  int
	Steps   int
	Skipped int
	Failed  int
}

// Keeper progresses every active asset whose next event is due.
type Keeper struct {
	assets   Progressor
	archiver domain.Archiver
	alerts   Alerter
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Keeper. archiver and alerts may be nil.
func New(assets Progressor, archiver domain.Archiver, alerts Alerter, cfg Config, logger *slog.Logger) *Keeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 500
	}
	return &Keeper{
		assets:   assets,
		archiver: archiver,
		alerts:   alerts,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "keeper")),
	}
}

// Run sweeps immediately and then on every interval until ctx is done.
func (k *Keeper) Run(ctx context.Context) error {
	if k.archiver != nil && k.cfg.ArchiveCron != "" {
		c := cron.New()
		if _, err := c.AddFunc(k.cfg.ArchiveCron, func() { k.Archive(ctx) }); err != nil {
			return fmt.Errorf("keeper: archive schedule %q: %w", k.cfg.ArchiveCron, err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
		k.logger.InfoContext(ctx, "archive job scheduled", slog.String("cron", k.cfg.ArchiveCron))
	}

	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := k.Sweep(ctx); err != nil && ctx.Err() == nil {
			k.logger.ErrorContext(ctx, "sweep failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep runs ProgressDue on every active asset with bounded concurrency.
// Per-asset failures are logged and counted, not returned.
func (k *Keeper) Sweep(ctx context.Context) (Stats, error) {
	start := time.Now()
	ids, err := k.active(ctx)
	if err != nil {
		return Stats{}, err
	}

	var steps, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(k.cfg.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			results, err := k.assets.ProgressDue(gctx, id)
			steps.Add(int64(len(results)))
			switch {
			case err == nil:
			case benign(err):
				skipped.Add(1)
				k.logger.DebugContext(gctx, "asset skipped",
					slog.String("asset_id", id.Hex()),
					slog.String("reason", err.Error()),
				)
			default:
				failed.Add(1)
				k.logger.WarnContext(gctx, "asset progression failed",
					slog.String("asset_id", id.Hex()),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := Stats{
		Assets:  len(ids),
		Steps:   int(steps.Load()),
		Skipped: int(skipped.Load()),
		Failed:  int(failed.Load()),
	}
	k.logger.InfoContext(ctx, "sweep complete",
		slog.Int("assets", stats.Assets),
		slog.Int("steps", stats.Steps),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed),
		slog.Duration("elapsed", time.Since(start)),
	)
	return stats, ctx.Err()
}

// active collects ids up front so assets that close mid-sweep do not shift
// the pages.
func (k *Keeper) active(ctx context.Context) ([]domain.AssetID, error) {
	var ids []domain.AssetID
	for offset := 0; ; offset += k.cfg.BatchSize {
		page, err := k.assets.ListActive(ctx, k.cfg.BatchSize, offset)
		if err != nil {
			return nil, fmt.Errorf("keeper: list active: %w", err)
		}
		for _, s := range page {
			ids = append(ids, s.ID)
		}
		if len(page) < k.cfg.BatchSize {
			return ids, nil
		}
	}
}

// benign errors mean the asset will be retried on a later sweep.
func benign(err error) bool {
	return errors.Is(err, domain.ErrLockHeld) ||
		errors.Is(err, domain.ErrDataNotAvailable) ||
		errors.Is(err, domain.ErrEventNotYetDue) ||
		errors.Is(err, domain.ErrConcurrentUpdate) ||
		errors.Is(err, domain.ErrAssetFinalState) ||
		errors.Is(err, context.Canceled)
}

// Archive exports closed assets older than ArchiveAfter, batch by batch.
// A failure is logged and sent to the alert channels.
func (k *Keeper) Archive(ctx context.Context) int64 {
	if k.archiver == nil {
		return 0
	}
	before := k.now().Add(-k.cfg.ArchiveAfter)
	var total int64
	for range maxArchiveRounds {
		n, err := k.archiver.ArchiveClosedAssets(ctx, before)
		total += n
		if err != nil {
			k.logger.ErrorContext(ctx, "archive failed",
				slog.Int64("archived", total),
				slog.String("error", err.Error()),
			)
			if k.alerts != nil {
				msg := fmt.Sprintf("archive of assets closed before %s failed after %d assets: %v",
					before.Format(time.RFC3339), total, err)
				if aerr := k.alerts.NotifyAll(ctx, "Archive failed", msg); aerr != nil {
					k.logger.WarnContext(ctx, "archive alert failed", slog.String("error", aerr.Error()))
				}
			}
			return total
		}
		if n == 0 {
			break
		}
	}
	k.logger.InfoContext(ctx, "archive complete",
		slog.Int64("archived", total),
		slog.Time("before", before),
	)
	return total
}
