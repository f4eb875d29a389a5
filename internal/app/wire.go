package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/actus/internal/blob/s3"
	"github.com/alanyoungcy/actus/internal/cache/redis"
	"github.com/alanyoungcy/actus/internal/config"
	"github.com/alanyoungcy/actus/internal/conventions"
	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/engine"
	"github.com/alanyoungcy/actus/internal/notify"
	"github.com/alanyoungcy/actus/internal/server/handler"
	"github.com/alanyoungcy/actus/internal/store/memory"
	"github.com/alanyoungcy/actus/internal/store/postgres"
)

// Registry is an asset registry that also supports archiving.
type Registry interface {
	domain.AssetRegistry
	s3blob.ClosedAssetStore
}

// Dependencies bundles the concrete collaborators the run modes need. It
// is built by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Registry    Registry
	Ledger      domain.SettlementLedger
	Audit       domain.AuditStore
	Data        domain.DataProvider
	Locks       domain.LockManager
	Bus         domain.SignalBus
	RateLimiter domain.RateLimiter

	Engines  *engine.Set
	Archiver domain.Archiver
	Notifier *notify.Notifier

	// Checks are reported by the health endpoint.
	Checks map[string]handler.Check
}

// Wire builds every dependency from cfg. In memory mode the in-process
// stores replace Postgres and Redis; S3 is wired whenever it is enabled.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	engines, err := BuildEngines(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: engines: %w", err)
	}
	deps.Engines = engines

	if cfg.InMemory() {
		deps.Registry = memory.NewRegistry()
		deps.Ledger = memory.NewLedger()
		deps.Audit = memory.NewAuditStore()
		deps.Data = memory.NewDataProvider()
		deps.Locks = memory.NewLockManager()
		deps.Bus = memory.NewSignalBus()
		logger.WarnContext(ctx, "running on in-memory stores; state is lost on exit")
	} else {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			applied, err := pgClient.RunMigrations(ctx)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
			if len(applied) > 0 {
				logger.InfoContext(ctx, "migrations applied", slog.Any("files", applied))
			}
		}

		pool := pgClient.Pool()
		deps.Registry = postgres.NewAssetRegistry(pool)
		deps.Ledger = postgres.NewSettlementLedger(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pgClient.Ping

		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Data = redis.NewDataProvider(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	}

	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			Prefix:         cfg.S3.Prefix,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.Registry,
			deps.Ledger,
			deps.Audit,
			logger,
		)
		deps.Checks["s3"] = s3Client.Health
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// BuildEngines registers the configured holiday calendars with the engines.
func BuildEngines(cfg *config.Config) (*engine.Set, error) {
	holidays, err := cfg.Holidays()
	if err != nil {
		return nil, err
	}
	cals := conventions.NewCalendarSet()
	for id, days := range holidays {
		cals.Register(conventions.CalendarID(id), conventions.NewHolidayCalendar(days...))
	}
	return engine.NewSet(engine.WithCalendars(cals)), nil
}
