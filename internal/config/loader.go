package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path over the defaults, loads a .env file
// if present and applies ACTUS_* overrides. An empty path skips the file.
// The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets operators inject secrets and per-host settings at
// deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.DSN, "ACTUS_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ACTUS_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ACTUS_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ACTUS_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ACTUS_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ACTUS_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ACTUS_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ACTUS_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ACTUS_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ACTUS_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "ACTUS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ACTUS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ACTUS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ACTUS_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ACTUS_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ACTUS_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "ACTUS_REDIS_NAMESPACE")

	setBool(&cfg.S3.Enabled, "ACTUS_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ACTUS_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ACTUS_S3_REGION")
	setStr(&cfg.S3.Bucket, "ACTUS_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ACTUS_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ACTUS_S3_SECRET_KEY")
	setStr(&cfg.S3.Prefix, "ACTUS_S3_PREFIX")
	setBool(&cfg.S3.UseSSL, "ACTUS_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ACTUS_S3_FORCE_PATH_STYLE")

	setInt(&cfg.Server.Port, "ACTUS_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ACTUS_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ACTUS_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ACTUS_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "ACTUS_SERVER_RATE_WINDOW")

	setDuration(&cfg.Keeper.Interval, "ACTUS_KEEPER_INTERVAL")
	setInt(&cfg.Keeper.Concurrency, "ACTUS_KEEPER_CONCURRENCY")
	setInt(&cfg.Keeper.BatchSize, "ACTUS_KEEPER_BATCH_SIZE")
	setStr(&cfg.Keeper.ArchiveCron, "ACTUS_KEEPER_ARCHIVE_CRON")
	setDuration(&cfg.Keeper.ArchiveAfter, "ACTUS_KEEPER_ARCHIVE_AFTER")

	setDuration(&cfg.Engine.Horizon, "ACTUS_ENGINE_HORIZON")
	setDuration(&cfg.Engine.LockTTL, "ACTUS_ENGINE_LOCK_TTL")

	setStr(&cfg.Notify.TelegramToken, "ACTUS_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ACTUS_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ACTUS_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ACTUS_NOTIFY_EVENTS")

	setStr(&cfg.Mode, "ACTUS_MODE")
	setStr(&cfg.LogLevel, "ACTUS_LOG_LEVEL")
}

// The helpers below only touch the target when the variable is set and
// parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
