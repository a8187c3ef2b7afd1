package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/polyquoter/internal/blob/s3"
	"github.com/alanyoungcy/polyquoter/internal/cache/redis"
	"github.com/alanyoungcy/polyquoter/internal/config"
	"github.com/alanyoungcy/polyquoter/internal/domain"
	"github.com/alanyoungcy/polyquoter/internal/notify"
	"github.com/alanyoungcy/polyquoter/internal/server/handler"
	"github.com/alanyoungcy/polyquoter/internal/store/postgres"
)

// Dependencies bundles the optional infrastructure a mode may use. Nil
// fields are disabled in the configuration.
type Dependencies struct {
	AuditStore  *postgres.AuditStore
	QuoteMirror *redis.QuoteMirror
	MarketLock  *redis.MarketLock
	Blobs       *s3blob.Writer
	Notifier    *notify.Notifier

	// Checks are run by the health endpoint.
	Checks map[string]handler.Check
}

// Audit returns the audit store as a domain.AuditStore, or an untyped nil.
func (d *Dependencies) Audit() domain.AuditStore {
	if d.AuditStore == nil {
		return nil
	}
	return d.AuditStore
}

// Sinks returns the configured quote observers.
func (d *Dependencies) Sinks() []domain.QuoteSink {
	var sinks []domain.QuoteSink
	if d.QuoteMirror != nil {
		sinks = append(sinks, d.QuoteMirror)
	}
	if d.AuditStore != nil {
		sinks = append(sinks, d.AuditStore)
	}
	return sinks
}

func needsPostgres(cfg *config.Config) bool {
	return cfg.Postgres.Enabled || strings.EqualFold(cfg.Mode, config.ModeArchive)
}

func needsS3(cfg *config.Config) bool {
	return strings.EqualFold(cfg.Mode, config.ModeArchive)
}

// Wire builds every enabled dependency and returns them with a cleanup
// function releasing them.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: map[string]handler.Check{}}

	// --- PostgreSQL ---
	if needsPostgres(cfg) {
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
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.Dial(ctx, redis.Config{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLS:        cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.QuoteMirror = redis.NewQuoteMirror(redisClient, cfg.Redis.QuoteTTL.Duration)
		if cfg.Redis.MarketLock {
			deps.MarketLock = redis.NewMarketLock(redisClient, logger)
		}
		deps.Checks["redis"] = redisClient.Check
	}

	// --- S3 ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Blobs = s3blob.NewWriter(s3Client)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, "polyquoter"))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.Cooldown.Duration, logger)

	return deps, cleanup, nil
}
