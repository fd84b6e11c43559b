package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/cryptoscreener/internal/cache/redis"
	"github.com/alanyoungcy/cryptoscreener/internal/config"
	"github.com/alanyoungcy/cryptoscreener/internal/domain"
	"github.com/alanyoungcy/cryptoscreener/internal/notify"
	"github.com/alanyoungcy/cryptoscreener/internal/platform/binance"
	"github.com/alanyoungcy/cryptoscreener/internal/platform/synthetic"
	"github.com/alanyoungcy/cryptoscreener/internal/store/postgres"
)

// Dependencies bundles every dependency the application modes need. Optional
// backends stay nil when disabled in the configuration.
type Dependencies struct {
	// Source is the market-data provider; nil in api mode.
	Source domain.TickerSource

	// Caches (redis)
	PublicationCache domain.PublicationCache
	LedgerMirror     domain.LedgerMirror
	SignalBus        domain.SignalBus
	RateLimiter      domain.RateLimiter
	LockManager      domain.LockManager

	// Stores (postgres)
	AuditStore domain.AuditStore

	// Notifications
	Notifier *notify.Notifier

	// Probes are backend health checks keyed by backend name.
	Probes map[string]func(ctx context.Context) error
}

// newSource builds the configured ticker source.
func newSource(cfg *config.Config) (domain.TickerSource, error) {
	switch cfg.Screener.Provider {
	case "binance":
		return binance.NewClient(cfg.Provider.BaseURL), nil
	case "synthetic":
		return synthetic.New(cfg.Screener.SyntheticVolatility / 100), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Screener.Provider)
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Probes: make(map[string]func(ctx context.Context) error)}

	if cfg.Mode != "api" {
		src, err := newSource(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		deps.Source = src
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PublicationCache = redis.NewPublicationCache(redisClient, cfg.Redis.PublicationTTL.Duration)
		deps.LedgerMirror = redis.NewLedgerMirror(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.Probes["redis"] = redisClient.Ping
		logger.InfoContext(ctx, "redis connected", slog.String("addr", cfg.Redis.Addr))
	}

	// --- PostgreSQL (audit log) ---
	if cfg.Postgres.Enabled {
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
			n, err := pgClient.RunMigrations(ctx)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
			logger.InfoContext(ctx, "postgres migrations applied", slog.Int("applied", n))
		}
		deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
		deps.Probes["postgres"] = pgClient.Ping
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
