package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SCREENER_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	normalize(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SCREENER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Screener ──
	setStringSlice(&cfg.Screener.Symbols, "SCREENER_SYMBOLS")
	setStr(&cfg.Screener.Provider, "SCREENER_PROVIDER")
	setDuration(&cfg.Screener.PollInterval, "SCREENER_POLL_INTERVAL")
	setDuration(&cfg.Screener.RequestTimeout, "SCREENER_REQUEST_TIMEOUT")
	setInt(&cfg.Screener.MaxConcurrency, "SCREENER_MAX_CONCURRENCY")
	setInt(&cfg.Screener.HistorySize, "SCREENER_HISTORY_SIZE")
	setInt(&cfg.Screener.MinHistory, "SCREENER_MIN_HISTORY")
	setDuration(&cfg.Screener.SignalTTL, "SCREENER_SIGNAL_TTL")
	setDuration(&cfg.Screener.MaxBackoff, "SCREENER_MAX_BACKOFF")
	setBool(&cfg.Screener.DistributedLock, "SCREENER_DISTRIBUTED_LOCK")
	setFloat64(&cfg.Screener.SyntheticVolatility, "SCREENER_SYNTHETIC_VOLATILITY")

	// ── Provider ──
	setStr(&cfg.Provider.BaseURL, "SCREENER_PROVIDER_BASE_URL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SCREENER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SCREENER_REDIS_ADDR")
	setStr(&cfg.Redis.Addr, "REDIS_URL") // platform convention
	setStr(&cfg.Redis.Password, "SCREENER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SCREENER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SCREENER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SCREENER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SCREENER_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "SCREENER_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.PublicationTTL, "SCREENER_REDIS_PUBLICATION_TTL")
	setInt64(&cfg.Redis.StreamMaxLen, "SCREENER_REDIS_STREAM_MAX_LEN")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SCREENER_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SCREENER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // platform convention
	setStr(&cfg.Postgres.Host, "SCREENER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SCREENER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SCREENER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SCREENER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SCREENER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SCREENER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SCREENER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SCREENER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SCREENER_POSTGRES_RUN_MIGRATIONS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SCREENER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SCREENER_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform convention
	setStringSlice(&cfg.Server.CORSOrigins, "SCREENER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SCREENER_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SCREENER_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "SCREENER_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SCREENER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SCREENER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SCREENER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SCREENER_NOTIFY_EVENTS")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "SCREENER_METRICS_ENABLED")
	setStr(&cfg.Metrics.Path, "SCREENER_METRICS_PATH")

	// ── Top-level ──
	setStr(&cfg.Mode, "SCREENER_MODE")
	setStr(&cfg.LogLevel, "SCREENER_LOG_LEVEL")
}

// normalize canonicalizes case-insensitive fields after all sources merged.
func normalize(cfg *Config) {
	for i, sym := range cfg.Screener.Symbols {
		cfg.Screener.Symbols[i] = strings.ToUpper(strings.TrimSpace(sym))
	}
	cfg.Screener.Provider = strings.ToLower(strings.TrimSpace(cfg.Screener.Provider))
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Provider.BaseURL = strings.TrimRight(cfg.Provider.BaseURL, "/")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
