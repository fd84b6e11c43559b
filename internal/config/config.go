// Package config defines the top-level configuration for the crypto screener
// and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SCREENER_* environment variables.
type Config struct {
	Screener ScreenerConfig `toml:"screener"`
	Provider ProviderConfig `toml:"provider"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ScreenerConfig controls the tick loop and the engine's windows.
type ScreenerConfig struct {
	// Symbols is the fixed universe in BASE/QUOTE form.
	Symbols []string `toml:"symbols"`
	// Provider selects the ticker source: "binance" or "synthetic".
	Provider       string   `toml:"provider"`
	PollInterval   duration `toml:"poll_interval"`
	RequestTimeout duration `toml:"request_timeout"`
	// MaxConcurrency caps in-flight fetches per tick; 0 is unbounded.
	MaxConcurrency int      `toml:"max_concurrency"`
	HistorySize    int      `toml:"history_size"`
	MinHistory     int      `toml:"min_history"`
	SignalTTL      duration `toml:"signal_ttl"`
	// MaxBackoff enables capped exponential backoff after failed ticks when
	// it exceeds PollInterval. Zero keeps a fixed cadence.
	MaxBackoff duration `toml:"max_backoff"`
	// DistributedLock guards each tick with a redis lock so only one engine
	// instance ticks at a time.
	DistributedLock bool `toml:"distributed_lock"`
	// SyntheticVolatility is the per-tick step size of the synthetic source,
	// in percent.
	SyntheticVolatility float64 `toml:"synthetic_volatility"`
}

// ProviderConfig holds market-data endpoints.
type ProviderConfig struct {
	BaseURL string `toml:"base_url"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled        bool     `toml:"enabled"`
	Addr           string   `toml:"addr"`
	Password       string   `toml:"password"`
	DB             int      `toml:"db"`
	PoolSize       int      `toml:"pool_size"`
	MaxRetries     int      `toml:"max_retries"`
	TLSEnabled     bool     `toml:"tls_enabled"`
	KeyPrefix      string   `toml:"key_prefix"`
	PublicationTTL duration `toml:"publication_ttl"`
	StreamMaxLen   int64    `toml:"stream_max_len"`
}

// PostgresConfig holds PostgreSQL connection parameters for the audit log.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit is requests per RateWindow per client; 0 disables limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// DefaultSymbols is the default screener universe.
var DefaultSymbols = []string{
	"BTC/USDT", "ETH/USDT", "BNB/USDT", "SOL/USDT", "XRP/USDT",
	"ADA/USDT", "DOGE/USDT", "AVAX/USDT", "DOT/USDT", "LINK/USDT",
	"TRX/USDT", "LTC/USDT", "ATOM/USDT", "UNI/USDT", "NEAR/USDT",
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Screener: ScreenerConfig{
			Symbols:             append([]string(nil), DefaultSymbols...),
			Provider:            "binance",
			PollInterval:        duration{10 * time.Second},
			RequestTimeout:      duration{5 * time.Second},
			HistorySize:         100,
			MinHistory:          20,
			SignalTTL:           duration{24 * time.Hour},
			SyntheticVolatility: 0.4,
		},
		Provider: ProviderConfig{
			BaseURL: "https://api.binance.com",
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			PoolSize:       10,
			MaxRetries:     3,
			PublicationTTL: duration{10 * time.Minute},
			StreamMaxLen:   1000,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "screener",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Server: ServerConfig{
			Enabled:    true,
			Port:       8080,
			RateLimit:  120,
			RateWindow: duration{time.Minute},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"full":   true,
	"engine": true,
	"api":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validProviders = map[string]bool{
	"binance":   true,
	"synthetic": true,
}

var validEvents = map[string]bool{
	"signal_activated": true,
	"signal_cleared":   true,
	"feed_down":        true,
	"feed_recovered":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, engine, api)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	s := c.Screener
	if len(s.Symbols) == 0 {
		errs = append(errs, "screener: symbols must not be empty")
	}
	seen := make(map[string]bool, len(s.Symbols))
	for _, sym := range s.Symbols {
		base, quote, ok := strings.Cut(sym, "/")
		if !ok || base == "" || quote == "" {
			errs = append(errs, fmt.Sprintf("screener: symbol %q must be BASE/QUOTE", sym))
			continue
		}
		if seen[sym] {
			errs = append(errs, fmt.Sprintf("screener: duplicate symbol %q", sym))
		}
		seen[sym] = true
	}
	if !validProviders[strings.ToLower(s.Provider)] {
		errs = append(errs, fmt.Sprintf("screener: unknown provider %q (valid: binance, synthetic)", s.Provider))
	}
	if s.PollInterval.Duration < time.Second {
		errs = append(errs, "screener: poll_interval must be >= 1s")
	}
	if s.RequestTimeout.Duration <= 0 {
		errs = append(errs, "screener: request_timeout must be > 0")
	} else if s.RequestTimeout.Duration > s.PollInterval.Duration {
		errs = append(errs, "screener: request_timeout must not exceed poll_interval")
	}
	if s.MaxConcurrency < 0 {
		errs = append(errs, "screener: max_concurrency must be >= 0")
	}
	if s.HistorySize < 20 {
		errs = append(errs, "screener: history_size must be >= 20")
	}
	if s.MinHistory < 10 || s.MinHistory > s.HistorySize {
		errs = append(errs, "screener: min_history must be between 10 and history_size")
	}
	if s.SignalTTL.Duration <= 0 {
		errs = append(errs, "screener: signal_ttl must be > 0")
	}
	if s.MaxBackoff.Duration < 0 {
		errs = append(errs, "screener: max_backoff must be >= 0")
	}
	if s.DistributedLock && !c.Redis.Enabled {
		errs = append(errs, "screener: distributed_lock requires redis.enabled")
	}

	if strings.EqualFold(s.Provider, "binance") {
		if u, err := url.Parse(c.Provider.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("provider: base_url %q is not an absolute URL", c.Provider.BaseURL))
		}
	}

	mode := strings.ToLower(c.Mode)
	if (mode == "api" || mode == "engine") && !c.Redis.Enabled {
		errs = append(errs, "redis: enabled is required for mode "+mode)
	}
	if mode == "api" && !c.Server.Enabled {
		errs = append(errs, "server: enabled is required for mode api")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.StreamMaxLen < 1 {
			errs = append(errs, "redis: stream_max_len must be >= 1")
		}
	}

	if c.Postgres.Enabled {
		if c.Postgres.DSN == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, ev := range c.Notify.Events {
		if !validEvents[ev] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q", ev))
		}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, "metrics: path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
