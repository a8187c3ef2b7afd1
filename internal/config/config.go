// Package config defines the quoter's configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration. Fields come from a TOML file, then
// POLYQUOTER_* environment variables, then command-line flags.
type Config struct {
	Market     MarketConfig     `toml:"market"`
	Quote      QuoteConfig      `toml:"quote"`
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Feed       FeedConfig       `toml:"feed"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// MarketConfig identifies the question and its two outcome tokens.
type MarketConfig struct {
	QuestionID string `toml:"question_id"`
	YesTokenID string `toml:"yes_token_id"`
	NoTokenID  string `toml:"no_token_id"`
}

// QuoteConfig holds quoting parameters.
type QuoteConfig struct {
	Spread    decimal.Decimal `toml:"spread"`
	OrderSize int             `toml:"order_size"`
	MinShares decimal.Decimal `toml:"min_shares"`
	MinPrice  decimal.Decimal `toml:"min_price"`
	MaxPrice  decimal.Decimal `toml:"max_price"`
	TickSize  decimal.Decimal `toml:"tick_size"`
	PostSell  bool            `toml:"post_sell"`
}

// WalletConfig holds the signing key and the funding proxy address.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	Funder           string `toml:"funder"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds endpoints, chain parameters and optional
// pre-provisioned L2 API credentials.
type PolymarketConfig struct {
	ClobHost      string `toml:"clob_host"`
	WsURL         string `toml:"ws_url"`
	ChainID       int    `toml:"chain_id"`
	SignatureType int    `toml:"signature_type"`
	NegRisk       bool   `toml:"neg_risk"`
	FeeRateBps    int    `toml:"fee_rate_bps"`
	APIKey        string `toml:"api_key"`
	APISecret     string `toml:"api_secret"`
	APIPassphrase string `toml:"api_passphrase"`
}

// FeedConfig tunes the websocket session and reconnects. Backoff is off by
// default: a failed session is retried at once.
type FeedConfig struct {
	PingPeriod     duration `toml:"ping_period"`
	PongWait       duration `toml:"pong_wait"`
	Backoff        bool     `toml:"backoff"`
	BackoffInitial duration `toml:"backoff_initial"`
	BackoffMax     duration `toml:"backoff_max"`
}

// RedisConfig holds Redis connection parameters and the features using it.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	QuoteTTL   duration `toml:"quote_ttl"`
	MarketLock bool     `toml:"market_lock"`
	LockTTL    duration `toml:"lock_ttl"`
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls archive mode.
type ArchiveConfig struct {
	Prefix        string `toml:"prefix"`
	RetentionDays int    `toml:"retention_days"`
	Limit         int    `toml:"limit"`
	Prune         bool   `toml:"prune"`
}

// ServerConfig holds the status server parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	APIKey  string `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Cooldown          duration `toml:"cooldown"`
}

// duration lets TOML decode strings such as "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Modes.
const (
	ModeLive    = "live"
	ModePaper   = "paper"
	ModeArchive = "archive"
)

// Defaults returns a Config populated with default values.
func Defaults() Config {
	return Config{
		Quote: QuoteConfig{
			Spread:    decimal.RequireFromString("0.025"),
			OrderSize: 1,
			MinPrice:  decimal.RequireFromString("0.02"),
			MaxPrice:  decimal.RequireFromString("0.98"),
			TickSize:  decimal.RequireFromString("0.01"),
		},
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			WsURL:         "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ChainID:       137,
			SignatureType: 1,
		},
		Feed: FeedConfig{
			PingPeriod:     duration{50 * time.Second},
			PongWait:       duration{60 * time.Second},
			BackoffInitial: duration{500 * time.Millisecond},
			BackoffMax:     duration{30 * time.Second},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			QuoteTTL:   duration{24 * time.Hour},
			LockTTL:    duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "polyquoter",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "polyquoter-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 30,
			Limit:         100_000,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Events:   []string{"feed_failure", "lock_lost"},
			Cooldown: duration{5 * time.Minute},
		},
		Mode:     ModeLive,
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	ModeLive:    true,
	ModePaper:   true,
	ModeArchive: true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		add("unknown mode %q (valid: live, paper, archive)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	quoting := mode == ModeLive || mode == ModePaper
	if quoting {
		if c.Market.QuestionID == "" {
			add("market: question_id is required")
		}
		if c.Market.YesTokenID == "" || c.Market.NoTokenID == "" {
			add("market: yes_token_id and no_token_id are required")
		}
		if c.Market.YesTokenID != "" && c.Market.YesTokenID == c.Market.NoTokenID {
			add("market: yes_token_id and no_token_id must differ")
		}
		if c.Quote.Spread.IsNegative() {
			add("quote: spread must be >= 0")
		}
		if c.Quote.OrderSize < 1 {
			add("quote: order_size must be >= 1")
		}
		if !c.Quote.MinShares.IsPositive() {
			add("quote: min_shares must be > 0")
		}
		if c.Quote.MinPrice.IsNegative() || c.Quote.MaxPrice.GreaterThan(decimal.NewFromInt(1)) ||
			!c.Quote.MinPrice.LessThan(c.Quote.MaxPrice) {
			add("quote: need 0 <= min_price < max_price <= 1")
		}
		if c.Quote.TickSize.IsNegative() {
			add("quote: tick_size must be >= 0")
		}
		if c.Polymarket.WsURL == "" {
			add("polymarket: ws_url must not be empty")
		}
		if c.Feed.PingPeriod.Duration <= 0 || c.Feed.PongWait.Duration <= c.Feed.PingPeriod.Duration {
			add("feed: need 0 < ping_period < pong_wait")
		}
		if c.Feed.Backoff && (c.Feed.BackoffInitial.Duration <= 0 || c.Feed.BackoffMax.Duration < c.Feed.BackoffInitial.Duration) {
			add("feed: need 0 < backoff_initial <= backoff_max")
		}
	}

	if mode == ModeLive {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			add("wallet: either private_key or encrypted_key_path must be set for mode live")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			add("wallet: key_password is required when encrypted_key_path is set")
		}
		if c.Polymarket.SignatureType != 0 && c.Wallet.Funder == "" {
			add("wallet: funder is required for signature_type %d", c.Polymarket.SignatureType)
		}
		if c.Polymarket.ClobHost == "" {
			add("polymarket: clob_host must not be empty")
		}
		if c.Polymarket.ChainID <= 0 {
			add("polymarket: chain_id must be positive")
		}
		if c.Polymarket.SignatureType < 0 || c.Polymarket.SignatureType > 2 {
			add("polymarket: signature_type must be 0 (EOA), 1 (proxy) or 2 (safe), got %d", c.Polymarket.SignatureType)
		}
		k, s, p := c.Polymarket.APIKey != "", c.Polymarket.APISecret != "", c.Polymarket.APIPassphrase != ""
		if (k || s || p) && !(k && s && p) {
			add("polymarket: api_key, api_secret and api_passphrase must all be set together")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
		if c.Redis.MarketLock && c.Redis.LockTTL.Duration < 3*time.Second {
			add("redis: lock_ttl must be >= 3s")
		}
	}

	if c.Postgres.Enabled || mode == ModeArchive {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: need 0 <= pool_min_conns <= pool_max_conns")
		}
	}

	if mode == ModeArchive {
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			add("archive: retention_days must be >= 1")
		}
		if c.Archive.Limit < 0 {
			add("archive: limit must be >= 0")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		add("server: port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		add("notify: telegram_chat_id is required with telegram_token")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
