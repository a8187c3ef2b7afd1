package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load builds a Config from the defaults, the TOML file at path (skipped
// when path is empty), a .env file if present and POLYQUOTER_* environment
// variables. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose POLYQUOTER_* variable is set and
// non-empty, so secrets can be injected at deploy time.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setStr(&cfg.Market.QuestionID, "POLYQUOTER_MARKET_QUESTION_ID")
	setStr(&cfg.Market.YesTokenID, "POLYQUOTER_MARKET_YES_TOKEN_ID")
	setStr(&cfg.Market.NoTokenID, "POLYQUOTER_MARKET_NO_TOKEN_ID")

	// ── Quote ──
	setDecimal(&cfg.Quote.Spread, "POLYQUOTER_QUOTE_SPREAD")
	setInt(&cfg.Quote.OrderSize, "POLYQUOTER_QUOTE_ORDER_SIZE")
	setDecimal(&cfg.Quote.MinShares, "POLYQUOTER_QUOTE_MIN_SHARES")
	setDecimal(&cfg.Quote.MinPrice, "POLYQUOTER_QUOTE_MIN_PRICE")
	setDecimal(&cfg.Quote.MaxPrice, "POLYQUOTER_QUOTE_MAX_PRICE")
	setDecimal(&cfg.Quote.TickSize, "POLYQUOTER_QUOTE_TICK_SIZE")
	setBool(&cfg.Quote.PostSell, "POLYQUOTER_QUOTE_POST_SELL")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYQUOTER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.Funder, "POLYQUOTER_WALLET_FUNDER")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYQUOTER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYQUOTER_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYQUOTER_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.WsURL, "POLYQUOTER_POLYMARKET_WS_URL")
	setInt(&cfg.Polymarket.ChainID, "POLYQUOTER_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "POLYQUOTER_POLYMARKET_SIGNATURE_TYPE")
	setBool(&cfg.Polymarket.NegRisk, "POLYQUOTER_POLYMARKET_NEG_RISK")
	setInt(&cfg.Polymarket.FeeRateBps, "POLYQUOTER_POLYMARKET_FEE_RATE_BPS")
	setStr(&cfg.Polymarket.APIKey, "POLYQUOTER_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.APISecret, "POLYQUOTER_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.APIPassphrase, "POLYQUOTER_POLYMARKET_API_PASSPHRASE")

	// ── Feed ──
	setDuration(&cfg.Feed.PingPeriod, "POLYQUOTER_FEED_PING_PERIOD")
	setDuration(&cfg.Feed.PongWait, "POLYQUOTER_FEED_PONG_WAIT")
	setBool(&cfg.Feed.Backoff, "POLYQUOTER_FEED_BACKOFF")
	setDuration(&cfg.Feed.BackoffInitial, "POLYQUOTER_FEED_BACKOFF_INITIAL")
	setDuration(&cfg.Feed.BackoffMax, "POLYQUOTER_FEED_BACKOFF_MAX")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYQUOTER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYQUOTER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYQUOTER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYQUOTER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYQUOTER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYQUOTER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYQUOTER_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.QuoteTTL, "POLYQUOTER_REDIS_QUOTE_TTL")
	setBool(&cfg.Redis.MarketLock, "POLYQUOTER_REDIS_MARKET_LOCK")
	setDuration(&cfg.Redis.LockTTL, "POLYQUOTER_REDIS_LOCK_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "POLYQUOTER_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POLYQUOTER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "POLYQUOTER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYQUOTER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYQUOTER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYQUOTER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYQUOTER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYQUOTER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYQUOTER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYQUOTER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYQUOTER_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POLYQUOTER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYQUOTER_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYQUOTER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYQUOTER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYQUOTER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYQUOTER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYQUOTER_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setStr(&cfg.Archive.Prefix, "POLYQUOTER_ARCHIVE_PREFIX")
	setInt(&cfg.Archive.RetentionDays, "POLYQUOTER_ARCHIVE_RETENTION_DAYS")
	setInt(&cfg.Archive.Limit, "POLYQUOTER_ARCHIVE_LIMIT")
	setBool(&cfg.Archive.Prune, "POLYQUOTER_ARCHIVE_PRUNE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYQUOTER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYQUOTER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "POLYQUOTER_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYQUOTER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYQUOTER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYQUOTER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYQUOTER_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Cooldown, "POLYQUOTER_NOTIFY_COOLDOWN")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYQUOTER_MODE")
	setStr(&cfg.LogLevel, "POLYQUOTER_LOG_LEVEL")
}

// Typed env helpers. Each mutates the target only when the variable is set,
// non-empty and parses.

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

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
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
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
