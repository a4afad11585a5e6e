package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DEFOLIO_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DEFOLIO_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "DEFOLIO_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.ApiKey, "DEFOLIO_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.ApiSecret, "DEFOLIO_EXCHANGE_API_SECRET")
	setStr(&cfg.Exchange.ApiPassphrase, "DEFOLIO_EXCHANGE_API_PASSPHRASE")
	setStr(&cfg.Exchange.EncryptedSecretPath, "DEFOLIO_EXCHANGE_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Exchange.SecretPassword, "DEFOLIO_EXCHANGE_SECRET_PASSWORD")
	setBool(&cfg.Exchange.Sandbox, "DEFOLIO_EXCHANGE_SANDBOX")

	// ── Arbitrage ──
	setStringSlice(&cfg.Arbitrage.Symbols, "DEFOLIO_ARBITRAGE_SYMBOLS")
	setFloat64(&cfg.Arbitrage.MinAnnualizedRate, "DEFOLIO_ARBITRAGE_MIN_ANNUALIZED_RATE")
	setFloat64(&cfg.Arbitrage.MaxEntryCostRatio, "DEFOLIO_ARBITRAGE_MAX_ENTRY_COST_RATIO")
	setInt(&cfg.Arbitrage.FundingEventsPerDay, "DEFOLIO_ARBITRAGE_FUNDING_EVENTS_PER_DAY")
	setFloat64(&cfg.Arbitrage.TakerFeeRate, "DEFOLIO_ARBITRAGE_TAKER_FEE_RATE")
	setFloat64(&cfg.Arbitrage.SlippageRate, "DEFOLIO_ARBITRAGE_SLIPPAGE_RATE")
	setFloat64(&cfg.Arbitrage.CapitalUSD, "DEFOLIO_ARBITRAGE_CAPITAL_USD")
	setFloat64(&cfg.Arbitrage.DefaultSizeUSD, "DEFOLIO_ARBITRAGE_DEFAULT_SIZE_USD")

	// ── Signing ──
	setDuration(&cfg.Signing.ReceiptPollInterval, "DEFOLIO_SIGNING_RECEIPT_POLL_INTERVAL")
	setInt(&cfg.Signing.ReceiptMaxAttempts, "DEFOLIO_SIGNING_RECEIPT_MAX_ATTEMPTS")
	setDuration(&cfg.Signing.WalletTimeout, "DEFOLIO_SIGNING_WALLET_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DEFOLIO_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DEFOLIO_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DEFOLIO_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DEFOLIO_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DEFOLIO_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DEFOLIO_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DEFOLIO_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DEFOLIO_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DEFOLIO_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DEFOLIO_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "DEFOLIO_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "DEFOLIO_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DEFOLIO_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DEFOLIO_REDIS_DB")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "DEFOLIO_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "DEFOLIO_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DEFOLIO_S3_REGION")
	setStr(&cfg.S3.Bucket, "DEFOLIO_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DEFOLIO_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DEFOLIO_S3_SECRET_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DEFOLIO_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DEFOLIO_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DEFOLIO_NOTIFY_DISCORD_WEBHOOK_URL")

	// ── Server ──
	setInt(&cfg.Server.Port, "DEFOLIO_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "DEFOLIO_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "DEFOLIO_SERVER_CORS_ORIGINS")

	// ── Top-level ──
	setStr(&cfg.Mode, "DEFOLIO_MODE")
	setStr(&cfg.LogLevel, "DEFOLIO_LOG_LEVEL")
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
