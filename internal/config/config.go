// Package config defines the top-level configuration for the execution
// backend and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by DEFOLIO_* environment
// variables.
type Config struct {
	Exchange  ExchangeConfig  `toml:"exchange"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Chains    []ChainConfig   `toml:"chains"`
	Signing   SigningConfig   `toml:"signing"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
	Server    ServerConfig    `toml:"server"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ExchangeConfig holds exchange API credentials and endpoints. The secret may
// be given in plaintext, or as an encrypted file plus password.
type ExchangeConfig struct {
	BaseURL             string `toml:"base_url"`
	ApiKey              string `toml:"api_key"`
	ApiSecret           string `toml:"api_secret"`
	ApiPassphrase       string `toml:"api_passphrase"`
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`
	Sandbox             bool   `toml:"sandbox"`
}

// ArbitrageConfig holds funding-rate arbitrage thresholds and sizing.
type ArbitrageConfig struct {
	Symbols             []string `toml:"symbols"`
	MinAnnualizedRate   float64  `toml:"min_annualized_rate"`  // percent APY
	MaxEntryCostRatio   float64  `toml:"max_entry_cost_ratio"` // fraction of notional
	FundingEventsPerDay int      `toml:"funding_events_per_day"`
	TakerFeeRate        float64  `toml:"taker_fee_rate"` // per leg
	SlippageRate        float64  `toml:"slippage_rate"`  // per leg
	CapitalUSD          float64  `toml:"capital_usd"`
	DefaultSizeUSD      float64  `toml:"default_size_usd"`
}

// ChainConfig describes one EVM chain the backend can poll receipts on.
type ChainConfig struct {
	Name    string `toml:"name"`
	ChainID int64  `toml:"chain_id"`
	RPCURL  string `toml:"rpc_url"`
}

// SigningConfig holds chain signing session parameters.
type SigningConfig struct {
	ReceiptPollInterval duration `toml:"receipt_poll_interval"`
	ReceiptMaxAttempts  int      `toml:"receipt_max_attempts"`
	WalletTimeout       duration `toml:"wallet_timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
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

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			BaseURL: "https://www.okx.com",
			Sandbox: true,
		},
		Arbitrage: ArbitrageConfig{
			Symbols:             []string{"BTC", "ETH", "SOL"},
			MinAnnualizedRate:   10.0,
			MaxEntryCostRatio:   0.004,
			FundingEventsPerDay: 3,
			TakerFeeRate:        0.0005,
			SlippageRate:        0.0005,
			CapitalUSD:          10_000,
			DefaultSizeUSD:      1_000,
		},
		Chains: []ChainConfig{
			{Name: "ethereum", ChainID: 1, RPCURL: "https://eth.llamarpc.com"},
			{Name: "polygon", ChainID: 137, RPCURL: "https://polygon-rpc.com"},
		},
		Signing: SigningConfig{
			ReceiptPollInterval: duration{3 * time.Second},
			ReceiptMaxAttempts:  40,
			WalletTimeout:       duration{2 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "defolio",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled: true,
			Addr:    "localhost:6379",
		},
		S3: S3Config{
			Enabled:  false,
			Endpoint: "http://localhost:9000",
			Region:   "us-east-1",
			Bucket:   "defolio-executions",
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"scan":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, scan)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange — key and passphrase always come from config; the secret has
	// two sources and needs exactly one.
	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange: base_url must not be empty")
	}
	if c.Exchange.ApiKey == "" {
		errs = append(errs, "exchange: api_key must not be empty")
	}
	if c.Exchange.ApiSecret == "" && c.Exchange.EncryptedSecretPath == "" {
		errs = append(errs, "exchange: either api_secret or encrypted_secret_path must be set")
	}
	if c.Exchange.EncryptedSecretPath != "" && c.Exchange.SecretPassword == "" {
		errs = append(errs, "exchange: secret_password is required when encrypted_secret_path is set")
	}

	// Arbitrage
	if len(c.Arbitrage.Symbols) == 0 {
		errs = append(errs, "arbitrage: symbols must not be empty")
	}
	if c.Arbitrage.MinAnnualizedRate <= 0 {
		errs = append(errs, "arbitrage: min_annualized_rate must be > 0")
	}
	if c.Arbitrage.DefaultSizeUSD <= 0 {
		errs = append(errs, "arbitrage: default_size_usd must be > 0")
	}

	// Chains
	seen := map[int64]bool{}
	for _, ch := range c.Chains {
		if ch.ChainID <= 0 {
			errs = append(errs, fmt.Sprintf("chains: %q chain_id must be positive", ch.Name))
		}
		if ch.RPCURL == "" {
			errs = append(errs, fmt.Sprintf("chains: %q rpc_url must not be empty", ch.Name))
		}
		if seen[ch.ChainID] {
			errs = append(errs, fmt.Sprintf("chains: duplicate chain_id %d", ch.ChainID))
		}
		seen[ch.ChainID] = true
	}

	// Signing
	if c.Signing.ReceiptPollInterval.Duration <= 0 {
		errs = append(errs, "signing: receipt_poll_interval must be > 0")
	}
	if c.Signing.ReceiptMaxAttempts < 1 {
		errs = append(errs, "signing: receipt_max_attempts must be >= 1")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
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
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty when enabled")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RPCEndpoints maps chain IDs to RPC URLs for the receipt reader.
func (c *Config) RPCEndpoints() map[int64]string {
	out := make(map[int64]string, len(c.Chains))
	for _, ch := range c.Chains {
		out[ch.ChainID] = ch.RPCURL
	}
	return out
}
