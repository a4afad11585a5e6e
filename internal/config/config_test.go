package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Exchange.ApiKey = "key"
	cfg.Exchange.ApiSecret = "secret"
	cfg.Exchange.ApiPassphrase = "phrase"
	return cfg
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresExchangeCredentials(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "api_key")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "bogus"
	cfg.Server.Port = 0
	cfg.Arbitrage.Symbols = nil

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown mode")
	require.Contains(t, err.Error(), "port")
	require.Contains(t, err.Error(), "symbols")
}

func TestValidateRejectsDuplicateChainIDs(t *testing.T) {
	cfg := validConfig()
	cfg.Chains = []ChainConfig{
		{Name: "a", ChainID: 1, RPCURL: "https://a"},
		{Name: "b", ChainID: 1, RPCURL: "https://b"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate chain_id")
}

func TestValidateEncryptedSecretNeedsPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Exchange.ApiSecret = ""
	cfg.Exchange.EncryptedSecretPath = "/secrets/okx.json"
	cfg.Exchange.SecretPassword = ""

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "secret_password")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "scan"
log_level = "debug"

[exchange]
api_key = "file-key"
api_secret = "file-secret"
api_passphrase = "file-phrase"

[arbitrage]
min_annualized_rate = 25.0

[[chains]]
name = "arbitrum"
chain_id = 42161
rpc_url = "https://arb1.arbitrum.io/rpc"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "scan", cfg.Mode)
	require.Equal(t, "file-key", cfg.Exchange.ApiKey)
	require.Equal(t, 25.0, cfg.Arbitrage.MinAnnualizedRate)
	// Defaults survive where the file is silent.
	require.Equal(t, "https://www.okx.com", cfg.Exchange.BaseURL)
	require.Equal(t, 8000, cfg.Server.Port)

	require.Len(t, cfg.Chains, 1)
	require.Equal(t, map[int64]string{42161: "https://arb1.arbitrum.io/rpc"}, cfg.RPCEndpoints())
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[exchange]
api_key = "file-key"
api_secret = "file-secret"
api_passphrase = "file-phrase"
`), 0o600))

	t.Setenv("DEFOLIO_EXCHANGE_API_KEY", "env-key")
	t.Setenv("DEFOLIO_ARBITRAGE_SYMBOLS", "BTC, ETH ,SOL")
	t.Setenv("DEFOLIO_SIGNING_RECEIPT_POLL_INTERVAL", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "env-key", cfg.Exchange.ApiKey)
	require.Equal(t, []string{"BTC", "ETH", "SOL"}, cfg.Arbitrage.Symbols)
	require.Equal(t, "5s", cfg.Signing.ReceiptPollInterval.Duration.String())
}
