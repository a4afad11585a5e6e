package crypto

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignDeterministic(t *testing.T) {
	auth := &ExchangeAuth{Key: "key", Secret: "secret", Passphrase: "phrase"}

	sig1 := auth.Sign("2026-01-02T03:04:05.000Z", "GET", "/api/v5/account/balance", "")
	sig2 := auth.Sign("2026-01-02T03:04:05.000Z", "GET", "/api/v5/account/balance", "")
	require.Equal(t, sig1, sig2)
	require.NotEmpty(t, sig1)
}

func TestSignChangesWithEveryInput(t *testing.T) {
	auth := &ExchangeAuth{Key: "key", Secret: "secret", Passphrase: "phrase"}
	base := auth.Sign("2026-01-02T03:04:05.000Z", "GET", "/api/v5/account/balance", "")

	perturbed := []string{
		auth.Sign("2026-01-02T03:04:06.000Z", "GET", "/api/v5/account/balance", ""),
		auth.Sign("2026-01-02T03:04:05.000Z", "POST", "/api/v5/account/balance", ""),
		auth.Sign("2026-01-02T03:04:05.000Z", "GET", "/api/v5/account/positions", ""),
		auth.Sign("2026-01-02T03:04:05.000Z", "GET", "/api/v5/account/balance", `{"x":1}`),
	}
	for _, sig := range perturbed {
		require.NotEqual(t, base, sig)
	}

	other := &ExchangeAuth{Key: "key", Secret: "different", Passphrase: "phrase"}
	require.NotEqual(t, base, other.Sign("2026-01-02T03:04:05.000Z", "GET", "/api/v5/account/balance", ""))
}

func TestHeadersAt(t *testing.T) {
	auth := &ExchangeAuth{Key: "my-key", Secret: "my-secret", Passphrase: "my-phrase", Sandbox: true}
	at := time.Date(2026, 1, 2, 3, 4, 5, 123_000_000, time.UTC)

	headers := auth.HeadersAt("POST", "/api/v5/trade/order", `{"instId":"BTC-USDT"}`, at)

	require.Equal(t, "my-key", headers["OK-ACCESS-KEY"])
	require.Equal(t, "my-phrase", headers["OK-ACCESS-PASSPHRASE"])
	require.Equal(t, "2026-01-02T03:04:05.123Z", headers["OK-ACCESS-TIMESTAMP"])
	require.Equal(t, "1", headers["x-simulated-trading"])
	require.Equal(t,
		auth.Sign("2026-01-02T03:04:05.123Z", "POST", "/api/v5/trade/order", `{"instId":"BTC-USDT"}`),
		headers["OK-ACCESS-SIGN"])
}

func TestHeadersOmitsSandboxFlagInLiveMode(t *testing.T) {
	auth := &ExchangeAuth{Key: "k", Secret: "s", Passphrase: "p"}
	headers := auth.Headers("GET", "/api/v5/account/balance", "")
	_, ok := headers["x-simulated-trading"]
	require.False(t, ok)
}

func TestStringRedactsCredentials(t *testing.T) {
	auth := &ExchangeAuth{Key: "key-123456", Secret: "super-secret-value", Passphrase: "phrase"}
	out := auth.String()
	require.NotContains(t, out, "super-secret-value")
	require.NotContains(t, out, "key-123456")
	require.True(t, strings.Contains(out, "****"))
}
