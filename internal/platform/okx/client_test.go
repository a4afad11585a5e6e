package okx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/defolio/defolio/internal/crypto"
	"github.com/defolio/defolio/internal/domain"
)

func testAuth() *crypto.ExchangeAuth {
	return &crypto.ExchangeAuth{Key: "key", Secret: "secret", Passphrase: "phrase", Sandbox: true}
}

func TestSignedRequestSendsAuthHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{"code":"0","msg":"","data":[{"totalEq":"1000"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testAuth())
	bal, err := client.GetAccountBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1000", bal.TotalEquityUSD.String())

	require.Equal(t, "key", got.Get("OK-ACCESS-KEY"))
	require.Equal(t, "phrase", got.Get("OK-ACCESS-PASSPHRASE"))
	require.NotEmpty(t, got.Get("OK-ACCESS-SIGN"))
	require.NotEmpty(t, got.Get("OK-ACCESS-TIMESTAMP"))
	require.Equal(t, "1", got.Get("x-simulated-trading"))
}

func TestEnvelopeErrorMapsToExchangeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"51000","msg":"Parameter error","data":[]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testAuth())
	_, err := client.GetPositions(context.Background(), "SWAP")
	require.Error(t, err)

	var exchErr *domain.ExchangeError
	require.ErrorAs(t, err, &exchErr)
	require.Equal(t, "51000", exchErr.Code)
	require.Equal(t, "Parameter error", exchErr.Message)
}

func TestUnauthorizedMapsToAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"50103","msg":"Invalid signature"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testAuth())
	_, err := client.GetAccountBalance(context.Background())

	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, http.StatusUnauthorized, authErr.Status)
}

func TestPlaceOrderChecksPerOrderCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","msg":"","data":[{"ordId":"","sCode":"51008","sMsg":"Insufficient balance"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testAuth())
	_, err := client.PlaceOrder(context.Background(), OrderRequest{
		InstID: "BTC-USDT", TdMode: "cash", Side: "buy", OrdType: "market",
		Size: decimal.NewFromInt(1),
	})

	var exchErr *domain.ExchangeError
	require.ErrorAs(t, err, &exchErr)
	require.Equal(t, "51008", exchErr.Code)
}

func TestPlaceOrderReturnsOrderID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v5/trade/order", r.URL.Path)
		w.Write([]byte(`{"code":"0","msg":"","data":[{"ordId":"12345","sCode":"0","sMsg":""}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testAuth())
	orderID, err := client.PlaceOrder(context.Background(), OrderRequest{
		InstID: "ETH-USDT", TdMode: "cash", Side: "buy", OrdType: "market",
		Size: decimal.NewFromFloat(0.5),
	})
	require.NoError(t, err)
	require.Equal(t, "12345", orderID)
}

func TestPublicReadsReturnNilWhenUnreachable(t *testing.T) {
	// Point at a server that is already closed.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient(srv.URL, testAuth())

	ticker, err := client.GetTicker(context.Background(), "BTC-USDT")
	require.NoError(t, err)
	require.Nil(t, ticker)

	rate, err := client.GetFundingRate(context.Background(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	require.Nil(t, rate)
}

func TestGetFundingRateParsesRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "BTC-USDT-SWAP", r.URL.Query().Get("instId"))
		w.Write([]byte(`{"code":"0","msg":"","data":[{"instId":"BTC-USDT-SWAP","fundingRate":"0.0008"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testAuth())
	rate, err := client.GetFundingRate(context.Background(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	require.NotNil(t, rate)
	require.Equal(t, "0.0008", rate.Rate.String())
	require.False(t, rate.ObservedAt.IsZero())
}

func TestCancelAllOrdersSweepsPending(t *testing.T) {
	cancelled := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v5/trade/orders-pending":
			w.Write([]byte(`{"code":"0","msg":"","data":[{"instId":"BTC-USDT","ordId":"1"},{"instId":"BTC-USDT","ordId":"2"}]}`))
		case "/api/v5/trade/cancel-order":
			cancelled++
			w.Write([]byte(`{"code":"0","msg":"","data":[]}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testAuth())
	n, err := client.CancelAllOrders(context.Background(), "BTC-USDT")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 2, cancelled)
}
