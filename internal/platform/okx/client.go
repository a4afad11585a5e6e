// Package okx is the REST client for the exchange's V5 API: account, market,
// trading, and leverage endpoints. Private calls are signed with the account
// credential; public market-data reads bypass signing entirely.
package okx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/defolio/defolio/internal/crypto"
	"github.com/defolio/defolio/internal/domain"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://www.okx.com"

// requestTimeout bounds every REST call at the network level. A call that
// exceeds it fails with domain.TimeoutError so callers can tell "state
// unknown" apart from "definitively failed".
const requestTimeout = 15 * time.Second

// Client is the signed REST client. It is stateless apart from the immutable
// credential and is safe for concurrent use; the exchange serializes account
// effects server-side.
type Client struct {
	baseURL    string
	auth       *crypto.ExchangeAuth
	httpClient *http.Client
}

// NewClient creates a client for the given credential. baseURL falls back to
// DefaultBaseURL when empty.
func NewClient(baseURL string, auth *crypto.ExchangeAuth) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		auth:    auth,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// GetAccountBalance returns the trading-account balance snapshot.
func (c *Client) GetAccountBalance(ctx context.Context) (*AccountBalance, error) {
	data, err := c.doSignedRequest(ctx, http.MethodGet, "/api/v5/account/balance", nil)
	if err != nil {
		return nil, fmt.Errorf("okx: get balance: %w", err)
	}

	var balances []AccountBalance
	if err := json.Unmarshal(data, &balances); err != nil {
		return nil, fmt.Errorf("okx: decode balance: %w", err)
	}
	if len(balances) == 0 {
		return &AccountBalance{}, nil
	}
	return &balances[0], nil
}

// GetPositions returns open positions, optionally filtered by instrument
// type (SPOT, SWAP, FUTURES).
func (c *Client) GetPositions(ctx context.Context, instType string) ([]Position, error) {
	path := "/api/v5/account/positions"
	if instType != "" {
		path += "?instType=" + url.QueryEscape(instType)
	}

	data, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("okx: get positions: %w", err)
	}

	var positions []Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("okx: decode positions: %w", err)
	}
	return positions, nil
}

// GetPendingOrders returns live orders, optionally filtered by instrument.
func (c *Client) GetPendingOrders(ctx context.Context, instID string) ([]Order, error) {
	path := "/api/v5/trade/orders-pending"
	if instID != "" {
		path += "?instId=" + url.QueryEscape(instID)
	}

	data, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("okx: get pending orders: %w", err)
	}

	var orders []Order
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, fmt.Errorf("okx: decode pending orders: %w", err)
	}
	return orders, nil
}

// GetOrderHistory returns recently completed orders for an instrument type.
func (c *Client) GetOrderHistory(ctx context.Context, instType string, limit int) ([]Order, error) {
	path := fmt.Sprintf("/api/v5/trade/orders-history?instType=%s", url.QueryEscape(instType))
	if limit > 0 {
		path += fmt.Sprintf("&limit=%d", limit)
	}

	data, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("okx: get order history: %w", err)
	}

	var orders []Order
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, fmt.Errorf("okx: decode order history: %w", err)
	}
	return orders, nil
}

// PlaceOrder submits a new order and returns the exchange order ID.
//
// The client performs no deduplication: a retry after a TimeoutError may
// produce a duplicate order. Idempotency is the caller's responsibility.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	data, err := c.doSignedRequest(ctx, http.MethodPost, "/api/v5/trade/order", req)
	if err != nil {
		return "", fmt.Errorf("okx: place order %s: %w", req.InstID, err)
	}

	var results []struct {
		OrderID string `json:"ordId"`
		SCode   string `json:"sCode"`
		SMsg    string `json:"sMsg"`
	}
	if err := json.Unmarshal(data, &results); err != nil {
		return "", fmt.Errorf("okx: decode order result: %w", err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("okx: empty order result for %s", req.InstID)
	}
	if results[0].SCode != "" && results[0].SCode != "0" {
		return "", &domain.ExchangeError{Code: results[0].SCode, Message: results[0].SMsg}
	}
	return results[0].OrderID, nil
}

// CancelOrder cancels a single live order.
func (c *Client) CancelOrder(ctx context.Context, instID, orderID string) error {
	body := map[string]string{"instId": instID, "ordId": orderID}
	if _, err := c.doSignedRequest(ctx, http.MethodPost, "/api/v5/trade/cancel-order", body); err != nil {
		return fmt.Errorf("okx: cancel order %s: %w", orderID, err)
	}
	return nil
}

// CancelAllOrders cancels every pending order, optionally scoped to one
// instrument. The exchange has no bulk-cancel endpoint for this account
// mode, so pending orders are cancelled one by one; the first failure
// aborts the sweep.
func (c *Client) CancelAllOrders(ctx context.Context, instID string) (int, error) {
	pending, err := c.GetPendingOrders(ctx, instID)
	if err != nil {
		return 0, err
	}

	for i, ord := range pending {
		if err := c.CancelOrder(ctx, ord.InstID, ord.OrderID); err != nil {
			return i, err
		}
	}
	return len(pending), nil
}

// SetLeverage configures leverage for an instrument.
func (c *Client) SetLeverage(ctx context.Context, instID string, leverage int, mgnMode string) error {
	body := map[string]string{
		"instId":  instID,
		"lever":   fmt.Sprintf("%d", leverage),
		"mgnMode": mgnMode,
	}
	if _, err := c.doSignedRequest(ctx, http.MethodPost, "/api/v5/account/set-leverage", body); err != nil {
		return fmt.Errorf("okx: set leverage %s: %w", instID, err)
	}
	return nil
}

// Transfer moves funds between the exchange account's sub-accounts (funding
// to trading and back).
func (c *Client) Transfer(ctx context.Context, req TransferRequest) error {
	if _, err := c.doSignedRequest(ctx, http.MethodPost, "/api/v5/asset/transfer", req); err != nil {
		return fmt.Errorf("okx: transfer %s %s: %w", req.Amount, req.Currency, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doSignedRequest builds, signs, sends, and unwraps an authenticated request.
// It returns the raw `data` portion of the response envelope.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, reqBody any) (json.RawMessage, error) {
	var bodyStr string
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	// Signature covers timestamp + METHOD + path (incl. query) + body.
	for k, v := range c.auth.Headers(method, path, bodyStr) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &domain.TimeoutError{Op: method + " " + path, Err: err}
		}
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &domain.AuthError{Status: resp.StatusCode, Message: string(respBody)}
	}

	return unwrapEnvelope(respBody)
}

// unwrapEnvelope parses the {code,msg,data} wrapper and maps non-"0" codes
// to domain.ExchangeError.
func unwrapEnvelope(body []byte) (json.RawMessage, error) {
	var env struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Code != "0" {
		return nil, &domain.ExchangeError{Code: env.Code, Message: env.Msg}
	}
	return env.Data, nil
}

// isTimeout classifies transport-level errors that mean "no response within
// bound" as opposed to a definitive failure.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
