package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Public market-data reads bypass signing and degrade gracefully: when the
// exchange is unreachable they return (nil, nil) so read-only dashboards keep
// functioning. Callers must treat a nil result as "no data", never as a zero
// value.

// GetTicker returns the latest ticker for an instrument, or nil when the
// exchange could not be reached.
func (c *Client) GetTicker(ctx context.Context, instID string) (*Ticker, error) {
	path := "/api/v5/market/ticker?instId=" + url.QueryEscape(instID)

	data, ok, err := c.doPublicRequest(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("okx: get ticker %s: %w", instID, err)
	}
	if !ok {
		return nil, nil
	}

	var tickers []Ticker
	if err := json.Unmarshal(data, &tickers); err != nil {
		return nil, fmt.Errorf("okx: decode ticker %s: %w", instID, err)
	}
	if len(tickers) == 0 {
		return nil, nil
	}
	return &tickers[0], nil
}

// GetFundingRate returns the current funding rate for a perpetual
// instrument, or nil when the exchange could not be reached or the
// instrument has no funding data.
func (c *Client) GetFundingRate(ctx context.Context, instID string) (*FundingRate, error) {
	path := "/api/v5/public/funding-rate?instId=" + url.QueryEscape(instID)

	data, ok, err := c.doPublicRequest(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("okx: get funding rate %s: %w", instID, err)
	}
	if !ok {
		return nil, nil
	}

	var rates []FundingRate
	if err := json.Unmarshal(data, &rates); err != nil {
		return nil, fmt.Errorf("okx: decode funding rate %s: %w", instID, err)
	}
	if len(rates) == 0 {
		return nil, nil
	}
	rates[0].ObservedAt = time.Now().UTC()
	return &rates[0], nil
}

// doPublicRequest performs an unsigned GET. The middle return value is false
// when the exchange was unreachable (network failure or timeout); only
// decode problems and envelope errors are reported as errors.
func (c *Client) doPublicRequest(ctx context.Context, path string) (json.RawMessage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Unreachable exchange is "no data", not an error.
		return nil, false, nil
	}
	defer resp.Body.Close()

	var env struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, false, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Code != "0" {
		// An explicit envelope error (unknown instrument etc.) is still
		// "no data" for public reads.
		return nil, false, nil
	}
	return env.Data, true, nil
}
