package okx

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is one currency's balance inside the trading account.
type Balance struct {
	Currency  string          `json:"ccy"`
	Equity    decimal.Decimal `json:"eq"`
	Available decimal.Decimal `json:"availBal"`
	Frozen    decimal.Decimal `json:"frozenBal"`
}

// AccountBalance is the top-level account snapshot.
type AccountBalance struct {
	TotalEquityUSD decimal.Decimal `json:"totalEq"`
	Details        []Balance       `json:"details"`
}

// Position is one open position as reported by the exchange.
type Position struct {
	InstID    string          `json:"instId"`
	InstType  string          `json:"instType"`
	PosSide   string          `json:"posSide"`
	Pos       decimal.Decimal `json:"pos"`
	AvgPrice  decimal.Decimal `json:"avgPx"`
	MarkPrice decimal.Decimal `json:"markPx"`
	Upl       decimal.Decimal `json:"upl"`
	Leverage  decimal.Decimal `json:"lever"`
	Margin    decimal.Decimal `json:"margin"`
}

// Order is an order as reported by the pending/history endpoints.
type Order struct {
	InstID     string          `json:"instId"`
	OrderID    string          `json:"ordId"`
	Side       string          `json:"side"`
	PosSide    string          `json:"posSide"`
	OrdType    string          `json:"ordType"`
	Price      decimal.Decimal `json:"px"`
	Size       decimal.Decimal `json:"sz"`
	FilledSize decimal.Decimal `json:"accFillSz"`
	AvgPrice   decimal.Decimal `json:"avgPx"`
	State      string          `json:"state"`
	CreatedAt  string          `json:"cTime"`
}

// OrderRequest describes a new order. Price is ignored for market orders.
type OrderRequest struct {
	InstID  string          `json:"instId"`
	TdMode  string          `json:"tdMode"` // cash, cross, isolated
	Side    string          `json:"side"`   // buy, sell
	OrdType string          `json:"ordType"`
	Size    decimal.Decimal `json:"sz"`
	Price   decimal.Decimal `json:"px,omitempty"`
	PosSide string          `json:"posSide,omitempty"` // long, short (perp only)
}

// Ticker is a public market-data snapshot.
type Ticker struct {
	InstID string          `json:"instId"`
	Last   decimal.Decimal `json:"last"`
	BidPx  decimal.Decimal `json:"bidPx"`
	AskPx  decimal.Decimal `json:"askPx"`
	Ts     string          `json:"ts"`
}

// FundingRate is the current funding observation for a perpetual instrument.
type FundingRate struct {
	InstID          string          `json:"instId"`
	Rate            decimal.Decimal `json:"fundingRate"`
	NextRate        decimal.Decimal `json:"nextFundingRate"`
	FundingTime     string          `json:"fundingTime"`
	NextFundingTime string          `json:"nextFundingTime"`
	ObservedAt      time.Time       `json:"-"`
}

// TransferRequest moves funds between sub-accounts of the exchange account.
type TransferRequest struct {
	Currency string          `json:"ccy"`
	Amount   decimal.Decimal `json:"amt"`
	From     string          `json:"from"` // account id, e.g. "6" funding
	To       string          `json:"to"`   // account id, e.g. "18" trading
}
