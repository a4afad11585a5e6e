package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LegMarket distinguishes the two halves of a hedged position.
type LegMarket string

const (
	LegSpot LegMarket = "spot"
	LegPerp LegMarket = "perp"
)

// PositionLeg is one side of a hedged position: a single order on either the
// spot or the perpetual market.
type PositionLeg struct {
	Market     LegMarket       `json:"market"`
	InstID     string          `json:"inst_id"`
	Side       string          `json:"side"` // buy or sell
	Size       decimal.Decimal `json:"size"`
	OrderID    string          `json:"order_id"`
	EntryPrice decimal.Decimal `json:"entry_price"`
}

// PositionStatus is the lifecycle of a hedged position record.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// ArbPosition pairs a spot order and a perpetual order opened together with
// equal notional (hedge ratio 1). The two legs are opened and closed as a
// unit; exactly one live leg is never a deliberate end state.
type ArbPosition struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Direction      ArbDirection    `json:"direction"`
	NotionalUSD    decimal.Decimal `json:"notional_usd"`
	Legs           []PositionLeg   `json:"legs"`
	Status         PositionStatus  `json:"status"`
	EntryMark      decimal.Decimal `json:"entry_mark"`
	FundingAccrued decimal.Decimal `json:"funding_accrued"`
	// EstimatedPnl is informational only; authoritative PnL comes from
	// exchange account statements.
	EstimatedPnl decimal.Decimal `json:"estimated_pnl"`
	OpenedAt     time.Time       `json:"opened_at"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty"`
}
