package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ArbDirection indicates which side of the hedge holds the perpetual.
type ArbDirection string

const (
	// DirectionLongSpotShortPerp collects positive funding: buy spot, short
	// the perpetual.
	DirectionLongSpotShortPerp ArbDirection = "long_spot_short_perp"
	// DirectionShortSpotLongPerp collects negative funding: sell spot, long
	// the perpetual.
	DirectionShortSpotLongPerp ArbDirection = "short_spot_long_perp"
)

// RiskLevel is a coarse banding of how likely a funding rate is to revert.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// FundingOpportunity is a transient recommendation produced by one scan pass.
// It is valid only until the next funding-rate observation and is never
// persisted as a queryable entity.
type FundingOpportunity struct {
	Symbol            string          `json:"symbol"`
	InstID            string          `json:"inst_id"`
	Rate              decimal.Decimal `json:"rate"`                // per funding event
	AnnualizedRatePct decimal.Decimal `json:"annualized_rate_pct"` // rate × events/day × 365 × 100
	AvgRate7dPct      decimal.Decimal `json:"avg_rate_7d_pct"`     // 7-day annualized average, falls back to current
	Direction         ArbDirection    `json:"direction"`
	EntryCostRatio    decimal.Decimal `json:"entry_cost_ratio"` // taker fees + slippage over notional
	EstDailyYieldUSD  decimal.Decimal `json:"est_daily_yield_usd"`
	EstAnnualYieldUSD decimal.Decimal `json:"est_annual_yield_usd"`
	Risk              RiskLevel       `json:"risk"`
	Notes             string          `json:"notes,omitempty"`
	Viable            bool            `json:"viable"`
	Reason            string          `json:"reason,omitempty"` // non-empty whenever Viable is false
	ObservedAt        time.Time       `json:"observed_at"`
}

// ArbConfig holds the thresholds the scan and open paths evaluate against.
// It is a read-only snapshot per call; the configuration source owns it.
type ArbConfig struct {
	MinAnnualizedRate   decimal.Decimal // percent, e.g. 10 = 10% APY
	MaxEntryCostRatio   decimal.Decimal // fraction of notional, e.g. 0.002
	FundingEventsPerDay int             // 3 for 8-hour settlement venues
	TakerFeeRate        decimal.Decimal // per leg, fraction
	SlippageRate        decimal.Decimal // per leg estimate, fraction
	CapitalUSD          decimal.Decimal // yield projections are quoted against this
}

// FundingEventsPerDayOrDefault returns the configured settlement frequency,
// defaulting to 3 (8-hour funding) when unset.
func (c ArbConfig) FundingEventsPerDayOrDefault() int {
	if c.FundingEventsPerDay <= 0 {
		return 3
	}
	return c.FundingEventsPerDay
}
