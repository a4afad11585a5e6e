// Package arb implements the funding-rate arbitrage engine: it scans
// perpetual instruments for funding dislocations and opens/unwinds
// delta-neutral two-leg positions against the exchange.
package arb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/defolio/defolio/internal/domain"
	"github.com/defolio/defolio/internal/platform/okx"
)

// scanConcurrency bounds how many funding-rate reads run in parallel.
const scanConcurrency = 4

var (
	daysPerYear = decimal.NewFromInt(365)
	hundred     = decimal.NewFromInt(100)
	two         = decimal.NewFromInt(2)
)

// Exchange is the slice of the exchange client the engine needs. okx.Client
// satisfies it; tests substitute fakes.
type Exchange interface {
	GetFundingRate(ctx context.Context, instID string) (*okx.FundingRate, error)
	GetTicker(ctx context.Context, instID string) (*okx.Ticker, error)
	PlaceOrder(ctx context.Context, req okx.OrderRequest) (string, error)
	GetPositions(ctx context.Context, instType string) ([]okx.Position, error)
	GetAccountBalance(ctx context.Context) (*okx.AccountBalance, error)
}

// Engine turns funding-rate dislocation into delta-neutral positions and
// unwinds them safely. It retries nothing: retry policy belongs to callers.
// What it guarantees is that an intentional half-hedge is never a terminal
// success state.
type Engine struct {
	exchange Exchange
	logger   *slog.Logger
}

// NewEngine creates an Engine over the given exchange client.
func NewEngine(exchange Exchange, logger *slog.Logger) *Engine {
	return &Engine{
		exchange: exchange,
		logger:   logger.With(slog.String("component", "arb_engine")),
	}
}

// OpenResult reports a successfully opened hedged position.
type OpenResult struct {
	Position          domain.ArbPosition
	RealizedEntryCost decimal.Decimal
}

// CloseResult reports an unwind. EstimatedPnl is informational only;
// authoritative PnL comes from exchange account statements.
type CloseResult struct {
	ClosedLegs   []domain.PositionLeg
	AlreadyFlat  bool
	EstimatedPnl decimal.Decimal
}

// ScanOpportunities evaluates each symbol's current funding rate against the
// config thresholds. Non-viable symbols are returned with a human-readable
// reason, never silently dropped. The output order is undefined; callers
// that want ranking must sort themselves.
func (e *Engine) ScanOpportunities(ctx context.Context, symbols []string, cfg domain.ArbConfig) ([]domain.FundingOpportunity, error) {
	results := make([]domain.FundingOpportunity, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)

	for i, symbol := range symbols {
		g.Go(func() error {
			results[i] = e.evaluateSymbol(gctx, symbol, cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// evaluateSymbol builds one FundingOpportunity from a fresh rate read.
func (e *Engine) evaluateSymbol(ctx context.Context, symbol string, cfg domain.ArbConfig) domain.FundingOpportunity {
	opp := domain.FundingOpportunity{
		Symbol:     symbol,
		InstID:     PerpInstID(symbol),
		ObservedAt: time.Now().UTC(),
	}

	fr, err := e.exchange.GetFundingRate(ctx, opp.InstID)
	if err != nil {
		opp.Reason = fmt.Sprintf("funding rate read failed: %v", err)
		return opp
	}
	if fr == nil {
		// A nil public read means "no data", never "rate is zero".
		opp.Reason = "no funding data (exchange unreachable or unknown instrument)"
		return opp
	}

	events := decimal.NewFromInt(int64(cfg.FundingEventsPerDayOrDefault()))
	opp.Rate = fr.Rate
	opp.AnnualizedRatePct = fr.Rate.Mul(events).Mul(daysPerYear).Mul(hundred)
	// Without a rate-history endpoint the 7d average falls back to the
	// current observation.
	opp.AvgRate7dPct = opp.AnnualizedRatePct.Abs()

	if fr.Rate.Sign() >= 0 {
		opp.Direction = domain.DirectionLongSpotShortPerp
	} else {
		opp.Direction = domain.DirectionShortSpotLongPerp
	}

	// Opening costs two taker fills plus slippage on each leg.
	opp.EntryCostRatio = cfg.TakerFeeRate.Add(cfg.SlippageRate).Mul(two)

	capital := cfg.CapitalUSD
	if capital.IsZero() {
		capital = decimal.NewFromInt(10_000)
	}
	opp.EstDailyYieldUSD = capital.Mul(fr.Rate.Abs()).Mul(events)
	opp.EstAnnualYieldUSD = opp.EstDailyYieldUSD.Mul(daysPerYear)
	opp.Risk, opp.Notes = riskBand(opp.AnnualizedRatePct.Abs())

	if opp.AnnualizedRatePct.Abs().LessThan(cfg.MinAnnualizedRate) {
		opp.Reason = fmt.Sprintf("annualized rate %s%% below threshold %s%%",
			opp.AnnualizedRatePct.Abs().StringFixed(2), cfg.MinAnnualizedRate.String())
		return opp
	}
	if cfg.MaxEntryCostRatio.IsPositive() && opp.EntryCostRatio.GreaterThan(cfg.MaxEntryCostRatio) {
		opp.Reason = fmt.Sprintf("estimated entry cost ratio %s exceeds limit %s",
			opp.EntryCostRatio.String(), cfg.MaxEntryCostRatio.String())
		return opp
	}

	opp.Viable = true
	return opp
}

// OpenPosition opens both legs of a hedged position sized to sizeUSD
// notional per leg.
//
// The opportunity is re-validated against a fresh rate read first: rates
// move, and a stale recommendation is never executed blindly. If the second
// leg fails the first leg is closed again before returning; only when that
// compensating close itself fails does the engine give up and return a
// HedgeImbalanceError for manual reconciliation.
func (e *Engine) OpenPosition(ctx context.Context, opp domain.FundingOpportunity, sizeUSD decimal.Decimal, cfg domain.ArbConfig) (*OpenResult, error) {
	if !opp.Viable {
		return nil, fmt.Errorf("arb: %w: %s", domain.ErrNotViable, opp.Reason)
	}
	if err := e.revalidate(ctx, opp, cfg); err != nil {
		return nil, err
	}

	ticker, err := e.exchange.GetTicker(ctx, SpotInstID(opp.Symbol))
	if err != nil {
		return nil, fmt.Errorf("arb: ticker %s: %w", opp.Symbol, err)
	}
	if ticker == nil || ticker.Last.IsZero() {
		return nil, fmt.Errorf("arb: no ticker data for %s", opp.Symbol)
	}

	mark := ticker.Last
	size := sizeUSD.Div(mark).Round(8)

	perpLeg, spotLeg := legRequests(opp, size)

	// Leg 1: the perpetual side indicated by the opportunity.
	perpOrderID, err := e.exchange.PlaceOrder(ctx, perpLeg)
	if err != nil {
		return nil, fmt.Errorf("arb: open %s leg 1 (perp): %w", opp.Symbol, err)
	}

	e.logger.InfoContext(ctx, "perp leg opened",
		slog.String("symbol", opp.Symbol),
		slog.String("order_id", perpOrderID),
		slog.String("size", size.String()),
	)

	// Leg 2: the matching-notional spot hedge.
	spotOrderID, err := e.exchange.PlaceOrder(ctx, spotLeg)
	if err != nil {
		return nil, e.compensate(ctx, opp, perpLeg, perpOrderID, size, err)
	}

	pos := domain.ArbPosition{
		Symbol:      opp.Symbol,
		Direction:   opp.Direction,
		NotionalUSD: sizeUSD,
		Status:      domain.PositionOpen,
		EntryMark:   mark,
		OpenedAt:    time.Now().UTC(),
		Legs: []domain.PositionLeg{
			{Market: domain.LegPerp, InstID: perpLeg.InstID, Side: perpLeg.Side, Size: size, OrderID: perpOrderID, EntryPrice: mark},
			{Market: domain.LegSpot, InstID: spotLeg.InstID, Side: spotLeg.Side, Size: size, OrderID: spotOrderID, EntryPrice: mark},
		},
	}

	return &OpenResult{
		Position:          pos,
		RealizedEntryCost: sizeUSD.Mul(opp.EntryCostRatio),
	}, nil
}

// compensate closes the already-open perpetual leg after the spot leg
// failed. Saga-style: an explicit corrective order, not a rollback.
func (e *Engine) compensate(ctx context.Context, opp domain.FundingOpportunity, perpLeg okx.OrderRequest, perpOrderID string, size decimal.Decimal, legErr error) error {
	e.logger.WarnContext(ctx, "spot leg failed, unwinding perp leg",
		slog.String("symbol", opp.Symbol),
		slog.String("perp_order_id", perpOrderID),
		slog.String("error", legErr.Error()),
	)

	unwind := okx.OrderRequest{
		InstID:  perpLeg.InstID,
		TdMode:  perpLeg.TdMode,
		Side:    oppositeSide(perpLeg.Side),
		PosSide: perpLeg.PosSide,
		OrdType: "market",
		Size:    size,
	}
	if _, compErr := e.exchange.PlaceOrder(ctx, unwind); compErr != nil {
		return &domain.HedgeImbalanceError{
			Symbol:          opp.Symbol,
			OpenLegOrderID:  perpOrderID,
			OpenLegSide:     perpLeg.Side,
			LegErr:          legErr,
			CompensationErr: compErr,
		}
	}

	return fmt.Errorf("arb: open %s leg 2 (spot) failed, perp leg unwound: %w", opp.Symbol, legErr)
}

// revalidate re-fetches the funding rate and rechecks viability at execution
// time.
func (e *Engine) revalidate(ctx context.Context, opp domain.FundingOpportunity, cfg domain.ArbConfig) error {
	fr, err := e.exchange.GetFundingRate(ctx, opp.InstID)
	if err != nil {
		return fmt.Errorf("arb: revalidate %s: %w", opp.Symbol, err)
	}
	if fr == nil {
		return fmt.Errorf("arb: %w: no current funding data for %s", domain.ErrNotViable, opp.Symbol)
	}

	events := decimal.NewFromInt(int64(cfg.FundingEventsPerDayOrDefault()))
	annualized := fr.Rate.Mul(events).Mul(daysPerYear).Mul(hundred)
	if annualized.Abs().LessThan(cfg.MinAnnualizedRate) {
		return fmt.Errorf("arb: %w: %s annualized rate moved to %s%%, below threshold %s%%",
			domain.ErrNotViable, opp.Symbol, annualized.Abs().StringFixed(2), cfg.MinAnnualizedRate.String())
	}

	direction := domain.DirectionLongSpotShortPerp
	if fr.Rate.Sign() < 0 {
		direction = domain.DirectionShortSpotLongPerp
	}
	if direction != opp.Direction {
		return fmt.Errorf("arb: %w: %s funding flipped sign since the scan", domain.ErrNotViable, opp.Symbol)
	}

	return nil
}

// ClosePosition unwinds both legs of a position. The close is idempotent:
// a leg that is already flat counts as closed, and a fully flat position
// returns success with AlreadyFlat set.
//
// EstimatedPnl is accumulated funding plus the mark delta between entry and
// exit; it is an estimate for display, not an accounting figure.
func (e *Engine) ClosePosition(ctx context.Context, pos domain.ArbPosition) (*CloseResult, error) {
	result := &CloseResult{}

	size := pos.NotionalUSD
	var perpLeg, spotLeg *domain.PositionLeg
	for i := range pos.Legs {
		switch pos.Legs[i].Market {
		case domain.LegPerp:
			perpLeg = &pos.Legs[i]
		case domain.LegSpot:
			spotLeg = &pos.Legs[i]
		}
	}

	// Perp leg: close only if the exchange still reports it.
	if perpLeg != nil {
		live, err := e.livePerpSize(ctx, perpLeg.InstID)
		if err != nil {
			return nil, fmt.Errorf("arb: close %s: read perp position: %w", pos.Symbol, err)
		}
		if live.IsPositive() {
			closeSize := decimal.Min(live, perpLeg.Size)
			req := okx.OrderRequest{
				InstID:  perpLeg.InstID,
				TdMode:  "cross",
				Side:    oppositeSide(perpLeg.Side),
				PosSide: posSideFor(perpLeg.Side),
				OrdType: "market",
				Size:    closeSize,
			}
			if _, err := e.exchange.PlaceOrder(ctx, req); err != nil {
				return nil, fmt.Errorf("arb: close %s perp leg: %w", pos.Symbol, err)
			}
			result.ClosedLegs = append(result.ClosedLegs, *perpLeg)
		}
	}

	// Spot leg: close only what is actually held.
	if spotLeg != nil {
		held, err := e.spotHolding(ctx, pos.Symbol)
		if err != nil {
			return nil, fmt.Errorf("arb: close %s: read spot balance: %w", pos.Symbol, err)
		}
		if held.IsPositive() {
			closeSize := decimal.Min(held, spotLeg.Size)
			req := okx.OrderRequest{
				InstID:  spotLeg.InstID,
				TdMode:  "cash",
				Side:    oppositeSide(spotLeg.Side),
				OrdType: "market",
				Size:    closeSize,
			}
			if _, err := e.exchange.PlaceOrder(ctx, req); err != nil {
				return nil, fmt.Errorf("arb: close %s spot leg: %w", pos.Symbol, err)
			}
			result.ClosedLegs = append(result.ClosedLegs, *spotLeg)
		}
	}

	result.AlreadyFlat = len(result.ClosedLegs) == 0

	exitMark := pos.EntryMark
	if ticker, err := e.exchange.GetTicker(ctx, SpotInstID(pos.Symbol)); err == nil && ticker != nil && !ticker.Last.IsZero() {
		exitMark = ticker.Last
	}
	if !pos.EntryMark.IsZero() {
		perLegSize := size.Div(pos.EntryMark)
		result.EstimatedPnl = pos.FundingAccrued.Add(exitMark.Sub(pos.EntryMark).Mul(perLegSize))
	} else {
		result.EstimatedPnl = pos.FundingAccrued
	}

	return result, nil
}

// livePerpSize returns the absolute live contract size for a perp
// instrument, zero when flat.
func (e *Engine) livePerpSize(ctx context.Context, instID string) (decimal.Decimal, error) {
	positions, err := e.exchange.GetPositions(ctx, "SWAP")
	if err != nil {
		return decimal.Zero, err
	}
	for _, p := range positions {
		if p.InstID == instID {
			return p.Pos.Abs(), nil
		}
	}
	return decimal.Zero, nil
}

// spotHolding returns the available balance for a symbol's base currency.
func (e *Engine) spotHolding(ctx context.Context, symbol string) (decimal.Decimal, error) {
	bal, err := e.exchange.GetAccountBalance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	for _, d := range bal.Details {
		if d.Currency == symbol {
			return d.Available, nil
		}
	}
	return decimal.Zero, nil
}

// legRequests builds the two order requests for an opportunity. Leg 1 is
// always the perpetual side.
func legRequests(opp domain.FundingOpportunity, size decimal.Decimal) (perp, spot okx.OrderRequest) {
	perp = okx.OrderRequest{
		InstID:  PerpInstID(opp.Symbol),
		TdMode:  "cross",
		OrdType: "market",
		Size:    size,
	}
	spot = okx.OrderRequest{
		InstID:  SpotInstID(opp.Symbol),
		TdMode:  "cash",
		OrdType: "market",
		Size:    size,
	}

	if opp.Direction == domain.DirectionLongSpotShortPerp {
		perp.Side, perp.PosSide = "sell", "short"
		spot.Side = "buy"
	} else {
		perp.Side, perp.PosSide = "buy", "long"
		spot.Side = "sell"
	}
	return perp, spot
}

// PerpInstID maps a symbol to its USDT-margined perpetual instrument.
func PerpInstID(symbol string) string { return symbol + "-USDT-SWAP" }

// SpotInstID maps a symbol to its USDT spot instrument.
func SpotInstID(symbol string) string { return symbol + "-USDT" }

func oppositeSide(side string) string {
	if side == "buy" {
		return "sell"
	}
	return "buy"
}

func posSideFor(openSide string) string {
	if openSide == "sell" {
		return "short"
	}
	return "long"
}

// riskBand mirrors the dashboard's coarse banding of annualized rates.
func riskBand(annualizedAbs decimal.Decimal) (domain.RiskLevel, string) {
	switch {
	case annualizedAbs.GreaterThan(decimal.NewFromInt(50)):
		return domain.RiskHigh, "funding rate unusually high; likely to revert soon"
	case annualizedAbs.GreaterThan(decimal.NewFromInt(20)):
		return domain.RiskMedium, "healthy funding rate, suitable for sustained carry"
	default:
		return domain.RiskLow, "low but stable rate"
	}
}
