package arb

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/defolio/defolio/internal/domain"
	"github.com/defolio/defolio/internal/platform/okx"
)

// orderResult scripts one PlaceOrder response.
type orderResult struct {
	orderID string
	err     error
}

type fakeExchange struct {
	rates     map[string]*okx.FundingRate
	rateErr   error
	tickers   map[string]*okx.Ticker
	positions []okx.Position
	balance   *okx.AccountBalance

	placed  []okx.OrderRequest
	results []orderResult
}

func (f *fakeExchange) GetFundingRate(_ context.Context, instID string) (*okx.FundingRate, error) {
	if f.rateErr != nil {
		return nil, f.rateErr
	}
	return f.rates[instID], nil
}

func (f *fakeExchange) GetTicker(_ context.Context, instID string) (*okx.Ticker, error) {
	return f.tickers[instID], nil
}

func (f *fakeExchange) PlaceOrder(_ context.Context, req okx.OrderRequest) (string, error) {
	f.placed = append(f.placed, req)
	if len(f.results) == 0 {
		return "order-default", nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res.orderID, res.err
}

func (f *fakeExchange) GetPositions(_ context.Context, _ string) ([]okx.Position, error) {
	return f.positions, nil
}

func (f *fakeExchange) GetAccountBalance(_ context.Context) (*okx.AccountBalance, error) {
	if f.balance == nil {
		return &okx.AccountBalance{}, nil
	}
	return f.balance, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testConfig() domain.ArbConfig {
	return domain.ArbConfig{
		MinAnnualizedRate:   decimal.NewFromInt(10),
		MaxEntryCostRatio:   decimal.NewFromFloat(0.01),
		FundingEventsPerDay: 3,
		TakerFeeRate:        decimal.NewFromFloat(0.0005),
		SlippageRate:        decimal.NewFromFloat(0.0005),
		CapitalUSD:          decimal.NewFromInt(10_000),
	}
}

func rateFor(instID string, rate float64) map[string]*okx.FundingRate {
	return map[string]*okx.FundingRate{
		instID: {InstID: instID, Rate: decimal.NewFromFloat(rate)},
	}
}

func TestScanAnnualizesFundingRate(t *testing.T) {
	// 0.0008 per event, 3 events/day: 0.0008 * 3 * 365 * 100 = 87.6% APY.
	ex := &fakeExchange{rates: rateFor("BTC-USDT-SWAP", 0.0008)}
	engine := NewEngine(ex, testLogger())

	opps, err := engine.ScanOpportunities(context.Background(), []string{"BTC"}, testConfig())
	require.NoError(t, err)
	require.Len(t, opps, 1)

	opp := opps[0]
	require.True(t, opp.Viable)
	require.Equal(t, "87.6", opp.AnnualizedRatePct.String())
	require.Equal(t, domain.DirectionLongSpotShortPerp, opp.Direction)
	require.Equal(t, domain.RiskHigh, opp.Risk)
}

func TestScanNegativeRateReversesDirection(t *testing.T) {
	ex := &fakeExchange{rates: rateFor("ETH-USDT-SWAP", -0.0008)}
	engine := NewEngine(ex, testLogger())

	opps, err := engine.ScanOpportunities(context.Background(), []string{"ETH"}, testConfig())
	require.NoError(t, err)
	require.True(t, opps[0].Viable)
	require.Equal(t, domain.DirectionShortSpotLongPerp, opps[0].Direction)
}

func TestScanBelowThresholdGivesReason(t *testing.T) {
	// 0.00005 * 3 * 365 * 100 = 5.475% APY, below the 10% threshold.
	ex := &fakeExchange{rates: rateFor("SOL-USDT-SWAP", 0.00005)}
	engine := NewEngine(ex, testLogger())

	opps, err := engine.ScanOpportunities(context.Background(), []string{"SOL"}, testConfig())
	require.NoError(t, err)
	require.False(t, opps[0].Viable)
	require.Contains(t, opps[0].Reason, "below threshold")
}

func TestScanRejectsExpensiveEntry(t *testing.T) {
	ex := &fakeExchange{rates: rateFor("BTC-USDT-SWAP", 0.0008)}
	engine := NewEngine(ex, testLogger())

	// Two taker fills at 0.4% each plus slippage blows past the 1% limit.
	cfg := testConfig()
	cfg.TakerFeeRate = decimal.NewFromFloat(0.004)
	cfg.SlippageRate = decimal.NewFromFloat(0.002)

	opps, err := engine.ScanOpportunities(context.Background(), []string{"BTC"}, cfg)
	require.NoError(t, err)
	require.False(t, opps[0].Viable)
	require.Contains(t, opps[0].Reason, "entry cost ratio")
}

func TestScanNoDataIsNotZeroRate(t *testing.T) {
	ex := &fakeExchange{rates: map[string]*okx.FundingRate{}}
	engine := NewEngine(ex, testLogger())

	opps, err := engine.ScanOpportunities(context.Background(), []string{"DOGE"}, testConfig())
	require.NoError(t, err)
	require.False(t, opps[0].Viable)
	require.Contains(t, opps[0].Reason, "no funding data")
	require.True(t, opps[0].Rate.IsZero())
}

func viableOpportunity(t *testing.T, ex *fakeExchange, symbol string) domain.FundingOpportunity {
	t.Helper()
	engine := NewEngine(ex, testLogger())
	opps, err := engine.ScanOpportunities(context.Background(), []string{symbol}, testConfig())
	require.NoError(t, err)
	require.True(t, opps[0].Viable)
	return opps[0]
}

func TestOpenPositionPlacesBothLegs(t *testing.T) {
	ex := &fakeExchange{
		rates:   rateFor("BTC-USDT-SWAP", 0.0008),
		tickers: map[string]*okx.Ticker{"BTC-USDT": {InstID: "BTC-USDT", Last: decimal.NewFromInt(50_000)}},
		results: []orderResult{{orderID: "perp-1"}, {orderID: "spot-1"}},
	}
	opp := viableOpportunity(t, ex, "BTC")
	engine := NewEngine(ex, testLogger())

	result, err := engine.OpenPosition(context.Background(), opp, decimal.NewFromInt(10_000), testConfig())
	require.NoError(t, err)
	require.Len(t, ex.placed, 2)

	// Positive funding: short the perp first, buy spot second.
	require.Equal(t, "BTC-USDT-SWAP", ex.placed[0].InstID)
	require.Equal(t, "sell", ex.placed[0].Side)
	require.Equal(t, "short", ex.placed[0].PosSide)
	require.Equal(t, "BTC-USDT", ex.placed[1].InstID)
	require.Equal(t, "buy", ex.placed[1].Side)
	require.Equal(t, ex.placed[0].Size, ex.placed[1].Size)

	pos := result.Position
	require.Len(t, pos.Legs, 2)
	require.Equal(t, domain.PositionOpen, pos.Status)
	require.Equal(t, "perp-1", pos.Legs[0].OrderID)
	require.Equal(t, "spot-1", pos.Legs[1].OrderID)
}

func TestOpenPositionCompensatesWhenSpotLegFails(t *testing.T) {
	ex := &fakeExchange{
		rates:   rateFor("BTC-USDT-SWAP", 0.0008),
		tickers: map[string]*okx.Ticker{"BTC-USDT": {InstID: "BTC-USDT", Last: decimal.NewFromInt(50_000)}},
		results: []orderResult{
			{orderID: "perp-1"},
			{err: errors.New("insufficient balance")},
			{orderID: "unwind-1"},
		},
	}
	opp := viableOpportunity(t, ex, "BTC")
	engine := NewEngine(ex, testLogger())

	_, err := engine.OpenPosition(context.Background(), opp, decimal.NewFromInt(10_000), testConfig())
	require.Error(t, err)

	var imbalance *domain.HedgeImbalanceError
	require.False(t, errors.As(err, &imbalance), "compensated unwind must not be a hedge imbalance")

	// Three orders: perp open, failed spot, compensating perp close.
	require.Len(t, ex.placed, 3)
	unwind := ex.placed[2]
	require.Equal(t, "BTC-USDT-SWAP", unwind.InstID)
	require.Equal(t, "buy", unwind.Side)
	require.Equal(t, ex.placed[0].Size, unwind.Size)
}

func TestOpenPositionReportsHedgeImbalance(t *testing.T) {
	legErr := errors.New("spot rejected")
	compErr := errors.New("exchange down")
	ex := &fakeExchange{
		rates:   rateFor("BTC-USDT-SWAP", 0.0008),
		tickers: map[string]*okx.Ticker{"BTC-USDT": {InstID: "BTC-USDT", Last: decimal.NewFromInt(50_000)}},
		results: []orderResult{
			{orderID: "perp-1"},
			{err: legErr},
			{err: compErr},
		},
	}
	opp := viableOpportunity(t, ex, "BTC")
	engine := NewEngine(ex, testLogger())

	_, err := engine.OpenPosition(context.Background(), opp, decimal.NewFromInt(10_000), testConfig())

	var imbalance *domain.HedgeImbalanceError
	require.ErrorAs(t, err, &imbalance)
	require.Equal(t, "BTC", imbalance.Symbol)
	require.Equal(t, "perp-1", imbalance.OpenLegOrderID)
	require.Equal(t, legErr, imbalance.LegErr)
	require.Equal(t, compErr, imbalance.CompensationErr)
}

func TestOpenPositionAbortsWhenRateFlips(t *testing.T) {
	ex := &fakeExchange{
		rates:   rateFor("BTC-USDT-SWAP", 0.0008),
		tickers: map[string]*okx.Ticker{"BTC-USDT": {InstID: "BTC-USDT", Last: decimal.NewFromInt(50_000)}},
	}
	opp := viableOpportunity(t, ex, "BTC")

	// Funding flips sign between scan and execution.
	ex.rates = rateFor("BTC-USDT-SWAP", -0.0008)
	engine := NewEngine(ex, testLogger())

	_, err := engine.OpenPosition(context.Background(), opp, decimal.NewFromInt(10_000), testConfig())
	require.ErrorIs(t, err, domain.ErrNotViable)
	require.Empty(t, ex.placed)
}

func TestOpenPositionAbortsWhenRateDecays(t *testing.T) {
	ex := &fakeExchange{
		rates:   rateFor("BTC-USDT-SWAP", 0.0008),
		tickers: map[string]*okx.Ticker{"BTC-USDT": {InstID: "BTC-USDT", Last: decimal.NewFromInt(50_000)}},
	}
	opp := viableOpportunity(t, ex, "BTC")

	ex.rates = rateFor("BTC-USDT-SWAP", 0.00001)
	engine := NewEngine(ex, testLogger())

	_, err := engine.OpenPosition(context.Background(), opp, decimal.NewFromInt(10_000), testConfig())
	require.ErrorIs(t, err, domain.ErrNotViable)
	require.Empty(t, ex.placed)
}

func openPosition() domain.ArbPosition {
	return domain.ArbPosition{
		ID:          "pos-1",
		Symbol:      "BTC",
		Direction:   domain.DirectionLongSpotShortPerp,
		NotionalUSD: decimal.NewFromInt(10_000),
		Status:      domain.PositionOpen,
		EntryMark:   decimal.NewFromInt(50_000),
		Legs: []domain.PositionLeg{
			{Market: domain.LegPerp, InstID: "BTC-USDT-SWAP", Side: "sell", Size: decimal.NewFromFloat(0.2), OrderID: "perp-1"},
			{Market: domain.LegSpot, InstID: "BTC-USDT", Side: "buy", Size: decimal.NewFromFloat(0.2), OrderID: "spot-1"},
		},
	}
}

func TestClosePositionUnwindsBothLegs(t *testing.T) {
	ex := &fakeExchange{
		positions: []okx.Position{{InstID: "BTC-USDT-SWAP", Pos: decimal.NewFromFloat(-0.2)}},
		balance: &okx.AccountBalance{Details: []okx.Balance{
			{Currency: "BTC", Available: decimal.NewFromFloat(0.2)},
		}},
		tickers: map[string]*okx.Ticker{"BTC-USDT": {InstID: "BTC-USDT", Last: decimal.NewFromInt(51_000)}},
	}
	engine := NewEngine(ex, testLogger())

	result, err := engine.ClosePosition(context.Background(), openPosition())
	require.NoError(t, err)
	require.False(t, result.AlreadyFlat)
	require.Len(t, result.ClosedLegs, 2)
	require.Len(t, ex.placed, 2)

	// Closing a short perp buys it back; closing a spot holding sells it.
	require.Equal(t, "buy", ex.placed[0].Side)
	require.Equal(t, "sell", ex.placed[1].Side)

	// Mark moved 50_000 -> 51_000 on 0.2 size: +200 estimated.
	require.Equal(t, "200", result.EstimatedPnl.String())
}

func TestClosePositionIsIdempotentWhenFlat(t *testing.T) {
	ex := &fakeExchange{
		positions: nil,
		balance:   &okx.AccountBalance{},
		tickers:   map[string]*okx.Ticker{"BTC-USDT": {InstID: "BTC-USDT", Last: decimal.NewFromInt(50_000)}},
	}
	engine := NewEngine(ex, testLogger())

	result, err := engine.ClosePosition(context.Background(), openPosition())
	require.NoError(t, err)
	require.True(t, result.AlreadyFlat)
	require.Empty(t, ex.placed)
}

func TestClosePositionClosesOnlyLiveLeg(t *testing.T) {
	// Perp already flat, spot still held: only the spot leg gets an order.
	ex := &fakeExchange{
		positions: nil,
		balance: &okx.AccountBalance{Details: []okx.Balance{
			{Currency: "BTC", Available: decimal.NewFromFloat(0.2)},
		}},
		tickers: map[string]*okx.Ticker{"BTC-USDT": {InstID: "BTC-USDT", Last: decimal.NewFromInt(50_000)}},
	}
	engine := NewEngine(ex, testLogger())

	result, err := engine.ClosePosition(context.Background(), openPosition())
	require.NoError(t, err)
	require.False(t, result.AlreadyFlat)
	require.Len(t, ex.placed, 1)
	require.Equal(t, "BTC-USDT", ex.placed[0].InstID)
}
