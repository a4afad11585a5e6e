// Package service composes the execution engines with storage, caching,
// locking, alerting and archival into the operations the API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/defolio/defolio/internal/arb"
	"github.com/defolio/defolio/internal/domain"
	"github.com/defolio/defolio/internal/notify"
)

// openLockTTL bounds how long a per-symbol open lock can outlive a crashed
// holder.
const openLockTTL = 2 * time.Minute

// ArbService wraps the arbitrage engine with persistence, per-symbol
// locking, rate caching and operator alerts.
type ArbService struct {
	engine    *arb.Engine
	cfg       domain.ArbConfig
	symbols   []string
	locks     domain.LockManager
	rateCache domain.RateCache
	positions domain.PositionStore
	audit     domain.AuditStore
	notifier  notify.Notifier
	logger    *slog.Logger
}

// NewArbService creates an ArbService. locks, rateCache and audit may be nil
// when the corresponding backend is not configured.
func NewArbService(
	engine *arb.Engine,
	cfg domain.ArbConfig,
	symbols []string,
	locks domain.LockManager,
	rateCache domain.RateCache,
	positions domain.PositionStore,
	audit domain.AuditStore,
	notifier notify.Notifier,
	logger *slog.Logger,
) *ArbService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &ArbService{
		engine:    engine,
		cfg:       cfg,
		symbols:   symbols,
		locks:     locks,
		rateCache: rateCache,
		positions: positions,
		audit:     audit,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "arb_service")),
	}
}

// Scan evaluates the configured symbol universe and returns all
// opportunities, viable or not, sorted by absolute annualized rate
// descending. Fresh observations are written through to the rate cache.
func (s *ArbService) Scan(ctx context.Context) ([]domain.FundingOpportunity, error) {
	opps, err := s.engine.ScanOpportunities(ctx, s.symbols, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("service: scan: %w", err)
	}

	for _, opp := range opps {
		if opp.Rate.IsZero() && opp.Reason != "" {
			continue // failed read, nothing worth caching
		}
		s.cacheRate(ctx, opp)
	}

	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].AnnualizedRatePct.Abs().GreaterThan(opps[j].AnnualizedRatePct.Abs())
	})
	return opps, nil
}

func (s *ArbService) cacheRate(ctx context.Context, opp domain.FundingOpportunity) {
	if s.rateCache == nil {
		return
	}
	if err := s.rateCache.SetRate(ctx, opp.InstID, opp.Rate.String(), opp.ObservedAt); err != nil {
		s.logger.WarnContext(ctx, "rate cache write failed",
			slog.String("inst_id", opp.InstID), slog.String("error", err.Error()))
	}
}

// CachedRate returns the last cached observation for an instrument, for use
// when the exchange is unreachable.
func (s *ArbService) CachedRate(ctx context.Context, instID string) (string, time.Time, error) {
	if s.rateCache == nil {
		return "", time.Time{}, domain.ErrNotFound
	}
	return s.rateCache.GetRate(ctx, instID)
}

// OpenPosition evaluates the symbol fresh, opens the hedge, and persists the
// resulting position. A per-symbol lock prevents two concurrent opens from
// racing the same hedge, and an existing open position for the symbol is
// refused rather than doubled.
func (s *ArbService) OpenPosition(ctx context.Context, symbol string, sizeUSD decimal.Decimal) (domain.ArbPosition, error) {
	if s.locks != nil {
		release, err := s.locks.Acquire(ctx, "arblock:"+symbol, openLockTTL)
		if err != nil {
			return domain.ArbPosition{}, fmt.Errorf("service: open %s: %w", symbol, err)
		}
		defer release()
	}

	if _, err := s.positions.GetOpenBySymbol(ctx, symbol); err == nil {
		return domain.ArbPosition{}, fmt.Errorf("service: open %s: position already open", symbol)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.ArbPosition{}, fmt.Errorf("service: open %s: %w", symbol, err)
	}

	opps, err := s.engine.ScanOpportunities(ctx, []string{symbol}, s.cfg)
	if err != nil {
		return domain.ArbPosition{}, fmt.Errorf("service: open %s: %w", symbol, err)
	}
	opp := opps[0]
	if !opp.Viable {
		return domain.ArbPosition{}, fmt.Errorf("service: open %s: %w: %s", symbol, domain.ErrNotViable, opp.Reason)
	}

	result, err := s.engine.OpenPosition(ctx, opp, sizeUSD, s.cfg)
	if err != nil {
		var imbalance *domain.HedgeImbalanceError
		if errors.As(err, &imbalance) {
			s.alert(ctx, notify.SeverityCritical, "Hedge imbalance",
				fmt.Sprintf("%s has a live %s perp leg (order %s) with no spot hedge; manual reconciliation required",
					imbalance.Symbol, imbalance.OpenLegSide, imbalance.OpenLegOrderID))
			s.auditLog(ctx, "hedge_imbalance", map[string]any{
				"symbol": symbol, "perp_order_id": imbalance.OpenLegOrderID,
			})
		}
		return domain.ArbPosition{}, fmt.Errorf("service: open %s: %w", symbol, err)
	}

	pos := result.Position
	pos.ID = uuid.New().String()
	if err := s.positions.Create(ctx, pos); err != nil {
		// Both legs are live on the exchange; a lost record must be loud.
		s.alert(ctx, notify.SeverityCritical, "Position persist failed",
			fmt.Sprintf("%s hedge is live on the exchange but could not be recorded: %v", symbol, err))
		return domain.ArbPosition{}, fmt.Errorf("service: persist position %s: %w", symbol, err)
	}

	s.auditLog(ctx, "position_opened", map[string]any{
		"id": pos.ID, "symbol": symbol, "direction": string(pos.Direction),
		"notional_usd": pos.NotionalUSD.String(),
		"entry_cost":   result.RealizedEntryCost.String(),
	})
	return pos, nil
}

// ClosePosition unwinds the open position for a symbol and records its
// estimated PnL.
func (s *ArbService) ClosePosition(ctx context.Context, symbol string) (*arb.CloseResult, error) {
	pos, err := s.positions.GetOpenBySymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("service: close %s: %w", symbol, err)
	}

	result, err := s.engine.ClosePosition(ctx, pos)
	if err != nil {
		return nil, fmt.Errorf("service: close %s: %w", symbol, err)
	}

	if err := s.positions.Close(ctx, pos.ID, result.EstimatedPnl.String()); err != nil {
		return nil, fmt.Errorf("service: record close %s: %w", symbol, err)
	}

	s.auditLog(ctx, "position_closed", map[string]any{
		"id": pos.ID, "symbol": symbol,
		"already_flat":  result.AlreadyFlat,
		"estimated_pnl": result.EstimatedPnl.String(),
	})
	return result, nil
}

// ListPositions returns recent positions, newest first.
func (s *ArbService) ListPositions(ctx context.Context, opts domain.ListOpts) ([]domain.ArbPosition, error) {
	return s.positions.ListRecent(ctx, opts)
}

func (s *ArbService) alert(ctx context.Context, sev notify.Severity, title, message string) {
	_ = s.notifier.Notify(ctx, sev, title, message)
}

func (s *ArbService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event), slog.String("error", err.Error()))
	}
}
