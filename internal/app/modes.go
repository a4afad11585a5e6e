package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/defolio/defolio/internal/server"
	"github.com/defolio/defolio/internal/server/handler"
)

// ServeMode runs the HTTP API until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(deps.Postgres.Pool(), Version),
		Opportunities: handler.NewOpportunitiesHandler(deps.ArbService, a.logger),
		Positions: handler.NewPositionsHandler(deps.ArbService,
			decimal.NewFromFloat(a.cfg.Arbitrage.DefaultSizeUSD), a.logger),
		Bridge: handler.NewBridgeHandler(deps.Queue, a.logger),
		Plans:  handler.NewPlansHandler(deps.PlanService, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, deps.Wallet, a.logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ScanMode runs one funding-rate scan over the configured symbols, logs every
// opportunity, and exits. Useful for cron jobs and smoke tests.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	opps, err := deps.ArbService.Scan(ctx)
	if err != nil {
		return err
	}

	for _, opp := range opps {
		attrs := []any{
			slog.String("symbol", opp.Symbol),
			slog.String("annualized_pct", opp.AnnualizedRatePct.StringFixed(2)),
			slog.String("direction", string(opp.Direction)),
			slog.Bool("viable", opp.Viable),
		}
		if !opp.Viable {
			attrs = append(attrs, slog.String("reason", opp.Reason))
		}
		a.logger.InfoContext(ctx, "opportunity", attrs...)
	}

	return nil
}
