package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/defolio/defolio/internal/service"
)

// PositionsHandler exposes hedged-position operations.
type PositionsHandler struct {
	arb            *service.ArbService
	defaultSizeUSD decimal.Decimal
	logger         *slog.Logger
}

// NewPositionsHandler creates a PositionsHandler.
func NewPositionsHandler(arb *service.ArbService, defaultSizeUSD decimal.Decimal, logger *slog.Logger) *PositionsHandler {
	return &PositionsHandler{
		arb:            arb,
		defaultSizeUSD: defaultSizeUSD,
		logger:         logger.With(slog.String("handler", "positions")),
	}
}

// List handles GET /api/positions.
func (h *PositionsHandler) List(w http.ResponseWriter, r *http.Request) {
	positions, err := h.arb.ListPositions(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

type openPositionRequest struct {
	Symbol  string          `json:"symbol"`
	SizeUSD decimal.Decimal `json:"size_usd"`
}

// Open handles POST /api/positions/open.
func (h *PositionsHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	size := req.SizeUSD
	if size.IsZero() {
		size = h.defaultSizeUSD
	}
	if !size.IsPositive() {
		writeError(w, http.StatusBadRequest, "size_usd must be positive")
		return
	}

	pos, err := h.arb.OpenPosition(r.Context(), req.Symbol, size)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "open position failed",
			slog.String("symbol", req.Symbol), slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}

type closePositionRequest struct {
	Symbol string `json:"symbol"`
}

// Close handles POST /api/positions/close.
func (h *PositionsHandler) Close(w http.ResponseWriter, r *http.Request) {
	var req closePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	result, err := h.arb.ClosePosition(r.Context(), req.Symbol)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "close position failed",
			slog.String("symbol", req.Symbol), slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"already_flat":  result.AlreadyFlat,
		"closed_legs":   result.ClosedLegs,
		"estimated_pnl": result.EstimatedPnl,
	})
}
