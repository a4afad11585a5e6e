package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/defolio/defolio/internal/service"
)

// OpportunitiesHandler serves funding-rate scan results.
type OpportunitiesHandler struct {
	arb    *service.ArbService
	logger *slog.Logger
}

// NewOpportunitiesHandler creates an OpportunitiesHandler.
func NewOpportunitiesHandler(arb *service.ArbService, logger *slog.Logger) *OpportunitiesHandler {
	return &OpportunitiesHandler{arb: arb, logger: logger.With(slog.String("handler", "opportunities"))}
}

// List handles GET /api/opportunities. Results are sorted by absolute
// annualized rate, best first; non-viable symbols are included with a reason
// so the dashboard can show why they were skipped.
func (h *OpportunitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	opps, err := h.arb.Scan(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "scan failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": opps,
		"scanned_at":    time.Now().UTC(),
	})
}
