package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/defolio/defolio/internal/domain"
	"github.com/defolio/defolio/internal/service"
)

// PlansHandler runs transaction plans through the orchestrator.
type PlansHandler struct {
	plans  *service.PlanService
	logger *slog.Logger
}

// NewPlansHandler creates a PlansHandler.
func NewPlansHandler(plans *service.PlanService, logger *slog.Logger) *PlansHandler {
	return &PlansHandler{plans: plans, logger: logger.With(slog.String("handler", "plans"))}
}

type executePlanRequest struct {
	Steps []domain.TransactionStep `json:"steps"`
}

// Execute handles POST /api/plans/execute. The response always carries the
// full per-step outcome record; the HTTP status reflects how the run ended.
// A user rejection is 200 with a rejected outcome, not an error.
func (h *PlansHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req executePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Steps) == 0 {
		writeError(w, http.StatusBadRequest, "steps must not be empty")
		return
	}
	for _, step := range req.Steps {
		if step.ChainID <= 0 || step.To == "" {
			writeError(w, http.StatusBadRequest, "steps must carry chain_id and to")
			return
		}
	}

	exec, err := h.plans.Execute(r.Context(), req.Steps)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "plan execution ended with error",
			slog.String("execution_id", exec.ID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"execution": exec,
			"error":     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"execution": exec})
}
