package handler

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/defolio/defolio/internal/bridge"
	"github.com/defolio/defolio/internal/domain"
)

// BridgeHandler exposes the confirmation queue over HTTP.
type BridgeHandler struct {
	queue  *bridge.Queue
	logger *slog.Logger
}

// NewBridgeHandler creates a BridgeHandler.
func NewBridgeHandler(queue *bridge.Queue, logger *slog.Logger) *BridgeHandler {
	return &BridgeHandler{queue: queue, logger: logger.With(slog.String("handler", "bridge"))}
}

// List handles GET /api/bridge. An optional status query filters entries.
func (h *BridgeHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.BridgeTxStatus(r.URL.Query().Get("status"))
	entries, err := h.queue.List(r.Context(), status, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": entries})
}

type proposeRequest struct {
	ChainID     int64           `json:"chain_id"`
	Kind        string          `json:"kind"`
	NotionalUSD decimal.Decimal `json:"notional_usd"`
	To          string          `json:"to"`
	Data        string          `json:"data"`
	Value       string          `json:"value"` // wei, decimal string
	Description string          `json:"description"`
}

// Propose handles POST /api/bridge.
func (h *BridgeHandler) Propose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ChainID <= 0 || req.To == "" {
		writeError(w, http.StatusBadRequest, "chain_id and to are required")
		return
	}

	value := big.NewInt(0)
	if req.Value != "" {
		v, ok := new(big.Int).SetString(req.Value, 10)
		if !ok {
			writeError(w, http.StatusBadRequest, "value must be a decimal wei string")
			return
		}
		value = v
	}

	tx, err := h.queue.Propose(r.Context(), domain.PendingBridgeTransaction{
		ChainID:     req.ChainID,
		Kind:        domain.StepKind(req.Kind),
		NotionalUSD: req.NotionalUSD,
		To:          req.To,
		Data:        req.Data,
		Value:       value,
		Description: req.Description,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// Confirm handles POST /api/bridge/{id}/confirm: the explicit user approval
// that releases an entry to the signing session.
func (h *BridgeHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tx, err := h.queue.Confirm(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "confirm failed",
			slog.String("id", id), slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// Reject handles POST /api/bridge/{id}/reject.
func (h *BridgeHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tx, err := h.queue.Reject(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}
