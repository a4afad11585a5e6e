package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service liveness and backend reachability.
type HealthHandler struct {
	db        Pinger
	startedAt time.Time
	version   string
}

// NewHealthHandler creates a HealthHandler. db may be nil.
func NewHealthHandler(db Pinger, version string) *HealthHandler {
	return &HealthHandler{db: db, startedAt: time.Now().UTC(), version: version}
}

// HealthCheck handles GET /api/health.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "skipped"
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			dbStatus = "unreachable"
		} else {
			dbStatus = "ok"
		}
	}

	status := http.StatusOK
	if dbStatus == "unreachable" {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status":   "ok",
		"version":  h.version,
		"uptime":   time.Since(h.startedAt).Round(time.Second).String(),
		"database": dbStatus,
	})
}
