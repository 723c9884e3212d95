package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/forgo/saga/presence/internal/model"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsSource supplies live presence counts
type StatsSource interface {
	Stats() *model.PresenceStats
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HealthHandler serves operational endpoints
type HealthHandler struct {
	db      Pinger
	stats   StatsSource
	timeout time.Duration
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger, stats StatsSource) *HealthHandler {
	return &HealthHandler{db: db, stats: stats, timeout: 2 * time.Second}
}

// Health handles GET /health. The process is live whenever it answers; a
// failed store ping degrades the status to 503 so load balancers can drain it.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		slog.Warn("health check: database unreachable", slog.String("error", err.Error()))
		WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Database: "unreachable"})
		return
	}
	WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Database: "ok"})
}

// Stats handles GET /v1/presence/stats
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.stats.Stats())
}
