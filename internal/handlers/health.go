package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/agasthyaps/nisa-labs-sub000/internal/store"
)

// HealthHandler serves liveness and readiness.
type HealthHandler struct {
	store   store.DataStore
	started time.Time
	logger  zerolog.Logger
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(ds store.DataStore, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{store: ds, started: time.Now(), logger: logger}
}

// HandleHealth handles GET /health. Degraded storage reports 503 so load
// balancers rotate the instance out.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	dbStatus := "ok"
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("health check: storage ping failed")
		status = http.StatusServiceUnavailable
		dbStatus = "unavailable"
	}

	respondJSON(w, status, map[string]any{
		"status":         dbStatus,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}
