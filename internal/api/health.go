package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// Pinger reports backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := "healthy"
	statusCode := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	JSON(w, statusCode, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// RegisterHealth registers the dependency health route. The plain liveness
// probe at /health is served by chi's Heartbeat middleware.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/healthz", h.Health)
}
