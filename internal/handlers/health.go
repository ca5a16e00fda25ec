package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/memberhub/backend/internal/httpx"
)

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler serves GET /api/health.
type HealthHandler struct {
	Checks map[string]HealthCheck
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.Checks))
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	if status != http.StatusOK {
		httpx.Error(w, status, "unhealthy", "dependency check failed")
		return
	}
	httpx.JSON(w, status, results)
}
