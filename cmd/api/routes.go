package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/memberhub/backend/internal/middleware"
	"github.com/memberhub/backend/internal/models"
)

// registerActionRoutes adds the metered member actions. Each one is proxied to
// the data service after the gate and, where metered, a quota deduction.
// Chain: Gate (router-wide) -> RequireQuota -> upstream.
func registerActionRoutes(r chi.Router, quotas middleware.QuotaDeducter, upstream http.Handler, log zerolog.Logger) {
	r.Route("/api/debts", func(r chi.Router) {
		r.With(middleware.RequireQuota(quotas, models.ActionUpload, log)).
			Post("/upload", upstream.ServeHTTP)
		r.With(middleware.RequireQuota(quotas, models.ActionQuery, log)).
			Get("/search", upstream.ServeHTTP)
		// Likes are gated but never metered.
		r.Post("/{id}/like", upstream.ServeHTTP)
	})
}
