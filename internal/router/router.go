package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/memberhub/backend/internal/auth"
	"github.com/memberhub/backend/internal/handlers"
	"github.com/memberhub/backend/internal/middleware"
)

type Deps struct {
	Auth         *auth.Handler
	Subscription *handlers.SubscriptionHandler
	Admin        *handlers.AdminHandler
	Health       *handlers.HealthHandler
	Gate         middleware.Authorizer
	// Upstream receives every allowed request no local route claims.
	Upstream http.Handler
	Logger   zerolog.Logger
}

// New assembles the chi router. Every request passes the authorization gate
// before reaching a handler or the upstream proxy.
func New(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(d.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Gate(d.Gate, d.Logger))

	r.Get("/api/health", d.Health.Health)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", d.Auth.Register)
		r.Post("/login", d.Auth.Login)
		r.Post("/logout", d.Auth.Logout)
		r.Post("/resolve-conflict", d.Auth.ResolveConflict)
		r.Get("/me", d.Auth.Me)
	})

	r.Route("/api/subscription", func(r chi.Router) {
		r.Get("/status", d.Subscription.Status)
		r.Get("/history", d.Subscription.History)
		r.Post("/check-quota", d.Subscription.CheckQuota)
		r.Post("/deduct-quota", d.Subscription.DeductQuota)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/subscription/adjust-days", d.Admin.AdjustDays)
		r.Post("/subscription/cancel", d.Admin.Cancel)
		r.Post("/quota/reset-total", d.Admin.ResetTotal)
		r.Post("/quota/reset-daily", d.Admin.ResetDaily)
		r.Get("/accounts", d.Admin.ListAccounts)
		r.Post("/accounts/status", d.Admin.SetAccountStatus)
		r.Post("/accounts/level", d.Admin.SetAccountLevel)
		r.Post("/catalog/flush", d.Admin.FlushCatalog)
	})

	if d.Upstream != nil {
		r.NotFound(d.Upstream.ServeHTTP)
	}
	return r
}
