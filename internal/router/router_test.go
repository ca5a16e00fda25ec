package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/memberhub/backend/internal/auth"
	"github.com/memberhub/backend/internal/gate"
	"github.com/memberhub/backend/internal/handlers"
	"github.com/memberhub/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubAuthorizer struct {
	decision gate.Decision
	calls    int
}

func (s *stubAuthorizer) Authorize(context.Context, gate.Request) gate.Decision {
	s.calls++
	return s.decision
}

type stubQuotaAdmin struct {
	resets int
}

func (s *stubQuotaAdmin) ResetTotal(context.Context, uuid.UUID, *uuid.UUID) error { return nil }

func (s *stubQuotaAdmin) ResetDaily(context.Context) (int64, error) {
	s.resets++
	return 3, nil
}

func newTestRouter(authz *stubAuthorizer, quotas *stubQuotaAdmin, upstream http.Handler) http.Handler {
	return New(Deps{
		Auth:         auth.NewHandler(nil, nil, zerolog.Nop(), false, 0),
		Subscription: &handlers.SubscriptionHandler{Logger: zerolog.Nop()},
		Admin:        &handlers.AdminHandler{Quotas: quotas, Logger: zerolog.Nop()},
		Health:       &handlers.HealthHandler{},
		Gate:         authz,
		Upstream:     upstream,
		Logger:       zerolog.Nop(),
	})
}

func allowAs(role string) gate.Decision {
	return gate.Decision{Allow: true, Principal: &gate.Principal{
		Account:   &models.Account{ID: uuid.New(), Role: role, Status: models.AccountStatusApproved},
		SessionID: "sid",
	}}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRouter_HealthAllowed(t *testing.T) {
	authz := &stubAuthorizer{decision: gate.Decision{Allow: true}}
	rec := httptest.NewRecorder()
	newTestRouter(authz, &stubQuotaAdmin{}, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if authz.calls != 1 {
		t.Fatalf("gate should run once, ran %d times", authz.calls)
	}
}

func TestRouter_DeniedNeverReachesHandler(t *testing.T) {
	authz := &stubAuthorizer{decision: gate.Decision{
		Reason:     gate.KindAuthorization,
		RedirectTo: gate.DashboardPath,
	}}
	quotas := &stubQuotaAdmin{}
	rec := httptest.NewRecorder()
	newTestRouter(authz, quotas, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/quota/reset-daily", nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if quotas.resets != 0 {
		t.Fatal("admin handler ran despite denial")
	}
}

func TestRouter_AdminRoute(t *testing.T) {
	quotas := &stubQuotaAdmin{}
	rec := httptest.NewRecorder()
	newTestRouter(&stubAuthorizer{decision: allowAs(models.RoleAdmin)}, quotas, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/quota/reset-daily", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if quotas.resets != 1 {
		t.Fatalf("expected one reset, got %d", quotas.resets)
	}
}

func TestRouter_UnmatchedGoesUpstream(t *testing.T) {
	var hit string
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = r.URL.Path
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	newTestRouter(&stubAuthorizer{decision: allowAs(models.RoleUser)}, &stubQuotaAdmin{}, upstream).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if rec.Code != http.StatusTeapot || hit != "/dashboard" {
		t.Fatalf("expected upstream to serve /dashboard, got %d %q", rec.Code, hit)
	}
}

func TestRouter_PageDenialRedirects(t *testing.T) {
	authz := &stubAuthorizer{decision: gate.Decision{
		Reason:     gate.KindAuthentication,
		RedirectTo: "/login?redirect=%2Fdashboard",
	}}
	rec := httptest.NewRecorder()
	newTestRouter(authz, &stubQuotaAdmin{}, http.NotFoundHandler()).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login?redirect=%2Fdashboard" {
		t.Fatalf("unexpected Location %q", loc)
	}
}
