package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/memberhub/backend/internal/ledger"
	"github.com/memberhub/backend/internal/middleware"
	"github.com/memberhub/backend/internal/models"
	"github.com/memberhub/backend/internal/subscription"
	"github.com/memberhub/backend/internal/validation"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubSubs struct {
	sub *models.Subscription
	err error

	adjustDelta int
	adjustActor *uuid.UUID
}

func (s *stubSubs) Current(_ context.Context, _ uuid.UUID) (*models.Subscription, subscription.State, error) {
	if s.err != nil {
		return nil, subscription.State{}, s.err
	}
	return s.sub, subscription.Derive(s.sub, time.Now()), nil
}

func (s *stubSubs) History(_ context.Context, _ uuid.UUID) (subscription.History, error) {
	if s.err != nil {
		return subscription.History{}, s.err
	}
	h := subscription.History{Audit: []models.AuditEntry{{Action: models.AuditStartTrial, DeltaDays: 30}}}
	if s.sub != nil {
		h.Subscriptions = []subscription.HistoryItem{{Subscription: *s.sub, State: subscription.Derive(s.sub, time.Now())}}
	}
	return h, nil
}

func (s *stubSubs) AdjustDays(_ context.Context, _ uuid.UUID, delta int, _ string, actor *uuid.UUID) (*models.Subscription, subscription.State, error) {
	if delta == 0 || delta > subscription.MaxAdjustDays || delta < -subscription.MaxAdjustDays {
		return nil, subscription.State{}, subscription.ErrInvalidRange
	}
	if s.err != nil {
		return nil, subscription.State{}, s.err
	}
	s.adjustDelta, s.adjustActor = delta, actor
	s.sub.EndDate = s.sub.EndDate.AddDate(0, 0, delta)
	return s.sub, subscription.Derive(s.sub, time.Now()), nil
}

func (s *stubSubs) Cancel(_ context.Context, _ uuid.UUID, _ string, _ *uuid.UUID) (*models.Subscription, subscription.State, error) {
	if s.err != nil {
		return nil, subscription.State{}, s.err
	}
	s.sub.Status = models.SubscriptionStatusCancelled
	return s.sub, subscription.Derive(s.sub, time.Now()), nil
}

type stubLedger struct {
	remaining map[string]int
	err       error
	resets    int
}

func (l *stubLedger) CheckQuota(_ context.Context, _ uuid.UUID, action string) (ledger.QuotaStatus, error) {
	if l.err != nil {
		return ledger.QuotaStatus{}, l.err
	}
	if action != models.ActionUpload && action != models.ActionQuery {
		return ledger.QuotaStatus{}, ledger.ErrUnknownAction
	}
	r := l.remaining[action]
	return ledger.QuotaStatus{ActionType: action, HasQuota: r > 0, Remaining: r, Limit: 10, QuotaType: models.QuotaTotal}, nil
}

func (l *stubLedger) Deduct(ctx context.Context, id uuid.UUID, action string) (ledger.DeductResult, error) {
	st, err := l.CheckQuota(ctx, id, action)
	if err != nil || !st.HasQuota {
		return ledger.DeductResult{QuotaStatus: st}, err
	}
	l.remaining[action]--
	st, _ = l.CheckQuota(ctx, id, action)
	return ledger.DeductResult{Success: true, QuotaStatus: st}, nil
}

func (l *stubLedger) ResetTotal(_ context.Context, _ uuid.UUID, _ *uuid.UUID) error {
	l.resets++
	return l.err
}

func (l *stubLedger) ResetDaily(_ context.Context) (int64, error) {
	return 3, l.err
}

type stubPlans struct{}

func (stubPlans) Plan(_ context.Context, id uuid.UUID) (*models.PlanConfig, error) {
	return &models.PlanConfig{ID: id, PlanName: "vip_monthly"}, nil
}

func mustValidator(t *testing.T) *validation.Validator {
	t.Helper()
	v, err := validation.New()
	if err != nil {
		t.Fatalf("validation.New: %v", err)
	}
	return v
}

func authed(method, path, body string, acc *models.Account) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if acc != nil {
		req = req.WithContext(middleware.WithAccount(req.Context(), acc))
	}
	return req
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

// ---------------------------------------------------------------------------
// Subscription handler
// ---------------------------------------------------------------------------

func newSubscriptionHandler(t *testing.T, subs *stubSubs, l *stubLedger) *SubscriptionHandler {
	return &SubscriptionHandler{Subscriptions: subs, Ledger: l, Plans: stubPlans{}, Validator: mustValidator(t), Logger: zerolog.Nop()}
}

func TestStatus(t *testing.T) {
	end := time.Now().Add(50 * time.Hour)
	subs := &stubSubs{sub: &models.Subscription{PlanID: uuid.New(), PlanType: models.PlanTypePaid, Status: models.SubscriptionStatusActive, EndDate: end}}
	l := &stubLedger{remaining: map[string]int{models.ActionUpload: 4, models.ActionQuery: 7}}
	h := newSubscriptionHandler(t, subs, l)

	rec := httptest.NewRecorder()
	h.Status(rec, authed(http.MethodGet, "/api/subscription/status", "", &models.Account{ID: uuid.New()}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var data statusResponse
	if err := json.Unmarshal(decode(t, rec).Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if !data.HasSubscription || !data.IsActive || data.PlanName != "vip_monthly" || data.DaysRemaining != 3 {
		t.Errorf("unexpected status %+v", data)
	}
	if len(data.Quotas) != 2 || data.Quotas[0].Remaining != 4 || data.Quotas[1].Remaining != 7 {
		t.Errorf("unexpected quotas %+v", data.Quotas)
	}
}

func TestStatus_NoSubscription(t *testing.T) {
	h := newSubscriptionHandler(t, &stubSubs{err: subscription.ErrNoSubscription}, &stubLedger{remaining: map[string]int{}})

	rec := httptest.NewRecorder()
	h.Status(rec, authed(http.MethodGet, "/api/subscription/status", "", &models.Account{ID: uuid.New()}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var data statusResponse
	_ = json.Unmarshal(decode(t, rec).Data, &data)
	if data.HasSubscription || data.IsActive {
		t.Errorf("expected no active subscription, got %+v", data)
	}
}

func TestStatus_LookupFailure(t *testing.T) {
	h := newSubscriptionHandler(t, &stubSubs{err: errors.New("db down")}, &stubLedger{})

	rec := httptest.NewRecorder()
	h.Status(rec, authed(http.MethodGet, "/api/subscription/status", "", &models.Account{ID: uuid.New()}))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestDeductQuota(t *testing.T) {
	l := &stubLedger{remaining: map[string]int{models.ActionUpload: 1}}
	h := newSubscriptionHandler(t, &stubSubs{}, l)
	acc := &models.Account{ID: uuid.New()}

	rec := httptest.NewRecorder()
	h.DeductQuota(rec, authed(http.MethodPost, "/api/subscription/deduct-quota", `{"action_type":"upload"}`, acc))
	if rec.Code != http.StatusOK {
		t.Fatalf("first deduction: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.DeductQuota(rec, authed(http.MethodPost, "/api/subscription/deduct-quota", `{"action_type":"upload"}`, acc))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("second deduction: expected 403, got %d", rec.Code)
	}
	if env := decode(t, rec); env.Error.Code != "quota_exceeded" {
		t.Errorf("code = %q", env.Error.Code)
	}
}

func TestCheckQuota_Validation(t *testing.T) {
	h := newSubscriptionHandler(t, &stubSubs{}, &stubLedger{remaining: map[string]int{}})
	acc := &models.Account{ID: uuid.New()}

	rec := httptest.NewRecorder()
	h.CheckQuota(rec, authed(http.MethodPost, "/api/subscription/check-quota", `{"action_type":"like"}`, acc))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.CheckQuota(rec, authed(http.MethodPost, "/api/subscription/check-quota", `{"action_type":"query"}`, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without account, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Admin handler
// ---------------------------------------------------------------------------

func newAdminHandler(t *testing.T, subs *stubSubs, l *stubLedger) *AdminHandler {
	return &AdminHandler{Subscriptions: subs, Quotas: l, Validator: mustValidator(t), Logger: zerolog.Nop()}
}

func TestAdjustDays(t *testing.T) {
	subs := &stubSubs{sub: &models.Subscription{Status: models.SubscriptionStatusActive, EndDate: time.Now().Add(24 * time.Hour)}}
	h := newAdminHandler(t, subs, &stubLedger{})
	admin := &models.Account{ID: uuid.New(), Role: models.RoleAdmin}
	target := uuid.NewString()

	rec := httptest.NewRecorder()
	h.AdjustDays(rec, authed(http.MethodPost, "/api/admin/subscription/adjust-days", `{"account_id":"`+target+`","days":30,"reason":"goodwill"}`, admin))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if subs.adjustDelta != 30 || subs.adjustActor == nil || *subs.adjustActor != admin.ID {
		t.Errorf("adjustment not forwarded: delta=%d actor=%v", subs.adjustDelta, subs.adjustActor)
	}

	rec = httptest.NewRecorder()
	h.AdjustDays(rec, authed(http.MethodPost, "/api/admin/subscription/adjust-days", `{"account_id":"`+target+`","days":400}`, admin))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out of range: expected 400, got %d", rec.Code)
	}
	if env := decode(t, rec); env.Error.Code != "invalid_range" {
		t.Errorf("code = %q", env.Error.Code)
	}

	rec = httptest.NewRecorder()
	h.AdjustDays(rec, authed(http.MethodPost, "/api/admin/subscription/adjust-days", `{"account_id":"nope","days":3}`, admin))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad uuid: expected 400, got %d", rec.Code)
	}
}

func TestAdjustDays_NoSubscription(t *testing.T) {
	h := newAdminHandler(t, &stubSubs{err: subscription.ErrNoSubscription}, &stubLedger{})
	rec := httptest.NewRecorder()
	h.AdjustDays(rec, authed(http.MethodPost, "/", `{"account_id":"`+uuid.NewString()+`","days":3}`, &models.Account{ID: uuid.New()}))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCancelAndResets(t *testing.T) {
	subs := &stubSubs{sub: &models.Subscription{Status: models.SubscriptionStatusActive, EndDate: time.Now().Add(time.Hour)}}
	l := &stubLedger{}
	h := newAdminHandler(t, subs, l)
	admin := &models.Account{ID: uuid.New(), Role: models.RoleSuperAdmin}
	body := `{"account_id":"` + uuid.NewString() + `"}`

	rec := httptest.NewRecorder()
	h.Cancel(rec, authed(http.MethodPost, "/api/admin/subscription/cancel", body, admin))
	if rec.Code != http.StatusOK || subs.sub.Status != models.SubscriptionStatusCancelled {
		t.Fatalf("cancel: %d status=%s", rec.Code, subs.sub.Status)
	}

	rec = httptest.NewRecorder()
	h.ResetTotal(rec, authed(http.MethodPost, "/api/admin/quota/reset-total", body, admin))
	if rec.Code != http.StatusOK || l.resets != 1 {
		t.Fatalf("reset total: %d resets=%d", rec.Code, l.resets)
	}

	rec = httptest.NewRecorder()
	h.ResetDaily(rec, authed(http.MethodPost, "/api/admin/quota/reset-daily", "", admin))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"buckets_removed":3`) {
		t.Fatalf("reset daily: %d %s", rec.Code, rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("refused") }

	h := &HealthHandler{Checks: map[string]HealthCheck{"postgres": ok}}
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	h.Checks["redis"] = down
	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Account administration
// ---------------------------------------------------------------------------

type stubAccounts struct {
	byID   map[uuid.UUID]*models.Account
	trials int
}

func (s *stubAccounts) Approve(_ context.Context, id uuid.UUID, _ *uuid.UUID) (*models.Subscription, error) {
	a, ok := s.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	a.Status = models.AccountStatusApproved
	if a.CurrentSubscriptionID != nil {
		return nil, nil
	}
	sub := &models.Subscription{
		ID: uuid.New(), AccountID: id, PlanType: models.PlanTypeFreeTrial, Status: models.SubscriptionStatusTrial,
		StartDate: time.Now(), EndDate: time.Now().AddDate(0, 0, 30),
	}
	a.CurrentSubscriptionID = &sub.ID
	s.trials++
	return sub, nil
}

func (s *stubAccounts) List(context.Context) ([]*models.Account, error) {
	var out []*models.Account
	for _, a := range s.byID {
		out = append(out, a)
	}
	return out, nil
}

func (s *stubAccounts) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	a, ok := s.byID[id]
	if !ok {
		return models.ErrNotFound
	}
	a.Status = status
	return nil
}

func (s *stubAccounts) SetLevel(_ context.Context, id uuid.UUID, level int) error {
	a, ok := s.byID[id]
	if !ok {
		return models.ErrNotFound
	}
	a.Level = level
	return nil
}

func TestAccountAdministration(t *testing.T) {
	member := &models.Account{ID: uuid.New(), Status: models.AccountStatusPending, Level: 1}
	accounts := &stubAccounts{byID: map[uuid.UUID]*models.Account{member.ID: member}}
	h := &AdminHandler{Accounts: accounts, Validator: mustValidator(t), Logger: zerolog.Nop()}
	admin := &models.Account{ID: uuid.New(), Role: models.RoleAdmin}

	rec := httptest.NewRecorder()
	h.SetAccountStatus(rec, authed(http.MethodPost, "/api/admin/accounts/status",
		`{"account_id":"`+member.ID.String()+`","status":"approved"}`, admin))
	if rec.Code != http.StatusOK || member.Status != models.AccountStatusApproved {
		t.Fatalf("approve: %d status=%s", rec.Code, member.Status)
	}
	if accounts.trials != 1 || !strings.Contains(rec.Body.String(), `"status":"trial"`) {
		t.Fatalf("approval should start a trial, trials=%d body=%s", accounts.trials, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.SetAccountStatus(rec, authed(http.MethodPost, "/api/admin/accounts/status",
		`{"account_id":"`+member.ID.String()+`","status":"suspended"}`, admin))
	if rec.Code != http.StatusOK || member.Status != models.AccountStatusSuspended {
		t.Fatalf("suspend: %d status=%s", rec.Code, member.Status)
	}

	// Re-approval keeps the existing subscription.
	rec = httptest.NewRecorder()
	h.SetAccountStatus(rec, authed(http.MethodPost, "/api/admin/accounts/status",
		`{"account_id":"`+member.ID.String()+`","status":"approved"}`, admin))
	if rec.Code != http.StatusOK || accounts.trials != 1 || strings.Contains(rec.Body.String(), `"trial"`) {
		t.Fatalf("re-approve: %d trials=%d body=%s", rec.Code, accounts.trials, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.SetAccountStatus(rec, authed(http.MethodPost, "/api/admin/accounts/status",
		`{"account_id":"`+member.ID.String()+`","status":"banned"}`, admin))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status should be rejected, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.SetAccountLevel(rec, authed(http.MethodPost, "/api/admin/accounts/level",
		`{"account_id":"`+member.ID.String()+`","level":4}`, admin))
	if rec.Code != http.StatusOK || member.Level != 4 {
		t.Fatalf("set level: %d level=%d", rec.Code, member.Level)
	}

	rec = httptest.NewRecorder()
	h.SetAccountLevel(rec, authed(http.MethodPost, "/api/admin/accounts/level",
		`{"account_id":"`+uuid.NewString()+`","level":2}`, admin))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown account, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ListAccounts(rec, authed(http.MethodGet, "/api/admin/accounts", "", admin))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), member.ID.String()) {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
}

type stubCatalog struct {
	flushes int
}

func (s *stubCatalog) Flush() { s.flushes++ }

func TestFlushCatalog(t *testing.T) {
	cat := &stubCatalog{}
	h := &AdminHandler{Catalog: cat, Logger: zerolog.Nop()}

	rec := httptest.NewRecorder()
	h.FlushCatalog(rec, authed(http.MethodPost, "/api/admin/catalog/flush", "", &models.Account{ID: uuid.New(), Role: models.RoleAdmin}))
	if rec.Code != http.StatusOK || cat.flushes != 1 {
		t.Fatalf("flush: %d flushes=%d", rec.Code, cat.flushes)
	}
}

// ---------------------------------------------------------------------------
// History
// ---------------------------------------------------------------------------

func TestSubscriptionHistory(t *testing.T) {
	subs := &stubSubs{sub: &models.Subscription{
		PlanType: models.PlanTypeFreeTrial, Status: models.SubscriptionStatusTrial, EndDate: time.Now().Add(-time.Hour),
	}}
	h := newSubscriptionHandler(t, subs, &stubLedger{})
	acc := &models.Account{ID: uuid.New()}

	rec := httptest.NewRecorder()
	h.History(rec, authed(http.MethodGet, "/api/subscription/history", "", acc))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var hist subscription.History
	if err := json.Unmarshal(decode(t, rec).Data, &hist); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(hist.Subscriptions) != 1 || hist.Subscriptions[0].State.Status != models.SubscriptionStatusExpired {
		t.Fatalf("unexpected subscriptions %+v", hist.Subscriptions)
	}
	if len(hist.Audit) != 1 || hist.Audit[0].Action != models.AuditStartTrial {
		t.Fatalf("unexpected audit %+v", hist.Audit)
	}

	subs.err = errors.New("timeout")
	rec = httptest.NewRecorder()
	h.History(rec, authed(http.MethodGet, "/api/subscription/history", "", acc))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on lookup failure, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.History(rec, authed(http.MethodGet, "/api/subscription/history", "", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without an account, got %d", rec.Code)
	}
}
