package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/memberhub/backend/internal/httpx"
	"github.com/memberhub/backend/internal/ledger"
	"github.com/memberhub/backend/internal/middleware"
	"github.com/memberhub/backend/internal/models"
	"github.com/memberhub/backend/internal/subscription"
	"github.com/memberhub/backend/internal/validation"
)

const maxBodyBytes = 1 << 16

// SubscriptionReader is the subset of the evaluator the member endpoints use.
type SubscriptionReader interface {
	Current(ctx context.Context, accountID uuid.UUID) (*models.Subscription, subscription.State, error)
	History(ctx context.Context, accountID uuid.UUID) (subscription.History, error)
}

// QuotaLedger is the subset of ledger.Service the member endpoints use.
type QuotaLedger interface {
	CheckQuota(ctx context.Context, accountID uuid.UUID, action string) (ledger.QuotaStatus, error)
	Deduct(ctx context.Context, accountID uuid.UUID, action string) (ledger.DeductResult, error)
}

// PlanLookup resolves plan names for the status view.
type PlanLookup interface {
	Plan(ctx context.Context, planID uuid.UUID) (*models.PlanConfig, error)
}

// SubscriptionHandler serves /api/subscription endpoints for the caller's own
// account.
type SubscriptionHandler struct {
	Subscriptions SubscriptionReader
	Ledger        QuotaLedger
	Plans         PlanLookup
	Validator     *validation.Validator
	Logger        zerolog.Logger
}

type quotaActionRequest struct {
	ActionType string `json:"action_type"`
}

type statusResponse struct {
	HasSubscription bool                 `json:"has_subscription"`
	PlanName        string               `json:"plan_name,omitempty"`
	PlanType        string               `json:"plan_type,omitempty"`
	Status          string               `json:"status"`
	IsActive        bool                 `json:"is_active"`
	DaysRemaining   int                  `json:"days_remaining"`
	StartDate       *time.Time           `json:"start_date,omitempty"`
	EndDate         *time.Time           `json:"end_date,omitempty"`
	Quotas          []ledger.QuotaStatus `json:"quotas"`
}

// decodeBody reads a bounded body and validates it against schema.
func decodeBody(w http.ResponseWriter, r *http.Request, v *validation.Validator, schema string, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", "failed to read body")
		return false
	}
	if err := v.Decode(schema, body, dst); err != nil {
		httpx.Error(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}

func requireAccount(w http.ResponseWriter, r *http.Request) *models.Account {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		httpx.Error(w, http.StatusUnauthorized, "authentication", "unauthorized")
	}
	return acc
}

// --- GET /api/subscription/status ---

func (h *SubscriptionHandler) Status(w http.ResponseWriter, r *http.Request) {
	acc := requireAccount(w, r)
	if acc == nil {
		return
	}
	ctx := r.Context()

	resp := statusResponse{Status: models.SubscriptionStatusExpired}
	sub, st, err := h.Subscriptions.Current(ctx, acc.ID)
	switch {
	case errors.Is(err, subscription.ErrNoSubscription):
	case err != nil:
		h.Logger.Error().Err(err).Str("account_id", acc.ID.String()).Msg("subscription lookup failed")
		httpx.Error(w, http.StatusServiceUnavailable, "transient_lookup", "subscription unavailable")
		return
	default:
		resp.HasSubscription = true
		resp.PlanType = sub.PlanType
		resp.Status = st.Status
		resp.IsActive = st.IsActive
		resp.DaysRemaining = st.DaysRemaining
		resp.StartDate = &sub.StartDate
		resp.EndDate = &sub.EndDate
		if plan, err := h.Plans.Plan(ctx, sub.PlanID); err == nil {
			resp.PlanName = plan.PlanName
		} else {
			h.Logger.Warn().Err(err).Str("plan_id", sub.PlanID.String()).Msg("plan lookup failed")
		}
	}

	for _, action := range []string{models.ActionUpload, models.ActionQuery} {
		q, err := h.Ledger.CheckQuota(ctx, acc.ID, action)
		if err != nil {
			h.Logger.Error().Err(err).Str("account_id", acc.ID.String()).Msg("quota lookup failed")
			httpx.Error(w, http.StatusServiceUnavailable, "transient_lookup", "quota unavailable")
			return
		}
		resp.Quotas = append(resp.Quotas, q)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// --- GET /api/subscription/history ---

// History stays reachable for expired members; the /api/subscription prefix is
// exempt from the subscription check.
func (h *SubscriptionHandler) History(w http.ResponseWriter, r *http.Request) {
	acc := requireAccount(w, r)
	if acc == nil {
		return
	}
	hist, err := h.Subscriptions.History(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error().Err(err).Str("account_id", acc.ID.String()).Msg("subscription history failed")
		httpx.Error(w, http.StatusServiceUnavailable, "transient_lookup", "subscription history unavailable")
		return
	}
	httpx.JSON(w, http.StatusOK, hist)
}

// --- POST /api/subscription/check-quota ---

func (h *SubscriptionHandler) CheckQuota(w http.ResponseWriter, r *http.Request) {
	acc := requireAccount(w, r)
	if acc == nil {
		return
	}
	var req quotaActionRequest
	if !decodeBody(w, r, h.Validator, validation.QuotaAction, &req) {
		return
	}
	q, err := h.Ledger.CheckQuota(r.Context(), acc.ID, req.ActionType)
	if err != nil {
		h.quotaError(w, acc.ID, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

// --- POST /api/subscription/deduct-quota ---

func (h *SubscriptionHandler) DeductQuota(w http.ResponseWriter, r *http.Request) {
	acc := requireAccount(w, r)
	if acc == nil {
		return
	}
	var req quotaActionRequest
	if !decodeBody(w, r, h.Validator, validation.QuotaAction, &req) {
		return
	}
	res, err := h.Ledger.Deduct(r.Context(), acc.ID, req.ActionType)
	if err != nil {
		h.quotaError(w, acc.ID, err)
		return
	}
	if !res.Success {
		httpx.Error(w, http.StatusForbidden, "quota_exceeded", ledger.ErrQuotaExceeded.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *SubscriptionHandler) quotaError(w http.ResponseWriter, accountID uuid.UUID, err error) {
	if errors.Is(err, ledger.ErrUnknownAction) {
		httpx.Error(w, http.StatusBadRequest, "unknown_action", err.Error())
		return
	}
	h.Logger.Error().Err(err).Str("account_id", accountID.String()).Msg("quota operation failed")
	httpx.Error(w, http.StatusServiceUnavailable, "transient_lookup", "quota unavailable")
}
