package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/memberhub/backend/internal/httpx"
	"github.com/memberhub/backend/internal/models"
	"github.com/memberhub/backend/internal/subscription"
	"github.com/memberhub/backend/internal/validation"
)

// SubscriptionAdmin is the subset of the evaluator administrators drive.
type SubscriptionAdmin interface {
	AdjustDays(ctx context.Context, accountID uuid.UUID, deltaDays int, reason string, actorID *uuid.UUID) (*models.Subscription, subscription.State, error)
	Cancel(ctx context.Context, accountID uuid.UUID, reason string, actorID *uuid.UUID) (*models.Subscription, subscription.State, error)
}

// QuotaAdmin is the subset of ledger.Service administrators drive.
type QuotaAdmin interface {
	ResetTotal(ctx context.Context, accountID uuid.UUID, actorID *uuid.UUID) error
	ResetDaily(ctx context.Context) (int64, error)
}

// AccountAdmin is the account repository surface administrators drive.
type AccountAdmin interface {
	List(ctx context.Context) ([]*models.Account, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	Approve(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*models.Subscription, error)
	SetLevel(ctx context.Context, id uuid.UUID, level int) error
}

// CatalogFlusher drops cached plan and level-bonus rows.
type CatalogFlusher interface {
	Flush()
}

// AdminHandler serves /api/admin endpoints. The gate has already restricted
// these paths to admin roles.
type AdminHandler struct {
	Subscriptions SubscriptionAdmin
	Quotas        QuotaAdmin
	Accounts      AccountAdmin
	Catalog       CatalogFlusher
	Validator     *validation.Validator
	Logger        zerolog.Logger
}

type adjustDaysRequest struct {
	AccountID string `json:"account_id"`
	Days      int    `json:"days"`
	Reason    string `json:"reason"`
}

type cancelRequest struct {
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

type resetTotalRequest struct {
	AccountID string `json:"account_id"`
}

type subscriptionResponse struct {
	Subscription *models.Subscription `json:"subscription"`
	State        subscription.State   `json:"state"`
}

func parseAccountID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "validation_failed", "account_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *AdminHandler) subscriptionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, subscription.ErrInvalidRange):
		httpx.Error(w, http.StatusBadRequest, "invalid_range", err.Error())
	case errors.Is(err, subscription.ErrNoSubscription):
		httpx.Error(w, http.StatusNotFound, "no_subscription", err.Error())
	default:
		h.Logger.Error().Err(err).Msg("admin subscription operation failed")
		httpx.Error(w, http.StatusInternalServerError, "internal", "operation failed")
	}
}

// --- POST /api/admin/subscription/adjust-days ---

func (h *AdminHandler) AdjustDays(w http.ResponseWriter, r *http.Request) {
	actor := requireAccount(w, r)
	if actor == nil {
		return
	}
	var req adjustDaysRequest
	if !decodeBody(w, r, h.Validator, validation.AdjustDays, &req) {
		return
	}
	accountID, ok := parseAccountID(w, req.AccountID)
	if !ok {
		return
	}
	sub, st, err := h.Subscriptions.AdjustDays(r.Context(), accountID, req.Days, req.Reason, &actor.ID)
	if err != nil {
		h.subscriptionError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, subscriptionResponse{Subscription: sub, State: st})
}

// --- POST /api/admin/subscription/cancel ---

func (h *AdminHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor := requireAccount(w, r)
	if actor == nil {
		return
	}
	var req cancelRequest
	if !decodeBody(w, r, h.Validator, validation.CancelSub, &req) {
		return
	}
	accountID, ok := parseAccountID(w, req.AccountID)
	if !ok {
		return
	}
	sub, st, err := h.Subscriptions.Cancel(r.Context(), accountID, req.Reason, &actor.ID)
	if err != nil {
		h.subscriptionError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, subscriptionResponse{Subscription: sub, State: st})
}

// --- POST /api/admin/quota/reset-total ---

func (h *AdminHandler) ResetTotal(w http.ResponseWriter, r *http.Request) {
	actor := requireAccount(w, r)
	if actor == nil {
		return
	}
	var req resetTotalRequest
	if !decodeBody(w, r, h.Validator, validation.ResetTotal, &req) {
		return
	}
	accountID, ok := parseAccountID(w, req.AccountID)
	if !ok {
		return
	}
	if err := h.Quotas.ResetTotal(r.Context(), accountID, &actor.ID); err != nil {
		h.Logger.Error().Err(err).Str("account_id", accountID.String()).Msg("reset total failed")
		httpx.Error(w, http.StatusInternalServerError, "internal", "reset failed")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"account_id": accountID.String()})
}

// --- POST /api/admin/quota/reset-daily ---

func (h *AdminHandler) ResetDaily(w http.ResponseWriter, r *http.Request) {
	n, err := h.Quotas.ResetDaily(r.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("reset daily failed")
		httpx.Error(w, http.StatusInternalServerError, "internal", "reset failed")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"buckets_removed": n})
}

// --- POST /api/admin/catalog/flush ---

// FlushCatalog makes direct edits to plan_configs or level_bonuses visible
// before the cache ttl runs out.
func (h *AdminHandler) FlushCatalog(w http.ResponseWriter, r *http.Request) {
	h.Catalog.Flush()
	h.Logger.Info().Msg("plan catalog cache flushed")
	httpx.JSON(w, http.StatusOK, map[string]bool{"flushed": true})
}
