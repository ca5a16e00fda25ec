package handlers

import (
	"errors"
	"net/http"

	"github.com/memberhub/backend/internal/httpx"
	"github.com/memberhub/backend/internal/models"
	"github.com/memberhub/backend/internal/repository"
	"github.com/memberhub/backend/internal/validation"
)

type accountStatusRequest struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
}

type accountLevelRequest struct {
	AccountID string `json:"account_id"`
	Level     int    `json:"level"`
}

// --- GET /api/admin/accounts ---

func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := h.Accounts.List(r.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("list accounts failed")
		httpx.Error(w, http.StatusInternalServerError, "internal", "could not list accounts")
		return
	}
	if list == nil {
		list = []*models.Account{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

// --- POST /api/admin/accounts/status ---

type accountStatusResponse struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
	// Trial is set when approval started the account's first subscription.
	Trial *models.Subscription `json:"trial,omitempty"`
}

// SetAccountStatus approves or suspends an account. Approval starts a trial
// for accounts without a subscription. The gate reads status fresh on every
// request so the change applies immediately.
func (h *AdminHandler) SetAccountStatus(w http.ResponseWriter, r *http.Request) {
	actor := requireAccount(w, r)
	if actor == nil {
		return
	}
	var req accountStatusRequest
	if !decodeBody(w, r, h.Validator, validation.AccountStatus, &req) {
		return
	}
	accountID, ok := parseAccountID(w, req.AccountID)
	if !ok {
		return
	}

	resp := accountStatusResponse{AccountID: accountID.String(), Status: req.Status}
	var err error
	if req.Status == models.AccountStatusApproved {
		resp.Trial, err = h.Accounts.Approve(r.Context(), accountID, &actor.ID)
	} else {
		err = h.Accounts.UpdateStatus(r.Context(), accountID, req.Status)
	}
	if err != nil {
		h.accountError(w, err)
		return
	}
	h.Logger.Info().
		Str("actor_id", actor.ID.String()).
		Str("account_id", accountID.String()).
		Str("status", req.Status).
		Bool("trial_started", resp.Trial != nil).
		Msg("account status changed")
	httpx.JSON(w, http.StatusOK, resp)
}

// --- POST /api/admin/accounts/level ---

func (h *AdminHandler) SetAccountLevel(w http.ResponseWriter, r *http.Request) {
	var req accountLevelRequest
	if !decodeBody(w, r, h.Validator, validation.AccountLevel, &req) {
		return
	}
	accountID, ok := parseAccountID(w, req.AccountID)
	if !ok {
		return
	}
	if err := h.Accounts.SetLevel(r.Context(), accountID, req.Level); err != nil {
		h.accountError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account_id": accountID.String(), "level": req.Level})
}

func (h *AdminHandler) accountError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrNotFound) {
		httpx.Error(w, http.StatusNotFound, "not_found", "account not found")
		return
	}
	if errors.Is(err, repository.ErrNoTrialPlan) {
		h.Logger.Error().Err(err).Msg("approval could not start a trial")
		httpx.Error(w, http.StatusInternalServerError, "trial_plan_missing", err.Error())
		return
	}
	h.Logger.Error().Err(err).Msg("admin account operation failed")
	httpx.Error(w, http.StatusInternalServerError, "internal", "operation failed")
}
