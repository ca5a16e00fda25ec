package auth

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/memberhub/backend/internal/httpx"
	"github.com/memberhub/backend/internal/middleware"
	"github.com/memberhub/backend/internal/models"
	"github.com/memberhub/backend/internal/validation"
)

const maxBodyBytes = 1 << 16

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ResolveConflictRequest struct {
	Action string `json:"action"`
}

type LoginResponse struct {
	Token   string          `json:"token"`
	Account *models.Account `json:"account"`
}

type Handler struct {
	svc          Service
	validator    *validation.Validator
	log          zerolog.Logger
	secureCookie bool
	cookieTTL    time.Duration
}

// NewHandler builds the auth endpoints. secureCookie marks the token cookie
// HTTPS-only; cookieTTL should match the token lifetime.
func NewHandler(svc Service, v *validation.Validator, log zerolog.Logger, secureCookie bool, cookieTTL time.Duration) *Handler {
	return &Handler{svc: svc, validator: v, log: log, secureCookie: secureCookie, cookieTTL: cookieTTL}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, schema string, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", "failed to read body")
		return false
	}
	if err := h.validator.Decode(schema, body, dst); err != nil {
		httpx.Error(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) setTokenCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearTokenCookie(w http.ResponseWriter) {
	h.setTokenCookie(w, "", -1)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, validation.Register, &req) {
		return
	}
	acc, err := h.svc.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			httpx.Error(w, http.StatusConflict, "duplicate_email", "email already registered")
			return
		}
		h.log.Error().Err(err).Msg("register failed")
		httpx.Error(w, http.StatusInternalServerError, "internal", "registration failed")
		return
	}
	httpx.JSON(w, http.StatusCreated, acc)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, validation.Login, &req) {
		return
	}
	token, acc, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httpx.Error(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.log.Error().Err(err).Msg("login failed")
		httpx.Error(w, http.StatusInternalServerError, "internal", "login failed")
		return
	}
	h.setTokenCookie(w, token, int(h.cookieTTL.Seconds()))
	httpx.JSON(w, http.StatusOK, LoginResponse{Token: token, Account: acc})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.TokenFromRequest(r); token != "" {
		if err := h.svc.Logout(r.Context(), token); err != nil {
			h.log.Error().Err(err).Msg("logout failed")
		}
	}
	h.clearTokenCookie(w)
	httpx.JSON(w, http.StatusOK, map[string]bool{"logged_out": true})
}

// ResolveConflict lets a device that lost its session either take it back or
// give up and sign out.
func (h *Handler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)
	if token == "" {
		httpx.Error(w, http.StatusUnauthorized, "authentication", "missing token")
		return
	}
	var req ResolveConflictRequest
	if !h.decode(w, r, validation.ResolveConflict, &req) {
		return
	}

	if req.Action == "cancel" {
		h.clearTokenCookie(w)
		httpx.JSON(w, http.StatusOK, map[string]string{"action": req.Action})
		return
	}

	if err := h.svc.Takeover(r.Context(), token); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			httpx.Error(w, http.StatusUnauthorized, "authentication", "invalid token")
			return
		}
		h.log.Error().Err(err).Msg("session takeover failed")
		httpx.Error(w, http.StatusInternalServerError, "internal", "takeover failed")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"action": req.Action})
}

// Me returns the account the gate authenticated.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		httpx.Error(w, http.StatusUnauthorized, "authentication", "unauthorized")
		return
	}
	httpx.JSON(w, http.StatusOK, acc)
}
