package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/memberhub/backend/internal/httpx"
	"github.com/memberhub/backend/internal/ledger"
)

// QuotaDeducter is implemented by ledger.Service.
type QuotaDeducter interface {
	Deduct(ctx context.Context, accountID uuid.UUID, action string) (ledger.DeductResult, error)
}

// RequireQuota consumes one unit of action for the authenticated account
// before the wrapped handler runs. A refused deduction blocks the request.
func RequireQuota(l QuotaDeducter, action string, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc := AccountFromCtx(r.Context())
			if acc == nil {
				httpx.Error(w, http.StatusUnauthorized, "authentication", "unauthorized")
				return
			}

			res, err := l.Deduct(r.Context(), acc.ID, action)
			if err != nil {
				if errors.Is(err, ledger.ErrUnknownAction) {
					httpx.Error(w, http.StatusBadRequest, "unknown_action", err.Error())
					return
				}
				log.Error().Err(err).
					Str("account_id", acc.ID.String()).
					Str("action_type", action).
					Msg("quota deduction failed")
				httpx.Error(w, http.StatusServiceUnavailable, "transient_lookup", "quota unavailable")
				return
			}
			if !res.Success {
				httpx.Error(w, http.StatusForbidden, "quota_exceeded", ledger.ErrQuotaExceeded.Error())
				return
			}

			w.Header().Set("X-Quota-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-Quota-Remaining", strconv.Itoa(res.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}
