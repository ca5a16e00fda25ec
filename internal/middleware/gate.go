package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/memberhub/backend/internal/gate"
	"github.com/memberhub/backend/internal/httpx"
)

// Authorizer is implemented by *gate.Gate.
type Authorizer interface {
	Authorize(ctx context.Context, req gate.Request) gate.Decision
}

var kindStatus = map[gate.ErrorKind]int{
	gate.KindAuthentication:      http.StatusUnauthorized,
	gate.KindSessionConflict:     http.StatusConflict,
	gate.KindAuthorization:       http.StatusForbidden,
	gate.KindAccountPending:      http.StatusForbidden,
	gate.KindAccountSuspended:    http.StatusForbidden,
	gate.KindSubscriptionExpired: http.StatusForbidden,
	gate.KindTransientLookup:     http.StatusServiceUnavailable,
}

// Gate runs the authorization gate once per request. Denied page requests are
// redirected; denied /api/ requests get a JSON error that carries the
// redirect target for the client.
func Gate(g Authorizer, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Authorize(r.Context(), gate.Request{
				Path:   r.URL.Path,
				Origin: r.URL.RequestURI(),
				Token:  TokenFromRequest(r),
			})

			if !d.Allow {
				log.Debug().
					Str("path", r.URL.Path).
					Str("reason", string(d.Reason)).
					Str("redirect", d.RedirectTo).
					Msg("request denied")
				if strings.HasPrefix(r.URL.Path, "/api/") {
					status, ok := kindStatus[d.Reason]
					if !ok {
						status = http.StatusForbidden
					}
					w.Header().Set("Location", d.RedirectTo)
					httpx.Error(w, status, string(d.Reason), d.RedirectTo)
					return
				}
				http.Redirect(w, r, d.RedirectTo, http.StatusFound)
				return
			}

			ctx := r.Context()
			if d.Principal != nil {
				ctx = WithAccount(ctx, d.Principal.Account)
				ctx = withSessionID(ctx, d.Principal.SessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
