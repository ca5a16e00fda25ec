package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/memberhub/backend/internal/models"
)

type contextKey string

const (
	ctxAccountKey contextKey = "account"
	ctxSessionKey contextKey = "session_id"
)

// TokenCookie holds the access token for browser clients.
const TokenCookie = "access_token"

// TokenFromRequest reads the access token from the cookie, falling back to an
// Authorization: Bearer header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return extractBearer(r)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// AccountFromCtx returns the authenticated account or nil.
func AccountFromCtx(ctx context.Context) *models.Account {
	acc, _ := ctx.Value(ctxAccountKey).(*models.Account)
	return acc
}

// WithAccount returns a context carrying the given account.
func WithAccount(ctx context.Context, acc *models.Account) context.Context {
	return context.WithValue(ctx, ctxAccountKey, acc)
}

// SessionIDFromCtx returns the session marker of the authenticated token.
func SessionIDFromCtx(ctx context.Context) string {
	sid, _ := ctx.Value(ctxSessionKey).(string)
	return sid
}

func withSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, ctxSessionKey, sid)
}
