package gate

import (
	"net/url"
	"strings"
)

// Redirect targets.
const (
	LoginPath               = "/login"
	DashboardPath           = "/dashboard"
	WaitingApprovalPath     = "/waiting-approval"
	AccountSuspendedPath    = "/account-suspended"
	SessionConflictPath     = "/session-conflict"
	SubscriptionExpiredPath = "/subscription-expired"
)

// Paths configures the path classes the policies consult. Entries match the
// exact path or any path below it.
type Paths struct {
	Public             []string
	Static             []string
	Admin              []string
	SubscriptionExempt []string
}

// DefaultPaths mirrors the page and API layout of the member site.
func DefaultPaths() Paths {
	return Paths{
		Public: []string{
			"/",
			LoginPath,
			"/register",
			WaitingApprovalPath,
			AccountSuspendedPath,
			"/session-expired",
			SessionConflictPath,
			SubscriptionExpiredPath,
			"/api/auth/login",
			"/api/auth/register",
			"/api/auth/logout",
			"/api/auth/resolve-conflict",
			"/api/health",
		},
		Static: []string{"/_next", "/favicon.ico", "/images", "/fonts"},
		Admin:  []string{"/admin", "/api/admin"},
		SubscriptionExempt: []string{
			SubscriptionExpiredPath,
			"/profile",
			"/api/subscription",
			"/api/auth/me",
			"/api/auth/logout",
		},
	}
}

func matchAny(path string, list []string) bool {
	for _, p := range list {
		if under(path, p) {
			return true
		}
	}
	return false
}

// under reports whether path is prefix or lies below it. "/" only matches
// itself so the root page does not make every path public.
func under(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if prefix == "/" {
		return false
	}
	return strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/")
}

// withReturn appends the original location as a query parameter.
func withReturn(target, param, origin string) string {
	if origin == "" {
		return target
	}
	return target + "?" + param + "=" + url.QueryEscape(origin)
}
