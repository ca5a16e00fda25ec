package gate

import "github.com/memberhub/backend/internal/models"

// ErrorKind classifies why a request was not allowed through unconditionally.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindAuthentication      ErrorKind = "authentication"
	KindSessionConflict     ErrorKind = "session_conflict"
	KindAuthorization       ErrorKind = "authorization"
	KindAccountPending      ErrorKind = "account_pending"
	KindAccountSuspended    ErrorKind = "account_suspended"
	KindSubscriptionExpired ErrorKind = "subscription_expired"
	KindTransientLookup     ErrorKind = "transient_lookup"
)

// Decision is the outcome of one authorization run. A denied decision always
// carries a redirect target. An allowed decision may still carry a Reason when
// a check was skipped under the fail-open policy.
type Decision struct {
	Allow      bool
	RedirectTo string
	Reason     ErrorKind
	Principal  *Principal
}

// Principal is the authenticated caller, set once authentication succeeds.
type Principal struct {
	Account   *models.Account
	SessionID string
}

func allow(p *Principal) Decision {
	return Decision{Allow: true, Principal: p}
}

func deny(kind ErrorKind, to string, p *Principal) Decision {
	return Decision{RedirectTo: to, Reason: kind, Principal: p}
}
