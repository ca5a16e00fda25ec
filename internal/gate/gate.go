package gate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/memberhub/backend/internal/models"
)

type TokenVerifier interface {
	VerifyToken(token string) (accountID uuid.UUID, sessionID string, err error)
}

type AccountLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

type SessionValidator interface {
	Validate(ctx context.Context, accountID uuid.UUID, sessionID string) (bool, error)
}

type SubscriptionChecker interface {
	IsActive(ctx context.Context, accountID uuid.UUID) (bool, error)
}

// Options are the deployment policies injected into the gate.
type Options struct {
	// EnforceSingleSession turns the session registry check on.
	EnforceSingleSession bool
	// FailOpen allows requests whose subscription lookup failed.
	FailOpen bool
	// LookupTimeout bounds the subscription lookup.
	LookupTimeout time.Duration
	Paths         Paths
}

// Request is what the gate needs from an inbound request.
type Request struct {
	Path string
	// Origin is the location to return to after a redirect, usually the
	// request URI including its query.
	Origin string
	Token  string
}

// evaluation carries state between policies of one run.
type evaluation struct {
	req       Request
	principal *Principal
}

// policy returns a terminal decision, or ok=false to hand over to the next one.
type policy func(ctx context.Context, ev *evaluation) (d Decision, ok bool)

type Gate struct {
	tokens        TokenVerifier
	accounts      AccountLookup
	sessions      SessionValidator
	subscriptions SubscriptionChecker
	opts          Options
	log           zerolog.Logger
	chain         []policy
}

func New(tokens TokenVerifier, accounts AccountLookup, sessions SessionValidator, subscriptions SubscriptionChecker, opts Options, log zerolog.Logger) *Gate {
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 2 * time.Second
	}
	g := &Gate{
		tokens:        tokens,
		accounts:      accounts,
		sessions:      sessions,
		subscriptions: subscriptions,
		opts:          opts,
		log:           log,
	}
	g.chain = []policy{
		g.publicPath,
		g.authenticate,
		g.session,
		g.role,
		g.status,
		g.subscription,
	}
	return g
}

// Authorize runs the policy chain in order and returns the first terminal
// decision. A request that passes every policy is allowed.
func (g *Gate) Authorize(ctx context.Context, req Request) Decision {
	if req.Origin == "" {
		req.Origin = req.Path
	}
	ev := &evaluation{req: req}
	for _, p := range g.chain {
		if d, ok := p(ctx, ev); ok {
			return d
		}
	}
	return allow(ev.principal)
}

func (g *Gate) publicPath(_ context.Context, ev *evaluation) (Decision, bool) {
	if matchAny(ev.req.Path, g.opts.Paths.Public) || matchAny(ev.req.Path, g.opts.Paths.Static) {
		return allow(nil), true
	}
	return Decision{}, false
}

// authenticate is fail-closed: any doubt about the token or account denies.
func (g *Gate) authenticate(ctx context.Context, ev *evaluation) (Decision, bool) {
	toLogin := deny(KindAuthentication, withReturn(LoginPath, "redirect", ev.req.Origin), nil)
	if ev.req.Token == "" {
		return toLogin, true
	}
	accountID, sid, err := g.tokens.VerifyToken(ev.req.Token)
	if err != nil {
		return toLogin, true
	}
	acc, err := g.accounts.GetByID(ctx, accountID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			g.log.Error().Err(err).
				Str("account_id", accountID.String()).
				Str("path", ev.req.Path).
				Msg("account lookup failed, denying")
		}
		return toLogin, true
	}
	ev.principal = &Principal{Account: acc, SessionID: sid}
	return Decision{}, false
}

// session sends a device whose session was replaced to the conflict page. A
// registry failure is treated the same way.
func (g *Gate) session(ctx context.Context, ev *evaluation) (Decision, bool) {
	if !g.opts.EnforceSingleSession {
		return Decision{}, false
	}
	acc := ev.principal.Account
	to := withReturn(SessionConflictPath, "from", ev.req.Origin)
	ok, err := g.sessions.Validate(ctx, acc.ID, ev.principal.SessionID)
	if err != nil {
		g.log.Error().Err(err).
			Str("account_id", acc.ID.String()).
			Str("path", ev.req.Path).
			Msg("session lookup failed, denying")
		return deny(KindTransientLookup, to, ev.principal), true
	}
	if !ok {
		return deny(KindSessionConflict, to, ev.principal), true
	}
	return Decision{}, false
}

// role settles administrative paths completely: admins pass without status or
// subscription checks, everyone else goes back to the dashboard.
func (g *Gate) role(_ context.Context, ev *evaluation) (Decision, bool) {
	if !matchAny(ev.req.Path, g.opts.Paths.Admin) {
		return Decision{}, false
	}
	if ev.principal.Account.IsAdmin() {
		return allow(ev.principal), true
	}
	return deny(KindAuthorization, DashboardPath, ev.principal), true
}

func (g *Gate) status(_ context.Context, ev *evaluation) (Decision, bool) {
	switch ev.principal.Account.Status {
	case models.AccountStatusApproved:
		return Decision{}, false
	case models.AccountStatusPending:
		if ev.req.Path == WaitingApprovalPath {
			return allow(ev.principal), true
		}
		return deny(KindAccountPending, WaitingApprovalPath, ev.principal), true
	case models.AccountStatusSuspended:
		if ev.req.Path == AccountSuspendedPath {
			return allow(ev.principal), true
		}
		return deny(KindAccountSuspended, AccountSuspendedPath, ev.principal), true
	default:
		return deny(KindAuthentication, LoginPath, ev.principal), true
	}
}

// subscription applies the configured fail-open or fail-closed policy when
// the lookup itself fails.
func (g *Gate) subscription(ctx context.Context, ev *evaluation) (Decision, bool) {
	if matchAny(ev.req.Path, g.opts.Paths.SubscriptionExempt) {
		return Decision{}, false
	}
	acc := ev.principal.Account
	to := withReturn(SubscriptionExpiredPath, "from", ev.req.Origin)

	lookupCtx, cancel := context.WithTimeout(ctx, g.opts.LookupTimeout)
	defer cancel()

	active, err := g.subscriptions.IsActive(lookupCtx, acc.ID)
	if err != nil {
		if g.opts.FailOpen {
			g.log.Warn().Err(err).
				Str("account_id", acc.ID.String()).
				Str("path", ev.req.Path).
				Msg("subscription lookup failed, allowing")
			return Decision{Allow: true, Reason: KindTransientLookup, Principal: ev.principal}, true
		}
		g.log.Error().Err(err).
			Str("account_id", acc.ID.String()).
			Str("path", ev.req.Path).
			Msg("subscription lookup failed, denying")
		return deny(KindTransientLookup, to, ev.principal), true
	}
	if !active {
		return deny(KindSubscriptionExpired, to, ev.principal), true
	}
	return Decision{}, false
}
