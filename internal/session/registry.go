package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/memberhub/backend/internal/models"
)

// Store keeps one session row per account. Put must overwrite any prior row
// in a single write; readers see whichever writer landed last.
type Store interface {
	Put(ctx context.Context, s models.Session) error
	Get(ctx context.Context, accountID uuid.UUID) (*models.Session, error)
	Delete(ctx context.Context, accountID uuid.UUID) error
}

type Registry interface {
	Register(ctx context.Context, accountID uuid.UUID, sessionID string) error
	Validate(ctx context.Context, accountID uuid.UUID, sessionID string) (bool, error)
	Revoke(ctx context.Context, accountID uuid.UUID) error
}

type registry struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewRegistry(store Store, log zerolog.Logger) Registry {
	return &registry{store: store, log: log, now: time.Now}
}

var _ Registry = (*registry)(nil)

// NewSessionID returns an opaque marker embedded in issued tokens.
func NewSessionID() string {
	return uuid.NewString()
}

// Register makes sessionID the only valid session for the account, evicting
// whatever device held it before.
func (r *registry) Register(ctx context.Context, accountID uuid.UUID, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("register session: empty session id")
	}
	err := r.store.Put(ctx, models.Session{
		AccountID: accountID,
		SessionID: sessionID,
		IssuedAt:  r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	r.log.Debug().Str("account_id", accountID.String()).Msg("session registered")
	return nil
}

// Validate reports whether sessionID is the account's registered session.
// An account without a row has no active session, so nothing validates.
func (r *registry) Validate(ctx context.Context, accountID uuid.UUID, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	s, err := r.store.Get(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("%w: session lookup: %v", models.ErrTransientLookup, err)
	}
	if s == nil {
		return false, nil
	}
	return s.SessionID == sessionID, nil
}

func (r *registry) Revoke(ctx context.Context, accountID uuid.UUID) error {
	if err := r.store.Delete(ctx, accountID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	r.log.Debug().Str("account_id", accountID.String()).Msg("session revoked")
	return nil
}
