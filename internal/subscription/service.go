package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/memberhub/backend/internal/models"
)

const MaxAdjustDays = 365

// HistoryLimit caps the subscriptions and the audit rows History returns.
const HistoryLimit = 20

var (
	// ErrInvalidRange is returned for a day adjustment of zero or outside ±365.
	ErrInvalidRange = errors.New("days must be non-zero and within [-365, 365]")
	// ErrEndBeforeToday is returned when a shortening would move the end date
	// before the start of the current day.
	ErrEndBeforeToday = fmt.Errorf("%w: resulting end date is before today", ErrInvalidRange)
	// ErrNoSubscription means the account has no current subscription.
	ErrNoSubscription = errors.New("no current subscription")
)

type Evaluator interface {
	IsActive(ctx context.Context, accountID uuid.UUID) (bool, error)
	DaysRemaining(ctx context.Context, accountID uuid.UUID) (int, error)
	Current(ctx context.Context, accountID uuid.UUID) (*models.Subscription, State, error)
	AdjustDays(ctx context.Context, accountID uuid.UUID, deltaDays int, reason string, actorID *uuid.UUID) (*models.Subscription, State, error)
	Cancel(ctx context.Context, accountID uuid.UUID, reason string, actorID *uuid.UUID) (*models.Subscription, State, error)
	ExpireOverdue(ctx context.Context) (int64, error)
	History(ctx context.Context, accountID uuid.UUID) (History, error)
}

// HistoryItem is a stored subscription with its state derived at read time.
type HistoryItem struct {
	models.Subscription
	State State `json:"state"`
}

type History struct {
	Subscriptions []HistoryItem       `json:"subscriptions"`
	Audit         []models.AuditEntry `json:"audit"`
}

type service struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewService(store Store, log zerolog.Logger) Evaluator {
	return &service{store: store, log: log, now: time.Now}
}

var _ Evaluator = (*service)(nil)

// lookup wraps store failures other than "no subscription" as transient so
// callers can choose their own fail-open or fail-closed policy.
func (s *service) lookup(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.store.Current(ctx, accountID)
	if err == nil || errors.Is(err, ErrNoSubscription) {
		return sub, err
	}
	return nil, fmt.Errorf("%w: subscription lookup: %v", models.ErrTransientLookup, err)
}

// IsActive is false for accounts without a current subscription.
func (s *service) IsActive(ctx context.Context, accountID uuid.UUID) (bool, error) {
	sub, err := s.lookup(ctx, accountID)
	if errors.Is(err, ErrNoSubscription) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return Derive(sub, s.now()).IsActive, nil
}

func (s *service) DaysRemaining(ctx context.Context, accountID uuid.UUID) (int, error) {
	sub, err := s.lookup(ctx, accountID)
	if errors.Is(err, ErrNoSubscription) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return Derive(sub, s.now()).DaysRemaining, nil
}

func (s *service) Current(ctx context.Context, accountID uuid.UUID) (*models.Subscription, State, error) {
	sub, err := s.lookup(ctx, accountID)
	if err != nil {
		return nil, State{}, err
	}
	return sub, Derive(sub, s.now()), nil
}

// AdjustDays shifts the end date by deltaDays calendar days and reconciles the
// stored status with the new date. The new end date may not fall before the
// start of today; an end earlier today leaves the subscription expired.
func (s *service) AdjustDays(ctx context.Context, accountID uuid.UUID, deltaDays int, reason string, actorID *uuid.UUID) (*models.Subscription, State, error) {
	if deltaDays == 0 || deltaDays < -MaxAdjustDays || deltaDays > MaxAdjustDays {
		return nil, State{}, ErrInvalidRange
	}

	now := s.now()
	sub, err := s.store.Mutate(ctx, accountID, func(sub *models.Subscription) (*models.AuditEntry, error) {
		oldEnd := sub.EndDate
		newEnd := oldEnd.AddDate(0, 0, deltaDays)
		if newEnd.Before(startOfDay(now)) {
			return nil, ErrEndBeforeToday
		}
		sub.EndDate = newEnd
		sub.Status = reconcile(sub, now)
		return &models.AuditEntry{
			AccountID:  accountID,
			ActorID:    actorID,
			Action:     models.AuditAdjustDays,
			DeltaDays:  deltaDays,
			Reason:     reason,
			OldEndDate: &oldEnd,
			NewEndDate: &newEnd,
		}, nil
	})
	if err != nil {
		return nil, State{}, fmt.Errorf("adjust days: %w", err)
	}

	st := Derive(sub, now)
	s.log.Info().
		Str("account_id", accountID.String()).
		Int("delta_days", deltaDays).
		Str("reason", reason).
		Time("end_date", sub.EndDate).
		Bool("is_active", st.IsActive).
		Msg("subscription days adjusted")
	return sub, st, nil
}

// Cancel moves the current subscription to the terminal cancelled state.
// Cancelling twice is a no-op.
func (s *service) Cancel(ctx context.Context, accountID uuid.UUID, reason string, actorID *uuid.UUID) (*models.Subscription, State, error) {
	sub, err := s.store.Mutate(ctx, accountID, func(sub *models.Subscription) (*models.AuditEntry, error) {
		if sub.Status == models.SubscriptionStatusCancelled {
			return nil, nil
		}
		sub.Status = models.SubscriptionStatusCancelled
		end := sub.EndDate
		return &models.AuditEntry{
			AccountID:  accountID,
			ActorID:    actorID,
			Action:     models.AuditCancel,
			Reason:     reason,
			OldEndDate: &end,
			NewEndDate: &end,
		}, nil
	})
	if err != nil {
		return nil, State{}, fmt.Errorf("cancel subscription: %w", err)
	}
	s.log.Info().Str("account_id", accountID.String()).Str("reason", reason).Msg("subscription cancelled")
	return sub, Derive(sub, s.now()), nil
}

func (s *service) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireOverdue(ctx)
	if err != nil {
		return 0, fmt.Errorf("expire overdue: %w", err)
	}
	return n, nil
}

// History lists past and current subscriptions with the adjustments made to
// them. Stored statuses may be stale, so each row carries its derived state.
func (s *service) History(ctx context.Context, accountID uuid.UUID) (History, error) {
	subs, audit, err := s.store.History(ctx, accountID, HistoryLimit)
	if err != nil {
		return History{}, fmt.Errorf("subscription history: %w", err)
	}
	now := s.now()
	h := History{Subscriptions: make([]HistoryItem, 0, len(subs)), Audit: audit}
	for i := range subs {
		h.Subscriptions = append(h.Subscriptions, HistoryItem{Subscription: subs[i], State: Derive(&subs[i], now)})
	}
	if h.Audit == nil {
		h.Audit = []models.AuditEntry{}
	}
	return h, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
