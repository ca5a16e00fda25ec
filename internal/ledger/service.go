package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/memberhub/backend/internal/models"
)

var (
	// ErrQuotaExceeded is returned by handlers when a deduction is refused.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrUnknownAction is returned for action types the ledger does not meter.
	ErrUnknownAction = errors.New("unknown action type")
)

// QuotaStatus is the entitlement for one action type at the time of reading.
type QuotaStatus struct {
	ActionType string `json:"action_type"`
	HasQuota   bool   `json:"has_quota"`
	Used       int    `json:"used"`
	Remaining  int    `json:"remaining"`
	Limit      int    `json:"limit"`
	QuotaType  string `json:"quota_type"`
}

// DeductResult reports a deduction attempt and the entitlement after it.
type DeductResult struct {
	Success bool `json:"success"`
	QuotaStatus
}

type Service interface {
	CheckQuota(ctx context.Context, accountID uuid.UUID, action string) (QuotaStatus, error)
	Deduct(ctx context.Context, accountID uuid.UUID, action string) (DeductResult, error)
	DeductQuota(ctx context.Context, accountID uuid.UUID, action string) (bool, error)
	ResetDaily(ctx context.Context) (int64, error)
	ResetTotal(ctx context.Context, accountID uuid.UUID, actorID *uuid.UUID) error
}

type service struct {
	store   Store
	catalog Catalog
	loc     *time.Location
	log     zerolog.Logger
	now     func() time.Time
}

// NewService builds the ledger. loc is the calendar daily buckets roll over in.
func NewService(store Store, catalog Catalog, loc *time.Location, log zerolog.Logger) Service {
	if loc == nil {
		loc = time.UTC
	}
	return &service{store: store, catalog: catalog, loc: loc, log: log, now: time.Now}
}

var _ Service = (*service)(nil)

func validAction(action string) bool {
	return action == models.ActionUpload || action == models.ActionQuery
}

func (s *service) today() string {
	return s.now().In(s.loc).Format(time.DateOnly)
}

// entitlement resolves the effective limit and the bucket it is counted in.
// The regime is daily when the plan sets a daily cap for the action and total
// otherwise; the level bonus is added on every read.
func (s *service) entitlement(ctx context.Context, accountID uuid.UUID, action string) (limit int, regime, bucket string, err error) {
	level, planID, err := s.store.AccountPlan(ctx, accountID)
	if err != nil {
		return 0, "", "", fmt.Errorf("account plan: %w", err)
	}
	if planID == nil {
		return 0, models.QuotaTotal, models.LifetimeBucket, nil
	}

	plan, err := s.catalog.Plan(ctx, *planID)
	if err != nil {
		return 0, "", "", err
	}

	daily, total := plan.UploadQuotaDaily, plan.UploadQuotaTotal
	if action == models.ActionQuery {
		daily, total = plan.QueryQuotaDaily, plan.QueryQuotaTotal
	}

	var base int
	switch {
	case daily != nil:
		base, regime, bucket = *daily, models.QuotaDaily, s.today()
	case total != nil:
		base, regime, bucket = *total, models.QuotaTotal, models.LifetimeBucket
	default:
		return 0, models.QuotaTotal, models.LifetimeBucket, nil
	}

	bonus, err := s.catalog.LevelBonus(ctx, level)
	if err != nil {
		return 0, "", "", err
	}
	if action == models.ActionUpload {
		base += bonus.BonusUploadQuota
	} else {
		base += bonus.BonusQueryQuota
	}
	if base < 0 {
		base = 0
	}
	return base, regime, bucket, nil
}

func newStatus(action string, limit, used int, regime string) QuotaStatus {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return QuotaStatus{
		ActionType: action,
		HasQuota:   remaining > 0,
		Used:       used,
		Remaining:  remaining,
		Limit:      limit,
		QuotaType:  regime,
	}
}

func (s *service) CheckQuota(ctx context.Context, accountID uuid.UUID, action string) (QuotaStatus, error) {
	if !validAction(action) {
		return QuotaStatus{}, ErrUnknownAction
	}
	limit, regime, bucket, err := s.entitlement(ctx, accountID, action)
	if err != nil {
		return QuotaStatus{}, err
	}
	used, err := s.store.Used(ctx, accountID, action, bucket)
	if err != nil {
		return QuotaStatus{}, fmt.Errorf("read usage: %w", err)
	}
	return newStatus(action, limit, used, regime), nil
}

// Deduct consumes one unit if any remain. The limit check and the increment
// happen in one conditional write in the store.
func (s *service) Deduct(ctx context.Context, accountID uuid.UUID, action string) (DeductResult, error) {
	if !validAction(action) {
		return DeductResult{}, ErrUnknownAction
	}
	limit, regime, bucket, err := s.entitlement(ctx, accountID, action)
	if err != nil {
		return DeductResult{}, err
	}
	used, ok, err := s.store.IncrementIfBelow(ctx, accountID, action, bucket, limit)
	if err != nil {
		return DeductResult{}, fmt.Errorf("increment usage: %w", err)
	}
	if !ok {
		s.log.Debug().
			Str("account_id", accountID.String()).
			Str("action_type", action).
			Int("limit", limit).
			Int("used", used).
			Msg("quota exhausted")
	}
	return DeductResult{Success: ok, QuotaStatus: newStatus(action, limit, used, regime)}, nil
}

func (s *service) DeductQuota(ctx context.Context, accountID uuid.UUID, action string) (bool, error) {
	res, err := s.Deduct(ctx, accountID, action)
	if err != nil {
		return false, err
	}
	return res.Success, nil
}

// ResetDaily discards daily buckets from previous days. Today's bucket is
// never written, so it can run alongside live deductions.
func (s *service) ResetDaily(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteBucketsBefore(ctx, s.today())
	if err != nil {
		return 0, fmt.Errorf("reset daily: %w", err)
	}
	s.log.Info().Int64("buckets_removed", n).Msg("daily quota buckets rolled over")
	return n, nil
}

// ResetTotal zeroes the lifetime buckets of one account. Administrative only.
func (s *service) ResetTotal(ctx context.Context, accountID uuid.UUID, actorID *uuid.UUID) error {
	if err := s.store.ResetLifetime(ctx, accountID, actorID); err != nil {
		return fmt.Errorf("reset total: %w", err)
	}
	s.log.Info().Str("account_id", accountID.String()).Msg("lifetime quota reset")
	return nil
}
