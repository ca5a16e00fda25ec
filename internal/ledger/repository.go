package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memberhub/backend/internal/models"
)

// Store is the usage-counter persistence the ledger needs.
type Store interface {
	// AccountPlan returns the account's level and the plan of its current
	// subscription. planID is nil when the account has no subscription.
	AccountPlan(ctx context.Context, accountID uuid.UUID) (level int, planID *uuid.UUID, err error)
	Used(ctx context.Context, accountID uuid.UUID, action, bucket string) (int, error)
	// IncrementIfBelow adds one to the bucket only while used < limit, in a
	// single statement. ok is false when the bucket was already at the limit.
	IncrementIfBelow(ctx context.Context, accountID uuid.UUID, action, bucket string, limit int) (used int, ok bool, err error)
	DeleteBucketsBefore(ctx context.Context, bucket string) (int64, error)
	ResetLifetime(ctx context.Context, accountID uuid.UUID, actorID *uuid.UUID) error
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var (
	_ Store   = (*Repository)(nil)
	_ Catalog = (*Repository)(nil)
)

func (r *Repository) AccountPlan(ctx context.Context, accountID uuid.UUID) (int, *uuid.UUID, error) {
	var level int
	var planID *uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT a.level, s.plan_id
		FROM accounts a
		LEFT JOIN subscriptions s ON s.id = a.current_subscription_id
		WHERE a.id = $1
	`, accountID).Scan(&level, &planID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, models.ErrNotFound
	}
	if err != nil {
		return 0, nil, err
	}
	return level, planID, nil
}

func (r *Repository) Used(ctx context.Context, accountID uuid.UUID, action, bucket string) (int, error) {
	var used int
	err := r.pool.QueryRow(ctx, `
		SELECT used FROM usage_counters
		WHERE account_id = $1 AND action_type = $2 AND bucket = $3
	`, accountID, action, bucket).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return used, err
}

// IncrementIfBelow creates the bucket lazily on first use. The conflict branch
// only fires while used < limit, so concurrent callers can never push the
// counter past the limit. A refusal reports the stored count, which can sit
// above a limit lowered by a plan change.
func (r *Repository) IncrementIfBelow(ctx context.Context, accountID uuid.UUID, action, bucket string, limit int) (int, bool, error) {
	if limit <= 0 {
		used, err := r.Used(ctx, accountID, action, bucket)
		return used, false, err
	}
	var used int
	err := r.pool.QueryRow(ctx, `
		INSERT INTO usage_counters (account_id, action_type, bucket, used)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (account_id, action_type, bucket) DO UPDATE
		SET used = usage_counters.used + 1, updated_at = now()
		WHERE usage_counters.used < $4
		RETURNING used
	`, accountID, action, bucket, limit).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		used, err = r.Used(ctx, accountID, action, bucket)
		return used, false, err
	}
	if err != nil {
		return 0, false, err
	}
	return used, true, nil
}

// DeleteBucketsBefore drops daily buckets older than bucket. Date keys sort
// lexically and the lifetime bucket is never touched.
func (r *Repository) DeleteBucketsBefore(ctx context.Context, bucket string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM usage_counters WHERE bucket <> $1 AND bucket < $2
	`, models.LifetimeBucket, bucket)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) ResetLifetime(ctx context.Context, accountID uuid.UUID, actorID *uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE usage_counters SET used = 0, updated_at = now()
		WHERE account_id = $1 AND bucket = $2
	`, accountID, models.LifetimeBucket); err != nil {
		return fmt.Errorf("reset lifetime counters: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO subscription_audit (account_id, actor_id, action)
		VALUES ($1, $2, $3)
	`, accountID, actorID, models.AuditResetTotal); err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *Repository) Plan(ctx context.Context, planID uuid.UUID) (*models.PlanConfig, error) {
	var p models.PlanConfig
	err := r.pool.QueryRow(ctx, `
		SELECT id, plan_name, price_cents, duration_days, upload_quota_daily, upload_quota_total, query_quota_daily, query_quota_total
		FROM plan_configs WHERE id = $1
	`, planID).Scan(&p.ID, &p.PlanName, &p.PriceCents, &p.DurationDays, &p.UploadQuotaDaily, &p.UploadQuotaTotal, &p.QueryQuotaDaily, &p.QueryQuotaTotal)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// LevelBonus returns a zero bonus for levels without a row.
func (r *Repository) LevelBonus(ctx context.Context, level int) (models.LevelBonus, error) {
	b := models.LevelBonus{Level: level}
	err := r.pool.QueryRow(ctx, `
		SELECT bonus_upload_quota, bonus_query_quota FROM level_bonuses WHERE level = $1
	`, level).Scan(&b.BonusUploadQuota, &b.BonusQueryQuota)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, nil
	}
	return b, err
}
