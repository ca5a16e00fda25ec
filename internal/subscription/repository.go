package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memberhub/backend/internal/models"
)

// Mutation edits a locked subscription in place. A nil audit entry means
// nothing changed and nothing is written.
type Mutation func(sub *models.Subscription) (*models.AuditEntry, error)

// Store is the persistence surface the evaluator needs.
type Store interface {
	Current(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error)
	Mutate(ctx context.Context, accountID uuid.UUID, fn Mutation) (*models.Subscription, error)
	ExpireOverdue(ctx context.Context) (int64, error)
	History(ctx context.Context, accountID uuid.UUID, limit int) ([]models.Subscription, []models.AuditEntry, error)
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const currentSubscriptionSQL = `
	SELECT s.id, s.account_id, s.plan_id, s.plan_type, s.status, s.start_date, s.end_date, s.created_at, s.updated_at
	FROM accounts a
	JOIN subscriptions s ON s.id = a.current_subscription_id
	WHERE a.id = $1`

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var s models.Subscription
	err := row.Scan(&s.ID, &s.AccountID, &s.PlanID, &s.PlanType, &s.Status, &s.StartDate, &s.EndDate, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Current returns the subscription the account's current pointer refers to.
func (r *Repository) Current(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error) {
	return scanSubscription(r.pool.QueryRow(ctx, currentSubscriptionSQL, accountID))
}

// Mutate locks the current subscription row, applies fn and, when fn reports a
// change, persists the new status and end date together with the audit row.
func (r *Repository) Mutate(ctx context.Context, accountID uuid.UUID, fn Mutation) (*models.Subscription, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	sub, err := scanSubscription(tx.QueryRow(ctx, currentSubscriptionSQL+` FOR UPDATE OF s`, accountID))
	if err != nil {
		return nil, err
	}

	entry, err := fn(sub)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return sub, tx.Commit(ctx)
	}

	err = tx.QueryRow(ctx, `
		UPDATE subscriptions SET status = $2, end_date = $3, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, sub.ID, sub.Status, sub.EndDate).Scan(&sub.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO subscription_audit (account_id, actor_id, action, delta_days, reason, old_end_date, new_end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, accountID, entry.ActorID, entry.Action, entry.DeltaDays, entry.Reason, entry.OldEndDate, entry.NewEndDate)
	if err != nil {
		return nil, fmt.Errorf("insert audit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return sub, nil
}

// ExpireOverdue writes the expired status for trial and active rows whose end
// date has passed.
func (r *Repository) ExpireOverdue(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions SET status = 'expired', updated_at = now()
		WHERE status IN ('trial', 'active') AND end_date < now()
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// History returns the account's most recent subscriptions, current and past,
// and its most recent audit rows, newest first.
func (r *Repository) History(ctx context.Context, accountID uuid.UUID, limit int) ([]models.Subscription, []models.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, plan_id, plan_type, status, start_date, end_date, created_at, updated_at
		FROM subscriptions
		WHERE account_id = $1
		ORDER BY start_date DESC, created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()
	subs := []models.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, nil, err
		}
		subs = append(subs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT id, account_id, actor_id, action, delta_days, reason, old_end_date, new_end_date, created_at
		FROM subscription_audit
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()
	audit := []models.AuditEntry{}
	for rows.Next() {
		var a models.AuditEntry
		if err := rows.Scan(&a.ID, &a.AccountID, &a.ActorID, &a.Action, &a.DeltaDays, &a.Reason, &a.OldEndDate, &a.NewEndDate, &a.CreatedAt); err != nil {
			return nil, nil, err
		}
		audit = append(audit, a)
	}
	return subs, audit, rows.Err()
}
