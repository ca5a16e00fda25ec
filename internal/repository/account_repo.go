package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memberhub/backend/internal/models"
)

// TrialPlanName is the plan_configs row approved accounts start on.
const TrialPlanName = "free_trial"

// ErrNoTrialPlan means the free_trial plan row is missing.
var ErrNoTrialPlan = errors.New("trial plan is not configured")

const accountColumns = `id, email, display_name, password_hash, status, role, level, current_subscription_id, created_at, updated_at`

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.PasswordHash, &a.Status, &a.Role, &a.Level, &a.CurrentSubscriptionID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new account. Status and role fall back to pending/user.
func (r *AccountRepo) Create(ctx context.Context, a *models.Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = models.AccountStatusPending
	}
	if a.Role == "" {
		a.Role = models.RoleUser
	}
	if a.Level == 0 {
		a.Level = 1
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, display_name, password_hash, status, role, level)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, a.ID, a.Email, a.DisplayName, a.PasswordHash, a.Status, a.Role, a.Level).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return a, nil
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return a, nil
}

// UpdateStatus is the administrative approve/suspend transition.
func (r *AccountRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Approve moves the account to approved and, when it has no current
// subscription, starts a trial on the free_trial plan in the same transaction.
// The trial ends duration_days after now. The returned subscription is nil when
// the account already had one.
func (r *AccountRepo) Approve(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*models.Subscription, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var current *uuid.UUID
	err = tx.QueryRow(ctx, `SELECT current_subscription_id FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock account %s: %w", id, err)
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts SET status = 'approved', updated_at = now() WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("approve account %s: %w", id, err)
	}
	if current != nil {
		return nil, tx.Commit(ctx)
	}

	var planID uuid.UUID
	var days int
	err = tx.QueryRow(ctx, `SELECT id, duration_days FROM plan_configs WHERE plan_name = $1`, TrialPlanName).Scan(&planID, &days)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoTrialPlan
	}
	if err != nil {
		return nil, fmt.Errorf("load trial plan: %w", err)
	}

	sub := models.Subscription{AccountID: id, PlanID: planID}
	err = tx.QueryRow(ctx, `
		INSERT INTO subscriptions (account_id, plan_id, plan_type, status, start_date, end_date)
		VALUES ($1, $2, $3, $4, now(), now() + make_interval(days => $5))
		RETURNING id, plan_type, status, start_date, end_date, created_at, updated_at
	`, id, planID, models.PlanTypeFreeTrial, models.SubscriptionStatusTrial, days).
		Scan(&sub.ID, &sub.PlanType, &sub.Status, &sub.StartDate, &sub.EndDate, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("start trial: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts SET current_subscription_id = $2 WHERE id = $1`, id, sub.ID); err != nil {
		return nil, fmt.Errorf("point account at trial: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO subscription_audit (account_id, actor_id, action, delta_days, reason, new_end_date)
		VALUES ($1, $2, $3, $4, 'account approved', $5)
	`, id, actorID, models.AuditStartTrial, days, sub.EndDate)
	if err != nil {
		return nil, fmt.Errorf("insert audit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &sub, nil
}

// SetLevel is written by the gamification subsystem; the ledger reads it fresh.
func (r *AccountRepo) SetLevel(ctx context.Context, id uuid.UUID, level int) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET level = $2, updated_at = now() WHERE id = $1`, id, level)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *AccountRepo) List(ctx context.Context) ([]*models.Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}
