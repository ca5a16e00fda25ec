package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memberhub/backend/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Put(ctx context.Context, sess models.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO active_sessions (account_id, session_id, issued_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE
		SET session_id = EXCLUDED.session_id, issued_at = EXCLUDED.issued_at
	`, sess.AccountID, sess.SessionID, sess.IssuedAt)
	return err
}

// Get returns nil, nil when the account has no active session.
func (s *PostgresStore) Get(ctx context.Context, accountID uuid.UUID) (*models.Session, error) {
	var sess models.Session
	err := s.pool.QueryRow(ctx, `
		SELECT account_id, session_id, issued_at FROM active_sessions WHERE account_id = $1
	`, accountID).Scan(&sess.AccountID, &sess.SessionID, &sess.IssuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresStore) Delete(ctx context.Context, accountID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM active_sessions WHERE account_id = $1`, accountID)
	return err
}
