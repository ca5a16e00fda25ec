package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/memberhub/backend/internal/models"
	"github.com/memberhub/backend/internal/session"
)

var (
	// ErrDuplicateEmail is returned when registering with an email that already exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AccountStore is satisfied by repository.AccountRepo.
type AccountStore interface {
	Create(ctx context.Context, a *models.Account) error
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
}

type Service interface {
	Register(ctx context.Context, email, password, displayName string) (*models.Account, error)
	Login(ctx context.Context, email, password string) (string, *models.Account, error)
	Logout(ctx context.Context, token string) error
	Takeover(ctx context.Context, token string) error
	VerifyToken(token string) (uuid.UUID, string, error)
}

type service struct {
	accounts AccountStore
	sessions session.Registry
	tokens   *TokenIssuer
	log      zerolog.Logger
}

func NewService(accounts AccountStore, sessions session.Registry, tokens *TokenIssuer, log zerolog.Logger) Service {
	return &service{accounts: accounts, sessions: sessions, tokens: tokens, log: log}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a pending account. An administrator approves it later.
func (s *service) Register(ctx context.Context, email, password, displayName string) (*models.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	acc := &models.Account{
		Email:        normalizeEmail(email),
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		Status:       models.AccountStatusPending,
		Role:         models.RoleUser,
		Level:        1,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	s.log.Info().Str("account_id", acc.ID.String()).Msg("account registered")
	return acc, nil
}

// Login checks the password, registers a fresh session (evicting any other
// device) and returns a token bound to it.
func (s *service) Login(ctx context.Context, email, password string) (string, *models.Account, error) {
	acc, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, models.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	sid := session.NewSessionID()
	if err := s.sessions.Register(ctx, acc.ID, sid); err != nil {
		return "", nil, err
	}
	token, err := s.tokens.Issue(acc.ID, sid)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	s.log.Info().Str("account_id", acc.ID.String()).Msg("login")
	return token, acc, nil
}

// Logout revokes the registered session only when the token still owns it, so
// a stale device logging out cannot sign out the device that replaced it.
// Invalid tokens are ignored.
func (s *service) Logout(ctx context.Context, token string) error {
	accountID, sid, err := s.tokens.VerifyToken(token)
	if err != nil {
		return nil
	}
	ok, err := s.sessions.Validate(ctx, accountID, sid)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.sessions.Revoke(ctx, accountID)
}

// Takeover makes the token's session the active one again, evicting the
// device that logged in after it.
func (s *service) Takeover(ctx context.Context, token string) error {
	accountID, sid, err := s.tokens.VerifyToken(token)
	if err != nil {
		return err
	}
	if err := s.sessions.Register(ctx, accountID, sid); err != nil {
		return err
	}
	s.log.Info().Str("account_id", accountID.String()).Msg("session takeover")
	return nil
}

func (s *service) VerifyToken(token string) (uuid.UUID, string, error) {
	return s.tokens.VerifyToken(token)
}
