package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/memberhub/backend/internal/models"
	"github.com/memberhub/backend/internal/session"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type memAccounts struct {
	mu      sync.Mutex
	byEmail map[string]*models.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byEmail: make(map[string]*models.Account)}
}

func (m *memAccounts) Create(_ context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[a.Email]; ok {
		return &pgconn.PgError{Code: "23505"}
	}
	a.ID = uuid.New()
	m.byEmail[a.Email] = a
	return nil
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byEmail[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	return a, nil
}

type memSessions struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.Session
}

func (m *memSessions) Put(_ context.Context, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.AccountID] = s
	return nil
}

func (m *memSessions) Get(_ context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memSessions) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

type harness struct {
	svc      Service
	accounts *memAccounts
	registry session.Registry
	tokens   *TokenIssuer
}

func newHarness() *harness {
	accounts := newMemAccounts()
	reg := session.NewRegistry(&memSessions{rows: make(map[uuid.UUID]models.Session)}, zerolog.Nop())
	tokens := NewTokenIssuer("test-secret-0123456789", time.Hour)
	return &harness{
		svc:      NewService(accounts, reg, tokens, zerolog.Nop()),
		accounts: accounts,
		registry: reg,
		tokens:   tokens,
	}
}

// seedApproved stores an approved account with a cheap bcrypt hash.
func (h *harness) seedApproved(t *testing.T, email, password string) *models.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	acc := &models.Account{Email: email, PasswordHash: string(hash), Status: models.AccountStatusApproved, Role: models.RoleUser}
	if err := h.accounts.Create(context.Background(), acc); err != nil {
		t.Fatal(err)
	}
	return acc
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRegister(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	acc, err := h.svc.Register(ctx, "  New@Example.com ", "longenough", "New Member")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if acc.Email != "new@example.com" || acc.Status != models.AccountStatusPending || acc.Role != models.RoleUser {
		t.Fatalf("unexpected account %+v", acc)
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte("longenough")) != nil {
		t.Fatal("password hash does not match")
	}

	if _, err := h.svc.Register(ctx, "new@example.com", "longenough", ""); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestLogin_EvictsPreviousDevice(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	acc := h.seedApproved(t, "member@example.com", "secret-pass")

	first, _, err := h.svc.Login(ctx, "member@example.com", "secret-pass")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, _, err := h.svc.Login(ctx, "MEMBER@example.com", "secret-pass")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	_, sid1, _ := h.tokens.VerifyToken(first)
	_, sid2, _ := h.tokens.VerifyToken(second)
	if ok, _ := h.registry.Validate(ctx, acc.ID, sid1); ok {
		t.Error("first device should have been evicted")
	}
	if ok, _ := h.registry.Validate(ctx, acc.ID, sid2); !ok {
		t.Error("second device should hold the session")
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newHarness()
	h.seedApproved(t, "member@example.com", "secret-pass")

	for _, c := range []struct{ email, pw string }{
		{"member@example.com", "wrong"},
		{"nobody@example.com", "secret-pass"},
	} {
		if _, _, err := h.svc.Login(context.Background(), c.email, c.pw); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("%s: expected ErrInvalidCredentials, got %v", c.email, err)
		}
	}
}

func TestTakeoverAndLogout(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	acc := h.seedApproved(t, "member@example.com", "secret-pass")

	old, _, _ := h.svc.Login(ctx, "member@example.com", "secret-pass")
	newer, _, _ := h.svc.Login(ctx, "member@example.com", "secret-pass")

	// The stale device logging out must not sign out the newer one.
	if err := h.svc.Logout(ctx, old); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	_, newerSID, _ := h.tokens.VerifyToken(newer)
	if ok, _ := h.registry.Validate(ctx, acc.ID, newerSID); !ok {
		t.Fatal("stale logout revoked the active session")
	}

	if err := h.svc.Takeover(ctx, old); err != nil {
		t.Fatalf("Takeover: %v", err)
	}
	_, oldSID, _ := h.tokens.VerifyToken(old)
	if ok, _ := h.registry.Validate(ctx, acc.ID, oldSID); !ok {
		t.Fatal("takeover should restore the old device's session")
	}

	if err := h.svc.Logout(ctx, old); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if ok, _ := h.registry.Validate(ctx, acc.ID, oldSID); ok {
		t.Fatal("logout should revoke the session")
	}

	if err := h.svc.Takeover(ctx, "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
