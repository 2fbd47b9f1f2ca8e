package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/logistics-auth/internal/auth"
	"github.com/utafrali/logistics-auth/internal/domain"
	"github.com/utafrali/logistics-auth/internal/lockout"
	"github.com/utafrali/logistics-auth/internal/repository"
	apperrors "github.com/utafrali/logistics-auth/pkg/errors"
)

// --- In-memory account store ---

// memoryAccounts serializes transactions with a mutex and applies staged
// writes only on commit.
type memoryAccounts struct {
	mu      sync.Mutex
	byID    map[string]domain.Account
	findErr error
	saveErr error
}

func newMemoryAccounts(accts ...*domain.Account) *memoryAccounts {
	m := &memoryAccounts{byID: make(map[string]domain.Account)}
	for _, a := range accts {
		m.byID[a.ID] = *a
	}
	return m
}

func (m *memoryAccounts) get(id string) domain.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func (m *memoryAccounts) Create(_ context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if strings.EqualFold(existing.Username, a.Username) {
			return apperrors.AlreadyExists("account", "username", a.Username)
		}
		if strings.EqualFold(existing.Email, a.Email) {
			return apperrors.AlreadyExists("account", "email", a.Email)
		}
	}
	m.byID[a.ID] = *a
	return nil
}

func (m *memoryAccounts) GetByID(_ context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, apperrors.NotFound("account", id)
	}
	return &a, nil
}

func (m *memoryAccounts) WithinAccountTx(ctx context.Context, fn func(ctx context.Context, tx repository.AccountTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{store: m, staged: make(map[string]domain.Account)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, a := range tx.staged {
		m.byID[id] = a
	}
	return nil
}

type memoryTx struct {
	store  *memoryAccounts
	staged map[string]domain.Account
}

func (t *memoryTx) FindByIdentifierForUpdate(_ context.Context, ident string) (*domain.Account, error) {
	return t.store.find(ident)
}

func (m *memoryAccounts) FindByIdentifier(_ context.Context, ident string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(ident)
}

// find expects mu to be held.
func (m *memoryAccounts) find(ident string) (*domain.Account, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var byEmail *domain.Account
	for _, a := range m.byID {
		a := a
		if strings.ToLower(a.Username) == ident {
			return &a, nil
		}
		if strings.ToLower(a.Email) == ident {
			byEmail = &a
		}
	}
	if byEmail == nil {
		return nil, apperrors.ErrNotFound
	}
	return byEmail, nil
}

func (t *memoryTx) SaveLoginState(_ context.Context, a *domain.Account) error {
	if t.store.saveErr != nil {
		return t.store.saveErr
	}
	t.staged[a.ID] = *a
	return nil
}

// --- Mock audit publisher ---

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) PublishLoginSucceeded(ctx context.Context, acct *domain.Account) error {
	return m.Called(ctx, acct).Error(0)
}

func (m *mockAudit) PublishLoginFailed(ctx context.Context, acct *domain.Account, reason string) error {
	return m.Called(ctx, acct, reason).Error(0)
}

func (m *mockAudit) PublishAccountLocked(ctx context.Context, acct *domain.Account) error {
	return m.Called(ctx, acct).Error(0)
}

func (m *mockAudit) PublishLoggedOut(ctx context.Context, accountID string) error {
	return m.Called(ctx, accountID).Error(0)
}

// allowAllEvents accepts any audit event without asserting on it.
func allowAllEvents(m *mockAudit) {
	m.On("PublishLoginSucceeded", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishLoginFailed", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishAccountLocked", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishLoggedOut", mock.Anything, mock.Anything).Return(nil).Maybe()
}

// --- Test helpers ---

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestJWTManager(now time.Time) *auth.JWTManager {
	return auth.NewJWTManager(auth.JWTConfig{
		AccessSecret:  "test-access-secret-0123456789abcdef",
		RefreshSecret: "test-refresh-secret-0123456789abcdef",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
		Issuer:        "logistics-auth",
	}, auth.WithClock(func() time.Time { return now }))
}

var (
	hashOnce  sync.Once
	adminHash string
)

// adminPasswordHash is the bcrypt hash of "admin123" at minimum cost.
func adminPasswordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
		if err != nil {
			panic(err)
		}
		adminHash = string(h)
	})
	return adminHash
}

func newAdmin(t *testing.T) *domain.Account {
	t.Helper()
	created := testNow.Add(-24 * time.Hour)
	return &domain.Account{
		ID:                "acct-admin",
		Username:          "admin",
		Email:             "admin@test.com",
		PasswordHash:      adminPasswordHash(t),
		FirstName:         "Ada",
		LastName:          "Admin",
		IsActive:          true,
		PasswordChangedAt: created,
		CreatedAt:         created,
		UpdatedAt:         created,
	}
}

type authFixture struct {
	svc    *Authenticator
	store  *memoryAccounts
	audit  *mockAudit
	tokens *auth.JWTManager
}

func newAuthFixture(t *testing.T, accts ...*domain.Account) *authFixture {
	t.Helper()
	store := newMemoryAccounts(accts...)
	audit := &mockAudit{}
	tokens := newTestJWTManager(testNow)
	hasher := auth.NewBoundedHasher(auth.NewBcryptHasher(bcrypt.MinCost), 4)

	svc := NewAuthenticator(store, hasher, tokens, lockout.DefaultPolicy(), audit, newTestLogger())
	require.NotNil(t, svc)
	return &authFixture{svc: svc, store: store, audit: audit, tokens: tokens}
}
