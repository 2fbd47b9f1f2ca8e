package repository

import (
	"context"

	"github.com/utafrali/logistics-auth/internal/domain"
)

// AccountRepository defines account persistence.
type AccountRepository interface {
	// Create inserts a new account. A duplicate username or email returns an
	// ErrAlreadyExists error.
	Create(ctx context.Context, acct *domain.Account) error

	// GetByID retrieves an account by its identifier.
	GetByID(ctx context.Context, id string) (*domain.Account, error)

	// FindByIdentifier is FindByIdentifierForUpdate without the row lock. The
	// result may be stale by the time the caller acts on it.
	FindByIdentifier(ctx context.Context, identifier string) (*domain.Account, error)

	// WithinAccountTx runs fn in a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithinAccountTx(ctx context.Context, fn func(ctx context.Context, tx AccountTx) error) error
}

// AccountTx is the read-modify-write surface available inside WithinAccountTx.
type AccountTx interface {
	// FindByIdentifierForUpdate locks and returns the account whose username or
	// email equals the normalized identifier, preferring a username match.
	// Returns ErrNotFound when none matches.
	FindByIdentifierForUpdate(ctx context.Context, identifier string) (*domain.Account, error)

	// SaveLoginState persists the lockout counter, lock expiry and last login.
	SaveLoginState(ctx context.Context, acct *domain.Account) error
}
