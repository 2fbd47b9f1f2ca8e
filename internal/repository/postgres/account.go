package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/logistics-auth/internal/domain"
	"github.com/utafrali/logistics-auth/internal/repository"
	"github.com/utafrali/logistics-auth/pkg/database"
	apperrors "github.com/utafrali/logistics-auth/pkg/errors"
)

const accountColumns = `id, username, email, password_hash, first_name, last_name, phone,
		is_active, failed_login_attempts, locked_until, last_login,
		password_changed_at, created_at, updated_at`

// AccountRepository implements repository.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db database.DBTX
}

var _ repository.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates a new PostgreSQL-backed account repository.
func NewAccountRepository(db database.DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) (err error) {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	ctx, end := database.TraceQuery(ctx, "CreateAccount", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		a.ID,
		a.Username,
		a.Email,
		a.PasswordHash,
		a.FirstName,
		a.LastName,
		a.Phone,
		a.IsActive,
		a.FailedAttempts,
		a.LockedUntil,
		a.LastLogin,
		a.PasswordChangedAt,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if field, ok := uniqueViolation(err); ok {
			value := a.Username
			if field == "email" {
				value = a.Email
			}
			return apperrors.AlreadyExists("account", field, value)
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (acct *domain.Account, err error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetAccountByID", query)
	defer func() { end(err) }()

	acct, err = scanAccount(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("account", id)
	}
	return acct, err
}

// FindByIdentifier reads an account by lower-cased username or email
// without locking the row.
func (r *AccountRepository) FindByIdentifier(ctx context.Context, identifier string) (acct *domain.Account, err error) {
	ctx, end := database.TraceQuery(ctx, "FindAccountByIdentifier", findByIdentifierQuery)
	defer func() { end(err) }()

	return scanAccount(r.db.QueryRow(ctx, findByIdentifierQuery, identifier))
}

// WithinAccountTx runs fn in a READ COMMITTED transaction. Rows read with
// FindByIdentifierForUpdate stay locked until it commits or rolls back.
func (r *AccountRepository) WithinAccountTx(ctx context.Context, fn func(ctx context.Context, tx repository.AccountTx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin account transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &accountTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit account transaction: %w", err)
	}
	return nil
}

type accountTx struct {
	q database.Querier
}

const findByIdentifierQuery = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE lower(username) = $1 OR lower(email) = $1
		ORDER BY (lower(username) = $1) DESC
		LIMIT 1`

func (t *accountTx) FindByIdentifierForUpdate(ctx context.Context, identifier string) (acct *domain.Account, err error) {
	query := findByIdentifierQuery + `
		FOR UPDATE`

	ctx, end := database.TraceQuery(ctx, "FindAccountForUpdate", query)
	defer func() { end(err) }()

	return scanAccount(t.q.QueryRow(ctx, query, identifier))
}

func (t *accountTx) SaveLoginState(ctx context.Context, a *domain.Account) (err error) {
	query := `
		UPDATE accounts
		SET failed_login_attempts = $1, locked_until = $2, last_login = $3, updated_at = $4
		WHERE id = $5`

	ctx, end := database.TraceQuery(ctx, "SaveLoginState", query)
	defer func() { end(err) }()

	ct, err := t.q.Exec(ctx, query, a.FailedAttempts, a.LockedUntil, a.LastLogin, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("update login state: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("account", a.ID)
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.PasswordHash,
		&a.FirstName,
		&a.LastName,
		&a.Phone,
		&a.IsActive,
		&a.FailedAttempts,
		&a.LockedUntil,
		&a.LastLogin,
		&a.PasswordChangedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

// uniqueViolation reports whether err is a unique constraint violation
// (SQLSTATE 23505) and which column it concerns.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	if strings.Contains(pgErr.ConstraintName, "email") {
		return "email", true
	}
	return "username", true
}
