// Package sqlite is the embedded account store used for development and
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/utafrali/logistics-auth/internal/domain"
	"github.com/utafrali/logistics-auth/internal/repository"
	"github.com/utafrali/logistics-auth/pkg/database"
	apperrors "github.com/utafrali/logistics-auth/pkg/errors"
)

const accountColumns = `id, username, email, password_hash, first_name, last_name, phone,
		is_active, failed_login_attempts, locked_until, last_login,
		password_changed_at, created_at, updated_at`

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AccountRepository implements repository.AccountRepository on SQLite.
// The database must be opened with database.OpenSQLite so that transactions
// begin IMMEDIATE and serialize writers.
type AccountRepository struct {
	db *sql.DB
}

var _ repository.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates a new SQLite-backed account repository.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) (err error) {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	ctx, end := database.TraceQueryFor(ctx, database.SystemSQLite, "CreateAccount", query)
	defer func() { end(err) }()

	_, err = r.db.ExecContext(ctx, query,
		a.ID,
		a.Username,
		a.Email,
		a.PasswordHash,
		a.FirstName,
		a.LastName,
		a.Phone,
		a.IsActive,
		a.FailedAttempts,
		nullTime(a.LockedUntil),
		nullTime(a.LastLogin),
		a.PasswordChangedAt.UTC(),
		a.CreatedAt.UTC(),
		a.UpdatedAt.UTC(),
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
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`

	ctx, end := database.TraceQueryFor(ctx, database.SystemSQLite, "GetAccountByID", query)
	defer func() { end(err) }()

	acct, err = scanAccount(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("account", id)
	}
	return acct, err
}

// FindByIdentifier reads an account by username or email outside any
// transaction.
func (r *AccountRepository) FindByIdentifier(ctx context.Context, identifier string) (acct *domain.Account, err error) {
	ctx, end := database.TraceQueryFor(ctx, database.SystemSQLite, "FindAccountByIdentifier", findByIdentifierQuery)
	defer func() { end(err) }()

	return scanAccount(r.db.QueryRowContext(ctx, findByIdentifierQuery, identifier))
}

// WithinAccountTx runs fn in an IMMEDIATE transaction, which holds the
// database write lock from the first statement.
func (r *AccountRepository) WithinAccountTx(ctx context.Context, fn func(ctx context.Context, tx repository.AccountTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin account transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &accountTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit account transaction: %w", err)
	}
	return nil
}

type accountTx struct {
	q querier
}

// Columns are COLLATE NOCASE, so the identifier matches case-insensitively.
const findByIdentifierQuery = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE username = ?1 OR email = ?1
		ORDER BY (username = ?1) DESC
		LIMIT 1`

func (t *accountTx) FindByIdentifierForUpdate(ctx context.Context, identifier string) (acct *domain.Account, err error) {
	// The transaction already holds the write lock.
	ctx, end := database.TraceQueryFor(ctx, database.SystemSQLite, "FindAccountForUpdate", findByIdentifierQuery)
	defer func() { end(err) }()

	return scanAccount(t.q.QueryRowContext(ctx, findByIdentifierQuery, identifier))
}

func (t *accountTx) SaveLoginState(ctx context.Context, a *domain.Account) (err error) {
	query := `
		UPDATE accounts
		SET failed_login_attempts = ?, locked_until = ?, last_login = ?, updated_at = ?
		WHERE id = ?`

	ctx, end := database.TraceQueryFor(ctx, database.SystemSQLite, "SaveLoginState", query)
	defer func() { end(err) }()

	res, err := t.q.ExecContext(ctx, query,
		a.FailedAttempts, nullTime(a.LockedUntil), nullTime(a.LastLogin), a.UpdatedAt.UTC(), a.ID)
	if err != nil {
		return fmt.Errorf("update login state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update login state: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound("account", a.ID)
	}
	return nil
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var (
		a           domain.Account
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
	)
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
		&lockedUntil,
		&lastLogin,
		&a.PasswordChangedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time.UTC()
		a.LockedUntil = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		a.LastLogin = &t
	}
	return &a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// uniqueViolation recognizes SQLite's "UNIQUE constraint failed: accounts.<col>".
func uniqueViolation(err error) (string, bool) {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return "", false
	}
	if strings.Contains(msg, "accounts.email") {
		return "email", true
	}
	return "username", true
}
