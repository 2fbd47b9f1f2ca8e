package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/logistics-auth/internal/auth"
	"github.com/utafrali/logistics-auth/internal/domain"
	"github.com/utafrali/logistics-auth/internal/event"
	"github.com/utafrali/logistics-auth/internal/lockout"
	"github.com/utafrali/logistics-auth/internal/repository"
	apperrors "github.com/utafrali/logistics-auth/pkg/errors"
	"github.com/utafrali/logistics-auth/pkg/tracing"
)

const tracerName = "github.com/utafrali/logistics-auth/internal/service"

// AuditPublisher receives authentication audit events. Publishing failures
// are logged and never change the outcome of a login.
type AuditPublisher interface {
	PublishLoginSucceeded(ctx context.Context, acct *domain.Account) error
	PublishLoginFailed(ctx context.Context, acct *domain.Account, reason string) error
	PublishAccountLocked(ctx context.Context, acct *domain.Account) error
	PublishLoggedOut(ctx context.Context, accountID string) error
}

// Result is a successful authentication.
type Result struct {
	Account      *domain.Account
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
}

// Reasons a well-formed refresh token is still refused.
const (
	ReasonUnknownSubject  = "unknown-subject"
	ReasonAccountInactive = "account-inactive"
	ReasonAccountLocked   = "account-locked"
)

// RefreshResult is a newly minted access token.
type RefreshResult struct {
	AccessToken string
	ExpiresAt   time.Time
	ExpiresIn   int64
}

// Authenticator verifies credentials, maintains the lockout state and issues
// session tokens.
type Authenticator struct {
	accounts repository.AccountRepository
	hasher   auth.Hasher
	tokens   *auth.JWTManager
	policy   lockout.Policy
	events   AuditPublisher
	logger   *slog.Logger
}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator(
	accounts repository.AccountRepository,
	hasher auth.Hasher,
	tokens *auth.JWTManager,
	policy lockout.Policy,
	events AuditPublisher,
	logger *slog.Logger,
) *Authenticator {
	return &Authenticator{
		accounts: accounts,
		hasher:   hasher,
		tokens:   tokens,
		policy:   policy,
		events:   events,
		logger:   logger,
	}
}

// attempt is what one pass through the account transaction decided.
type attempt struct {
	acct    *domain.Account
	outcome string
	// failure is returned to the caller after the transaction commits.
	failure error
	result  *Result
	locked  bool
}

// verdict is a password check made against an unlocked read of the account.
type verdict struct {
	hash string
	ok   bool
}

// Authenticate checks identifier (username or email) and password at now.
//
// The password is checked before the account transaction starts, so slow
// hashing never holds a row or database lock. Inside the transaction the
// account is re-read under lock and the lockout decision is applied to that
// fresh state; the earlier check is reused only while the stored hash is
// unchanged. Concurrent attempts against one account therefore never lose a
// failure. Domain failures (InvalidCredentials, AccountInactive,
// AccountLocked) are returned after the lockout bookkeeping has been
// committed.
func (s *Authenticator) Authenticate(ctx context.Context, identifier, password string, now time.Time) (_ *Result, err error) {
	ident := domain.NormalizeIdentifier(identifier)
	if ident == "" {
		return nil, apperrors.InvalidInput("username or email is required")
	}
	if password == "" {
		return nil, apperrors.InvalidInput("password is required")
	}
	now = now.UTC()

	ctx, span := tracing.Tracer(tracerName).Start(ctx, "Authenticator.Authenticate")
	defer func() { tracing.End(span, err) }()

	var at attempt
	pre, err := s.precheck(ctx, ident, password, now)
	if err == nil {
		err = s.accounts.WithinAccountTx(ctx, func(ctx context.Context, tx repository.AccountTx) error {
			var err error
			at, err = s.attempt(ctx, tx, ident, password, pre, now)
			return err
		})
	}
	if err != nil {
		LoginAttempts.WithLabelValues(OutcomeError).Inc()
		s.logger.ErrorContext(ctx, "authentication failed with internal error",
			slog.String("error", err.Error()),
		)
		return nil, apperrors.Internal(fmt.Errorf("authenticate: %w", err))
	}

	LoginAttempts.WithLabelValues(at.outcome).Inc()
	span.SetAttributes(attribute.String("auth.outcome", at.outcome))
	s.audit(ctx, at)

	if at.failure != nil {
		return nil, at.failure
	}
	return at.result, nil
}

// precheck verifies password against an unlocked read of the account. It
// returns nil when there is nothing worth verifying yet.
func (s *Authenticator) precheck(ctx context.Context, ident, password string, now time.Time) (*verdict, error) {
	acct, err := s.accounts.FindByIdentifier(ctx, ident)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	if !acct.IsActive || s.policy.IsLocked(acct, now) {
		return nil, nil
	}

	ok, err := s.verify(ctx, acct.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	return &verdict{hash: acct.PasswordHash, ok: ok}, nil
}

func (s *Authenticator) attempt(ctx context.Context, tx repository.AccountTx, ident, password string, pre *verdict, now time.Time) (attempt, error) {
	acct, err := tx.FindByIdentifierForUpdate(ctx, ident)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return attempt{
				outcome: OutcomeUnknownIdentifier,
				failure: apperrors.InvalidCredentials(-1),
			}, nil
		}
		return attempt{}, fmt.Errorf("find account: %w", err)
	}

	if !acct.IsActive {
		return attempt{acct: acct, outcome: OutcomeInactive, failure: apperrors.AccountInactive()}, nil
	}
	if s.policy.IsLocked(acct, now) {
		return attempt{acct: acct, outcome: OutcomeLocked, failure: apperrors.AccountLocked(*acct.LockedUntil)}, nil
	}

	var ok bool
	if pre != nil && pre.hash == acct.PasswordHash {
		ok = pre.ok
	} else {
		// The unlocked read gave no usable check, or the hash changed since.
		ok, err = s.verify(ctx, acct.PasswordHash, password)
		if err != nil {
			return attempt{}, err
		}
	}

	if !ok {
		d := s.policy.OnFailure(acct, now)
		d.ApplyFailure(acct)
		acct.UpdatedAt = now
		if err := tx.SaveLoginState(ctx, acct); err != nil {
			return attempt{}, fmt.Errorf("record failed login: %w", err)
		}
		if d.Locked {
			return attempt{
				acct:    acct,
				outcome: OutcomeLocked,
				failure: apperrors.AccountLocked(*d.LockedUntil),
				locked:  true,
			}, nil
		}
		return attempt{
			acct:    acct,
			outcome: OutcomeInvalidCredentials,
			failure: apperrors.InvalidCredentials(d.AttemptsRemaining),
		}, nil
	}

	s.policy.OnSuccess(acct)
	loginAt := now
	acct.LastLogin = &loginAt
	acct.UpdatedAt = now
	if err := tx.SaveLoginState(ctx, acct); err != nil {
		return attempt{}, fmt.Errorf("record login: %w", err)
	}

	access, exp, err := s.tokens.IssueAccessToken(acct)
	if err != nil {
		return attempt{}, err
	}
	refresh, _, err := s.tokens.IssueRefreshToken(acct)
	if err != nil {
		return attempt{}, err
	}

	return attempt{
		acct:    acct,
		outcome: OutcomeSuccess,
		result: &Result{
			Account:      acct,
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresAt:    exp,
			ExpiresIn:    int64(s.tokens.AccessExpiry().Seconds()),
		},
	}, nil
}

func (s *Authenticator) verify(ctx context.Context, hash, password string) (bool, error) {
	start := time.Now()
	ok, err := s.hasher.Verify(ctx, hash, password)
	PasswordVerifyDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("verify password: %w", err)
	}
	return ok, nil
}

// audit logs the committed outcome and publishes the matching event.
func (s *Authenticator) audit(ctx context.Context, at attempt) {
	if at.acct == nil {
		s.logger.WarnContext(ctx, "login failed",
			slog.String("reason", at.outcome),
		)
		return
	}

	log := s.logger.With(
		slog.String("account_id", at.acct.ID),
		slog.String("username", at.acct.Username),
	)

	var err error
	switch at.outcome {
	case OutcomeSuccess:
		log.InfoContext(ctx, "user logged in")
		err = s.events.PublishLoginSucceeded(ctx, at.acct)
	case OutcomeInvalidCredentials:
		log.WarnContext(ctx, "login failed",
			slog.String("reason", event.ReasonWrongPassword),
			slog.Int("failed_attempts", at.acct.FailedAttempts),
		)
		err = s.events.PublishLoginFailed(ctx, at.acct, event.ReasonWrongPassword)
	case OutcomeInactive:
		log.WarnContext(ctx, "login failed", slog.String("reason", event.ReasonInactive))
		err = s.events.PublishLoginFailed(ctx, at.acct, event.ReasonInactive)
	case OutcomeLocked:
		if at.locked {
			AccountLockouts.Inc()
			log.WarnContext(ctx, "account locked after repeated failed logins",
				slog.Int("failed_attempts", at.acct.FailedAttempts),
				slog.Time("locked_until", *at.acct.LockedUntil),
			)
			err = s.events.PublishAccountLocked(ctx, at.acct)
			break
		}
		log.WarnContext(ctx, "login failed", slog.String("reason", event.ReasonLocked))
		err = s.events.PublishLoginFailed(ctx, at.acct, event.ReasonLocked)
	}

	if err != nil {
		log.ErrorContext(ctx, "failed to publish audit event",
			slog.String("outcome", at.outcome),
			slog.String("error", err.Error()),
		)
	}
}

// CurrentAccount returns the account identified by a verified token subject.
func (s *Authenticator) CurrentAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	if accountID == "" {
		return nil, apperrors.Unauthenticated("missing account identity")
	}
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get current account: %w", err)
	}
	return acct, nil
}

// Logout acknowledges the end of a session. Tokens are stateless and remain
// valid until they expire.
func (s *Authenticator) Logout(ctx context.Context, accountID string) error {
	if err := s.events.PublishLoggedOut(ctx, accountID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish auth.logged_out event",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user logged out",
		slog.String("account_id", accountID),
	)
	return nil
}

// Refresh exchanges a refresh token for a new access token. The account must
// still exist, be active and not be locked at now.
func (s *Authenticator) Refresh(ctx context.Context, refreshToken string, now time.Time) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, apperrors.InvalidInput("refresh token is required")
	}

	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	acct, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidToken(ReasonUnknownSubject)
		}
		return nil, fmt.Errorf("get account for token refresh: %w", err)
	}
	if !acct.IsActive {
		return nil, apperrors.InvalidToken(ReasonAccountInactive)
	}
	if s.policy.IsLocked(acct, now.UTC()) {
		return nil, apperrors.InvalidToken(ReasonAccountLocked)
	}

	access, exp, err := s.tokens.IssueAccessToken(acct)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	s.logger.InfoContext(ctx, "access token refreshed",
		slog.String("account_id", acct.ID),
	)

	return &RefreshResult{
		AccessToken: access,
		ExpiresAt:   exp,
		ExpiresIn:   int64(s.tokens.AccessExpiry().Seconds()),
	}, nil
}
