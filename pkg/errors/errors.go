package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Standard sentinel errors. Every AppError wraps exactly one of them so callers
// can branch with errors.Is regardless of the message.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal error")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account inactive")
	ErrAccountLocked      = errors.New("account locked")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTooManyAttempts    = errors.New("too many attempts")
)

// Detail keys carried by auth failures.
const (
	DetailAttemptsRemaining = "attempts_remaining"
	DetailLockedUntil       = "locked_until"
	DetailReason            = "reason"
	DetailRetryAfter        = "retry_after_seconds"
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Status  int            `json:"-"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail attaches a key/value pair that is rendered under "details".
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// AlreadyExists creates a 409 error.
func AlreadyExists(resource, field, value string) *AppError {
	return &AppError{
		Code:    "ALREADY_EXISTS",
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Status:  http.StatusConflict,
		Err:     ErrAlreadyExists,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unauthenticated creates a 401 error for a missing or unusable credential.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHENTICATED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// Internal creates a 500 error. The wrapped cause is never rendered.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     errors.Join(ErrInternal, err),
	}
}

// InvalidCredentials creates the generic 401 returned for both an unknown
// identifier and a wrong password. attemptsRemaining < 0 omits the detail.
func InvalidCredentials(attemptsRemaining int) *AppError {
	e := &AppError{
		Code:    "INVALID_CREDENTIALS",
		Message: "invalid username or password",
		Status:  http.StatusUnauthorized,
		Err:     ErrInvalidCredentials,
	}
	if attemptsRemaining >= 0 {
		e.WithDetail(DetailAttemptsRemaining, attemptsRemaining)
	}
	return e
}

// AccountInactive creates a 401 error for a deactivated account.
func AccountInactive() *AppError {
	return &AppError{
		Code:    "ACCOUNT_INACTIVE",
		Message: "account is deactivated, contact an administrator",
		Status:  http.StatusUnauthorized,
		Err:     ErrAccountInactive,
	}
}

// AccountLocked creates a 401 error carrying the lockout expiry.
func AccountLocked(until time.Time) *AppError {
	e := &AppError{
		Code:    "ACCOUNT_LOCKED",
		Message: fmt.Sprintf("account is locked until %s", until.UTC().Format(time.RFC3339)),
		Status:  http.StatusUnauthorized,
		Err:     ErrAccountLocked,
	}
	return e.WithDetail(DetailLockedUntil, until.UTC())
}

// InvalidToken creates a 401 error for a token that failed verification.
func InvalidToken(reason string) *AppError {
	e := &AppError{
		Code:    "INVALID_TOKEN",
		Message: "invalid or expired token",
		Status:  http.StatusUnauthorized,
		Err:     ErrInvalidToken,
	}
	return e.WithDetail(DetailReason, reason)
}

// TooManyAttempts creates a 429 error for a throttled client.
func TooManyAttempts(retryAfter time.Duration) *AppError {
	e := &AppError{
		Code:    "TOO_MANY_ATTEMPTS",
		Message: "too many login attempts, try again later",
		Status:  http.StatusTooManyRequests,
		Err:     ErrTooManyAttempts,
	}
	return e.WithDetail(DetailRetryAfter, int(retryAfter.Round(time.Second).Seconds()))
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountInactive),
		errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrTooManyAttempts):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
