package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/logistics-auth/pkg/errors"
	"github.com/utafrali/logistics-auth/pkg/httputil"
	"github.com/utafrali/logistics-auth/pkg/logger"
)

type contextKeyType string

const claimsKey contextKeyType = "auth_claims"

// Claims is the verified caller identity placed in the request context.
type Claims struct {
	AccountID string
	Username  string
	Email     string
}

// TokenValidator verifies a bearer token and returns the caller identity.
type TokenValidator func(ctx context.Context, token string) (*Claims, error)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Auth rejects requests without a valid bearer token with 401 UNAUTHENTICATED
// and stores the verified Claims in the context.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				httputil.WriteError(w, r, apperrors.Unauthenticated("missing bearer token"), nil)
				return
			}

			claims, err := validate(r.Context(), token)
			if err != nil {
				httputil.WriteError(w, r, unauthenticated(err), nil)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = logger.WithAccountID(ctx, claims.AccountID)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("account_id", claims.AccountID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// unauthenticated keeps the verification reason, if any, but always reports
// the UNAUTHENTICATED code.
func unauthenticated(err error) *apperrors.AppError {
	out := apperrors.Unauthenticated("invalid or expired token")
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if reason, ok := appErr.Details[apperrors.DetailReason]; ok {
			out.WithDetail(apperrors.DetailReason, reason)
		}
	}
	return out
}

// ClaimsFromContext returns the claims stored by Auth.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}

// AccountIDFromContext returns the authenticated account ID, or "".
func AccountIDFromContext(ctx context.Context) string {
	if c, ok := ClaimsFromContext(ctx); ok {
		return c.AccountID
	}
	return ""
}
