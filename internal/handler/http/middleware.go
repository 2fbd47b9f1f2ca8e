package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/logistics-auth/internal/throttle"
	apperrors "github.com/utafrali/logistics-auth/pkg/errors"
	"github.com/utafrali/logistics-auth/pkg/httputil"
	"github.com/utafrali/logistics-auth/pkg/middleware"
)

// ContentTypeJSON rejects request bodies that are not application/json.
// Bodyless POSTs (logout, header-only refresh) pass through.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength != 0 {
			ct := r.Header.Get("Content-Type")
			if !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json",
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// LoginThrottle answers 429 TOO_MANY_ATTEMPTS once a client address exceeds
// limiter. If the limiter itself fails the request is let through.
func LoginThrottle(limiter throttle.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if ip, ok := middleware.PeerIP(r); ok {
				key = ip.String()
			}

			allowed, retryAfter, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.WarnContext(r.Context(), "login throttle unavailable, allowing request",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				logger.WarnContext(r.Context(), "login throttled",
					slog.String("client_ip", key),
					slog.Duration("retry_after", retryAfter),
				)
				httputil.WriteError(w, r, apperrors.TooManyAttempts(retryAfter), logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
