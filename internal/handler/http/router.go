package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/logistics-auth/internal/auth"
	"github.com/utafrali/logistics-auth/internal/authz"
	"github.com/utafrali/logistics-auth/internal/service"
	"github.com/utafrali/logistics-auth/internal/throttle"
	"github.com/utafrali/logistics-auth/pkg/health"
	"github.com/utafrali/logistics-auth/pkg/middleware"
)

// RouterConfig holds the outer-layer settings of the HTTP API.
type RouterConfig struct {
	ServiceName       string
	CORSOrigins       []string
	PprofAllowedCIDRs []string
}

// NewRouter creates a chi router with all auth service routes registered.
// limiter may be nil to disable login throttling.
func NewRouter(
	authService *service.Authenticator,
	authorizer authz.Authorizer,
	jwtManager *auth.JWTManager,
	limiter throttle.Limiter,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogging(logger, "/health/live", "/health/ready", "/metrics"))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	// Token validator that bridges to the JWT manager. Account state is not
	// rechecked here.
	tokenValidator := func(_ context.Context, token string) (*middleware.Claims, error) {
		claims, err := jwtManager.VerifyAccessToken(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			AccountID: claims.Subject,
			Username:  claims.Username,
			Email:     claims.Email,
		}, nil
	}

	authHandler := NewAuthHandler(authService, authorizer, logger)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(LoginThrottle(limiter, logger))
			}
			r.Post("/login", authHandler.Login)
		})
		r.Post("/refresh", authHandler.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(tokenValidator))
			r.Get("/me", authHandler.Me)
			r.Post("/logout", authHandler.Logout)
		})
	})

	return r
}
