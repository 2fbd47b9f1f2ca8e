package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/logistics-auth/internal/auth"
	"github.com/utafrali/logistics-auth/internal/authz"
	"github.com/utafrali/logistics-auth/internal/config"
	"github.com/utafrali/logistics-auth/internal/event"
	handler "github.com/utafrali/logistics-auth/internal/handler/http"
	"github.com/utafrali/logistics-auth/internal/lockout"
	"github.com/utafrali/logistics-auth/internal/repository"
	"github.com/utafrali/logistics-auth/internal/repository/postgres"
	"github.com/utafrali/logistics-auth/internal/repository/sqlite"
	"github.com/utafrali/logistics-auth/internal/service"
	"github.com/utafrali/logistics-auth/internal/throttle"
	"github.com/utafrali/logistics-auth/migrations"
	"github.com/utafrali/logistics-auth/pkg/database"
	"github.com/utafrali/logistics-auth/pkg/health"
	pkgkafka "github.com/utafrali/logistics-auth/pkg/kafka"
	"github.com/utafrali/logistics-auth/pkg/tracing"
)

// ServiceName identifies the service in logs, metrics, traces and events.
const ServiceName = "auth-service"

// Store is an opened account store.
type Store struct {
	Accounts repository.AccountRepository
	Ping     func(ctx context.Context) error
	Close    func() error
}

// OpenStore connects to the configured account store and applies its
// migrations.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		db, err := database.OpenSQLite(ctx, database.SQLiteConfig{Path: cfg.SQLitePath})
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, db, database.DialectSQLite, migrations.SQLite, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("opened SQLite account store", slog.String("path", cfg.SQLitePath))
		return &Store{
			Accounts: sqlite.NewAccountRepository(db),
			Ping:     db.PingContext,
			Close:    db.Close,
		}, nil

	case config.StorePostgres:
		pgCfg := cfg.Postgres()
		pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to PostgreSQL",
			slog.String("host", pgCfg.Host),
			slog.Int("port", pgCfg.Port),
			slog.String("database", pgCfg.DBName),
		)
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, ServiceName); err != nil {
			logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}

		if err := database.RunMigrations(ctx, pool, migrations.Postgres, logger); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("database migrations completed")
		return &Store{
			Accounts: postgres.NewAccountRepository(pool),
			Ping:     pool.Ping,
			Close: func() error {
				pool.Close()
				return nil
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// NewHasher returns the bcrypt hasher bounded to cfg.HashWorkers() concurrent
// operations.
func NewHasher(cfg *config.Config) auth.Hasher {
	return auth.NewBoundedHasher(auth.NewBcryptHasher(cfg.BcryptCost), cfg.HashWorkers())
}

// App wires together all dependencies and runs the auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	store          *Store
	producer       *pkgkafka.Producer
	redis          *redis.Client
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		_ = tracerShutdown(context.Background())
		return nil, fmt.Errorf("open account store: %w", err)
	}

	a := &App{
		cfg:            cfg,
		logger:         logger,
		store:          store,
		tracerShutdown: tracerShutdown,
	}

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical(cfg.StoreDriver, store.Ping)

	// Audit events.
	var audit service.AuditPublisher = event.Nop{}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		audit = event.NewProducer(a.producer, logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Login throttle. Redis shares the counter across replicas; without it
	// each replica limits on its own.
	var limiter throttle.Limiter
	if cfg.ThrottleMaxAttempts > 0 && cfg.ThrottleWindow > 0 {
		limiter = throttle.NewMemoryLimiter(cfg.ThrottleMaxAttempts, cfg.ThrottleWindow)
		if cfg.RedisEnabled {
			client, err := database.NewRedisClient(ctx, cfg.Redis())
			if err != nil {
				logger.Warn("redis unavailable, using in-process login throttle",
					slog.String("addr", cfg.Redis().Addr()),
					slog.String("error", err.Error()),
				)
			} else {
				a.redis = client
				limiter = throttle.NewRedisLimiter(client, cfg.ThrottleMaxAttempts, cfg.ThrottleWindow)
				healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
					return client.Ping(ctx).Err()
				})
				logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))
			}
		}
	}

	// Build the dependency graph.
	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.RefreshSecret(),
		AccessExpiry:  cfg.JWTAccessExpiry,
		RefreshExpiry: cfg.JWTRefreshExpiry,
		Issuer:        cfg.JWTIssuer,
	})
	policy := lockout.Policy{
		FailureThreshold: cfg.LockoutThreshold,
		LockoutDuration:  cfg.LockoutDuration,
	}
	authService := service.NewAuthenticator(store.Accounts, NewHasher(cfg), jwtManager, policy, audit, logger)

	router := handler.NewRouter(authService, authz.Noop{}, jwtManager, limiter, healthHandler, logger, handler.RouterConfig{
		ServiceName:       ServiceName,
		CORSOrigins:       cfg.CORSAllowedOrigins,
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Handler returns the HTTP handler served by Run.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown stops components in order: HTTP server, tracer, Kafka producer,
// Redis client, account store.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	timeout := a.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpCtx, httpCancel := context.WithTimeout(context.Background(), timeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// Spans from drained requests are flushed after the HTTP drain.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.store.Close(); err != nil {
		a.logger.Error("account store close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
