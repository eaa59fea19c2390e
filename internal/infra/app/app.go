package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gosgconsulting/cms-identity/internal/core/port"
	"github.com/gosgconsulting/cms-identity/internal/infra/config"
	"github.com/gosgconsulting/cms-identity/internal/infra/database"
	"github.com/gosgconsulting/cms-identity/internal/infra/kafka"
	"github.com/gosgconsulting/cms-identity/internal/infra/notify"
	infraredis "github.com/gosgconsulting/cms-identity/internal/infra/redis"
	"github.com/gosgconsulting/cms-identity/internal/infra/security"
	"github.com/gosgconsulting/cms-identity/internal/infra/telemetry"
	"github.com/gosgconsulting/cms-identity/internal/ratelimit"
	pgrepo "github.com/gosgconsulting/cms-identity/internal/repository/postgres"
	redisrepo "github.com/gosgconsulting/cms-identity/internal/repository/redis"
	"github.com/gosgconsulting/cms-identity/internal/usecase"
)

// App owns the wired identity service: every dependency is constructed here
// and torn down in reverse order on shutdown.
type App struct {
	cfg    *config.AppConfig
	logger *zap.Logger

	pool     *pgxpool.Pool
	redis    *infraredis.Client
	producer *kafka.Producer
	limiter  *ratelimit.Limiter

	metricsServer *http.Server

	Auth         *usecase.AuthService
	Registration *usecase.RegistrationService
	Accounts     *usecase.AccountService
	Passwords    *usecase.PasswordService
	Sessions     *usecase.SessionService
	Audit        *usecase.AuditService
}

// New constructs and wires the service from configuration.
func New(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: log}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.pool = pool

	redisClient, err := infraredis.NewClient(cfg.Redis, log)
	if err != nil {
		a.closePartial()
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.redis = redisClient

	var publisher port.EventPublisher = kafka.NewStubPublisher()
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka, log)
		if err != nil {
			a.closePartial()
			return nil, fmt.Errorf("kafka: %w", err)
		}
		a.producer = producer
		publisher = kafka.NewEventPublisher(producer, cfg.App, log)
	} else {
		log.Info("kafka disabled, events will be dropped")
	}

	hasher, err := security.NewHasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		a.closePartial()
		return nil, fmt.Errorf("argon2: %w", err)
	}

	signer, err := security.NewTokenSigner(cfg.JWT.Secret, cfg.App.Name, cfg.JWT.ExpiresIn)
	if err != nil {
		a.closePartial()
		return nil, fmt.Errorf("jwt: %w", err)
	}

	validator := security.NewPasswordValidator(cfg.Auth.PasswordMinLength)
	metrics := telemetry.New(prometheus.DefaultRegisterer)

	var tracker port.AttemptTracker
	switch cfg.RateLimit.Backend {
	case "redis":
		tracker = redisrepo.NewAttemptTracker(
			redisClient.Client(),
			cfg.Redis.AttemptPrefix,
			cfg.Auth.MaxLoginAttempts,
			cfg.Auth.LockoutTime,
		)
		log.Info("using redis attempt tracker")
	default:
		a.limiter = ratelimit.New(
			cfg.Auth.MaxLoginAttempts,
			cfg.Auth.LockoutTime,
			log,
			ratelimit.WithSweepInterval(cfg.RateLimit.SweepInterval),
		)
		tracker = a.limiter
		log.Info("using in-process attempt tracker")
	}

	repos := pgrepo.NewRepositories(pool)
	resetStore := redisrepo.NewResetTokenStore(redisClient.Client(), cfg.Redis.ResetTokenPrefix)
	delivery := notify.NewLogDelivery(log)

	a.Audit = usecase.NewAuditService(repos.Audit, publisher, metrics, log)
	a.Sessions = usecase.NewSessionService(repos.Sessions, repos.Audit, log)
	a.Auth = usecase.NewAuthService(cfg, repos.Users, repos.Sessions, tracker, a.Audit, a.Sessions, hasher, signer, metrics, log)
	a.Registration = usecase.NewRegistrationService(cfg, repos.Users, a.Audit, hasher, validator, log)
	a.Accounts = usecase.NewAccountService(repos.Users, repos.Sessions, tracker, a.Audit, publisher, metrics, log)
	a.Passwords = usecase.NewPasswordService(cfg, repos.Users, repos.Sessions, resetStore, delivery, a.Audit, publisher, hasher, validator, metrics, log)

	if err := a.Registration.EnsureBootstrapAdmin(ctx); err != nil {
		a.closePartial()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	return a, nil
}

// Run starts the metrics endpoint and blocks until the context is cancelled,
// then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.metricsServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Telemetry.MetricsPort),
		Handler:           metricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("metrics endpoint listening", zap.Int("port", a.cfg.Telemetry.MetricsPort))
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.Close()
		return err
	}

	a.Close()
	return nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Close tears down every owned resource in reverse construction order.
func (a *App) Close() {
	if a.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("metrics server shutdown", zap.Error(err))
		}
		cancel()
		a.metricsServer = nil
	}
	a.closePartial()
}

func (a *App) closePartial() {
	if a.limiter != nil {
		a.limiter.Close()
		a.limiter = nil
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("kafka producer close", zap.Error(err))
		}
		a.producer = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close", zap.Error(err))
		}
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}
