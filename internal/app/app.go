// Package app wires configuration, storage and services into an API server.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/clicloop/internal/api"
	"github.com/clicloop/internal/auth"
	"github.com/clicloop/internal/circuitbreaker"
	"github.com/clicloop/internal/config"
	"github.com/clicloop/internal/llm"
	"github.com/clicloop/internal/logging"
	"github.com/clicloop/internal/ratelimit"
	"github.com/clicloop/internal/service"
	"github.com/clicloop/internal/storage"
)

const termsFetchTimeout = 10 * time.Second

// App is a fully wired server plus the connections it owns
type App struct {
	Server *api.Server
	Config *config.Config
	Logger *logging.Logger

	postgres   *storage.PostgresDB
	redis      *storage.RedisStore
	clickhouse *storage.ClickHouseDB
}

// New connects to the databases and builds the server.
// Postgres is required. Redis and ClickHouse degrade: without Redis the AI quota is
// enforced per process, without ClickHouse usage events are only logged.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		return nil, err
	}
	a.postgres = postgres

	limiter := a.newLimiter()
	usage := a.newUsageSink()

	logger.Info("Database connections established")

	identityRepo := storage.NewIdentityRepository(postgres)
	profileRepo := storage.NewProfileRepository(postgres)
	subscriptionRepo := storage.NewSubscriptionRepository(postgres)
	historyRepo := storage.NewHistoryRepository(postgres)
	termsRepo := storage.NewTermsRepository(postgres)
	auditRepo := storage.NewAuditRepository(postgres)

	logger.Info("Initializing services...")

	model := llm.NewClient(llm.Config{
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Timeout:     cfg.AI.Timeout,
	})
	if !model.Configured() {
		logger.Warn("OPENAI_API_KEY is not set; the AI proxy will answer 500")
	}
	if cfg.AI.BreakerMaxFailures > 0 {
		model.WithCircuitBreaker(circuitbreaker.New(circuitbreaker.Config{
			Name:        "openai",
			MaxFailures: cfg.AI.BreakerMaxFailures,
			Timeout:     cfg.AI.BreakerTimeout,
		}, logger))
	}

	var fetcher service.TermsFetcher
	if cfg.Terms.TermsURL != "" {
		fetcher = service.NewHTTPTermsFetcher(cfg.Terms.TermsURL, termsFetchTimeout)
	}
	if cfg.Terms.ServerSecret == "" || cfg.Terms.APIKey == "" {
		logger.Warn("terms acceptance is not fully configured (ACCEPT_API_KEY, TERMS_SERVER_SECRET)")
	}

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("AUTH_JWT_SECRET is not set; authenticated routes will answer 500")
	}

	accounts := service.NewAccountService(profileRepo, historyRepo, subscriptionRepo, identityRepo, auditRepo, logger)
	if ledger, ok := usage.(*storage.UsageRepository); ok {
		accounts.WithUsage(ledger)
	}

	deps := api.Dependencies{
		Verifier:   auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience),
		Limiter:    limiter,
		Generation: service.NewGenerationService(model, usage, logger),
		Terms:      service.NewTermsService(termsRepo, auditRepo, fetcher, cfg.Terms.ServerSecret, logger),
		Payments:   service.NewPaymentService(identityRepo, subscriptionRepo, logger),
		Accounts:   accounts,
		Logger:     logger,
		Health:     a,
	}
	if sw, ok := limiter.(*ratelimit.SlidingWindowLimiter); ok {
		deps.LimiterMetrics = sw.Metrics().Snapshot
	}

	logger.Info("Services initialized")

	a.Server = api.NewServer(&api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		TermsAPIKey:       cfg.Terms.APIKey,
		TermsMaxBodyBytes: cfg.Terms.MaxBodyBytes,
		Environments:      cfg.Environments,
	}, deps)

	return a, nil
}

// newLimiter builds the Redis sliding-window limiter with a process-local fallback
func (a *App) newLimiter() ratelimit.Limiter {
	cfg := a.Config
	local := ratelimit.NewLocalLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)

	redis, err := storage.NewRedisStore(&cfg.Database.Redis)
	if err != nil {
		a.Logger.WithError(err).Warn("Redis unavailable; AI quota is enforced per process")
		return local
	}
	a.redis = redis

	limiter, err := ratelimit.NewSlidingWindowLimiter(&ratelimit.SlidingWindowConfig{
		Redis:     redis.Client(),
		Limit:     cfg.RateLimit.Requests,
		Window:    cfg.RateLimit.Window,
		KeyPrefix: "ratelimit:ai:",
		Fallback:  local,
		Metrics:   ratelimit.NewMetrics(),
		Logger:    a.Logger,
	})
	if err != nil {
		a.Logger.WithError(err).Warn("invalid rate limit configuration; AI quota is enforced per process")
		return local
	}
	return limiter
}

// newUsageSink picks the ClickHouse ledger when enabled and reachable
func (a *App) newUsageSink() service.UsageRecorder {
	cfg := a.Config
	if !cfg.Database.ClickHouse.Enabled {
		return service.NewLogUsageSink(a.Logger)
	}

	ch, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		a.Logger.WithError(err).Warn("ClickHouse unavailable; generation usage is only logged")
		return service.NewLogUsageSink(a.Logger)
	}
	a.clickhouse = ch
	return storage.NewUsageRepository(ch)
}

// Close releases every connection opened by New
func (a *App) Close() error {
	var errs []error
	if a.clickhouse != nil {
		errs = append(errs, a.clickhouse.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	return errors.Join(errs...)
}

// Ping checks the required database
func (a *App) Ping(ctx context.Context) error {
	return a.postgres.Ping(ctx)
}
