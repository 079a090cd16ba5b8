package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/raakeshmj/gobill/internal/audit"
	"github.com/raakeshmj/gobill/internal/auth"
	"github.com/raakeshmj/gobill/internal/cache"
	"github.com/raakeshmj/gobill/internal/circuitbreaker"
	"github.com/raakeshmj/gobill/internal/config"
	"github.com/raakeshmj/gobill/internal/limiter"
	"github.com/raakeshmj/gobill/internal/metrics"
	"github.com/raakeshmj/gobill/internal/middleware"
	"github.com/raakeshmj/gobill/internal/repository"
	"github.com/raakeshmj/gobill/internal/repository/memory"
	"github.com/raakeshmj/gobill/internal/repository/postgres"
	"github.com/raakeshmj/gobill/internal/service"
	"github.com/raakeshmj/gobill/internal/webhook"
)

const (
	sweepInterval = time.Minute
	dbAttempts    = 5
	dbRetryDelay  = time.Second

	breakerFailures  = 3
	breakerSuccesses = 2
	breakerTimeout   = 10 * time.Second
)

// Build wires every backend selected by cfg. The returned cleanup closes
// external connections; background sweepers stop when ctx is done.
func Build(ctx context.Context, cfg *config.Config) (*Server, func(), error) {
	var (
		closers []func()
		checks  []ReadyCheck
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	clients, err := cfg.Clients()
	if err != nil {
		return nil, nil, err
	}
	if len(clients) == 0 {
		log.Warn().Msg("client registry is empty; token issuance will reject every client")
	}
	mem := memory.New()
	for _, c := range clients {
		mem.PutClient(c)
	}
	log.Info().Int("clients", len(clients)).Msg("client registry loaded")

	var subsRepo repository.SubscriptionRepository = mem
	if cfg.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, dbAttempts, dbRetryDelay)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			cleanup()
			return nil, nil, err
		}
		subsRepo = postgres.New(pool)
		checks = append(checks, ReadyCheck{Name: "postgres", Check: pool.Ping})
		log.Info().Msg("using postgres subscription store")
	}

	var lim limiter.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		closers = append(closers, func() { _ = rdb.Close() })
		breaker := circuitbreaker.New(breakerFailures, breakerSuccesses, breakerTimeout)
		lim = limiter.NewGuardedLimiter(limiter.NewRedisLimiter(rdb, "gobill:"), breaker)
		checks = append(checks, ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis rate limit store")
	} else {
		ml := limiter.NewMemoryLimiter()
		ml.StartSweeper(ctx, sweepInterval)
		lim = ml
	}

	if cfg.SeedDemoData {
		if err := service.Seed(ctx, subsRepo); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("seed demo data: %w", err)
		}
	}

	claimsCache := cache.NewMemoryCache[*auth.AccessClaims]()
	go purgeEvery(ctx, claimsCache, sweepInterval)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTRefreshSecret)
	subs := service.NewSubscriptionService(subsRepo)

	srv := New(Deps{
		Tokens:        service.NewTokenService(mem, jwtManager, claimsCache),
		Subscriptions: subs,
		Limiter:       lim,
		Limits: Limits{
			Auth:           cfg.AuthRateLimit,
			API:            cfg.APIRateLimit,
			Window:         cfg.RateLimitWindow,
			OnFailure:      cfg.RateLimitOnFail,
			TrustedProxies: proxies,
		},
		Verifier: webhook.NewVerifier(cfg.WebhookSecret),
		Dispatcher: webhook.NewDispatcher(subs, func(err error) bool {
			return errors.Is(err, service.ErrNotFound)
		}),
		Metrics:     metrics.NewCollector(1000),
		Audit:       audit.NewZerologLogger(log.Logger),
		ReadyChecks: checks,
	})
	return srv, cleanup, nil
}

func purgeEvery[V any](ctx context.Context, c *cache.MemoryCache[V], interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Purge()
		}
	}
}
