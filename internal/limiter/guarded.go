package limiter

import (
	"context"
	"time"

	"github.com/raakeshmj/gobill/internal/circuitbreaker"
)

// GuardedLimiter stops calling a failing backend while its breaker is open.
// Errors, including circuitbreaker.ErrCircuitOpen, are returned to the caller,
// whose failure strategy decides whether the request proceeds.
type GuardedLimiter struct {
	inner   Limiter
	breaker *circuitbreaker.CircuitBreaker
}

func NewGuardedLimiter(inner Limiter, breaker *circuitbreaker.CircuitBreaker) *GuardedLimiter {
	return &GuardedLimiter{inner: inner, breaker: breaker}
}

func (g *GuardedLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	var res Result
	err := g.breaker.Execute(func() error {
		var err error
		res, err = g.inner.Allow(ctx, key, limit, window)
		return err
	})
	return res, err
}

var _ Limiter = (*GuardedLimiter)(nil)
