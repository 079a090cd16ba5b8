package limiter

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// Result describes the state of a key's window after a check.
type Result struct {
	Allowed bool
	Count   int
	Limit   int
	ResetAt time.Time
}

// Remaining returns how many more requests the current window accepts.
func (r Result) Remaining() int {
	if n := r.Limit - r.Count; n > 0 {
		return n
	}
	return 0
}

// Limiter is a fixed-window request counter.
//
// The first request for a key, or the first one after the stored reset time
// has passed, opens a new window with count 1. Within a window the count is
// incremented while it is below the limit; once it reaches the limit further
// requests are rejected without being counted.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Check is a convenience wrapper returning ErrRateLimitExceeded for rejected
// requests.
func Check(ctx context.Context, l Limiter, key string, limit int, window time.Duration) (Result, error) {
	res, err := l.Allow(ctx, key, limit, window)
	if err != nil {
		return res, err
	}
	if !res.Allowed {
		return res, ErrRateLimitExceeded
	}
	return res, nil
}
