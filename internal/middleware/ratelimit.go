package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/raakeshmj/gobill/internal/limiter"
	"github.com/raakeshmj/gobill/internal/reliability"
)

// RateLimitConfig configures the per-address API limit.
type RateLimitConfig struct {
	Limit     int
	Window    time.Duration
	OnFailure reliability.FailureStrategy
	// Proxies whose forwarding headers identify the client. Empty means the
	// peer address is always used.
	TrustedProxies TrustedProxies
}

type rateLimitBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// RateLimit applies a fixed-window limit keyed by client address to every
// request it wraps.
func RateLimit(l limiter.Limiter, cfg RateLimitConfig) Middleware {
	retryAfter := int(cfg.Window.Seconds())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ratelimit:ip:" + cfg.TrustedProxies.ClientIP(r)

			res, err := l.Allow(r.Context(), key, cfg.Limit, cfg.Window)
			if err != nil {
				if reliability.ShouldAllow(cfg.OnFailure, err) {
					log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable, failing open")
					next.ServeHTTP(w, r)
					return
				}
				log.Error().Err(err).Str("key", key).Msg("rate limiter unavailable, failing closed")
				WriteJSON(w, http.StatusServiceUnavailable, ErrorBody{
					Error:   "service_unavailable",
					Message: "Rate limiting backend unavailable",
				})
				return
			}

			SetRateLimitHeaders(w, res)
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				WriteJSON(w, http.StatusTooManyRequests, rateLimitBody{
					Error:      "rate_limit_exceeded",
					Message:    "Too many requests. Please try again later.",
					RetryAfter: retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func SetRateLimitHeaders(w http.ResponseWriter, res limiter.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining()))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}
