package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raakeshmj/gobill/internal/audit"
	"github.com/raakeshmj/gobill/internal/auth"
	"github.com/raakeshmj/gobill/internal/limiter"
	"github.com/raakeshmj/gobill/internal/metrics"
	"github.com/raakeshmj/gobill/internal/reliability"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler, mw("outer"), mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestInfo(r.Context()).ID
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, strings.HasPrefix(seen, "req_"))
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-42", seen)
	assert.Equal(t, "upstream-42", rec.Header().Get(RequestIDHeader))
}

type fakeVerifier struct{}

func (fakeVerifier) Verify(ctx context.Context, token string) (*auth.AccessClaims, error) {
	if token != "good" {
		return nil, auth.ErrInvalidToken
	}
	return &auth.AccessClaims{ClientID: "netflix_integration", Scope: auth.ScopeBillingRead}, nil
}

func TestAuthMiddleware(t *testing.T) {
	var claims *auth.AccessClaims
	var info *RequestInfo
	h := RequestID(NewAuth(fakeVerifier{}).Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims = GetClaims(r.Context())
		info = GetRequestInfo(r.Context())
	})))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"basic scheme", "Basic Zm9vOmJhcg==", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"good token", "Bearer good", http.StatusOK},
		{"lowercase scheme", "bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims = nil
			req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				require.NotNil(t, claims)
				assert.Equal(t, "netflix_integration", info.ClientID)
				return
			}
			assert.Nil(t, claims)
			assert.JSONEq(t, `{"error":"unauthorized","message":"Valid access token required"}`, rec.Body.String())
		})
	}
}

func TestRateLimit(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := limiter.NewMemoryLimiter().WithClock(func() time.Time { return now })
	h := RateLimit(l, RateLimitConfig{Limit: 2, Window: time.Minute, OnFailure: reliability.FailOpen})(okHandler)

	call := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := call("10.0.0.1:1000")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1001").Code)

	blocked := call("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "60", blocked.Header().Get("Retry-After"))
	assert.Equal(t, "0", blocked.Header().Get("X-RateLimit-Remaining"))
	assert.JSONEq(t, `{"error":"rate_limit_exceeded","message":"Too many requests. Please try again later.","retry_after":60}`, blocked.Body.String())

	// Another address has its own window.
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000").Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (limiter.Result, error) {
	return limiter.Result{}, errors.New("redis down")
}

func TestRateLimit_BackendFailure(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/webhooks", nil)

	open := RateLimit(brokenLimiter{}, RateLimitConfig{Limit: 1, Window: time.Minute, OnFailure: reliability.FailOpen})(okHandler)
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	closed := RateLimit(brokenLimiter{}, RateLimitConfig{Limit: 1, Window: time.Minute, OnFailure: reliability.FailClosed})(okHandler)
	rec = httptest.NewRecorder()
	closed.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:4242"
	assert.Equal(t, "192.0.2.7", ClientIP(req))

	// Headers from an untrusted peer are ignored.
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("X-Real-IP", "203.0.113.10")
	assert.Equal(t, "192.0.2.7", ClientIP(req))
	assert.Equal(t, "192.0.2.7", TrustedProxies(nil).ClientIP(req))

	req.RemoteAddr = "garbage"
	assert.Equal(t, "unknown", ClientIP(req))
}

func TestTrustedProxies_ClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.7 ", ""})
	require.NoError(t, err)
	require.Len(t, trusted, 2)

	tests := []struct {
		name   string
		peer   string
		fwd    string
		realIP string
		want   string
	}{
		{"trusted peer, single hop", "192.0.2.7:1", "203.0.113.9", "", "203.0.113.9"},
		{"skips trusted hops from the right", "10.1.1.1:1", "198.51.100.4, 203.0.113.9, 10.2.2.2", "", "203.0.113.9"},
		{"invalid hop stops the walk", "10.1.1.1:1", "203.0.113.9, not-an-ip", "", "10.1.1.1"},
		{"falls back to X-Real-IP", "10.1.1.1:1", "", "203.0.113.20", "203.0.113.20"},
		{"normalises ipv6", "[::ffff:10.0.0.5]:1", "2001:DB8::1", "", "2001:db8::1"},
		{"untrusted peer", "198.51.100.1:1", "203.0.113.9", "203.0.113.20", "198.51.100.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.peer
			if tt.fwd != "" {
				req.Header.Set("X-Forwarded-For", tt.fwd)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, trusted.ClientIP(req))
		})
	}
}

func TestParseTrustedProxies_Invalid(t *testing.T) {
	_, err := ParseTrustedProxies([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	assert.Error(t, err)
}

func TestRateLimit_IgnoresSpoofedForwardedFor(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := limiter.NewMemoryLimiter().WithClock(func() time.Time { return now })
	h := RateLimit(l, RateLimitConfig{Limit: 3, Window: time.Minute, OnFailure: reliability.FailOpen})(okHandler)

	allowed := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/webhooks", nil)
		req.RemoteAddr = "198.51.100.1:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)
}

func TestSecureHeaders(t *testing.T) {
	h := SecureHeaders(SecurityConfig{})(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth", nil))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	called := false
	preflight := SecureHeaders(SecurityConfig{HSTS: true})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rec = httptest.NewRecorder()
	preflight.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/subscriptions", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestRecoverer(t *testing.T) {
	h := RequestID(Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}

type captureAudit struct{ entries []audit.LogEntry }

func (c *captureAudit) Log(e audit.LogEntry) { c.entries = append(c.entries, e) }

func TestAuditAndMetrics_SeeAuthenticatedClient(t *testing.T) {
	logger := &captureAudit{}
	collector := metrics.NewCollector(10)
	h := Chain(
		NewAuth(fakeVerifier{}).Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})),
		RequestID, MetricsMiddleware(collector), AuditMiddleware(logger),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", nil)
	req.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(httptest.NewRecorder(), req)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", nil))

	require.Len(t, logger.entries, 2)
	assert.Equal(t, "netflix_integration", logger.entries[0].ClientID)
	assert.Equal(t, http.StatusCreated, logger.entries[0].Status)
	assert.Equal(t, "POST /api/v1/subscriptions", logger.entries[0].Action)
	assert.NotEmpty(t, logger.entries[0].RequestID)
	assert.Equal(t, "anonymous", logger.entries[1].ClientID)
	assert.Equal(t, http.StatusUnauthorized, logger.entries[1].Status)

	stats := collector.GetStats()
	assert.Equal(t, uint64(2), stats.TotalRequests)
	assert.Equal(t, map[string]uint64{"netflix_integration": 1}, stats.ClientUsage)
}
