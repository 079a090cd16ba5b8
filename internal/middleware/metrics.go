package middleware

import (
	"net/http"
	"time"

	"github.com/raakeshmj/gobill/internal/metrics"
)

func MetricsMiddleware(collector *metrics.MetricsCollector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newInterceptor(w)

			next.ServeHTTP(rw, r)

			collector.Record(time.Since(start), rw.statusCode, GetRequestInfo(r.Context()).ClientID)
		})
	}
}
