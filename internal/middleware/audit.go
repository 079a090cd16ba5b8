package middleware

import (
	"net/http"
	"time"

	"github.com/raakeshmj/gobill/internal/audit"
)

func AuditMiddleware(logger audit.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newInterceptor(w)

			next.ServeHTTP(rw, r)

			info := GetRequestInfo(r.Context())
			actorID := info.ClientID
			if actorID == "" {
				actorID = "anonymous"
			}

			logger.Log(audit.LogEntry{
				Timestamp: start,
				RequestID: info.ID,
				ClientID:  actorID,
				Action:    r.Method + " " + r.URL.Path,
				Resource:  r.URL.Path,
				Status:    rw.statusCode,
				Duration:  time.Since(start),
				Metadata: map[string]any{
					"remote_addr": ClientIP(r),
					"user_agent":  r.UserAgent(),
					"query":       r.URL.RawQuery,
				},
			})
		})
	}
}
