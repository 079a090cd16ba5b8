package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/raakeshmj/gobill/internal/auth"
)

type ContextKey string

const (
	RequestInfoContextKey ContextKey = "request_info"
	ClaimsContextKey      ContextKey = "claims"

	RequestIDHeader = "X-Request-ID"
)

// RequestInfo is shared by every layer handling one request. Outer
// middleware reads fields that inner middleware fills in.
type RequestInfo struct {
	ID       string
	ClientID string
}

// RequestID assigns each request an ID, reusing a sane inbound
// X-Request-ID, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = "req_" + uuid.NewString()
		}
		info := &RequestInfo{ID: id}
		w.Header().Set(RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), RequestInfoContextKey, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestInfo(ctx context.Context) *RequestInfo {
	if info, ok := ctx.Value(RequestInfoContextKey).(*RequestInfo); ok {
		return info
	}
	return &RequestInfo{}
}

// GetClaims returns the verified access token claims, or nil.
func GetClaims(ctx context.Context) *auth.AccessClaims {
	if c, ok := ctx.Value(ClaimsContextKey).(*auth.AccessClaims); ok {
		return c
	}
	return nil
}
