package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/raakeshmj/gobill/internal/auth"
)

// TokenVerifier validates a bearer access token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.AccessClaims, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuth(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Handle rejects requests without a valid bearer token and stores the
// token's claims on the request context.
func (m *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			unauthorized(w)
			return
		}

		claims, err := m.verifier.Verify(r.Context(), tokenStr)
		if err != nil {
			log.Debug().Err(err).Str("request_id", GetRequestInfo(r.Context()).ID).Msg("rejected access token")
			unauthorized(w)
			return
		}

		GetRequestInfo(r.Context()).ClientID = claims.ClientID
		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="gobill"`)
	WriteJSON(w, http.StatusUnauthorized, ErrorBody{
		Error:   "unauthorized",
		Message: "Valid access token required",
	})
}
