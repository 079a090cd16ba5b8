package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/raakeshmj/gobill/internal/limiter"
	"github.com/raakeshmj/gobill/internal/middleware"
	"github.com/raakeshmj/gobill/internal/reliability"
	"github.com/raakeshmj/gobill/internal/service"
)

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// handleIssueToken implements the client_credentials grant. Attempts are
// limited per client_id before credentials are checked.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req service.IssueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeOAuthError(w, r, fmt.Errorf("%w: request body must be a JSON object", service.ErrInvalidRequest), "")
		return
	}

	res, err := limiter.Check(r.Context(), s.deps.Limiter, "auth:"+req.ClientID, s.deps.Limits.Auth, s.deps.Limits.Window)
	switch {
	case err == nil:
		middleware.SetRateLimitHeaders(w, res)
	case errors.Is(err, limiter.ErrRateLimitExceeded):
		middleware.SetRateLimitHeaders(w, res)
		writeOAuthError(w, r, err, "")
		return
	case !reliability.ShouldAllow(s.deps.Limits.OnFailure, err):
		writeOAuthError(w, r, err, "Authentication service temporarily unavailable")
		return
	default:
		log.Warn().Err(err).Msg("auth rate limiter unavailable, failing open")
	}

	pair, err := s.deps.Tokens.Issue(r.Context(), req)
	if err != nil {
		writeOAuthError(w, r, err, "Authentication service temporarily unavailable")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	middleware.WriteJSON(w, http.StatusOK, pair)
}

// handleRefreshToken implements the refresh_token grant.
func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req service.RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeOAuthError(w, r, fmt.Errorf("%w: request body must be a JSON object", service.ErrInvalidRequest), "")
		return
	}

	pair, err := s.deps.Tokens.Refresh(r.Context(), req)
	if err != nil {
		writeOAuthError(w, r, err, "Token refresh service temporarily unavailable")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	middleware.WriteJSON(w, http.StatusOK, pair)
}
