package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/raakeshmj/gobill/internal/auth"
	"github.com/raakeshmj/gobill/internal/middleware"
	"github.com/raakeshmj/gobill/internal/service"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady pings every configured backend.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.deps.ReadyChecks))
	ready := true
	for _, c := range s.deps.ReadyChecks {
		if err := c.Check(ctx); err != nil {
			log.Warn().Err(err).Str("dependency", c.Name).Msg("readiness check failed")
			checks[c.Name] = "unavailable"
			ready = false
			continue
		}
		checks[c.Name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	middleware.WriteJSON(w, code, map[string]any{"status": status, "checks": checks})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if err := service.RequireScope(middleware.GetClaims(r.Context()), auth.ScopeAnalyticsRead); err != nil {
		writeResourceError(w, r, err, "")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, s.deps.Metrics.GetStats())
}
