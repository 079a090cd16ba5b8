package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/raakeshmj/gobill/internal/audit"
	"github.com/raakeshmj/gobill/internal/limiter"
	"github.com/raakeshmj/gobill/internal/metrics"
	"github.com/raakeshmj/gobill/internal/middleware"
	"github.com/raakeshmj/gobill/internal/reliability"
	"github.com/raakeshmj/gobill/internal/service"
	"github.com/raakeshmj/gobill/internal/webhook"
)

// ReadyCheck reports whether a backing dependency is usable.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Limits holds the fixed-window settings of both rate limits.
type Limits struct {
	Auth      int
	API       int
	Window    time.Duration
	OnFailure reliability.FailureStrategy
	// TrustedProxies may report the client address in forwarding headers.
	TrustedProxies middleware.TrustedProxies
}

// Deps are the collaborators a Server routes requests to.
type Deps struct {
	Tokens        *service.TokenService
	Subscriptions *service.SubscriptionService
	Limiter       limiter.Limiter
	Limits        Limits
	Verifier      *webhook.Verifier
	Dispatcher    *webhook.Dispatcher
	Metrics       *metrics.MetricsCollector
	Audit         audit.Logger
	ReadyChecks   []ReadyCheck
	HSTS          bool
	Now           func() time.Time
}

type Server struct {
	deps    Deps
	router  *mux.Router
	handler http.Handler
}

func New(deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector(1000)
	}
	s := &Server{deps: deps, router: mux.NewRouter()}
	s.routes()

	// Order: RequestID -> Recover -> Metrics -> Audit -> Security -> Router
	s.handler = middleware.Chain(s.router,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.MetricsMiddleware(deps.Metrics),
		middleware.AuditMiddleware(deps.Audit),
		middleware.SecureHeaders(middleware.SecurityConfig{HSTS: deps.HSTS}),
	)
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(mux.MiddlewareFunc(middleware.RateLimit(s.deps.Limiter, middleware.RateLimitConfig{
		Limit:          s.deps.Limits.API,
		Window:         s.deps.Limits.Window,
		OnFailure:      s.deps.Limits.OnFailure,
		TrustedProxies: s.deps.Limits.TrustedProxies,
	})))

	api.HandleFunc("/auth", s.handleIssueToken).Methods(http.MethodPost)
	api.HandleFunc("/auth", s.handleRefreshToken).Methods(http.MethodPut)
	api.HandleFunc("/webhooks", s.handleWebhook).Methods(http.MethodPost)
	api.HandleFunc("/webhooks", s.handleWebhookHealth).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.NewAuth(s.deps.Tokens).Handle)
	protected.HandleFunc("/v1/subscriptions", s.handleListSubscriptions).Methods(http.MethodGet)
	protected.HandleFunc("/v1/subscriptions", s.handleCreateSubscription).Methods(http.MethodPost)
	protected.HandleFunc("/v1/subscriptions", s.handleUpdateSubscription).Methods(http.MethodPatch)
	protected.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusNotFound, middleware.ErrorBody{Error: "not_found", Message: "Route not found"})
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusMethodNotAllowed, middleware.ErrorBody{Error: "method_not_allowed", Message: "Method not allowed"})
	})
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests
// for up to shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server starting")
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		log.Info().Msg("shutdown requested, draining connections")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}
	return nil
}
