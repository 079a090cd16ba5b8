package server

import (
	"errors"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/raakeshmj/gobill/internal/limiter"
	"github.com/raakeshmj/gobill/internal/middleware"
	"github.com/raakeshmj/gobill/internal/service"
	"github.com/raakeshmj/gobill/internal/webhook"
)

// oauthError is the RFC 6749 error body used by /api/auth.
type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type validationBody struct {
	Error         string   `json:"error"`
	Message       string   `json:"message"`
	MissingFields []string `json:"missing_fields,omitempty"`
	ValidPlans    []string `json:"valid_plans,omitempty"`
}

type conflictBody struct {
	Error                  string `json:"error"`
	Message                string `json:"message"`
	ExistingSubscriptionID string `json:"existing_subscription_id,omitempty"`
}

// detail returns the context wrapped around sentinel, or fallback when
// there is none. The first word is capitalized unless it is an identifier
// such as client_id.
func detail(err, sentinel error, fallback string) string {
	rest, ok := strings.CutPrefix(err.Error(), sentinel.Error()+": ")
	if !ok || rest == "" {
		return fallback
	}
	if first, _, _ := strings.Cut(rest, " "); strings.Contains(first, "_") {
		return rest
	}
	r, n := utf8.DecodeRuneInString(rest)
	return string(unicode.ToUpper(r)) + rest[n:]
}

// writeOAuthError maps token endpoint failures. fallback describes a 500.
func writeOAuthError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var scopeErr *service.ScopeError
	switch {
	case errors.Is(err, limiter.ErrRateLimitExceeded):
		middleware.WriteJSON(w, http.StatusTooManyRequests, oauthError{"rate_limit_exceeded", "Too many authentication requests"})
	case errors.Is(err, service.ErrUnsupportedGrantType):
		middleware.WriteJSON(w, http.StatusBadRequest, oauthError{"unsupported_grant_type", detail(err, service.ErrUnsupportedGrantType, "Unsupported grant type")})
	case errors.Is(err, service.ErrInvalidRequest):
		middleware.WriteJSON(w, http.StatusBadRequest, oauthError{"invalid_request", detail(err, service.ErrInvalidRequest, "Malformed request")})
	case errors.As(err, &scopeErr):
		middleware.WriteJSON(w, http.StatusBadRequest, oauthError{"invalid_scope", "Invalid scopes: " + strings.Join(scopeErr.Invalid, ", ")})
	case errors.Is(err, service.ErrInvalidClient):
		middleware.WriteJSON(w, http.StatusUnauthorized, oauthError{"invalid_client", detail(err, service.ErrInvalidClient, "Invalid client credentials")})
	case errors.Is(err, service.ErrInvalidGrant):
		middleware.WriteJSON(w, http.StatusUnauthorized, oauthError{"invalid_grant", detail(err, service.ErrInvalidGrant, "Invalid grant")})
	default:
		log.Error().Err(err).Str("request_id", middleware.GetRequestInfo(r.Context()).ID).Msg("token endpoint failed")
		middleware.WriteJSON(w, http.StatusInternalServerError, oauthError{"server_error", fallback})
	}
}

// writeResourceError maps subscription endpoint failures. fallback
// describes a 500.
func writeResourceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var (
		valErr      *service.ValidationError
		conflictErr *service.ConflictError
	)
	switch {
	case errors.Is(err, service.ErrInsufficientScope):
		middleware.WriteJSON(w, http.StatusForbidden, middleware.ErrorBody{
			Error:   "insufficient_scope",
			Message: detail(err, service.ErrInsufficientScope, "Token does not have the required scope"),
		})
	case errors.As(err, &valErr):
		middleware.WriteJSON(w, http.StatusBadRequest, validationBody{
			Error:         "validation_error",
			Message:       valErr.Message,
			MissingFields: valErr.MissingFields,
			ValidPlans:    valErr.ValidPlans,
		})
	case errors.As(err, &conflictErr):
		middleware.WriteJSON(w, http.StatusConflict, conflictBody{
			Error:                  "conflict",
			Message:                conflictErr.Message,
			ExistingSubscriptionID: conflictErr.ExistingID,
		})
	case errors.Is(err, service.ErrNotFound):
		middleware.WriteJSON(w, http.StatusNotFound, middleware.ErrorBody{Error: "not_found", Message: "Subscription not found"})
	default:
		log.Error().Err(err).Str("request_id", middleware.GetRequestInfo(r.Context()).ID).Msg("subscription endpoint failed")
		middleware.WriteJSON(w, http.StatusInternalServerError, middleware.ErrorBody{Error: "internal_error", Message: fallback})
	}
}

type webhookError struct {
	Error string `json:"error"`
}

func writeWebhookError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, webhook.ErrInvalidSignature):
		middleware.WriteJSON(w, http.StatusUnauthorized, webhookError{"Invalid signature"})
	case errors.Is(err, webhook.ErrMissingSignature):
		middleware.WriteJSON(w, http.StatusBadRequest, webhookError{"Missing signature or timestamp"})
	case errors.Is(err, webhook.ErrInvalidTimestamp):
		middleware.WriteJSON(w, http.StatusBadRequest, webhookError{"Invalid timestamp"})
	case errors.Is(err, webhook.ErrStaleRequest):
		middleware.WriteJSON(w, http.StatusBadRequest, webhookError{"Request too old"})
	case errors.Is(err, webhook.ErrInvalidPayload):
		middleware.WriteJSON(w, http.StatusBadRequest, webhookError{"Invalid event payload"})
	default:
		log.Error().Err(err).Str("request_id", middleware.GetRequestInfo(r.Context()).ID).Msg("webhook processing failed")
		middleware.WriteJSON(w, http.StatusInternalServerError, webhookError{"Webhook processing failed"})
	}
}
