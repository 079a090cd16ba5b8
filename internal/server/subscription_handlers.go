package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/raakeshmj/gobill/internal/auth"
	"github.com/raakeshmj/gobill/internal/db"
	"github.com/raakeshmj/gobill/internal/middleware"
	"github.com/raakeshmj/gobill/internal/service"
)

type listMeta struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
	ClientID  string `json:"client_id"`
}

type listResponse struct {
	Data       []*db.Subscription `json:"data"`
	Summary    service.Summary    `json:"summary"`
	Pagination service.Pagination `json:"pagination"`
	Meta       listMeta           `json:"meta"`
}

type subscriptionResponse struct {
	Data    *db.Subscription `json:"data"`
	Message string           `json:"message"`
}

// intParam parses a query parameter, falling back on absence or garbage.
func intParam(r *http.Request, name string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return fallback
	}
	return v
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	q := r.URL.Query()

	res, err := s.deps.Subscriptions.List(r.Context(), claims, service.ListQuery{
		CustomerID: q.Get("customer_id"),
		Status:     q.Get("status"),
		Plan:       q.Get("plan"),
		SortBy:     q.Get("sort_by"),
		SortOrder:  q.Get("sort_order"),
		Limit:      intParam(r, "limit", service.DefaultPageSize),
		Offset:     intParam(r, "offset", 0),
	})
	if errors.Is(err, service.ErrInsufficientScope) {
		// A token that cannot read subscriptions is treated like no token.
		middleware.WriteJSON(w, http.StatusUnauthorized, middleware.ErrorBody{
			Error:   "unauthorized",
			Message: "Valid access token required",
		})
		return
	}
	if err != nil {
		writeResourceError(w, r, err, "Failed to fetch subscriptions")
		return
	}

	items := res.Items
	if items == nil {
		items = []*db.Subscription{}
	}
	middleware.WriteJSON(w, http.StatusOK, listResponse{
		Data:       items,
		Summary:    res.Summary,
		Pagination: res.Pagination,
		Meta: listMeta{
			RequestID: middleware.GetRequestInfo(r.Context()).ID,
			Timestamp: s.deps.Now().UTC().Format(time.RFC3339Nano),
			ClientID:  claims.ClientID,
		},
	})
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if err := service.RequireScope(claims, auth.ScopeSubscriptionsManage); err != nil {
		writeResourceError(w, r, err, "")
		return
	}

	var req service.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeResourceError(w, r, &service.ValidationError{Message: "Request body must be a valid JSON object"}, "")
		return
	}

	sub, err := s.deps.Subscriptions.Create(r.Context(), claims, req)
	if err != nil {
		writeResourceError(w, r, err, "Failed to create subscription")
		return
	}
	w.Header().Set("Location", "/api/v1/subscriptions?id="+sub.ID)
	middleware.WriteJSON(w, http.StatusCreated, subscriptionResponse{Data: sub, Message: "Subscription created successfully"})
}

func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if err := service.RequireScope(claims, auth.ScopeSubscriptionsManage); err != nil {
		writeResourceError(w, r, err, "")
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeResourceError(w, r, &service.ValidationError{Message: "Subscription ID is required"}, "")
		return
	}

	var req service.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeResourceError(w, r, &service.ValidationError{Message: "Request body must be a valid JSON object"}, "")
		return
	}

	sub, err := s.deps.Subscriptions.Update(r.Context(), claims, id, req)
	if err != nil {
		writeResourceError(w, r, err, "Failed to update subscription")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, subscriptionResponse{Data: sub, Message: "Subscription updated successfully"})
}
