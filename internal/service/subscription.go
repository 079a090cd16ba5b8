package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/raakeshmj/gobill/internal/auth"
	"github.com/raakeshmj/gobill/internal/db"
	"github.com/raakeshmj/gobill/internal/repository"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100

	defaultCurrency    = "USD"
	defaultBillingDays = 30
	MaxTrialDays       = 365
	day                = 24 * time.Hour
)

type ListQuery struct {
	CustomerID string
	Status     string
	Plan       string
	SortBy     string
	SortOrder  string
	Limit      int
	Offset     int
}

type PlanDistribution struct {
	Basic      int `json:"basic"`
	Premium    int `json:"premium"`
	Enterprise int `json:"enterprise"`
}

type Summary struct {
	TotalSubscriptions  int              `json:"total_subscriptions"`
	ActiveSubscriptions int              `json:"active_subscriptions"`
	TotalMRR            float64          `json:"total_mrr"`
	AverageAmount       float64          `json:"average_amount"`
	PlanDistribution    PlanDistribution `json:"plan_distribution"`
}

type Pagination struct {
	Total      int  `json:"total"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
	NextOffset *int `json:"next_offset"`
}

type ListResult struct {
	Items      []*db.Subscription
	Summary    Summary
	Pagination Pagination
}

type CreateRequest struct {
	CustomerID    string           `json:"customer_id"`
	CustomerEmail string           `json:"customer_email"`
	CustomerName  string           `json:"customer_name"`
	Plan          string           `json:"plan"`
	PaymentMethod db.PaymentMethod `json:"payment_method"`
	BillingCycle  string           `json:"billing_cycle"`
	TrialDays     int              `json:"trial_days"`
	Metadata      map[string]any   `json:"metadata"`
}

// UpdateRequest is a partial update. Empty fields are left unchanged.
type UpdateRequest struct {
	Plan          string           `json:"plan"`
	BillingCycle  string           `json:"billing_cycle"`
	Status        string           `json:"status"`
	PaymentMethod db.PaymentMethod `json:"payment_method"`
	Metadata      map[string]any   `json:"metadata"`
}

type SubscriptionService struct {
	repo repository.SubscriptionRepository
	now  func() time.Time
}

func NewSubscriptionService(repo repository.SubscriptionRepository) *SubscriptionService {
	return &SubscriptionService{repo: repo, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (s *SubscriptionService) WithClock(now func() time.Time) *SubscriptionService {
	s.now = now
	return s
}

// List filters, sorts and paginates subscriptions. Read access is granted by
// either subscriptions:manage or billing:read.
func (s *SubscriptionService) List(ctx context.Context, caller *auth.AccessClaims, q ListQuery) (*ListResult, error) {
	if err := RequireScope(caller, auth.ScopeSubscriptionsManage, auth.ScopeBillingRead); err != nil {
		return nil, err
	}

	subs, err := s.repo.List(ctx, repository.SubscriptionFilter{
		CustomerID: q.CustomerID,
		Status:     q.Status,
		Plan:       q.Plan,
	})
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	sortSubscriptions(subs, q.SortBy, q.SortOrder)

	limit := q.Limit
	if limit < 1 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)
	offset := max(q.Offset, 0)

	total := len(subs)
	start := min(offset, total)
	end := min(offset+limit, total)

	page := Pagination{Total: total, Limit: limit, Offset: offset}
	if offset+limit < total {
		next := offset + limit
		page.HasMore = true
		page.NextOffset = &next
	}

	return &ListResult{
		Items:      subs[start:end],
		Summary:    summarize(subs),
		Pagination: page,
	}, nil
}

// Create validates the payload and stores a new subscription for the caller's
// platform.
func (s *SubscriptionService) Create(ctx context.Context, caller *auth.AccessClaims, req CreateRequest) (*db.Subscription, error) {
	if err := RequireScope(caller, auth.ScopeSubscriptionsManage); err != nil {
		return nil, err
	}

	var missing []string
	if req.CustomerID == "" {
		missing = append(missing, "customer_id")
	}
	if req.CustomerEmail == "" {
		missing = append(missing, "customer_email")
	}
	if req.Plan == "" {
		missing = append(missing, "plan")
	}
	if len(req.PaymentMethod) == 0 {
		missing = append(missing, "payment_method")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{
			Message:       "Missing required fields: " + strings.Join(missing, ", "),
			MissingFields: missing,
		}
	}

	plan, ok := lookupPlan(req.Plan)
	if !ok {
		return nil, &ValidationError{
			Message:    "Invalid plan. Must be one of: " + strings.Join(ValidPlans, ", "),
			ValidPlans: ValidPlans,
		}
	}

	cycle := db.BillingCycle(req.BillingCycle)
	if cycle == "" {
		cycle = db.BillingMonthly
	}
	if !cycle.Valid() {
		return nil, &ValidationError{Message: "Invalid billing_cycle. Must be 'monthly' or 'yearly'"}
	}
	if req.TrialDays < 0 {
		return nil, &ValidationError{Message: "trial_days must not be negative"}
	}
	if req.TrialDays > MaxTrialDays {
		return nil, &ValidationError{Message: fmt.Sprintf("trial_days must not exceed %d", MaxTrialDays)}
	}

	if existing, err := s.repo.FindActiveByCustomer(ctx, req.CustomerID); err == nil {
		return nil, &ConflictError{Message: "Customer already has an active subscription", ExistingID: existing.ID}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check active subscription: %w", err)
	}

	now := s.now().UTC()
	sub := &db.Subscription{
		ID:              "sub_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		CustomerID:      req.CustomerID,
		CustomerEmail:   req.CustomerEmail,
		CustomerName:    req.CustomerName,
		Plan:            db.Plan(req.Plan),
		Status:          db.StatusActive,
		Amount:          PlanAmount(db.Plan(req.Plan), cycle),
		Currency:        defaultCurrency,
		BillingCycle:    cycle,
		CreatedAt:       now,
		UpdatedAt:       now,
		NextBillingDate: now.Add(defaultBillingDays * day),
		Features:        append([]string(nil), plan.Features...),
		PaymentMethod:   merge(db.PaymentMethod{}, req.PaymentMethod),
		Metadata:        merge(map[string]any{"created_by": "api"}, req.Metadata),
	}
	sub.Metadata["platform"] = caller.ClientID

	if req.TrialDays > 0 {
		trialEnd := now.Add(time.Duration(req.TrialDays) * day)
		sub.Status = db.StatusTrialing
		sub.TrialEndDate = &trialEnd
		sub.NextBillingDate = trialEnd
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, s.conflictOr(ctx, sub.CustomerID, err)
	}

	log.Info().
		Str("subscription_id", sub.ID).
		Str("customer_id", sub.CustomerID).
		Str("plan", string(sub.Plan)).
		Float64("amount", sub.Amount).
		Str("client_id", caller.ClientID).
		Msg("created subscription")

	return sub, nil
}

// Update applies a partial update. Every field is validated before anything
// is written.
func (s *SubscriptionService) Update(ctx context.Context, caller *auth.AccessClaims, id string, req UpdateRequest) (*db.Subscription, error) {
	if err := RequireScope(caller, auth.ScopeSubscriptionsManage); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, &ValidationError{Message: "Subscription ID is required"}
	}

	sub, err := s.apply(ctx, id, req)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("subscription_id", sub.ID).
		Str("status", string(sub.Status)).
		Str("plan", string(sub.Plan)).
		Str("client_id", caller.ClientID).
		Msg("updated subscription")

	return sub, nil
}

// SetStatus changes a subscription's status on behalf of the platform
// itself, e.g. from an inbound webhook event. A cancelled subscription is
// terminal for these events and is returned unchanged.
func (s *SubscriptionService) SetStatus(ctx context.Context, id string, status db.Status) (*db.Subscription, error) {
	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if sub.Status == db.StatusCancelled {
		log.Warn().
			Str("subscription_id", id).
			Str("requested_status", string(status)).
			Msg("ignoring status change on cancelled subscription")
		return sub, nil
	}
	return s.apply(ctx, id, UpdateRequest{Status: string(status)})
}

func (s *SubscriptionService) apply(ctx context.Context, id string, req UpdateRequest) (*db.Subscription, error) {
	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	if req.Plan != "" {
		if _, ok := lookupPlan(req.Plan); !ok {
			return nil, &ValidationError{Message: "Invalid plan", ValidPlans: ValidPlans}
		}
	}
	if req.BillingCycle != "" && !db.BillingCycle(req.BillingCycle).Valid() {
		return nil, &ValidationError{Message: "Invalid billing_cycle. Must be 'monthly' or 'yearly'"}
	}
	if req.Status != "" && !db.Status(req.Status).Valid() {
		return nil, &ValidationError{Message: "Invalid status"}
	}

	now := s.now().UTC()
	sub.UpdatedAt = now

	if req.BillingCycle != "" {
		sub.BillingCycle = db.BillingCycle(req.BillingCycle)
		sub.Amount = PlanAmount(sub.Plan, sub.BillingCycle)
	}
	if req.Plan != "" {
		sub.Plan = db.Plan(req.Plan)
		sub.Amount = PlanAmount(sub.Plan, sub.BillingCycle)
		sub.Features = planFeatures(sub.Plan)
	}
	if req.Status != "" {
		prev := sub.Status
		sub.Status = db.Status(req.Status)
		switch {
		case sub.Status == db.StatusCancelled && prev != db.StatusCancelled:
			sub.CancelledAt = &now
		case sub.Status != db.StatusCancelled:
			sub.CancelledAt = nil
		}
	}
	if len(req.PaymentMethod) > 0 {
		sub.PaymentMethod = merge(sub.PaymentMethod, req.PaymentMethod)
	}
	if len(req.Metadata) > 0 {
		sub.Metadata = merge(sub.Metadata, req.Metadata)
	}

	if err := s.repo.Update(ctx, sub); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.conflictOr(ctx, sub.CustomerID, err)
	}
	return sub, nil
}

// conflictOr turns a single-active violation into a ConflictError naming the
// subscription that is already active.
func (s *SubscriptionService) conflictOr(ctx context.Context, customerID string, err error) error {
	if !errors.Is(err, repository.ErrActiveExists) {
		return fmt.Errorf("save subscription: %w", err)
	}
	ce := &ConflictError{Message: "Customer already has an active subscription"}
	if existing, ferr := s.repo.FindActiveByCustomer(ctx, customerID); ferr == nil {
		ce.ExistingID = existing.ID
	}
	return ce
}

func summarize(subs []*db.Subscription) Summary {
	var (
		sum   Summary
		total float64
		dist  PlanDistribution
	)
	sum.TotalSubscriptions = len(subs)
	for _, sub := range subs {
		total += sub.Amount
		if sub.Status == db.StatusActive {
			sum.ActiveSubscriptions++
			sum.TotalMRR += sub.Amount
		}
		switch sub.Plan {
		case db.PlanBasic:
			dist.Basic++
		case db.PlanPremium:
			dist.Premium++
		case db.PlanEnterprise:
			dist.Enterprise++
		}
	}
	sum.TotalMRR = roundCents(sum.TotalMRR)
	if len(subs) > 0 {
		sum.AverageAmount = roundCents(total / float64(len(subs)))
	}
	sum.PlanDistribution = dist
	return sum
}

// sortSubscriptions orders subs by field. Ties, and unknown fields, keep
// insertion order.
func sortSubscriptions(subs []*db.Subscription, field, order string) {
	if field == "" {
		field = "created_at"
	}
	desc := order != "asc"
	slices.SortStableFunc(subs, func(a, b *db.Subscription) int {
		c := compareField(a, b, field)
		if desc {
			return -c
		}
		return c
	})
}

func compareField(a, b *db.Subscription, field string) int {
	switch field {
	case "id":
		return cmp.Compare(a.ID, b.ID)
	case "customer_id":
		return cmp.Compare(a.CustomerID, b.CustomerID)
	case "customer_email":
		return cmp.Compare(a.CustomerEmail, b.CustomerEmail)
	case "customer_name":
		return cmp.Compare(a.CustomerName, b.CustomerName)
	case "plan":
		return cmp.Compare(a.Plan, b.Plan)
	case "status":
		return cmp.Compare(a.Status, b.Status)
	case "currency":
		return cmp.Compare(a.Currency, b.Currency)
	case "billing_cycle":
		return cmp.Compare(a.BillingCycle, b.BillingCycle)
	case "amount":
		return cmp.Compare(a.Amount, b.Amount)
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case "next_billing_date":
		return a.NextBillingDate.Compare(b.NextBillingDate)
	case "trial_end_date":
		return compareOptionalTime(a.TrialEndDate, b.TrialEndDate)
	case "cancelled_at":
		return compareOptionalTime(a.CancelledAt, b.CancelledAt)
	}
	return 0
}

// compareOptionalTime sorts nil before any time.
func compareOptionalTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}

func merge[M ~map[string]any](base M, overlay M) M {
	out := make(M, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
