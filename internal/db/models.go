package db

import (
	"time"
)

// Client is a registered partner platform allowed to request tokens.
type Client struct {
	ID            string   `json:"client_id" yaml:"client_id"`
	DisplayName   string   `json:"display_name" yaml:"display_name"`
	SecretHash    string   `json:"-" yaml:"secret_hash"` // bcrypt hash, never the raw secret
	AllowedScopes []string `json:"allowed_scopes" yaml:"allowed_scopes"`
}

// Allows reports whether scope is in the client's allowed set.
func (c *Client) Allows(scope string) bool {
	for _, s := range c.AllowedScopes {
		if s == scope {
			return true
		}
	}
	return false
}

type Plan string

const (
	PlanBasic      Plan = "basic"
	PlanPremium    Plan = "premium"
	PlanEnterprise Plan = "enterprise"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusTrialing  Status = "trialing"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known subscription states.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusTrialing, StatusPastDue, StatusCancelled:
		return true
	}
	return false
}

type BillingCycle string

const (
	BillingMonthly BillingCycle = "monthly"
	BillingYearly  BillingCycle = "yearly"
)

func (c BillingCycle) Valid() bool {
	return c == BillingMonthly || c == BillingYearly
}

// PaymentMethod holds method-specific fields, e.g. {"type": "credit_card", "last4": "4242"}.
type PaymentMethod map[string]any

// Type returns the "type" field, or "" when absent.
func (p PaymentMethod) Type() string {
	t, _ := p["type"].(string)
	return t
}

type Subscription struct {
	ID              string         `json:"id" db:"id"`
	CustomerID      string         `json:"customer_id" db:"customer_id"`
	CustomerEmail   string         `json:"customer_email" db:"customer_email"`
	CustomerName    string         `json:"customer_name" db:"customer_name"`
	Plan            Plan           `json:"plan" db:"plan"`
	Status          Status         `json:"status" db:"status"`
	Amount          float64        `json:"amount" db:"amount"`
	Currency        string         `json:"currency" db:"currency"`
	BillingCycle    BillingCycle   `json:"billing_cycle" db:"billing_cycle"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
	NextBillingDate time.Time      `json:"next_billing_date" db:"next_billing_date"`
	TrialEndDate    *time.Time     `json:"trial_end_date" db:"trial_end_date"`
	CancelledAt     *time.Time     `json:"cancelled_at" db:"cancelled_at"`
	Features        []string       `json:"features" db:"features"`
	PaymentMethod   PaymentMethod  `json:"payment_method" db:"payment_method"`
	Metadata        map[string]any `json:"metadata" db:"metadata"`
}

// Clone returns a deep-enough copy that callers can mutate maps and slices
// without touching the stored record.
func (s *Subscription) Clone() *Subscription {
	c := *s
	c.Features = append([]string(nil), s.Features...)
	c.PaymentMethod = make(PaymentMethod, len(s.PaymentMethod))
	for k, v := range s.PaymentMethod {
		c.PaymentMethod[k] = v
	}
	c.Metadata = make(map[string]any, len(s.Metadata))
	for k, v := range s.Metadata {
		c.Metadata[k] = v
	}
	if s.TrialEndDate != nil {
		t := *s.TrialEndDate
		c.TrialEndDate = &t
	}
	if s.CancelledAt != nil {
		t := *s.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}
