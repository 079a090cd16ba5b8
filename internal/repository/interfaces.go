package repository

import (
	"context"
	"errors"

	"github.com/raakeshmj/gobill/internal/db"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrActiveExists is returned when a write would leave a customer with
	// more than one active subscription.
	ErrActiveExists = errors.New("customer already has an active subscription")
)

type ClientRepository interface {
	GetClient(ctx context.Context, clientID string) (*db.Client, error)
}

// SubscriptionFilter is applied conjunctively. Empty fields match anything.
type SubscriptionFilter struct {
	CustomerID string
	Status     string
	Plan       string
}

// SubscriptionRepository returns records in insertion order.
type SubscriptionRepository interface {
	List(ctx context.Context, filter SubscriptionFilter) ([]*db.Subscription, error)
	Get(ctx context.Context, id string) (*db.Subscription, error)
	FindActiveByCustomer(ctx context.Context, customerID string) (*db.Subscription, error)
	Create(ctx context.Context, sub *db.Subscription) error
	Update(ctx context.Context, sub *db.Subscription) error
}
