package service

import (
	"context"
	"time"

	"github.com/raakeshmj/gobill/internal/db"
	"github.com/raakeshmj/gobill/internal/repository"
)

func date(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func datePtr(s string) *time.Time {
	t := date(s)
	return &t
}

// DemoSubscriptions returns the records the dashboard ships with.
func DemoSubscriptions() []*db.Subscription {
	return []*db.Subscription{
		{
			ID:              "sub_001",
			CustomerID:      "cust_001",
			CustomerEmail:   "alice@example.com",
			CustomerName:    "Alice Johnson",
			Plan:            db.PlanPremium,
			Status:          db.StatusActive,
			Amount:          19.99,
			Currency:        defaultCurrency,
			BillingCycle:    db.BillingMonthly,
			CreatedAt:       date("2024-01-01T00:00:00Z"),
			UpdatedAt:       date("2024-01-01T00:00:00Z"),
			NextBillingDate: date("2024-02-01T00:00:00Z"),
			Features:        planFeatures(db.PlanPremium),
			PaymentMethod:   db.PaymentMethod{"type": "credit_card", "last4": "4242", "brand": "visa"},
			Metadata:        map[string]any{"platform": "netflix_integration", "source": "web", "campaign": "summer_promo"},
		},
		{
			ID:              "sub_002",
			CustomerID:      "cust_002",
			CustomerEmail:   "bob@example.com",
			CustomerName:    "Bob Smith",
			Plan:            db.PlanBasic,
			Status:          db.StatusActive,
			Amount:          9.99,
			Currency:        defaultCurrency,
			BillingCycle:    db.BillingMonthly,
			CreatedAt:       date("2024-01-15T00:00:00Z"),
			UpdatedAt:       date("2024-01-15T00:00:00Z"),
			NextBillingDate: date("2024-02-15T00:00:00Z"),
			TrialEndDate:    datePtr("2024-01-22T00:00:00Z"),
			Features:        planFeatures(db.PlanBasic),
			PaymentMethod:   db.PaymentMethod{"type": "paypal", "email": "bob@example.com"},
			Metadata:        map[string]any{"platform": "disney_integration", "source": "mobile_app"},
		},
		{
			ID:              "sub_003",
			CustomerID:      "cust_003",
			CustomerEmail:   "carol@example.com",
			CustomerName:    "Carol Davis",
			Plan:            db.PlanEnterprise,
			Status:          db.StatusPastDue,
			Amount:          49.99,
			Currency:        defaultCurrency,
			BillingCycle:    db.BillingMonthly,
			CreatedAt:       date("2023-11-20T00:00:00Z"),
			UpdatedAt:       date("2024-01-10T00:00:00Z"),
			NextBillingDate: date("2024-01-10T00:00:00Z"),
			Features:        planFeatures(db.PlanEnterprise),
			PaymentMethod:   db.PaymentMethod{"type": "credit_card", "last4": "1234", "brand": "mastercard"},
			Metadata:        map[string]any{"platform": "prime_integration", "source": "api"},
		},
	}
}

// Seed stores the demo subscriptions, skipping any that already exist.
func Seed(ctx context.Context, repo repository.SubscriptionRepository) error {
	for _, sub := range DemoSubscriptions() {
		if _, err := repo.Get(ctx, sub.ID); err == nil {
			continue
		}
		if err := repo.Create(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}
