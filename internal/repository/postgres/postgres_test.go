package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raakeshmj/gobill/internal/db"
	"github.com/raakeshmj/gobill/internal/repository"
)

// Runs against a real database when TEST_DATABASE_URL is set.
func newTestRepo(t *testing.T) *SubscriptionRepository {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, url, 3, 500*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return New(pool)
}

func TestSubscriptionRepository_RoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	customer := "cust_" + uuid.NewString()

	sub := &db.Subscription{
		ID:              "sub_" + uuid.NewString(),
		CustomerID:      customer,
		CustomerEmail:   "pg@example.com",
		Plan:            db.PlanPremium,
		Status:          db.StatusActive,
		Amount:          215.89,
		Currency:        "USD",
		BillingCycle:    db.BillingYearly,
		CreatedAt:       now,
		UpdatedAt:       now,
		NextBillingDate: now.Add(30 * 24 * time.Hour),
		Features:        []string{"4K Streaming", "Multiple Devices", "Offline Downloads"},
		PaymentMethod:   db.PaymentMethod{"type": "credit_card", "last4": "4242"},
		Metadata:        map[string]any{"platform": "netflix_integration"},
	}
	require.NoError(t, repo.Create(ctx, sub))

	got, err := repo.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.Features, got.Features)
	assert.Equal(t, "4242", got.PaymentMethod["last4"])
	assert.InDelta(t, 215.89, got.Amount, 0.001)
	assert.Nil(t, got.CancelledAt)

	dup := *sub
	dup.ID = "sub_" + uuid.NewString()
	assert.ErrorIs(t, repo.Create(ctx, &dup), repository.ErrActiveExists)

	cancelled := now.Add(time.Minute)
	got.Status = db.StatusCancelled
	got.CancelledAt = &cancelled
	require.NoError(t, repo.Update(ctx, got))

	list, err := repo.List(ctx, repository.SubscriptionFilter{CustomerID: customer, Status: "cancelled"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotNil(t, list[0].CancelledAt)

	_, err = repo.FindActiveByCustomer(ctx, customer)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
