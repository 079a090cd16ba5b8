package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/raakeshmj/gobill/internal/db"
	"github.com/raakeshmj/gobill/internal/repository"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	uniqueViolation  = "23505"
	oneActiveIndex   = "subscriptions_one_active_per_customer"
	subscriptionCols = `id, customer_id, customer_email, customer_name, plan, status, amount::float8,
		currency, billing_cycle, created_at, updated_at, next_billing_date, trial_end_date,
		cancelled_at, features, payment_method, metadata`
)

// Connect opens a pool and pings it, retrying a few times so the service
// can start alongside the database.
func Connect(ctx context.Context, url string, attempts int, interval time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err
		time.Sleep(time.Duration(i+1) * interval)
	}
	return nil, fmt.Errorf("connect to database: %w", lastErr)
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// SubscriptionRepository stores subscriptions in PostgreSQL. Insertion order
// is kept by the seq column.
type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

func (r *SubscriptionRepository) List(ctx context.Context, filter repository.SubscriptionFilter) ([]*db.Subscription, error) {
	var (
		where []string
		args  []any
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("customer_id", filter.CustomerID)
	add("status", filter.Status)
	add("plan", filter.Plan)

	query := "SELECT " + subscriptionCols + " FROM subscriptions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*db.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (r *SubscriptionRepository) Get(ctx context.Context, id string) (*db.Subscription, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+subscriptionCols+" FROM subscriptions WHERE id = $1", id)
	return r.one(row)
}

func (r *SubscriptionRepository) FindActiveByCustomer(ctx context.Context, customerID string) (*db.Subscription, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+subscriptionCols+" FROM subscriptions WHERE customer_id = $1 AND status = 'active' LIMIT 1",
		customerID)
	return r.one(row)
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *db.Subscription) error {
	features, pm, meta, err := encodeJSON(sub)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, customer_id, customer_email, customer_name, plan, status, amount,
			currency, billing_cycle, created_at, updated_at, next_billing_date, trial_end_date,
			cancelled_at, features, payment_method, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		sub.ID, sub.CustomerID, sub.CustomerEmail, sub.CustomerName, string(sub.Plan), string(sub.Status),
		sub.Amount, sub.Currency, string(sub.BillingCycle), sub.CreatedAt, sub.UpdatedAt,
		sub.NextBillingDate, sub.TrialEndDate, sub.CancelledAt, features, pm, meta)
	return mapWriteErr(err)
}

func (r *SubscriptionRepository) Update(ctx context.Context, sub *db.Subscription) error {
	features, pm, meta, err := encodeJSON(sub)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions SET plan = $2, status = $3, amount = $4, billing_cycle = $5,
			updated_at = $6, next_billing_date = $7, trial_end_date = $8, cancelled_at = $9,
			features = $10, payment_method = $11, metadata = $12
		WHERE id = $1`,
		sub.ID, string(sub.Plan), string(sub.Status), sub.Amount, string(sub.BillingCycle),
		sub.UpdatedAt, sub.NextBillingDate, sub.TrialEndDate, sub.CancelledAt, features, pm, meta)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *SubscriptionRepository) one(row pgx.Row) (*db.Subscription, error) {
	s, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return s, err
}

func scanSubscription(row pgx.Row) (*db.Subscription, error) {
	var (
		s                      db.Subscription
		plan, status, cycle    string
		features, pm, metadata []byte
	)
	err := row.Scan(&s.ID, &s.CustomerID, &s.CustomerEmail, &s.CustomerName, &plan, &status, &s.Amount,
		&s.Currency, &cycle, &s.CreatedAt, &s.UpdatedAt, &s.NextBillingDate, &s.TrialEndDate,
		&s.CancelledAt, &features, &pm, &metadata)
	if err != nil {
		return nil, err
	}
	s.Plan, s.Status, s.BillingCycle = db.Plan(plan), db.Status(status), db.BillingCycle(cycle)
	if err := json.Unmarshal(features, &s.Features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	if err := json.Unmarshal(pm, &s.PaymentMethod); err != nil {
		return nil, fmt.Errorf("decode payment_method: %w", err)
	}
	if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &s, nil
}

func encodeJSON(sub *db.Subscription) (features, pm, meta string, err error) {
	enc := func(v any, empty string) (string, error) {
		b, err := json.Marshal(v)
		if err != nil || string(b) == "null" {
			return empty, err
		}
		return string(b), nil
	}
	if features, err = enc(sub.Features, "[]"); err != nil {
		return
	}
	if pm, err = enc(sub.PaymentMethod, "{}"); err != nil {
		return
	}
	meta, err = enc(sub.Metadata, "{}")
	return
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == oneActiveIndex {
		return repository.ErrActiveExists
	}
	return err
}

var _ repository.SubscriptionRepository = (*SubscriptionRepository)(nil)
