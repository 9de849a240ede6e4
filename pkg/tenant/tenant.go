// Package tenant holds the Tenant row and the store operations the
// scheduler's plan gate and billing counter need. There is no per-tenant
// Postgres schema here — every table in this system carries a tenant_id
// column instead.
package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Plan is a subscription tier governing sync cadence and priority.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanStarter Plan = "starter"
	PlanGrowth  Plan = "growth"
	PlanPro     Plan = "pro"
)

// PlanStatus is the billing state of a tenant's subscription.
type PlanStatus string

const (
	PlanStatusActive    PlanStatus = "active"
	PlanStatusPastDue   PlanStatus = "past_due"
	PlanStatusCancelled PlanStatus = "cancelled"
)

// Tenant is a customer of the platform.
type Tenant struct {
	ID                uuid.UUID
	Plan              Plan
	PlanStatus        PlanStatus
	NotificationEmail string
	StripeCustomerID  string
	OrderCount        int64
	CreatedAt         time.Time
}

const tenantColumns = `id, plan, plan_status, notification_email, stripe_customer_id, order_count, created_at`

// Store provides database operations for tenants using the shared pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a tenant Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Plan, &t.PlanStatus, &t.NotificationEmail, &t.StripeCustomerID, &t.OrderCount, &t.CreatedAt)
	return t, err
}

// Get loads a single tenant by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	return scanTenant(s.pool.QueryRow(ctx, query, id))
}

// PlanStatus returns just the plan_status for the admission gate, avoiding a
// full row fetch on the scheduler's hot path.
func (s *Store) PlanStatus(ctx context.Context, id uuid.UUID) (PlanStatus, error) {
	var status PlanStatus
	err := s.pool.QueryRow(ctx, `SELECT plan_status FROM tenants WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("loading plan status: %w", err)
	}
	return status, nil
}

// Plan returns just the plan tier, used for cadence lookups.
func (s *Store) Plan(ctx context.Context, id uuid.UUID) (Plan, error) {
	var plan Plan
	err := s.pool.QueryRow(ctx, `SELECT plan FROM tenants WHERE id = $1`, id).Scan(&plan)
	if err != nil {
		return "", fmt.Errorf("loading plan: %w", err)
	}
	return plan, nil
}

// IncrementOrderCount bumps the billing order counter by n. Mirrors the
// increment_order_count stored procedure call from the source system, as a
// plain UPDATE since this repo owns no procedural SQL layer.
func (s *Store) IncrementOrderCount(ctx context.Context, id uuid.UUID, n int) error {
	_, err := s.pool.Exec(ctx, `UPDATE tenants SET order_count = order_count + $2 WHERE id = $1`, id, n)
	if err != nil {
		return fmt.Errorf("incrementing order count: %w", err)
	}
	return nil
}

// ListIDs returns every tenant id.
func (s *Store) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM tenants`)
	if err != nil {
		return nil, fmt.Errorf("listing tenant ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
