package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Customer is one commerce-B customer row.
type Customer struct {
	ID                 uuid.UUID
	TenantID           uuid.UUID
	Platform           string
	PlatformCustomerID string
	Email              string
	FirstName          string
	LastName           string
	Phone              string
	OrdersCount        int
	TotalSpentCents    int64
	Currency           string
	RawData            []byte
}

// CustomerStore provides database operations for customers.
type CustomerStore struct {
	pool *pgxpool.Pool
}

// NewCustomerStore creates a CustomerStore backed by the given connection pool.
func NewCustomerStore(pool *pgxpool.Pool) *CustomerStore {
	return &CustomerStore{pool: pool}
}

// Upsert performs an explicit existence check before INSERT/UPDATE on
// (tenant_id, platform, platform_customer_id), per SPEC_FULL.md §4.4's
// adopted two-step shape for commerce-B customers.
func (s *CustomerStore) Upsert(ctx context.Context, c Customer) error {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM customers WHERE tenant_id = $1 AND platform = $2 AND platform_customer_id = $3
	`, c.TenantID, c.Platform, c.PlatformCustomerID).Scan(&id)

	switch {
	case err == nil:
		_, err = s.pool.Exec(ctx, `
			UPDATE customers SET
				email = $2, first_name = $3, last_name = $4, phone = $5,
				orders_count = $6, total_spent_cents = $7, currency = $8, raw_data = $9
			WHERE id = $1
		`, id, c.Email, c.FirstName, c.LastName, c.Phone, c.OrdersCount, c.TotalSpentCents, c.Currency, c.RawData)
		if err != nil {
			return fmt.Errorf("updating customer %s: %w", c.PlatformCustomerID, err)
		}
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		_, err = s.pool.Exec(ctx, `
			INSERT INTO customers (
				tenant_id, platform, platform_customer_id, email, first_name, last_name,
				phone, orders_count, total_spent_cents, currency, raw_data
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, c.TenantID, c.Platform, c.PlatformCustomerID, c.Email, c.FirstName, c.LastName,
			c.Phone, c.OrdersCount, c.TotalSpentCents, c.Currency, c.RawData)
		if err != nil {
			return fmt.Errorf("inserting customer %s: %w", c.PlatformCustomerID, err)
		}
		return nil
	default:
		return fmt.Errorf("checking existing customer %s: %w", c.PlatformCustomerID, err)
	}
}
