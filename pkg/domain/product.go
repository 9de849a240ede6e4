package domain

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Product is one catalog product row, populated by commerce-A listings,
// commerce-B products, or fulfillment-F products.
type Product struct {
	ID                      uuid.UUID
	TenantID                uuid.UUID
	Platform                string
	PlatformProductID       string
	Title                   string
	Status                  string
	PriceCents              int64
	ProductionCostCents     *int64
	Currency                string
	RawData                 []byte
}

// ProductStore provides database operations for products.
type ProductStore struct {
	pool *pgxpool.Pool
}

// NewProductStore creates a ProductStore backed by the given connection pool.
func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

// Upsert inserts or updates a product on (tenant_id, platform,
// platform_product_id).
func (s *ProductStore) Upsert(ctx context.Context, p Product) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (
			tenant_id, platform, platform_product_id, title, status,
			price_cents, production_cost_cents, currency, raw_data
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (tenant_id, platform, platform_product_id) DO UPDATE SET
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			price_cents = EXCLUDED.price_cents,
			production_cost_cents = EXCLUDED.production_cost_cents,
			currency = EXCLUDED.currency,
			raw_data = EXCLUDED.raw_data
	`, p.TenantID, p.Platform, p.PlatformProductID, p.Title, p.Status,
		p.PriceCents, p.ProductionCostCents, p.Currency, p.RawData)
	if err != nil {
		return fmt.Errorf("upserting product %s/%s: %w", p.Platform, p.PlatformProductID, err)
	}
	return nil
}
