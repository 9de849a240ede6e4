// Package domain holds the row-stores for the data the adapters populate:
// orders, line items, products, customers, fees. Every store upserts on
// the natural key spec.md §3 names, matching the teacher's pgx store shape.
package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Order is one commerce order row.
type Order struct {
	ID                      uuid.UUID
	TenantID                uuid.UUID
	Platform                string
	PlatformOrderID         string
	PlatformOrderNumber     string
	Status                  string
	FinancialStatus         string
	FulfillmentStatus       string
	SubtotalCents           int64
	ShippingCents           int64
	TaxCents                int64
	DiscountCents           int64
	TotalCents              int64
	Currency                string
	OrderedAt               time.Time
	PrintifyOrderID         *string
	PrintifyProductionCostCents *int64
	PrintifyShippingCostCents   *int64
	RawData                 []byte
}

// LineItem is one order line item row.
type LineItem struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	OrderID             uuid.UUID
	PlatformLineItemID  string
	Title               string
	Quantity            int
	UnitPriceCents      int64
	TotalCents          int64
	SKU                 string
	VariantTitle        string
}

// OrderStore provides database operations for orders and their line items.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// UpsertOrder inserts or updates an order on (tenant_id, platform,
// platform_order_id) and returns the row id, needed to link line items.
func (s *OrderStore) UpsertOrder(ctx context.Context, o Order) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO orders (
			tenant_id, platform, platform_order_id, platform_order_number, status,
			financial_status, fulfillment_status, subtotal_cents, shipping_cents,
			tax_cents, discount_cents, total_cents, currency, ordered_at, raw_data
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (tenant_id, platform, platform_order_id) DO UPDATE SET
			platform_order_number = EXCLUDED.platform_order_number,
			status = EXCLUDED.status,
			financial_status = EXCLUDED.financial_status,
			fulfillment_status = EXCLUDED.fulfillment_status,
			subtotal_cents = EXCLUDED.subtotal_cents,
			shipping_cents = EXCLUDED.shipping_cents,
			tax_cents = EXCLUDED.tax_cents,
			discount_cents = EXCLUDED.discount_cents,
			total_cents = EXCLUDED.total_cents,
			currency = EXCLUDED.currency,
			ordered_at = EXCLUDED.ordered_at,
			raw_data = EXCLUDED.raw_data
		RETURNING id
	`, o.TenantID, o.Platform, o.PlatformOrderID, o.PlatformOrderNumber, o.Status,
		o.FinancialStatus, o.FulfillmentStatus, o.SubtotalCents, o.ShippingCents,
		o.TaxCents, o.DiscountCents, o.TotalCents, o.Currency, o.OrderedAt, o.RawData,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upserting order %s/%s: %w", o.Platform, o.PlatformOrderID, err)
	}
	return id, nil
}

// FindByPlatformOrderID looks up an order row regardless of platform, used
// by the fulfillment-F adapter to link production costs onto an order
// originated by commerce-A/commerce-B.
func (s *OrderStore) FindByPlatformOrderID(ctx context.Context, tenantID uuid.UUID, platformOrderID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM orders WHERE tenant_id = $1 AND platform_order_id = $2 LIMIT 1
	`, tenantID, platformOrderID).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// FulfillmentUpdate carries fulfillment-F's production/shipping costs and
// normalized status for ApplyFulfillmentUpdate to write onto an existing
// order row.
type FulfillmentUpdate struct {
	OrderID                 uuid.UUID
	PrintifyOrderID         string
	ProductionCostCents     int64
	ShippingCostCents       int64
	FulfillmentStatus       string
}

// ApplyFulfillmentUpdate UPDATEs an existing order with fulfillment-F data.
func (s *OrderStore) ApplyFulfillmentUpdate(ctx context.Context, u FulfillmentUpdate) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE orders SET
			printify_order_id = $2,
			printify_production_cost_cents = $3,
			printify_shipping_cost_cents = $4,
			fulfillment_status = $5
		WHERE id = $1
	`, u.OrderID, u.PrintifyOrderID, u.ProductionCostCents, u.ShippingCostCents, u.FulfillmentStatus)
	if err != nil {
		return fmt.Errorf("applying fulfillment update to order %s: %w", u.OrderID, err)
	}
	return nil
}

// UpsertLineItem inserts or updates a line item on (tenant_id, order_id,
// platform_line_item_id).
func (s *OrderStore) UpsertLineItem(ctx context.Context, li LineItem) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO order_line_items (
			tenant_id, order_id, platform_line_item_id, title, quantity,
			unit_price_cents, total_cents, sku, variant_title
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (tenant_id, order_id, platform_line_item_id) DO UPDATE SET
			title = EXCLUDED.title,
			quantity = EXCLUDED.quantity,
			unit_price_cents = EXCLUDED.unit_price_cents,
			total_cents = EXCLUDED.total_cents,
			sku = EXCLUDED.sku,
			variant_title = EXCLUDED.variant_title
	`, li.TenantID, li.OrderID, li.PlatformLineItemID, li.Title, li.Quantity,
		li.UnitPriceCents, li.TotalCents, li.SKU, li.VariantTitle)
	if err != nil {
		return fmt.Errorf("upserting line item %s: %w", li.PlatformLineItemID, err)
	}
	return nil
}
