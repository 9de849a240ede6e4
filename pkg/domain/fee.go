package domain

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Fee is one platform payment-ledger entry, mapped from commerce-A's
// payment ledger worker.
type Fee struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	Platform         string
	PlatformLedgerID string
	OrderID          *uuid.UUID
	AmountCents      int64
	FeeType          string
	Currency         string
}

// FeeStore provides database operations for fees.
type FeeStore struct {
	pool *pgxpool.Pool
}

// NewFeeStore creates a FeeStore backed by the given connection pool.
func NewFeeStore(pool *pgxpool.Pool) *FeeStore {
	return &FeeStore{pool: pool}
}

// Upsert inserts or updates a fee on (tenant_id, platform,
// platform_ledger_id), linking order_id when the ledger entry references a
// receipt that resolves to a known order.
func (s *FeeStore) Upsert(ctx context.Context, f Fee) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fees (tenant_id, platform, platform_ledger_id, order_id, amount_cents, fee_type, currency)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (tenant_id, platform, platform_ledger_id) DO UPDATE SET
			order_id = EXCLUDED.order_id,
			amount_cents = EXCLUDED.amount_cents,
			fee_type = EXCLUDED.fee_type,
			currency = EXCLUDED.currency
	`, f.TenantID, f.Platform, f.PlatformLedgerID, f.OrderID, f.AmountCents, f.FeeType, f.Currency)
	if err != nil {
		return fmt.Errorf("upserting fee %s: %w", f.PlatformLedgerID, err)
	}
	return nil
}
