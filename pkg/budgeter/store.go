package budgeter

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements LedgerStore against the rate_limit_ledger and
// connected_accounts tables.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a budgeter Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Flush upserts one row per (date, platform, tenant) plus one row per
// (date, platform) with a null tenant_id for the global counter.
func (s *Store) Flush(ctx context.Context, date string, tenantCounts map[counterKeyExport]int, globalCounts map[string]int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning ledger flush tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for k, used := range tenantCounts {
		_, err := tx.Exec(ctx, `
			INSERT INTO rate_limit_ledger (date, platform, tenant_id, used)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (date, platform, tenant_id) WHERE tenant_id IS NOT NULL DO UPDATE SET used = EXCLUDED.used
		`, date, k.Platform, k.Tenant, used)
		if err != nil {
			return fmt.Errorf("upserting tenant ledger row: %w", err)
		}
	}

	for platform, used := range globalCounts {
		_, err := tx.Exec(ctx, `
			INSERT INTO rate_limit_ledger (date, platform, tenant_id, used)
			VALUES ($1, $2, NULL, $3)
			ON CONFLICT (date, platform) WHERE tenant_id IS NULL DO UPDATE SET used = EXCLUDED.used
		`, date, platform, used)
		if err != nil {
			return fmt.Errorf("upserting global ledger row: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// SeedToday loads all of today's ledger rows into memory.
func (s *Store) SeedToday(ctx context.Context, date string) (map[counterKeyExport]int, map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT platform, tenant_id, used FROM rate_limit_ledger WHERE date = $1`, date)
	if err != nil {
		return nil, nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	tenantCounts := map[counterKeyExport]int{}
	globalCounts := map[string]int{}
	for rows.Next() {
		var platform string
		var tenantID *string
		var used int
		if err := rows.Scan(&platform, &tenantID, &used); err != nil {
			return nil, nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		if tenantID == nil {
			globalCounts[platform] = used
		} else {
			tenantCounts[counterKeyExport{Platform: platform, Tenant: *tenantID}] = used
		}
	}
	return tenantCounts, globalCounts, rows.Err()
}

// ActiveTenantCounts delegates to the connected_accounts table via a raw
// query (kept local to avoid an import cycle with pkg/connaccount).
func (s *Store) ActiveTenantCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT platform, count(DISTINCT tenant_id) FROM connected_accounts GROUP BY platform`)
	if err != nil {
		return nil, fmt.Errorf("counting active tenants: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var platform string
		var n int
		if err := rows.Scan(&platform, &n); err != nil {
			return nil, fmt.Errorf("scanning active tenant count: %w", err)
		}
		counts[platform] = n
	}
	return counts, rows.Err()
}
