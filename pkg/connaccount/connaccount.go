// Package connaccount stores per-tenant per-platform OAuth credentials and
// sync cursors. It backs the Token Vault, the adapters' cursor updates, and
// the Scheduler's onboarding scan.
package connaccount

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Account is a (tenant, platform) connected account row. Token fields are
// always ciphertext at rest; the Store never decrypts them — that is the
// Token Vault's job.
type Account struct {
	TenantID         uuid.UUID
	Platform         string
	AccessTokenEnc   string
	RefreshTokenEnc  *string
	TokenExpiresAt   *time.Time
	ShopDomain       *string
	SyncCursor       map[string]any
	LastSyncAt       *time.Time
	UpdatedAt        time.Time
}

const accountColumns = `tenant_id, platform, access_token_enc, refresh_token_enc, token_expires_at, shop_domain, sync_cursor, last_sync_at, updated_at`

// Store provides database operations for connected accounts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a connaccount Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var cursor []byte
	err := row.Scan(&a.TenantID, &a.Platform, &a.AccessTokenEnc, &a.RefreshTokenEnc,
		&a.TokenExpiresAt, &a.ShopDomain, &cursor, &a.LastSyncAt, &a.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	if len(cursor) > 0 {
		if err := json.Unmarshal(cursor, &a.SyncCursor); err != nil {
			return Account{}, fmt.Errorf("decoding sync_cursor: %w", err)
		}
	}
	if a.SyncCursor == nil {
		a.SyncCursor = map[string]any{}
	}
	return a, nil
}

// Get loads the connected account for (tenant, platform). Returns
// pgx.ErrNoRows when absent.
func (s *Store) Get(ctx context.Context, tenantID uuid.UUID, platform string) (Account, error) {
	query := `SELECT ` + accountColumns + ` FROM connected_accounts WHERE tenant_id = $1 AND platform = $2`
	return scanAccount(s.pool.QueryRow(ctx, query, tenantID, platform))
}

// UpsertTokensParams is the payload for a token-store upsert. Nil fields are
// left unchanged on an existing row.
type UpsertTokensParams struct {
	TenantID        uuid.UUID
	Platform        string
	AccessTokenEnc  string
	RefreshTokenEnc *string
	TokenExpiresAt  *time.Time
	ShopDomain      *string
}

// UpsertTokens enforces the (tenant, platform) uniqueness invariant via
// ON CONFLICT and sets updated_at to now. refresh_token_enc and
// token_expires_at are only overwritten when non-nil, matching the source
// system's store_tokens which only includes keys it was given.
func (s *Store) UpsertTokens(ctx context.Context, p UpsertTokensParams) error {
	query := `
		INSERT INTO connected_accounts (tenant_id, platform, access_token_enc, refresh_token_enc, token_expires_at, shop_domain, sync_cursor, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, '{}'::jsonb, now())
		ON CONFLICT (tenant_id, platform) DO UPDATE SET
			access_token_enc = EXCLUDED.access_token_enc,
			refresh_token_enc = COALESCE(EXCLUDED.refresh_token_enc, connected_accounts.refresh_token_enc),
			token_expires_at = COALESCE(EXCLUDED.token_expires_at, connected_accounts.token_expires_at),
			shop_domain = COALESCE(EXCLUDED.shop_domain, connected_accounts.shop_domain),
			updated_at = now()
	`
	_, err := s.pool.Exec(ctx, query, p.TenantID, p.Platform, p.AccessTokenEnc, p.RefreshTokenEnc, p.TokenExpiresAt, p.ShopDomain)
	if err != nil {
		return fmt.Errorf("upserting connected account tokens: %w", err)
	}
	return nil
}

// UpdateCursor merges newCursor into the stored sync_cursor JSON document.
// Callers are responsible for only ever passing monotonically non-decreasing
// values (the Adapter layer enforces this, not the Store).
func (s *Store) UpdateCursor(ctx context.Context, tenantID uuid.UUID, platform string, newCursor map[string]any) error {
	payload, err := json.Marshal(newCursor)
	if err != nil {
		return fmt.Errorf("encoding sync_cursor: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE connected_accounts
		SET sync_cursor = sync_cursor || $3::jsonb, updated_at = now()
		WHERE tenant_id = $1 AND platform = $2
	`, tenantID, platform, payload)
	if err != nil {
		return fmt.Errorf("updating sync_cursor: %w", err)
	}
	return nil
}

// ListPlatforms returns every platform the tenant has a connected account
// for, used by the backfill worker to discover which full-history adapters
// to run.
func (s *Store) ListPlatforms(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT platform FROM connected_accounts WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing connected platforms: %w", err)
	}
	defer rows.Close()

	var platforms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning connected platform: %w", err)
		}
		platforms = append(platforms, p)
	}
	return platforms, rows.Err()
}

// ListUninitialized returns every (tenant, platform) connected account that
// has never completed a sync, the signal the Scheduler's onboarding pass
// uses to seed a freshly connected account's backfill and initial syncs.
func (s *Store) ListUninitialized(ctx context.Context) ([]Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, platform FROM connected_accounts WHERE last_sync_at IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("listing uninitialized accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.TenantID, &a.Platform); err != nil {
			return nil, fmt.Errorf("scanning uninitialized account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// TouchLastSync records that a sync just completed successfully.
func (s *Store) TouchLastSync(ctx context.Context, tenantID uuid.UUID, platform string) error {
	_, err := s.pool.Exec(ctx, `UPDATE connected_accounts SET last_sync_at = now() WHERE tenant_id = $1 AND platform = $2`, tenantID, platform)
	if err != nil {
		return fmt.Errorf("touching last_sync_at: %w", err)
	}
	return nil
}

// ActiveTenantCounts counts distinct tenants per platform. The Budgeter does
// not call it; it runs its own copy of this query in pkg/budgeter/store.go.
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

// Delete removes a connected account (explicit disconnect).
func (s *Store) Delete(ctx context.Context, tenantID uuid.UUID, platform string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM connected_accounts WHERE tenant_id = $1 AND platform = $2`, tenantID, platform)
	if err != nil {
		return fmt.Errorf("deleting connected account: %w", err)
	}
	return nil
}
