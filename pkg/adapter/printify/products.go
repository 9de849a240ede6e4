package printify

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jedmorris/syncforge/pkg/adapter"
	"github.com/jedmorris/syncforge/pkg/budgeter"
	"github.com/jedmorris/syncforge/pkg/connaccount"
	"github.com/jedmorris/syncforge/pkg/domain"
	"github.com/jedmorris/syncforge/pkg/httpclient"
	"github.com/jedmorris/syncforge/pkg/vault"
)

// Products returns the fulfillment-F products adapter.Func. Production
// cost is the minimum cost across a product's variants, matching the
// cheapest fulfillable option.
func Products(v *vault.Vault, b *budgeter.Budgeter, hc *httpclient.Client, accounts *connaccount.Store, products *domain.ProductStore) adapter.Func {
	return func(ctx context.Context, tenantID uuid.UUID) (int, error) {
		acct, err := accounts.Get(ctx, tenantID, vault.PlatformFulfillmentF)
		if err != nil {
			return 0, fmt.Errorf("loading connected account: %w", err)
		}
		lastTS, _ := acct.SyncCursor["printify_products_last_ts"].(string)

		client, err := New(ctx, v, b, hc, accounts, tenantID)
		if err != nil {
			return 0, err
		}

		all, err := client.GetAllProducts(ctx)
		if err != nil {
			return 0, err
		}

		synced := 0
		newestTS := lastTS
		for _, p := range all {
			ts := p.UpdatedAt
			if ts == "" {
				ts = p.CreatedAt
			}
			if lastTS != "" && ts <= lastTS {
				continue
			}
			if ts != "" && (newestTS == "" || ts > newestTS) {
				newestTS = ts
			}

			status := "draft"
			if p.Visible {
				status = "active"
			}
			cost := minVariantCost(p.Variants)

			if err := products.Upsert(ctx, domain.Product{
				TenantID:            tenantID,
				Platform:            "fulfillment-F",
				PlatformProductID:   p.ID,
				Title:               p.Title,
				Status:              status,
				ProductionCostCents: &cost,
				Currency:            "USD",
			}); err != nil {
				return synced, err
			}
			synced++
		}

		if newestTS != "" && newestTS != lastTS {
			if err := accounts.UpdateCursor(ctx, tenantID, vault.PlatformFulfillmentF, map[string]any{"printify_products_last_ts": newestTS}); err != nil {
				return synced, fmt.Errorf("updating products cursor: %w", err)
			}
		}
		return synced, nil
	}
}

func minVariantCost(variants []Variant) int64 {
	var min int64
	for i, v := range variants {
		if i == 0 || v.Cost < min {
			min = v.Cost
		}
	}
	return min
}
