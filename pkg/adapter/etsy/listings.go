package etsy

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

// Listings returns the commerce-A listings adapter.Func: a full
// state=active listing list upserted on (tenant, listing_id).
func Listings(v *vault.Vault, b *budgeter.Budgeter, hc *httpclient.Client, accounts *connaccount.Store, products *domain.ProductStore, apiKey string) adapter.Func {
	return func(ctx context.Context, tenantID uuid.UUID) (int, error) {
		client, err := New(ctx, v, b, hc, accounts, apiKey, tenantID)
		if err != nil {
			return 0, err
		}

		listings, err := client.GetAllActiveListings(ctx)
		if err != nil {
			return 0, err
		}

		for _, l := range listings {
			currency := l.Price.Currency
			if currency == "" {
				currency = "USD"
			}
			p := domain.Product{
				TenantID:          tenantID,
				Platform:          "commerce-A",
				PlatformProductID: fmt.Sprint(l.ListingID),
				Title:             l.Title,
				Status:            l.State,
				PriceCents:        adapter.ToCents(l.Price),
				Currency:          currency,
			}
			if err := products.Upsert(ctx, p); err != nil {
				return len(listings), err
			}
		}
		return len(listings), nil
	}
}
