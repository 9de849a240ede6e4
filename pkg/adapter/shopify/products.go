package shopify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jedmorris/syncforge/pkg/adapter"
	"github.com/jedmorris/syncforge/pkg/budgeter"
	"github.com/jedmorris/syncforge/pkg/connaccount"
	"github.com/jedmorris/syncforge/pkg/domain"
	"github.com/jedmorris/syncforge/pkg/httpclient"
	"github.com/jedmorris/syncforge/pkg/vault"
)

const productsQuery = `
query GetProducts($first: Int!, $after: String) {
  products(first: $first, after: $after, sortKey: UPDATED_AT, reverse: true) {
    edges {
      node {
        id
        title
        status
        priceRangeV2 { minVariantPrice { amount currencyCode } }
      }
      cursor
    }
    pageInfo { hasNextPage }
  }
}`

type productNode struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Status        string `json:"status"`
	PriceRangeV2  struct {
		MinVariantPrice Money `json:"minVariantPrice"`
	} `json:"priceRangeV2"`
}

type productsResponse struct {
	Products struct {
		Edges []struct {
			Node   productNode `json:"node"`
			Cursor string      `json:"cursor"`
		} `json:"edges"`
		PageInfo struct {
			HasNextPage bool `json:"hasNextPage"`
		} `json:"pageInfo"`
	} `json:"products"`
}

// Products returns the commerce-B products adapter.Func: cursor-paginated
// GraphQL listing, upserted on the GID tail as platform_product_id.
func Products(v *vault.Vault, b *budgeter.Budgeter, hc *httpclient.Client, accounts *connaccount.Store, products *domain.ProductStore) adapter.Func {
	return func(ctx context.Context, tenantID uuid.UUID) (int, error) {
		acct, err := accounts.Get(ctx, tenantID, vault.PlatformCommerceB)
		if err != nil {
			return 0, fmt.Errorf("loading connected account: %w", err)
		}
		cursor, _ := acct.SyncCursor["products_cursor"].(string)

		client, err := New(ctx, v, b, hc, tenantID)
		if err != nil {
			return 0, err
		}

		var nodes []productNode
		lastCursor := cursor

		for {
			vars := map[string]any{"first": 50}
			if lastCursor != "" {
				vars["after"] = lastCursor
			}
			raw, err := client.Graphql(ctx, productsQuery, vars)
			if err != nil {
				return len(nodes), err
			}
			var resp productsResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				return len(nodes), fmt.Errorf("decoding products response: %w", err)
			}
			for _, e := range resp.Products.Edges {
				nodes = append(nodes, e.Node)
				lastCursor = e.Cursor
			}
			if !resp.Products.PageInfo.HasNextPage {
				break
			}
		}

		for _, n := range nodes {
			currency := n.PriceRangeV2.MinVariantPrice.CurrencyCode
			if currency == "" {
				currency = "USD"
			}
			p := domain.Product{
				TenantID:          tenantID,
				Platform:          "commerce-B",
				PlatformProductID: adapter.GIDTail(n.ID),
				Title:             n.Title,
				Status:            n.Status,
				PriceCents:        adapter.ShopifyMoneyToCents(n.PriceRangeV2.MinVariantPrice.Amount),
				Currency:          currency,
			}
			if err := products.Upsert(ctx, p); err != nil {
				return len(nodes), err
			}
		}

		if lastCursor != "" && lastCursor != cursor {
			if err := accounts.UpdateCursor(ctx, tenantID, vault.PlatformCommerceB, map[string]any{"products_cursor": lastCursor}); err != nil {
				return len(nodes), fmt.Errorf("updating products cursor: %w", err)
			}
		}
		return len(nodes), nil
	}
}
