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

const customersQuery = `
query GetCustomers($first: Int!, $after: String) {
  customers(first: $first, after: $after, sortKey: UPDATED_AT, reverse: true) {
    edges {
      node {
        id
        email
        firstName
        lastName
        phone
        numberOfOrders
        amountSpent { amount currencyCode }
      }
      cursor
    }
    pageInfo { hasNextPage }
  }
}`

type customerNode struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Phone          string `json:"phone"`
	NumberOfOrders int    `json:"numberOfOrders"`
	AmountSpent    Money  `json:"amountSpent"`
}

type customersResponse struct {
	Customers struct {
		Edges []struct {
			Node   customerNode `json:"node"`
			Cursor string       `json:"cursor"`
		} `json:"edges"`
		PageInfo struct {
			HasNextPage bool `json:"hasNextPage"`
		} `json:"pageInfo"`
	} `json:"customers"`
}

// Customers returns the commerce-B customers adapter.Func. Per
// SPEC_FULL.md §4.4's adopted variant, each customer goes through
// domain.CustomerStore.Upsert's explicit existence check rather than a
// single upsert statement.
func Customers(v *vault.Vault, b *budgeter.Budgeter, hc *httpclient.Client, accounts *connaccount.Store, customers *domain.CustomerStore) adapter.Func {
	return func(ctx context.Context, tenantID uuid.UUID) (int, error) {
		acct, err := accounts.Get(ctx, tenantID, vault.PlatformCommerceB)
		if err != nil {
			return 0, fmt.Errorf("loading connected account: %w", err)
		}
		cursor, _ := acct.SyncCursor["customers_cursor"].(string)

		client, err := New(ctx, v, b, hc, tenantID)
		if err != nil {
			return 0, err
		}

		var nodes []customerNode
		lastCursor := cursor

		for {
			vars := map[string]any{"first": 50}
			if lastCursor != "" {
				vars["after"] = lastCursor
			}
			raw, err := client.Graphql(ctx, customersQuery, vars)
			if err != nil {
				return len(nodes), err
			}
			var resp customersResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				return len(nodes), fmt.Errorf("decoding customers response: %w", err)
			}
			for _, e := range resp.Customers.Edges {
				nodes = append(nodes, e.Node)
				lastCursor = e.Cursor
			}
			if !resp.Customers.PageInfo.HasNextPage {
				break
			}
		}

		for _, n := range nodes {
			currency := n.AmountSpent.CurrencyCode
			if currency == "" {
				currency = "USD"
			}
			c := domain.Customer{
				TenantID:           tenantID,
				Platform:           "commerce-B",
				PlatformCustomerID: adapter.GIDTail(n.ID),
				Email:              n.Email,
				FirstName:          n.FirstName,
				LastName:           n.LastName,
				Phone:              n.Phone,
				OrdersCount:        n.NumberOfOrders,
				TotalSpentCents:    adapter.ShopifyMoneyToCents(n.AmountSpent.Amount),
				Currency:           currency,
			}
			if err := customers.Upsert(ctx, c); err != nil {
				return len(nodes), err
			}
		}

		if lastCursor != "" && lastCursor != cursor {
			if err := accounts.UpdateCursor(ctx, tenantID, vault.PlatformCommerceB, map[string]any{"customers_cursor": lastCursor}); err != nil {
				return len(nodes), fmt.Errorf("updating customers cursor: %w", err)
			}
		}
		return len(nodes), nil
	}
}
