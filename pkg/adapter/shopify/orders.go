package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jedmorris/syncforge/pkg/adapter"
	"github.com/jedmorris/syncforge/pkg/budgeter"
	"github.com/jedmorris/syncforge/pkg/connaccount"
	"github.com/jedmorris/syncforge/pkg/domain"
	"github.com/jedmorris/syncforge/pkg/httpclient"
	"github.com/jedmorris/syncforge/pkg/tenant"
	"github.com/jedmorris/syncforge/pkg/vault"
)

const ordersQuery = `
query GetOrders($first: Int!, $after: String) {
  orders(first: $first, after: $after, sortKey: CREATED_AT, reverse: true) {
    edges {
      node {
        id
        name
        createdAt
        displayFinancialStatus
        displayFulfillmentStatus
        totalPriceSet { shopMoney { amount currencyCode } }
        subtotalPriceSet { shopMoney { amount currencyCode } }
        totalShippingPriceSet { shopMoney { amount currencyCode } }
        totalTaxSet { shopMoney { amount currencyCode } }
        totalDiscountsSet { shopMoney { amount currencyCode } }
        lineItems(first: 50) {
          edges {
            node {
              id
              title
              quantity
              originalUnitPriceSet { shopMoney { amount currencyCode } }
              sku
              variant { title }
            }
          }
        }
      }
      cursor
    }
    pageInfo { hasNextPage }
  }
}`

type orderNode struct {
	ID                     string   `json:"id"`
	Name                   string   `json:"name"`
	CreatedAt              string   `json:"createdAt"`
	DisplayFinancialStatus string   `json:"displayFinancialStatus"`
	DisplayFulfillmentStatus string `json:"displayFulfillmentStatus"`
	TotalPriceSet          MoneyBag `json:"totalPriceSet"`
	SubtotalPriceSet       MoneyBag `json:"subtotalPriceSet"`
	TotalShippingPriceSet  MoneyBag `json:"totalShippingPriceSet"`
	TotalTaxSet            MoneyBag `json:"totalTaxSet"`
	TotalDiscountsSet      MoneyBag `json:"totalDiscountsSet"`
	LineItems              struct {
		Edges []struct {
			Node lineItemNode `json:"node"`
		} `json:"edges"`
	} `json:"lineItems"`
}

type lineItemNode struct {
	ID                    string   `json:"id"`
	Title                 string   `json:"title"`
	Quantity              int      `json:"quantity"`
	SKU                   string   `json:"sku"`
	OriginalUnitPriceSet  MoneyBag `json:"originalUnitPriceSet"`
	Variant               *struct {
		Title string `json:"title"`
	} `json:"variant"`
}

type ordersResponse struct {
	Orders struct {
		Edges []struct {
			Node   orderNode `json:"node"`
			Cursor string    `json:"cursor"`
		} `json:"edges"`
		PageInfo struct {
			HasNextPage bool `json:"hasNextPage"`
		} `json:"pageInfo"`
	} `json:"orders"`
}

// Orders returns the commerce-B orders adapter.Func: cursor-paginated
// GraphQL listing, upserted on the GID tail as platform_order_id.
func Orders(v *vault.Vault, b *budgeter.Budgeter, hc *httpclient.Client, accounts *connaccount.Store, orders *domain.OrderStore, tenants *tenant.Store) adapter.Func {
	return func(ctx context.Context, tenantID uuid.UUID) (int, error) {
		acct, err := accounts.Get(ctx, tenantID, vault.PlatformCommerceB)
		if err != nil {
			return 0, fmt.Errorf("loading connected account: %w", err)
		}
		cursor, _ := acct.SyncCursor["orders_cursor"].(string)

		client, err := New(ctx, v, b, hc, tenantID)
		if err != nil {
			return 0, err
		}

		var nodes []orderNode
		lastCursor := cursor

		for {
			vars := map[string]any{"first": 50}
			if lastCursor != "" {
				vars["after"] = lastCursor
			}
			raw, err := client.Graphql(ctx, ordersQuery, vars)
			if err != nil {
				return len(nodes), err
			}
			var resp ordersResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				return len(nodes), fmt.Errorf("decoding orders response: %w", err)
			}
			for _, e := range resp.Orders.Edges {
				nodes = append(nodes, e.Node)
				lastCursor = e.Cursor
			}
			if !resp.Orders.PageInfo.HasNextPage {
				break
			}
		}

		synced := 0
		for _, n := range nodes {
			orderID, err := orders.UpsertOrder(ctx, mapOrderNode(tenantID, n))
			if err != nil {
				return synced, err
			}
			for _, e := range n.LineItems.Edges {
				if err := orders.UpsertLineItem(ctx, mapLineItemNode(tenantID, orderID, e.Node)); err != nil {
					return synced, err
				}
			}
			synced++
		}

		if lastCursor != "" && lastCursor != cursor {
			if err := accounts.UpdateCursor(ctx, tenantID, vault.PlatformCommerceB, map[string]any{"orders_cursor": lastCursor}); err != nil {
				return synced, fmt.Errorf("updating orders cursor: %w", err)
			}
		}

		if synced > 0 {
			if err := tenants.IncrementOrderCount(ctx, tenantID, synced); err != nil {
				return synced, fmt.Errorf("incrementing order count: %w", err)
			}
		}
		return synced, nil
	}
}

func mapOrderNode(tenantID uuid.UUID, n orderNode) domain.Order {
	orderedAt, err := time.Parse(time.RFC3339, n.CreatedAt)
	if err != nil {
		orderedAt = time.Now().UTC()
	}
	currency := n.TotalPriceSet.ShopMoney.CurrencyCode
	if currency == "" {
		currency = "USD"
	}
	fulfillment := n.DisplayFulfillmentStatus
	if fulfillment == "" {
		fulfillment = "unfulfilled"
	}

	return domain.Order{
		TenantID:            tenantID,
		Platform:            "commerce-B",
		PlatformOrderID:     adapter.GIDTail(n.ID),
		PlatformOrderNumber: n.Name,
		Status:              "open",
		FinancialStatus:     n.DisplayFinancialStatus,
		FulfillmentStatus:   fulfillment,
		SubtotalCents:       adapter.ShopifyMoneyToCents(n.SubtotalPriceSet.ShopMoney.Amount),
		ShippingCents:       adapter.ShopifyMoneyToCents(n.TotalShippingPriceSet.ShopMoney.Amount),
		TaxCents:            adapter.ShopifyMoneyToCents(n.TotalTaxSet.ShopMoney.Amount),
		DiscountCents:       adapter.ShopifyMoneyToCents(n.TotalDiscountsSet.ShopMoney.Amount),
		TotalCents:          adapter.ShopifyMoneyToCents(n.TotalPriceSet.ShopMoney.Amount),
		Currency:            currency,
		OrderedAt:           orderedAt,
	}
}

func mapLineItemNode(tenantID, orderID uuid.UUID, n lineItemNode) domain.LineItem {
	unitPrice := adapter.ShopifyMoneyToCents(n.OriginalUnitPriceSet.ShopMoney.Amount)
	qty := n.Quantity
	if qty == 0 {
		qty = 1
	}
	var variantTitle string
	if n.Variant != nil {
		variantTitle = n.Variant.Title
	}
	return domain.LineItem{
		TenantID:           tenantID,
		OrderID:            orderID,
		PlatformLineItemID: n.ID,
		Title:              n.Title,
		Quantity:           qty,
		UnitPriceCents:     unitPrice,
		TotalCents:         unitPrice * int64(qty),
		SKU:                n.SKU,
		VariantTitle:       variantTitle,
	}
}
