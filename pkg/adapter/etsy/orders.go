package etsy

import (
	"context"
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

// Orders returns the commerce-A orders adapter.Func, reading
// sync_cursor["orders_last_ts"], paging receipts by min_created, upserting
// each receipt as an order and its transactions as line items, and
// persisting the max create_timestamp seen.
func Orders(v *vault.Vault, b *budgeter.Budgeter, hc *httpclient.Client, accounts *connaccount.Store, orders *domain.OrderStore, tenants *tenant.Store, apiKey string) adapter.Func {
	return func(ctx context.Context, tenantID uuid.UUID) (int, error) {
		acct, err := accounts.Get(ctx, tenantID, vault.PlatformCommerceA)
		if err != nil {
			return 0, fmt.Errorf("loading connected account: %w", err)
		}

		var minCreated int64
		if raw, ok := acct.SyncCursor["orders_last_ts"]; ok {
			if f, ok := raw.(float64); ok {
				minCreated = int64(f)
			}
		}

		client, err := New(ctx, v, b, hc, accounts, apiKey, tenantID)
		if err != nil {
			return 0, err
		}

		receipts, err := client.GetAllReceipts(ctx, minCreated)
		if err != nil {
			return 0, err
		}

		synced := 0
		latest := minCreated
		for _, r := range receipts {
			orderID, err := orders.UpsertOrder(ctx, mapReceiptToOrder(tenantID, r))
			if err != nil {
				return synced, err
			}
			for _, txn := range r.Transactions {
				if err := orders.UpsertLineItem(ctx, mapTransactionToLineItem(tenantID, orderID, txn)); err != nil {
					return synced, err
				}
			}
			if r.CreateTimestamp > latest {
				latest = r.CreateTimestamp
			}
			synced++
		}

		if latest > minCreated {
			if err := accounts.UpdateCursor(ctx, tenantID, vault.PlatformCommerceA, map[string]any{"orders_last_ts": latest}); err != nil {
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

func mapReceiptToOrder(tenantID uuid.UUID, r Receipt) domain.Order {
	status := "unknown"
	if r.Status != "" {
		status = r.Status
	}
	financial := "pending"
	if r.WasPaid {
		financial = "paid"
	}
	fulfillment := "unfulfilled"
	if r.WasShipped {
		fulfillment = "shipped"
	}
	currency := r.Subtotal.Currency
	if currency == "" {
		currency = "USD"
	}

	return domain.Order{
		TenantID:            tenantID,
		Platform:            "commerce-A",
		PlatformOrderID:     fmt.Sprint(r.ReceiptID),
		PlatformOrderNumber: fmt.Sprint(r.ReceiptID),
		Status:              status,
		FinancialStatus:     financial,
		FulfillmentStatus:   fulfillment,
		SubtotalCents:       adapter.ToCents(r.Subtotal),
		ShippingCents:       adapter.ToCents(r.TotalShippingCost),
		TaxCents:            adapter.ToCents(r.TotalTaxCost),
		DiscountCents:       adapter.ToCents(r.DiscountAmt),
		TotalCents:          adapter.ToCents(r.Grandtotal),
		Currency:            currency,
		OrderedAt:           time.Unix(r.CreateTimestamp, 0).UTC(),
	}
}

func mapTransactionToLineItem(tenantID, orderID uuid.UUID, txn Transaction) domain.LineItem {
	unitPrice := adapter.ToCents(txn.Price)
	qty := txn.Quantity
	if qty == 0 {
		qty = 1
	}
	return domain.LineItem{
		TenantID:           tenantID,
		OrderID:            orderID,
		PlatformLineItemID: fmt.Sprint(txn.TransactionID),
		Title:              txn.Title,
		Quantity:           qty,
		UnitPriceCents:     unitPrice,
		TotalCents:         unitPrice * int64(qty),
		SKU:                txn.SKU,
	}
}
