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

// Payments returns the commerce-A payments-ledger adapter.Func: each ledger
// entry maps to a Fee row keyed on the platform ledger id, linked to the
// referenced order when the entry carries a receipt id that resolves.
func Payments(v *vault.Vault, b *budgeter.Budgeter, hc *httpclient.Client, accounts *connaccount.Store, orders *domain.OrderStore, fees *domain.FeeStore, apiKey string) adapter.Func {
	return func(ctx context.Context, tenantID uuid.UUID) (int, error) {
		acct, err := accounts.Get(ctx, tenantID, vault.PlatformCommerceA)
		if err != nil {
			return 0, fmt.Errorf("loading connected account: %w", err)
		}

		var minCreated int64
		if raw, ok := acct.SyncCursor["payments_last_ts"]; ok {
			if f, ok := raw.(float64); ok {
				minCreated = int64(f)
			}
		}

		client, err := New(ctx, v, b, hc, accounts, apiKey, tenantID)
		if err != nil {
			return 0, err
		}

		entries, err := client.GetAllLedgerEntries(ctx, minCreated)
		if err != nil {
			return 0, err
		}

		maxCreated := minCreated
		for _, e := range entries {
			currency := e.Currency
			if currency == "" {
				currency = "USD"
			}
			f := domain.Fee{
				TenantID:         tenantID,
				Platform:         "commerce-A",
				PlatformLedgerID: fmt.Sprint(e.EntryID),
				AmountCents:      e.Amount,
				FeeType:          e.Type,
				Currency:         currency,
			}
			if e.ReceiptID != nil {
				if orderID, err := orders.FindByPlatformOrderID(ctx, tenantID, fmt.Sprint(*e.ReceiptID)); err == nil {
					f.OrderID = &orderID
				}
			}
			if err := fees.Upsert(ctx, f); err != nil {
				return len(entries), err
			}
			if e.CreateTimestamp > maxCreated {
				maxCreated = e.CreateTimestamp
			}
		}

		if maxCreated > minCreated {
			if err := accounts.UpdateCursor(ctx, tenantID, vault.PlatformCommerceA, map[string]any{"payments_last_ts": maxCreated}); err != nil {
				return len(entries), fmt.Errorf("updating payments cursor: %w", err)
			}
		}
		return len(entries), nil
	}
}
