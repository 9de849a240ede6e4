package printify

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

// saveCursorEvery checkpoints the cursor this often, for crash recovery on
// long-running syncs, and also whenever a single order fails to process.
const saveCursorEvery = 200

// Orders returns the fulfillment-F orders adapter.Func. Each order is
// matched against an existing commerce-A/commerce-B order by
// platform_order_id via its external.id; a match gets the production and
// shipping costs and a normalized fulfillment status applied. An
// unmatched order is inserted standalone under platform "fulfillment-F".
func Orders(v *vault.Vault, b *budgeter.Budgeter, hc *httpclient.Client, accounts *connaccount.Store, orders *domain.OrderStore, tenants *tenant.Store) adapter.Func {
	return func(ctx context.Context, tenantID uuid.UUID) (int, error) {
		acct, err := accounts.Get(ctx, tenantID, vault.PlatformFulfillmentF)
		if err != nil {
			return 0, fmt.Errorf("loading connected account: %w", err)
		}
		lastTS, _ := acct.SyncCursor["printify_orders_last_ts"].(string)

		client, err := New(ctx, v, b, hc, accounts, tenantID)
		if err != nil {
			return 0, err
		}

		all, err := client.GetAllOrders(ctx)
		if err != nil {
			return 0, err
		}

		filtered := all[:0:0]
		for _, o := range all {
			ts := o.UpdatedAt
			if ts == "" {
				ts = o.CreatedAt
			}
			if lastTS == "" || ts > lastTS {
				filtered = append(filtered, o)
			}
		}

		synced := 0
		newestTS := lastTS
		checkpoint := func() error {
			if newestTS != "" && newestTS != lastTS {
				return accounts.UpdateCursor(ctx, tenantID, vault.PlatformFulfillmentF, map[string]any{"printify_orders_last_ts": newestTS})
			}
			return nil
		}

		for _, o := range filtered {
			ts := o.UpdatedAt
			if ts == "" {
				ts = o.CreatedAt
			}
			if ts != "" && (newestTS == "" || ts > newestTS) {
				newestTS = ts
			}

			if err := syncOne(ctx, orders, tenantID, o); err != nil {
				if cerr := checkpoint(); cerr != nil {
					return synced, cerr
				}
				continue
			}
			synced++

			if synced%saveCursorEvery == 0 {
				if err := checkpoint(); err != nil {
					return synced, err
				}
			}
		}

		if err := checkpoint(); err != nil {
			return synced, err
		}
		return synced, nil
	}
}

func syncOne(ctx context.Context, orders *domain.OrderStore, tenantID uuid.UUID, o Order) error {
	var productionCost, shippingCost int64
	for _, li := range o.LineItems {
		productionCost += li.Cost
	}
	shippingCost = o.TotalShipping
	status := MapStatus(o.Status)

	if o.External.ID != "" {
		if existingID, err := orders.FindByPlatformOrderID(ctx, tenantID, o.External.ID); err == nil {
			return orders.ApplyFulfillmentUpdate(ctx, domain.FulfillmentUpdate{
				OrderID:             existingID,
				PrintifyOrderID:     o.ID,
				ProductionCostCents: productionCost,
				ShippingCostCents:   shippingCost,
				FulfillmentStatus:   status,
			})
		}
	}

	orderedAt, err := time.Parse(time.RFC3339, o.CreatedAt)
	if err != nil {
		orderedAt = time.Now().UTC()
	}

	printifyID := o.ID
	_, err = orders.UpsertOrder(ctx, domain.Order{
		TenantID:                    tenantID,
		Platform:                    "fulfillment-F",
		PlatformOrderID:             o.ID,
		Status:                      o.Status,
		FulfillmentStatus:           status,
		TotalCents:                  o.TotalPrice,
		Currency:                    "USD",
		OrderedAt:                   orderedAt,
		PrintifyOrderID:             &printifyID,
		PrintifyProductionCostCents: &productionCost,
		PrintifyShippingCostCents:   &shippingCost,
	})
	return err
}
