package adapter

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jedmorris/syncforge/pkg/connaccount"
	"github.com/jedmorris/syncforge/pkg/synclog"
)

// StreamsByPlatform lists the full-history job_types a backfill run drives
// for each connected platform. Every one of these job_types must also be
// registered in the Registry the Backfill func closes over. The Scheduler's
// onboarding pass uses the same map to seed each stream's first recurring
// queue entry.
var StreamsByPlatform = map[string][]string{
	"commerce-A":    {"commerce-A_orders", "commerce-A_listings", "commerce-A_payments"},
	"commerce-B":    {"commerce-B_orders", "commerce-B_products", "commerce-B_customers"},
	"fulfillment-F": {"fulfillment-F_orders", "fulfillment-F_products"},
}

// Backfill returns the adapter.Func for job_type "backfill": it runs the
// full-history streams of every platform the tenant has connected,
// continuing past a per-platform failure instead of aborting the run. The
// worker runtime that invokes this func appends the single completion
// SyncLog record common to every job_type; this func only logs the
// per-platform failures along the way, since those would otherwise be lost
// once backfill moves on to the next platform.
//
// A backfill run relies on the normal incremental adapters doing the right
// thing on a freshly connected account: with no sync_cursor entry yet, each
// adapter naturally fetches full history. Rate-limit admission for each
// underlying HTTP call still happens per real platform inside the adapter's
// Session, not against the "backfill" pseudo-platform the Scheduler's rate
// gate always admits.
func Backfill(registry *Registry, accounts *connaccount.Store, syncLog *synclog.Store, logger *slog.Logger) Func {
	return func(ctx context.Context, tenantID uuid.UUID) (int, error) {
		platforms, err := accounts.ListPlatforms(ctx, tenantID)
		if err != nil {
			return 0, err
		}

		total := 0
		for _, platform := range platforms {
			streams, ok := StreamsByPlatform[platform]
			if !ok {
				continue
			}
			for _, jobType := range streams {
				fn, ok := registry.Lookup(jobType)
				if !ok {
					continue
				}
				records, err := fn(ctx, tenantID)
				total += records
				if err != nil {
					logger.Error("backfill: platform leg failed", "tenant_id", tenantID, "job_type", jobType, "error", err)
					msg := err.Error()
					if logErr := syncLog.Append(ctx, synclog.Entry{
						TenantID:         tenantID,
						Platform:         platform,
						JobType:          jobType,
						Status:           synclog.StatusError,
						ErrorMessage:     &msg,
						RecordsProcessed: records,
					}); logErr != nil {
						logger.Error("backfill: appending per-platform failure log", "error", logErr)
					}
				}
			}
		}

		return total, nil
	}
}
