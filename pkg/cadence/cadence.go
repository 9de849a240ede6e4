// Package cadence computes per-plan scheduling intervals and job priority,
// per SPEC_FULL.md §4.6.
package cadence

import (
	"strings"
	"time"

	"github.com/jedmorris/syncforge/pkg/tenant"
)

// StreamFamily buckets a job_type's stream into one of the three cadence
// rows in the per-plan table.
type StreamFamily string

const (
	StreamOrders              StreamFamily = "orders"
	StreamListingsOrProducts  StreamFamily = "listings_products_customers"
	StreamPaymentsOrFees      StreamFamily = "payments_fees"
)

// minutesByPlan maps (family, plan) to minutes between successive runs.
var minutesByPlan = map[StreamFamily]map[tenant.Plan]int{
	StreamOrders: {
		tenant.PlanFree: 30, tenant.PlanStarter: 15, tenant.PlanGrowth: 5, tenant.PlanPro: 2,
	},
	StreamListingsOrProducts: {
		tenant.PlanFree: 60, tenant.PlanStarter: 30, tenant.PlanGrowth: 30, tenant.PlanPro: 15,
	},
	StreamPaymentsOrFees: {
		tenant.PlanFree: 60, tenant.PlanStarter: 30, tenant.PlanGrowth: 15, tenant.PlanPro: 10,
	},
}

// streamFamilyOf classifies a job_type by its stream suffix.
func streamFamilyOf(jobType string) StreamFamily {
	switch {
	case strings.Contains(jobType, "listings"), strings.Contains(jobType, "products"), strings.Contains(jobType, "customers"):
		return StreamListingsOrProducts
	case strings.Contains(jobType, "payments"), strings.Contains(jobType, "fees"):
		return StreamPaymentsOrFees
	default:
		return StreamOrders
	}
}

// NextRun returns the scheduled_at for the next recurring run of jobType for
// a tenant on the given plan, relative to now.
func NextRun(jobType string, plan tenant.Plan, now time.Time) time.Time {
	family := streamFamilyOf(jobType)
	minutes, ok := minutesByPlan[family][plan]
	if !ok {
		minutes = minutesByPlan[StreamOrders][tenant.PlanFree]
	}
	return now.Add(time.Duration(minutes) * time.Minute)
}

// Priority values from SPEC_FULL.md §4.6.
const (
	PriorityDefault  = 0
	PriorityPro      = 1
	PriorityBackfill = 5
	PriorityInitial  = 10
)

// JobPriority returns 1 for pro tenants, else 0, for recurring jobs.
func JobPriority(plan tenant.Plan) int {
	if plan == tenant.PlanPro {
		return PriorityPro
	}
	return PriorityDefault
}

// Platform returns the first '_'-delimited token of a job_type, e.g.
// "commerce-A" from "commerce-A_orders", "backfill" from
// "backfill_commerce-A".
func Platform(jobType string) string {
	if idx := strings.Index(jobType, "_"); idx >= 0 {
		return jobType[:idx]
	}
	return jobType
}
