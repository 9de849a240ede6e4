package cadence

import (
	"testing"
	"time"

	"github.com/jedmorris/syncforge/pkg/tenant"
)

func TestPlatformParsesFirstToken(t *testing.T) {
	tests := map[string]string{
		"commerce-A_orders":    "commerce-A",
		"fulfillment-F_products": "fulfillment-F",
		"backfill_commerce-A":  "backfill",
		"commerce-B_customers": "commerce-B",
	}
	for jobType, want := range tests {
		if got := Platform(jobType); got != want {
			t.Errorf("Platform(%q) = %q, want %q", jobType, got, want)
		}
	}
}

func TestJobPriority(t *testing.T) {
	if got := JobPriority(tenant.PlanPro); got != PriorityPro {
		t.Errorf("pro priority = %d, want %d", got, PriorityPro)
	}
	for _, p := range []tenant.Plan{tenant.PlanFree, tenant.PlanStarter, tenant.PlanGrowth} {
		if got := JobPriority(p); got != PriorityDefault {
			t.Errorf("%s priority = %d, want %d", p, got, PriorityDefault)
		}
	}
}

func TestNextRunCadenceTable(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		jobType string
		plan    tenant.Plan
		want    time.Duration
	}{
		{"commerce-A_orders", tenant.PlanFree, 30 * time.Minute},
		{"commerce-A_orders", tenant.PlanStarter, 15 * time.Minute},
		{"commerce-A_orders", tenant.PlanGrowth, 5 * time.Minute},
		{"commerce-A_orders", tenant.PlanPro, 2 * time.Minute},
		{"commerce-A_listings", tenant.PlanFree, 60 * time.Minute},
		{"commerce-B_products", tenant.PlanPro, 15 * time.Minute},
		{"commerce-B_customers", tenant.PlanGrowth, 30 * time.Minute},
		{"commerce-A_payments", tenant.PlanStarter, 30 * time.Minute},
		{"fulfillment-F_fees", tenant.PlanPro, 10 * time.Minute},
	}

	for _, tt := range tests {
		got := NextRun(tt.jobType, tt.plan, now)
		if want := now.Add(tt.want); !got.Equal(want) {
			t.Errorf("NextRun(%q, %s) = %v, want %v", tt.jobType, tt.plan, got, want)
		}
	}
}
