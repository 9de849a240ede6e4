// Package budgeter allocates each platform's shared daily API quota fairly
// across tenants and admits or denies individual requests.
package budgeter

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jedmorris/syncforge/internal/telemetry"
)

const safetyFactor = 0.8

// PlatformDailyQuota is the upstream's published per-key daily request
// budget, shared across every tenant connected to that platform.
var PlatformDailyQuota = map[string]int{
	"commerce-A":     10000,
	"commerce-B":     80,
	"fulfillment-F":  10000,
}

// counterKey identifies one (date, platform, tenant) counter.
type counterKey struct {
	date     string
	platform string
	tenant   string
}

// LedgerStore is the minimal persistence contract the Budgeter needs: flush
// the in-memory ledger, and seed from today's rows on startup.
type LedgerStore interface {
	Flush(ctx context.Context, date string, tenantCounts map[counterKeyExport]int, globalCounts map[string]int) error
	SeedToday(ctx context.Context, date string) (tenantCounts map[counterKeyExport]int, globalCounts map[string]int, err error)
	ActiveTenantCounts(ctx context.Context) (map[string]int, error)
}

// counterKeyExport mirrors counterKey for callers outside the package (Go
// does not allow exporting a type alias to an unexported struct's fields
// cleanly any other way without duplicating the shape).
type counterKeyExport struct {
	Platform string
	Tenant   string
}

// Budgeter is the Rate Budgeter. One instance is shared by every adapter
// call in a process.
type Budgeter struct {
	mu sync.Mutex

	tenantUsed map[counterKey]int
	globalUsed map[string]int // keyed by platform; cleared on day rollover
	activeTenants map[string]int
	today      string
	lastFlush time.Time

	store LedgerStore
}

// New constructs a Budgeter. Call Seed once at startup before serving
// traffic.
func New(store LedgerStore) *Budgeter {
	return &Budgeter{
		tenantUsed:    map[counterKey]int{},
		globalUsed:    map[string]int{},
		activeTenants: map[string]int{},
		today:         utcDate(time.Now()),
		store:         store,
	}
}

func utcDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// rolloverLocked resets counters on first access of a new UTC day. Caller
// must hold mu.
func (b *Budgeter) rolloverLocked() {
	now := utcDate(time.Now())
	if now == b.today {
		return
	}
	b.today = now
	b.tenantUsed = map[counterKey]int{}
	b.globalUsed = map[string]int{}
}

func (b *Budgeter) perTenantBudget(platform string) int {
	quota := PlatformDailyQuota[platform]
	active := b.activeTenants[platform]
	if active < 1 {
		active = 1
	}
	return int(math.Floor(float64(quota) / float64(active) * safetyFactor))
}

// CanRequest reports whether tenant may issue one more request to platform.
func (b *Budgeter) CanRequest(tenant, platform string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()

	quota := PlatformDailyQuota[platform]
	globalUsed := b.globalUsed[platform]
	if globalUsed >= quota {
		return false
	}

	perTenant := b.perTenantBudget(platform)
	used := b.tenantUsed[counterKey{date: b.today, platform: platform, tenant: tenant}]
	return used < perTenant
}

// Record increments both the tenant and global counters after a request has
// been issued.
func (b *Budgeter) Record(tenant, platform string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()

	b.tenantUsed[counterKey{date: b.today, platform: platform, tenant: tenant}] += n
	b.globalUsed[platform] += n

	telemetry.BudgeterTenantUsed.WithLabelValues(platform, tenant).Set(float64(b.tenantUsed[counterKey{date: b.today, platform: platform, tenant: tenant}]))
	telemetry.BudgeterGlobalUsed.WithLabelValues(platform).Set(float64(b.globalUsed[platform]))
}

// Remaining returns max(per_tenant - tenant_used, 0).
func (b *Budgeter) Remaining(tenant, platform string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()

	perTenant := b.perTenantBudget(platform)
	used := b.tenantUsed[counterKey{date: b.today, platform: platform, tenant: tenant}]
	remaining := perTenant - used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot struct for observability.
type Snapshot struct {
	Platform      string
	GlobalUsed    int
	GlobalQuota   int
	ActiveTenants int
	PerTenant     int
}

// Snapshot returns all numbers for one platform.
func (b *Budgeter) Snapshot(platform string) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()

	return Snapshot{
		Platform:      platform,
		GlobalUsed:    b.globalUsed[platform],
		GlobalQuota:   PlatformDailyQuota[platform],
		ActiveTenants: b.activeTenants[platform],
		PerTenant:     b.perTenantBudget(platform),
	}
}

// RefreshActiveTenants recomputes active-tenant counts from the row-store.
// Failures are non-fatal; last-known values are retained.
func (b *Budgeter) RefreshActiveTenants(ctx context.Context) error {
	counts, err := b.store.ActiveTenantCounts(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activeTenants = counts
	return nil
}

// Flush upserts the in-memory ledger to the row-store on a minimum
// interval (default 60s) unless forced.
func (b *Budgeter) Flush(ctx context.Context, force bool) error {
	b.mu.Lock()
	if !force && time.Since(b.lastFlush) < 60*time.Second {
		b.mu.Unlock()
		return nil
	}
	b.rolloverLocked()

	tenantCounts := make(map[counterKeyExport]int, len(b.tenantUsed))
	for k, v := range b.tenantUsed {
		if k.date != b.today {
			continue
		}
		tenantCounts[counterKeyExport{Platform: k.platform, Tenant: k.tenant}] = v
	}
	globalCounts := make(map[string]int, len(b.globalUsed))
	for k, v := range b.globalUsed {
		globalCounts[k] = v
	}
	date := b.today
	b.mu.Unlock()

	if err := b.store.Flush(ctx, date, tenantCounts, globalCounts); err != nil {
		return err
	}

	b.mu.Lock()
	b.lastFlush = time.Now()
	b.mu.Unlock()
	return nil
}

// Seed loads today's ledger rows into memory so restarts don't re-use quota
// already spent.
func (b *Budgeter) Seed(ctx context.Context) error {
	date := utcDate(time.Now())
	tenantCounts, globalCounts, err := b.store.SeedToday(ctx, date)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.today = date
	for k, v := range tenantCounts {
		b.tenantUsed[counterKey{date: date, platform: k.Platform, tenant: k.Tenant}] = v
	}
	for k, v := range globalCounts {
		b.globalUsed[k] = v
	}
	return nil
}
