// Package scheduler polls the sync job queue, reaps stale runs, admits
// claimed jobs through the plan and rate gates, and dispatches admitted
// jobs to the worker runtime. Grounded on the tick-loop shape of the
// reference service's escalation engine: a ticker, a per-tick pass that logs and
// continues on a per-item error instead of aborting the whole tick.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jedmorris/syncforge/internal/telemetry"
	"github.com/jedmorris/syncforge/pkg/adapter"
	"github.com/jedmorris/syncforge/pkg/budgeter"
	"github.com/jedmorris/syncforge/pkg/cadence"
	"github.com/jedmorris/syncforge/pkg/connaccount"
	"github.com/jedmorris/syncforge/pkg/queue"
	"github.com/jedmorris/syncforge/pkg/tenant"
)

// DispatchChannel is the pub/sub channel a dispatched job_id is announced
// on, mirroring the reference escalation engine's use of Redis as a
// low-latency fan-out notice rather than a source of truth — the queue
// table remains authoritative; nothing subscribes to this for correctness.
const DispatchChannel = "syncforge:dispatch"

// Worker is the subset of the worker runtime the Scheduler dispatches to.
// Defined here to keep this package the import root; pkg/worker implements it.
type Worker interface {
	Run(ctx context.Context, job queue.Job)
}

// Scheduler is the Scheduler/Dispatcher.
type Scheduler struct {
	jobs      *queue.Store
	tenants   *tenant.Store
	accounts  *connaccount.Store
	budget    *budgeter.Budgeter
	worker    Worker
	rdb       *redis.Client // optional; nil disables the dispatch notice
	logger    *slog.Logger
	interval     time.Duration
	batchSize    int
	staleMinutes int
	concurrency  int
}

// Config carries the tunables the scheduler needs at construction.
type Config struct {
	Interval     time.Duration
	BatchSize    int
	StaleMinutes int
	Concurrency  int
}

// New constructs a Scheduler. rdb may be nil, which disables the Redis
// dispatch notice without affecting dispatch itself.
func New(jobs *queue.Store, tenants *tenant.Store, accounts *connaccount.Store, budget *budgeter.Budgeter, worker Worker, rdb *redis.Client, logger *slog.Logger, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.StaleMinutes <= 0 {
		cfg.StaleMinutes = 15
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Scheduler{
		jobs:         jobs,
		tenants:      tenants,
		accounts:     accounts,
		budget:       budget,
		worker:       worker,
		rdb:          rdb,
		logger:       logger,
		interval:     cfg.Interval,
		batchSize:    cfg.BatchSize,
		staleMinutes: cfg.StaleMinutes,
		concurrency:  cfg.Concurrency,
	}
}

// Run blocks, ticking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "batch_size", s.batchSize)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	sem := make(chan struct{}, s.concurrency)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx, sem)
		}
	}
}

// tick reaps stale jobs, claims a batch, and admits or defers each claimed
// job before dispatching to the worker pool.
func (s *Scheduler) tick(ctx context.Context, sem chan struct{}) {
	if err := s.budget.RefreshActiveTenants(ctx); err != nil {
		s.logger.Error("refreshing active tenant counts", "error", err)
	}

	s.seedOnboarding(ctx)

	reaped, err := s.jobs.ReapStale(ctx, s.staleMinutes)
	if err != nil {
		s.logger.Error("reaping stale jobs", "error", err)
	} else if reaped > 0 {
		telemetry.JobsStaleReapedTotal.Add(float64(reaped))
		s.logger.Warn("reaped stale jobs", "count", reaped)
	}

	now := time.Now().UTC()
	claimed, err := s.jobs.ClaimBatch(ctx, s.batchSize, now)
	if err != nil {
		s.logger.Error("claiming job batch", "error", err)
		return
	}

	if err := s.budget.Flush(ctx, false); err != nil {
		s.logger.Error("flushing rate ledger", "error", err)
	}

	for _, job := range claimed {
		telemetry.JobsClaimedTotal.WithLabelValues(job.JobType).Inc()

		admitted, err := s.admit(ctx, job, now)
		if err != nil {
			s.logger.Error("admitting job", "job_id", job.ID, "job_type", job.JobType, "error", err)
			continue
		}
		if !admitted {
			continue
		}

		select {
		case sem <- struct{}{}:
		default:
			// Every worker slot is busy: return the job to the queue for the
			// next tick rather than block this one.
			if err := s.jobs.Defer(ctx, job.ID, now); err != nil {
				s.logger.Error("requeueing job: worker pool full", "job_id", job.ID, "error", err)
			}
			continue
		}

		s.announce(ctx, job)

		go func(job queue.Job) {
			defer func() { <-sem }()
			s.worker.Run(ctx, job)
		}(job)
	}
}

// seedOnboarding gives every connected account that has never completed a
// sync its one-time backfill run plus the first queued entry of each of its
// recurring streams, per spec: "Backfill jobs scheduled by onboarding use
// priority 5; initial platform syncs use priority 10." Both checks are
// idempotent via HasPendingRun, so a tick that races a prior tick's enqueue
// is harmless.
func (s *Scheduler) seedOnboarding(ctx context.Context) {
	accounts, err := s.accounts.ListUninitialized(ctx)
	if err != nil {
		s.logger.Error("listing uninitialized accounts", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, acct := range accounts {
		pending, err := s.jobs.HasPendingRun(ctx, acct.TenantID, "backfill")
		if err != nil {
			s.logger.Error("checking pending backfill", "tenant_id", acct.TenantID, "error", err)
		} else if !pending {
			if _, err := s.jobs.Enqueue(ctx, acct.TenantID, "backfill", cadence.PriorityBackfill, now); err != nil {
				s.logger.Error("seeding backfill job", "tenant_id", acct.TenantID, "error", err)
			}
		}

		for _, jobType := range adapter.StreamsByPlatform[acct.Platform] {
			pending, err := s.jobs.HasPendingRun(ctx, acct.TenantID, jobType)
			if err != nil {
				s.logger.Error("checking pending initial sync", "tenant_id", acct.TenantID, "job_type", jobType, "error", err)
				continue
			}
			if pending {
				continue
			}
			if _, err := s.jobs.Enqueue(ctx, acct.TenantID, jobType, cadence.PriorityInitial, now); err != nil {
				s.logger.Error("seeding initial sync job", "tenant_id", acct.TenantID, "job_type", jobType, "error", err)
			}
		}
	}
}

// announce publishes a best-effort dispatch notice. The queue table is the
// only source of truth; a missed or failed publish never affects dispatch.
func (s *Scheduler) announce(ctx context.Context, job queue.Job) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Publish(ctx, DispatchChannel, job.ID.String()).Err(); err != nil {
		s.logger.Warn("publishing dispatch notice", "job_id", job.ID, "error", err)
	}
}

// admit applies the plan gate then the rate gate to a claimed job. It
// returns false (never dispatch) whenever the job was failed or deferred.
func (s *Scheduler) admit(ctx context.Context, job queue.Job, now time.Time) (bool, error) {
	status, err := s.tenants.PlanStatus(ctx, job.TenantID)
	if err != nil {
		return false, err
	}
	if status != tenant.PlanStatusActive {
		msg := "User plan inactive or past_due"
		telemetry.JobsDeferredTotal.WithLabelValues(job.JobType, "plan_gate").Inc()
		return false, s.jobs.Transition(ctx, queue.TransitionParams{
			ID:           job.ID,
			Status:       queue.StatusFailed,
			ErrorMessage: &msg,
		})
	}

	if job.JobType == "backfill" {
		return true, nil
	}

	platform := cadence.Platform(job.JobType)
	// Job types whose platform has no daily quota (the newsletter
	// maintenance jobs) are not rate-gated.
	if _, metered := budgeter.PlatformDailyQuota[platform]; !metered {
		return true, nil
	}
	if !s.budget.CanRequest(job.TenantID.String(), platform) {
		telemetry.JobsDeferredTotal.WithLabelValues(job.JobType, "rate_gate").Inc()
		snap := s.budget.Snapshot(platform)
		s.logger.Warn("deferring job: rate budget exhausted",
			"job_id", job.ID, "job_type", job.JobType, "platform", platform,
			"tenant_remaining", s.budget.Remaining(job.TenantID.String(), platform),
			"global_used", snap.GlobalUsed, "global_quota", snap.GlobalQuota,
		)
		return false, s.jobs.Defer(ctx, job.ID, now.Add(5*time.Minute))
	}

	return true, nil
}
