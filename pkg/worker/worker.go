// Package worker is the Sync Worker Runtime: it executes one claimed job
// end to end, transitions it to a terminal state, touches last_sync_at on
// success, notifies the tenant on failure, and always schedules the job's
// next recurring run.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jedmorris/syncforge/internal/syncerr"
	"github.com/jedmorris/syncforge/internal/telemetry"
	"github.com/jedmorris/syncforge/pkg/adapter"
	"github.com/jedmorris/syncforge/pkg/cadence"
	"github.com/jedmorris/syncforge/pkg/connaccount"
	"github.com/jedmorris/syncforge/pkg/notify"
	"github.com/jedmorris/syncforge/pkg/queue"
	"github.com/jedmorris/syncforge/pkg/synclog"
	"github.com/jedmorris/syncforge/pkg/tenant"
)

// Runtime executes claimed sync jobs.
type Runtime struct {
	jobs     *queue.Store
	accounts *connaccount.Store
	tenants  *tenant.Store
	syncLog  *synclog.Store
	registry *adapter.Registry
	notifier *notify.Notifier
	logger   *slog.Logger
}

// New constructs a worker Runtime.
func New(jobs *queue.Store, accounts *connaccount.Store, tenants *tenant.Store, syncLog *synclog.Store, registry *adapter.Registry, notifier *notify.Notifier, logger *slog.Logger) *Runtime {
	return &Runtime{
		jobs:     jobs,
		accounts: accounts,
		tenants:  tenants,
		syncLog:  syncLog,
		registry: registry,
		notifier: notifier,
		logger:   logger,
	}
}

// Run executes a single already-claimed (status=running) job, and always
// schedules its next recurring run before returning, regardless of outcome.
// A job that fails with syncerr.RateLimited is instead returned to the queue
// 5 minutes later, without a failure row, and stays its own next run.
func (r *Runtime) Run(ctx context.Context, job queue.Job) {
	start := time.Now()
	platform := cadence.Platform(job.JobType)

	records, runErr := r.execute(ctx, job)

	duration := time.Since(start)
	telemetry.JobDuration.WithLabelValues(job.JobType).Observe(duration.Seconds())

	var rateLimited *syncerr.RateLimited
	if errors.As(runErr, &rateLimited) {
		err := r.jobs.Defer(ctx, job.ID, time.Now().UTC().Add(5*time.Minute))
		if err == nil {
			r.logger.Warn("job rate limited, re-queued", "job_id", job.ID, "job_type", job.JobType)
			return
		}
		r.logger.Error("re-queueing rate-limited job", "job_id", job.ID, "error", err)
	}

	if runErr != nil {
		r.finishFailed(ctx, job, runErr)
	} else {
		r.finishCompleted(ctx, job, platform, records)
	}

	r.scheduleNext(ctx, job)
}

func (r *Runtime) execute(ctx context.Context, job queue.Job) (int, error) {
	fn, ok := r.registry.Lookup(job.JobType)
	if !ok {
		return 0, errors.New("no adapter registered for job_type " + job.JobType)
	}
	return fn(ctx, job.TenantID)
}

func (r *Runtime) finishCompleted(ctx context.Context, job queue.Job, platform string, records int) {
	if err := r.jobs.Transition(ctx, queue.TransitionParams{
		ID:               job.ID,
		Status:           queue.StatusCompleted,
		RecordsProcessed: &records,
	}); err != nil {
		r.logger.Error("transitioning job to completed", "job_id", job.ID, "error", err)
	}
	telemetry.JobsCompletedTotal.WithLabelValues(job.JobType, string(queue.StatusCompleted)).Inc()

	if err := r.accounts.TouchLastSync(ctx, job.TenantID, platform); err != nil {
		r.logger.Error("touching last_sync_at", "job_id", job.ID, "error", err)
	}

	if err := r.syncLog.Append(ctx, synclog.Entry{
		TenantID:         job.TenantID,
		Platform:         platform,
		JobType:          job.JobType,
		Status:           synclog.StatusSuccess,
		RecordsProcessed: records,
	}); err != nil {
		r.logger.Error("appending sync log", "job_id", job.ID, "error", err)
	}

	r.logger.Info("job completed", "job_id", job.ID, "job_type", job.JobType, "records", records)
}

func (r *Runtime) finishFailed(ctx context.Context, job queue.Job, runErr error) {
	msg := truncate(runErr.Error(), 500)
	if err := r.jobs.Transition(ctx, queue.TransitionParams{
		ID:           job.ID,
		Status:       queue.StatusFailed,
		ErrorMessage: &msg,
	}); err != nil {
		r.logger.Error("transitioning job to failed", "job_id", job.ID, "error", err)
	}
	telemetry.JobsCompletedTotal.WithLabelValues(job.JobType, string(queue.StatusFailed)).Inc()

	platform := cadence.Platform(job.JobType)
	if err := r.syncLog.Append(ctx, synclog.Entry{
		TenantID:     job.TenantID,
		Platform:     platform,
		JobType:      job.JobType,
		Status:       synclog.StatusError,
		ErrorMessage: &msg,
	}); err != nil {
		r.logger.Error("appending sync log", "job_id", job.ID, "error", err)
	}

	r.logger.Error("job failed", "job_id", job.ID, "job_type", job.JobType, "error", runErr)

	t, err := r.tenants.Get(ctx, job.TenantID)
	if err != nil {
		r.logger.Error("loading tenant for failure notification", "job_id", job.ID, "error", err)
		return
	}
	r.notifier.SyncFailure(ctx, t.NotificationEmail, job.JobType, msg)
}

// scheduleNext enqueues the job's next recurring run, mirroring the source
// system's schedule_next call in its finally block. Backfill is a one-time
// run triggered by onboarding, not a recurring stream, so it is excluded.
func (r *Runtime) scheduleNext(ctx context.Context, job queue.Job) {
	if job.JobType == "backfill" {
		return
	}

	pending, err := r.jobs.HasPendingRun(ctx, job.TenantID, job.JobType)
	if err != nil {
		r.logger.Error("checking pending run before reschedule", "job_id", job.ID, "error", err)
		return
	}
	if pending {
		return
	}

	plan, err := r.tenants.Plan(ctx, job.TenantID)
	if err != nil {
		r.logger.Error("loading plan for reschedule", "job_id", job.ID, "error", err)
		return
	}

	next := cadence.NextRun(job.JobType, plan, time.Now().UTC())
	priority := cadence.JobPriority(plan)
	if _, err := r.jobs.Enqueue(ctx, job.TenantID, job.JobType, priority, next); err != nil {
		r.logger.Error("scheduling next run", "job_id", job.ID, "error", err)
	}
}

// truncate returns the first n runes of s, per the spec's 500-char error
// message cap on terminal job failures.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
