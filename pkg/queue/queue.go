// Package queue implements the SyncJob table: a durable, row-store-backed
// FIFO with states {queued, running, completed, failed}, priority,
// scheduled-at, and per-tenant/job-type uniqueness of the next run.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is a SyncJob lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one SyncJob row.
type Job struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	JobType          string
	Status           Status
	Priority         int
	ScheduledAt      time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	ErrorMessage     *string
	RecordsProcessed *int
}

const jobColumns = `id, tenant_id, job_type, status, priority, scheduled_at, started_at, completed_at, error_message, records_processed`

// Store provides database operations for sync jobs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a queue Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.TenantID, &j.JobType, &j.Status, &j.Priority, &j.ScheduledAt,
		&j.StartedAt, &j.CompletedAt, &j.ErrorMessage, &j.RecordsProcessed)
	return j, err
}

func scanJobs(rows pgx.Rows) ([]Job, error) {
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// HasPendingRun reports whether (tenant, job_type) already has a queued row,
// enforcing invariant 2 before Enqueue is called.
func (s *Store) HasPendingRun(ctx context.Context, tenantID uuid.UUID, jobType string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM sync_jobs WHERE tenant_id = $1 AND job_type = $2 AND status = $3)
	`, tenantID, jobType, StatusQueued).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking pending run: %w", err)
	}
	return exists, nil
}

// Enqueue inserts a new queued job. Callers MUST check HasPendingRun first
// for recurring runs; Enqueue itself does not dedupe (onboarding/backfill
// jobs are intentionally allowed to coexist with a recurring queued job).
func (s *Store) Enqueue(ctx context.Context, tenantID uuid.UUID, jobType string, priority int, scheduledAt time.Time) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sync_jobs (tenant_id, job_type, status, priority, scheduled_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, tenantID, jobType, StatusQueued, priority, scheduledAt).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueuing job: %w", err)
	}
	return id, nil
}

// ClaimBatch atomically claims up to size ready queued jobs, ordered by
// priority DESC, scheduled_at ASC, transitioning them to running in the same
// statement. FOR UPDATE SKIP LOCKED plus the UPDATE...RETURNING gives
// at-most-once claim under concurrent dispatchers without a separate
// row-locking round trip.
func (s *Store) ClaimBatch(ctx context.Context, size int, now time.Time) ([]Job, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE sync_jobs
		SET status = 'running', started_at = $2
		WHERE id IN (
			SELECT id FROM sync_jobs
			WHERE status = 'queued' AND scheduled_at <= $2
			ORDER BY priority DESC, scheduled_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, size, now)
	if err != nil {
		return nil, fmt.Errorf("claiming batch: %w", err)
	}
	return scanJobs(rows)
}

// TransitionParams is the payload for Transition: the new status plus the
// error message and record count a terminal status stores.
type TransitionParams struct {
	ID               uuid.UUID
	Status           Status
	ErrorMessage     *string
	RecordsProcessed *int
}

// Transition moves a job to a new status, stamping started_at on running and
// completed_at on any terminal status.
func (s *Store) Transition(ctx context.Context, p TransitionParams) error {
	now := time.Now().UTC()
	var query string
	var args []any

	switch p.Status {
	case StatusRunning:
		query = `UPDATE sync_jobs SET status = $2, started_at = $3 WHERE id = $1`
		args = []any{p.ID, p.Status, now}
	case StatusCompleted, StatusFailed:
		query = `UPDATE sync_jobs SET status = $2, completed_at = $3, error_message = $4, records_processed = $5 WHERE id = $1`
		args = []any{p.ID, p.Status, now, p.ErrorMessage, p.RecordsProcessed}
	default:
		query = `UPDATE sync_jobs SET status = $2 WHERE id = $1`
		args = []any{p.ID, p.Status}
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("transitioning job %s to %s: %w", p.ID, p.Status, err)
	}
	return nil
}

// Defer pushes scheduled_at forward and puts a claimed job back to queued.
// Used by the Scheduler's rate gate when a claimed job can't run yet.
func (s *Store) Defer(ctx context.Context, id uuid.UUID, newScheduledAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sync_jobs SET status = 'queued', scheduled_at = $2, started_at = NULL WHERE id = $1
	`, id, newScheduledAt)
	if err != nil {
		return fmt.Errorf("deferring job %s: %w", id, err)
	}
	return nil
}

// ReapStale transitions jobs stuck in running past staleMinutes to failed,
// and returns how many were reaped.
func (s *Store) ReapStale(ctx context.Context, staleMinutes int) (int, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(staleMinutes) * time.Minute)
	msg := fmt.Sprintf("Stale: still running after %d min", staleMinutes)

	tag, err := s.pool.Exec(ctx, `
		UPDATE sync_jobs
		SET status = 'failed', completed_at = now(), error_message = $2
		WHERE status = 'running' AND started_at < $1
	`, cutoff, msg)
	if err != nil {
		return 0, fmt.Errorf("reaping stale jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
