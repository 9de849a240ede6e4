// Package synclog appends one event record per sync attempt: tenant,
// platform, job type, status, optional error, counts, timestamps.
package synclog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is the terminal outcome of a single sync attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Store appends rows to the sync_log table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a synclog Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Entry is one append-only sync_log row.
type Entry struct {
	TenantID         uuid.UUID
	Platform         string
	JobType          string
	Status           Status
	ErrorMessage     *string
	RecordsProcessed int
	Details          map[string]any
}

// Append writes one entry. A failure here is logged by the caller and never
// aborts the run it describes.
func (s *Store) Append(ctx context.Context, e Entry) error {
	var details []byte
	if e.Details != nil {
		var err error
		details, err = json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("encoding sync_log details: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_log (tenant_id, platform, job_type, status, error_message, records_processed, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`, e.TenantID, e.Platform, e.JobType, e.Status, e.ErrorMessage, e.RecordsProcessed, details)
	if err != nil {
		return fmt.Errorf("appending sync_log entry: %w", err)
	}
	return nil
}
