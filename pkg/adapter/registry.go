// Package adapter holds the static job_type -> adapter function registry
// and the shared money/pagination helpers every platform adapter uses.
//
// Re-architecture note: the source system dispatched on job_type strings via
// import-by-name. This registry is the static substitute, populated once at
// startup rather than via package init().
package adapter

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Func runs one sync job for a tenant and returns the number of records
// processed.
type Func func(ctx context.Context, tenantID uuid.UUID) (int, error)

// Registry maps job_type to the adapter function that handles it.
type Registry struct {
	fns map[string]Func
}

// NewRegistry returns an empty Registry ready for Register calls.
func NewRegistry() *Registry {
	return &Registry{fns: map[string]Func{}}
}

// Register adds a job_type handler. Panics on duplicate registration, since
// that indicates a startup wiring bug, not a runtime condition.
func (r *Registry) Register(jobType string, fn Func) {
	if _, exists := r.fns[jobType]; exists {
		panic(fmt.Sprintf("adapter: duplicate registration for job_type %q", jobType))
	}
	r.fns[jobType] = fn
}

// Lookup returns the handler for job_type, or ok=false if none is registered.
func (r *Registry) Lookup(jobType string) (Func, bool) {
	fn, ok := r.fns[jobType]
	return fn, ok
}
