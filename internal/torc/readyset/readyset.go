// Package readyset implements the Ready Set view of spec §4.3: a thin,
// read-only query over the jobs the Claim Engine is eligible to hand out
// next. It holds no state of its own; "the ready set" is simply every Ready
// job in storage at the moment of the call (spec's I6: the ready set is
// always consistent with the dependency graph because only the Status
// Machine ever assigns Ready, and only after its blockers are satisfied).
package readyset

import (
	"context"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/storage"
)

// List returns every Ready job in the workflow, in the same id order the
// Claim Engine will hand them out in (spec §4.6's FIFO/tie-break-by-id).
func List(ctx context.Context, s storage.Storage, workflowID int64) ([]*domain.Job, error) {
	return s.ListReadyJobs(ctx, workflowID)
}

// Count reports the size of the ready set without materializing it, for
// status endpoints and metrics.
func Count(ctx context.Context, s storage.Storage, workflowID int64) (int, error) {
	jobs, err := s.ListReadyJobs(ctx, workflowID)
	if err != nil {
		return 0, err
	}
	return len(jobs), nil
}
