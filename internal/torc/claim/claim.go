// Package claim implements the Claim Engine of spec §4.6: the single entry
// point workers use to take jobs off the ready set. It wraps
// storage.ClaimJobs with the serialization-conflict retry loop and the
// workflow-cancellation short-circuit; ordering and atomicity are entirely
// storage's responsibility (spec I1: disjoint claims).
//
// Grounded on the teacher's scheduler claim loop
// (jsturma-joblet/internal/joblet/scheduler/priority_queue.go), adapted from
// an in-memory priority queue pop to a storage-backed atomic UPDATE, with
// the teacher's FIFO tie-break preserved (lowest job id wins).
package claim

import (
	"context"
	"time"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/metrics"
	"github.com/nrel/torc/internal/torc/storage"
)

// MaxRetryAttempts bounds the serialization-conflict retry loop before a
// claim surfaces torcerr.ResourceBusy to the caller.
const MaxRetryAttempts = 5

// Engine claims Ready jobs on behalf of a worker.
type Engine struct {
	store storage.Storage
}

func New(store storage.Storage) *Engine {
	return &Engine{store: store}
}

// Next claims up to limit Ready jobs for computeNodeID, narrowed by
// selector. Returns an empty slice, not an error, if the workflow is
// canceled (spec §4.6: "a canceled workflow yields no further claims").
func (e *Engine) Next(ctx context.Context, workflowID int64, limit int, selector *storage.ClaimSelector, computeNodeID int64) ([]*domain.Job, error) {
	defer metrics.ObserveClaimLatency(time.Now())

	status, err := e.store.GetWorkflowStatus(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if status.IsCanceled || status.IsComplete {
		return nil, nil
	}

	var claimed []*domain.Job
	err = storage.RetryOnConflict(ctx, MaxRetryAttempts, func() error {
		return e.store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
			jobs, err := s.ClaimJobs(ctx, workflowID, limit, selector, &computeNodeID)
			if err != nil {
				return err
			}
			claimed = jobs
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}
