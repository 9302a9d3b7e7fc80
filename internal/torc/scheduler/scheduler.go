// Package scheduler owns the ScheduledComputeNode status contract of spec
// §4.4/§4.9/§10: pending -> active -> complete, plus the cancel-driven
// canceling desired state. Slurm script generation itself is external to
// the core (spec §1); this package only maintains the state a scheduler
// adapter reads and writes.
package scheduler

import (
	"context"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/storage"
	"github.com/nrel/torc/internal/torc/torcerr"
)

var legalTransitions = map[domain.ScheduledComputeNodeStatus]map[domain.ScheduledComputeNodeStatus]bool{
	domain.ScheduledPending:   {domain.ScheduledActive: true, domain.ScheduledCanceling: true},
	domain.ScheduledActive:    {domain.ScheduledComplete: true, domain.ScheduledCanceling: true},
	domain.ScheduledCanceling: {domain.ScheduledComplete: true},
}

// Request creates a ScheduledComputeNode in the pending state, the entry
// point for a schedule_nodes action or a direct API request.
func Request(ctx context.Context, s storage.Storage, n *domain.ScheduledComputeNode) (int64, error) {
	n.Status = domain.ScheduledPending
	return s.CreateScheduledComputeNode(ctx, n)
}

// Activate marks a requested allocation active once a worker has attached
// (spec §4.9 step 4's counterpart at attach time).
func Activate(ctx context.Context, s storage.Storage, id int64) error {
	return transition(ctx, s, id, domain.ScheduledActive)
}

// Complete marks an allocation complete, called by the Orphan Monitor (spec
// §4.9 step 4) or by a worker's graceful shutdown.
func Complete(ctx context.Context, s storage.Storage, id int64) error {
	return transition(ctx, s, id, domain.ScheduledComplete)
}

// CancelAll moves every active ScheduledComputeNode in a workflow to
// canceling, the desired-state update spec §4.4's cancel operation makes
// ("updates all active ScheduledComputeNodes' desired state to canceling").
func CancelAll(ctx context.Context, s storage.Storage, workflowID int64) error {
	nodes, err := s.ListScheduledComputeNodes(ctx, workflowID, domain.ScheduledActive)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if err := transition(ctx, s, n.ID, domain.ScheduledCanceling); err != nil {
			return err
		}
	}
	return nil
}

func transition(ctx context.Context, s storage.Storage, id int64, to domain.ScheduledComputeNodeStatus) error {
	n, err := s.GetScheduledComputeNode(ctx, id)
	if err != nil {
		return err
	}
	if !legalTransitions[n.Status][to] {
		return torcerr.New(torcerr.InvalidArgument, "illegal scheduled compute node transition from "+string(n.Status)+" to "+string(to))
	}
	return s.SetScheduledComputeNodeStatus(ctx, id, to)
}
