// Package orphan implements the Orphan Monitor of spec §4.9: a periodic
// sweep that reconciles each workflow's active ComputeNodes against an
// external liveness signal and fails their in-flight jobs with the sentinel
// return code when a node is found dead.
//
// Liveness itself (pid heartbeat, scheduler query, explicit shutdown) is
// external to the core per spec §1's scope cut; LivenessChecker is the seam
// the core contracts with it through.
//
// Grounded on the teacher's scheduler reconciliation tick
// (jsturma-joblet/internal/joblet/scheduler/reconciler.go) for the
// "list active, probe, react" shape, with robfig/cron/v3 driving the timer
// the way the teacher's own cron-backed janitor does
// (jsturma-joblet/internal/joblet/janitor).
package orphan

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/metrics"
	"github.com/nrel/torc/internal/torc/statemachine"
	"github.com/nrel/torc/internal/torc/storage"
)

// LivenessChecker reports whether a ComputeNode is still alive. Production
// wiring supplies one implementation per node_type (pid-heartbeat for
// local, scheduler-query for slurm); tests supply a fake.
type LivenessChecker interface {
	IsAlive(ctx context.Context, node *domain.ComputeNode) (bool, error)
}

// Monitor runs the periodic reconciliation sweep across every workflow with
// active ComputeNodes.
type Monitor struct {
	store    storage.Storage
	sm       *statemachine.Engine
	liveness LivenessChecker
	log      *zap.SugaredLogger
	workflowIDs func(ctx context.Context) ([]int64, error)
}

// New constructs a Monitor. workflowIDs supplies the set of workflows to
// sweep each tick (typically "every non-archived workflow with is_complete
// = false").
func New(store storage.Storage, sm *statemachine.Engine, liveness LivenessChecker, log *zap.SugaredLogger, workflowIDs func(ctx context.Context) ([]int64, error)) *Monitor {
	return &Monitor{store: store, sm: sm, liveness: liveness, log: log, workflowIDs: workflowIDs}
}

// Start schedules the sweep on a robfig/cron schedule (spec expression, e.g.
// "@every 30s") and returns a stop function. The cron scheduler's own
// recover-from-panic wrapper keeps one bad tick from killing the process.
func (m *Monitor) Start(spec string) (stop func(), err error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	_, err = c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.Sweep(ctx); err != nil {
			m.log.Errorw("orphan sweep failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}

// Sweep runs one reconciliation pass over every workflow workflowIDs
// returns.
func (m *Monitor) Sweep(ctx context.Context) error {
	ids, err := m.workflowIDs(ctx)
	if err != nil {
		return err
	}
	for _, workflowID := range ids {
		if err := m.sweepWorkflow(ctx, workflowID); err != nil {
			m.log.Errorw("orphan sweep failed for workflow", "workflow_id", workflowID, "error", err)
		}
	}
	return nil
}

func (m *Monitor) sweepWorkflow(ctx context.Context, workflowID int64) error {
	nodes, err := m.store.ListActiveComputeNodes(ctx, workflowID)
	if err != nil {
		return err
	}
	for _, node := range nodes {
		alive, err := m.liveness.IsAlive(ctx, node)
		if err != nil {
			m.log.Warnw("liveness check failed, treating as alive", "compute_node_id", node.ID, "error", err)
			continue
		}
		if alive {
			continue
		}
		if err := m.reapNode(ctx, node); err != nil {
			return err
		}
	}
	return nil
}

// reapNode implements spec §4.9 steps 1-4 for a single dead node, inside
// one transaction per node so a failure reaping node A never blocks node B.
func (m *Monitor) reapNode(ctx context.Context, node *domain.ComputeNode) error {
	return m.store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		wasActive, err := s.DeactivateComputeNode(ctx, node.ID)
		if err != nil {
			return err
		}
		if !wasActive {
			return nil // another sweep already reaped it
		}
		m.log.Infow("reaping orphaned compute node", "compute_node_id", node.ID, "hostname", node.Hostname)
		metrics.OrphansDetected.Inc()

		jobs, err := s.JobsActiveOn(ctx, node.ID)
		if err != nil {
			return err
		}
		for _, job := range jobs {
			status, err := s.GetWorkflowStatus(ctx, job.WorkflowID)
			if err != nil {
				return err
			}
			result := &domain.Result{
				JobID:           job.ID,
				WorkflowID:      job.WorkflowID,
				RunID:           status.RunID,
				ComputeNodeID:   &node.ID,
				ReturnCode:      domain.OrphanSentinelReturnCode,
				ExecTimeMinutes: 0,
				CompletionTime:  time.Now(),
			}
			nextAttempt, err := s.ListResults(ctx, job.ID)
			if err != nil {
				return err
			}
			result.AttemptID = int64(len(nextAttempt)) + 1

			completed, err := s.CompleteJob(ctx, job.ID, result.RunID, result.AttemptID, result)
			if err != nil {
				return err
			}
			if err := m.sm.Complete(ctx, s, completed, result, false); err != nil {
				return err
			}
		}

		scheduled, err := s.FindScheduledComputeNodeFor(ctx, node.ID)
		if err != nil {
			return err
		}
		if scheduled != nil {
			if err := s.SetScheduledComputeNodeStatus(ctx, scheduled.ID, domain.ScheduledComplete); err != nil {
				return err
			}
		}
		return nil
	})
}
