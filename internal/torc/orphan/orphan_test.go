package orphan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nrel/torc/internal/torc/action"
	"github.com/nrel/torc/internal/torc/broadcast"
	"github.com/nrel/torc/internal/torc/dependency"
	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/statemachine"
	"github.com/nrel/torc/internal/torc/storage"
)

// fakeChecker reports every node as alive (alive: true) or every node as
// dead (alive: false). It satisfies LivenessChecker for the sweep tests.
type fakeChecker struct{ alive bool }

func (f fakeChecker) IsAlive(ctx context.Context, node *domain.ComputeNode) (bool, error) {
	return f.alive, nil
}

func newTestMonitor(t *testing.T, store storage.Storage, liveness LivenessChecker) *Monitor {
	t.Helper()
	resolver := dependency.New()
	actions := action.New()
	events := broadcast.New(8)
	sm := statemachine.New(resolver, actions, events)
	log := zap.NewNop().Sugar()
	return New(store, sm, liveness, log, store.ActiveWorkflowIDs)
}

func TestSweep_ReapsDeadNodeAndFailsItsRunningJob(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)
	jobID, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "true"})
	require.NoError(t, err)

	nodeID, err := store.CreateComputeNode(ctx, &domain.ComputeNode{
		WorkflowID: wfID, Hostname: "worker-1", Pid: 4242, StartTime: time.Now(),
		NodeType: domain.ComputeNodeLocal, IsActive: true,
	})
	require.NoError(t, err)

	require.NoError(t, store.UpsertWorkflowStatus(ctx, &domain.WorkflowStatus{WorkflowID: wfID, RunID: 1}))
	require.NoError(t, store.SetJobStatus(ctx, jobID, domain.JobRunning, &nodeID))

	monitor := newTestMonitor(t, store, fakeChecker{alive: false})
	require.NoError(t, monitor.Sweep(ctx))

	node, err := store.GetComputeNode(ctx, nodeID)
	require.NoError(t, err)
	require.False(t, node.IsActive)

	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, domain.JobFailed, job.Status)

	results, err := store.ListResults(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, domain.OrphanSentinelReturnCode, results[0].ReturnCode)
}

func TestSweep_LeavesLiveNodeUntouched(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)
	nodeID, err := store.CreateComputeNode(ctx, &domain.ComputeNode{
		WorkflowID: wfID, Hostname: "worker-1", Pid: 99, StartTime: time.Now(),
		NodeType: domain.ComputeNodeLocal, IsActive: true,
	})
	require.NoError(t, err)
	require.NoError(t, store.UpsertWorkflowStatus(ctx, &domain.WorkflowStatus{WorkflowID: wfID, RunID: 1}))

	monitor := newTestMonitor(t, store, fakeChecker{alive: true})
	require.NoError(t, monitor.Sweep(ctx))

	node, err := store.GetComputeNode(ctx, nodeID)
	require.NoError(t, err)
	require.True(t, node.IsActive)
}

func TestSweep_SkipsCompleteWorkflows(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "done", User: "tester"})
	require.NoError(t, err)
	require.NoError(t, store.UpsertWorkflowStatus(ctx, &domain.WorkflowStatus{WorkflowID: wfID, RunID: 1, IsComplete: true}))
	nodeID, err := store.CreateComputeNode(ctx, &domain.ComputeNode{
		WorkflowID: wfID, Hostname: "worker-1", Pid: 1, StartTime: time.Now(),
		NodeType: domain.ComputeNodeLocal, IsActive: true,
	})
	require.NoError(t, err)

	monitor := newTestMonitor(t, store, fakeChecker{alive: false})
	require.NoError(t, monitor.Sweep(ctx))

	// A completed workflow is outside the sweep set, so its node is left
	// untouched even though the fake checker reports it dead.
	node, err := store.GetComputeNode(ctx, nodeID)
	require.NoError(t, err)
	require.True(t, node.IsActive)
}
