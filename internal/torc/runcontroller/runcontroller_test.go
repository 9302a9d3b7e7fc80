package runcontroller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrel/torc/internal/torc/action"
	"github.com/nrel/torc/internal/torc/broadcast"
	"github.com/nrel/torc/internal/torc/dependency"
	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/statemachine"
	"github.com/nrel/torc/internal/torc/storage"
	"github.com/nrel/torc/internal/torc/torcerr"
)

// newHarness builds a fully wired in-memory core (SQLite-backed storage plus
// every core engine) for behavioral tests of the run lifecycle.
func newHarness(t *testing.T) (storage.Storage, *Controller) {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	resolver := dependency.New()
	actions := action.New()
	events := broadcast.New(8)
	sm := statemachine.New(resolver, actions, events)
	return store, New(resolver, actions, sm)
}

// createDiamond builds A -> {B, C} -> D: B and C both depend on A, D depends
// on both B and C. Returns the four job ids in creation order (A, B, C, D).
func createDiamond(t *testing.T, ctx context.Context, s storage.Storage, workflowID int64) (a, b, c, d int64) {
	t.Helper()
	var err error
	a, err = s.CreateJob(ctx, &domain.Job{WorkflowID: workflowID, Name: "a", Command: "true"})
	require.NoError(t, err)
	b, err = s.CreateJob(ctx, &domain.Job{WorkflowID: workflowID, Name: "b", Command: "true", DependsOnJobIDs: []int64{a}})
	require.NoError(t, err)
	c, err = s.CreateJob(ctx, &domain.Job{WorkflowID: workflowID, Name: "c", Command: "true", DependsOnJobIDs: []int64{a}})
	require.NoError(t, err)
	d, err = s.CreateJob(ctx, &domain.Job{WorkflowID: workflowID, Name: "d", Command: "true", DependsOnJobIDs: []int64{b, c}})
	require.NoError(t, err)
	return
}

func jobStatus(t *testing.T, ctx context.Context, s storage.Storage, jobID int64) domain.JobStatus {
	t.Helper()
	j, err := s.GetJob(ctx, jobID)
	require.NoError(t, err)
	return j.Status
}

func TestInitialize_DiamondWorkflow(t *testing.T) {
	ctx := context.Background()
	store, ctl := newHarness(t)

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "diamond", User: "tester"})
	require.NoError(t, err)
	a, b, c, d := createDiamond(t, ctx, store, wfID)

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		return ctl.Initialize(ctx, s, wfID, false)
	}))

	require.Equal(t, domain.JobReady, jobStatus(t, ctx, store, a))
	require.Equal(t, domain.JobBlocked, jobStatus(t, ctx, store, b))
	require.Equal(t, domain.JobBlocked, jobStatus(t, ctx, store, c))
	require.Equal(t, domain.JobBlocked, jobStatus(t, ctx, store, d))

	status, err := store.GetWorkflowStatus(ctx, wfID)
	require.NoError(t, err)
	require.Equal(t, int64(1), status.RunID)
}

func TestComplete_UnblocksDependents(t *testing.T) {
	ctx := context.Background()
	store, ctl := newHarness(t)

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "diamond", User: "tester"})
	require.NoError(t, err)
	a, b, c, d := createDiamond(t, ctx, store, wfID)

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		return ctl.Initialize(ctx, s, wfID, false)
	}))

	sm := ctl.sm
	complete := func(jobID int64) {
		require.NoError(t, store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
			job, err := s.GetJob(ctx, jobID)
			require.NoError(t, err)
			require.NoError(t, sm.Start(ctx, s, jobID, 1))
			job, err = s.GetJob(ctx, jobID)
			require.NoError(t, err)
			result := &domain.Result{JobID: jobID, WorkflowID: wfID, RunID: 1, AttemptID: 1, ReturnCode: 0}
			return sm.Complete(ctx, s, job, result, false)
		}))
	}

	complete(a)
	require.Equal(t, domain.JobReady, jobStatus(t, ctx, store, b))
	require.Equal(t, domain.JobReady, jobStatus(t, ctx, store, c))
	require.Equal(t, domain.JobBlocked, jobStatus(t, ctx, store, d))

	complete(b)
	require.Equal(t, domain.JobBlocked, jobStatus(t, ctx, store, d))
	complete(c)
	require.Equal(t, domain.JobReady, jobStatus(t, ctx, store, d))
}

func TestCancel_PropagatesCancelOnBlockingFailure(t *testing.T) {
	ctx := context.Background()
	store, ctl := newHarness(t)

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "cancel-chain", User: "tester"})
	require.NoError(t, err)

	a, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "false"})
	require.NoError(t, err)
	b, err := store.CreateJob(ctx, &domain.Job{
		WorkflowID: wfID, Name: "b", Command: "true",
		DependsOnJobIDs: []int64{a}, CancelOnBlockingJobFailure: true,
	})
	require.NoError(t, err)

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		return ctl.Initialize(ctx, s, wfID, false)
	}))

	sm := ctl.sm
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		require.NoError(t, sm.Start(ctx, s, a, 1))
		job, err := s.GetJob(ctx, a)
		require.NoError(t, err)
		result := &domain.Result{JobID: a, WorkflowID: wfID, RunID: 1, AttemptID: 1, ReturnCode: 1}
		return sm.Complete(ctx, s, job, result, false)
	}))

	require.Equal(t, domain.JobFailed, jobStatus(t, ctx, store, a))
	require.Equal(t, domain.JobCanceled, jobStatus(t, ctx, store, b))
}

func TestInitialize_AlreadyInitializedWithoutForce(t *testing.T) {
	ctx := context.Background()
	store, ctl := newHarness(t)

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "once", User: "tester"})
	require.NoError(t, err)
	_, err = store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "true"})
	require.NoError(t, err)

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		return ctl.Initialize(ctx, s, wfID, false)
	}))

	err = store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		return ctl.Initialize(ctx, s, wfID, false)
	})
	require.Error(t, err)
	require.Equal(t, torcerr.AlreadyInitialized, torcerr.KindOf(err))

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		return ctl.Initialize(ctx, s, wfID, true)
	}))
}

func TestReinitialize_ResetFailedOnlyLeavesCompletedJobsAlone(t *testing.T) {
	ctx := context.Background()
	store, ctl := newHarness(t)

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "partial-retry", User: "tester"})
	require.NoError(t, err)
	ok, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "ok", Command: "true"})
	require.NoError(t, err)
	bad, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "bad", Command: "false"})
	require.NoError(t, err)

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		return ctl.Initialize(ctx, s, wfID, false)
	}))

	sm := ctl.sm
	runJob := func(jobID int64, returnCode int32) {
		require.NoError(t, store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
			require.NoError(t, sm.Start(ctx, s, jobID, 1))
			job, err := s.GetJob(ctx, jobID)
			require.NoError(t, err)
			result := &domain.Result{JobID: jobID, WorkflowID: wfID, RunID: 1, AttemptID: 1, ReturnCode: returnCode}
			return sm.Complete(ctx, s, job, result, false)
		}))
	}
	runJob(ok, 0)
	runJob(bad, 1)

	require.Equal(t, domain.JobCompleted, jobStatus(t, ctx, store, ok))
	require.Equal(t, domain.JobFailed, jobStatus(t, ctx, store, bad))

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		return ctl.Reinitialize(ctx, s, wfID, true, false)
	}))

	require.Equal(t, domain.JobCompleted, jobStatus(t, ctx, store, ok))
	require.Equal(t, domain.JobReady, jobStatus(t, ctx, store, bad))
}

func TestCancel_UninitializedWorkflow(t *testing.T) {
	ctx := context.Background()
	store, ctl := newHarness(t)

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "never-started", User: "tester"})
	require.NoError(t, err)
	a, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "true"})
	require.NoError(t, err)

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		return ctl.Cancel(ctx, s, wfID)
	}))

	require.Equal(t, domain.JobCanceled, jobStatus(t, ctx, store, a))
}

func TestResetJobStatus_FiltersByFailedOnlyAndJobIDs(t *testing.T) {
	ctx := context.Background()
	store, ctl := newHarness(t)

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "selective-reset", User: "tester"})
	require.NoError(t, err)
	failed, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "failed", Command: "false"})
	require.NoError(t, err)
	completed, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "completed", Command: "true"})
	require.NoError(t, err)

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		return ctl.Initialize(ctx, s, wfID, false)
	}))

	sm := ctl.sm
	runJob := func(jobID int64, returnCode int32) {
		require.NoError(t, store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
			require.NoError(t, sm.Start(ctx, s, jobID, 1))
			job, err := s.GetJob(ctx, jobID)
			require.NoError(t, err)
			result := &domain.Result{JobID: jobID, WorkflowID: wfID, RunID: 1, AttemptID: 1, ReturnCode: returnCode}
			return sm.Complete(ctx, s, job, result, false)
		}))
	}
	runJob(failed, 1)
	runJob(completed, 0)

	// failed_only should skip the completed job entirely, even though it's
	// explicitly listed in job_ids.
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		return ctl.ResetJobStatus(ctx, s, wfID, true, []int64{failed, completed})
	}))

	require.Equal(t, domain.JobReady, jobStatus(t, ctx, store, failed))
	require.Equal(t, domain.JobCompleted, jobStatus(t, ctx, store, completed))

	// Now reset the completed job explicitly by id, without failed_only.
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		return ctl.ResetJobStatus(ctx, s, wfID, false, []int64{completed})
	}))
	require.Equal(t, domain.JobReady, jobStatus(t, ctx, store, completed))
}

func TestReinitialize_ClearsActionFiringState(t *testing.T) {
	ctx := context.Background()
	store, ctl := newHarness(t)

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "retry-me", User: "tester"})
	require.NoError(t, err)
	a, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "true"})
	require.NoError(t, err)

	actionID, err := store.CreateAction(ctx, &domain.WorkflowAction{
		WorkflowID: wfID, TriggerType: domain.TriggerOnJobsComplete,
		ActionType: domain.ActionRunCommands, JobIDs: []int64{a},
	})
	require.NoError(t, err)

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		return ctl.Initialize(ctx, s, wfID, false)
	}))

	sm := ctl.sm
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		require.NoError(t, sm.Start(ctx, s, a, 1))
		job, err := s.GetJob(ctx, a)
		require.NoError(t, err)
		result := &domain.Result{JobID: a, WorkflowID: wfID, RunID: 1, AttemptID: 1, ReturnCode: 0}
		return sm.Complete(ctx, s, job, result, false)
	}))

	fired, err := store.GetAction(ctx, actionID)
	require.NoError(t, err)
	require.Greater(t, fired.TriggerCount, int64(0))

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		return ctl.Reinitialize(ctx, s, wfID, false, false)
	}))

	reset, err := store.GetAction(ctx, actionID)
	require.NoError(t, err)
	require.Equal(t, int64(0), reset.TriggerCount)
	require.False(t, reset.Executed)
	require.Equal(t, domain.JobReady, jobStatus(t, ctx, store, a))

	status, err := store.GetWorkflowStatus(ctx, wfID)
	require.NoError(t, err)
	require.Equal(t, int64(2), status.RunID)
}
