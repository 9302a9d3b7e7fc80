package statemachine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrel/torc/internal/torc/action"
	"github.com/nrel/torc/internal/torc/broadcast"
	"github.com/nrel/torc/internal/torc/dependency"
	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/storage"
	"github.com/nrel/torc/internal/torc/torcerr"
)

func newEngine() (*Engine, *broadcast.Broadcaster) {
	events := broadcast.New(8)
	return New(dependency.New(), action.New(), events), events
}

func TestCanTransition_TableMatchesSpec(t *testing.T) {
	cases := []struct {
		from, to domain.JobStatus
		legal    bool
	}{
		{domain.JobUninitialized, domain.JobReady, true},
		{domain.JobUninitialized, domain.JobBlocked, true},
		{domain.JobUninitialized, domain.JobDisabled, true},
		{domain.JobUninitialized, domain.JobCanceled, true},
		{domain.JobUninitialized, domain.JobRunning, false},
		{domain.JobReady, domain.JobPending, true},
		{domain.JobReady, domain.JobRunning, false},
		{domain.JobRunning, domain.JobCompleted, true},
		{domain.JobRunning, domain.JobFailed, true},
		{domain.JobRunning, domain.JobTerminated, true},
		{domain.JobCompleted, domain.JobUninitialized, true},
		{domain.JobCompleted, domain.JobReady, false},
		{domain.JobDisabled, domain.JobReady, false},
	}
	for _, c := range cases {
		require.Equalf(t, c.legal, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestStart_RejectsNonPendingJob(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)
	jobID, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "true"})
	require.NoError(t, err)
	// Job is left Uninitialized: Start requires Pending.

	engine, _ := newEngine()
	err = engine.Start(ctx, store, jobID, 1)
	require.Error(t, err)
	require.Equal(t, torcerr.InvalidArgument, torcerr.KindOf(err))
}

func TestComplete_ImplicitlyStartsAPendingJob(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)
	jobID, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "true"})
	require.NoError(t, err)
	require.NoError(t, store.SetJobStatus(ctx, jobID, domain.JobPending, nil))

	engine, _ := newEngine()
	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	result := &domain.Result{JobID: jobID, WorkflowID: wfID, RunID: 1, AttemptID: 1, ReturnCode: 0}
	require.NoError(t, engine.Complete(ctx, store, job, result, false))

	got, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, got.Status)
}

func TestComplete_NonZeroReturnCodeFails(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)
	jobID, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "false"})
	require.NoError(t, err)
	require.NoError(t, store.SetJobStatus(ctx, jobID, domain.JobRunning, nil))

	engine, _ := newEngine()
	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	result := &domain.Result{JobID: jobID, WorkflowID: wfID, RunID: 1, AttemptID: 1, ReturnCode: 1}
	require.NoError(t, engine.Complete(ctx, store, job, result, false))

	got, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, domain.JobFailed, got.Status)
}

func TestComplete_TerminatedBySignalOverridesReturnCode(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)
	jobID, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "true"})
	require.NoError(t, err)
	require.NoError(t, store.SetJobStatus(ctx, jobID, domain.JobRunning, nil))

	engine, _ := newEngine()
	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	result := &domain.Result{JobID: jobID, WorkflowID: wfID, RunID: 1, AttemptID: 1, ReturnCode: 0}
	require.NoError(t, engine.Complete(ctx, store, job, result, true))

	got, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, domain.JobTerminated, got.Status)
}

func TestReset_RejectsNonTerminalJob(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)
	jobID, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "true"})
	require.NoError(t, err)
	require.NoError(t, store.SetJobStatus(ctx, jobID, domain.JobReady, nil))

	engine, _ := newEngine()
	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	err = engine.Reset(ctx, store, job)
	require.Error(t, err)
	require.Equal(t, torcerr.InvalidArgument, torcerr.KindOf(err))
}

// TestTransition_RejectsIllegalTarget is the Immutability-rule test:
// the only storage method that ever writes job.status is SetJobStatus, and
// the only caller of SetJobStatus outside this package's Engine is test/
// harness code exercising illegal states directly. Every Engine method
// funnels through transition, which checks CanTransition before writing.
func TestTransition_RejectsIllegalTarget(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)
	jobID, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "true"})
	require.NoError(t, err)

	engine, _ := newEngine()
	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	err = engine.transition(ctx, store, job, domain.JobRunning, nil)
	require.Error(t, err)
	require.Equal(t, torcerr.InvalidArgument, torcerr.KindOf(err))

	got, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, domain.JobUninitialized, got.Status, "rejected transition must not mutate stored status")
}
