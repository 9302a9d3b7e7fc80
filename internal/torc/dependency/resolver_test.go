package dependency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/storage"
	"github.com/nrel/torc/internal/torc/torcerr"
)

func openTestStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCheckAcyclic_AcceptsDAG(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)

	a, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "true"})
	require.NoError(t, err)
	_, err = store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "b", Command: "true", DependsOnJobIDs: []int64{a}})
	require.NoError(t, err)

	r := New()
	require.NoError(t, r.CheckAcyclic(ctx, store, wfID))
}

func TestCheckAcyclic_RejectsCycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)

	a, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "true"})
	require.NoError(t, err)
	b, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "b", Command: "true", DependsOnJobIDs: []int64{a}})
	require.NoError(t, err)

	// Close the cycle a -> b -> c -> a by editing a's edges directly (the
	// normal create path can't express this; initialize is what's
	// supposed to catch it).
	c, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "c", Command: "true", DependsOnJobIDs: []int64{b}})
	require.NoError(t, err)
	require.NoError(t, rewireDependency(ctx, store, a, c))

	r := New()
	err = r.CheckAcyclic(ctx, store, wfID)
	require.Error(t, err)
	require.Equal(t, torcerr.CyclicDependency, torcerr.KindOf(err))
}

func TestInitialStatus_ZeroBlockersIsReady(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)
	a, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "true"})
	require.NoError(t, err)

	r := New()
	status, err := r.InitialStatus(ctx, store, a)
	require.NoError(t, err)
	require.Equal(t, domain.JobReady, status)
}

func TestInitialStatus_UnsatisfiedBlockerIsBlocked(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)
	a, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "true"})
	require.NoError(t, err)
	b, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "b", Command: "true", DependsOnJobIDs: []int64{a}})
	require.NoError(t, err)

	r := New()
	status, err := r.InitialStatus(ctx, store, b)
	require.NoError(t, err)
	require.Equal(t, domain.JobBlocked, status)
}

func TestOnBlockerTerminal_FailureCancelsOnlyOptedInDependents(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)
	a, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "false"})
	require.NoError(t, err)
	optIn, err := store.CreateJob(ctx, &domain.Job{
		WorkflowID: wfID, Name: "opt-in", Command: "true",
		DependsOnJobIDs: []int64{a}, CancelOnBlockingJobFailure: true,
	})
	require.NoError(t, err)
	optOut, err := store.CreateJob(ctx, &domain.Job{
		WorkflowID: wfID, Name: "opt-out", Command: "true", DependsOnJobIDs: []int64{a},
	})
	require.NoError(t, err)

	require.NoError(t, store.SetJobStatus(ctx, optIn, domain.JobBlocked, nil))
	require.NoError(t, store.SetJobStatus(ctx, optOut, domain.JobBlocked, nil))

	r := New()
	outcomes, err := r.OnBlockerTerminal(ctx, store, wfID, a, domain.JobFailed)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, optIn, outcomes[0].JobID)
	require.Equal(t, domain.JobCanceled, outcomes[0].NewStatus)
}

// rewireDependency adds toJobID as an additional dependency of fromJobID via
// UpdateJobFields, used only to construct a cycle that the normal create-time
// edge list can't express on its own (fromJobID must still be Uninitialized).
func rewireDependency(ctx context.Context, s storage.Storage, fromJobID, toJobID int64) error {
	job, err := s.GetJob(ctx, fromJobID)
	if err != nil {
		return err
	}
	job.DependsOnJobIDs = append(job.DependsOnJobIDs, toJobID)
	return s.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		return s.UpdateJobFields(ctx, job)
	})
}
