package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/storage"
	"github.com/nrel/torc/internal/torc/torcerr"
)

func newTestStore(t *testing.T) (storage.Storage, int64) {
	t.Helper()
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)
	return store, wfID
}

// TestResolveTargets_UnionsExplicitIDsAndRegexMatches exercises the Open
// Question decision that job_ids and job_name_regexes combine as a union
// rather than requiring one or the other.
func TestResolveTargets_UnionsExplicitIDsAndRegexMatches(t *testing.T) {
	ctx := context.Background()
	store, wfID := newTestStore(t)

	explicit, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "setup", Command: "true"})
	require.NoError(t, err)
	matched, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "ingest-01", Command: "true"})
	require.NoError(t, err)
	_, err = store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "export-01", Command: "true"})
	require.NoError(t, err)

	actionID, err := store.CreateAction(ctx, &domain.WorkflowAction{
		WorkflowID:     wfID,
		TriggerType:    domain.TriggerOnJobsComplete,
		ActionType:     domain.ActionRunCommands,
		JobIDs:         []int64{explicit},
		JobNameRegexes: []string{"^ingest-"},
	})
	require.NoError(t, err)

	a, err := store.GetAction(ctx, actionID)
	require.NoError(t, err)

	e := New()
	require.NoError(t, e.ResolveTargets(ctx, store, a))

	resolved, err := store.GetAction(ctx, actionID)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{explicit, matched}, resolved.JobIDs)
}

func TestResolveTargets_RejectsInvalidRegex(t *testing.T) {
	ctx := context.Background()
	store, wfID := newTestStore(t)

	actionID, err := store.CreateAction(ctx, &domain.WorkflowAction{
		WorkflowID:     wfID,
		TriggerType:    domain.TriggerOnJobsComplete,
		ActionType:     domain.ActionRunCommands,
		JobNameRegexes: []string{"("},
	})
	require.NoError(t, err)
	a, err := store.GetAction(ctx, actionID)
	require.NoError(t, err)

	err = New().ResolveTargets(ctx, store, a)
	require.Error(t, err)
	require.Equal(t, torcerr.InvalidArgument, torcerr.KindOf(err))
}

func TestOnJobTransition_MarksOnJobsCompletePendingOnceAllTargetsTerminal(t *testing.T) {
	ctx := context.Background()
	store, wfID := newTestStore(t)

	a, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "true"})
	require.NoError(t, err)
	b, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "b", Command: "true"})
	require.NoError(t, err)
	actionID, err := store.CreateAction(ctx, &domain.WorkflowAction{
		WorkflowID: wfID, TriggerType: domain.TriggerOnJobsComplete,
		ActionType: domain.ActionRunCommands, JobIDs: []int64{a, b},
	})
	require.NoError(t, err)

	e := New()
	require.NoError(t, store.SetJobStatus(ctx, a, domain.JobCompleted, nil))
	require.NoError(t, e.OnJobTransition(ctx, store, wfID, a, domain.JobCompleted))

	pending, err := store.GetAction(ctx, actionID)
	require.NoError(t, err)
	require.False(t, pending.Pending, "action must not fire until every target job is terminal")

	require.NoError(t, store.SetJobStatus(ctx, b, domain.JobCompleted, nil))
	require.NoError(t, e.OnJobTransition(ctx, store, wfID, b, domain.JobCompleted))

	fired, err := store.GetAction(ctx, actionID)
	require.NoError(t, err)
	require.True(t, fired.Pending)
	require.Greater(t, fired.TriggerCount, int64(0))
}

func TestClaimAction_SecondClaimerSeesConflict(t *testing.T) {
	ctx := context.Background()
	store, wfID := newTestStore(t)

	a, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "true"})
	require.NoError(t, err)
	actionID, err := store.CreateAction(ctx, &domain.WorkflowAction{
		WorkflowID: wfID, TriggerType: domain.TriggerOnJobsComplete,
		ActionType: domain.ActionRunCommands, JobIDs: []int64{a},
	})
	require.NoError(t, err)

	e := New()
	_, err = e.ClaimAction(ctx, store, actionID, 1)
	require.Error(t, err, "action has not fired yet")

	require.NoError(t, store.IncrementTriggerCount(ctx, wfID, a))
	_, err = e.ClaimAction(ctx, store, actionID, 1)
	require.NoError(t, err)

	_, err = e.ClaimAction(ctx, store, actionID, 2)
	require.Error(t, err)
	require.Equal(t, torcerr.Conflict, torcerr.KindOf(err))
}
