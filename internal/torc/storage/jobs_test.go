package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/torcerr"
)

// TestUpdateJobFields_RejectsOnceJobLeavesUninitialized covers spec §4.2's
// immutability rule and I5: once a job has been initialized (status no
// longer Uninitialized), UpdateJobFields must reject the write and leave
// the row untouched, regardless of which non-status field the caller is
// trying to change.
func TestUpdateJobFields_RejectsOnceJobLeavesUninitialized(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	wfID, err := s.CreateWorkflow(ctx, &domain.Workflow{Name: "immutability", User: "tester"})
	require.NoError(t, err)
	jobID, err := s.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "true"})
	require.NoError(t, err)

	// Uninitialized: a generic update is allowed.
	job, err := s.GetJob(ctx, jobID)
	require.NoError(t, err)
	job.Command = "echo hi"
	require.NoError(t, s.UpdateJobFields(ctx, job))

	// Drive the job to Ready the same way the Run Controller does, then
	// attempt a generic update. Only SetJobStatus may ever change status;
	// there is no field on Job that lets a caller request status=Pending
	// through UpdateJobFields, so this also demonstrates the stronger
	// guarantee that status can never be reached through this path.
	require.NoError(t, s.SetJobStatus(ctx, jobID, domain.JobReady, nil))

	job, err = s.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, domain.JobReady, job.Status)

	job.Command = "echo should-not-stick"
	err = s.UpdateJobFields(ctx, job)
	require.Error(t, err)
	require.Equal(t, torcerr.ImmutableField, torcerr.KindOf(err))

	reloaded, err := s.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, domain.JobReady, reloaded.Status)
	require.Equal(t, "echo hi", reloaded.Command)
}
