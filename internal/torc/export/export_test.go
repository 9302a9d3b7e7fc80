package export

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/storage"
)

// TestExportImport_RoundTripsJobCountsAndEdges covers property R1: exporting
// a workflow and importing the snapshot under a fresh name/user must yield a
// workflow whose job/file/user-data counts and edge shape (by name, since
// ids are renumbered) match the original.
func TestExportImport_RoundTripsJobCountsAndEdges(t *testing.T) {
	ctx := context.Background()
	s, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	wfID, err := s.CreateWorkflow(ctx, &domain.Workflow{Name: "original", User: "tester"})
	require.NoError(t, err)

	fileID, err := s.CreateFile(ctx, &domain.File{WorkflowID: wfID, Name: "data.csv", Path: "/tmp/data.csv"})
	require.NoError(t, err)
	udID, err := s.CreateUserData(ctx, &domain.UserData{WorkflowID: wfID, Name: "params", DataJSON: `{"k":1}`})
	require.NoError(t, err)
	reqID, err := s.CreateResourceRequirement(ctx, &domain.ResourceRequirement{
		WorkflowID: wfID, Name: "big", NumCPUs: 4, NumNodes: 1, MemoryBytes: 1 << 30, RuntimeSeconds: 3600,
	})
	require.NoError(t, err)

	aID, err := s.CreateJob(ctx, &domain.Job{
		WorkflowID: wfID, Name: "a", Command: "produce", ResourceRequirementsID: &reqID,
		OutputFileIDs: []int64{fileID}, OutputUserDataIDs: []int64{udID},
	})
	require.NoError(t, err)
	_, err = s.CreateJob(ctx, &domain.Job{
		WorkflowID: wfID, Name: "b", Command: "consume",
		DependsOnJobIDs: []int64{aID}, InputFileIDs: []int64{fileID}, InputUserDataIDs: []int64{udID},
	})
	require.NoError(t, err)

	_, err = s.CreateAction(ctx, &domain.WorkflowAction{
		WorkflowID: wfID, TriggerType: domain.TriggerOnJobsComplete,
		ActionType: domain.ActionRunCommands, JobIDs: []int64{aID},
	})
	require.NoError(t, err)

	snap, err := Export(ctx, s, wfID)
	require.NoError(t, err)
	require.Len(t, snap.Jobs, 2)

	newWfID, err := Import(ctx, s, snap, "imported", "tester2")
	require.NoError(t, err)
	require.NotEqual(t, wfID, newWfID)

	newJobs, err := s.ListJobs(ctx, newWfID, storage.JobFilter{})
	require.NoError(t, err)
	require.Len(t, newJobs, len(snap.Jobs))

	byName := map[string]*domain.Job{}
	for _, j := range newJobs {
		byName[j.Name] = j
		require.Equal(t, domain.JobUninitialized, j.Status)
	}
	require.Contains(t, byName, "a")
	require.Contains(t, byName, "b")

	// Edge shape survives renumbering: b still depends on whichever new id
	// "a" was given, and still lists the renumbered file/user-data as
	// input, matching "a"'s renumbered output.
	// ListJobs does not hydrate edges, so re-fetch both jobs through GetJob.
	newA, err := s.GetJob(ctx, byName["a"].ID)
	require.NoError(t, err)
	newB, err := s.GetJob(ctx, byName["b"].ID)
	require.NoError(t, err)
	require.Equal(t, []int64{newA.ID}, newB.DependsOnJobIDs)
	require.Equal(t, newA.OutputFileIDs, newB.InputFileIDs)
	require.Equal(t, newA.OutputUserDataIDs, newB.InputUserDataIDs)

	newFiles, err := s.ListFiles(ctx, newWfID)
	require.NoError(t, err)
	require.Len(t, newFiles, 1)
	newUserData, err := s.ListUserData(ctx, newWfID)
	require.NoError(t, err)
	require.Len(t, newUserData, 1)

	newActions, err := s.ListActions(ctx, newWfID)
	require.NoError(t, err)
	require.Len(t, newActions, 1)
	require.Equal(t, []int64{newA.ID}, newActions[0].JobIDs)
}
