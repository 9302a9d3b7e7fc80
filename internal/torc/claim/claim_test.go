package claim

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/storage"
)

func TestNext_ConcurrentClaimsAreDisjoint(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)
	require.NoError(t, store.UpsertWorkflowStatus(ctx, &domain.WorkflowStatus{WorkflowID: wfID, RunID: 1}))

	const totalJobs = 100
	for i := 0; i < totalJobs; i++ {
		id, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: jobName(i), Command: "true"})
		require.NoError(t, err)
		require.NoError(t, store.SetJobStatus(ctx, id, domain.JobReady, nil))
	}

	engine := New(store)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = make(map[int64]int) // job id -> number of workers that claimed it
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		computeNodeID := int64(w + 1)
		go func() {
			defer wg.Done()
			for {
				jobs, err := engine.Next(ctx, wfID, 3, nil, computeNodeID)
				require.NoError(t, err)
				if len(jobs) == 0 {
					return
				}
				mu.Lock()
				for _, j := range jobs {
					claimed[j.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, claimed, totalJobs, "every job must be claimed exactly once across all workers")
	for id, count := range claimed {
		require.Equalf(t, 1, count, "job %d claimed by more than one worker", id)
	}
}

func TestNext_CanceledWorkflowYieldsNoClaims(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	wfID, err := store.CreateWorkflow(ctx, &domain.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)
	jobID, err := store.CreateJob(ctx, &domain.Job{WorkflowID: wfID, Name: "a", Command: "true"})
	require.NoError(t, err)
	require.NoError(t, store.SetJobStatus(ctx, jobID, domain.JobReady, nil))
	require.NoError(t, store.UpsertWorkflowStatus(ctx, &domain.WorkflowStatus{WorkflowID: wfID, RunID: 1, IsCanceled: true}))

	engine := New(store)
	jobs, err := engine.Next(ctx, wfID, 10, nil, 1)
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func jobName(i int) string {
	return fmt.Sprintf("job-%03d", i)
}
