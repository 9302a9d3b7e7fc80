// Package export implements workflow export/import (spec §10, property R1):
// a full snapshot of one workflow's jobs, files, user data, resource
// requirements, dependency edges and actions, and the inverse operation
// that recreates an equivalent workflow under fresh ids.
//
// Grounded on the original Rust implementation's
// tests/test_workflow_export.rs round-trip contract: Export followed by
// Import must reproduce the same job graph shape (names, commands, edges)
// under a new workflow id, not the same primary keys.
package export

import (
	"context"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/storage"
)

// Snapshot is a self-contained, id-remappable copy of one workflow.
type Snapshot struct {
	Workflow             *domain.Workflow
	ResourceRequirements []*domain.ResourceRequirement
	Files                []*domain.File
	UserData             []*domain.UserData
	Jobs                 []*domain.Job
	Actions              []*domain.WorkflowAction
}

// Export reads every entity owned by workflowID into a Snapshot. Edge
// fields on Job/WorkflowAction (DependsOnJobIDs, InputFileIDs, JobIDs, ...)
// are original-workflow ids; Import remaps them.
func Export(ctx context.Context, s storage.Storage, workflowID int64) (*Snapshot, error) {
	wf, err := s.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	reqs, err := s.ListResourceRequirements(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	files, err := s.ListFiles(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	userData, err := s.ListUserData(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	// ListJobs intentionally skips edge hydration for workflow-wide listing
	// (storage.sqlStore.ListJobs); a snapshot needs every job's full edge
	// set, so each is re-fetched through GetJob, the one path that hydrates
	// DependsOnJobIDs/InputFileIDs/OutputFileIDs/InputUserDataIDs/OutputUserDataIDs.
	jobStubs, err := s.ListJobs(ctx, workflowID, storage.JobFilter{})
	if err != nil {
		return nil, err
	}
	jobs := make([]*domain.Job, len(jobStubs))
	for i, stub := range jobStubs {
		full, err := s.GetJob(ctx, stub.ID)
		if err != nil {
			return nil, err
		}
		jobs[i] = full
	}
	actions, err := s.ListActions(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Workflow:             wf,
		ResourceRequirements: reqs,
		Files:                files,
		UserData:             userData,
		Jobs:                 jobs,
		Actions:              actions,
	}, nil
}

// Import recreates the snapshot's entities under a brand new Workflow
// owned by newUser, remapping every id reference. All jobs are created
// Uninitialized, matching the Run Controller's expectation that
// initialize() runs next.
func Import(ctx context.Context, s storage.Storage, snap *Snapshot, newWorkflowName, newUser string) (int64, error) {
	var newWorkflowID int64
	err := s.WithTx(ctx, func(ctx context.Context, s storage.Storage) error {
		wf := &domain.Workflow{Name: newWorkflowName, User: newUser, Description: snap.Workflow.Description}
		id, err := s.CreateWorkflow(ctx, wf)
		if err != nil {
			return err
		}
		newWorkflowID = id

		reqIDs := map[int64]int64{}
		for _, r := range snap.ResourceRequirements {
			newID, err := s.CreateResourceRequirement(ctx, &domain.ResourceRequirement{
				WorkflowID: id, Name: r.Name, NumCPUs: r.NumCPUs, NumGPUs: r.NumGPUs,
				NumNodes: r.NumNodes, MemoryBytes: r.MemoryBytes, RuntimeSeconds: r.RuntimeSeconds,
			})
			if err != nil {
				return err
			}
			reqIDs[r.ID] = newID
		}

		fileIDs := map[int64]int64{}
		for _, f := range snap.Files {
			newID, err := s.CreateFile(ctx, &domain.File{WorkflowID: id, Name: f.Name, Path: f.Path, StMtime: f.StMtime})
			if err != nil {
				return err
			}
			fileIDs[f.ID] = newID
		}

		userDataIDs := map[int64]int64{}
		for _, u := range snap.UserData {
			newID, err := s.CreateUserData(ctx, &domain.UserData{WorkflowID: id, Name: u.Name, DataJSON: u.DataJSON, IsEphemeral: u.IsEphemeral})
			if err != nil {
				return err
			}
			userDataIDs[u.ID] = newID
		}

		jobIDs := map[int64]int64{}
		for _, j := range snap.Jobs {
			newJob := &domain.Job{
				WorkflowID: id, Name: j.Name, Command: j.Command, InvocationScript: j.InvocationScript,
				CancelOnBlockingJobFailure: j.CancelOnBlockingJobFailure, SupportsTermination: j.SupportsTermination,
			}
			if j.ResourceRequirementsID != nil {
				mapped := reqIDs[*j.ResourceRequirementsID]
				newJob.ResourceRequirementsID = &mapped
			}
			newID, err := s.CreateJob(ctx, newJob)
			if err != nil {
				return err
			}
			jobIDs[j.ID] = newID
		}
		// Edges are written in a second pass, via the same full-field
		// UpdateJobFields a client would use, since a job may depend on a
		// job created after it in snap.Jobs order.
		for _, j := range snap.Jobs {
			withEdges := &domain.Job{
				ID: jobIDs[j.ID], WorkflowID: id, Name: j.Name, Command: j.Command,
				InvocationScript: j.InvocationScript, CancelOnBlockingJobFailure: j.CancelOnBlockingJobFailure,
				SupportsTermination: j.SupportsTermination,
			}
			if j.ResourceRequirementsID != nil {
				mapped := reqIDs[*j.ResourceRequirementsID]
				withEdges.ResourceRequirementsID = &mapped
			}
			withEdges.DependsOnJobIDs = remap(j.DependsOnJobIDs, jobIDs)
			withEdges.InputFileIDs = remap(j.InputFileIDs, fileIDs)
			withEdges.OutputFileIDs = remap(j.OutputFileIDs, fileIDs)
			withEdges.InputUserDataIDs = remap(j.InputUserDataIDs, userDataIDs)
			withEdges.OutputUserDataIDs = remap(j.OutputUserDataIDs, userDataIDs)
			if err := s.UpdateJobFields(ctx, withEdges); err != nil {
				return err
			}
		}

		for _, a := range snap.Actions {
			_, err := s.CreateAction(ctx, &domain.WorkflowAction{
				WorkflowID: id, TriggerType: a.TriggerType, ActionType: a.ActionType,
				ActionConfigJSON: a.ActionConfigJSON, JobIDs: remap(a.JobIDs, jobIDs),
				JobNameRegexes: a.JobNameRegexes,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newWorkflowID, nil
}

func remap(ids []int64, table map[int64]int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = append(out, table[id])
	}
	return out
}
