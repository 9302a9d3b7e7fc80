// Package runcontroller implements the Run Controller of spec §4.4: the
// workflow-wide lifecycle operations (initialize, reinitialize, cancel,
// reset_job_status) that sit above the per-job Status Machine. Every
// exported function here takes the exclusive workflow lock first and must
// be called inside storage.WithTx (spec §5: "run-lifecycle operations take
// an exclusive per-workflow lock").
//
// Grounded on the teacher's workflow.Controller start/reset lifecycle
// (jsturma-joblet/internal/joblet/workflow/controller.go), generalized from
// a single linear run to Torc's reinitialize-in-place semantics (spec §4.4,
// I4).
package runcontroller

import (
	"context"

	"github.com/nrel/torc/internal/torc/action"
	"github.com/nrel/torc/internal/torc/dependency"
	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/scheduler"
	"github.com/nrel/torc/internal/torc/statemachine"
	"github.com/nrel/torc/internal/torc/storage"
	"github.com/nrel/torc/internal/torc/torcerr"
)

// Controller wires the Dependency Resolver, Action Engine and Status Machine
// together for the four workflow-lifecycle operations.
type Controller struct {
	resolver *dependency.Resolver
	actions  *action.Engine
	sm       *statemachine.Engine
}

func New(resolver *dependency.Resolver, actions *action.Engine, sm *statemachine.Engine) *Controller {
	return &Controller{resolver: resolver, actions: actions, sm: sm}
}

// Initialize implements spec §4.4's initialize: lock the workflow, verify
// the dependency graph is acyclic, assign every Uninitialized job's first
// status, resolve action targets, arm on_workflow_start actions, and record
// run_id 1. Requires every job in the workflow to still be Uninitialized;
// if force is false and at least one job has already moved past
// Uninitialized (a prior initialize already ran), it fails with
// torcerr.AlreadyInitialized rather than silently re-promoting a subset of
// jobs. force=true bypasses that guard for a caller that knows it wants to
// re-run initialize over a workflow already in progress.
func (c *Controller) Initialize(ctx context.Context, s storage.Storage, workflowID int64, force bool) error {
	if err := s.LockWorkflow(ctx, workflowID); err != nil {
		return err
	}

	if !force {
		all, err := s.ListJobs(ctx, workflowID, storage.JobFilter{})
		if err != nil {
			return err
		}
		for _, j := range all {
			if j.Status != domain.JobUninitialized {
				return torcerr.New(torcerr.AlreadyInitialized, "workflow has already been initialized; pass force to re-run")
			}
		}
	}

	if err := c.resolver.CheckAcyclic(ctx, s, workflowID); err != nil {
		return err
	}

	jobs, err := s.ListJobs(ctx, workflowID, storage.JobFilter{Status: []domain.JobStatus{domain.JobUninitialized}})
	if err != nil {
		return err
	}
	for _, j := range jobs {
		target, err := c.resolver.InitialStatus(ctx, s, j.ID)
		if err != nil {
			return err
		}
		if err := c.sm.PromoteUninitialized(ctx, s, j, target); err != nil {
			return err
		}
	}

	actions, err := s.ListActions(ctx, workflowID)
	if err != nil {
		return err
	}
	for _, a := range actions {
		if err := c.actions.ResolveTargets(ctx, s, a); err != nil {
			return err
		}
	}
	if err := s.ActivateWorkflowStartActions(ctx, workflowID); err != nil {
		return err
	}

	return s.UpsertWorkflowStatus(ctx, &domain.WorkflowStatus{WorkflowID: workflowID, RunID: 1})
}

// reinitializeResetStatuses picks which terminal statuses Reinitialize resets
// back to Uninitialized, per its (reset_failed_only, only_unfinished) policy
// (spec §4.4's reinitialize signature; see DESIGN.md for how the two flags
// compose, since spec §4.4 names both params but only defines reset_job_status's
// single failed_only in detail):
//   - resetFailedOnly: only Failed/Terminated jobs are reset; Completed and
//     Canceled jobs (and their results) are left untouched.
//   - onlyUnfinished (and not resetFailedOnly): every terminal status except
//     Completed is reset, so a run can be resumed without losing already
//     Completed work.
//   - neither flag: every terminal job is reset, i.e. a full restart.
func reinitializeResetStatuses(resetFailedOnly, onlyUnfinished bool) []domain.JobStatus {
	switch {
	case resetFailedOnly:
		return []domain.JobStatus{domain.JobFailed, domain.JobTerminated}
	case onlyUnfinished:
		return []domain.JobStatus{domain.JobFailed, domain.JobTerminated, domain.JobCanceled}
	default:
		return []domain.JobStatus{domain.JobCompleted, domain.JobFailed, domain.JobTerminated, domain.JobCanceled}
	}
}

// Reinitialize implements spec §4.4's reinitialize: reset the jobs selected
// by (resetFailedOnly, onlyUnfinished) back to Uninitialized, clear the
// WorkflowResult projection for those jobs, clear all action firing state
// (I4), then run the same promotion/target-resolution/arm sequence as
// Initialize with an incremented run_id. Requires the workflow to not
// already be canceled.
func (c *Controller) Reinitialize(ctx context.Context, s storage.Storage, workflowID int64, resetFailedOnly, onlyUnfinished bool) error {
	if err := s.LockWorkflow(ctx, workflowID); err != nil {
		return err
	}

	status, err := s.GetWorkflowStatus(ctx, workflowID)
	if err != nil {
		return err
	}
	if status.IsCanceled {
		return torcerr.New(torcerr.InvalidArgument, "cannot reinitialize a canceled workflow")
	}
	nextRunID := status.RunID + 1

	jobs, err := s.ListJobs(ctx, workflowID, storage.JobFilter{
		Status: reinitializeResetStatuses(resetFailedOnly, onlyUnfinished),
	})
	if err != nil {
		return err
	}
	var resetIDs []int64
	for _, j := range jobs {
		resetIDs = append(resetIDs, j.ID)
		if err := c.sm.Reset(ctx, s, j); err != nil {
			return err
		}
	}
	if len(resetIDs) > 0 {
		if err := s.ClearWorkflowResults(ctx, workflowID, status.RunID, resetIDs); err != nil {
			return err
		}
	}
	if err := s.ResetActions(ctx, workflowID); err != nil {
		return err
	}

	if err := c.resolver.CheckAcyclic(ctx, s, workflowID); err != nil {
		return err
	}
	uninit, err := s.ListJobs(ctx, workflowID, storage.JobFilter{Status: []domain.JobStatus{domain.JobUninitialized}})
	if err != nil {
		return err
	}
	for _, j := range uninit {
		target, err := c.resolver.InitialStatus(ctx, s, j.ID)
		if err != nil {
			return err
		}
		if err := c.sm.PromoteUninitialized(ctx, s, j, target); err != nil {
			return err
		}
	}

	actions, err := s.ListActions(ctx, workflowID)
	if err != nil {
		return err
	}
	for _, a := range actions {
		if err := c.actions.ResolveTargets(ctx, s, a); err != nil {
			return err
		}
	}
	if err := s.ActivateWorkflowStartActions(ctx, workflowID); err != nil {
		return err
	}

	return s.UpsertWorkflowStatus(ctx, &domain.WorkflowStatus{WorkflowID: workflowID, RunID: nextRunID})
}

// Cancel implements spec §4.4's cancel: mark the workflow canceled, move
// every non-terminal, non-Disabled job straight to Canceled regardless of
// the dependency graph, and push every active ScheduledComputeNode's
// desired state to canceling.
func (c *Controller) Cancel(ctx context.Context, s storage.Storage, workflowID int64) error {
	if err := s.LockWorkflow(ctx, workflowID); err != nil {
		return err
	}
	jobs, err := s.ListJobs(ctx, workflowID, storage.JobFilter{})
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if j.Status.IsTerminal() || j.Status == domain.JobDisabled {
			continue
		}
		if err := c.sm.CancelJob(ctx, s, j); err != nil {
			return err
		}
	}
	if err := scheduler.CancelAll(ctx, s, workflowID); err != nil {
		return err
	}
	status, err := s.GetWorkflowStatus(ctx, workflowID)
	if err != nil {
		return err
	}
	status.IsCanceled = true
	return s.UpsertWorkflowStatus(ctx, status)
}

// ResetJobStatus implements spec §4.4's reset_job_status(workflow_id,
// failed_only?, job_ids?): selects terminal jobs in the workflow — narrowed
// to Failed/Terminated if failedOnly is set, and further narrowed to jobIDs
// if non-empty — resets each back to Uninitialized, and re-runs the
// dependency promotion for each alone, without touching the rest of the
// workflow's run state (no run_id bump, no action reset; that is
// Reinitialize's job). Disabled jobs are never reset: they are never
// terminal, so statemachine.Engine.Reset already rejects them and they are
// simply never selected here.
func (c *Controller) ResetJobStatus(ctx context.Context, s storage.Storage, workflowID int64, failedOnly bool, jobIDs []int64) error {
	if err := s.LockWorkflow(ctx, workflowID); err != nil {
		return err
	}
	filter := storage.JobFilter{IDs: jobIDs}
	if failedOnly {
		filter.Status = []domain.JobStatus{domain.JobFailed, domain.JobTerminated}
	}
	jobs, err := s.ListJobs(ctx, workflowID, filter)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if !job.Status.IsTerminal() {
			continue
		}
		if err := c.sm.Reset(ctx, s, job); err != nil {
			return err
		}
		target, err := c.resolver.InitialStatus(ctx, s, job.ID)
		if err != nil {
			return err
		}
		job.Status = domain.JobUninitialized
		if err := c.sm.PromoteUninitialized(ctx, s, job, target); err != nil {
			return err
		}
	}
	return nil
}
