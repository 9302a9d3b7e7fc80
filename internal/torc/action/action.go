// Package action implements the Action Engine of spec §4.7: it resolves a
// WorkflowAction's target job set, evaluates the three non-workflow-start
// trigger predicates after every job transition, and exposes the
// claim-CAS workers use to take at-most-once ownership of a fired action.
//
// Grounded on the teacher's workflow.JobDependency CanStart/Impossible
// bookkeeping style (jsturma-joblet/internal/joblet/workflow/dependency_resolver.go)
// generalized to Torc's declarative, regex-targetable triggers, which have
// no direct teacher analogue.
package action

import (
	"context"
	"regexp"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/storage"
	"github.com/nrel/torc/internal/torc/torcerr"
)

// Engine evaluates and claims WorkflowActions. It is stateless; all
// bookkeeping lives in storage.
type Engine struct{}

func New() *Engine { return &Engine{} }

// ResolveTargets computes the union of an action's explicit job_ids and
// every job whose name matches one of its job_name_regexes, and persists it
// to the workflow_action_jobs join table. Called once per run by the Run
// Controller at initialize/reinitialize time (spec §4.7: "Regex targets are
// resolved once per run"; spec §9 Open Question: job_ids and
// job_name_regexes are unioned, not validated for overlap).
func (e *Engine) ResolveTargets(ctx context.Context, s storage.Storage, a *domain.WorkflowAction) error {
	targets := map[int64]bool{}
	for _, id := range a.JobIDs {
		targets[id] = true
	}
	if len(a.JobNameRegexes) > 0 {
		jobs, err := s.ListJobs(ctx, a.WorkflowID, storage.JobFilter{})
		if err != nil {
			return err
		}
		var compiled []*regexp.Regexp
		for _, pattern := range a.JobNameRegexes {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return torcerr.Wrap(torcerr.InvalidArgument, "invalid job_name_regex", err).WithDetail("pattern", pattern)
			}
			compiled = append(compiled, re)
		}
		for _, j := range jobs {
			for _, re := range compiled {
				if re.MatchString(j.Name) {
					targets[j.ID] = true
					break
				}
			}
		}
	}

	ids := make([]int64, 0, len(targets))
	for id := range targets {
		ids = append(ids, id)
	}
	return s.ResolveActionTargets(ctx, a.ID, ids)
}

// unblocked reports the statuses on_jobs_ready treats as "this job is no
// longer blocked for this run" (spec §4.7): Ready, Pending, Running, or any
// terminal status.
func unblocked(status domain.JobStatus) bool {
	switch status {
	case domain.JobReady, domain.JobPending, domain.JobRunning:
		return true
	default:
		return status.IsTerminal()
	}
}

// OnJobTransition re-evaluates every not-yet-executed action targeting jobID
// after jobID's status changes to newStatus. It marks on_jobs_ready actions
// pending once every target job is unblocked, on_jobs_complete actions
// pending once every target job is terminal, and bumps the spec §4.2 step 5
// audit counter for every action in the workflow whose target set contains
// jobID when newStatus is terminal.
func (e *Engine) OnJobTransition(ctx context.Context, s storage.Storage, workflowID int64, jobID int64, newStatus domain.JobStatus) error {
	if newStatus.IsTerminal() {
		if err := s.IncrementTriggerCount(ctx, workflowID, jobID); err != nil {
			return err
		}
	}

	actions, err := s.ListActionsForJob(ctx, workflowID, jobID)
	if err != nil {
		return err
	}
	for _, a := range actions {
		satisfied, err := e.predicateSatisfied(ctx, s, a)
		if err != nil {
			return err
		}
		if satisfied {
			if _, err := s.MarkActionPendingIfNotAlready(ctx, a.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// OnWorkflowComplete re-evaluates every on_workflow_complete action after a
// transition leaves the workflow with no non-terminal, non-disabled job
// (spec §4.7).
func (e *Engine) OnWorkflowComplete(ctx context.Context, s storage.Storage, workflowID int64) error {
	actions, err := s.ListActions(ctx, workflowID)
	if err != nil {
		return err
	}
	jobs, err := s.ListJobs(ctx, workflowID, storage.JobFilter{})
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if j.Status != domain.JobDisabled && !j.Status.IsTerminal() {
			return nil
		}
	}
	for _, a := range actions {
		if a.TriggerType != domain.TriggerOnWorkflowComplete || a.Executed {
			continue
		}
		if _, err := s.MarkActionPendingIfNotAlready(ctx, a.ID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) predicateSatisfied(ctx context.Context, s storage.Storage, a *domain.WorkflowAction) (bool, error) {
	switch a.TriggerType {
	case domain.TriggerOnJobsReady:
		return e.allTargetsMatch(ctx, s, a, unblocked)
	case domain.TriggerOnJobsComplete:
		return e.allTargetsMatch(ctx, s, a, domain.JobStatus.IsTerminal)
	default:
		// on_workflow_start and on_workflow_complete are evaluated
		// elsewhere (Run Controller, OnWorkflowComplete respectively).
		return false, nil
	}
}

func (e *Engine) allTargetsMatch(ctx context.Context, s storage.Storage, a *domain.WorkflowAction, predicate func(domain.JobStatus) bool) (bool, error) {
	if len(a.JobIDs) == 0 {
		return false, nil
	}
	for _, id := range a.JobIDs {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return false, err
		}
		if !predicate(job.Status) {
			return false, nil
		}
	}
	return true, nil
}

// ClaimAction implements the claim protocol of spec §4.7: an action that is
// pending (trigger_count has reached its firing threshold, i.e. > 0) but not
// yet executed may be claimed exactly once; a second claimer observes
// torcerr.Conflict.
func (e *Engine) ClaimAction(ctx context.Context, s storage.Storage, actionID int64, computeNodeID int64) (*domain.WorkflowAction, error) {
	a, err := s.GetAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if a.TriggerCount == 0 {
		return nil, torcerr.New(torcerr.Conflict, "action has not fired yet")
	}
	if err := s.ClaimAction(ctx, actionID, computeNodeID); err != nil {
		return nil, err
	}
	return s.GetAction(ctx, actionID)
}
