// Package statemachine is the Status Machine of spec §4.2: the single
// authoritative place JobStatus is ever assigned. It holds the transition
// table, applies each transition's side effects (result write already done
// by storage.CompleteJob, dependency cascade, broadcast event, action
// trigger evaluation), and forbids every other code path from touching
// Job.status directly (spec's "Immutability rule").
//
// Grounded on the teacher's domain.JobStatus usage pattern
// (jsturma-joblet/internal/joblet/domain) generalized from a flat status
// setter to an explicit table of legal (from, to) pairs, per spec §9's
// design note "Status as discriminated state."
package statemachine

import (
	"context"

	"github.com/nrel/torc/internal/torc/action"
	"github.com/nrel/torc/internal/torc/broadcast"
	"github.com/nrel/torc/internal/torc/dependency"
	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/storage"
	"github.com/nrel/torc/internal/torc/torcerr"
)

// Engine applies job status transitions and their cascades. A single Engine
// is shared by the Run Controller, Claim Engine, Action Engine callers, and
// Orphan Monitor.
type Engine struct {
	resolver *dependency.Resolver
	actions  *action.Engine
	events   *broadcast.Broadcaster
}

func New(resolver *dependency.Resolver, actions *action.Engine, events *broadcast.Broadcaster) *Engine {
	return &Engine{resolver: resolver, actions: actions, events: events}
}

// legalTransitions is the table of spec §4.2, keyed by (from, to).
var legalTransitions = map[domain.JobStatus]map[domain.JobStatus]bool{
	domain.JobUninitialized: {
		domain.JobReady:    true,
		domain.JobBlocked:  true,
		domain.JobDisabled: true,
		// Cancelling a workflow before it has ever been initialized must
		// still cancel its jobs (spec §4.4: "transitions every non-terminal
		// job to Canceled"); Uninitialized is non-terminal, so this edge
		// has to exist rather than making Cancel skip those jobs.
		domain.JobCanceled: true,
	},
	domain.JobReady:         {domain.JobPending: true, domain.JobCanceled: true},
	domain.JobBlocked:       {domain.JobReady: true, domain.JobCanceled: true},
	domain.JobPending:       {domain.JobRunning: true, domain.JobReady: true, domain.JobCanceled: true},
	domain.JobRunning: {
		domain.JobCompleted:  true,
		domain.JobFailed:     true,
		domain.JobTerminated: true,
		domain.JobCanceled:   true,
	},
	domain.JobCompleted:  {domain.JobUninitialized: true},
	domain.JobFailed:     {domain.JobUninitialized: true},
	domain.JobTerminated: {domain.JobUninitialized: true},
	domain.JobCanceled:   {domain.JobUninitialized: true},
}

// CanTransition reports whether (from, to) appears in the table above.
func CanTransition(from, to domain.JobStatus) bool {
	return legalTransitions[from][to]
}

// transition is the single internal chokepoint every exported operation
// funnels through: validate legality, write the new status, run the
// predicate-evaluation side effects that apply regardless of terminality,
// then (for terminal targets) run the full cascade of spec §4.2 steps 3-5.
func (e *Engine) transition(ctx context.Context, s storage.Storage, job *domain.Job, to domain.JobStatus, activeComputeNodeID *int64) error {
	if !CanTransition(job.Status, to) {
		return torcerr.New(torcerr.InvalidArgument, "illegal transition from "+string(job.Status)+" to "+string(to))
	}
	if err := s.SetJobStatus(ctx, job.ID, to, activeComputeNodeID); err != nil {
		return err
	}

	if e.events != nil {
		e.events.Publish(job.WorkflowID, "job.status_changed", severityFor(to), map[string]any{
			"job_id": job.ID, "from": string(job.Status), "to": string(to),
		})
	}

	if e.actions != nil {
		if err := e.actions.OnJobTransition(ctx, s, job.WorkflowID, job.ID, to); err != nil {
			return err
		}
	}

	if !to.IsTerminal() {
		return nil
	}
	return e.cascade(ctx, s, job.WorkflowID, job.ID, to)
}

func severityFor(status domain.JobStatus) broadcast.Severity {
	switch status {
	case domain.JobFailed, domain.JobTerminated:
		return broadcast.SeverityError
	case domain.JobCanceled:
		return broadcast.SeverityWarn
	default:
		return broadcast.SeverityInfo
	}
}

// cascade implements spec §4.2 steps 3-5 for a job that just reached a
// terminal status: ask the Dependency Resolver which dependents unblock or
// cancel as a result, apply those transitions (recursing through cascade
// again since a cancellation can itself unblock nothing but can itself
// cascade further cancellations), and finally check whether the whole
// workflow just completed.
func (e *Engine) cascade(ctx context.Context, s storage.Storage, workflowID int64, jobID int64, status domain.JobStatus) error {
	outcomes, err := e.resolver.OnBlockerTerminal(ctx, s, workflowID, jobID, status)
	if err != nil {
		return err
	}
	for _, o := range outcomes {
		dep, err := s.GetJob(ctx, o.JobID)
		if err != nil {
			return err
		}
		if dep.Status != domain.JobBlocked {
			continue // already moved on by a different blocker's cascade
		}
		if err := e.transition(ctx, s, dep, o.NewStatus, nil); err != nil {
			return err
		}
	}
	if e.actions != nil {
		if err := e.actions.OnWorkflowComplete(ctx, s, workflowID); err != nil {
			return err
		}
	}
	return nil
}

// Start applies Pending -> Running: a worker reporting execution start with
// (run_id, compute_node_id).
func (e *Engine) Start(ctx context.Context, s storage.Storage, jobID int64, computeNodeID int64) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobPending {
		return torcerr.New(torcerr.InvalidArgument, "job is not pending")
	}
	return e.transition(ctx, s, job, domain.JobRunning, &computeNodeID)
}

// Complete applies Running -> {Completed, Failed, Terminated} based on the
// result's return code / termination flag, after storage.CompleteJob has
// already verified the job was Pending or Running and written the Result
// row (spec §4.1's complete_job contract).
func (e *Engine) Complete(ctx context.Context, s storage.Storage, job *domain.Job, result *domain.Result, terminatedBySignal bool) error {
	var target domain.JobStatus
	switch {
	case terminatedBySignal:
		target = domain.JobTerminated
	case result.ReturnCode == 0:
		target = domain.JobCompleted
	default:
		target = domain.JobFailed
	}
	if job.Status == domain.JobPending {
		// CompleteJob tolerates a job that never got an explicit Start
		// call (a worker may complete without a separate start RPC); make
		// the Pending -> Running edge implicit so the table stays a pure
		// lookup rather than special-cased here.
		if err := s.SetJobStatus(ctx, job.ID, domain.JobRunning, job.ActiveComputeNodeID); err != nil {
			return err
		}
		job.Status = domain.JobRunning
	}
	result.Status = target
	return e.transition(ctx, s, job, target, nil)
}

// CancelJob applies any non-terminal -> Canceled, used directly by the Run
// Controller's workflow-wide cancel and by the Dependency Resolver cascade.
func (e *Engine) CancelJob(ctx context.Context, s storage.Storage, job *domain.Job) error {
	if job.Status.IsTerminal() || job.Status == domain.JobDisabled {
		return nil
	}
	return e.transition(ctx, s, job, domain.JobCanceled, nil)
}

// Unblock applies Blocked -> Ready. Nothing in the core calls it: the Run
// Controller promotes jobs through PromoteUninitialized, and cascade applies
// the resolver's Blocked -> Ready outcomes through transition directly.
func (e *Engine) Unblock(ctx context.Context, s storage.Storage, job *domain.Job) error {
	return e.transition(ctx, s, job, domain.JobReady, nil)
}

// PromoteUninitialized applies Uninitialized -> {Ready, Blocked, Disabled},
// used by the Run Controller at initialize/reinitialize time.
func (e *Engine) PromoteUninitialized(ctx context.Context, s storage.Storage, job *domain.Job, to domain.JobStatus) error {
	return e.transition(ctx, s, job, to, nil)
}

// Reset applies any terminal -> Uninitialized (spec §4.4's reset_job_status).
// Disabled jobs are never reset (spec §4.2); callers must filter them out
// before calling Reset.
func (e *Engine) Reset(ctx context.Context, s storage.Storage, job *domain.Job) error {
	if !job.Status.IsTerminal() {
		return torcerr.New(torcerr.InvalidArgument, "job is not in a terminal state")
	}
	if err := s.SetJobStatus(ctx, job.ID, domain.JobUninitialized, nil); err != nil {
		return err
	}
	if e.events != nil {
		e.events.Publish(job.WorkflowID, "job.reset", broadcast.SeverityInfo, map[string]any{"job_id": job.ID})
	}
	return nil
}
