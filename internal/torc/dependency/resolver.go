// Package dependency implements the Dependency Resolver of spec §4.5: it
// translates a job's declared job/file/user-data inputs into the blocking
// graph, detects cycles at initialization, and drives the
// completion/cancellation cascade when a blocker reaches a terminal state.
//
// Grounded on the teacher's workflow.DependencyResolver
// (jsturma-joblet/internal/joblet/workflow/dependency_resolver.go): the
// cascade shape (walk dependents, mark impossible/cancel, recurse) is the
// same; the requirement language is generalized from job-name expressions
// to the three blocker kinds of spec §4.5, and the store of record is
// internal/torc/storage rather than an in-memory map.
package dependency

import (
	"context"
	"fmt"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/storage"
	"github.com/nrel/torc/internal/torc/torcerr"
)

// Resolver computes the blocking graph against a Storage. It carries no
// state of its own: the graph lives entirely in the job_dependencies,
// job_input_files and job_input_user_data join tables.
type Resolver struct{}

// New constructs a Resolver. It is stateless and safe for concurrent use.
func New() *Resolver { return &Resolver{} }

// InitialStatus computes the Uninitialized -> {Ready, Blocked} transition
// target for a job at workflow initialize time: Ready if it has zero
// blockers, Blocked otherwise (spec §4.5).
func (r *Resolver) InitialStatus(ctx context.Context, s storage.Storage, jobID int64) (domain.JobStatus, error) {
	n, err := s.CountUnsatisfiedBlockers(ctx, jobID)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return domain.JobReady, nil
	}
	return domain.JobBlocked, nil
}

// CheckAcyclic computes a topological order over every job in the workflow
// and returns torcerr.CyclicDependency if one does not exist. Called once by
// the Run Controller before any status is assigned, per spec §4.5: "a cycle
// raises CyclicDependency and aborts initialization."
func (r *Resolver) CheckAcyclic(ctx context.Context, s storage.Storage, workflowID int64) error {
	jobs, err := s.ListJobs(ctx, workflowID, storage.JobFilter{})
	if err != nil {
		return err
	}

	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS stack
		black = 2 // fully visited
	)
	color := make(map[int64]int, len(jobs))
	blockers := make(map[int64][]int64, len(jobs))
	for _, j := range jobs {
		ids, err := s.BlockerJobIDs(ctx, j.ID)
		if err != nil {
			return err
		}
		blockers[j.ID] = ids
		color[j.ID] = white
	}

	var visit func(id int64) error
	visit = func(id int64) error {
		color[id] = gray
		for _, b := range blockers[id] {
			switch color[b] {
			case gray:
				return torcerr.New(torcerr.CyclicDependency, fmt.Sprintf("cycle detected involving job %d", id))
			case white:
				if err := visit(b); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, j := range jobs {
		if color[j.ID] == white {
			if err := visit(j.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Outcome describes the consequence of a blocker's terminal transition on
// one dependent job.
type Outcome struct {
	JobID     int64
	NewStatus domain.JobStatus // domain.JobReady or domain.JobCanceled
}

// OnBlockerTerminal implements spec §4.5's cascade: for every job that lists
// blockerJobID as a dependency (directly, or via a file/user-data
// producer/consumer edge), decrement its unsatisfied-blocker count if the
// blocker Completed, or cancel it (transitively) if the blocker failed and
// cancel_on_blocking_job_failure is set. Returns the set of jobs that
// changed status as a result, for the caller to apply via statemachine and
// cascade further.
func (r *Resolver) OnBlockerTerminal(ctx context.Context, s storage.Storage, workflowID int64, blockerJobID int64, blockerStatus domain.JobStatus) ([]Outcome, error) {
	dependents, err := s.ListDependents(ctx, workflowID, blockerJobID)
	if err != nil {
		return nil, err
	}

	var outcomes []Outcome
	for _, dep := range dependents {
		if dep.Status != domain.JobBlocked {
			// Only Blocked jobs are waiting; Uninitialized jobs haven't been
			// promoted yet and anything else has already moved on.
			continue
		}
		if blockerStatus == domain.JobCompleted {
			n, err := s.CountUnsatisfiedBlockers(ctx, dep.ID)
			if err != nil {
				return nil, err
			}
			if n == 0 {
				outcomes = append(outcomes, Outcome{JobID: dep.ID, NewStatus: domain.JobReady})
			}
			continue
		}
		// blockerStatus is Failed, Terminated, or Canceled.
		if dep.CancelOnBlockingJobFailure {
			outcomes = append(outcomes, Outcome{JobID: dep.ID, NewStatus: domain.JobCanceled})
		}
	}
	return outcomes, nil
}
