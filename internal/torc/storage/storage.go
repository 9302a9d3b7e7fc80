// Package storage is the Storage Layer of spec §4.1: the only component in
// the tree with database coupling. It exposes typed queries for every
// entity in the data model plus the three hot-path transactions
// (claim_jobs, complete_job, claim_action) that must serialize with
// snapshot isolation. No caller outside this package ever sees a *sql.Tx,
// a driver name, or a row.
package storage

import (
	"context"
	"time"

	"github.com/nrel/torc/internal/torc/domain"
)

// JobFilter narrows ListJobs. Zero values mean "no filter on this field".
type JobFilter struct {
	Status     []domain.JobStatus
	IDs        []int64
	NamePrefix string
	Limit      int
}

// ClaimSelector narrows ClaimJobs to jobs whose resource requirement
// matches, used when a worker advertises resource capacity (spec §4.6).
// ClaimJobs filters only on ResourceRequirementNames; MaxNumCPUs,
// MaxNumGPUs and MaxMemoryBytes are carried but not used to filter.
type ClaimSelector struct {
	ResourceRequirementNames []string
	MaxNumCPUs               int32
	MaxNumGPUs               int32
	MaxMemoryBytes           int64
}

// Storage is the full contract the rest of the core depends on. A single
// concrete type backs both the Postgres and SQLite deployments; the SQL
// dialect difference is confined to this package.
type Storage interface {
	// WithTx runs fn within a single serializable transaction and commits
	// iff fn returns nil. Nested calls reuse the outer transaction. This is
	// the seam every multi-step operation in the core (Run Controller,
	// Dependency Resolver cascades, Action Engine) uses instead of taking a
	// *sql.Tx directly.
	WithTx(ctx context.Context, fn func(ctx context.Context, s Storage) error) error

	Close() error

	WorkflowStore
	JobStore
	ResourceRequirementStore
	FileStore
	UserDataStore
	ComputeNodeStore
	ScheduledComputeNodeStore
	ResultStore
	EventStore
	ActionStore
	HotPath
}

// WorkflowStore covers Workflow and WorkflowStatus.
type WorkflowStore interface {
	CreateWorkflow(ctx context.Context, w *domain.Workflow) (int64, error)
	GetWorkflow(ctx context.Context, id int64) (*domain.Workflow, error)
	GetWorkflowByName(ctx context.Context, user, name string) (*domain.Workflow, error)
	ListWorkflows(ctx context.Context, user string, includeArchived bool) ([]*domain.Workflow, error)
	ArchiveWorkflow(ctx context.Context, id int64) error
	DeleteWorkflow(ctx context.Context, id int64) error

	GetWorkflowStatus(ctx context.Context, workflowID int64) (*domain.WorkflowStatus, error)
	UpsertWorkflowStatus(ctx context.Context, st *domain.WorkflowStatus) error
	// LockWorkflow takes the exclusive row lock run-lifecycle operations
	// need (spec §4.4, §5). It must be called inside WithTx.
	LockWorkflow(ctx context.Context, workflowID int64) error
	// ActiveWorkflowIDs returns every non-archived, not-yet-complete
	// workflow, the sweep set the Orphan Monitor's cron tick iterates.
	ActiveWorkflowIDs(ctx context.Context) ([]int64, error)
}

// JobStore covers Job and its dependency edges.
type JobStore interface {
	CreateJob(ctx context.Context, j *domain.Job) (int64, error)
	GetJob(ctx context.Context, id int64) (*domain.Job, error)
	GetJobByName(ctx context.Context, workflowID int64, name string) (*domain.Job, error)
	ListJobs(ctx context.Context, workflowID int64, filter JobFilter) ([]*domain.Job, error)
	// UpdateJobFields applies a non-status generic update. Returns
	// torcerr.ImmutableField if the job is not Uninitialized (spec §4.2).
	UpdateJobFields(ctx context.Context, j *domain.Job) error
	// SetJobStatus is the ONLY path that may change status; it is called
	// by statemachine.Engine, never directly by handlers.
	SetJobStatus(ctx context.Context, jobID int64, status domain.JobStatus, activeComputeNodeID *int64) error
	ListReadyJobs(ctx context.Context, workflowID int64) ([]*domain.Job, error)
	// ListDependents returns jobs that list blockerJobID as a direct or
	// file/user-data-mediated blocker.
	ListDependents(ctx context.Context, workflowID int64, blockerJobID int64) ([]*domain.Job, error)
	// CountUnsatisfiedBlockers returns the number of this job's blockers
	// not yet Completed.
	CountUnsatisfiedBlockers(ctx context.Context, jobID int64) (int, error)
	// BlockerJobIDs returns every direct and file/user-data-mediated
	// blocker of jobID regardless of status, for cycle detection.
	BlockerJobIDs(ctx context.Context, jobID int64) ([]int64, error)
}

// ResourceRequirementStore covers named resource profiles.
type ResourceRequirementStore interface {
	CreateResourceRequirement(ctx context.Context, r *domain.ResourceRequirement) (int64, error)
	GetResourceRequirement(ctx context.Context, id int64) (*domain.ResourceRequirement, error)
	ListResourceRequirements(ctx context.Context, workflowID int64) ([]*domain.ResourceRequirement, error)
}

// FileStore covers workflow-owned artifacts.
type FileStore interface {
	CreateFile(ctx context.Context, f *domain.File) (int64, error)
	GetFile(ctx context.Context, id int64) (*domain.File, error)
	ListFiles(ctx context.Context, workflowID int64) ([]*domain.File, error)
	// ListRequiredExistingFiles returns input files with no producing job
	// (spec §4.5's "list-required-existing-files").
	ListRequiredExistingFiles(ctx context.Context, workflowID int64) ([]*domain.File, error)
}

// UserDataStore covers structured JSON artifacts.
type UserDataStore interface {
	CreateUserData(ctx context.Context, u *domain.UserData) (int64, error)
	GetUserData(ctx context.Context, id int64) (*domain.UserData, error)
	ListUserData(ctx context.Context, workflowID int64) ([]*domain.UserData, error)
}

// ComputeNodeStore covers worker self-registration records.
type ComputeNodeStore interface {
	CreateComputeNode(ctx context.Context, c *domain.ComputeNode) (int64, error)
	GetComputeNode(ctx context.Context, id int64) (*domain.ComputeNode, error)
	ListActiveComputeNodes(ctx context.Context, workflowID int64) ([]*domain.ComputeNode, error)
	// DeactivateComputeNode marks a node inactive. Returns false if it was
	// already inactive (idempotent).
	DeactivateComputeNode(ctx context.Context, id int64) (wasActive bool, err error)
	// JobsActiveOn returns jobs whose active_compute_node_id is id and whose
	// status is Pending or Running, used by the Orphan Monitor.
	JobsActiveOn(ctx context.Context, computeNodeID int64) ([]*domain.Job, error)
}

// ScheduledComputeNodeStore covers requested allocations.
type ScheduledComputeNodeStore interface {
	CreateScheduledComputeNode(ctx context.Context, s *domain.ScheduledComputeNode) (int64, error)
	GetScheduledComputeNode(ctx context.Context, id int64) (*domain.ScheduledComputeNode, error)
	ListScheduledComputeNodes(ctx context.Context, workflowID int64, status domain.ScheduledComputeNodeStatus) ([]*domain.ScheduledComputeNode, error)
	SetScheduledComputeNodeStatus(ctx context.Context, id int64, status domain.ScheduledComputeNodeStatus) error
	// FulfillScheduledComputeNode links a newly registered ComputeNode to
	// the ScheduledComputeNode it fulfills and advances it to active.
	FulfillScheduledComputeNode(ctx context.Context, id, computeNodeID int64) error
	// FindScheduledComputeNodeFor maps a ComputeNode back to the
	// ScheduledComputeNode it fulfilled, if any (spec §4.9 step 4).
	FindScheduledComputeNodeFor(ctx context.Context, computeNodeID int64) (*domain.ScheduledComputeNode, error)
}

// ResultStore covers per-attempt outcomes and the WorkflowResult projection.
type ResultStore interface {
	CreateResult(ctx context.Context, r *domain.Result) (int64, error)
	ListResults(ctx context.Context, jobID int64) ([]*domain.Result, error)
	// LatestResults returns the WorkflowResult projection: the latest
	// Result per job for the current run.
	LatestResults(ctx context.Context, workflowID int64, runID int64) ([]*domain.Result, error)
	// ClearWorkflowResults deletes the given jobs' Result rows for runID
	// ahead of a reinitialize that will re-execute them (spec §4.4), which
	// removes them from that run's WorkflowResult projection. Result rows of
	// other runs are kept.
	ClearWorkflowResults(ctx context.Context, workflowID int64, runID int64, jobIDs []int64) error
}

// EventStore covers the persisted audit log (distinct from the ephemeral
// broadcast channel).
type EventStore interface {
	AppendEvent(ctx context.Context, e *domain.Event) (int64, error)
	ListEvents(ctx context.Context, workflowID int64, since int64, limit int) ([]*domain.Event, error)
}

// ActionStore covers declarative triggers.
type ActionStore interface {
	CreateAction(ctx context.Context, a *domain.WorkflowAction) (int64, error)
	GetAction(ctx context.Context, id int64) (*domain.WorkflowAction, error)
	ListActions(ctx context.Context, workflowID int64) ([]*domain.WorkflowAction, error)
	// IncrementTriggerCount bumps trigger_count for every action in the
	// workflow whose job set contains jobID, in the same transaction as the
	// status transition that caused it (spec §4.2 step 5, I3).
	IncrementTriggerCount(ctx context.Context, workflowID int64, jobID int64) error
	// ClaimAction is the compare-and-set: executed=false -> true,
	// executed_by=computeNodeID. Returns torcerr.Conflict if already
	// executed.
	ClaimAction(ctx context.Context, actionID int64, computeNodeID int64) error
	// ResetActions clears trigger_count/executed/executed_by for every
	// action in the workflow (spec §4.4, §4.7, I4).
	ResetActions(ctx context.Context, workflowID int64) error
	// ListActionsForJob returns not-yet-executed actions whose resolved
	// target job set (explicit job_ids unioned with regex matches resolved
	// at initialize/reinitialize time) contains jobID.
	ListActionsForJob(ctx context.Context, workflowID int64, jobID int64) ([]*domain.WorkflowAction, error)
	// MarkActionPendingIfNotAlready is the 0->1 compare-and-set on
	// trigger_count the Action Engine uses to record that a non-workflow-
	// scoped action's predicate has newly become satisfied (spec §4.7,
	// I3: trigger_count only ever increases).
	MarkActionPendingIfNotAlready(ctx context.Context, actionID int64) (becamePending bool, err error)
	// ActivateWorkflowStartActions marks every on_workflow_start action in
	// the workflow pending exactly once per run (spec §4.7).
	ActivateWorkflowStartActions(ctx context.Context, workflowID int64) error
	// ResolveActionTargets replaces an action's resolved job_ids with the
	// union of its explicit ids and every job in the workflow whose name
	// matches one of its job_name_regexes, evaluated once per run at
	// initialize/reinitialize time (spec §4.7, Open Question in spec §9:
	// job_ids and job_name_regexes are treated as a union).
	ResolveActionTargets(ctx context.Context, actionID int64, jobIDs []int64) error
}

// HotPath groups two of the three operations spec §4.1 and §5 require to
// execute inside a single serializable transaction with no cross-workflow
// suspension; the third, ClaimAction, is on ActionStore.
type HotPath interface {
	// ClaimJobs selects up to limit Ready jobs (optionally narrowed by
	// selector) and atomically marks them Pending, setting
	// active_compute_node_id when computeNodeID is non-nil. Concurrent
	// callers on the same workflow never receive overlapping sets (I1).
	ClaimJobs(ctx context.Context, workflowID int64, limit int, selector *ClaimSelector, computeNodeID *int64) ([]*domain.Job, error)

	// CompleteJob verifies the job is Pending or Running, inserts the
	// Result row, clears active_compute_node_id, and reports the row back
	// to the caller so the Status Machine can drive the transition and
	// cascade within the same transaction.
	CompleteJob(ctx context.Context, jobID int64, runID int64, attemptID int64, result *domain.Result) (*domain.Job, error)
}

// now is overridable in tests; production code always calls time.Now.
var now = time.Now
