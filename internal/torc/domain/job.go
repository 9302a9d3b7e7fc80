// Package domain holds the entities of the Torc data model (spec §3): the
// Workflow, Job, File, UserData, ResourceRequirement, ComputeNode,
// ScheduledComputeNode, Result, Event and WorkflowAction types and the
// enums that constrain them.
package domain

import "time"

// JobStatus is the discriminated state of a Job. It is never set by a
// generic update path — only the transitions in statemachine.Engine may
// assign it.
type JobStatus string

const (
	JobUninitialized JobStatus = "uninitialized"
	JobReady         JobStatus = "ready"
	JobBlocked       JobStatus = "blocked"
	JobPending       JobStatus = "pending"
	JobRunning       JobStatus = "running"
	JobCompleted     JobStatus = "completed"
	JobFailed        JobStatus = "failed"
	JobCanceled      JobStatus = "canceled"
	JobTerminated    JobStatus = "terminated"
	JobDisabled      JobStatus = "disabled"
)

// IsTerminal reports whether the status is one the state machine will never
// transition out of except via an explicit reset.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCanceled, JobTerminated:
		return true
	default:
		return false
	}
}

// OrphanSentinelReturnCode is the contract with the HPC bundle-analysis
// layer (spec §4.9, §6): orphan-detected failures always carry this code,
// bit-exact, distinct from any signal-mapped value.
const OrphanSentinelReturnCode int32 = -128

// Job is one node of the workflow DAG.
type Job struct {
	ID                         int64   `db:"id" json:"id"`
	WorkflowID                 int64   `db:"workflow_id" json:"workflow_id"`
	Name                       string  `db:"name" json:"name"`
	Command                    string  `db:"command" json:"command"`
	ResourceRequirementsID     *int64  `db:"resource_requirements_id" json:"resource_requirements_id,omitempty"`
	InvocationScript           *string `db:"invocation_script" json:"invocation_script,omitempty"`
	Status                     JobStatus `db:"status" json:"status"`
	CancelOnBlockingJobFailure bool    `db:"cancel_on_blocking_job_failure" json:"cancel_on_blocking_job_failure"`
	SupportsTermination        bool    `db:"supports_termination" json:"supports_termination"`
	ActiveComputeNodeID        *int64  `db:"active_compute_node_id" json:"active_compute_node_id,omitempty"`

	DependsOnJobIDs   []int64 `db:"-" json:"depends_on_job_ids,omitempty"`
	InputFileIDs      []int64 `db:"-" json:"input_file_ids,omitempty"`
	OutputFileIDs     []int64 `db:"-" json:"output_file_ids,omitempty"`
	InputUserDataIDs  []int64 `db:"-" json:"input_user_data_ids,omitempty"`
	OutputUserDataIDs []int64 `db:"-" json:"output_user_data_ids,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Validate checks the invariants generic-update paths must not be able to
// violate (name format, non-empty command). Status is intentionally not
// checked here: only statemachine.Engine may change it.
func (j *Job) Validate() error {
	if j.Command == "" {
		return ErrEmptyCommand
	}
	if j.Name == "" {
		return ErrEmptyName
	}
	return nil
}

// Workflow is the top-level owner of all other entities (spec §3).
type Workflow struct {
	ID          int64      `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	User        string     `db:"user_name" json:"user"`
	Description *string    `db:"description" json:"description,omitempty"`
	IsArchived  bool       `db:"is_archived" json:"is_archived"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// WorkflowStatus is the one-per-workflow run/cancel/completion projection.
type WorkflowStatus struct {
	WorkflowID int64 `db:"workflow_id" json:"workflow_id"`
	RunID      int64 `db:"run_id" json:"run_id"`
	IsCanceled bool  `db:"is_canceled" json:"is_canceled"`
	IsComplete bool  `db:"is_complete" json:"is_complete"`
}

// ResourceRequirement is a named resource profile referenced by jobs.
type ResourceRequirement struct {
	ID             int64 `db:"id" json:"id"`
	WorkflowID     int64 `db:"workflow_id" json:"workflow_id"`
	Name           string `db:"name" json:"name"`
	NumCPUs        int32 `db:"num_cpus" json:"num_cpus"`
	NumGPUs        int32 `db:"num_gpus" json:"num_gpus"`
	NumNodes       int32 `db:"num_nodes" json:"num_nodes"`
	MemoryBytes    int64 `db:"memory_bytes" json:"memory_bytes"`
	RuntimeSeconds int64 `db:"runtime_seconds" json:"runtime_seconds"`
}

// ReservedResourceRequirementName is reserved per spec §3.
const ReservedResourceRequirementName = "default"

// File is a workflow-owned artifact referenced by jobs as input or output.
type File struct {
	ID         int64      `db:"id" json:"id"`
	WorkflowID int64      `db:"workflow_id" json:"workflow_id"`
	Name       string     `db:"name" json:"name"`
	Path       string     `db:"path" json:"path"`
	StMtime    *time.Time `db:"st_mtime" json:"st_mtime,omitempty"`
}

// UserData is a structured (JSON) artifact produced/consumed by jobs.
type UserData struct {
	ID          int64  `db:"id" json:"id"`
	WorkflowID  int64  `db:"workflow_id" json:"workflow_id"`
	Name        string `db:"name" json:"name"`
	DataJSON    string `db:"data_json" json:"data"`
	IsEphemeral bool   `db:"is_ephemeral" json:"is_ephemeral"`
}

// ComputeNodeType enumerates the kinds of execution environment a worker
// announces itself from.
type ComputeNodeType string

const (
	ComputeNodeLocal ComputeNodeType = "local"
	ComputeNodeSlurm ComputeNodeType = "slurm"
)

// ComputeNode is a worker process's self-registration record.
type ComputeNode struct {
	ID            int64           `db:"id" json:"id"`
	WorkflowID    int64           `db:"workflow_id" json:"workflow_id"`
	Hostname      string          `db:"hostname" json:"hostname"`
	Pid           int32           `db:"pid" json:"pid"`
	StartTime     time.Time       `db:"start_time" json:"start_time"`
	NumCPUs       int32           `db:"num_cpus" json:"num_cpus"`
	MemoryGB      float64         `db:"memory_gb" json:"memory_gb"`
	NumGPUs       int32           `db:"num_gpus" json:"num_gpus"`
	NumNodes      int32           `db:"num_nodes" json:"num_nodes"`
	NodeType      ComputeNodeType `db:"node_type" json:"node_type"`
	SchedulerMeta *string         `db:"scheduler_meta" json:"scheduler_meta,omitempty"`
	IsActive      bool            `db:"is_active" json:"is_active"`

	// ScheduledComputeNodeID is set on the registration request when this
	// node is a worker attaching to a previously requested allocation
	// (spec §3 ScheduledComputeNode, §4.9 step 4). It is never persisted on
	// the compute_nodes row itself; the link is recorded as
	// fulfilled_by_node_id on the scheduled_compute_nodes row.
	ScheduledComputeNodeID *int64 `db:"-" json:"scheduled_compute_node_id,omitempty"`
}

// ScheduledComputeNodeStatus is the lifecycle of a requested allocation,
// independent of whether any worker has attached to it yet.
type ScheduledComputeNodeStatus string

const (
	ScheduledPending   ScheduledComputeNodeStatus = "pending"
	ScheduledActive    ScheduledComputeNodeStatus = "active"
	ScheduledCanceling ScheduledComputeNodeStatus = "canceling"
	ScheduledComplete  ScheduledComputeNodeStatus = "complete"
)

// ScheduledComputeNode tracks a requested allocation from an external
// scheduler (Slurm, etc) before or after a worker has attached.
type ScheduledComputeNode struct {
	ID                int64                      `db:"id" json:"id"`
	WorkflowID        int64                      `db:"workflow_id" json:"workflow_id"`
	SchedulerID       string                     `db:"scheduler_id" json:"scheduler_id"`
	SchedulerConfigID int64                      `db:"scheduler_config_id" json:"scheduler_config_id"`
	SchedulerType     string                     `db:"scheduler_type" json:"scheduler_type"`
	Status            ScheduledComputeNodeStatus `db:"status" json:"status"`
	FulfilledByNodeID *int64                     `db:"fulfilled_by_node_id" json:"fulfilled_by_node_id,omitempty"`
}

// Result is one attempt's outcome, one row per (job_id, run_id, attempt_id).
type Result struct {
	ID              int64     `db:"id" json:"id"`
	JobID           int64     `db:"job_id" json:"job_id"`
	WorkflowID      int64     `db:"workflow_id" json:"workflow_id"`
	RunID           int64     `db:"run_id" json:"run_id"`
	AttemptID       int64     `db:"attempt_id" json:"attempt_id"`
	ComputeNodeID   *int64    `db:"compute_node_id" json:"compute_node_id,omitempty"`
	ReturnCode      int32     `db:"return_code" json:"return_code"`
	ExecTimeMinutes float64   `db:"exec_time_minutes" json:"exec_time_minutes"`
	CompletionTime  time.Time `db:"completion_time" json:"completion_time"`
	Status          JobStatus `db:"status" json:"status"`
	PeakMemoryBytes *int64    `db:"peak_memory_bytes" json:"peak_memory_bytes,omitempty"`
	AvgCPUPercent   *float64  `db:"avg_cpu_percent" json:"avg_cpu_percent,omitempty"`
}

// Event is an insertion-ordered audit record (distinct from the ephemeral
// broadcast channel in internal/torc/broadcast).
type Event struct {
	ID          int64   `db:"id" json:"id"`
	WorkflowID  int64   `db:"workflow_id" json:"workflow_id"`
	TimestampMs int64   `db:"timestamp_ms" json:"timestamp_ms"`
	Category    *string `db:"category" json:"category,omitempty"`
	DataJSON    string  `db:"data_json" json:"data"`
}

// WorkflowActionTriggerType enumerates the three trigger kinds of spec §4.7.
type WorkflowActionTriggerType string

const (
	TriggerOnWorkflowStart    WorkflowActionTriggerType = "on_workflow_start"
	TriggerOnJobsReady        WorkflowActionTriggerType = "on_jobs_ready"
	TriggerOnJobsComplete     WorkflowActionTriggerType = "on_jobs_complete"
	TriggerOnWorkflowComplete WorkflowActionTriggerType = "on_workflow_complete"
)

// WorkflowActionType enumerates the two action kinds of spec §4.7.
type WorkflowActionType string

const (
	ActionRunCommands   WorkflowActionType = "run_commands"
	ActionScheduleNodes WorkflowActionType = "schedule_nodes"
)

// WorkflowAction is a declarative, at-most-once-claimed trigger.
type WorkflowAction struct {
	ID               int64                     `db:"id" json:"id"`
	WorkflowID       int64                     `db:"workflow_id" json:"workflow_id"`
	TriggerType      WorkflowActionTriggerType `db:"trigger_type" json:"trigger_type"`
	ActionType       WorkflowActionType        `db:"action_type" json:"action_type"`
	ActionConfigJSON string                    `db:"action_config_json" json:"action_config"`
	JobIDs           []int64                   `db:"-" json:"job_ids,omitempty"`
	JobNameRegexes   []string                  `db:"-" json:"job_name_regexes,omitempty"`
	TriggerCount     int64                     `db:"trigger_count" json:"trigger_count"`
	Executed         bool                      `db:"executed" json:"executed"`
	ExecutedBy       *int64                    `db:"executed_by" json:"executed_by,omitempty"`
}
