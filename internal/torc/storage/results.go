package storage

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/nrel/torc/internal/torc/domain"
)

type resultRow struct {
	ID              int64           `db:"id"`
	JobID           int64           `db:"job_id"`
	WorkflowID      int64           `db:"workflow_id"`
	RunID           int64           `db:"run_id"`
	AttemptID       int64           `db:"attempt_id"`
	ComputeNodeID   sql.NullInt64   `db:"compute_node_id"`
	ReturnCode      int32           `db:"return_code"`
	ExecTimeMinutes float64         `db:"exec_time_minutes"`
	CompletionTime  sql.NullTime    `db:"completion_time"`
	Status          string          `db:"status"`
	PeakMemoryBytes sql.NullInt64   `db:"peak_memory_bytes"`
	AvgCPUPercent   sql.NullFloat64 `db:"avg_cpu_percent"`
}

func (r resultRow) toDomain() *domain.Result {
	res := &domain.Result{
		ID:              r.ID,
		JobID:           r.JobID,
		WorkflowID:      r.WorkflowID,
		RunID:           r.RunID,
		AttemptID:       r.AttemptID,
		ReturnCode:      r.ReturnCode,
		ExecTimeMinutes: r.ExecTimeMinutes,
		CompletionTime:  r.CompletionTime.Time,
		Status:          domain.JobStatus(r.Status),
	}
	if r.ComputeNodeID.Valid {
		res.ComputeNodeID = &r.ComputeNodeID.Int64
	}
	if r.PeakMemoryBytes.Valid {
		res.PeakMemoryBytes = &r.PeakMemoryBytes.Int64
	}
	if r.AvgCPUPercent.Valid {
		res.AvgCPUPercent = &r.AvgCPUPercent.Float64
	}
	return res
}

const resultColumns = `id, job_id, workflow_id, run_id, attempt_id, compute_node_id, return_code,
	exec_time_minutes, completion_time, status, peak_memory_bytes, avg_cpu_percent`

// CreateResult inserts one attempt's outcome. Uniqueness on (job_id, run_id,
// attempt_id) is enforced by the results table (spec §3).
func (s *sqlStore) CreateResult(ctx context.Context, r *domain.Result) (int64, error) {
	if r.CompletionTime.IsZero() {
		r.CompletionTime = now()
	}
	query := s.rebind(`INSERT INTO results (job_id, workflow_id, run_id, attempt_id, compute_node_id,
		return_code, exec_time_minutes, completion_time, status, peak_memory_bytes, avg_cpu_percent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	res, err := s.ext().ExecContext(ctx, query, r.JobID, r.WorkflowID, r.RunID, r.AttemptID, r.ComputeNodeID,
		r.ReturnCode, r.ExecTimeMinutes, r.CompletionTime, string(r.Status), r.PeakMemoryBytes, r.AvgCPUPercent)
	if err != nil {
		return 0, classifyUniqueViolation(err, "result already recorded for this job/run/attempt")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	r.ID = id
	return id, nil
}

func (s *sqlStore) ListResults(ctx context.Context, jobID int64) ([]*domain.Result, error) {
	var rows []resultRow
	query := s.rebind(`SELECT ` + resultColumns + ` FROM results WHERE job_id = ? ORDER BY run_id, attempt_id`)
	if err := sqlx.SelectContext(ctx, s.ext(), &rows, query, jobID); err != nil {
		return nil, err
	}
	out := make([]*domain.Result, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// LatestResults implements the WorkflowResult projection: the latest Result
// per job for the current run (spec §3). Computed as a query rather than a
// materialized table, since the projection is always "latest row per
// (job_id) within run_id" and results are append-only.
func (s *sqlStore) LatestResults(ctx context.Context, workflowID int64, runID int64) ([]*domain.Result, error) {
	query := s.rebind(`
SELECT ` + resultColumns + ` FROM results r
WHERE r.workflow_id = ? AND r.run_id = ?
AND r.attempt_id = (
	SELECT MAX(r2.attempt_id) FROM results r2
	WHERE r2.job_id = r.job_id AND r2.run_id = r.run_id
)
ORDER BY r.job_id`)
	var rows []resultRow
	if err := sqlx.SelectContext(ctx, s.ext(), &rows, query, workflowID, runID); err != nil {
		return nil, err
	}
	out := make([]*domain.Result, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// ClearWorkflowResults deletes the Result rows that fed the WorkflowResult
// projection for jobs about to be re-executed (spec §4.4). Result history
// for prior runs is untouched; only rows matching (workflowID, runID,
// jobIDs) are removed, which is always the run about to be superseded by
// reinitialize incrementing run_id.
func (s *sqlStore) ClearWorkflowResults(ctx context.Context, workflowID int64, runID int64, jobIDs []int64) error {
	if len(jobIDs) == 0 {
		return nil
	}
	query := s.rebind(`DELETE FROM results WHERE workflow_id = ? AND run_id = ? AND job_id = ?`)
	for _, id := range jobIDs {
		if _, err := s.ext().ExecContext(ctx, query, workflowID, runID, id); err != nil {
			return err
		}
	}
	return nil
}
