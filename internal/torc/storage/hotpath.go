package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/torcerr"
)

// ClaimJobs implements the single-transaction Ready->Pending transfer of
// spec §4.1/§4.6: the UPDATE...RETURNING in dialect.claimQuery makes the
// claim indivisible, so two concurrent callers on the same workflow can
// never observe (let alone take) overlapping rows (I1). Callers are
// expected to invoke this inside Storage.WithTx so the isolation level and
// (for SQLite) the write lock are already in effect.
func (s *sqlStore) ClaimJobs(ctx context.Context, workflowID int64, limit int, selector *ClaimSelector, computeNodeID *int64) ([]*domain.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	selectorClause, selectorArgs, err := s.buildSelectorClause(ctx, workflowID, selector)
	if err != nil {
		return nil, err
	}

	query := s.rebind(s.dialect.claimQuery(selectorClause))
	args := []any{computeNodeID, now(), workflowID}
	args = append(args, selectorArgs...)
	args = append(args, limit)

	var rows []jobRow
	if err := sqlx.SelectContext(ctx, s.ext(), &rows, query, args...); err != nil {
		if serializationFailure(err) {
			return nil, torcerr.Wrap(torcerr.StorageConflict, "claim could not be serialized", err)
		}
		return nil, err
	}
	out := make([]*domain.Job, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// buildSelectorClause turns a ClaimSelector into a SQL boolean expression
// plus its bound args. Resource requirement names are resolved to ids up
// front so the clause itself never interpolates raw strings.
func (s *sqlStore) buildSelectorClause(ctx context.Context, workflowID int64, selector *ClaimSelector) (string, []any, error) {
	if selector == nil || len(selector.ResourceRequirementNames) == 0 {
		return "", nil, nil
	}
	placeholders := make([]string, len(selector.ResourceRequirementNames))
	args := make([]any, len(selector.ResourceRequirementNames)+1)
	args[0] = workflowID
	for i, name := range selector.ResourceRequirementNames {
		placeholders[i] = "?"
		args[i+1] = name
	}
	sub := fmt.Sprintf(`resource_requirements_id IN (SELECT id FROM resource_requirements WHERE workflow_id = ? AND name IN (%s))`,
		strings.Join(placeholders, ","))
	return sub, args, nil
}

// CompleteJob implements spec §4.1's complete_job contract: verify the job
// is Pending or Running, insert the Result row, clear
// active_compute_node_id, and hand the pre-transition job back to the
// Status Machine so the cascade (dependency propagation, events, action
// triggers) runs in the same transaction as this write.
func (s *sqlStore) CompleteJob(ctx context.Context, jobID int64, runID int64, attemptID int64, result *domain.Result) (*domain.Job, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobPending && job.Status != domain.JobRunning {
		return nil, torcerr.New(torcerr.Conflict, "job is not pending or running: "+string(job.Status))
	}

	result.JobID = jobID
	result.WorkflowID = job.WorkflowID
	result.RunID = runID
	result.AttemptID = attemptID
	if _, err := s.CreateResult(ctx, result); err != nil {
		return nil, err
	}

	clearQuery := s.rebind(`UPDATE jobs SET active_compute_node_id = NULL, updated_at = ? WHERE id = ?`)
	if _, err := s.ext().ExecContext(ctx, clearQuery, now(), jobID); err != nil {
		return nil, err
	}
	job.ActiveComputeNodeID = nil
	return job, nil
}
