package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/torcerr"
)

type actionRow struct {
	ID               int64          `db:"id"`
	WorkflowID       int64          `db:"workflow_id"`
	TriggerType      string         `db:"trigger_type"`
	ActionType       string         `db:"action_type"`
	ActionConfigJSON string         `db:"action_config_json"`
	JobNameRegexes   sql.NullString `db:"job_name_regexes"`
	TriggerCount     int64          `db:"trigger_count"`
	Executed         bool           `db:"executed"`
	ExecutedBy       sql.NullInt64  `db:"executed_by"`
}

func (r actionRow) toDomain() (*domain.WorkflowAction, error) {
	a := &domain.WorkflowAction{
		ID:               r.ID,
		WorkflowID:       r.WorkflowID,
		TriggerType:      domain.WorkflowActionTriggerType(r.TriggerType),
		ActionType:       domain.WorkflowActionType(r.ActionType),
		ActionConfigJSON: r.ActionConfigJSON,
		TriggerCount:     r.TriggerCount,
		Executed:         r.Executed,
	}
	if r.ExecutedBy.Valid {
		a.ExecutedBy = &r.ExecutedBy.Int64
	}
	if r.JobNameRegexes.Valid && r.JobNameRegexes.String != "" {
		if err := json.Unmarshal([]byte(r.JobNameRegexes.String), &a.JobNameRegexes); err != nil {
			return nil, err
		}
	}
	return a, nil
}

const actionColumns = `id, workflow_id, trigger_type, action_type, action_config_json, job_name_regexes,
	trigger_count, executed, executed_by`

func (s *sqlStore) CreateAction(ctx context.Context, a *domain.WorkflowAction) (int64, error) {
	var regexesJSON []byte
	if len(a.JobNameRegexes) > 0 {
		var err error
		regexesJSON, err = json.Marshal(a.JobNameRegexes)
		if err != nil {
			return 0, err
		}
	}
	query := s.rebind(`INSERT INTO workflow_actions (workflow_id, trigger_type, action_type,
		action_config_json, job_name_regexes, trigger_count, executed, executed_by)
		VALUES (?, ?, ?, ?, ?, 0, 0, NULL)`)
	res, err := s.ext().ExecContext(ctx, query, a.WorkflowID, string(a.TriggerType), string(a.ActionType),
		a.ActionConfigJSON, nullIfEmpty(regexesJSON))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	a.ID = id
	if err := s.insertEdgesGeneric(ctx, "workflow_action_jobs", "action_id", "job_id", id, a.JobIDs); err != nil {
		return 0, err
	}
	return id, nil
}

func nullIfEmpty(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func (s *sqlStore) hydrateActionJobIDs(ctx context.Context, a *domain.WorkflowAction) error {
	ids, err := s.int64Column(ctx, `SELECT job_id FROM workflow_action_jobs WHERE action_id = ? ORDER BY job_id`, a.ID)
	if err != nil {
		return err
	}
	a.JobIDs = ids
	return nil
}

func (s *sqlStore) GetAction(ctx context.Context, id int64) (*domain.WorkflowAction, error) {
	var row actionRow
	query := s.rebind(`SELECT ` + actionColumns + ` FROM workflow_actions WHERE id = ?`)
	if err := sqlx.GetContext(ctx, s.ext(), &row, query, id); err != nil {
		return nil, notFoundOr(err, "action")
	}
	a, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	if err := s.hydrateActionJobIDs(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *sqlStore) ListActions(ctx context.Context, workflowID int64) ([]*domain.WorkflowAction, error) {
	var rows []actionRow
	query := s.rebind(`SELECT ` + actionColumns + ` FROM workflow_actions WHERE workflow_id = ? ORDER BY id`)
	if err := sqlx.SelectContext(ctx, s.ext(), &rows, query, workflowID); err != nil {
		return nil, err
	}
	out := make([]*domain.WorkflowAction, len(rows))
	for i, r := range rows {
		a, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		if err := s.hydrateActionJobIDs(ctx, a); err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// IncrementTriggerCount bumps trigger_count for every action in the
// workflow whose job set contains jobID, in the same transaction as the
// triggering status transition (spec §4.2 step 5, I3).
func (s *sqlStore) IncrementTriggerCount(ctx context.Context, workflowID int64, jobID int64) error {
	query := s.rebind(`
UPDATE workflow_actions SET trigger_count = trigger_count + 1
WHERE workflow_id = ? AND id IN (SELECT action_id FROM workflow_action_jobs WHERE job_id = ?)`)
	_, err := s.ext().ExecContext(ctx, query, workflowID, jobID)
	return err
}

// ClaimAction is the compare-and-set of spec §4.7: executed=false->true,
// executed_by=computeNodeID. A second claimer's UPDATE affects zero rows and
// is reported as torcerr.Conflict (I3: executed=true implies executed_by is
// a valid ComputeNode id, never overwritten by a later claimer).
func (s *sqlStore) ClaimAction(ctx context.Context, actionID int64, computeNodeID int64) error {
	query := s.rebind(`UPDATE workflow_actions SET executed = 1, executed_by = ? WHERE id = ? AND executed = 0`)
	res, err := s.ext().ExecContext(ctx, query, computeNodeID, actionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, getErr := s.GetAction(ctx, actionID); getErr != nil {
			return getErr
		}
		return torcerr.New(torcerr.Conflict, "action already claimed")
	}
	return nil
}

// ResetActions clears trigger_count/executed/executed_by for every action in
// the workflow (spec §4.4, §4.7, I4), run on every reinitialize.
func (s *sqlStore) ResetActions(ctx context.Context, workflowID int64) error {
	query := s.rebind(`UPDATE workflow_actions SET trigger_count = 0, executed = 0, executed_by = NULL WHERE workflow_id = ?`)
	_, err := s.ext().ExecContext(ctx, query, workflowID)
	return err
}

// ListActionsForJob returns not-yet-executed actions whose resolved target
// set contains jobID, used by the Action Engine to re-evaluate firing
// predicates after every job transition.
func (s *sqlStore) ListActionsForJob(ctx context.Context, workflowID int64, jobID int64) ([]*domain.WorkflowAction, error) {
	query := s.rebind(`
SELECT ` + actionColumns + ` FROM workflow_actions
WHERE workflow_id = ? AND executed = 0
AND id IN (SELECT action_id FROM workflow_action_jobs WHERE job_id = ?)
ORDER BY id`)
	var rows []actionRow
	if err := sqlx.SelectContext(ctx, s.ext(), &rows, query, workflowID, jobID); err != nil {
		return nil, err
	}
	out := make([]*domain.WorkflowAction, len(rows))
	for i, r := range rows {
		a, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		if err := s.hydrateActionJobIDs(ctx, a); err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// MarkActionPendingIfNotAlready is the 0->1 compare-and-set recording that
// an action's firing predicate has newly become satisfied.
func (s *sqlStore) MarkActionPendingIfNotAlready(ctx context.Context, actionID int64) (bool, error) {
	query := s.rebind(`UPDATE workflow_actions SET trigger_count = 1 WHERE id = ? AND trigger_count = 0`)
	res, err := s.ext().ExecContext(ctx, query, actionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ActivateWorkflowStartActions marks every on_workflow_start action pending
// exactly once per run: the Run Controller calls this once at the end of
// initialize/reinitialize, after ResetActions has zeroed trigger_count.
func (s *sqlStore) ActivateWorkflowStartActions(ctx context.Context, workflowID int64) error {
	query := s.rebind(`UPDATE workflow_actions SET trigger_count = 1
		WHERE workflow_id = ? AND trigger_type = ? AND trigger_count = 0`)
	_, err := s.ext().ExecContext(ctx, query, workflowID, string(domain.TriggerOnWorkflowStart))
	return err
}

// ResolveActionTargets replaces the resolved job_ids join-table rows for an
// action: explicit job_ids unioned with every job name matching a
// job_name_regex, evaluated once per run.
func (s *sqlStore) ResolveActionTargets(ctx context.Context, actionID int64, jobIDs []int64) error {
	del := s.rebind(`DELETE FROM workflow_action_jobs WHERE action_id = ?`)
	if _, err := s.ext().ExecContext(ctx, del, actionID); err != nil {
		return err
	}
	return s.insertEdgesGeneric(ctx, "workflow_action_jobs", "action_id", "job_id", actionID, jobIDs)
}
