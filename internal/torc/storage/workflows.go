package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/torcerr"
)

type workflowRow struct {
	ID          int64          `db:"id"`
	Name        string         `db:"name"`
	UserName    string         `db:"user_name"`
	Description sql.NullString `db:"description"`
	IsArchived  bool           `db:"is_archived"`
	CreatedAt   sql.NullTime   `db:"created_at"`
}

func (r workflowRow) toDomain() *domain.Workflow {
	w := &domain.Workflow{
		ID:         r.ID,
		Name:       r.Name,
		User:       r.UserName,
		IsArchived: r.IsArchived,
		CreatedAt:  r.CreatedAt.Time,
	}
	if r.Description.Valid {
		w.Description = &r.Description.String
	}
	return w
}

func (s *sqlStore) CreateWorkflow(ctx context.Context, w *domain.Workflow) (int64, error) {
	w.CreatedAt = now()
	query := s.rebind(`INSERT INTO workflows (name, user_name, description, is_archived, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	res, err := s.ext().ExecContext(ctx, query, w.Name, w.User, w.Description, w.IsArchived, w.CreatedAt)
	if err != nil {
		return 0, classifyUniqueViolation(err, "workflow name already exists for this user")
	}
	return res.LastInsertId()
}

func (s *sqlStore) GetWorkflow(ctx context.Context, id int64) (*domain.Workflow, error) {
	var row workflowRow
	query := s.rebind(`SELECT id, name, user_name, description, is_archived, created_at FROM workflows WHERE id = ?`)
	if err := sqlx.GetContext(ctx, s.ext(), &row, query, id); err != nil {
		return nil, notFoundOr(err, "workflow")
	}
	return row.toDomain(), nil
}

func (s *sqlStore) GetWorkflowByName(ctx context.Context, user, name string) (*domain.Workflow, error) {
	var row workflowRow
	query := s.rebind(`SELECT id, name, user_name, description, is_archived, created_at FROM workflows
		WHERE user_name = ? AND name = ? AND is_archived = 0`)
	if err := sqlx.GetContext(ctx, s.ext(), &row, query, user, name); err != nil {
		return nil, notFoundOr(err, "workflow")
	}
	return row.toDomain(), nil
}

func (s *sqlStore) ListWorkflows(ctx context.Context, user string, includeArchived bool) ([]*domain.Workflow, error) {
	query := `SELECT id, name, user_name, description, is_archived, created_at FROM workflows WHERE user_name = ?`
	if !includeArchived {
		query += ` AND is_archived = 0`
	}
	query += ` ORDER BY id`
	var rows []workflowRow
	if err := sqlx.SelectContext(ctx, s.ext(), &rows, s.rebind(query), user); err != nil {
		return nil, err
	}
	out := make([]*domain.Workflow, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *sqlStore) ArchiveWorkflow(ctx context.Context, id int64) error {
	query := s.rebind(`UPDATE workflows SET is_archived = 1 WHERE id = ?`)
	res, err := s.ext().ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, "workflow")
}

func (s *sqlStore) DeleteWorkflow(ctx context.Context, id int64) error {
	query := s.rebind(`DELETE FROM workflows WHERE id = ?`)
	res, err := s.ext().ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, "workflow")
}

func (s *sqlStore) GetWorkflowStatus(ctx context.Context, workflowID int64) (*domain.WorkflowStatus, error) {
	var st domain.WorkflowStatus
	query := s.rebind(`SELECT workflow_id, run_id, is_canceled, is_complete FROM workflow_status WHERE workflow_id = ?`)
	if err := sqlx.GetContext(ctx, s.ext(), &st, query, workflowID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.WorkflowStatus{WorkflowID: workflowID, RunID: 1}, nil
		}
		return nil, err
	}
	return &st, nil
}

func (s *sqlStore) UpsertWorkflowStatus(ctx context.Context, st *domain.WorkflowStatus) error {
	var query string
	switch s.dialect {
	case dialectPostgres:
		query = `INSERT INTO workflow_status (workflow_id, run_id, is_canceled, is_complete)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (workflow_id) DO UPDATE SET run_id = EXCLUDED.run_id,
				is_canceled = EXCLUDED.is_canceled, is_complete = EXCLUDED.is_complete`
	default:
		query = `INSERT INTO workflow_status (workflow_id, run_id, is_canceled, is_complete)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (workflow_id) DO UPDATE SET run_id = excluded.run_id,
				is_canceled = excluded.is_canceled, is_complete = excluded.is_complete`
	}
	_, err := s.ext().ExecContext(ctx, s.rebind(query), st.WorkflowID, st.RunID, st.IsCanceled, st.IsComplete)
	return err
}

// LockWorkflow takes the exclusive row lock run-lifecycle operations need.
// Postgres takes a real row lock; SQLite's single-writer transaction already
// serializes every caller, so the SELECT is a no-op that merely confirms
// existence.
func (s *sqlStore) LockWorkflow(ctx context.Context, workflowID int64) error {
	query := `SELECT id FROM workflows WHERE id = ?`
	if s.dialect == dialectPostgres {
		query += ` FOR UPDATE`
	}
	var id int64
	if err := sqlx.GetContext(ctx, s.ext(), &id, s.rebind(query), workflowID); err != nil {
		return notFoundOr(err, "workflow")
	}
	return nil
}

// ActiveWorkflowIDs returns every non-archived workflow not already marked
// complete, the set the Orphan Monitor's cron tick sweeps.
func (s *sqlStore) ActiveWorkflowIDs(ctx context.Context) ([]int64, error) {
	notComplete := "COALESCE(ws.is_complete, 0) = 0"
	if s.dialect == dialectPostgres {
		notComplete = "COALESCE(ws.is_complete, FALSE) = FALSE"
	}
	query := s.rebind(`SELECT w.id FROM workflows w
		LEFT JOIN workflow_status ws ON ws.workflow_id = w.id
		WHERE w.is_archived = 0 AND ` + notComplete + `
		ORDER BY w.id`)
	var ids []int64
	if err := sqlx.SelectContext(ctx, s.ext(), &ids, query); err != nil {
		return nil, err
	}
	return ids, nil
}

// classifyUniqueViolation maps a unique-constraint error from either dialect
// to torcerr.Conflict so handlers never need driver-specific error checks.
func classifyUniqueViolation(err error, message string) error {
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value violates unique constraint") {
		return torcerr.Wrap(torcerr.Conflict, message, err)
	}
	return err
}

func notFoundOr(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return torcerr.New(torcerr.NotFound, entity+" not found")
	}
	return err
}

func requireRowsAffected(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return torcerr.New(torcerr.NotFound, entity+" not found")
	}
	return nil
}
