package storage

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/nrel/torc/internal/torc/domain"
)

const fileColumns = `id, workflow_id, name, path, st_mtime`

func (s *sqlStore) CreateFile(ctx context.Context, f *domain.File) (int64, error) {
	query := s.rebind(`INSERT INTO files (workflow_id, name, path, st_mtime) VALUES (?, ?, ?, ?)`)
	res, err := s.ext().ExecContext(ctx, query, f.WorkflowID, f.Name, f.Path, f.StMtime)
	if err != nil {
		return 0, classifyUniqueViolation(err, "file name already exists in this workflow")
	}
	return res.LastInsertId()
}

func (s *sqlStore) GetFile(ctx context.Context, id int64) (*domain.File, error) {
	var f domain.File
	query := s.rebind(`SELECT ` + fileColumns + ` FROM files WHERE id = ?`)
	if err := sqlx.GetContext(ctx, s.ext(), &f, query, id); err != nil {
		return nil, notFoundOr(err, "file")
	}
	return &f, nil
}

func (s *sqlStore) ListFiles(ctx context.Context, workflowID int64) ([]*domain.File, error) {
	var rows []*domain.File
	query := s.rebind(`SELECT ` + fileColumns + ` FROM files WHERE workflow_id = ? ORDER BY id`)
	if err := sqlx.SelectContext(ctx, s.ext(), &rows, query, workflowID); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListRequiredExistingFiles returns input files with no producing job: the
// workflow expects these to already exist on disk before any job can start
// (spec §4.5's "list-required-existing-files").
func (s *sqlStore) ListRequiredExistingFiles(ctx context.Context, workflowID int64) ([]*domain.File, error) {
	var rows []*domain.File
	query := s.rebind(`
SELECT ` + prefixed(fileColumns, "f") + ` FROM files f
WHERE f.workflow_id = ?
AND f.id IN (SELECT file_id FROM job_input_files)
AND f.id NOT IN (SELECT file_id FROM job_output_files)
ORDER BY f.id`)
	if err := sqlx.SelectContext(ctx, s.ext(), &rows, query, workflowID); err != nil {
		return nil, err
	}
	return rows, nil
}
