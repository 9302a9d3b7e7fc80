package storage

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/nrel/torc/internal/torc/domain"
)

const userDataColumns = `id, workflow_id, name, data_json, is_ephemeral`

func (s *sqlStore) CreateUserData(ctx context.Context, u *domain.UserData) (int64, error) {
	query := s.rebind(`INSERT INTO user_data (workflow_id, name, data_json, is_ephemeral) VALUES (?, ?, ?, ?)`)
	res, err := s.ext().ExecContext(ctx, query, u.WorkflowID, u.Name, u.DataJSON, u.IsEphemeral)
	if err != nil {
		return 0, classifyUniqueViolation(err, "user data name already exists in this workflow")
	}
	return res.LastInsertId()
}

func (s *sqlStore) GetUserData(ctx context.Context, id int64) (*domain.UserData, error) {
	var u domain.UserData
	query := s.rebind(`SELECT ` + userDataColumns + ` FROM user_data WHERE id = ?`)
	if err := sqlx.GetContext(ctx, s.ext(), &u, query, id); err != nil {
		return nil, notFoundOr(err, "user data")
	}
	return &u, nil
}

func (s *sqlStore) ListUserData(ctx context.Context, workflowID int64) ([]*domain.UserData, error) {
	var rows []*domain.UserData
	query := s.rebind(`SELECT ` + userDataColumns + ` FROM user_data WHERE workflow_id = ? ORDER BY id`)
	if err := sqlx.SelectContext(ctx, s.ext(), &rows, query, workflowID); err != nil {
		return nil, err
	}
	return rows, nil
}
