package storage

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/nrel/torc/internal/torc/domain"
)

type eventRow struct {
	ID          int64          `db:"id"`
	WorkflowID  int64          `db:"workflow_id"`
	TimestampMs int64          `db:"timestamp_ms"`
	Category    sql.NullString `db:"category"`
	DataJSON    string         `db:"data_json"`
}

func (r eventRow) toDomain() *domain.Event {
	e := &domain.Event{ID: r.ID, WorkflowID: r.WorkflowID, TimestampMs: r.TimestampMs, DataJSON: r.DataJSON}
	if r.Category.Valid {
		e.Category = &r.Category.String
	}
	return e
}

// AppendEvent writes one row of the persisted, insertion-ordered audit log
// (spec §3's Event entity — distinct from the ephemeral broadcast channel of
// §4.8, which never touches storage).
func (s *sqlStore) AppendEvent(ctx context.Context, e *domain.Event) (int64, error) {
	query := s.rebind(`INSERT INTO events (workflow_id, timestamp_ms, category, data_json) VALUES (?, ?, ?, ?)`)
	res, err := s.ext().ExecContext(ctx, query, e.WorkflowID, e.TimestampMs, e.Category, e.DataJSON)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	e.ID = id
	return id, nil
}

func (s *sqlStore) ListEvents(ctx context.Context, workflowID int64, since int64, limit int) ([]*domain.Event, error) {
	query := `SELECT id, workflow_id, timestamp_ms, category, data_json FROM events WHERE workflow_id = ? AND id > ? ORDER BY id`
	args := []any{workflowID, since}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	var rows []eventRow
	if err := sqlx.SelectContext(ctx, s.ext(), &rows, s.rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]*domain.Event, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}
