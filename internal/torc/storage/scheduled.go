package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/nrel/torc/internal/torc/domain"
)

const scheduledComputeNodeColumns = `id, workflow_id, scheduler_id, scheduler_config_id, scheduler_type, status, fulfilled_by_node_id`

func (s *sqlStore) CreateScheduledComputeNode(ctx context.Context, sc *domain.ScheduledComputeNode) (int64, error) {
	if sc.Status == "" {
		sc.Status = domain.ScheduledPending
	}
	query := s.rebind(`INSERT INTO scheduled_compute_nodes (workflow_id, scheduler_id, scheduler_config_id, scheduler_type, status)
		VALUES (?, ?, ?, ?, ?)`)
	res, err := s.ext().ExecContext(ctx, query, sc.WorkflowID, sc.SchedulerID, sc.SchedulerConfigID, sc.SchedulerType, string(sc.Status))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqlStore) GetScheduledComputeNode(ctx context.Context, id int64) (*domain.ScheduledComputeNode, error) {
	var sc domain.ScheduledComputeNode
	query := s.rebind(`SELECT ` + scheduledComputeNodeColumns + ` FROM scheduled_compute_nodes WHERE id = ?`)
	if err := sqlx.GetContext(ctx, s.ext(), &sc, query, id); err != nil {
		return nil, notFoundOr(err, "scheduled compute node")
	}
	return &sc, nil
}

func (s *sqlStore) ListScheduledComputeNodes(ctx context.Context, workflowID int64, status domain.ScheduledComputeNodeStatus) ([]*domain.ScheduledComputeNode, error) {
	query := `SELECT ` + scheduledComputeNodeColumns + ` FROM scheduled_compute_nodes WHERE workflow_id = ?`
	args := []any{workflowID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id`
	var rows []*domain.ScheduledComputeNode
	if err := sqlx.SelectContext(ctx, s.ext(), &rows, s.rebind(query), args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *sqlStore) SetScheduledComputeNodeStatus(ctx context.Context, id int64, status domain.ScheduledComputeNodeStatus) error {
	query := s.rebind(`UPDATE scheduled_compute_nodes SET status = ? WHERE id = ?`)
	res, err := s.ext().ExecContext(ctx, query, string(status), id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, "scheduled compute node")
}

// FulfillScheduledComputeNode records that computeNodeID is the worker
// attaching to a previously requested allocation and advances the
// allocation to active (spec §3 "independent of whether any worker has
// attached yet"). Called from a compute node's registration request when
// it names the ScheduledComputeNode it fulfills.
func (s *sqlStore) FulfillScheduledComputeNode(ctx context.Context, id, computeNodeID int64) error {
	query := s.rebind(`UPDATE scheduled_compute_nodes SET fulfilled_by_node_id = ?, status = ? WHERE id = ?`)
	res, err := s.ext().ExecContext(ctx, query, computeNodeID, string(domain.ScheduledActive), id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, "scheduled compute node")
}

// FindScheduledComputeNodeFor maps a ComputeNode back to the
// ScheduledComputeNode it fulfilled, if any (spec §4.9 step 4).
func (s *sqlStore) FindScheduledComputeNodeFor(ctx context.Context, computeNodeID int64) (*domain.ScheduledComputeNode, error) {
	var sc domain.ScheduledComputeNode
	query := s.rebind(`SELECT ` + scheduledComputeNodeColumns + ` FROM scheduled_compute_nodes WHERE fulfilled_by_node_id = ?`)
	if err := sqlx.GetContext(ctx, s.ext(), &sc, query, computeNodeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sc, nil
}
