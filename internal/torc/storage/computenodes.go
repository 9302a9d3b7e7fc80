package storage

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/nrel/torc/internal/torc/domain"
)

const computeNodeColumns = `id, workflow_id, hostname, pid, start_time, num_cpus, memory_gb,
	num_gpus, num_nodes, node_type, scheduler_meta, is_active`

func (s *sqlStore) CreateComputeNode(ctx context.Context, c *domain.ComputeNode) (int64, error) {
	query := s.rebind(`INSERT INTO compute_nodes (workflow_id, hostname, pid, start_time, num_cpus,
		memory_gb, num_gpus, num_nodes, node_type, scheduler_meta, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	res, err := s.ext().ExecContext(ctx, query, c.WorkflowID, c.Hostname, c.Pid, c.StartTime, c.NumCPUs,
		c.MemoryGB, c.NumGPUs, c.NumNodes, string(c.NodeType), c.SchedulerMeta, c.IsActive)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqlStore) GetComputeNode(ctx context.Context, id int64) (*domain.ComputeNode, error) {
	var c domain.ComputeNode
	query := s.rebind(`SELECT ` + computeNodeColumns + ` FROM compute_nodes WHERE id = ?`)
	if err := sqlx.GetContext(ctx, s.ext(), &c, query, id); err != nil {
		return nil, notFoundOr(err, "compute node")
	}
	return &c, nil
}

func (s *sqlStore) ListActiveComputeNodes(ctx context.Context, workflowID int64) ([]*domain.ComputeNode, error) {
	var rows []*domain.ComputeNode
	query := s.rebind(`SELECT ` + computeNodeColumns + ` FROM compute_nodes WHERE workflow_id = ? AND is_active = 1 ORDER BY id`)
	if err := sqlx.SelectContext(ctx, s.ext(), &rows, query, workflowID); err != nil {
		return nil, err
	}
	return rows, nil
}

// DeactivateComputeNode is idempotent: wasActive reports whether this call
// is the one that flipped the flag, so the Orphan Monitor can tell a fresh
// detection from a node it already processed.
func (s *sqlStore) DeactivateComputeNode(ctx context.Context, id int64) (bool, error) {
	query := s.rebind(`UPDATE compute_nodes SET is_active = 0 WHERE id = ? AND is_active = 1`)
	res, err := s.ext().ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// JobsActiveOn returns jobs whose active_compute_node_id is id and whose
// status is Pending or Running, used by the Orphan Monitor to find work
// orphaned by a dead worker (spec §4.9).
func (s *sqlStore) JobsActiveOn(ctx context.Context, computeNodeID int64) ([]*domain.Job, error) {
	query := s.rebind(`SELECT ` + jobColumns + ` FROM jobs
		WHERE active_compute_node_id = ? AND status IN ('pending', 'running')
		ORDER BY id`)
	var rows []jobRow
	if err := sqlx.SelectContext(ctx, s.ext(), &rows, query, computeNodeID); err != nil {
		return nil, err
	}
	out := make([]*domain.Job, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}
