package storage

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/nrel/torc/internal/torc/domain"
)

const resourceRequirementColumns = `id, workflow_id, name, num_cpus, num_gpus, num_nodes, memory_bytes, runtime_seconds`

func (s *sqlStore) CreateResourceRequirement(ctx context.Context, r *domain.ResourceRequirement) (int64, error) {
	query := s.rebind(`INSERT INTO resource_requirements (workflow_id, name, num_cpus, num_gpus, num_nodes, memory_bytes, runtime_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	res, err := s.ext().ExecContext(ctx, query, r.WorkflowID, r.Name, r.NumCPUs, r.NumGPUs, r.NumNodes, r.MemoryBytes, r.RuntimeSeconds)
	if err != nil {
		return 0, classifyUniqueViolation(err, "resource requirement name already exists in this workflow")
	}
	return res.LastInsertId()
}

func (s *sqlStore) GetResourceRequirement(ctx context.Context, id int64) (*domain.ResourceRequirement, error) {
	var r domain.ResourceRequirement
	query := s.rebind(`SELECT ` + resourceRequirementColumns + ` FROM resource_requirements WHERE id = ?`)
	if err := sqlx.GetContext(ctx, s.ext(), &r, query, id); err != nil {
		return nil, notFoundOr(err, "resource requirement")
	}
	return &r, nil
}

func (s *sqlStore) ListResourceRequirements(ctx context.Context, workflowID int64) ([]*domain.ResourceRequirement, error) {
	var rows []*domain.ResourceRequirement
	query := s.rebind(`SELECT ` + resourceRequirementColumns + ` FROM resource_requirements WHERE workflow_id = ? ORDER BY id`)
	if err := sqlx.SelectContext(ctx, s.ext(), &rows, query, workflowID); err != nil {
		return nil, err
	}
	return rows, nil
}
