package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/torcerr"
)

type jobRow struct {
	ID                         int64          `db:"id"`
	WorkflowID                 int64          `db:"workflow_id"`
	Name                       string         `db:"name"`
	Command                    string         `db:"command"`
	ResourceRequirementsID     sql.NullInt64  `db:"resource_requirements_id"`
	InvocationScript           sql.NullString `db:"invocation_script"`
	Status                     string         `db:"status"`
	CancelOnBlockingJobFailure bool           `db:"cancel_on_blocking_job_failure"`
	SupportsTermination        bool           `db:"supports_termination"`
	ActiveComputeNodeID        sql.NullInt64  `db:"active_compute_node_id"`
	CreatedAt                  sql.NullTime   `db:"created_at"`
	UpdatedAt                  sql.NullTime   `db:"updated_at"`
}

func (r jobRow) toDomain() *domain.Job {
	j := &domain.Job{
		ID:                         r.ID,
		WorkflowID:                 r.WorkflowID,
		Name:                       r.Name,
		Command:                    r.Command,
		Status:                     domain.JobStatus(r.Status),
		CancelOnBlockingJobFailure: r.CancelOnBlockingJobFailure,
		SupportsTermination:        r.SupportsTermination,
		CreatedAt:                  r.CreatedAt.Time,
		UpdatedAt:                  r.UpdatedAt.Time,
	}
	if r.ResourceRequirementsID.Valid {
		j.ResourceRequirementsID = &r.ResourceRequirementsID.Int64
	}
	if r.InvocationScript.Valid {
		j.InvocationScript = &r.InvocationScript.String
	}
	if r.ActiveComputeNodeID.Valid {
		j.ActiveComputeNodeID = &r.ActiveComputeNodeID.Int64
	}
	return j
}

const jobColumns = `id, workflow_id, name, command, resource_requirements_id, invocation_script,
	status, cancel_on_blocking_job_failure, supports_termination, active_compute_node_id, created_at, updated_at`

// hydrateEdges fills in the five dependency-edge slices from their join
// tables (design note: edges never live inline on the jobs row so that
// adding a dependency never rewrites the job itself).
func (s *sqlStore) hydrateEdges(ctx context.Context, j *domain.Job) error {
	var err error
	if j.DependsOnJobIDs, err = s.int64Column(ctx, `SELECT depends_on_job_id FROM job_dependencies WHERE job_id = ? ORDER BY depends_on_job_id`, j.ID); err != nil {
		return err
	}
	if j.InputFileIDs, err = s.int64Column(ctx, `SELECT file_id FROM job_input_files WHERE job_id = ? ORDER BY file_id`, j.ID); err != nil {
		return err
	}
	if j.OutputFileIDs, err = s.int64Column(ctx, `SELECT file_id FROM job_output_files WHERE job_id = ? ORDER BY file_id`, j.ID); err != nil {
		return err
	}
	if j.InputUserDataIDs, err = s.int64Column(ctx, `SELECT user_data_id FROM job_input_user_data WHERE job_id = ? ORDER BY user_data_id`, j.ID); err != nil {
		return err
	}
	if j.OutputUserDataIDs, err = s.int64Column(ctx, `SELECT user_data_id FROM job_output_user_data WHERE job_id = ? ORDER BY user_data_id`, j.ID); err != nil {
		return err
	}
	return nil
}

func (s *sqlStore) int64Column(ctx context.Context, query string, arg int64) ([]int64, error) {
	var ids []int64
	if err := sqlx.SelectContext(ctx, s.ext(), &ids, s.rebind(query), arg); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *sqlStore) CreateJob(ctx context.Context, j *domain.Job) (int64, error) {
	if err := j.Validate(); err != nil {
		return 0, torcerr.Wrap(torcerr.InvalidArgument, "invalid job", err)
	}
	j.CreatedAt = now()
	j.UpdatedAt = j.CreatedAt
	j.Status = domain.JobUninitialized

	query := s.rebind(`INSERT INTO jobs (workflow_id, name, command, resource_requirements_id,
		invocation_script, status, cancel_on_blocking_job_failure, supports_termination,
		active_compute_node_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	res, err := s.ext().ExecContext(ctx, query, j.WorkflowID, j.Name, j.Command, j.ResourceRequirementsID,
		j.InvocationScript, string(j.Status), j.CancelOnBlockingJobFailure, j.SupportsTermination,
		j.ActiveComputeNodeID, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return 0, classifyUniqueViolation(err, "job name already exists in this workflow")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	j.ID = id

	if err := s.insertDependencyEdges(ctx, j.WorkflowID, id, j.DependsOnJobIDs); err != nil {
		return 0, err
	}
	if err := s.insertEdges(ctx, "job_input_files", "file_id", id, j.InputFileIDs); err != nil {
		return 0, err
	}
	if err := s.insertEdges(ctx, "job_output_files", "file_id", id, j.OutputFileIDs); err != nil {
		return 0, err
	}
	if err := s.insertEdges(ctx, "job_input_user_data", "user_data_id", id, j.InputUserDataIDs); err != nil {
		return 0, err
	}
	if err := s.insertEdges(ctx, "job_output_user_data", "user_data_id", id, j.OutputUserDataIDs); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *sqlStore) insertEdges(ctx context.Context, table, column string, jobID int64, ids []int64) error {
	return s.insertEdgesGeneric(ctx, table, "job_id", column, jobID, ids)
}

// insertDependencyEdges inserts job_dependencies rows. Unlike the other edge
// join tables, job_dependencies also carries workflow_id (it's the one edge
// table a cross-workflow cycle check would otherwise need to join back to
// jobs to scope), so it can't go through insertEdgesGeneric's two-column
// shape.
func (s *sqlStore) insertDependencyEdges(ctx context.Context, workflowID, jobID int64, dependsOnJobIDs []int64) error {
	if len(dependsOnJobIDs) == 0 {
		return nil
	}
	query := s.rebind(`INSERT INTO job_dependencies (workflow_id, job_id, depends_on_job_id) VALUES (?, ?, ?)`)
	for _, dependsOn := range dependsOnJobIDs {
		if _, err := s.ext().ExecContext(ctx, query, workflowID, jobID, dependsOn); err != nil {
			return err
		}
	}
	return nil
}

// insertEdgesGeneric inserts one row per id into a two-column join table,
// for join tables whose owning-side column is not named job_id (e.g.
// workflow_action_jobs.action_id).
func (s *sqlStore) insertEdgesGeneric(ctx context.Context, table, ownerColumn, column string, ownerID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES (?, ?)`, table, ownerColumn, column)
	query = s.rebind(query)
	for _, id := range ids {
		if _, err := s.ext().ExecContext(ctx, query, ownerID, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlStore) GetJob(ctx context.Context, id int64) (*domain.Job, error) {
	var row jobRow
	query := s.rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`)
	if err := sqlx.GetContext(ctx, s.ext(), &row, query, id); err != nil {
		return nil, notFoundOr(err, "job")
	}
	j := row.toDomain()
	if err := s.hydrateEdges(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

func (s *sqlStore) GetJobByName(ctx context.Context, workflowID int64, name string) (*domain.Job, error) {
	var row jobRow
	query := s.rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE workflow_id = ? AND name = ?`)
	if err := sqlx.GetContext(ctx, s.ext(), &row, query, workflowID, name); err != nil {
		return nil, notFoundOr(err, "job")
	}
	j := row.toDomain()
	if err := s.hydrateEdges(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// ListJobs does not hydrate dependency edges; callers that need edges for a
// specific job use GetJob. This keeps workflow-wide listing a single query
// regardless of DAG width.
func (s *sqlStore) ListJobs(ctx context.Context, workflowID int64, filter JobFilter) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE workflow_id = ?`
	args := []any{workflowID}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, st := range filter.Status {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` AND status IN (` + strings.Join(placeholders, ",") + `)`
	}
	if len(filter.IDs) > 0 {
		placeholders := make([]string, len(filter.IDs))
		for i, id := range filter.IDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += ` AND id IN (` + strings.Join(placeholders, ",") + `)`
	}
	if filter.NamePrefix != "" {
		query += ` AND name LIKE ?`
		args = append(args, filter.NamePrefix+"%")
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var rows []jobRow
	if err := sqlx.SelectContext(ctx, s.ext(), &rows, s.rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]*domain.Job, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// UpdateJobFields rewrites the mutable job fields. Returns torcerr.ImmutableField
// if the job is not Uninitialized (spec §4.2): once a job has entered the
// state machine its shape is frozen except through status transitions.
func (s *sqlStore) UpdateJobFields(ctx context.Context, j *domain.Job) error {
	if err := j.Validate(); err != nil {
		return torcerr.Wrap(torcerr.InvalidArgument, "invalid job", err)
	}
	current, err := s.GetJob(ctx, j.ID)
	if err != nil {
		return err
	}
	if current.Status != domain.JobUninitialized {
		return torcerr.New(torcerr.ImmutableField, "job fields are immutable once the job has been initialized")
	}

	j.UpdatedAt = now()
	query := s.rebind(`UPDATE jobs SET name = ?, command = ?, resource_requirements_id = ?,
		invocation_script = ?, cancel_on_blocking_job_failure = ?, supports_termination = ?,
		updated_at = ? WHERE id = ?`)
	_, err = s.ext().ExecContext(ctx, query, j.Name, j.Command, j.ResourceRequirementsID,
		j.InvocationScript, j.CancelOnBlockingJobFailure, j.SupportsTermination, j.UpdatedAt, j.ID)
	if err != nil {
		return classifyUniqueViolation(err, "job name already exists in this workflow")
	}

	delDeps := s.rebind(`DELETE FROM job_dependencies WHERE job_id = ?`)
	if _, err := s.ext().ExecContext(ctx, delDeps, j.ID); err != nil {
		return err
	}
	if err := s.insertDependencyEdges(ctx, j.WorkflowID, j.ID, j.DependsOnJobIDs); err != nil {
		return err
	}

	for _, spec := range []struct {
		table, column string
		ids           []int64
	}{
		{"job_input_files", "file_id", j.InputFileIDs},
		{"job_output_files", "file_id", j.OutputFileIDs},
		{"job_input_user_data", "user_data_id", j.InputUserDataIDs},
		{"job_output_user_data", "user_data_id", j.OutputUserDataIDs},
	} {
		del := s.rebind(fmt.Sprintf(`DELETE FROM %s WHERE job_id = ?`, spec.table))
		if _, err := s.ext().ExecContext(ctx, del, j.ID); err != nil {
			return err
		}
		if err := s.insertEdges(ctx, spec.table, spec.column, j.ID, spec.ids); err != nil {
			return err
		}
	}
	return nil
}

// SetJobStatus is called by statemachine.Engine.
func (s *sqlStore) SetJobStatus(ctx context.Context, jobID int64, status domain.JobStatus, activeComputeNodeID *int64) error {
	query := s.rebind(`UPDATE jobs SET status = ?, active_compute_node_id = ?, updated_at = ? WHERE id = ?`)
	res, err := s.ext().ExecContext(ctx, query, string(status), activeComputeNodeID, now(), jobID)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, "job")
}

func (s *sqlStore) ListReadyJobs(ctx context.Context, workflowID int64) ([]*domain.Job, error) {
	return s.ListJobs(ctx, workflowID, JobFilter{Status: []domain.JobStatus{domain.JobReady}})
}

// ListDependents returns jobs that list blockerJobID as a direct dependency
// or as a consumer of a file/user-data artifact blockerJobID produces.
func (s *sqlStore) ListDependents(ctx context.Context, workflowID int64, blockerJobID int64) ([]*domain.Job, error) {
	query := s.rebind(`
SELECT DISTINCT ` + prefixed(jobColumns, "j") + ` FROM jobs j
WHERE j.workflow_id = ? AND (
	j.id IN (SELECT job_id FROM job_dependencies WHERE depends_on_job_id = ?)
	OR j.id IN (
		SELECT jif.job_id FROM job_input_files jif
		JOIN job_output_files jof ON jof.file_id = jif.file_id
		WHERE jof.job_id = ?
	)
	OR j.id IN (
		SELECT jiu.job_id FROM job_input_user_data jiu
		JOIN job_output_user_data jou ON jou.user_data_id = jiu.user_data_id
		WHERE jou.job_id = ?
	)
)
ORDER BY j.id`)
	var rows []jobRow
	if err := sqlx.SelectContext(ctx, s.ext(), &rows, query, workflowID, blockerJobID, blockerJobID, blockerJobID); err != nil {
		return nil, err
	}
	out := make([]*domain.Job, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// CountUnsatisfiedBlockers counts direct and file/user-data-mediated
// blockers of jobID that are not yet Completed.
func (s *sqlStore) CountUnsatisfiedBlockers(ctx context.Context, jobID int64) (int, error) {
	query := s.rebind(`
SELECT COUNT(*) FROM (
	SELECT depends_on_job_id AS blocker FROM job_dependencies WHERE job_id = ?
	UNION
	SELECT jof.job_id AS blocker FROM job_input_files jif
		JOIN job_output_files jof ON jof.file_id = jif.file_id
		WHERE jif.job_id = ?
	UNION
	SELECT jou.job_id AS blocker FROM job_input_user_data jiu
		JOIN job_output_user_data jou ON jou.user_data_id = jiu.user_data_id
		WHERE jiu.job_id = ?
) blockers
JOIN jobs ON jobs.id = blockers.blocker
WHERE jobs.status != 'completed'`)
	var count int
	if err := sqlx.GetContext(ctx, s.ext(), &count, query, jobID, jobID, jobID); err != nil {
		return 0, err
	}
	return count, nil
}

// BlockerJobIDs returns every direct and file/user-data-mediated blocker of
// jobID regardless of its current status, for Dependency Resolver cycle
// detection (CountUnsatisfiedBlockers only counts the not-yet-Completed
// subset, which is unsuitable for DFS since a Completed blocker's edge must
// still be walked to find a cycle through it).
func (s *sqlStore) BlockerJobIDs(ctx context.Context, jobID int64) ([]int64, error) {
	query := s.rebind(`
SELECT depends_on_job_id AS blocker FROM job_dependencies WHERE job_id = ?
UNION
SELECT jof.job_id AS blocker FROM job_input_files jif
	JOIN job_output_files jof ON jof.file_id = jif.file_id
	WHERE jif.job_id = ?
UNION
SELECT jou.job_id AS blocker FROM job_input_user_data jiu
	JOIN job_output_user_data jou ON jou.user_data_id = jiu.user_data_id
	WHERE jiu.job_id = ?
ORDER BY blocker`)
	var ids []int64
	if err := sqlx.SelectContext(ctx, s.ext(), &ids, query, jobID, jobID, jobID); err != nil {
		return nil, err
	}
	return ids, nil
}

// prefixed rewrites a flat column list with a table alias, for queries that
// join jobs against itself or other tables and need to disambiguate.
func prefixed(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
