package storage

import "fmt"

// dialect is the name of the underlying SQL engine. The two supported
// dialects differ only in: placeholder syntax (handled by sqlx.Rebind),
// upsert syntax, and whether SELECT ... FOR UPDATE SKIP LOCKED is
// available. Every other query is engine-neutral ANSI SQL.
type dialect string

const (
	dialectPostgres dialect = "postgres"
	dialectSQLite   dialect = "sqlite"
)

// claimQuery returns the atomic Ready->Pending UPDATE for this dialect.
// selectorClause, if non-empty, is an additional SQL boolean expression
// (already safe — built from a resolved list of resource_requirements_id
// values, never from raw user input) ANDed into the subquery's WHERE.
//
// Both forms use a single UPDATE ... RETURNING so the claim is indivisible:
// no separate SELECT-then-UPDATE race window exists for a concurrent caller
// to land in (I1). Postgres additionally skips rows a concurrent
// transaction already has locked rather than blocking on them, since two
// claimers on disjoint rows should never serialize on each other.
func (d dialect) claimQuery(selectorClause string) string {
	extra := ""
	if selectorClause != "" {
		extra = " AND " + selectorClause
	}
	switch d {
	case dialectPostgres:
		return fmt.Sprintf(`
UPDATE jobs SET status = 'pending', active_compute_node_id = ?, updated_at = ?
WHERE id IN (
	SELECT id FROM jobs
	WHERE workflow_id = ? AND status = 'ready'%s
	ORDER BY id
	LIMIT ?
	FOR UPDATE SKIP LOCKED
)
RETURNING *`, extra)
	default: // sqlite: single-writer transactions (BEGIN IMMEDIATE) make the
		// subquery race-free without row-level locking.
		return fmt.Sprintf(`
UPDATE jobs SET status = 'pending', active_compute_node_id = ?, updated_at = ?
WHERE id IN (
	SELECT id FROM jobs
	WHERE workflow_id = ? AND status = 'ready'%s
	ORDER BY id
	LIMIT ?
)
RETURNING *`, extra)
	}
}

// beginMode returns the BEGIN statement modifier for a storage-level
// serializable transaction. Postgres uses SET TRANSACTION ISOLATION LEVEL;
// SQLite takes an immediate write lock at BEGIN time, which is the nearest
// equivalent given it has no MVCC.
func (d dialect) beginMode() string {
	if d == dialectSQLite {
		return "BEGIN IMMEDIATE"
	}
	return "BEGIN"
}
