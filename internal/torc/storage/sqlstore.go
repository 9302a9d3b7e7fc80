package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sqlStore is the single concrete type backing Storage for both dialects.
// Grounded on the teacher's state/storage.Store (internal/joblet/state), the
// pluggable-backend pattern generalized from a key-value store to a relational
// one since the hot-path claim/complete operations need real transactions.
type sqlStore struct {
	db      *sqlx.DB
	dialect dialect
	tx      *sqlx.Tx // non-nil only on a Storage value handed to a WithTx callback
}

// OpenPostgres opens and migrates a Postgres-backed Storage.
func OpenPostgres(ctx context.Context, dsn string) (Storage, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &sqlStore{db: db, dialect: dialectPostgres}
	if err := s.migrate("postgres"); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens and migrates a SQLite-backed Storage, suitable for a
// single-machine deployment with no external database (spec §4.1 "local
// machine" mode).
func OpenSQLite(ctx context.Context, path string) (Storage, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer: avoid SQLITE_BUSY from our own pool
	s := &sqlStore{db: db, dialect: dialectSQLite}
	if err := s.migrate("sqlite3"); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) migrate(gooseDialect string) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(s.db.DB, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *sqlStore) Close() error { return s.db.Close() }

// ext is the query executor for this store value: the outer transaction if
// one is in flight, otherwise the pool directly. Every per-entity query file
// calls this instead of touching s.db/s.tx.
func (s *sqlStore) ext() sqlx.ExtContext {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *sqlStore) rebind(query string) string {
	return s.db.Rebind(query)
}

// WithTx runs fn in a single transaction. A sqlStore that is already inside
// a transaction (s.tx != nil) reuses it rather than nesting, so a Run
// Controller operation that calls into the Dependency Resolver which itself
// calls WithTx still commits atomically (spec §5: claim_jobs, complete_job
// and the cascades they trigger happen in one serializable transaction).
func (s *sqlStore) WithTx(ctx context.Context, fn func(ctx context.Context, st Storage) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}

	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if s.dialect == dialectSQLite {
		// sqlx/database/sql has no BEGIN IMMEDIATE knob; acquire the write
		// lock up front by touching a row-less statement so a concurrent
		// writer blocks here instead of racing us to the first real write.
		if _, err := tx.ExecContext(ctx, "UPDATE sqlite_sequence SET seq = seq WHERE 0"); err != nil {
			tx.Rollback()
			return fmt.Errorf("acquire write lock: %w", err)
		}
	}

	txStore := &sqlStore{db: s.db, dialect: s.dialect, tx: tx}
	if err := fn(ctx, txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return classifyCommitError(err)
	}
	return nil
}
