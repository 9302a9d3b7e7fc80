package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nrel/torc/internal/torc/torcerr"
)

// serializationFailure reports whether err is a serializable-isolation abort:
// Postgres SQLSTATE 40001, or SQLite's analogous "database is locked" /
// "database table is locked" driver error. Both mean the transaction did
// nothing and is safe to retry from the top (spec §7: StorageConflict is
// transient from the caller's point of view).
func serializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

func classifyCommitError(err error) error {
	if serializationFailure(err) {
		return torcerr.Wrap(torcerr.StorageConflict, "transaction could not be serialized", err)
	}
	return err
}

// RetryOnConflict runs fn up to maxAttempts times, retrying only when fn
// fails with torcerr.StorageConflict, and reports torcerr.ResourceBusy once
// every attempt has hit a conflict. The Claim Engine (internal/torc/claim)
// wraps its WithTx call in this; other callers of WithTx do not retry.
func RetryOnConflict(ctx context.Context, maxAttempts int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !torcerr.Is(lastErr, torcerr.StorageConflict) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
	return torcerr.Wrap(torcerr.ResourceBusy, "exhausted retries on storage conflict", lastErr)
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<attempt) * 5 * time.Millisecond
	if d > 200*time.Millisecond {
		d = 200 * time.Millisecond
	}
	return d
}
