package core

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors for caller-distinguishable failure conditions.
// Match with errors.Is.
var (
	// ErrInvalidTimeFormat means a timestamp string matched none of the
	// accepted layouts. Fatal to the call, surfaced before any query runs.
	ErrInvalidTimeFormat = errors.New("invalid time format")

	// ErrUnknownTable means the table name is not in the registry.
	// Fatal, surfaced before any query runs.
	ErrUnknownTable = errors.New("unknown table")

	// ErrInvalidConfiguration means a non-positive window duration or chunk
	// size, or an inverted time range.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrQueryFailure is the category sentinel wrapped by *QueryError.
	ErrQueryFailure = errors.New("query failure")
)

// QueryError reports a COUNT or page fetch that failed after its retry
// budget was exhausted. All chunks emitted before the failure remain valid.
type QueryError struct {
	Op       string // "count" or "fetch"
	Table    string
	Attempts int
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Op, e.Table, e.Attempts, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrQueryFailure) match any *QueryError.
func (e *QueryError) Is(target error) bool { return target == ErrQueryFailure }

// isRetryable classifies an error from a single query attempt as transient.
// Cancellation of the parent context is never retried; a deadline from the
// per-query timeout is, since the next attempt gets a fresh deadline.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exceptions, 53: insufficient resources,
		// 57: operator intervention (e.g. failover shutdown).
		if len(pgErr.Code) >= 2 {
			switch pgErr.Code[:2] {
			case "08", "53", "57":
				return true
			}
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
