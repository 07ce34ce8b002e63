package core

// engine.go builds and executes the two query shapes the extractor needs.
// Identifiers are quoted, range endpoints and LIMIT/OFFSET travel as bind
// parameters, and the optional Where fragment is appended verbatim inside
// parentheses (see the package doc for the trust boundary).

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chunkstream/chunkstream/internal/config"
)

// Engine executes counts and paginated fetches against one database.
// It is safe for concurrent use; each streaming call owns its own cursor
// state.
type Engine struct {
	db       DBTX
	registry *Registry
	cfg      *config.Config
}

// NewEngine creates an engine over the given query capability and registry.
func NewEngine(db DBTX, registry *Registry, cfg *config.Config) *Engine {
	return &Engine{db: db, registry: registry, cfg: cfg}
}

// Registry returns the table registry the engine was built with.
func (e *Engine) Registry() *Registry { return e.registry }

// Count returns the exact number of rows in the table whose time field
// falls in [start, end), further filtered by the optional predicate.
// An empty range returns 0.
func (e *Engine) Count(ctx context.Context, req CountRequest) (int64, error) {
	table, err := e.registry.Resolve(req.Table)
	if err != nil {
		return 0, err
	}
	r, err := ParseRange(req.StartTime, req.EndTime)
	if err != nil {
		return 0, err
	}
	return e.countRange(ctx, table, r, req.Where)
}

// countRange issues the aggregate query for an already-parsed range.
func (e *Engine) countRange(ctx context.Context, table Table, r TimeRange, where string) (int64, error) {
	query := buildCountQuery(table, where)

	var count int64
	err := e.withRetry(ctx, "count", table.Name, func(qctx context.Context) error {
		return e.db.QueryRow(qctx, query, r.Start, r.End).Scan(&count)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// fetchChunk executes one bounded, ordered, offset-paginated query and
// materializes the page. Fewer than limit records means the final page of
// the unit of work; zero records signals exhaustion. One round trip per
// call, no caching.
func (e *Engine) fetchChunk(ctx context.Context, table Table, r TimeRange, offset, limit int64, where string, fields []string) ([]Record, error) {
	query := buildChunkQuery(table, where, fields)

	var page []Record
	err := e.withRetry(ctx, "fetch", table.Name, func(qctx context.Context) error {
		rows, err := e.db.Query(qctx, query, r.Start, r.End, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()

		fds := rows.FieldDescriptions()
		cols := make([]string, len(fds))
		for i, fd := range fds {
			cols[i] = fd.Name
		}

		page = page[:0]
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return fmt.Errorf("read row values: %w", err)
			}
			rec := make(Record, len(values))
			for i, v := range values {
				rec[i] = Field{Name: cols[i], Value: ValueFrom(v)}
			}
			page = append(page, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// buildCountQuery composes:
//
//	SELECT COUNT(*) FROM <table>
//	WHERE <time_field> >= $1 AND <time_field> < $2 [AND (<where>)]
func buildCountQuery(table Table, where string) string {
	tf := quoteIdentifier(table.TimeField)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s >= $1 AND %s < $2",
		quoteIdentifier(table.Name), tf, tf)
	if where != "" {
		query += fmt.Sprintf(" AND (%s)", where)
	}
	return query
}

// buildChunkQuery composes:
//
//	SELECT <fields|*> FROM <table>
//	WHERE <time_field> >= $1 AND <time_field> < $2 [AND (<where>)]
//	ORDER BY <order_fields...> LIMIT $3 OFFSET $4
func buildChunkQuery(table Table, where string, fields []string) string {
	selectList := "*"
	if len(fields) > 0 {
		selectList = strings.Join(quoteColumns(fields), ", ")
	}

	tf := quoteIdentifier(table.TimeField)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s >= $1 AND %s < $2",
		selectList, quoteIdentifier(table.Name), tf, tf)
	if where != "" {
		query += fmt.Sprintf(" AND (%s)", where)
	}
	query += fmt.Sprintf(" ORDER BY %s LIMIT $3 OFFSET $4",
		strings.Join(quoteColumns(table.OrderFields), ", "))
	return query
}

// withRetry runs one query operation under the per-query timeout, retrying
// transient failures up to the configured budget. Each attempt gets a fresh
// deadline, so one slow page fails alone without capping the whole stream.
// Exhaustion (or a non-retryable failure) wraps the cause in *QueryError.
func (e *Engine) withRetry(ctx context.Context, op, table string, fn func(context.Context) error) error {
	retries := e.cfg.Extract.PageRetries
	backoff := e.cfg.Extract.RetryBackoff

	var err error
	for attempt := 1; ; attempt++ {
		qctx, cancel := context.WithTimeout(ctx, e.cfg.Extract.QueryTimeout)
		err = fn(qctx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !isRetryable(err) || attempt > retries {
			return &QueryError{Op: op, Table: table, Attempts: attempt, Err: err}
		}
		if backoff > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return &QueryError{Op: op, Table: table, Attempts: attempt, Err: err}
			}
		}
	}
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteColumns quotes each column name in the slice.
func quoteColumns(cols []string) []string {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdentifier(col)
	}
	return quoted
}
