package core

// fake_db_test.go provides an in-memory DBTX that answers the two query
// shapes the engine issues. It filters a fixed row set by the time-range
// bind parameters, so windowed and paginated behavior can be exercised
// without a database.

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeDB struct {
	cols    []string
	timeIdx int     // index of the time column within cols
	rows    [][]any // sorted by time, then tiebreaker

	// mu guards the mutable state below; streaming tests touch the fake
	// from both the producer goroutine and the test body.
	mu         sync.Mutex
	countCalls int
	queryCalls int
	sqls       []string

	// failNext fails that many upcoming calls (Query and QueryRow alike)
	// with failErr before succeeding.
	failNext int
	failErr  error
}

func (f *fakeDB) setFailNext(n int) {
	f.mu.Lock()
	f.failNext = n
	f.mu.Unlock()
}

func (f *fakeDB) calls() (count, query int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countCalls, f.queryCalls
}

// transientErr satisfies net.Error so isRetryable treats it as transient.
type transientErr struct{ msg string }

func (e *transientErr) Error() string   { return e.msg }
func (e *transientErr) Timeout() bool   { return true }
func (e *transientErr) Temporary() bool { return true }

func (f *fakeDB) filter(start, end time.Time) [][]any {
	var out [][]any
	for _, row := range f.rows {
		ts := row[f.timeIdx].(time.Time)
		if !ts.Before(start) && ts.Before(end) {
			out = append(out, row)
		}
	}
	return out
}

// takeFailure expects f.mu to be held.
func (f *fakeDB) takeFailure() error {
	if f.failNext > 0 {
		f.failNext--
		if f.failErr != nil {
			return f.failErr
		}
		return &transientErr{msg: "connection reset"}
	}
	return nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls++
	f.sqls = append(f.sqls, sql)
	if err := f.takeFailure(); err != nil {
		return &fakeRow{err: err}
	}
	if !strings.HasPrefix(sql, "SELECT COUNT(*)") {
		return &fakeRow{err: fmt.Errorf("unexpected QueryRow sql: %s", sql)}
	}
	matched := f.filter(args[0].(time.Time), args[1].(time.Time))
	return &fakeRow{count: int64(len(matched))}
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	f.sqls = append(f.sqls, sql)
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	matched := f.filter(args[0].(time.Time), args[1].(time.Time))
	limit := args[2].(int64)
	offset := args[3].(int64)

	if offset > int64(len(matched)) {
		offset = int64(len(matched))
	}
	end := offset + limit
	if end > int64(len(matched)) {
		end = int64(len(matched))
	}
	return &fakeRows{cols: f.cols, rows: matched[offset:end], idx: -1}, nil
}

type fakeRow struct {
	count int64
	err   error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.count
	return nil
}

type fakeRows struct {
	cols []string
	rows [][]any
	idx  int
	err  error
}

func (r *fakeRows) Close()                        {}
func (r *fakeRows) Err() error                    { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *fakeRows) Conn() *pgx.Conn               { return nil }
func (r *fakeRows) RawValues() [][]byte           { return nil }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.cols))
	for i, c := range r.cols {
		fds[i] = pgconn.FieldDescription{Name: c}
	}
	return fds
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	return fmt.Errorf("fakeRows.Scan not implemented")
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.idx], nil
}

// tweetRows generates n rows with timestamps spaced evenly from start,
// in the shape of the tweets table.
func tweetRows(n int, start time.Time, spacing time.Duration) [][]any {
	rows := make([][]any, n)
	for i := 0; i < n; i++ {
		rows[i] = []any{
			start.Add(time.Duration(i) * spacing),
			int64(i + 1),
			fmt.Sprintf("tweet %d", i+1),
		}
	}
	return rows
}

func tweetFakeDB(n int, start time.Time, spacing time.Duration) *fakeDB {
	return &fakeDB{
		cols:    []string{"created_at_ts", "tweet_id", "text"},
		timeIdx: 0,
		rows:    tweetRows(n, start, spacing),
	}
}
