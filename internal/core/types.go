package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// DBTX is the query capability the engine requires.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// TimeRange is a half-open interval [Start, End).
// Both endpoints are UTC-normalized and Start <= End.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// IsEmpty reports whether the range contains no instants.
func (r TimeRange) IsEmpty() bool {
	return !r.Start.Before(r.End)
}

// Duration returns End - Start.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Table describes one extractable table: which column carries the record
// timestamp, the primary key, and the full sort order used for pagination.
//
// OrderFields must include TimeField (first) so that ORDER BY yields a
// stable, deterministic total order. Offset pagination relies on this to
// never skip or duplicate rows when timestamps tie.
type Table struct {
	Name        string   `json:"name"`
	TimeField   string   `json:"time_field"`
	PrimaryKey  string   `json:"primary_key"`
	OrderFields []string `json:"order_fields"`
	Description string   `json:"description,omitempty"`
}

// Window is one half-open sub-range [Start, End) of a larger time range.
// Windows produced by GenerateWindows are contiguous, non-overlapping, and
// their union equals the parent range exactly. Index is 1-based.
type Window struct {
	Index int
	Start time.Time
	End   time.Time
}

// Range returns the window's interval as a TimeRange.
func (w Window) Range() TimeRange {
	return TimeRange{Start: w.Start, End: w.End}
}

// ChunkMetadata carries provenance for one chunk envelope.
type ChunkMetadata struct {
	TableName string `json:"table_name"`
	TimeField string `json:"time_field"`
	// QueryTime is the emission capture time, RFC3339Nano.
	QueryTime string `json:"query_time"`
}

// Chunk is the unit of output: one materialized page of records plus
// positional metadata. A single struct covers both streaming modes; fields
// that do not apply to the active mode are omitted from JSON.
//
// Windowed mode sets WindowIndex, WindowStart, WindowEnd and
// TotalRecordsSoFar (the running total across all windows). Flat mode sets
// ChunkIndex, TotalCount and Progress (a fraction in (0, 1] that reaches
// exactly 1.0 on the final chunk).
//
// A chunk is constructed fresh per page and never mutated after emission;
// the consumer owns it afterwards.
type Chunk struct {
	WindowIndex int    `json:"window_index,omitempty"`
	WindowStart string `json:"window_start,omitempty"`
	WindowEnd   string `json:"window_end,omitempty"`

	ChunkIndex int `json:"chunk_index,omitempty"`

	ChunkOffset int64 `json:"chunk_offset"`
	ChunkSize   int   `json:"chunk_size"`

	TotalCount        int64   `json:"total_count,omitempty"`
	Progress          float64 `json:"progress,omitempty"`
	TotalRecordsSoFar int64   `json:"total_records_so_far,omitempty"`

	Data []Record `json:"data"`

	Metadata *ChunkMetadata `json:"metadata,omitempty"`
}

// CountRequest asks for the number of rows in a table within a time range.
type CountRequest struct {
	Table     string
	StartTime string
	EndTime   string

	// Where is an optional raw SQL predicate fragment appended to the query
	// verbatim. Trust boundary: the caller is responsible for its safety.
	Where string
}

// StreamRequest describes one streaming extraction.
// Zero values for ChunkSize and WindowInterval fall back to the configured
// defaults.
type StreamRequest struct {
	Table     string
	StartTime string
	EndTime   string

	// Where is an optional raw SQL predicate fragment appended to every
	// query verbatim. Trust boundary: the caller is responsible for its
	// safety.
	Where string

	// Fields projects specific columns; empty means all columns.
	Fields []string

	// ChunkSize is the page size; 0 uses the configured default.
	ChunkSize int

	// WindowInterval is the window duration for windowed mode; 0 uses the
	// configured default. Ignored in flat mode.
	WindowInterval time.Duration
}

// Totals summarizes what a stream has emitted so far.
type Totals struct {
	Chunks  int
	Records int64
}
