package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/chunkstream/chunkstream/internal/core"
)

// shape applies the envelope options without touching the chunk the
// source owns.
func shape(chunk *core.Chunk, opts Options) *core.Chunk {
	if opts.IncludeMetadata || chunk.Metadata == nil {
		return chunk
	}
	stripped := *chunk
	stripped.Metadata = nil
	return &stripped
}

// writeJSONLines emits one envelope per line as chunks arrive. Memory
// stays bounded by a single chunk.
func writeJSONLines(ctx context.Context, src ChunkSource, w io.Writer, opts Options) (int64, int64, error) {
	enc := json.NewEncoder(w)
	var chunks, records int64
	for src.Next(ctx) {
		chunk := src.Chunk()
		if err := enc.Encode(shape(chunk, opts)); err != nil {
			return chunks, records, fmt.Errorf("encoding chunk: %w", err)
		}
		chunks++
		records += int64(chunk.ChunkSize)
	}
	return chunks, records, src.Err()
}

// writeJSONArray buffers every envelope, then writes one indented array.
func writeJSONArray(ctx context.Context, src ChunkSource, w io.Writer, opts Options) (int64, int64, error) {
	buffered := []*core.Chunk{}
	var records int64
	for src.Next(ctx) {
		chunk := src.Chunk()
		buffered = append(buffered, shape(chunk, opts))
		records += int64(chunk.ChunkSize)
	}
	if err := src.Err(); err != nil {
		return int64(len(buffered)), records, err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(buffered); err != nil {
		return int64(len(buffered)), records, fmt.Errorf("encoding chunks: %w", err)
	}
	return int64(len(buffered)), records, nil
}

// drainRecords collects every record across chunks, discarding the
// envelopes. Shared by the record-only sinks.
func drainRecords(ctx context.Context, src ChunkSource) ([]core.Record, int64, error) {
	var rows []core.Record
	var chunks int64
	for src.Next(ctx) {
		chunk := src.Chunk()
		rows = append(rows, chunk.Data...)
		chunks++
	}
	return rows, chunks, src.Err()
}

// inferColumns returns the union of field names across rows in
// first-seen order.
func inferColumns(rows []core.Record) []string {
	var cols []string
	seen := map[string]bool{}
	for _, row := range rows {
		for _, field := range row {
			if !seen[field.Name] {
				seen[field.Name] = true
				cols = append(cols, field.Name)
			}
		}
	}
	return cols
}

// writeCSV buffers all records, infers the header from the union of
// field names, and writes rows in arrival order. Fields absent from a
// row become empty cells.
func writeCSV(ctx context.Context, src ChunkSource, w io.Writer, _ Options) (int64, int64, error) {
	rows, chunks, err := drainRecords(ctx, src)
	if err != nil {
		return chunks, int64(len(rows)), err
	}
	if len(rows) == 0 {
		return chunks, 0, nil
	}

	cols := inferColumns(rows)
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return chunks, int64(len(rows)), fmt.Errorf("writing csv header: %w", err)
	}
	cells := make([]string, len(cols))
	for _, row := range rows {
		for i, col := range cols {
			value, ok := row.Get(col)
			if !ok {
				cells[i] = ""
				continue
			}
			cells[i] = value.String()
		}
		if err := cw.Write(cells); err != nil {
			return chunks, int64(len(rows)), fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return chunks, int64(len(rows)), fmt.Errorf("flushing csv: %w", err)
	}
	return chunks, int64(len(rows)), nil
}
