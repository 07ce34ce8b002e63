// Package export writes chunk streams to files or writers in several
// output formats.
//
// Memory behavior differs per format. jsonl writes each envelope as it
// arrives and never holds more than one chunk, so it is the only format
// that preserves the engine's bounded-memory property. json, csv and
// parquet must see the whole result before they can write (json for the
// enclosing array, csv and parquet for schema inference), so they buffer
// everything and their memory cost is proportional to the full result
// set.
package export

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/chunkstream/chunkstream/internal/core"
)

// ChunkSource is the pull side of a chunk stream. *core.Stream satisfies
// it; tests substitute slices.
type ChunkSource interface {
	Next(ctx context.Context) bool
	Chunk() *core.Chunk
	Err() error
}

// Options selects the output format and envelope shaping.
type Options struct {
	// Format is one of Formats(). Empty defaults to jsonl.
	Format string

	// IncludeMetadata keeps the metadata object on jsonl/json envelopes.
	// csv and parquet never carry it.
	IncludeMetadata bool
}

// Summary reports what a completed export produced.
type Summary struct {
	Path    string
	Format  string
	Chunks  int64
	Records int64
}

// writeFunc drains src into w and reports chunks and records written.
type writeFunc func(ctx context.Context, src ChunkSource, w io.Writer, opts Options) (chunks, records int64, err error)

var sinks = map[string]writeFunc{
	"jsonl":   writeJSONLines,
	"json":    writeJSONArray,
	"csv":     writeCSV,
	"parquet": writeParquet,
}

// recordOnly reports formats that discard the envelope and keep bare
// records. These produce no file when the stream is empty.
func recordOnly(format string) bool {
	return format == "csv" || format == "parquet"
}

// Formats returns the supported format names, sorted for help text.
func Formats() []string {
	names := make([]string, 0, len(sinks))
	for name := range sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ext returns the file extension for a format, without the dot.
func Ext(format string) string {
	if format == "" {
		return "jsonl"
	}
	return format
}

func resolveSink(format string) (string, writeFunc, error) {
	if format == "" {
		format = "jsonl"
	}
	sink, ok := sinks[format]
	if !ok {
		return "", nil, fmt.Errorf("unknown export format %q (supported: %s)",
			format, strings.Join(Formats(), ", "))
	}
	return format, sink, nil
}

// Stream drains src into w in the requested format. Used for console
// output and HTTP responses, where there is no file to manage.
func Stream(ctx context.Context, src ChunkSource, w io.Writer, opts Options) (Summary, error) {
	format, sink, err := resolveSink(opts.Format)
	if err != nil {
		return Summary{}, err
	}
	chunks, records, err := sink(ctx, src, w, opts)
	return Summary{Format: format, Chunks: chunks, Records: records}, err
}

// Export drains src into a file at path on fs, creating parent
// directories as needed. Record-only formats (csv, parquet) leave no
// file behind when the stream produced zero records; envelope formats
// write a valid empty document.
func Export(ctx context.Context, src ChunkSource, fs afero.Fs, path string, opts Options) (Summary, error) {
	format, sink, err := resolveSink(opts.Format)
	if err != nil {
		return Summary{}, err
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return Summary{}, fmt.Errorf("creating output directory: %w", err)
		}
	}
	f, err := fs.Create(path)
	if err != nil {
		return Summary{}, fmt.Errorf("creating output file: %w", err)
	}

	chunks, records, werr := sink(ctx, src, f, opts)
	cerr := f.Close()

	summary := Summary{Path: path, Format: format, Chunks: chunks, Records: records}
	if werr != nil {
		return summary, werr
	}
	if cerr != nil {
		return summary, fmt.Errorf("closing output file: %w", cerr)
	}
	if records == 0 && recordOnly(format) {
		if err := fs.Remove(path); err != nil {
			return summary, fmt.Errorf("removing empty output file: %w", err)
		}
		summary.Path = ""
	}
	return summary, nil
}
