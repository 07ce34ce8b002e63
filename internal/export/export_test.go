package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/chunkstream/chunkstream/internal/core"
)

// sliceSource replays a fixed set of chunks, then surfaces err.
type sliceSource struct {
	chunks []*core.Chunk
	idx    int
	err    error
}

func (s *sliceSource) Next(_ context.Context) bool {
	if s.idx >= len(s.chunks) {
		return false
	}
	s.idx++
	return true
}

func (s *sliceSource) Chunk() *core.Chunk { return s.chunks[s.idx-1] }
func (s *sliceSource) Err() error {
	if s.idx >= len(s.chunks) {
		return s.err
	}
	return nil
}

func sampleChunks() []*core.Chunk {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	meta := &core.ChunkMetadata{
		TableName: "tweets",
		TimeField: "created_at_ts",
		QueryTime: "2024-01-01T12:00:00Z",
	}
	return []*core.Chunk{
		{
			ChunkIndex: 1, ChunkOffset: 0, ChunkSize: 2, TotalCount: 3, Progress: 2.0 / 3.0,
			Data: []core.Record{
				{
					{Name: "created_at_ts", Value: core.TimeValue(ts)},
					{Name: "tweet_id", Value: core.IntValue(1)},
					{Name: "text", Value: core.StringValue("hello, world")},
				},
				{
					{Name: "created_at_ts", Value: core.TimeValue(ts.Add(time.Second))},
					{Name: "tweet_id", Value: core.IntValue(2)},
					{Name: "text", Value: core.NullValue()},
				},
			},
			Metadata: meta,
		},
		{
			ChunkIndex: 2, ChunkOffset: 2, ChunkSize: 1, TotalCount: 3, Progress: 1.0,
			Data: []core.Record{
				{
					{Name: "created_at_ts", Value: core.TimeValue(ts.Add(2 * time.Second))},
					{Name: "tweet_id", Value: core.IntValue(3)},
					{Name: "text", Value: core.StringValue("bye")},
					{Name: "lang", Value: core.StringValue("en")},
				},
			},
			Metadata: meta,
		},
	}
}

func TestFormats(t *testing.T) {
	want := []string{"csv", "json", "jsonl", "parquet"}
	if got := Formats(); !reflect.DeepEqual(got, want) {
		t.Errorf("Formats() = %v, want %v", got, want)
	}
}

func TestStream_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	src := &sliceSource{chunks: sampleChunks()}

	summary, err := Stream(context.Background(), src, &buf, Options{Format: "jsonl", IncludeMetadata: true})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if summary.Chunks != 2 || summary.Records != 3 {
		t.Errorf("summary = %+v, want 2 chunks, 3 records", summary)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for i, line := range lines {
		var chunk core.Chunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if chunk.ChunkIndex != i+1 {
			t.Errorf("line %d: chunk_index = %d, want %d", i, chunk.ChunkIndex, i+1)
		}
		if chunk.Metadata == nil {
			t.Errorf("line %d: metadata missing with IncludeMetadata", i)
		}
	}
}

func TestStream_MetadataStripped(t *testing.T) {
	chunks := sampleChunks()
	var buf bytes.Buffer
	src := &sliceSource{chunks: chunks}

	if _, err := Stream(context.Background(), src, &buf, Options{Format: "jsonl"}); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if strings.Contains(buf.String(), "metadata") {
		t.Error("output carries metadata with IncludeMetadata=false")
	}
	// The source's chunks are not mutated.
	if chunks[0].Metadata == nil {
		t.Error("stripping modified the source chunk")
	}
}

func TestExport_JSONLRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	chunks := sampleChunks()
	src := &sliceSource{chunks: chunks}

	_, err := Export(context.Background(), src, fs, "out/tweets.jsonl", Options{Format: "jsonl", IncludeMetadata: true})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	data, err := afero.ReadFile(fs, "out/tweets.jsonl")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != len(chunks) {
		t.Fatalf("got %d lines, want %d", len(lines), len(chunks))
	}
	for i, line := range lines {
		var decoded core.Chunk
		if err := json.Unmarshal([]byte(line), &decoded); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		reencoded, err := json.Marshal(&decoded)
		if err != nil {
			t.Fatalf("line %d: re-encode: %v", i, err)
		}
		if string(reencoded) != line {
			t.Errorf("line %d not byte-stable:\n got %s\nwant %s", i, reencoded, line)
		}
	}
}

func TestExport_JSONArray(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := &sliceSource{chunks: sampleChunks()}

	summary, err := Export(context.Background(), src, fs, "tweets.json", Options{Format: "json", IncludeMetadata: true})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if summary.Chunks != 2 {
		t.Errorf("summary.Chunks = %d, want 2", summary.Chunks)
	}

	data, err := afero.ReadFile(fs, "tweets.json")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var decoded []core.Chunk
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(decoded) != 2 || decoded[1].Progress != 1.0 {
		t.Errorf("decoded %d chunks, last progress %v", len(decoded), decoded[len(decoded)-1].Progress)
	}
	if !strings.HasPrefix(string(data), "[\n") {
		t.Error("array output is not indented")
	}
}

func TestExport_CSV(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := &sliceSource{chunks: sampleChunks()}

	summary, err := Export(context.Background(), src, fs, "tweets.csv", Options{Format: "csv"})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if summary.Records != 3 {
		t.Errorf("summary.Records = %d, want 3", summary.Records)
	}

	data, err := afero.ReadFile(fs, "tweets.csv")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}

	// lang first appears in the third record and lands last.
	wantHeader := []string{"created_at_ts", "tweet_id", "text", "lang"}
	if !reflect.DeepEqual(rows[0], wantHeader) {
		t.Errorf("header = %v, want %v", rows[0], wantHeader)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(rows))
	}
	// Null value and missing column are both empty cells.
	if rows[2][2] != "" || rows[1][3] != "" {
		t.Errorf("empty cells not blank: %v / %v", rows[2], rows[1])
	}
	if rows[1][1] != "1" || rows[3][3] != "en" {
		t.Errorf("cell values wrong: %v / %v", rows[1], rows[3])
	}
}

func TestExport_CSVEmptyStreamLeavesNoFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := &sliceSource{}

	summary, err := Export(context.Background(), src, fs, "empty.csv", Options{Format: "csv"})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if summary.Records != 0 || summary.Path != "" {
		t.Errorf("summary = %+v, want zero records and no path", summary)
	}
	if _, err := fs.Stat("empty.csv"); !os.IsNotExist(err) {
		t.Errorf("Stat() error = %v, want not-exist", err)
	}
}

func TestExport_EmptyJSONLWritesEmptyFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := &sliceSource{}

	summary, err := Export(context.Background(), src, fs, "empty.jsonl", Options{Format: "jsonl"})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if summary.Path != "empty.jsonl" {
		t.Errorf("summary.Path = %q, want file kept", summary.Path)
	}
	data, err := afero.ReadFile(fs, "empty.jsonl")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(data) != 0 {
		t.Errorf("file has %d bytes, want 0", len(data))
	}
}

func TestExport_UnknownFormat(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := Export(context.Background(), &sliceSource{}, fs, "out.xml", Options{Format: "xml"})
	if err == nil || !strings.Contains(err.Error(), "unknown export format") {
		t.Errorf("Export() error = %v, want unknown format", err)
	}
}

func TestExport_SourceError(t *testing.T) {
	fs := afero.NewMemMapFs()
	wantErr := errors.New("connection lost")
	src := &sliceSource{chunks: sampleChunks()[:1], err: wantErr}

	summary, err := Export(context.Background(), src, fs, "partial.jsonl", Options{Format: "jsonl", IncludeMetadata: true})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Export() error = %v, want %v", err, wantErr)
	}
	// The chunk delivered before the failure is on disk.
	if summary.Chunks != 1 {
		t.Errorf("summary.Chunks = %d, want 1", summary.Chunks)
	}
	data, err := afero.ReadFile(fs, "partial.jsonl")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := strings.Count(string(data), "\n"); got != 1 {
		t.Errorf("partial file has %d lines, want 1", got)
	}
}

func TestExport_CreatesParentDirs(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := &sliceSource{chunks: sampleChunks()}

	if _, err := Export(context.Background(), src, fs, "deep/nested/dir/tweets.jsonl", Options{Format: "jsonl"}); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if ok, _ := afero.Exists(fs, "deep/nested/dir/tweets.jsonl"); !ok {
		t.Error("output file missing under nested directories")
	}
}

func TestExport_DefaultFormat(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := &sliceSource{chunks: sampleChunks()}

	summary, err := Export(context.Background(), src, fs, "tweets.out", Options{})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if summary.Format != "jsonl" {
		t.Errorf("summary.Format = %q, want jsonl default", summary.Format)
	}
}
