package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chunkstream/chunkstream/internal/core"
)

func TestExport_Parquet(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	chunks := []*core.Chunk{
		{
			ChunkIndex: 1, ChunkSize: 2, TotalCount: 3, Progress: 2.0 / 3.0,
			Data: []core.Record{
				{
					{Name: "created_at_ts", Value: core.TimeValue(ts)},
					{Name: "tweet_id", Value: core.IntValue(1)},
					{Name: "score", Value: core.FloatValue(0.5)},
					{Name: "deleted", Value: core.BoolValue(false)},
					{Name: "text", Value: core.StringValue("hello")},
				},
				{
					{Name: "created_at_ts", Value: core.TimeValue(ts.Add(time.Second))},
					{Name: "tweet_id", Value: core.IntValue(2)},
					{Name: "score", Value: core.NullValue()},
					{Name: "deleted", Value: core.BoolValue(true)},
					{Name: "text", Value: core.NullValue()},
				},
			},
		},
		{
			ChunkIndex: 2, ChunkSize: 1, TotalCount: 3, Progress: 1.0,
			Data: []core.Record{
				{
					{Name: "created_at_ts", Value: core.TimeValue(ts.Add(2 * time.Second))},
					{Name: "tweet_id", Value: core.IntValue(3)},
					{Name: "text", Value: core.StringValue("bye")},
				},
			},
		},
	}

	fs := afero.NewMemMapFs()
	src := &sliceSource{chunks: chunks}

	summary, err := Export(context.Background(), src, fs, "tweets.parquet", Options{Format: "parquet"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Records)

	data, err := afero.ReadFile(fs, "tweets.parquet")
	require.NoError(t, err)

	tbl, err := pqarrow.ReadTable(
		context.Background(),
		bytes.NewReader(data),
		parquet.NewReaderProperties(memory.DefaultAllocator),
		pqarrow.ArrowReadProperties{},
		memory.DefaultAllocator,
	)
	require.NoError(t, err)
	defer tbl.Release()

	assert.Equal(t, int64(3), tbl.NumRows())
	assert.Equal(t, int64(5), tbl.NumCols())

	schema := tbl.Schema()
	wantTypes := map[string]arrow.DataType{
		"created_at_ts": &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"},
		"tweet_id":      arrow.PrimitiveTypes.Int64,
		"score":         arrow.PrimitiveTypes.Float64,
		"deleted":       arrow.FixedWidthTypes.Boolean,
		"text":          arrow.BinaryTypes.String,
	}
	for name, wantType := range wantTypes {
		fields, ok := schema.FieldsByName(name)
		require.True(t, ok, "column %s missing", name)
		assert.True(t, arrow.TypeEqual(fields[0].Type, wantType), "column %s has type %s", name, fields[0].Type)
	}
}

func TestExport_ParquetEmptyStreamLeavesNoFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	summary, err := Export(context.Background(), &sliceSource{}, fs, "empty.parquet", Options{Format: "parquet"})
	require.NoError(t, err)
	assert.Empty(t, summary.Path)

	exists, err := afero.Exists(fs, "empty.parquet")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInferFields_ConflictFallsBackToString(t *testing.T) {
	rows := []core.Record{
		{{Name: "mixed", Value: core.IntValue(1)}},
		{{Name: "mixed", Value: core.StringValue("two")}},
		{{Name: "allnull", Value: core.NullValue()}},
	}
	fields := inferFields([]string{"mixed", "allnull"}, rows)
	assert.True(t, arrow.TypeEqual(fields[0].Type, arrow.BinaryTypes.String), "conflicting kinds should demote to string")
	assert.True(t, arrow.TypeEqual(fields[1].Type, arrow.BinaryTypes.String), "all-null column should default to string")
}
