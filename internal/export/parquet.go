package export

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/chunkstream/chunkstream/internal/core"
)

// writeParquet buffers all records, infers an Arrow schema from the
// observed values, and writes a single Snappy-compressed row group.
func writeParquet(ctx context.Context, src ChunkSource, w io.Writer, _ Options) (int64, int64, error) {
	rows, chunks, err := drainRecords(ctx, src)
	if err != nil {
		return chunks, int64(len(rows)), err
	}
	if len(rows) == 0 {
		return chunks, 0, nil
	}

	cols := inferColumns(rows)
	schema := arrow.NewSchema(inferFields(cols, rows), nil)

	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer builder.Release()
	for _, row := range rows {
		for i, col := range cols {
			appendValue(builder.Field(i), row, col)
		}
	}

	rec := builder.NewRecord()
	defer rec.Release()
	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	if err := pqarrow.WriteTable(tbl, w, int64(len(rows)), props, pqarrow.DefaultWriterProps()); err != nil {
		return chunks, int64(len(rows)), fmt.Errorf("writing parquet: %w", err)
	}
	return chunks, int64(len(rows)), nil
}

// inferFields maps each column to an Arrow type from the kinds of its
// non-null values. A column whose non-null values disagree on kind, or
// that is entirely null, falls back to string.
func inferFields(cols []string, rows []core.Record) []arrow.Field {
	kinds := make(map[string]core.Kind, len(cols))
	for _, row := range rows {
		for _, field := range row {
			if field.Value.IsNull() {
				continue
			}
			prev, ok := kinds[field.Name]
			switch {
			case !ok:
				kinds[field.Name] = field.Value.Kind
			case prev != field.Value.Kind:
				kinds[field.Name] = core.KindString
			}
		}
	}

	fields := make([]arrow.Field, len(cols))
	for i, col := range cols {
		fields[i] = arrow.Field{Name: col, Type: arrowType(kinds[col]), Nullable: true}
	}
	return fields
}

func arrowType(kind core.Kind) arrow.DataType {
	switch kind {
	case core.KindBool:
		return arrow.FixedWidthTypes.Boolean
	case core.KindInt:
		return arrow.PrimitiveTypes.Int64
	case core.KindFloat:
		return arrow.PrimitiveTypes.Float64
	case core.KindTime:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	default:
		return arrow.BinaryTypes.String
	}
}

// appendValue writes one cell. Missing fields and nulls append null;
// string columns coerce any value through its text form.
func appendValue(b array.Builder, row core.Record, col string) {
	value, ok := row.Get(col)
	if !ok || value.IsNull() {
		b.AppendNull()
		return
	}
	switch builder := b.(type) {
	case *array.BooleanBuilder:
		builder.Append(value.Bool)
	case *array.Int64Builder:
		builder.Append(value.Int)
	case *array.Float64Builder:
		builder.Append(value.Float)
	case *array.TimestampBuilder:
		builder.Append(arrow.Timestamp(value.Time.UTC().UnixMicro()))
	case *array.StringBuilder:
		builder.Append(value.String())
	default:
		b.AppendNull()
	}
}
