package executor

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// appendValue copies the value at row of src into the builder. Builder and
// array types must correspond.
func appendValue(b array.Builder, src arrow.Array, row int) {
	if src.IsNull(row) {
		b.AppendNull()
		return
	}
	switch src := src.(type) {
	case *array.Boolean:
		b.(*array.BooleanBuilder).Append(src.Value(row))
	case *array.Int64:
		b.(*array.Int64Builder).Append(src.Value(row))
	case *array.Float64:
		b.(*array.Float64Builder).Append(src.Value(row))
	case *array.String:
		b.(*array.StringBuilder).Append(src.Value(row))
	case *array.Timestamp:
		b.(*array.TimestampBuilder).Append(src.Value(row))
	case *array.List:
		lb := b.(*array.ListBuilder)
		lb.Append(true)
		values := src.ListValues()
		start, end := src.ValueOffsets(row)
		vb := lb.ValueBuilder()
		for i := start; i < end; i++ {
			appendValue(vb, values, int(i))
		}
	default:
		panic(fmt.Sprintf("unsupported array type %T", src))
	}
}

// appendGoValue appends a Go value produced by [ColumnVector.Value] or an
// aggregation state to the builder. A nil value appends NULL.
func appendGoValue(b array.Builder, v any) {
	if v == nil {
		b.AppendNull()
		return
	}
	switch v := v.(type) {
	case bool:
		b.(*array.BooleanBuilder).Append(v)
	case int64:
		b.(*array.Int64Builder).Append(v)
	case float64:
		b.(*array.Float64Builder).Append(v)
	case string:
		b.(*array.StringBuilder).Append(v)
	case arrow.Timestamp:
		b.(*array.TimestampBuilder).Append(v)
	case time.Time:
		b.(*array.TimestampBuilder).Append(arrow.Timestamp(v.UnixNano()))
	default:
		panic(fmt.Sprintf("unsupported value type %T", v))
	}
}

// filterRecord copies the rows of batch for which keep reports true into a
// new record with the same schema. The input batch is left untouched.
func filterRecord(alloc memory.Allocator, batch arrow.Record, keep func(int) bool) arrow.Record {
	rb := array.NewRecordBuilder(alloc, batch.Schema())
	defer rb.Release()

	for row := range int(batch.NumRows()) {
		if !keep(row) {
			continue
		}
		for col := range int(batch.NumCols()) {
			appendValue(rb.Field(col), batch.Column(col), row)
		}
	}
	return rb.NewRecord()
}

// projectColumns returns a record holding the target schema's columns taken
// from batch by name. Columns are shared with the input, not copied. When
// the schemas already match the input is returned retained.
func projectColumns(batch arrow.Record, target *arrow.Schema) (arrow.Record, error) {
	if batch.Schema().Equal(target) {
		batch.Retain()
		return batch, nil
	}

	columns := make([]arrow.Array, len(target.Fields()))
	for i, field := range target.Fields() {
		indices := batch.Schema().FieldIndices(field.Name)
		if len(indices) == 0 {
			return nil, fmt.Errorf("source batch is missing column %q", field.Name)
		}
		columns[i] = batch.Column(indices[0])
	}
	return array.NewRecord(target, columns, batch.NumRows()), nil
}
