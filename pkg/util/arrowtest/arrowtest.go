// Package arrowtest provides small helpers to construct and inspect Arrow
// records in tests using plain Go maps.
package arrowtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Row holds the values of a single row keyed by column name. Missing keys
// and nil values become NULLs.
type Row map[string]any

// Rows is a batch of rows sharing the same columns.
type Rows []Row

// Schema infers an Arrow schema from the rows: column names are sorted
// alphabetically, types come from the first non-nil value of each column,
// and every field is nullable.
func (r Rows) Schema() *arrow.Schema {
	if len(r) == 0 {
		return arrow.NewSchema(nil, nil)
	}

	names := make([]string, 0, len(r[0]))
	for name := range r[0] {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]arrow.Field, 0, len(names))
	for _, name := range names {
		fields = append(fields, arrow.Field{
			Name:     name,
			Type:     inferType(r, name),
			Nullable: true,
		})
	}
	return arrow.NewSchema(fields, nil)
}

func inferType(rows Rows, name string) arrow.DataType {
	for _, row := range rows {
		switch row[name].(type) {
		case nil:
			continue
		case bool:
			return arrow.FixedWidthTypes.Boolean
		case int, int64:
			return arrow.PrimitiveTypes.Int64
		case float64:
			return arrow.PrimitiveTypes.Float64
		case string:
			return arrow.BinaryTypes.String
		case time.Time:
			return arrow.FixedWidthTypes.Timestamp_ns
		default:
			panic(fmt.Sprintf("arrowtest: cannot infer arrow type for %T", row[name]))
		}
	}
	return arrow.BinaryTypes.String
}

// Record builds an Arrow record for the rows using the given schema. The
// caller owns the returned record.
func (r Rows) Record(alloc memory.Allocator, schema *arrow.Schema) arrow.Record {
	builder := array.NewRecordBuilder(alloc, schema)
	defer builder.Release()

	for i, field := range schema.Fields() {
		fb := builder.Field(i)
		for _, row := range r {
			appendValue(fb, field, row[field.Name])
		}
	}
	return builder.NewRecord()
}

func appendValue(b array.Builder, field arrow.Field, value any) {
	if value == nil {
		b.AppendNull()
		return
	}

	switch b := b.(type) {
	case *array.BooleanBuilder:
		b.Append(value.(bool))
	case *array.Int64Builder:
		switch v := value.(type) {
		case int:
			b.Append(int64(v))
		case int64:
			b.Append(v)
		default:
			panic(fmt.Sprintf("arrowtest: column %q expects an integer, got %T", field.Name, value))
		}
	case *array.Float64Builder:
		b.Append(value.(float64))
	case *array.StringBuilder:
		b.Append(value.(string))
	case *array.TimestampBuilder:
		b.Append(arrow.Timestamp(value.(time.Time).UnixNano()))
	case *array.ListBuilder:
		b.Append(true)
		elem := arrow.Field{Name: "item", Type: field.Type.(*arrow.ListType).Elem(), Nullable: true}
		for _, item := range value.([]any) {
			appendValue(b.ValueBuilder(), elem, item)
		}
	default:
		panic(fmt.Sprintf("arrowtest: unsupported builder %T for column %q", b, field.Name))
	}
}

// RecordRows converts a record back into rows. Timestamps come back as UTC
// [time.Time], lists as []any, NULLs as nil.
func RecordRows(record arrow.Record) (Rows, error) {
	rows := make(Rows, record.NumRows())
	for i := range rows {
		rows[i] = make(Row, record.NumCols())
	}

	for c := 0; c < int(record.NumCols()); c++ {
		name := record.ColumnName(c)
		column := record.Column(c)
		for i := 0; i < int(record.NumRows()); i++ {
			value, err := cellValue(column, i)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", name, err)
			}
			rows[i][name] = value
		}
	}
	return rows, nil
}

func cellValue(column arrow.Array, i int) (any, error) {
	if column.IsNull(i) {
		return nil, nil
	}
	switch column := column.(type) {
	case *array.Boolean:
		return column.Value(i), nil
	case *array.Int64:
		return column.Value(i), nil
	case *array.Float64:
		return column.Value(i), nil
	case *array.String:
		return column.Value(i), nil
	case *array.Timestamp:
		return time.Unix(0, int64(column.Value(i))).UTC(), nil
	case *array.List:
		start, end := column.ValueOffsets(i)
		values := column.ListValues()
		items := make([]any, 0, end-start)
		for j := start; j < end; j++ {
			item, err := cellValue(values, int(j))
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unsupported array type %T", column)
	}
}
