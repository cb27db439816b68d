package arrowtest

import (
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

func TestRowsRoundTrip(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	ts := time.Unix(0, 42).UTC()
	rows := Rows{
		{"a": int64(1), "b": "x", "c": 1.5, "d": true, "ts": ts},
		{"a": int64(2), "b": nil, "c": nil, "d": false, "ts": ts},
	}

	record := rows.Record(alloc, rows.Schema())
	defer record.Release()

	require.Equal(t, int64(2), record.NumRows())
	require.Equal(t, int64(5), record.NumCols())

	back, err := RecordRows(record)
	require.NoError(t, err)
	require.Equal(t, rows, back)
}

func TestListColumn(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "tags", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
	}, nil)

	rows := Rows{
		{"id": int64(1), "tags": []any{"a", "b"}},
		{"id": int64(2), "tags": nil},
		{"id": int64(3), "tags": []any{}},
	}

	record := rows.Record(alloc, schema)
	defer record.Release()

	back, err := RecordRows(record)
	require.NoError(t, err)
	require.Equal(t, rows, back)
}
