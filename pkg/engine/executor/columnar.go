package executor

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/floedb/floe/pkg/engine/types"
)

// ColumnVector is the result of evaluating an expression against a record
// batch: a column of values, either computed per row or a single literal
// broadcast across all rows.
type ColumnVector interface {
	// Type returns the value type of the vector.
	Type() types.DataType
	// Len returns the number of rows.
	Len() int64
	// Value returns the Go value at index i, or nil for NULL. Timestamps
	// are returned as [arrow.Timestamp].
	Value(i int) any
	// ToArray returns the vector as an Arrow array. The array is owned by
	// the vector and stays valid until Release.
	ToArray() arrow.Array
	// Release frees memory held by the vector. Releasing a vector backed
	// by an input batch column does not release the batch.
	Release()
}

// Scalar represents a single literal value repeated any number of times.
type Scalar struct {
	value types.Literal
	rows  int64
	alloc memory.Allocator
	arr   arrow.Array
}

var _ ColumnVector = (*Scalar)(nil)

func newScalar(value types.Literal, rows int64, alloc memory.Allocator) *Scalar {
	return &Scalar{value: value, rows: rows, alloc: alloc}
}

// Type implements ColumnVector.
func (v *Scalar) Type() types.DataType { return v.value.DataType() }

// Len implements ColumnVector.
func (v *Scalar) Len() int64 { return v.rows }

// Value implements ColumnVector.
func (v *Scalar) Value(_ int) any {
	if v.value.IsNull() {
		return nil
	}
	if v.value.DataType().ID() == types.TypeTimestamp {
		return arrow.Timestamp(v.value.Time().UnixNano())
	}
	return v.value.Value()
}

// ToArray implements ColumnVector. The array is built on first use.
func (v *Scalar) ToArray() arrow.Array {
	if v.arr == nil {
		v.arr = buildScalarArray(v.alloc, v.value, v.rows)
	}
	return v.arr
}

// Release implements ColumnVector.
func (v *Scalar) Release() {
	if v.arr != nil {
		v.arr.Release()
		v.arr = nil
	}
}

func buildScalarArray(alloc memory.Allocator, value types.Literal, rows int64) arrow.Array {
	builder := array.NewBuilder(alloc, value.DataType().ArrowType())
	defer builder.Release()

	switch builder := builder.(type) {
	case *array.NullBuilder:
		for range rows {
			builder.AppendNull()
		}
	case *array.BooleanBuilder:
		val := value.Bool()
		for range rows {
			builder.Append(val)
		}
	case *array.Int64Builder:
		val := value.Int()
		for range rows {
			builder.Append(val)
		}
	case *array.Float64Builder:
		val := value.Float()
		for range rows {
			builder.Append(val)
		}
	case *array.StringBuilder:
		val := value.Str()
		for range rows {
			builder.Append(val)
		}
	case *array.TimestampBuilder:
		val := arrow.Timestamp(value.Time().UnixNano())
		for range rows {
			builder.Append(val)
		}
	default:
		panic(fmt.Sprintf("unsupported literal type %s", value.DataType()))
	}
	return builder.NewArray()
}

// Array represents a column of data stored as an [arrow.Array], either
// borrowed from an input batch or produced by an evaluation kernel.
type Array struct {
	array arrow.Array
	dt    types.DataType
	owned bool
}

var _ ColumnVector = (*Array)(nil)

// newBorrowedArray wraps a column of an input batch. The batch keeps
// ownership of the array.
func newBorrowedArray(arr arrow.Array, dt types.DataType) *Array {
	return &Array{array: arr, dt: dt}
}

// newOwnedArray wraps an array produced by a kernel. Release frees it.
func newOwnedArray(arr arrow.Array, dt types.DataType) *Array {
	return &Array{array: arr, dt: dt, owned: true}
}

// Type implements ColumnVector.
func (a *Array) Type() types.DataType { return a.dt }

// Len implements ColumnVector.
func (a *Array) Len() int64 { return int64(a.array.Len()) }

// Value implements ColumnVector.
func (a *Array) Value(i int) any {
	return arrayValue(a.array, i)
}

// ToArray implements ColumnVector.
func (a *Array) ToArray() arrow.Array { return a.array }

// Release implements ColumnVector.
func (a *Array) Release() {
	if a.owned {
		a.array.Release()
	}
}

// allNulls returns a vector of rows NULLs typed as dt.
func allNulls(alloc memory.Allocator, dt types.DataType, rows int64) *Array {
	builder := array.NewBuilder(alloc, dt.ArrowType())
	defer builder.Release()
	for range rows {
		builder.AppendNull()
	}
	return newOwnedArray(builder.NewArray(), dt)
}

// arrayValue returns the Go value at index i of an array, or nil for NULL.
// List values are not addressable this way; callers unnest them through the
// array directly.
func arrayValue(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch arr := arr.(type) {
	case *array.Boolean:
		return arr.Value(i)
	case *array.Int64:
		return arr.Value(i)
	case *array.Float64:
		return arr.Value(i)
	case *array.String:
		return arr.Value(i)
	case *array.Timestamp:
		return arr.Value(i)
	default:
		return nil
	}
}

// The row accessors below adapt a vector into a typed per-row lookup. The
// boolean result reports whether the row holds a value; NULL rows return
// false. Callers dispatch on the vector type first, so a mismatched vector
// is a programming error.

func int64Values(v ColumnVector) func(int) (int64, bool) {
	switch vec := v.(type) {
	case *Scalar:
		if vec.value.IsNull() {
			return func(int) (int64, bool) { return 0, false }
		}
		val := vec.value.Int()
		return func(int) (int64, bool) { return val, true }
	case *Array:
		arr := vec.array.(*array.Int64)
		return func(i int) (int64, bool) {
			if arr.IsNull(i) {
				return 0, false
			}
			return arr.Value(i), true
		}
	}
	panic(fmt.Sprintf("unsupported vector %T", v))
}

func float64Values(v ColumnVector) func(int) (float64, bool) {
	switch vec := v.(type) {
	case *Scalar:
		if vec.value.IsNull() {
			return func(int) (float64, bool) { return 0, false }
		}
		val := vec.value.Float()
		return func(int) (float64, bool) { return val, true }
	case *Array:
		arr := vec.array.(*array.Float64)
		return func(i int) (float64, bool) {
			if arr.IsNull(i) {
				return 0, false
			}
			return arr.Value(i), true
		}
	}
	panic(fmt.Sprintf("unsupported vector %T", v))
}

// numericValues returns a float64 accessor over an Int64, Float64, or
// Null-typed vector, promoting integers.
func numericValues(v ColumnVector) func(int) (float64, bool) {
	switch v.Type().ID() {
	case types.TypeNull:
		return func(int) (float64, bool) { return 0, false }
	case types.TypeInt64:
		ints := int64Values(v)
		return func(i int) (float64, bool) {
			val, ok := ints(i)
			return float64(val), ok
		}
	case types.TypeFloat64:
		return float64Values(v)
	}
	panic(fmt.Sprintf("non-numeric vector type %s", v.Type()))
}

func boolValues(v ColumnVector) func(int) (bool, bool) {
	if v.Type().ID() == types.TypeNull {
		return func(int) (bool, bool) { return false, false }
	}
	switch vec := v.(type) {
	case *Scalar:
		if vec.value.IsNull() {
			return func(int) (bool, bool) { return false, false }
		}
		val := vec.value.Bool()
		return func(int) (bool, bool) { return val, true }
	case *Array:
		arr := vec.array.(*array.Boolean)
		return func(i int) (bool, bool) {
			if arr.IsNull(i) {
				return false, false
			}
			return arr.Value(i), true
		}
	}
	panic(fmt.Sprintf("unsupported vector %T", v))
}

func stringValues(v ColumnVector) func(int) (string, bool) {
	switch vec := v.(type) {
	case *Scalar:
		if vec.value.IsNull() {
			return func(int) (string, bool) { return "", false }
		}
		val := vec.value.Str()
		return func(int) (string, bool) { return val, true }
	case *Array:
		arr := vec.array.(*array.String)
		return func(i int) (string, bool) {
			if arr.IsNull(i) {
				return "", false
			}
			return arr.Value(i), true
		}
	}
	panic(fmt.Sprintf("unsupported vector %T", v))
}

// timestampValues returns nanosecond values of a Timestamp vector.
func timestampValues(v ColumnVector) func(int) (int64, bool) {
	switch vec := v.(type) {
	case *Scalar:
		if vec.value.IsNull() {
			return func(int) (int64, bool) { return 0, false }
		}
		val := vec.value.Time().UnixNano()
		return func(int) (int64, bool) { return val, true }
	case *Array:
		arr := vec.array.(*array.Timestamp)
		return func(i int) (int64, bool) {
			if arr.IsNull(i) {
				return 0, false
			}
			return int64(arr.Value(i)), true
		}
	}
	panic(fmt.Sprintf("unsupported vector %T", v))
}
