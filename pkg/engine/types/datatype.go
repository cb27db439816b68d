// Package types defines the value types, literals, and operators shared by the
// logical and physical layers of the engine.
package types

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// TypeID identifies a value type.
type TypeID uint8

// Recognized values of [TypeID].
const (
	TypeInvalid TypeID = iota // zero-value is an invalid type

	TypeNull      // NULL type, the type of untyped nulls.
	TypeBool      // Boolean type.
	TypeInt64     // Signed 64bit integer type.
	TypeFloat64   // 64bit floating point type.
	TypeString    // UTF-8 string type.
	TypeTimestamp // Nanosecond-precision UTC timestamp type.
	TypeList      // Variable-length list of a single element type.
)

// DataType describes the value type of a column or expression.
type DataType interface {
	ID() TypeID
	String() string

	// ArrowType returns the Arrow representation used for columns of this
	// type in record batches.
	ArrowType() arrow.DataType

	Equal(other DataType) bool
}

// Singleton instances for scalar types.
var (
	Null      DataType = scalarType{id: TypeNull, name: "null", arrow: arrow.Null}
	Bool      DataType = scalarType{id: TypeBool, name: "bool", arrow: arrow.FixedWidthTypes.Boolean}
	Int64     DataType = scalarType{id: TypeInt64, name: "int64", arrow: arrow.PrimitiveTypes.Int64}
	Float64   DataType = scalarType{id: TypeFloat64, name: "float64", arrow: arrow.PrimitiveTypes.Float64}
	String    DataType = scalarType{id: TypeString, name: "string", arrow: arrow.BinaryTypes.String}
	Timestamp DataType = scalarType{id: TypeTimestamp, name: "timestamp", arrow: arrow.FixedWidthTypes.Timestamp_ns}
)

type scalarType struct {
	id    TypeID
	name  string
	arrow arrow.DataType
}

func (t scalarType) ID() TypeID                { return t.id }
func (t scalarType) String() string            { return t.name }
func (t scalarType) ArrowType() arrow.DataType { return t.arrow }
func (t scalarType) Equal(other DataType) bool { return other != nil && other.ID() == t.id }

// ListType is a variable-length list with a fixed element type.
type ListType struct {
	elem DataType
}

// ListOf returns the list type with the given element type.
func ListOf(elem DataType) *ListType {
	return &ListType{elem: elem}
}

func (t *ListType) ID() TypeID     { return TypeList }
func (t *ListType) Elem() DataType { return t.elem }

func (t *ListType) String() string {
	return fmt.Sprintf("list<%s>", t.elem)
}

func (t *ListType) ArrowType() arrow.DataType {
	return arrow.ListOf(t.elem.ArrowType())
}

func (t *ListType) Equal(other DataType) bool {
	o, ok := other.(*ListType)
	return ok && t.elem.Equal(o.elem)
}

// FromArrow maps an Arrow data type back to the engine type used for columns
// of that type. It fails for Arrow types the engine has no representation for.
func FromArrow(at arrow.DataType) (DataType, error) {
	switch at.ID() {
	case arrow.NULL:
		return Null, nil
	case arrow.BOOL:
		return Bool, nil
	case arrow.INT64:
		return Int64, nil
	case arrow.FLOAT64:
		return Float64, nil
	case arrow.STRING:
		return String, nil
	case arrow.TIMESTAMP:
		return Timestamp, nil
	case arrow.LIST:
		elem, err := FromArrow(at.(*arrow.ListType).Elem())
		if err != nil {
			return nil, err
		}
		return ListOf(elem), nil
	default:
		return nil, fmt.Errorf("unsupported arrow type %s", at)
	}
}

// IsNumeric reports whether dt is a numeric type.
func IsNumeric(dt DataType) bool {
	return dt != nil && (dt.ID() == TypeInt64 || dt.ID() == TypeFloat64)
}

// Promote returns the common type of two numeric operands, widening Int64 to
// Float64 when the operands mix. Identical types promote to themselves.
// Null promotes to the other operand's type. Any other combination fails.
func Promote(a, b DataType) (DataType, error) {
	switch {
	case a.Equal(b):
		return a, nil
	case a.ID() == TypeNull:
		return b, nil
	case b.ID() == TypeNull:
		return a, nil
	case IsNumeric(a) && IsNumeric(b):
		return Float64, nil
	default:
		return nil, fmt.Errorf("incompatible types %s and %s", a, b)
	}
}
