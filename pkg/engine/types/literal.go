package types

import (
	"fmt"
	"strconv"
	"time"
)

// Literal is an immutable typed constant.
type Literal struct {
	dt DataType
	v  any
}

// NewLiteral builds a literal from a Go value. Supported values are nil,
// bool, int, int64, float64, string, and [time.Time].
func NewLiteral(v any) Literal {
	switch v := v.(type) {
	case nil:
		return NullLiteral()
	case bool:
		return BoolLiteral(v)
	case int:
		return IntLiteral(int64(v))
	case int64:
		return IntLiteral(v)
	case float64:
		return FloatLiteral(v)
	case string:
		return StringLiteral(v)
	case time.Time:
		return TimestampLiteral(v)
	default:
		panic(fmt.Sprintf("invalid literal value of type %T", v))
	}
}

func NullLiteral() Literal           { return Literal{dt: Null} }
func BoolLiteral(v bool) Literal     { return Literal{dt: Bool, v: v} }
func IntLiteral(v int64) Literal     { return Literal{dt: Int64, v: v} }
func FloatLiteral(v float64) Literal { return Literal{dt: Float64, v: v} }
func StringLiteral(v string) Literal { return Literal{dt: String, v: v} }
func TimestampLiteral(v time.Time) Literal {
	return Literal{dt: Timestamp, v: v.UTC()}
}

// DataType returns the type of the literal.
func (l Literal) DataType() DataType { return l.dt }

// Value returns the untyped value of the literal, nil for NULL.
func (l Literal) Value() any { return l.v }

// IsNull reports whether the literal is NULL.
func (l Literal) IsNull() bool { return l.dt == nil || l.dt.ID() == TypeNull }

// Int returns the int64 value of the literal. It panics for other types.
func (l Literal) Int() int64 { return l.v.(int64) }

// Float returns the float64 value of the literal. It panics for other types.
func (l Literal) Float() float64 { return l.v.(float64) }

// Str returns the string value of the literal. It panics for other types.
func (l Literal) Str() string { return l.v.(string) }

// Bool returns the boolean value of the literal. It panics for other types.
func (l Literal) Bool() bool { return l.v.(bool) }

// Time returns the timestamp value of the literal. It panics for other types.
func (l Literal) Time() time.Time { return l.v.(time.Time) }

// AsFloat converts a numeric literal to float64.
func (l Literal) AsFloat() (float64, bool) {
	switch v := l.v.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// Equal reports whether two literals have the same type and value.
func (l Literal) Equal(other Literal) bool {
	if l.IsNull() || other.IsNull() {
		return l.IsNull() == other.IsNull()
	}
	if !l.dt.Equal(other.dt) {
		return false
	}
	if a, ok := l.v.(time.Time); ok {
		return a.Equal(other.v.(time.Time))
	}
	return l.v == other.v
}

// String returns the value rendered the way plans print it.
func (l Literal) String() string {
	switch v := l.v.(type) {
	case nil:
		return "NULL"
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return strconv.Quote(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}
