package executor

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/types"
)

// ZeroDivision selects how division and modulo by zero behave during
// evaluation. The policy applies to integer and floating-point divisions
// alike; a float division by zero never produces an infinity.
type ZeroDivision int

const (
	// ZeroDivisionError fails the evaluation with an [EvalError] wrapping
	// [ErrDivisionByZero]. This is the default.
	ZeroDivisionError ZeroDivision = iota
	// ZeroDivisionNull yields NULL for the offending rows and lets the
	// evaluation continue.
	ZeroDivisionNull
)

// evaluator computes expression results over record batches. Expressions
// are assumed to be bound: operand types satisfy the operator signatures
// and referenced columns exist in the input.
type evaluator struct {
	alloc        memory.Allocator
	zeroDivision ZeroDivision
}

func newEvaluator(alloc memory.Allocator, zeroDivision ZeroDivision) evaluator {
	return evaluator{alloc: alloc, zeroDivision: zeroDivision}
}

// eval evaluates an expression against a record batch, returning one value
// per input row. The caller releases the returned vector; the input batch
// must stay valid until then.
func (e evaluator) eval(x expr.Expr, input arrow.Record) (ColumnVector, error) {
	switch x := x.(type) {
	case *expr.LiteralExpr:
		return newScalar(x.Value, input.NumRows(), e.alloc), nil

	case *expr.ColumnExpr:
		indices := input.Schema().FieldIndices(x.Name)
		if len(indices) == 0 {
			return nil, newEvalError(x, expr.ErrUnknownColumn)
		}
		idx := indices[0]
		dt, err := types.FromArrow(input.Schema().Field(idx).Type)
		if err != nil {
			return nil, newEvalError(x, err)
		}
		return newBorrowedArray(input.Column(idx), dt), nil

	case *expr.AliasExpr:
		return e.eval(x.Value, input)

	case *expr.UnaryExpr:
		value, err := e.eval(x.Value, input)
		if err != nil {
			return nil, err
		}
		defer value.Release()
		return e.evalUnary(x, value)

	case *expr.BinaryExpr:
		lhs, err := e.eval(x.Left, input)
		if err != nil {
			return nil, err
		}
		defer lhs.Release()
		rhs, err := e.eval(x.Right, input)
		if err != nil {
			return nil, err
		}
		defer rhs.Release()
		return e.evalBinary(x, lhs, rhs, input.NumRows())

	case *expr.FuncExpr:
		kernel, ok := scalarKernels[x.Name]
		if !ok {
			return nil, newEvalError(x, fmt.Errorf("unknown function %q", x.Name))
		}
		args := make([]ColumnVector, len(x.Args))
		defer func() {
			for _, arg := range args {
				if arg != nil {
					arg.Release()
				}
			}
		}()
		for i, argExpr := range x.Args {
			arg, err := e.eval(argExpr, input)
			if err != nil {
				return nil, err
			}
			args[i] = arg
		}
		return kernel(e, x, args, input.NumRows())

	case *expr.CastExpr:
		value, err := e.eval(x.Value, input)
		if err != nil {
			return nil, err
		}
		defer value.Release()
		return e.evalCast(x, value)

	case *expr.AggExpr:
		return nil, newEvalError(x, errors.New("aggregate expression outside aggregation context"))
	}

	return nil, fmt.Errorf("unknown expression %T", x)
}

func (e evaluator) evalUnary(x *expr.UnaryExpr, value ColumnVector) (ColumnVector, error) {
	rows := value.Len()

	switch x.Op {
	case types.UnaryOpIsNull, types.UnaryOpIsNotNull:
		builder := array.NewBooleanBuilder(e.alloc)
		defer builder.Release()
		wantNull := x.Op == types.UnaryOpIsNull
		for i := range int(rows) {
			builder.Append((value.Value(i) == nil) == wantNull)
		}
		return newOwnedArray(builder.NewArray(), types.Bool), nil

	case types.UnaryOpNot:
		if value.Type().ID() != types.TypeBool {
			return nil, newEvalError(x, fmt.Errorf("%w: NOT expects bool, got %s", expr.ErrTypeMismatch, value.Type()))
		}
		vals := boolValues(value)
		builder := array.NewBooleanBuilder(e.alloc)
		defer builder.Release()
		for i := range int(rows) {
			if val, ok := vals(i); ok {
				builder.Append(!val)
			} else {
				builder.AppendNull()
			}
		}
		return newOwnedArray(builder.NewArray(), types.Bool), nil

	case types.UnaryOpNeg:
		switch value.Type().ID() {
		case types.TypeInt64:
			vals := int64Values(value)
			builder := array.NewInt64Builder(e.alloc)
			defer builder.Release()
			for i := range int(rows) {
				if val, ok := vals(i); ok {
					builder.Append(-val)
				} else {
					builder.AppendNull()
				}
			}
			return newOwnedArray(builder.NewArray(), types.Int64), nil
		case types.TypeFloat64:
			vals := float64Values(value)
			builder := array.NewFloat64Builder(e.alloc)
			defer builder.Release()
			for i := range int(rows) {
				if val, ok := vals(i); ok {
					builder.Append(-val)
				} else {
					builder.AppendNull()
				}
			}
			return newOwnedArray(builder.NewArray(), types.Float64), nil
		}
		return nil, newEvalError(x, fmt.Errorf("%w: NEG expects a numeric operand, got %s", expr.ErrTypeMismatch, value.Type()))
	}

	return nil, newEvalError(x, fmt.Errorf("invalid unary operator %s", x.Op))
}

func (e evaluator) evalBinary(x *expr.BinaryExpr, lhs, rhs ColumnVector, rows int64) (ColumnVector, error) {
	switch {
	case x.Op.IsComparison():
		return e.evalComparison(x, lhs, rhs, rows)
	case x.Op.IsLogical():
		return e.evalLogical(x, lhs, rhs, rows)
	case x.Op.IsArithmetic():
		return e.evalArithmetic(x, lhs, rhs, rows)
	}
	return nil, newEvalError(x, fmt.Errorf("invalid binary operator %s", x.Op))
}

// evalComparison compares two vectors row by row. A comparison involving
// NULL yields NULL.
func (e evaluator) evalComparison(x *expr.BinaryExpr, lhs, rhs ColumnVector, rows int64) (ColumnVector, error) {
	cmp, err := rowComparer(lhs, rhs)
	if err != nil {
		return nil, newEvalError(x, err)
	}

	builder := array.NewBooleanBuilder(e.alloc)
	defer builder.Release()
	for i := range int(rows) {
		c, ok := cmp(i)
		if !ok {
			builder.AppendNull()
			continue
		}
		builder.Append(matchComparison(x.Op, c))
	}
	return newOwnedArray(builder.NewArray(), types.Bool), nil
}

func matchComparison(op types.BinaryOp, c int) bool {
	switch op {
	case types.BinaryOpEq:
		return c == 0
	case types.BinaryOpNeq:
		return c != 0
	case types.BinaryOpGt:
		return c > 0
	case types.BinaryOpGte:
		return c >= 0
	case types.BinaryOpLt:
		return c < 0
	case types.BinaryOpLte:
		return c <= 0
	}
	panic(fmt.Sprintf("not a comparison operator: %s", op))
}

// rowComparer builds a three-way row comparison over two vectors of
// compatible types. Rows where either side is NULL report no value.
func rowComparer(lhs, rhs ColumnVector) (func(int) (int, bool), error) {
	lt, rt := lhs.Type().ID(), rhs.Type().ID()

	if lt == types.TypeNull || rt == types.TypeNull {
		return func(int) (int, bool) { return 0, false }, nil
	}

	if lt == types.TypeInt64 && rt == types.TypeInt64 {
		lv, rv := int64Values(lhs), int64Values(rhs)
		return func(i int) (int, bool) {
			l, lok := lv(i)
			r, rok := rv(i)
			if !lok || !rok {
				return 0, false
			}
			return compareInt64(l, r), true
		}, nil
	}

	if types.IsNumeric(lhs.Type()) && types.IsNumeric(rhs.Type()) {
		lv, rv := numericValues(lhs), numericValues(rhs)
		return func(i int) (int, bool) {
			l, lok := lv(i)
			r, rok := rv(i)
			if !lok || !rok {
				return 0, false
			}
			return compareFloat64(l, r), true
		}, nil
	}

	if lt != rt {
		return nil, fmt.Errorf("%w: cannot compare %s with %s", expr.ErrTypeMismatch, lhs.Type(), rhs.Type())
	}

	switch lt {
	case types.TypeString:
		lv, rv := stringValues(lhs), stringValues(rhs)
		return func(i int) (int, bool) {
			l, lok := lv(i)
			r, rok := rv(i)
			if !lok || !rok {
				return 0, false
			}
			return strings.Compare(l, r), true
		}, nil
	case types.TypeBool:
		lv, rv := boolValues(lhs), boolValues(rhs)
		return func(i int) (int, bool) {
			l, lok := lv(i)
			r, rok := rv(i)
			if !lok || !rok {
				return 0, false
			}
			return compareBool(l, r), true
		}, nil
	case types.TypeTimestamp:
		lv, rv := timestampValues(lhs), timestampValues(rhs)
		return func(i int) (int, bool) {
			l, lok := lv(i)
			r, rok := rv(i)
			if !lok || !rok {
				return 0, false
			}
			return compareInt64(l, r), true
		}, nil
	}
	return nil, fmt.Errorf("%w: cannot compare %s values", expr.ErrTypeMismatch, lhs.Type())
}

// evalLogical applies AND or OR with SQL three-valued semantics: a NULL
// operand yields NULL unless the other operand decides the result on its
// own.
func (e evaluator) evalLogical(x *expr.BinaryExpr, lhs, rhs ColumnVector, rows int64) (ColumnVector, error) {
	for _, operand := range []ColumnVector{lhs, rhs} {
		if id := operand.Type().ID(); id != types.TypeBool && id != types.TypeNull {
			return nil, newEvalError(x, fmt.Errorf("%w: %s expects bool operands, got %s", expr.ErrTypeMismatch, x.Op, operand.Type()))
		}
	}
	lv, rv := boolValues(lhs), boolValues(rhs)

	builder := array.NewBooleanBuilder(e.alloc)
	defer builder.Release()
	and := x.Op == types.BinaryOpAnd
	for i := range int(rows) {
		l, lok := lv(i)
		r, rok := rv(i)
		switch {
		case and && ((lok && !l) || (rok && !r)):
			builder.Append(false)
		case !and && ((lok && l) || (rok && r)):
			builder.Append(true)
		case lok && rok:
			builder.Append(and)
		default:
			builder.AppendNull()
		}
	}
	return newOwnedArray(builder.NewArray(), types.Bool), nil
}

// evalArithmetic applies an arithmetic operator with numeric promotion:
// two Int64 operands produce an Int64, any Float64 operand promotes the
// result to Float64. NULL operands propagate; zero divisors follow the
// configured [ZeroDivision] policy.
func (e evaluator) evalArithmetic(x *expr.BinaryExpr, lhs, rhs ColumnVector, rows int64) (ColumnVector, error) {
	if !types.IsNumeric(lhs.Type()) || !types.IsNumeric(rhs.Type()) {
		return nil, newEvalError(x, fmt.Errorf("%w: %s expects numeric operands, got %s and %s", expr.ErrTypeMismatch, x.Op, lhs.Type(), rhs.Type()))
	}

	if lhs.Type().ID() == types.TypeInt64 && rhs.Type().ID() == types.TypeInt64 {
		lv, rv := int64Values(lhs), int64Values(rhs)
		builder := array.NewInt64Builder(e.alloc)
		defer builder.Release()
		for i := range int(rows) {
			l, lok := lv(i)
			r, rok := rv(i)
			if !lok || !rok {
				builder.AppendNull()
				continue
			}
			switch x.Op {
			case types.BinaryOpAdd:
				builder.Append(l + r)
			case types.BinaryOpSub:
				builder.Append(l - r)
			case types.BinaryOpMul:
				builder.Append(l * r)
			case types.BinaryOpDiv, types.BinaryOpMod:
				if r == 0 {
					if e.zeroDivision == ZeroDivisionError {
						return nil, newEvalError(x, ErrDivisionByZero)
					}
					builder.AppendNull()
					continue
				}
				if x.Op == types.BinaryOpDiv {
					builder.Append(l / r)
				} else {
					builder.Append(l % r)
				}
			default:
				return nil, newEvalError(x, fmt.Errorf("invalid arithmetic operator %s", x.Op))
			}
		}
		return newOwnedArray(builder.NewArray(), types.Int64), nil
	}

	lv, rv := numericValues(lhs), numericValues(rhs)
	builder := array.NewFloat64Builder(e.alloc)
	defer builder.Release()
	for i := range int(rows) {
		l, lok := lv(i)
		r, rok := rv(i)
		if !lok || !rok {
			builder.AppendNull()
			continue
		}
		switch x.Op {
		case types.BinaryOpAdd:
			builder.Append(l + r)
		case types.BinaryOpSub:
			builder.Append(l - r)
		case types.BinaryOpMul:
			builder.Append(l * r)
		case types.BinaryOpDiv, types.BinaryOpMod:
			if r == 0 {
				if e.zeroDivision == ZeroDivisionError {
					return nil, newEvalError(x, ErrDivisionByZero)
				}
				builder.AppendNull()
				continue
			}
			if x.Op == types.BinaryOpDiv {
				builder.Append(l / r)
			} else {
				builder.Append(math.Mod(l, r))
			}
		default:
			return nil, newEvalError(x, fmt.Errorf("invalid arithmetic operator %s", x.Op))
		}
	}
	return newOwnedArray(builder.NewArray(), types.Float64), nil
}

// evalCast converts a vector to the target type. String parsing happens
// per row; rows that fail to parse become NULL, which is why bound casts
// from strings are nullable.
func (e evaluator) evalCast(x *expr.CastExpr, value ColumnVector) (ColumnVector, error) {
	from, to := value.Type(), x.To
	rows := value.Len()

	if from.Equal(to) || from.ID() == types.TypeNull {
		if from.ID() == types.TypeNull && to.ID() != types.TypeNull {
			return allNulls(e.alloc, to, rows), nil
		}
		arr := value.ToArray()
		arr.Retain()
		return newOwnedArray(arr, to), nil
	}

	switch to.ID() {
	case types.TypeInt64:
		builder := array.NewInt64Builder(e.alloc)
		defer builder.Release()
		switch from.ID() {
		case types.TypeFloat64:
			vals := float64Values(value)
			for i := range int(rows) {
				if val, ok := vals(i); ok {
					builder.Append(int64(val))
				} else {
					builder.AppendNull()
				}
			}
		case types.TypeString:
			vals := stringValues(value)
			for i := range int(rows) {
				val, ok := vals(i)
				if !ok {
					builder.AppendNull()
					continue
				}
				parsed, err := strconv.ParseInt(val, 10, 64)
				if err != nil {
					builder.AppendNull()
					continue
				}
				builder.Append(parsed)
			}
		case types.TypeTimestamp:
			vals := timestampValues(value)
			for i := range int(rows) {
				if val, ok := vals(i); ok {
					builder.Append(val)
				} else {
					builder.AppendNull()
				}
			}
		default:
			return nil, newEvalError(x, fmt.Errorf("%w: cannot cast %s to %s", expr.ErrTypeMismatch, from, to))
		}
		return newOwnedArray(builder.NewArray(), types.Int64), nil

	case types.TypeFloat64:
		builder := array.NewFloat64Builder(e.alloc)
		defer builder.Release()
		switch from.ID() {
		case types.TypeInt64:
			vals := int64Values(value)
			for i := range int(rows) {
				if val, ok := vals(i); ok {
					builder.Append(float64(val))
				} else {
					builder.AppendNull()
				}
			}
		case types.TypeString:
			vals := stringValues(value)
			for i := range int(rows) {
				val, ok := vals(i)
				if !ok {
					builder.AppendNull()
					continue
				}
				parsed, err := strconv.ParseFloat(val, 64)
				if err != nil {
					builder.AppendNull()
					continue
				}
				builder.Append(parsed)
			}
		default:
			return nil, newEvalError(x, fmt.Errorf("%w: cannot cast %s to %s", expr.ErrTypeMismatch, from, to))
		}
		return newOwnedArray(builder.NewArray(), types.Float64), nil

	case types.TypeString:
		builder := array.NewStringBuilder(e.alloc)
		defer builder.Release()
		for i := range int(rows) {
			val := value.Value(i)
			if val == nil {
				builder.AppendNull()
				continue
			}
			builder.Append(formatValue(val))
		}
		return newOwnedArray(builder.NewArray(), types.String), nil

	case types.TypeTimestamp:
		if from.ID() != types.TypeInt64 {
			return nil, newEvalError(x, fmt.Errorf("%w: cannot cast %s to %s", expr.ErrTypeMismatch, from, to))
		}
		builder := array.NewTimestampBuilder(e.alloc, to.ArrowType().(*arrow.TimestampType))
		defer builder.Release()
		vals := int64Values(value)
		for i := range int(rows) {
			if val, ok := vals(i); ok {
				builder.Append(arrow.Timestamp(val))
			} else {
				builder.AppendNull()
			}
		}
		return newOwnedArray(builder.NewArray(), types.Timestamp), nil
	}

	return nil, newEvalError(x, fmt.Errorf("%w: cannot cast %s to %s", expr.ErrTypeMismatch, from, to))
}

// formatValue renders a non-nil Go value for a cast to string.
func formatValue(v any) string {
	switch val := v.(type) {
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return val
	case arrow.Timestamp:
		return val.ToTime(arrow.Nanosecond).UTC().Format("2006-01-02T15:04:05.999999999Z07:00")
	default:
		return fmt.Sprintf("%v", val)
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareFloat64 orders NaN after every other value so sorting with NaNs
// stays total.
func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	case math.IsNaN(a) && math.IsNaN(b):
		return 0
	case math.IsNaN(a):
		return 1
	default:
		return -1
	}
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case b:
		return -1
	default:
		return 1
	}
}
