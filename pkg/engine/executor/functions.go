package executor

import (
	"fmt"
	"math"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/types"
)

// scalarKernel evaluates a built-in scalar function over resolved argument
// vectors. Kernels may assume the call passed binding but still validate
// argument types so unbound expressions fail cleanly.
type scalarKernel func(e evaluator, call *expr.FuncExpr, args []ColumnVector, rows int64) (ColumnVector, error)

// scalarKernels holds the evaluation kernels for the functions registered
// in the expr package.
var scalarKernels = map[string]scalarKernel{
	"abs":      absKernel,
	"length":   lengthKernel,
	"upper":    upperKernel,
	"lower":    lowerKernel,
	"coalesce": coalesceKernel,
}

func absKernel(e evaluator, call *expr.FuncExpr, args []ColumnVector, rows int64) (ColumnVector, error) {
	if len(args) != 1 || !types.IsNumeric(args[0].Type()) {
		return nil, newEvalError(call, fmt.Errorf("%w: abs expects one numeric argument", expr.ErrTypeMismatch))
	}
	arg := args[0]

	if arg.Type().ID() == types.TypeInt64 {
		vals := int64Values(arg)
		builder := array.NewInt64Builder(e.alloc)
		defer builder.Release()
		for i := range int(rows) {
			val, ok := vals(i)
			if !ok {
				builder.AppendNull()
				continue
			}
			if val < 0 {
				val = -val
			}
			builder.Append(val)
		}
		return newOwnedArray(builder.NewArray(), types.Int64), nil
	}

	vals := float64Values(arg)
	builder := array.NewFloat64Builder(e.alloc)
	defer builder.Release()
	for i := range int(rows) {
		if val, ok := vals(i); ok {
			builder.Append(math.Abs(val))
		} else {
			builder.AppendNull()
		}
	}
	return newOwnedArray(builder.NewArray(), types.Float64), nil
}

func lengthKernel(e evaluator, call *expr.FuncExpr, args []ColumnVector, rows int64) (ColumnVector, error) {
	if len(args) != 1 || args[0].Type().ID() != types.TypeString {
		return nil, newEvalError(call, fmt.Errorf("%w: length expects one string argument", expr.ErrTypeMismatch))
	}
	vals := stringValues(args[0])
	builder := array.NewInt64Builder(e.alloc)
	defer builder.Release()
	for i := range int(rows) {
		if val, ok := vals(i); ok {
			builder.Append(int64(len(val)))
		} else {
			builder.AppendNull()
		}
	}
	return newOwnedArray(builder.NewArray(), types.Int64), nil
}

func upperKernel(e evaluator, call *expr.FuncExpr, args []ColumnVector, rows int64) (ColumnVector, error) {
	return mapStringKernel(e, call, args, rows, strings.ToUpper)
}

func lowerKernel(e evaluator, call *expr.FuncExpr, args []ColumnVector, rows int64) (ColumnVector, error) {
	return mapStringKernel(e, call, args, rows, strings.ToLower)
}

func mapStringKernel(e evaluator, call *expr.FuncExpr, args []ColumnVector, rows int64, fn func(string) string) (ColumnVector, error) {
	if len(args) != 1 || args[0].Type().ID() != types.TypeString {
		return nil, newEvalError(call, fmt.Errorf("%w: %s expects one string argument", expr.ErrTypeMismatch, call.Name))
	}
	vals := stringValues(args[0])
	builder := array.NewStringBuilder(e.alloc)
	defer builder.Release()
	for i := range int(rows) {
		if val, ok := vals(i); ok {
			builder.Append(fn(val))
		} else {
			builder.AppendNull()
		}
	}
	return newOwnedArray(builder.NewArray(), types.String), nil
}

// coalesceKernel returns the first non-NULL argument per row. Arguments
// promote to a common type the same way binding does.
func coalesceKernel(e evaluator, call *expr.FuncExpr, args []ColumnVector, rows int64) (ColumnVector, error) {
	if len(args) == 0 {
		return nil, newEvalError(call, fmt.Errorf("%w: coalesce expects at least one argument", expr.ErrTypeMismatch))
	}

	common := args[0].Type()
	for _, arg := range args[1:] {
		promoted, err := types.Promote(common, arg.Type())
		if err != nil {
			return nil, newEvalError(call, fmt.Errorf("%w: coalesce arguments are incompatible: %s", expr.ErrTypeMismatch, err))
		}
		common = promoted
	}
	if common.ID() == types.TypeNull {
		return allNulls(e.alloc, types.Null, rows), nil
	}

	switch common.ID() {
	case types.TypeBool:
		vals := make([]func(int) (bool, bool), len(args))
		for i, arg := range args {
			vals[i] = boolValues(arg)
		}
		builder := array.NewBooleanBuilder(e.alloc)
		defer builder.Release()
		appendFirst(builder, vals, int(rows), builder.Append)
		return newOwnedArray(builder.NewArray(), common), nil

	case types.TypeInt64:
		vals := make([]func(int) (int64, bool), len(args))
		for i, arg := range args {
			vals[i] = int64Values(arg)
		}
		builder := array.NewInt64Builder(e.alloc)
		defer builder.Release()
		appendFirst(builder, vals, int(rows), builder.Append)
		return newOwnedArray(builder.NewArray(), common), nil

	case types.TypeFloat64:
		vals := make([]func(int) (float64, bool), len(args))
		for i, arg := range args {
			vals[i] = numericValues(arg)
		}
		builder := array.NewFloat64Builder(e.alloc)
		defer builder.Release()
		appendFirst(builder, vals, int(rows), builder.Append)
		return newOwnedArray(builder.NewArray(), common), nil

	case types.TypeString:
		vals := make([]func(int) (string, bool), len(args))
		for i, arg := range args {
			vals[i] = stringValues(arg)
		}
		builder := array.NewStringBuilder(e.alloc)
		defer builder.Release()
		appendFirst(builder, vals, int(rows), builder.Append)
		return newOwnedArray(builder.NewArray(), common), nil

	case types.TypeTimestamp:
		vals := make([]func(int) (int64, bool), len(args))
		for i, arg := range args {
			vals[i] = timestampValues(arg)
		}
		builder := array.NewTimestampBuilder(e.alloc, common.ArrowType().(*arrow.TimestampType))
		defer builder.Release()
		appendFirst(builder, vals, int(rows), func(ns int64) {
			builder.Append(arrow.Timestamp(ns))
		})
		return newOwnedArray(builder.NewArray(), common), nil
	}

	return nil, newEvalError(call, fmt.Errorf("%w: coalesce does not support %s arguments", expr.ErrTypeMismatch, common))
}

// appendFirst appends, per row, the first argument that reports a value,
// or NULL when every argument is NULL for that row.
func appendFirst[T any](builder array.Builder, vals []func(int) (T, bool), rows int, appendVal func(T)) {
	for i := range rows {
		found := false
		for _, get := range vals {
			if val, ok := get(i); ok {
				appendVal(val)
				found = true
				break
			}
		}
		if !found {
			builder.AppendNull()
		}
	}
}
