package expr

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/schema"
	"github.com/floedb/floe/pkg/engine/types"
)

// funcSignature type-checks a scalar function call against its resolved
// argument columns.
type funcSignature func(call *FuncExpr, args []schema.Column) (schema.Column, error)

// scalarFuncs is the registry of built-in scalar functions. The executor
// keeps the matching evaluation kernels.
var scalarFuncs = map[string]funcSignature{
	"abs":      absSignature,
	"length":   lengthSignature,
	"upper":    upperLowerSignature,
	"lower":    upperLowerSignature,
	"coalesce": coalesceSignature,
}

func resolveFunc(call *FuncExpr, args []schema.Column) (schema.Column, error) {
	signature, ok := scalarFuncs[call.Name]
	if !ok {
		return schema.Column{}, newTypeError(call, fmt.Errorf("unknown function %q", call.Name))
	}
	return signature(call, args)
}

func absSignature(call *FuncExpr, args []schema.Column) (schema.Column, error) {
	if len(args) != 1 || !types.IsNumeric(args[0].Type) {
		return schema.Column{}, newTypeError(call, fmt.Errorf("%w: abs expects one numeric argument", ErrTypeMismatch))
	}
	return schema.Column{Name: call.String(), Type: args[0].Type, Nullable: args[0].Nullable}, nil
}

func lengthSignature(call *FuncExpr, args []schema.Column) (schema.Column, error) {
	if len(args) != 1 || args[0].Type.ID() != types.TypeString {
		return schema.Column{}, newTypeError(call, fmt.Errorf("%w: length expects one string argument", ErrTypeMismatch))
	}
	return schema.Column{Name: call.String(), Type: types.Int64, Nullable: args[0].Nullable}, nil
}

func upperLowerSignature(call *FuncExpr, args []schema.Column) (schema.Column, error) {
	if len(args) != 1 || args[0].Type.ID() != types.TypeString {
		return schema.Column{}, newTypeError(call, fmt.Errorf("%w: %s expects one string argument", ErrTypeMismatch, call.Name))
	}
	return schema.Column{Name: call.String(), Type: types.String, Nullable: args[0].Nullable}, nil
}

func coalesceSignature(call *FuncExpr, args []schema.Column) (schema.Column, error) {
	if len(args) == 0 {
		return schema.Column{}, newTypeError(call, fmt.Errorf("%w: coalesce expects at least one argument", ErrTypeMismatch))
	}
	common := args[0].Type
	nullable := args[0].Nullable
	for _, arg := range args[1:] {
		promoted, err := types.Promote(common, arg.Type)
		if err != nil {
			return schema.Column{}, newTypeError(call, fmt.Errorf("%w: coalesce arguments are incompatible: %s", ErrTypeMismatch, err))
		}
		common = promoted
		nullable = nullable && arg.Nullable
	}
	return schema.Column{Name: call.String(), Type: common, Nullable: nullable}, nil
}
