// Package expr defines the typed expression IR evaluated against record
// batches. Expressions are immutable trees; rewrites rebuild nodes through
// WithChildren. Binding an expression to an input schema with ToField
// resolves its output column or fails with a [TypeError].
package expr

import (
	"fmt"
	"strings"

	"github.com/floedb/floe/pkg/engine/schema"
	"github.com/floedb/floe/pkg/engine/types"
)

// Expr is a node of an expression tree.
type Expr interface {
	fmt.Stringer

	// Children returns the operand expressions.
	Children() []Expr
	// WithChildren rebuilds the expression with new operands.
	WithChildren(children []Expr) (Expr, error)
	// ToField resolves the output column of the expression against the
	// input schema.
	ToField(input *schema.Schema) (schema.Column, error)

	isExpr()
}

// ColumnExpr references an input column by name.
type ColumnExpr struct {
	Name string
}

// Col returns a reference to the named column.
func Col(name string) *ColumnExpr { return &ColumnExpr{Name: name} }

func (*ColumnExpr) isExpr()          {}
func (e *ColumnExpr) String() string { return e.Name }

func (e *ColumnExpr) Children() []Expr { return nil }

func (e *ColumnExpr) WithChildren(children []Expr) (Expr, error) {
	if len(children) != 0 {
		return nil, fmt.Errorf("ColumnExpr expects no children, got %d", len(children))
	}
	return e, nil
}

func (e *ColumnExpr) ToField(input *schema.Schema) (schema.Column, error) {
	col, _, ok := input.Lookup(e.Name)
	if !ok {
		return schema.Column{}, newTypeError(e, fmt.Errorf("%w %q", ErrUnknownColumn, e.Name))
	}
	return col, nil
}

// LiteralExpr holds a typed constant.
type LiteralExpr struct {
	Value types.Literal
}

// Lit returns a literal expression for a Go value. See [types.NewLiteral]
// for the accepted values.
func Lit(v any) *LiteralExpr { return &LiteralExpr{Value: types.NewLiteral(v)} }

// NewLiteral returns a literal expression for an existing literal value.
func NewLiteral(l types.Literal) *LiteralExpr { return &LiteralExpr{Value: l} }

func (*LiteralExpr) isExpr()          {}
func (e *LiteralExpr) String() string { return e.Value.String() }

func (e *LiteralExpr) Children() []Expr { return nil }

func (e *LiteralExpr) WithChildren(children []Expr) (Expr, error) {
	if len(children) != 0 {
		return nil, fmt.Errorf("LiteralExpr expects no children, got %d", len(children))
	}
	return e, nil
}

func (e *LiteralExpr) ToField(*schema.Schema) (schema.Column, error) {
	return schema.Column{
		Name:     e.String(),
		Type:     e.Value.DataType(),
		Nullable: e.Value.IsNull(),
	}, nil
}

// UnaryExpr applies an operator to a single operand.
type UnaryExpr struct {
	Op    types.UnaryOp
	Value Expr
}

func newUnary(op types.UnaryOp, value Expr) *UnaryExpr {
	return &UnaryExpr{Op: op, Value: value}
}

// Not negates a boolean expression.
func Not(value Expr) *UnaryExpr { return newUnary(types.UnaryOpNot, value) }

// Neg negates a numeric expression.
func Neg(value Expr) *UnaryExpr { return newUnary(types.UnaryOpNeg, value) }

// IsNull tests an expression for NULL.
func IsNull(value Expr) *UnaryExpr { return newUnary(types.UnaryOpIsNull, value) }

// IsNotNull tests an expression for non-NULL.
func IsNotNull(value Expr) *UnaryExpr { return newUnary(types.UnaryOpIsNotNull, value) }

func (*UnaryExpr) isExpr() {}

func (e *UnaryExpr) String() string {
	return fmt.Sprintf("%s(%s)", e.Op, e.Value)
}

func (e *UnaryExpr) Children() []Expr { return []Expr{e.Value} }

func (e *UnaryExpr) WithChildren(children []Expr) (Expr, error) {
	if len(children) != 1 {
		return nil, fmt.Errorf("UnaryExpr expects 1 child, got %d", len(children))
	}
	return newUnary(e.Op, children[0]), nil
}

func (e *UnaryExpr) ToField(input *schema.Schema) (schema.Column, error) {
	value, err := e.Value.ToField(input)
	if err != nil {
		return schema.Column{}, err
	}

	switch e.Op {
	case types.UnaryOpNot:
		if value.Type.ID() != types.TypeBool {
			return schema.Column{}, newTypeError(e, fmt.Errorf("%w: NOT expects bool, got %s", ErrTypeMismatch, value.Type))
		}
		return schema.Column{Name: e.String(), Type: types.Bool, Nullable: value.Nullable}, nil
	case types.UnaryOpNeg:
		if !types.IsNumeric(value.Type) {
			return schema.Column{}, newTypeError(e, fmt.Errorf("%w: NEG expects a numeric operand, got %s", ErrTypeMismatch, value.Type))
		}
		return schema.Column{Name: e.String(), Type: value.Type, Nullable: value.Nullable}, nil
	case types.UnaryOpIsNull, types.UnaryOpIsNotNull:
		return schema.Column{Name: e.String(), Type: types.Bool}, nil
	default:
		return schema.Column{}, newTypeError(e, fmt.Errorf("invalid unary operator %s", e.Op))
	}
}

// BinaryExpr applies an operator to two operands.
type BinaryExpr struct {
	Op    types.BinaryOp
	Left  Expr
	Right Expr
}

func newBinary(op types.BinaryOp, left, right Expr) *BinaryExpr {
	return &BinaryExpr{Op: op, Left: left, Right: right}
}

// Comparison constructors.
func Eq(left, right Expr) *BinaryExpr  { return newBinary(types.BinaryOpEq, left, right) }
func Neq(left, right Expr) *BinaryExpr { return newBinary(types.BinaryOpNeq, left, right) }
func Gt(left, right Expr) *BinaryExpr  { return newBinary(types.BinaryOpGt, left, right) }
func Gte(left, right Expr) *BinaryExpr { return newBinary(types.BinaryOpGte, left, right) }
func Lt(left, right Expr) *BinaryExpr  { return newBinary(types.BinaryOpLt, left, right) }
func Lte(left, right Expr) *BinaryExpr { return newBinary(types.BinaryOpLte, left, right) }

// Logical constructors.
func And(left, right Expr) *BinaryExpr { return newBinary(types.BinaryOpAnd, left, right) }
func Or(left, right Expr) *BinaryExpr  { return newBinary(types.BinaryOpOr, left, right) }

// Arithmetic constructors.
func Add(left, right Expr) *BinaryExpr { return newBinary(types.BinaryOpAdd, left, right) }
func Sub(left, right Expr) *BinaryExpr { return newBinary(types.BinaryOpSub, left, right) }
func Mul(left, right Expr) *BinaryExpr { return newBinary(types.BinaryOpMul, left, right) }
func Div(left, right Expr) *BinaryExpr { return newBinary(types.BinaryOpDiv, left, right) }
func Mod(left, right Expr) *BinaryExpr { return newBinary(types.BinaryOpMod, left, right) }

func (*BinaryExpr) isExpr() {}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("%s(%s, %s)", e.Op, e.Left, e.Right)
}

func (e *BinaryExpr) Children() []Expr { return []Expr{e.Left, e.Right} }

func (e *BinaryExpr) WithChildren(children []Expr) (Expr, error) {
	if len(children) != 2 {
		return nil, fmt.Errorf("BinaryExpr expects 2 children, got %d", len(children))
	}
	return newBinary(e.Op, children[0], children[1]), nil
}

func (e *BinaryExpr) ToField(input *schema.Schema) (schema.Column, error) {
	left, err := e.Left.ToField(input)
	if err != nil {
		return schema.Column{}, err
	}
	right, err := e.Right.ToField(input)
	if err != nil {
		return schema.Column{}, err
	}
	nullable := left.Nullable || right.Nullable

	switch {
	case e.Op.IsComparison():
		if _, err := types.Promote(left.Type, right.Type); err != nil {
			return schema.Column{}, newTypeError(e, fmt.Errorf("%w: cannot compare %s with %s", ErrTypeMismatch, left.Type, right.Type))
		}
		return schema.Column{Name: e.String(), Type: types.Bool, Nullable: nullable}, nil

	case e.Op.IsLogical():
		if left.Type.ID() != types.TypeBool || right.Type.ID() != types.TypeBool {
			return schema.Column{}, newTypeError(e, fmt.Errorf("%w: %s expects bool operands, got %s and %s", ErrTypeMismatch, e.Op, left.Type, right.Type))
		}
		return schema.Column{Name: e.String(), Type: types.Bool, Nullable: nullable}, nil

	case e.Op.IsArithmetic():
		if !types.IsNumeric(left.Type) || !types.IsNumeric(right.Type) {
			return schema.Column{}, newTypeError(e, fmt.Errorf("%w: %s expects numeric operands, got %s and %s", ErrTypeMismatch, e.Op, left.Type, right.Type))
		}
		promoted, err := types.Promote(left.Type, right.Type)
		if err != nil {
			return schema.Column{}, newTypeError(e, err)
		}
		return schema.Column{Name: e.String(), Type: promoted, Nullable: nullable}, nil

	default:
		return schema.Column{}, newTypeError(e, fmt.Errorf("invalid binary operator %s", e.Op))
	}
}

// FuncExpr calls a named scalar function.
type FuncExpr struct {
	Name string
	Args []Expr
}

// Call builds a scalar function call. The function name is resolved at bind
// time against the built-in registry.
func Call(name string, args ...Expr) *FuncExpr {
	return &FuncExpr{Name: name, Args: args}
}

func (*FuncExpr) isExpr() {}

func (e *FuncExpr) String() string {
	args := make([]string, len(e.Args))
	for i, arg := range e.Args {
		args[i] = arg.String()
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(args, ", "))
}

func (e *FuncExpr) Children() []Expr { return e.Args }

func (e *FuncExpr) WithChildren(children []Expr) (Expr, error) {
	if len(children) != len(e.Args) {
		return nil, fmt.Errorf("FuncExpr %s expects %d children, got %d", e.Name, len(e.Args), len(children))
	}
	return &FuncExpr{Name: e.Name, Args: children}, nil
}

func (e *FuncExpr) ToField(input *schema.Schema) (schema.Column, error) {
	args := make([]schema.Column, len(e.Args))
	for i, arg := range e.Args {
		field, err := arg.ToField(input)
		if err != nil {
			return schema.Column{}, err
		}
		args[i] = field
	}
	return resolveFunc(e, args)
}

// AggExpr is an aggregate function applied over the rows of a group. An
// aggregate expression can only appear in the aggregations of an Aggregate
// plan node, never in row-level contexts.
type AggExpr struct {
	Op types.AggregateOp
	// Value is the aggregated expression. It is nil for COUNT(*).
	Value Expr
}

// Sum aggregates the sum of a numeric expression.
func Sum(value Expr) *AggExpr { return &AggExpr{Op: types.AggregateOpSum, Value: value} }

// Count aggregates the number of non-NULL values of an expression.
func Count(value Expr) *AggExpr { return &AggExpr{Op: types.AggregateOpCount, Value: value} }

// CountAll aggregates the number of rows in the group.
func CountAll() *AggExpr { return &AggExpr{Op: types.AggregateOpCount} }

// Min aggregates the minimum value of an expression.
func Min(value Expr) *AggExpr { return &AggExpr{Op: types.AggregateOpMin, Value: value} }

// Max aggregates the maximum value of an expression.
func Max(value Expr) *AggExpr { return &AggExpr{Op: types.AggregateOpMax, Value: value} }

// Avg aggregates the arithmetic mean of a numeric expression.
func Avg(value Expr) *AggExpr { return &AggExpr{Op: types.AggregateOpAvg, Value: value} }

func (*AggExpr) isExpr() {}

func (e *AggExpr) String() string {
	if e.Value == nil {
		return fmt.Sprintf("%s(*)", strings.ToLower(e.Op.String()))
	}
	return fmt.Sprintf("%s(%s)", strings.ToLower(e.Op.String()), e.Value)
}

func (e *AggExpr) Children() []Expr {
	if e.Value == nil {
		return nil
	}
	return []Expr{e.Value}
}

func (e *AggExpr) WithChildren(children []Expr) (Expr, error) {
	if len(children) != len(e.Children()) {
		return nil, fmt.Errorf("AggExpr expects %d children, got %d", len(e.Children()), len(children))
	}
	if len(children) == 0 {
		return e, nil
	}
	return &AggExpr{Op: e.Op, Value: children[0]}, nil
}

func (e *AggExpr) ToField(input *schema.Schema) (schema.Column, error) {
	if e.Value == nil {
		if e.Op != types.AggregateOpCount {
			return schema.Column{}, newTypeError(e, fmt.Errorf("%s requires an operand", e.Op))
		}
		return schema.Column{Name: e.String(), Type: types.Int64}, nil
	}

	value, err := e.Value.ToField(input)
	if err != nil {
		return schema.Column{}, err
	}

	switch e.Op {
	case types.AggregateOpCount:
		return schema.Column{Name: e.String(), Type: types.Int64}, nil
	case types.AggregateOpSum, types.AggregateOpAvg:
		if !types.IsNumeric(value.Type) {
			return schema.Column{}, newTypeError(e, fmt.Errorf("%w: %s expects a numeric operand, got %s", ErrTypeMismatch, e.Op, value.Type))
		}
		dt := value.Type
		if e.Op == types.AggregateOpAvg {
			dt = types.Float64
		}
		return schema.Column{Name: e.String(), Type: dt, Nullable: true}, nil
	case types.AggregateOpMin, types.AggregateOpMax:
		switch value.Type.ID() {
		case types.TypeInt64, types.TypeFloat64, types.TypeString, types.TypeTimestamp:
			return schema.Column{Name: e.String(), Type: value.Type, Nullable: true}, nil
		default:
			return schema.Column{}, newTypeError(e, fmt.Errorf("%w: %s does not support %s operands", ErrTypeMismatch, e.Op, value.Type))
		}
	default:
		return schema.Column{}, newTypeError(e, fmt.Errorf("invalid aggregate operator %s", e.Op))
	}
}

// CastExpr converts an expression to a target type.
type CastExpr struct {
	Value Expr
	To    types.DataType
}

// Cast converts value to the target type. Numeric conversions and
// conversions between strings and numerics are supported; string parsing
// happens at evaluation time.
func Cast(value Expr, to types.DataType) *CastExpr {
	return &CastExpr{Value: value, To: to}
}

func (*CastExpr) isExpr() {}

func (e *CastExpr) String() string {
	return fmt.Sprintf("CAST(%s AS %s)", e.Value, e.To)
}

func (e *CastExpr) Children() []Expr { return []Expr{e.Value} }

func (e *CastExpr) WithChildren(children []Expr) (Expr, error) {
	if len(children) != 1 {
		return nil, fmt.Errorf("CastExpr expects 1 child, got %d", len(children))
	}
	return &CastExpr{Value: children[0], To: e.To}, nil
}

func (e *CastExpr) ToField(input *schema.Schema) (schema.Column, error) {
	value, err := e.Value.ToField(input)
	if err != nil {
		return schema.Column{}, err
	}
	if !castable(value.Type, e.To) {
		return schema.Column{}, newTypeError(e, fmt.Errorf("%w: cannot cast %s to %s", ErrTypeMismatch, value.Type, e.To))
	}
	// String parsing can fail per row, making the result nullable in
	// null-propagating evaluation mode.
	nullable := value.Nullable || value.Type.ID() == types.TypeString
	return schema.Column{Name: value.Name, Type: e.To, Nullable: nullable}, nil
}

func castable(from, to types.DataType) bool {
	if from.Equal(to) || from.ID() == types.TypeNull {
		return true
	}
	switch {
	case types.IsNumeric(from) && types.IsNumeric(to):
		return true
	case to.ID() == types.TypeString:
		return from.ID() != types.TypeList
	case from.ID() == types.TypeString && types.IsNumeric(to):
		return true
	case from.ID() == types.TypeTimestamp && to.ID() == types.TypeInt64:
		return true
	case from.ID() == types.TypeInt64 && to.ID() == types.TypeTimestamp:
		return true
	default:
		return false
	}
}

// AliasExpr renames the output column of an expression.
type AliasExpr struct {
	Value Expr
	Name  string
}

// Alias renames the output of an expression.
func Alias(value Expr, name string) *AliasExpr {
	return &AliasExpr{Value: value, Name: name}
}

func (*AliasExpr) isExpr() {}

func (e *AliasExpr) String() string {
	return fmt.Sprintf("%s AS %s", e.Value, e.Name)
}

func (e *AliasExpr) Children() []Expr { return []Expr{e.Value} }

func (e *AliasExpr) WithChildren(children []Expr) (Expr, error) {
	if len(children) != 1 {
		return nil, fmt.Errorf("AliasExpr expects 1 child, got %d", len(children))
	}
	return &AliasExpr{Value: children[0], Name: e.Name}, nil
}

func (e *AliasExpr) ToField(input *schema.Schema) (schema.Column, error) {
	value, err := e.Value.ToField(input)
	if err != nil {
		return schema.Column{}, err
	}
	value.Name = e.Name
	return value, nil
}
