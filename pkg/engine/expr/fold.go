package expr

import (
	"math"
	"strings"

	"github.com/floedb/floe/pkg/engine/types"
)

// FoldUnary evaluates a unary operator over a literal operand. It reports
// false when the combination cannot be folded.
func FoldUnary(op types.UnaryOp, v types.Literal) (types.Literal, bool) {
	switch op {
	case types.UnaryOpIsNull:
		return types.BoolLiteral(v.IsNull()), true
	case types.UnaryOpIsNotNull:
		return types.BoolLiteral(!v.IsNull()), true
	}

	if v.IsNull() {
		return types.NullLiteral(), true
	}

	switch op {
	case types.UnaryOpNot:
		if v.DataType().ID() == types.TypeBool {
			return types.BoolLiteral(!v.Bool()), true
		}
	case types.UnaryOpNeg:
		switch v.DataType().ID() {
		case types.TypeInt64:
			return types.IntLiteral(-v.Int()), true
		case types.TypeFloat64:
			return types.FloatLiteral(-v.Float()), true
		}
	}
	return types.Literal{}, false
}

// FoldBinary evaluates a binary operator over two literal operands following
// SQL NULL semantics. It reports false when the combination cannot be folded,
// in particular for integer division or modulo by zero, which is left to the
// runtime division policy.
func FoldBinary(op types.BinaryOp, left, right types.Literal) (types.Literal, bool) {
	if op.IsLogical() {
		return foldLogical(op, left, right)
	}
	if left.IsNull() || right.IsNull() {
		return types.NullLiteral(), true
	}
	if op.IsComparison() {
		return foldComparison(op, left, right)
	}
	return foldArithmetic(op, left, right)
}

func foldLogical(op types.BinaryOp, left, right types.Literal) (types.Literal, bool) {
	lv, lknown, ok := boolOperand(left)
	if !ok {
		return types.Literal{}, false
	}
	rv, rknown, ok := boolOperand(right)
	if !ok {
		return types.Literal{}, false
	}

	switch op {
	case types.BinaryOpAnd:
		if (lknown && !lv) || (rknown && !rv) {
			return types.BoolLiteral(false), true
		}
		if lknown && rknown {
			return types.BoolLiteral(lv && rv), true
		}
		return types.NullLiteral(), true
	case types.BinaryOpOr:
		if (lknown && lv) || (rknown && rv) {
			return types.BoolLiteral(true), true
		}
		if lknown && rknown {
			return types.BoolLiteral(lv || rv), true
		}
		return types.NullLiteral(), true
	}
	return types.Literal{}, false
}

// boolOperand extracts the boolean value of a literal for three-valued
// logic: NULL operands are legal but unknown.
func boolOperand(l types.Literal) (value, known, ok bool) {
	if l.IsNull() {
		return false, false, true
	}
	if l.DataType().ID() != types.TypeBool {
		return false, false, false
	}
	return l.Bool(), true, true
}

func foldComparison(op types.BinaryOp, left, right types.Literal) (types.Literal, bool) {
	cmp, ok := compareLiterals(left, right)
	if !ok {
		return types.Literal{}, false
	}
	switch op {
	case types.BinaryOpEq:
		return types.BoolLiteral(cmp == 0), true
	case types.BinaryOpNeq:
		return types.BoolLiteral(cmp != 0), true
	case types.BinaryOpGt:
		return types.BoolLiteral(cmp > 0), true
	case types.BinaryOpGte:
		return types.BoolLiteral(cmp >= 0), true
	case types.BinaryOpLt:
		return types.BoolLiteral(cmp < 0), true
	case types.BinaryOpLte:
		return types.BoolLiteral(cmp <= 0), true
	}
	return types.Literal{}, false
}

func compareLiterals(left, right types.Literal) (int, bool) {
	lid, rid := left.DataType().ID(), right.DataType().ID()
	switch {
	case lid == types.TypeInt64 && rid == types.TypeInt64:
		return compareOrdered(left.Int(), right.Int()), true
	case types.IsNumeric(left.DataType()) && types.IsNumeric(right.DataType()):
		lf, _ := left.AsFloat()
		rf, _ := right.AsFloat()
		return compareOrdered(lf, rf), true
	case lid == types.TypeString && rid == types.TypeString:
		return strings.Compare(left.Str(), right.Str()), true
	case lid == types.TypeBool && rid == types.TypeBool:
		lv, rv := 0, 0
		if left.Bool() {
			lv = 1
		}
		if right.Bool() {
			rv = 1
		}
		return compareOrdered(lv, rv), true
	case lid == types.TypeTimestamp && rid == types.TypeTimestamp:
		return left.Time().Compare(right.Time()), true
	default:
		return 0, false
	}
}

func compareOrdered[T int | int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func foldArithmetic(op types.BinaryOp, left, right types.Literal) (types.Literal, bool) {
	lid, rid := left.DataType().ID(), right.DataType().ID()

	if lid == types.TypeInt64 && rid == types.TypeInt64 {
		a, b := left.Int(), right.Int()
		switch op {
		case types.BinaryOpAdd:
			return types.IntLiteral(a + b), true
		case types.BinaryOpSub:
			return types.IntLiteral(a - b), true
		case types.BinaryOpMul:
			return types.IntLiteral(a * b), true
		case types.BinaryOpDiv:
			if b == 0 {
				return types.Literal{}, false
			}
			return types.IntLiteral(a / b), true
		case types.BinaryOpMod:
			if b == 0 {
				return types.Literal{}, false
			}
			return types.IntLiteral(a % b), true
		}
		return types.Literal{}, false
	}

	if !types.IsNumeric(left.DataType()) || !types.IsNumeric(right.DataType()) {
		return types.Literal{}, false
	}
	a, _ := left.AsFloat()
	b, _ := right.AsFloat()
	switch op {
	case types.BinaryOpAdd:
		return types.FloatLiteral(a + b), true
	case types.BinaryOpSub:
		return types.FloatLiteral(a - b), true
	case types.BinaryOpMul:
		return types.FloatLiteral(a * b), true
	case types.BinaryOpDiv:
		return types.FloatLiteral(a / b), true
	case types.BinaryOpMod:
		return types.FloatLiteral(math.Mod(a, b)), true
	}
	return types.Literal{}, false
}
