package types

import "fmt"

// UnaryOp denotes the kind of unary operation to perform.
type UnaryOp int

// Recognized values of [UnaryOp].
const (
	// UnaryOpInvalid indicates an invalid unary operation.
	UnaryOpInvalid UnaryOp = iota

	UnaryOpNot       // Logical NOT operation (!).
	UnaryOpNeg       // Arithmetic negation (-).
	UnaryOpIsNull    // NULL check.
	UnaryOpIsNotNull // Non-NULL check.
)

var unaryOpStrings = map[UnaryOp]string{
	UnaryOpInvalid: "invalid",

	UnaryOpNot:       "NOT",
	UnaryOpNeg:       "NEG",
	UnaryOpIsNull:    "IS_NULL",
	UnaryOpIsNotNull: "IS_NOT_NULL",
}

// String returns the string representation of the UnaryOp.
func (op UnaryOp) String() string {
	if s, ok := unaryOpStrings[op]; ok {
		return s
	}
	return fmt.Sprintf("UnaryOp(%d)", op)
}

// BinaryOp denotes the kind of binary operation to perform.
type BinaryOp int

// Recognized values of [BinaryOp].
const (
	// BinaryOpInvalid indicates an invalid binary operation.
	BinaryOpInvalid BinaryOp = iota

	BinaryOpEq  // Equality comparison (==).
	BinaryOpNeq // Inequality comparison (!=).
	BinaryOpGt  // Greater than comparison (>).
	BinaryOpGte // Greater than or equal comparison (>=).
	BinaryOpLt  // Less than comparison (<).
	BinaryOpLte // Less than or equal comparison (<=).
	BinaryOpAnd // Logical AND operation (&&).
	BinaryOpOr  // Logical OR operation (||).

	BinaryOpAdd // Addition operation (+).
	BinaryOpSub // Subtraction operation (-).
	BinaryOpMul // Multiplication operation (*).
	BinaryOpDiv // Division operation (/).
	BinaryOpMod // Modulo operation (%).
)

var binaryOpStrings = map[BinaryOp]string{
	BinaryOpInvalid: "invalid",

	BinaryOpEq:  "EQ",
	BinaryOpNeq: "NEQ",
	BinaryOpGt:  "GT",
	BinaryOpGte: "GTE",
	BinaryOpLt:  "LT",
	BinaryOpLte: "LTE",
	BinaryOpAnd: "AND",
	BinaryOpOr:  "OR",

	BinaryOpAdd: "ADD",
	BinaryOpSub: "SUB",
	BinaryOpMul: "MUL",
	BinaryOpDiv: "DIV",
	BinaryOpMod: "MOD",
}

// String returns the string representation of the BinaryOp.
func (op BinaryOp) String() string {
	if s, ok := binaryOpStrings[op]; ok {
		return s
	}
	return fmt.Sprintf("BinaryOp(%d)", op)
}

// IsComparison reports whether the operation compares its operands and
// produces a boolean.
func (op BinaryOp) IsComparison() bool {
	switch op {
	case BinaryOpEq, BinaryOpNeq, BinaryOpGt, BinaryOpGte, BinaryOpLt, BinaryOpLte:
		return true
	default:
		return false
	}
}

// IsLogical reports whether the operation combines boolean operands.
func (op BinaryOp) IsLogical() bool {
	return op == BinaryOpAnd || op == BinaryOpOr
}

// IsArithmetic reports whether the operation produces a numeric result.
func (op BinaryOp) IsArithmetic() bool {
	switch op {
	case BinaryOpAdd, BinaryOpSub, BinaryOpMul, BinaryOpDiv, BinaryOpMod:
		return true
	default:
		return false
	}
}

// AggregateOp denotes the kind of aggregation to perform over a group.
type AggregateOp int

// Recognized values of [AggregateOp].
const (
	// AggregateOpInvalid indicates an invalid aggregation.
	AggregateOpInvalid AggregateOp = iota

	AggregateOpSum   // Sum of the input values.
	AggregateOpCount // Count of non-NULL input values.
	AggregateOpMin   // Minimum input value.
	AggregateOpMax   // Maximum input value.
	AggregateOpAvg   // Arithmetic mean of the input values.
)

var aggregateOpStrings = map[AggregateOp]string{
	AggregateOpInvalid: "invalid",

	AggregateOpSum:   "SUM",
	AggregateOpCount: "COUNT",
	AggregateOpMin:   "MIN",
	AggregateOpMax:   "MAX",
	AggregateOpAvg:   "AVG",
}

// String returns the string representation of the AggregateOp.
func (op AggregateOp) String() string {
	if s, ok := aggregateOpStrings[op]; ok {
		return s
	}
	return fmt.Sprintf("AggregateOp(%d)", op)
}
