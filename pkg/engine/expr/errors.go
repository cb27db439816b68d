package expr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownColumn is returned when an expression references a column
	// the input schema does not contain.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrTypeMismatch is returned when operand types do not satisfy an
	// operator or function signature.
	ErrTypeMismatch = errors.New("type mismatch")
)

// TypeError is the error returned when an expression cannot be bound against
// an input schema. It wraps the underlying cause and records the offending
// (sub)expression.
type TypeError struct {
	Expr Expr
	Err  error
}

func newTypeError(e Expr, cause error) *TypeError {
	return &TypeError{Expr: e, Err: cause}
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("bind %s: %s", e.Expr, e.Err)
}

func (e *TypeError) Unwrap() error { return e.Err }
