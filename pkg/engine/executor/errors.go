package executor

import (
	"errors"
	"fmt"

	"github.com/floedb/floe/pkg/engine/expr"
)

// ErrDivisionByZero is the cause of an [EvalError] when a division or
// modulo hits a zero divisor under [ZeroDivisionError].
var ErrDivisionByZero = errors.New("division by zero")

// EvalError is returned when an expression cannot be evaluated against a
// record batch. It wraps the underlying cause and records the offending
// (sub)expression.
type EvalError struct {
	Expr expr.Expr
	Err  error
}

func newEvalError(e expr.Expr, cause error) *EvalError {
	return &EvalError{Expr: e, Err: cause}
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluate %s: %s", e.Expr, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }
