// Package logical implements the tree of logical plan operators a query is
// first built as. Nodes are immutable: constructors validate their inputs
// and derive the output schema eagerly, and rewrites rebuild nodes through
// WithChildren, which re-runs the same validation. Schema derivation is a
// pure function of the children's schemas and the node's own parameters.
package logical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/schema"
)

// Plan is a node of a logical query plan.
type Plan interface {
	fmt.Stringer

	// Schema returns the schema of the batches the node produces.
	Schema() *schema.Schema
	// Children returns the input plans.
	Children() []Plan
	// WithChildren rebuilds the node with new inputs, re-running
	// validation and schema derivation.
	WithChildren(children []Plan) (Plan, error)

	isPlan()
}

// PlanError reports an invalid plan construction or rewrite.
type PlanError struct {
	// Op names the operator being built, e.g. "Filter".
	Op  string
	Err error
}

func (e *PlanError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Err) }
func (e *PlanError) Unwrap() error { return e.Err }

func planErr(op, format string, args ...any) *PlanError {
	return &PlanError{Op: op, Err: fmt.Errorf(format, args...)}
}

func expectChildren(op string, want, got int) error {
	if want != got {
		return planErr(op, "expected %d children, got %d", want, got)
	}
	return nil
}
