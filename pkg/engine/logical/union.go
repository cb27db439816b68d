package logical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/schema"
)

// Compile-time check to ensure Union implements Plan.
var _ Plan = (*Union)(nil)

// Union concatenates the rows of all inputs. Duplicates are kept; wrap the
// union in a Distinct for set semantics. All inputs must share one schema.
type Union struct {
	inputs []Plan
}

// NewUnion creates a union of inputs. At least two inputs are required and
// every input schema must match the first, comparing column names and types
// in order.
func NewUnion(inputs []Plan) (*Union, error) {
	if len(inputs) < 2 {
		return nil, planErr("Union", "needs at least two inputs, got %d", len(inputs))
	}
	first := inputs[0].Schema()
	for i, in := range inputs[1:] {
		if !schema.Equal(first, in.Schema()) {
			return nil, planErr("Union", "input %d schema %s does not match %s", i+1, in.Schema(), first)
		}
	}
	return &Union{inputs: inputs}, nil
}

// Inputs returns the unioned plans.
func (u *Union) Inputs() []Plan { return u.inputs }

func (*Union) isPlan() {}

func (u *Union) Schema() *schema.Schema { return u.inputs[0].Schema() }

func (u *Union) Children() []Plan { return u.inputs }

func (u *Union) WithChildren(children []Plan) (Plan, error) {
	if len(children) < 2 {
		return nil, planErr("Union", "expected at least two children, got %d", len(children))
	}
	return NewUnion(children)
}

func (u *Union) String() string {
	return fmt.Sprintf("Union inputs=%d", len(u.inputs))
}
