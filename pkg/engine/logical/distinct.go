package logical

import (
	"github.com/floedb/floe/pkg/engine/schema"
)

// Compile-time check to ensure Distinct implements Plan.
var _ Plan = (*Distinct)(nil)

// Distinct removes duplicate rows, comparing all columns. Two NULLs compare
// equal for the purpose of duplicate elimination.
type Distinct struct {
	input Plan
}

// NewDistinct creates a distinct over input.
func NewDistinct(input Plan) (*Distinct, error) {
	return &Distinct{input: input}, nil
}

// Input returns the deduplicated plan.
func (d *Distinct) Input() Plan { return d.input }

func (*Distinct) isPlan() {}

func (d *Distinct) Schema() *schema.Schema { return d.input.Schema() }

func (d *Distinct) Children() []Plan { return []Plan{d.input} }

func (d *Distinct) WithChildren(children []Plan) (Plan, error) {
	if err := expectChildren("Distinct", 1, len(children)); err != nil {
		return nil, err
	}
	return NewDistinct(children[0])
}

func (d *Distinct) String() string { return "Distinct" }
