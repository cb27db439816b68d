package logical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/schema"
	"github.com/floedb/floe/pkg/engine/types"
)

// Compile-time check to ensure Filter implements Plan.
var _ Plan = (*Filter)(nil)

// Filter keeps the input rows whose predicate evaluates to true. Rows where
// the predicate is NULL are dropped.
type Filter struct {
	input     Plan
	predicate expr.Expr
}

// NewFilter creates a filter over input. The predicate must bind to a
// boolean against the input schema and must not contain aggregate calls.
func NewFilter(input Plan, predicate expr.Expr) (*Filter, error) {
	if expr.HasAggregations(predicate) {
		return nil, planErr("Filter", "predicate %s contains an aggregate call", predicate)
	}
	field, err := predicate.ToField(input.Schema())
	if err != nil {
		return nil, &PlanError{Op: "Filter", Err: err}
	}
	if field.Type.ID() != types.TypeBool {
		return nil, planErr("Filter", "predicate %s is %s, expected bool", predicate, field.Type)
	}
	return &Filter{input: input, predicate: predicate}, nil
}

// Predicate returns the filter predicate.
func (f *Filter) Predicate() expr.Expr { return f.predicate }

// Input returns the filtered plan.
func (f *Filter) Input() Plan { return f.input }

func (*Filter) isPlan() {}

func (f *Filter) Schema() *schema.Schema { return f.input.Schema() }

func (f *Filter) Children() []Plan { return []Plan{f.input} }

func (f *Filter) WithChildren(children []Plan) (Plan, error) {
	if err := expectChildren("Filter", 1, len(children)); err != nil {
		return nil, err
	}
	return NewFilter(children[0], f.predicate)
}

func (f *Filter) String() string {
	return fmt.Sprintf("Filter predicate=%s", f.predicate)
}
