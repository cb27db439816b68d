package logical

import (
	"fmt"
	"strings"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/schema"
)

// Compile-time check to ensure Aggregate implements Plan.
var _ Plan = (*Aggregate)(nil)

// Aggregate groups the input rows by the group expressions and computes one
// aggregation per group. Without group expressions the whole input forms a
// single group. The output schema is the group columns followed by the
// aggregation columns.
type Aggregate struct {
	input        Plan
	groupBy      []expr.Expr
	aggregations []expr.Expr
	schema       *schema.Schema
}

// NewAggregate creates an aggregation over input. Group expressions must be
// aggregate-free; each aggregation must be an aggregate call, optionally
// aliased.
func NewAggregate(input Plan, groupBy, aggregations []expr.Expr) (*Aggregate, error) {
	if len(aggregations) == 0 {
		return nil, planErr("Aggregate", "needs at least one aggregation")
	}

	columns := make([]schema.Column, 0, len(groupBy)+len(aggregations))
	for _, g := range groupBy {
		if expr.HasAggregations(g) {
			return nil, planErr("Aggregate", "group expression %s contains an aggregate call", g)
		}
		field, err := g.ToField(input.Schema())
		if err != nil {
			return nil, &PlanError{Op: "Aggregate", Err: err}
		}
		columns = append(columns, field)
	}
	for _, a := range aggregations {
		if !isAggregation(a) {
			return nil, planErr("Aggregate", "%s is not an aggregate call", a)
		}
		field, err := a.ToField(input.Schema())
		if err != nil {
			return nil, &PlanError{Op: "Aggregate", Err: err}
		}
		columns = append(columns, field)
	}

	derived, err := schema.New(columns...)
	if err != nil {
		return nil, planErr("Aggregate", "%s", err)
	}
	return &Aggregate{input: input, groupBy: groupBy, aggregations: aggregations, schema: derived}, nil
}

// isAggregation accepts an aggregate call, possibly wrapped in aliases.
func isAggregation(e expr.Expr) bool {
	switch e := e.(type) {
	case *expr.AggExpr:
		return true
	case *expr.AliasExpr:
		return isAggregation(e.Value)
	default:
		return false
	}
}

// GroupBy returns the group expressions.
func (a *Aggregate) GroupBy() []expr.Expr { return a.groupBy }

// Aggregations returns the aggregate expressions.
func (a *Aggregate) Aggregations() []expr.Expr { return a.aggregations }

// Input returns the aggregated plan.
func (a *Aggregate) Input() Plan { return a.input }

func (*Aggregate) isPlan() {}

func (a *Aggregate) Schema() *schema.Schema { return a.schema }

func (a *Aggregate) Children() []Plan { return []Plan{a.input} }

func (a *Aggregate) WithChildren(children []Plan) (Plan, error) {
	if err := expectChildren("Aggregate", 1, len(children)); err != nil {
		return nil, err
	}
	return NewAggregate(children[0], a.groupBy, a.aggregations)
}

func (a *Aggregate) String() string {
	groups := make([]string, len(a.groupBy))
	for i, g := range a.groupBy {
		groups[i] = g.String()
	}
	aggs := make([]string, len(a.aggregations))
	for i, agg := range a.aggregations {
		aggs[i] = agg.String()
	}
	return fmt.Sprintf("Aggregate groupBy=(%s) aggs=(%s)", strings.Join(groups, ", "), strings.Join(aggs, ", "))
}
