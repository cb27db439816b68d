package physical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/schema"
	"github.com/floedb/floe/pkg/engine/types"
)

// AggregateMode selects which stage of a multi-stage aggregation a node
// performs.
type AggregateMode uint8

const (
	// AggregateModeComplete computes final values from raw input in a
	// single stage. Used when the input already satisfies the required
	// partitioning.
	AggregateModeComplete AggregateMode = iota
	// AggregateModePartial computes per-partition accumulator states from
	// raw input. Its output schema is the state schema, not the final one.
	AggregateModePartial
	// AggregateModeFinal merges accumulator states produced by partial
	// aggregations and emits final values.
	AggregateModeFinal
)

// String returns the string representation of the [AggregateMode].
func (m AggregateMode) String() string {
	switch m {
	case AggregateModeComplete:
		return "complete"
	case AggregateModePartial:
		return "partial"
	case AggregateModeFinal:
		return "final"
	default:
		return fmt.Sprintf("AggregateMode(%d)", m)
	}
}

// Aggregate groups rows by the group expressions and computes one value per
// aggregation and group. Without group expressions it emits exactly one row.
type Aggregate struct {
	id string

	// GroupBy are the aggregate-free grouping expressions. Their output
	// columns lead the node's schema.
	GroupBy []expr.Expr
	// Aggregations are aggregate calls, optionally aliased.
	Aggregations []expr.Expr
	// Mode is the aggregation stage.
	Mode AggregateMode

	schema       *schema.Schema
	partitioning Partitioning
	resources    ResourceRequest
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (m *Aggregate) ID() string {
	if m.id == "" {
		return fmt.Sprintf("%p", m)
	}
	return m.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Aggregate) Type() NodeType {
	return NodeTypeAggregate
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (m *Aggregate) Accept(v Visitor) error {
	return v.VisitAggregate(m)
}

// Schema implements the [Node] interface.
func (m *Aggregate) Schema() *schema.Schema { return m.schema }

// Partitioning implements the [Node] interface.
func (m *Aggregate) Partitioning() Partitioning { return m.partitioning }

// Resources implements the [Node] interface.
func (m *Aggregate) Resources() ResourceRequest { return m.resources }

// Clone implements the [Node] interface.
func (m *Aggregate) Clone() Node {
	c := *m
	return &c
}

func (*Aggregate) isNode() {}

// PartialSchema derives the accumulator state schema a partial aggregation
// emits and a final aggregation consumes. The layout is positional: the
// group key columns come first, then the state columns per aggregation in
// declaration order. Every aggregation contributes one state column except
// avg, which contributes a sum column and a count column.
func PartialSchema(input *schema.Schema, groupBy, aggregations []expr.Expr) (*schema.Schema, error) {
	columns := make([]schema.Column, 0, len(groupBy)+len(aggregations)+1)
	for _, g := range groupBy {
		field, err := g.ToField(input)
		if err != nil {
			return nil, err
		}
		columns = append(columns, field)
	}
	for _, a := range aggregations {
		field, err := a.ToField(input)
		if err != nil {
			return nil, err
		}
		agg := unwrapAggregate(a)
		if agg == nil {
			return nil, fmt.Errorf("%s is not an aggregate call", a)
		}
		if agg.Op == types.AggregateOpAvg {
			columns = append(columns,
				schema.Column{Name: field.Name + "#sum", Type: types.Float64, Nullable: true},
				schema.Column{Name: field.Name + "#count", Type: types.Int64},
			)
			continue
		}
		columns = append(columns, field)
	}
	return schema.New(columns...)
}

// unwrapAggregate returns the aggregate call inside e, stepping through
// aliases, or nil if there is none.
func unwrapAggregate(e expr.Expr) *expr.AggExpr {
	for {
		switch v := e.(type) {
		case *expr.AggExpr:
			return v
		case *expr.AliasExpr:
			e = v.Value
		default:
			return nil
		}
	}
}
