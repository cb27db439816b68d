package physical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/schema"
)

// Filter keeps only rows for which every predicate evaluates to true.
// The planner splits conjunctions into individual predicates.
type Filter struct {
	id string

	// Predicates are boolean expressions combined with AND. Rows where a
	// predicate is false or NULL are dropped.
	Predicates []expr.Expr

	schema       *schema.Schema
	partitioning Partitioning
	resources    ResourceRequest
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (m *Filter) ID() string {
	if m.id == "" {
		return fmt.Sprintf("%p", m)
	}
	return m.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Filter) Type() NodeType {
	return NodeTypeFilter
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (m *Filter) Accept(v Visitor) error {
	return v.VisitFilter(m)
}

// Schema implements the [Node] interface.
func (m *Filter) Schema() *schema.Schema { return m.schema }

// Partitioning implements the [Node] interface.
func (m *Filter) Partitioning() Partitioning { return m.partitioning }

// Resources implements the [Node] interface.
func (m *Filter) Resources() ResourceRequest { return m.resources }

// Clone implements the [Node] interface.
func (m *Filter) Clone() Node {
	c := *m
	return &c
}

func (*Filter) isNode() {}
