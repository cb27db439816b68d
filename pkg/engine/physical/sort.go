package physical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/logical"
	"github.com/floedb/floe/pkg/engine/schema"
)

// Sort orders the rows of each partition by the sort fields. It is a
// pipeline breaker: all input is consumed before the first row is emitted.
// Establishing a total order across partitions additionally requires a
// [SortMerge] gather, which the planner inserts.
type Sort struct {
	id string

	// Fields are the sort keys in significance order.
	Fields []logical.SortField

	schema       *schema.Schema
	partitioning Partitioning
	resources    ResourceRequest
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (m *Sort) ID() string {
	if m.id == "" {
		return fmt.Sprintf("%p", m)
	}
	return m.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Sort) Type() NodeType {
	return NodeTypeSort
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (m *Sort) Accept(v Visitor) error {
	return v.VisitSort(m)
}

// Schema implements the [Node] interface.
func (m *Sort) Schema() *schema.Schema { return m.schema }

// Partitioning implements the [Node] interface.
func (m *Sort) Partitioning() Partitioning { return m.partitioning }

// Resources implements the [Node] interface.
func (m *Sort) Resources() ResourceRequest { return m.resources }

// Clone implements the [Node] interface.
func (m *Sort) Clone() Node {
	c := *m
	return &c
}

func (*Sort) isNode() {}
