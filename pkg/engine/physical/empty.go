package physical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/schema"
)

// Empty produces no rows. It is the lowering of plans the optimizer proved
// to have an empty result, such as filters on a false predicate.
type Empty struct {
	id string

	schema       *schema.Schema
	partitioning Partitioning
	resources    ResourceRequest
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (m *Empty) ID() string {
	if m.id == "" {
		return fmt.Sprintf("%p", m)
	}
	return m.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Empty) Type() NodeType {
	return NodeTypeEmpty
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (m *Empty) Accept(v Visitor) error {
	return v.VisitEmpty(m)
}

// Schema implements the [Node] interface.
func (m *Empty) Schema() *schema.Schema { return m.schema }

// Partitioning implements the [Node] interface.
func (m *Empty) Partitioning() Partitioning { return m.partitioning }

// Resources implements the [Node] interface.
func (m *Empty) Resources() ResourceRequest { return m.resources }

// Clone implements the [Node] interface.
func (m *Empty) Clone() Node {
	c := *m
	return &c
}

func (*Empty) isNode() {}
