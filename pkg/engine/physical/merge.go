package physical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/schema"
)

// Merge combines its inputs into one stream without any ordering guarantee.
// Inputs are interleaved as batches arrive. It implements Union and the
// unordered gather above a single-partition [Exchange].
type Merge struct {
	id string

	schema       *schema.Schema
	partitioning Partitioning
	resources    ResourceRequest
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (m *Merge) ID() string {
	if m.id == "" {
		return fmt.Sprintf("%p", m)
	}
	return m.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Merge) Type() NodeType {
	return NodeTypeMerge
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (m *Merge) Accept(v Visitor) error {
	return v.VisitMerge(m)
}

// Schema implements the [Node] interface.
func (m *Merge) Schema() *schema.Schema { return m.schema }

// Partitioning implements the [Node] interface.
func (m *Merge) Partitioning() Partitioning { return m.partitioning }

// Resources implements the [Node] interface.
func (m *Merge) Resources() ResourceRequest { return m.resources }

// Clone implements the [Node] interface.
func (m *Merge) Clone() Node {
	c := *m
	return &c
}

func (*Merge) isNode() {}
