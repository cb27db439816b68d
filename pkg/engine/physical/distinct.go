package physical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/schema"
)

// Distinct removes duplicate rows. Two rows are duplicates when they are
// equal in every column, treating NULLs as equal. Over multi-partition
// input the planner deduplicates per partition, hash-redistributes on all
// columns, and deduplicates again.
type Distinct struct {
	id string

	schema       *schema.Schema
	partitioning Partitioning
	resources    ResourceRequest
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (m *Distinct) ID() string {
	if m.id == "" {
		return fmt.Sprintf("%p", m)
	}
	return m.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Distinct) Type() NodeType {
	return NodeTypeDistinct
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (m *Distinct) Accept(v Visitor) error {
	return v.VisitDistinct(m)
}

// Schema implements the [Node] interface.
func (m *Distinct) Schema() *schema.Schema { return m.schema }

// Partitioning implements the [Node] interface.
func (m *Distinct) Partitioning() Partitioning { return m.partitioning }

// Resources implements the [Node] interface.
func (m *Distinct) Resources() ResourceRequest { return m.resources }

// Clone implements the [Node] interface.
func (m *Distinct) Clone() Node {
	c := *m
	return &c
}

func (*Distinct) isNode() {}
