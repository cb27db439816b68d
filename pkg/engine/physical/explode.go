package physical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/schema"
)

// Explode emits one output row per element of the list in Column, repeating
// the other columns. Empty and NULL lists produce a single row with a NULL
// element.
type Explode struct {
	id string

	// Column is the name of the list column to unnest.
	Column string

	schema       *schema.Schema
	partitioning Partitioning
	resources    ResourceRequest
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (m *Explode) ID() string {
	if m.id == "" {
		return fmt.Sprintf("%p", m)
	}
	return m.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Explode) Type() NodeType {
	return NodeTypeExplode
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (m *Explode) Accept(v Visitor) error {
	return v.VisitExplode(m)
}

// Schema implements the [Node] interface.
func (m *Explode) Schema() *schema.Schema { return m.schema }

// Partitioning implements the [Node] interface.
func (m *Explode) Partitioning() Partitioning { return m.partitioning }

// Resources implements the [Node] interface.
func (m *Explode) Resources() ResourceRequest { return m.resources }

// Clone implements the [Node] interface.
func (m *Explode) Clone() Node {
	c := *m
	return &c
}

func (*Explode) isNode() {}
