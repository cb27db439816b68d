package physical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/schema"
)

// Projection evaluates one expression per output column.
type Projection struct {
	id string

	// Expressions produce the output columns in order. Aliases determine
	// the output column names.
	Expressions []expr.Expr

	schema       *schema.Schema
	partitioning Partitioning
	resources    ResourceRequest
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (m *Projection) ID() string {
	if m.id == "" {
		return fmt.Sprintf("%p", m)
	}
	return m.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Projection) Type() NodeType {
	return NodeTypeProjection
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (m *Projection) Accept(v Visitor) error {
	return v.VisitProjection(m)
}

// Schema implements the [Node] interface.
func (m *Projection) Schema() *schema.Schema { return m.schema }

// Partitioning implements the [Node] interface.
func (m *Projection) Partitioning() Partitioning { return m.partitioning }

// Resources implements the [Node] interface.
func (m *Projection) Resources() ResourceRequest { return m.resources }

// Clone implements the [Node] interface.
func (m *Projection) Clone() Node {
	c := *m
	return &c
}

func (*Projection) isNode() {}
