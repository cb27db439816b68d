package physical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/schema"
)

// Limit skips the first Skip rows and passes through at most Fetch rows
// after that. Over multi-partition input the planner splits it into a
// per-partition limit, a gather, and a final limit applying the skip.
type Limit struct {
	id string

	// Skip is the number of leading rows to drop.
	Skip uint64
	// Fetch is the maximum number of rows to emit after skipping.
	Fetch uint64

	schema       *schema.Schema
	partitioning Partitioning
	resources    ResourceRequest
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (m *Limit) ID() string {
	if m.id == "" {
		return fmt.Sprintf("%p", m)
	}
	return m.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Limit) Type() NodeType {
	return NodeTypeLimit
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (m *Limit) Accept(v Visitor) error {
	return v.VisitLimit(m)
}

// Schema implements the [Node] interface.
func (m *Limit) Schema() *schema.Schema { return m.schema }

// Partitioning implements the [Node] interface.
func (m *Limit) Partitioning() Partitioning { return m.partitioning }

// Resources implements the [Node] interface.
func (m *Limit) Resources() ResourceRequest { return m.resources }

// Clone implements the [Node] interface.
func (m *Limit) Clone() Node {
	c := *m
	return &c
}

func (*Limit) isNode() {}
