package physical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/logical"
	"github.com/floedb/floe/pkg/engine/schema"
)

// Join is a hash join of two inputs on equality of the key columns. The
// right input is the build side; the planner places the smaller estimated
// input there. Both inputs must be distributed so that equal keys meet in
// the same partition, either by hash partitioning on the keys or by
// broadcasting the build side.
type Join struct {
	id string

	// How is the join type, inner or left outer.
	How logical.JoinType
	// LeftOn and RightOn are the equality key columns, index-aligned.
	LeftOn  []string
	RightOn []string

	schema       *schema.Schema
	partitioning Partitioning
	resources    ResourceRequest
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (m *Join) ID() string {
	if m.id == "" {
		return fmt.Sprintf("%p", m)
	}
	return m.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Join) Type() NodeType {
	return NodeTypeJoin
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (m *Join) Accept(v Visitor) error {
	return v.VisitJoin(m)
}

// Schema implements the [Node] interface.
func (m *Join) Schema() *schema.Schema { return m.schema }

// Partitioning implements the [Node] interface.
func (m *Join) Partitioning() Partitioning { return m.partitioning }

// Resources implements the [Node] interface.
func (m *Join) Resources() ResourceRequest { return m.resources }

// Clone implements the [Node] interface.
func (m *Join) Clone() Node {
	c := *m
	return &c
}

func (*Join) isNode() {}
