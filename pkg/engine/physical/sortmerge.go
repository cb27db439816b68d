package physical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/logical"
	"github.com/floedb/floe/pkg/engine/schema"
)

// SortMerge merges multiple inputs that are each already ordered by the
// sort fields into one stream with the same order. Unlike [Sort] it is not
// a pipeline breaker; it streams with a k-way merge over its inputs.
type SortMerge struct {
	id string

	// Fields are the sort keys the inputs are ordered by. Must match the
	// [Sort] nodes feeding into the merge.
	Fields []logical.SortField

	schema       *schema.Schema
	partitioning Partitioning
	resources    ResourceRequest
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (m *SortMerge) ID() string {
	if m.id == "" {
		return fmt.Sprintf("%p", m)
	}
	return m.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*SortMerge) Type() NodeType {
	return NodeTypeSortMerge
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (m *SortMerge) Accept(v Visitor) error {
	return v.VisitSortMerge(m)
}

// Schema implements the [Node] interface.
func (m *SortMerge) Schema() *schema.Schema { return m.schema }

// Partitioning implements the [Node] interface.
func (m *SortMerge) Partitioning() Partitioning { return m.partitioning }

// Resources implements the [Node] interface.
func (m *SortMerge) Resources() ResourceRequest { return m.resources }

// Clone implements the [Node] interface.
func (m *SortMerge) Clone() Node {
	c := *m
	return &c
}

func (*SortMerge) isNode() {}
