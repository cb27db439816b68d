package physical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/logical"
	"github.com/floedb/floe/pkg/engine/schema"
)

// TopK emits the first K rows of its input under the sort fields, in sort
// order. It replaces a full [Sort] below a bounded [Limit]: each partition
// only ever retains K rows instead of materializing its whole input. Like
// Sort it is a pipeline breaker and orders partitions independently.
type TopK struct {
	id string

	// Fields are the sort keys in significance order.
	Fields []logical.SortField
	// K is the number of rows to retain per partition.
	K uint64

	schema       *schema.Schema
	partitioning Partitioning
	resources    ResourceRequest
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (m *TopK) ID() string {
	if m.id == "" {
		return fmt.Sprintf("%p", m)
	}
	return m.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*TopK) Type() NodeType {
	return NodeTypeTopK
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (m *TopK) Accept(v Visitor) error {
	return v.VisitTopK(m)
}

// Schema implements the [Node] interface.
func (m *TopK) Schema() *schema.Schema { return m.schema }

// Partitioning implements the [Node] interface.
func (m *TopK) Partitioning() Partitioning { return m.partitioning }

// Resources implements the [Node] interface.
func (m *TopK) Resources() ResourceRequest { return m.resources }

// Clone implements the [Node] interface.
func (m *TopK) Clone() Node {
	c := *m
	return &c
}

func (*TopK) isNode() {}
