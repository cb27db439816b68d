package physical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/schema"
	"github.com/floedb/floe/pkg/engine/source"
)

// Scan reads records from a data source. It carries the pushdowns collected
// during optimization; the source applies projection first, then predicate,
// then limit.
type Scan struct {
	id string

	// Source produces the records.
	Source source.DataSource
	// Pushdowns are handed to [source.DataSource.Open] unchanged.
	Pushdowns source.Pushdowns
	// Partition is the source partition to read. The planner leaves it at
	// -1, meaning all partitions; the scheduler binds one partition index
	// per task.
	Partition int

	schema       *schema.Schema
	partitioning Partitioning
	resources    ResourceRequest
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (m *Scan) ID() string {
	if m.id == "" {
		return fmt.Sprintf("%p", m)
	}
	return m.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Scan) Type() NodeType {
	return NodeTypeScan
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (m *Scan) Accept(v Visitor) error {
	return v.VisitScan(m)
}

// Schema implements the [Node] interface.
func (m *Scan) Schema() *schema.Schema { return m.schema }

// Partitioning implements the [Node] interface.
func (m *Scan) Partitioning() Partitioning { return m.partitioning }

// Resources implements the [Node] interface.
func (m *Scan) Resources() ResourceRequest { return m.resources }

// Clone implements the [Node] interface.
func (m *Scan) Clone() Node {
	c := *m
	return &c
}

func (*Scan) isNode() {}
