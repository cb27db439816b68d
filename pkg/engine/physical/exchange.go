package physical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/schema"
)

// ExchangeMode describes how an [Exchange] routes rows from its producer
// partitions to its consumer partitions.
type ExchangeMode uint8

const (
	_ ExchangeMode = iota // zero-value is an invalid mode

	// ExchangeModeHash routes each row by a hash of the key columns.
	ExchangeModeHash
	// ExchangeModeRandom routes batches round-robin without key
	// discipline, balancing partition sizes.
	ExchangeModeRandom
	// ExchangeModeSingle gathers all rows into one partition.
	ExchangeModeSingle
	// ExchangeModeBroadcast replicates all rows to every consumer
	// partition.
	ExchangeModeBroadcast
)

// String returns the string representation of the [ExchangeMode].
func (m ExchangeMode) String() string {
	switch m {
	case ExchangeModeHash:
		return "hash"
	case ExchangeModeRandom:
		return "random"
	case ExchangeModeSingle:
		return "single"
	case ExchangeModeBroadcast:
		return "broadcast"
	default:
		return fmt.Sprintf("ExchangeMode(%d)", m)
	}
}

// Exchange redistributes rows across partitions and is the only node that
// changes a plan's partition count. It marks a stage boundary: the subtree
// below it runs as a separate set of tasks whose output is sharded by the
// exchange's routing before the subtree above consumes it.
type Exchange struct {
	id string

	// Mode is the routing discipline.
	Mode ExchangeMode
	// Keys are the hash key columns. Only set for hash mode.
	Keys []string

	schema       *schema.Schema
	partitioning Partitioning
	resources    ResourceRequest
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (m *Exchange) ID() string {
	if m.id == "" {
		return fmt.Sprintf("%p", m)
	}
	return m.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Exchange) Type() NodeType {
	return NodeTypeExchange
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (m *Exchange) Accept(v Visitor) error {
	return v.VisitExchange(m)
}

// Schema implements the [Node] interface.
func (m *Exchange) Schema() *schema.Schema { return m.schema }

// Partitioning implements the [Node] interface.
// Returns the partitioning of the consumer side, after redistribution.
func (m *Exchange) Partitioning() Partitioning { return m.partitioning }

// Resources implements the [Node] interface.
func (m *Exchange) Resources() ResourceRequest { return m.resources }

// Clone implements the [Node] interface.
func (m *Exchange) Clone() Node {
	c := *m
	return &c
}

func (*Exchange) isNode() {}
