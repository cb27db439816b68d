// Package physical contains the physical query plan and the planner that
// lowers logical plans into it. Physical nodes annotate the logical shape
// with a partitioning scheme and a resource request; the planner inserts
// Exchange nodes exactly where a node's required partitioning is not
// satisfied by its input.
package physical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/schema"
)

// NodeType represents the type of a node in the physical plan.
type NodeType uint32

const (
	_ NodeType = iota // zero-value is an invalid type

	NodeTypeScan
	NodeTypeFilter
	NodeTypeProjection
	NodeTypeAggregate
	NodeTypeJoin
	NodeTypeSort
	NodeTypeSortMerge
	NodeTypeTopK
	NodeTypeLimit
	NodeTypeDistinct
	NodeTypeExplode
	NodeTypeMerge
	NodeTypeExchange
	NodeTypeEmpty
)

// String returns the string representation of the [NodeType].
func (t NodeType) String() string {
	switch t {
	case NodeTypeScan:
		return "Scan"
	case NodeTypeFilter:
		return "Filter"
	case NodeTypeProjection:
		return "Projection"
	case NodeTypeAggregate:
		return "Aggregate"
	case NodeTypeJoin:
		return "Join"
	case NodeTypeSort:
		return "Sort"
	case NodeTypeSortMerge:
		return "SortMerge"
	case NodeTypeTopK:
		return "TopK"
	case NodeTypeLimit:
		return "Limit"
	case NodeTypeDistinct:
		return "Distinct"
	case NodeTypeExplode:
		return "Explode"
	case NodeTypeMerge:
		return "Merge"
	case NodeTypeExchange:
		return "Exchange"
	case NodeTypeEmpty:
		return "Empty"
	default:
		panic(fmt.Sprintf("unknown node type %d", t))
	}
}

// Node is the common interface for all nodes in a physical plan.
type Node interface {
	// ID returns a string that uniquely identifies the node in the plan.
	ID() string
	// Type returns the type of the node.
	Type() NodeType
	// Accept dispatches the node to the matching method of the [Visitor].
	Accept(Visitor) error
	// Schema returns the output schema of the node.
	Schema() *schema.Schema
	// Partitioning returns how the node's output rows are distributed
	// across parallel units.
	Partitioning() Partitioning
	// Resources returns the node's resource request, accumulated
	// bottom-up within its pipeline stage.
	Resources() ResourceRequest
	// Clone returns a shallow copy of the node. Expressions and schemas
	// are shared; they are immutable after planning.
	Clone() Node

	isNode()
}

// Visitor visits each concrete node type of a physical plan.
type Visitor interface {
	VisitScan(*Scan) error
	VisitFilter(*Filter) error
	VisitProjection(*Projection) error
	VisitAggregate(*Aggregate) error
	VisitJoin(*Join) error
	VisitSort(*Sort) error
	VisitSortMerge(*SortMerge) error
	VisitTopK(*TopK) error
	VisitLimit(*Limit) error
	VisitDistinct(*Distinct) error
	VisitExplode(*Explode) error
	VisitMerge(*Merge) error
	VisitExchange(*Exchange) error
	VisitEmpty(*Empty) error
}
