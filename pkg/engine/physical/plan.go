package physical

import (
	"fmt"
	"iter"

	"github.com/floedb/floe/pkg/engine/internal/dag"
	"github.com/floedb/floe/pkg/engine/schema"
)

// Edge is a directed edge in the plan graph, pointing from the consumer
// (parent) to the producer (child).
type Edge = dag.Edge[Node]

// Plan is a physical query plan, a DAG of [Node] values. The zero value is
// an empty plan ready for use.
type Plan struct {
	graph dag.Graph[Node]
}

// FromGraph creates a Plan from an existing graph of nodes. The graph is
// used as-is, so callers must not modify it after the call.
func FromGraph(g dag.Graph[Node]) *Plan {
	return &Plan{graph: g}
}

// Graph returns the underlying node graph of the plan.
func (p *Plan) Graph() *dag.Graph[Node] {
	return &p.graph
}

// addNode inserts a node and returns it.
func (p *Plan) addNode(n Node) Node {
	return p.graph.Add(n)
}

// addEdge inserts a directed edge between two nodes that are already part
// of the plan.
func (p *Plan) addEdge(e Edge) error {
	return p.graph.AddEdge(e)
}

// Len returns the number of nodes in the plan.
func (p *Plan) Len() int {
	return p.graph.Len()
}

// Roots returns all nodes without parents.
func (p *Plan) Roots() []Node {
	return p.graph.Roots()
}

// Root returns the single root of the plan, or an error if the plan does
// not have exactly one root.
func (p *Plan) Root() (Node, error) {
	roots := p.graph.Roots()
	if len(roots) != 1 {
		return nil, fmt.Errorf("plan has %d roots, expected exactly one", len(roots))
	}
	return roots[0], nil
}

// Leaves returns all nodes without children.
func (p *Plan) Leaves() []Node {
	return p.graph.Leaves()
}

// Children returns the direct children (producers) of a node.
func (p *Plan) Children(n Node) []Node {
	return p.graph.Children(n)
}

// Parents returns the direct parents (consumers) of a node.
func (p *Plan) Parents(n Node) []Node {
	return p.graph.Parents(n)
}

// Nodes iterates over all nodes in insertion order.
func (p *Plan) Nodes() iter.Seq[Node] {
	return p.graph.Nodes()
}

// Walk performs a depth-first walk from n towards the leaves, invoking fn
// for each reachable node exactly once.
func (p *Plan) Walk(n Node, fn func(Node) error, order dag.WalkOrder) error {
	return p.graph.Walk(n, fn, order)
}

// Schema returns the output schema of the plan root.
func (p *Plan) Schema() (*schema.Schema, error) {
	root, err := p.Root()
	if err != nil {
		return nil, err
	}
	return root.Schema(), nil
}
