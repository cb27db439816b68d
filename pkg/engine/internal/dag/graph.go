// Package dag implements a generic directed acyclic graph used as the
// backing store for physical plans and task graphs. Edges point from parent
// (consumer) to child (producer).
package dag

import (
	"fmt"
	"iter"
)

// Node is the interface graph vertices must implement.
type Node interface {
	ID() string
}

// Edge is a directed edge between two nodes.
type Edge[NodeType Node] struct {
	Parent NodeType
	Child  NodeType
}

// Graph is a mutable DAG. The zero value is ready for use. Graph is not safe
// for concurrent mutation.
type Graph[NodeType Node] struct {
	nodes    []NodeType
	index    map[string]NodeType
	children map[string][]NodeType
	parents  map[string][]NodeType
}

func (g *Graph[NodeType]) init() {
	if g.index == nil {
		g.index = make(map[string]NodeType)
		g.children = make(map[string][]NodeType)
		g.parents = make(map[string][]NodeType)
	}
}

// Add inserts a node and returns it. Adding a node with an ID that already
// exists returns the existing node.
func (g *Graph[NodeType]) Add(n NodeType) NodeType {
	g.init()
	if existing, ok := g.index[n.ID()]; ok {
		return existing
	}
	g.nodes = append(g.nodes, n)
	g.index[n.ID()] = n
	return n
}

// AddEdge inserts a directed edge. Both endpoints must have been added
// before. Adding the same edge twice is a no-op.
func (g *Graph[NodeType]) AddEdge(e Edge[NodeType]) error {
	g.init()
	if _, ok := g.index[e.Parent.ID()]; !ok {
		return fmt.Errorf("parent node %s not in graph", e.Parent.ID())
	}
	if _, ok := g.index[e.Child.ID()]; !ok {
		return fmt.Errorf("child node %s not in graph", e.Child.ID())
	}
	if e.Parent.ID() == e.Child.ID() {
		return fmt.Errorf("self-referencing edge on node %s", e.Parent.ID())
	}
	for _, child := range g.children[e.Parent.ID()] {
		if child.ID() == e.Child.ID() {
			return nil
		}
	}
	g.children[e.Parent.ID()] = append(g.children[e.Parent.ID()], e.Child)
	g.parents[e.Child.ID()] = append(g.parents[e.Child.ID()], e.Parent)
	return nil
}

// Len returns the number of nodes.
func (g *Graph[NodeType]) Len() int { return len(g.nodes) }

// Children returns the direct children of n in edge insertion order.
func (g *Graph[NodeType]) Children(n NodeType) []NodeType {
	return g.children[n.ID()]
}

// Parents returns the direct parents of n in edge insertion order.
func (g *Graph[NodeType]) Parents(n NodeType) []NodeType {
	return g.parents[n.ID()]
}

// Roots returns all nodes without parents, in insertion order.
func (g *Graph[NodeType]) Roots() []NodeType {
	var roots []NodeType
	for _, n := range g.nodes {
		if len(g.parents[n.ID()]) == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}

// Leaves returns all nodes without children, in insertion order.
func (g *Graph[NodeType]) Leaves() []NodeType {
	var leaves []NodeType
	for _, n := range g.nodes {
		if len(g.children[n.ID()]) == 0 {
			leaves = append(leaves, n)
		}
	}
	return leaves
}

// Nodes iterates over all nodes in insertion order.
func (g *Graph[NodeType]) Nodes() iter.Seq[NodeType] {
	return func(yield func(NodeType) bool) {
		for _, n := range g.nodes {
			if !yield(n) {
				return
			}
		}
	}
}

// Eliminate removes n from the graph and connects every parent of n to every
// child of n, preserving reachability.
func (g *Graph[NodeType]) Eliminate(n NodeType) {
	g.init()
	parents := g.parents[n.ID()]
	children := g.children[n.ID()]

	for _, parent := range parents {
		g.children[parent.ID()] = removeNode(g.children[parent.ID()], n)
	}
	for _, child := range children {
		g.parents[child.ID()] = removeNode(g.parents[child.ID()], n)
	}
	for _, parent := range parents {
		for _, child := range children {
			_ = g.AddEdge(Edge[NodeType]{Parent: parent, Child: child})
		}
	}

	delete(g.index, n.ID())
	delete(g.children, n.ID())
	delete(g.parents, n.ID())
	g.nodes = removeNode(g.nodes, n)
}

// Inject places m between n and its parents: every edge (parent, n) becomes
// (parent, m), and a new edge (m, n) is added. When n is a root, m simply
// becomes its only parent.
func (g *Graph[NodeType]) Inject(n, m NodeType) error {
	g.init()
	if _, ok := g.index[n.ID()]; !ok {
		return fmt.Errorf("node %s not in graph", n.ID())
	}
	g.Add(m)

	parents := g.parents[n.ID()]
	g.parents[n.ID()] = nil
	for _, parent := range parents {
		g.children[parent.ID()] = removeNode(g.children[parent.ID()], n)
		if err := g.AddEdge(Edge[NodeType]{Parent: parent, Child: m}); err != nil {
			return err
		}
	}
	return g.AddEdge(Edge[NodeType]{Parent: m, Child: n})
}

func removeNode[NodeType Node](nodes []NodeType, n NodeType) []NodeType {
	for i, candidate := range nodes {
		if candidate.ID() == n.ID() {
			return append(nodes[:i:i], nodes[i+1:]...)
		}
	}
	return nodes
}
