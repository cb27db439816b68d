// Package tree renders hierarchical plan representations for EXPLAIN-style
// output.
package tree

// Property is a key-value pair attached to a [Node]. A single-value property
// renders as `key=value`, a multi-value property as `key=(value1, value2)`.
type Property struct {
	// Key is the name of the property.
	Key string
	// Values holds the value(s) of the property.
	Values []any
	// IsMultiValue marks whether the property is a multi-value property.
	IsMultiValue bool
}

// NewProperty creates a property with the specified key, multi-value flag,
// and values.
func NewProperty(key string, multi bool, values ...any) Property {
	return Property{
		Key:          key,
		Values:       values,
		IsMultiValue: multi,
	}
}

// Node is a printable tree node. Nodes carry display properties and two kinds
// of nested nodes: Children, the structural children of the node, and
// Comments, which are rendered one level deeper than children. Comments hold
// tree-shaped details of the node itself, such as the expressions of a plan
// operator.
type Node struct {
	// Name is the display name of the node.
	Name string
	// Properties contains the key-value properties of the node.
	Properties []Property
	// Children are the structural child nodes.
	Children []*Node
	// Comments are detail nodes rendered before, and indented deeper than,
	// children.
	Comments []*Node
}

// NewNode creates a node with the given display name and properties.
func NewNode(name string, properties ...Property) *Node {
	return &Node{
		Name:       name,
		Properties: properties,
	}
}

// AddChild creates a child node and attaches it.
func (n *Node) AddChild(name string, properties ...Property) *Node {
	child := NewNode(name, properties...)
	n.Children = append(n.Children, child)
	return child
}

// AddComment creates a comment node and attaches it.
func (n *Node) AddComment(name string, properties ...Property) *Node {
	comment := NewNode(name, properties...)
	n.Comments = append(n.Comments, comment)
	return comment
}
