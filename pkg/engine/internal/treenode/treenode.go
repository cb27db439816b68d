// Package treenode provides rewriting and traversal over immutable
// tree-shaped IR nodes. It is shared by expression trees and plan trees.
//
// Rewrites never mutate nodes in place: a node whose children changed is
// rebuilt through [Node.WithChildren], and results report whether anything
// changed so that callers can detect fixpoints without diffing trees.
package treenode

// Node is implemented by tree nodes that can enumerate their children and
// rebuild themselves from rewritten children.
type Node[T any] interface {
	Children() []T
	WithChildren(children []T) (T, error)
}

// Transformed wraps the result of a rewrite and records whether the rewrite
// changed anything.
type Transformed[T any] struct {
	Data    T
	Changed bool
}

// Yes wraps data as a changed result.
func Yes[T any](data T) Transformed[T] { return Transformed[T]{Data: data, Changed: true} }

// No wraps data as an unchanged result.
func No[T any](data T) Transformed[T] { return Transformed[T]{Data: data} }

// TransformFunc rewrites a single node.
type TransformFunc[T Node[T]] func(T) (Transformed[T], error)

// TransformUp rewrites the tree bottom-up: children are rewritten first, then
// fn is applied to the node holding the rewritten children. The result is
// marked changed when fn changed any node in the tree.
func TransformUp[T Node[T]](node T, fn TransformFunc[T]) (Transformed[T], error) {
	children, err := mapChildren(node, func(child T) (Transformed[T], error) {
		return TransformUp(child, fn)
	})
	if err != nil {
		return No(node), err
	}
	result, err := fn(children.Data)
	if err != nil {
		return No(node), err
	}
	result.Changed = result.Changed || children.Changed
	return result, nil
}

// TransformDown rewrites the tree top-down: fn is applied to the node first,
// then its (possibly replaced) children are rewritten recursively.
func TransformDown[T Node[T]](node T, fn TransformFunc[T]) (Transformed[T], error) {
	result, err := fn(node)
	if err != nil {
		return No(node), err
	}
	children, err := mapChildren(result.Data, func(child T) (Transformed[T], error) {
		return TransformDown(child, fn)
	})
	if err != nil {
		return No(node), err
	}
	children.Changed = children.Changed || result.Changed
	return children, nil
}

// mapChildren applies fn to every child and rebuilds node when at least one
// child changed.
func mapChildren[T Node[T]](node T, fn func(T) (Transformed[T], error)) (Transformed[T], error) {
	children := node.Children()
	if len(children) == 0 {
		return No(node), nil
	}

	var changed bool
	rewritten := make([]T, len(children))
	for i, child := range children {
		result, err := fn(child)
		if err != nil {
			return No(node), err
		}
		rewritten[i] = result.Data
		changed = changed || result.Changed
	}
	if !changed {
		return No(node), nil
	}

	rebuilt, err := node.WithChildren(rewritten)
	if err != nil {
		return No(node), err
	}
	return Yes(rebuilt), nil
}
