package treenode

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// node is a minimal tree for exercising the traversals.
type node struct {
	name     string
	children []*node
}

func (n *node) Children() []*node { return n.children }

func (n *node) WithChildren(children []*node) (*node, error) {
	if strings.HasPrefix(n.name, "frozen") {
		return nil, errors.New("cannot rebuild frozen node")
	}
	return &node{name: n.name, children: children}, nil
}

func tree(name string, children ...*node) *node {
	return &node{name: name, children: children}
}

func TestTransformUp(t *testing.T) {
	t.Run("visits children before parents", func(t *testing.T) {
		root := tree("a", tree("b", tree("c")), tree("d"))

		var order []string
		_, err := TransformUp(root, func(n *node) (Transformed[*node], error) {
			order = append(order, n.name)
			return No(n), nil
		})
		require.NoError(t, err)
		require.Equal(t, []string{"c", "b", "d", "a"}, order)
	})

	t.Run("rebuilds ancestors of a changed node", func(t *testing.T) {
		root := tree("a", tree("b", tree("c")))

		result, err := TransformUp(root, func(n *node) (Transformed[*node], error) {
			if n.name == "c" {
				return Yes(tree("c'")), nil
			}
			return No(n), nil
		})
		require.NoError(t, err)
		require.True(t, result.Changed)
		require.NotSame(t, root, result.Data)
		require.Equal(t, "c'", result.Data.children[0].children[0].name)
	})

	t.Run("unchanged tree keeps identity", func(t *testing.T) {
		root := tree("a", tree("b"))

		result, err := TransformUp(root, func(n *node) (Transformed[*node], error) {
			return No(n), nil
		})
		require.NoError(t, err)
		require.False(t, result.Changed)
		require.Same(t, root, result.Data)
	})

	t.Run("rebuild failure aborts", func(t *testing.T) {
		root := tree("frozen", tree("b"))

		_, err := TransformUp(root, func(n *node) (Transformed[*node], error) {
			if n.name == "b" {
				return Yes(tree("b'")), nil
			}
			return No(n), nil
		})
		require.ErrorContains(t, err, "frozen")
	})
}

func TestTransformDown(t *testing.T) {
	t.Run("visits parents before children", func(t *testing.T) {
		root := tree("a", tree("b", tree("c")), tree("d"))

		var order []string
		_, err := TransformDown(root, func(n *node) (Transformed[*node], error) {
			order = append(order, n.name)
			return No(n), nil
		})
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b", "c", "d"}, order)
	})

	t.Run("descends into replacement nodes", func(t *testing.T) {
		root := tree("a", tree("b"))

		var visited []string
		result, err := TransformDown(root, func(n *node) (Transformed[*node], error) {
			visited = append(visited, n.name)
			if n.name == "b" {
				return Yes(tree("b'", tree("x"))), nil
			}
			return No(n), nil
		})
		require.NoError(t, err)
		require.True(t, result.Changed)
		require.Equal(t, []string{"a", "b", "x"}, visited)
		require.Equal(t, "b'", result.Data.children[0].name)
	})

	t.Run("error stops traversal", func(t *testing.T) {
		root := tree("a", tree("bad"), tree("never"))

		var visited []string
		_, err := TransformDown(root, func(n *node) (Transformed[*node], error) {
			visited = append(visited, n.name)
			if n.name == "bad" {
				return No(n), errors.New("boom")
			}
			return No(n), nil
		})
		require.ErrorContains(t, err, "boom")
		require.NotContains(t, visited, "never")
	})
}

func TestWalk(t *testing.T) {
	root := tree("a", tree("b", tree("c")), tree("d"))

	t.Run("pre-order", func(t *testing.T) {
		var order []string
		err := Walk(root, func(n *node) (Recursion, error) {
			order = append(order, n.name)
			return Continue, nil
		})
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b", "c", "d"}, order)
	})

	t.Run("skip children", func(t *testing.T) {
		var order []string
		err := Walk(root, func(n *node) (Recursion, error) {
			order = append(order, n.name)
			if n.name == "b" {
				return SkipChildren, nil
			}
			return Continue, nil
		})
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b", "d"}, order)
	})

	t.Run("stop", func(t *testing.T) {
		var order []string
		err := Walk(root, func(n *node) (Recursion, error) {
			order = append(order, n.name)
			if n.name == "b" {
				return Stop, nil
			}
			return Continue, nil
		})
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b"}, order)
	})
}
