package dag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testNode string

func (n testNode) ID() string { return string(n) }

// diamond builds the graph root -> {left, right} -> leaf.
func diamond(t *testing.T) (*Graph[testNode], testNode, testNode, testNode, testNode) {
	t.Helper()
	var g Graph[testNode]
	root := g.Add(testNode("root"))
	left := g.Add(testNode("left"))
	right := g.Add(testNode("right"))
	leaf := g.Add(testNode("leaf"))
	require.NoError(t, g.AddEdge(Edge[testNode]{Parent: root, Child: left}))
	require.NoError(t, g.AddEdge(Edge[testNode]{Parent: root, Child: right}))
	require.NoError(t, g.AddEdge(Edge[testNode]{Parent: left, Child: leaf}))
	require.NoError(t, g.AddEdge(Edge[testNode]{Parent: right, Child: leaf}))
	return &g, root, left, right, leaf
}

func TestGraphStructure(t *testing.T) {
	g, root, left, right, leaf := diamond(t)

	require.Equal(t, 4, g.Len())
	require.Equal(t, []testNode{root}, g.Roots())
	require.Equal(t, []testNode{leaf}, g.Leaves())
	require.Equal(t, []testNode{left, right}, g.Children(root))
	require.Equal(t, []testNode{left, right}, g.Parents(leaf))
	require.Nil(t, g.Children(leaf))
	require.Nil(t, g.Parents(root))
}

func TestAddEdgeValidation(t *testing.T) {
	var g Graph[testNode]
	a := g.Add(testNode("a"))
	b := g.Add(testNode("b"))

	require.Error(t, g.AddEdge(Edge[testNode]{Parent: a, Child: testNode("missing")}))
	require.Error(t, g.AddEdge(Edge[testNode]{Parent: a, Child: a}))

	require.NoError(t, g.AddEdge(Edge[testNode]{Parent: a, Child: b}))
	require.NoError(t, g.AddEdge(Edge[testNode]{Parent: a, Child: b}), "duplicate edges are no-ops")
	require.Len(t, g.Children(a), 1)
	require.Len(t, g.Parents(b), 1)
}

func TestWalk(t *testing.T) {
	g, root, _, _, _ := diamond(t)

	t.Run("pre-order visits parents first and nodes once", func(t *testing.T) {
		var order []string
		require.NoError(t, g.Walk(root, func(n testNode) error {
			order = append(order, n.ID())
			return nil
		}, PreOrderWalk))
		require.Equal(t, []string{"root", "left", "leaf", "right"}, order)
	})

	t.Run("post-order visits children first", func(t *testing.T) {
		var order []string
		require.NoError(t, g.Walk(root, func(n testNode) error {
			order = append(order, n.ID())
			return nil
		}, PostOrderWalk))
		require.Equal(t, []string{"leaf", "left", "right", "root"}, order)
	})
}

func TestEliminate(t *testing.T) {
	g, root, left, right, leaf := diamond(t)

	g.Eliminate(left)

	require.Equal(t, 3, g.Len())
	require.Equal(t, []testNode{right, leaf}, g.Children(root))
	require.Equal(t, []testNode{right, root}, g.Parents(leaf))
}

func TestInject(t *testing.T) {
	t.Run("between node and parents", func(t *testing.T) {
		g, root, left, _, leaf := diamond(t)

		mid := testNode("mid")
		require.NoError(t, g.Inject(leaf, mid))

		require.Equal(t, []testNode{mid}, g.Parents(leaf))
		require.ElementsMatch(t, g.Parents(mid), []testNode{left, testNode("right")})
		require.NotContains(t, g.Children(root), leaf)
	})

	t.Run("above a root", func(t *testing.T) {
		g, root, _, _, _ := diamond(t)

		top := testNode("top")
		require.NoError(t, g.Inject(root, top))

		require.Equal(t, []testNode{top}, g.Roots())
		require.Equal(t, []testNode{root}, g.Children(top))
	})

	t.Run("unknown node", func(t *testing.T) {
		g, _, _, _, _ := diamond(t)
		require.Error(t, g.Inject(testNode("ghost"), testNode("x")))
	})
}

func TestNodesIterator(t *testing.T) {
	g, _, _, _, _ := diamond(t)

	var ids []string
	for n := range g.Nodes() {
		ids = append(ids, n.ID())
	}
	require.Equal(t, []string{"root", "left", "right", "leaf"}, ids)
}
