package physical

import (
	"fmt"
	"io"
	"strings"

	"github.com/floedb/floe/pkg/engine/internal/tree"
)

// BuildTree converts the subtree of the plan rooted at n into a printable
// tree structure.
func BuildTree(p *Plan, n Node) *tree.Node {
	return toTree(p, n, nil)
}

// BuildTreeWith is like [BuildTree] but invokes decorate for every visited
// node, allowing callers to attach extra properties or comments to the
// produced tree nodes.
func BuildTreeWith(p *Plan, n Node, decorate func(Node, *tree.Node)) *tree.Node {
	return toTree(p, n, decorate)
}

func toTree(p *Plan, n Node, decorate func(Node, *tree.Node)) *tree.Node {
	root := toTreeNode(n)
	if decorate != nil {
		decorate(n, root)
	}
	for _, child := range p.Children(n) {
		if ch := toTree(p, child, decorate); ch != nil {
			root.Children = append(root.Children, ch)
		}
	}
	return root
}

func toTreeNode(n Node) *tree.Node {
	treeNode := tree.NewNode(n.Type().String())
	switch node := n.(type) {
	case *Scan:
		treeNode.Properties = append(treeNode.Properties,
			tree.NewProperty("source", false, node.Source.Name()),
		)
		if node.Partition >= 0 {
			treeNode.Properties = append(treeNode.Properties,
				tree.NewProperty("partition", false, node.Partition),
			)
		}
		if len(node.Pushdowns.Columns) > 0 {
			treeNode.Properties = append(treeNode.Properties,
				tree.NewProperty("projection", true, toAnySlice(node.Pushdowns.Columns)...),
			)
		}
		if node.Pushdowns.Predicate != nil {
			treeNode.Properties = append(treeNode.Properties,
				tree.NewProperty("predicate", false, node.Pushdowns.Predicate.String()),
			)
		}
		if node.Pushdowns.Limit > 0 {
			treeNode.Properties = append(treeNode.Properties,
				tree.NewProperty("limit", false, node.Pushdowns.Limit),
			)
		}
	case *Filter:
		for i := range node.Predicates {
			treeNode.Properties = append(treeNode.Properties,
				tree.NewProperty(fmt.Sprintf("predicate[%d]", i), false, node.Predicates[i].String()),
			)
		}
	case *Projection:
		treeNode.Properties = append(treeNode.Properties,
			tree.NewProperty("expressions", true, exprStrings(node.Expressions)...),
		)
	case *Aggregate:
		treeNode.Properties = append(treeNode.Properties,
			tree.NewProperty("mode", false, node.Mode),
		)
		if len(node.GroupBy) > 0 {
			treeNode.Properties = append(treeNode.Properties,
				tree.NewProperty("group_by", true, exprStrings(node.GroupBy)...),
			)
		}
		treeNode.Properties = append(treeNode.Properties,
			tree.NewProperty("aggregations", true, exprStrings(node.Aggregations)...),
		)
	case *Join:
		treeNode.Properties = append(treeNode.Properties,
			tree.NewProperty("type", false, node.How),
			tree.NewProperty("left_on", true, toAnySlice(node.LeftOn)...),
			tree.NewProperty("right_on", true, toAnySlice(node.RightOn)...),
		)
	case *Sort:
		treeNode.Properties = append(treeNode.Properties,
			tree.NewProperty("fields", true, toAnySlice(node.Fields)...),
		)
	case *SortMerge:
		treeNode.Properties = append(treeNode.Properties,
			tree.NewProperty("fields", true, toAnySlice(node.Fields)...),
		)
	case *TopK:
		treeNode.Properties = append(treeNode.Properties,
			tree.NewProperty("fields", true, toAnySlice(node.Fields)...),
			tree.NewProperty("k", false, node.K),
		)
	case *Limit:
		if node.Skip > 0 {
			treeNode.Properties = append(treeNode.Properties,
				tree.NewProperty("skip", false, node.Skip),
			)
		}
		treeNode.Properties = append(treeNode.Properties,
			tree.NewProperty("fetch", false, node.Fetch),
		)
	case *Explode:
		treeNode.Properties = append(treeNode.Properties,
			tree.NewProperty("column", false, node.Column),
		)
	case *Exchange:
		treeNode.Properties = append(treeNode.Properties,
			tree.NewProperty("mode", false, node.Mode),
		)
		if len(node.Keys) > 0 {
			treeNode.Properties = append(treeNode.Properties,
				tree.NewProperty("keys", true, toAnySlice(node.Keys)...),
			)
		}
	}
	treeNode.Properties = append(treeNode.Properties,
		tree.NewProperty("partitioning", false, n.Partitioning()),
	)
	return treeNode
}

func exprStrings[T fmt.Stringer](items []T) []any {
	ret := make([]any, len(items))
	for i := range items {
		ret[i] = items[i].String()
	}
	return ret
}

func toAnySlice[T any](s []T) []any {
	ret := make([]any, len(s))
	for i := range s {
		ret[i] = s[i]
	}
	return ret
}

// PrintAsTree renders a physical [Plan] as a human-readable tree, one tree
// per root, joined by newlines.
func PrintAsTree(p *Plan) string {
	results := make([]string, 0, len(p.Roots()))

	for _, root := range p.Roots() {
		sb := &strings.Builder{}
		printer := tree.NewPrinter(sb)
		node := BuildTree(p, root)
		printer.Print(node)
		results = append(results, sb.String())
	}

	return strings.Join(results, "\n")
}

// WriteTree writes the tree representation of the plan to w.
func WriteTree(w io.Writer, p *Plan) {
	printer := tree.NewPrinter(w)
	for _, root := range p.Roots() {
		printer.Print(BuildTree(p, root))
	}
}
