package logical

import (
	"io"

	"github.com/floedb/floe/pkg/engine/internal/tree"
)

// BuildTree converts a plan and its children into a printable tree.
func BuildTree(p Plan) *tree.Node {
	root := toTreeNode(p)
	for _, child := range p.Children() {
		root.Children = append(root.Children, BuildTree(child))
	}
	return root
}

func toTreeNode(p Plan) *tree.Node {
	switch node := p.(type) {
	case *Scan:
		properties := []tree.Property{
			tree.NewProperty("source", false, node.Source().Name()),
		}
		if len(node.Projection()) > 0 {
			properties = append(properties, tree.NewProperty("projection", true, toAnySlice(node.Projection())...))
		}
		if node.Predicate() != nil {
			properties = append(properties, tree.NewProperty("predicate", false, node.Predicate().String()))
		}
		if node.Limit() > 0 {
			properties = append(properties, tree.NewProperty("limit", false, node.Limit()))
		}
		return tree.NewNode("Scan", properties...)
	case *Filter:
		return tree.NewNode("Filter", tree.NewProperty("predicate", false, node.Predicate().String()))
	case *Project:
		return tree.NewNode("Project", tree.NewProperty("expressions", true, exprStrings(node.Exprs())...))
	case *Aggregate:
		properties := make([]tree.Property, 0, 2)
		if len(node.GroupBy()) > 0 {
			properties = append(properties, tree.NewProperty("group_by", true, exprStrings(node.GroupBy())...))
		}
		properties = append(properties, tree.NewProperty("aggregations", true, exprStrings(node.Aggregations())...))
		return tree.NewNode("Aggregate", properties...)
	case *Join:
		return tree.NewNode("Join",
			tree.NewProperty("type", false, node.Type()),
			tree.NewProperty("left_on", true, toAnySlice(node.LeftOn())...),
			tree.NewProperty("right_on", true, toAnySlice(node.RightOn())...),
		)
	case *Sort:
		fields := make([]any, len(node.Fields()))
		for i, f := range node.Fields() {
			fields[i] = f.String()
		}
		return tree.NewNode("Sort", tree.NewProperty("fields", true, fields...))
	case *Limit:
		properties := make([]tree.Property, 0, 2)
		if node.Skip() > 0 {
			properties = append(properties, tree.NewProperty("skip", false, node.Skip()))
		}
		properties = append(properties, tree.NewProperty("fetch", false, node.Fetch()))
		return tree.NewNode("Limit", properties...)
	case *Explode:
		return tree.NewNode("Explode", tree.NewProperty("column", false, node.Column()))
	case *Distinct:
		return tree.NewNode("Distinct")
	case *Union:
		return tree.NewNode("Union")
	case *Repartition:
		properties := []tree.Property{
			tree.NewProperty("kind", false, node.Kind()),
		}
		if len(node.Keys()) > 0 {
			properties = append(properties, tree.NewProperty("keys", true, toAnySlice(node.Keys())...))
		}
		properties = append(properties, tree.NewProperty("partitions", false, node.Partitions()))
		return tree.NewNode("Repartition", properties...)
	case *Empty:
		return tree.NewNode("Empty")
	default:
		return tree.NewNode(p.String())
	}
}

func exprStrings[T interface{ String() string }](exprs []T) []any {
	ret := make([]any, len(exprs))
	for i := range exprs {
		ret[i] = exprs[i].String()
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

// PrintTree writes a human-readable tree representation of the plan to w.
func PrintTree(w io.Writer, p Plan) {
	printer := tree.NewPrinter(w)
	printer.Print(BuildTree(p))
}
