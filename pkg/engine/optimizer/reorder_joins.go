package optimizer

import (
	"math"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/internal/treenode"
	"github.com/floedb/floe/pkg/engine/logical"
)

// ReorderJoins picks the build side of inner joins from source statistics.
// The smaller estimated side moves to the right, which the physical hash
// join materializes, and a projection on top restores the original column
// order. Joins keep their declared order when either side has no estimate,
// and left joins are never reordered.
type ReorderJoins struct{}

var _ Rule = (*ReorderJoins)(nil)

// Name implements Rule.
func (r *ReorderJoins) Name() string { return "ReorderJoins" }

// Apply implements Rule.
func (r *ReorderJoins) Apply(plan logical.Plan) (logical.Plan, bool, error) {
	out, err := treenode.TransformUp(plan, func(p logical.Plan) (treenode.Transformed[logical.Plan], error) {
		join, ok := p.(*logical.Join)
		if !ok || join.Type() != logical.JoinTypeInner {
			return treenode.No(p), nil
		}
		return r.reorder(join)
	})
	if err != nil {
		return nil, false, err
	}
	return out.Data, out.Changed, nil
}

func (r *ReorderJoins) reorder(join *logical.Join) (treenode.Transformed[logical.Plan], error) {
	leftRows, ok := estimateRows(join.Left())
	if !ok {
		return treenode.No[logical.Plan](join), nil
	}
	rightRows, ok := estimateRows(join.Right())
	if !ok {
		return treenode.No[logical.Plan](join), nil
	}
	if leftRows >= rightRows {
		return treenode.No[logical.Plan](join), nil
	}

	swapped, err := logical.NewJoin(join.Right(), join.Left(), join.Type(), join.RightOn(), join.LeftOn())
	if err != nil {
		return treenode.No[logical.Plan](join), nil
	}

	// Swapping reorders the output columns, restore the original order.
	restore := make([]expr.Expr, 0, join.Schema().Len())
	for _, name := range join.Schema().ColumnNames() {
		restore = append(restore, expr.Col(name))
	}
	rebuilt, err := logical.NewProject(swapped, restore)
	if err != nil {
		return treenode.No[logical.Plan](join), nil
	}
	return treenode.Yes[logical.Plan](rebuilt), nil
}

// estimateRows returns an upper-bound row estimate for the plan, based on
// source statistics. The boolean reports whether an estimate exists.
func estimateRows(plan logical.Plan) (int64, bool) {
	switch node := plan.(type) {
	case *logical.Scan:
		stats, ok := node.Source().Stats()
		return stats.Rows, ok
	case *logical.Empty:
		return 0, true
	case *logical.Limit:
		rows, ok := estimateRows(node.Input())
		if !ok {
			return 0, false
		}
		if node.Fetch() > math.MaxInt64 {
			return rows, true
		}
		return min(rows, int64(node.Fetch())), true
	case *logical.Union:
		var total int64
		for _, in := range node.Inputs() {
			rows, ok := estimateRows(in)
			if !ok {
				return 0, false
			}
			total += rows
		}
		return total, true
	case *logical.Filter, *logical.Project, *logical.Sort, *logical.Distinct,
		*logical.Repartition, *logical.Aggregate:
		// Pass-through upper bounds, no selectivity model.
		return estimateRows(plan.Children()[0])
	}
	return 0, false
}
