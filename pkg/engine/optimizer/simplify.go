package optimizer

import (
	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/internal/treenode"
	"github.com/floedb/floe/pkg/engine/logical"
	"github.com/floedb/floe/pkg/engine/types"
)

// SimplifyExpressions folds constant subexpressions, removes filters with an
// always-true predicate, and replaces subtrees proven empty, such as filters
// with an always-false predicate or limits fetching zero rows, with [logical.Empty].
type SimplifyExpressions struct{}

var _ Rule = (*SimplifyExpressions)(nil)

// Name implements Rule.
func (r *SimplifyExpressions) Name() string { return "SimplifyExpressions" }

// Apply implements Rule.
func (r *SimplifyExpressions) Apply(plan logical.Plan) (logical.Plan, bool, error) {
	out, err := treenode.TransformUp(plan, r.simplifyNode)
	if err != nil {
		return nil, false, err
	}
	return out.Data, out.Changed, nil
}

func (r *SimplifyExpressions) simplifyNode(plan logical.Plan) (treenode.Transformed[logical.Plan], error) {
	switch node := plan.(type) {
	case *logical.Filter:
		return r.simplifyFilter(node)
	case *logical.Project:
		return r.simplifyProject(node)
	case *logical.Limit:
		if node.Fetch() == 0 || isEmpty(node.Input()) {
			return treenode.Yes[logical.Plan](logical.NewEmpty(node.Schema())), nil
		}
	case *logical.Sort, *logical.Distinct, *logical.Explode, *logical.Repartition:
		if isEmpty(plan.Children()[0]) {
			return treenode.Yes[logical.Plan](logical.NewEmpty(plan.Schema())), nil
		}
	case *logical.Aggregate:
		// A grouped aggregation of no rows yields no groups. A global
		// aggregation still yields its single row and is kept.
		if len(node.GroupBy()) > 0 && isEmpty(node.Input()) {
			return treenode.Yes[logical.Plan](logical.NewEmpty(node.Schema())), nil
		}
	case *logical.Join:
		return r.simplifyJoin(node)
	case *logical.Union:
		return r.simplifyUnion(node)
	}
	return treenode.No(plan), nil
}

func (r *SimplifyExpressions) simplifyFilter(node *logical.Filter) (treenode.Transformed[logical.Plan], error) {
	if isEmpty(node.Input()) {
		return treenode.Yes(node.Input()), nil
	}

	predicate, changed := foldExpr(node.Predicate())
	if lit, ok := expr.IsLiteral(predicate); ok {
		// An always-true predicate keeps every row, an always-false or
		// NULL predicate keeps none.
		if !lit.IsNull() && lit.Bool() {
			return treenode.Yes(node.Input()), nil
		}
		return treenode.Yes[logical.Plan](logical.NewEmpty(node.Schema())), nil
	}
	if !changed {
		return treenode.No[logical.Plan](node), nil
	}
	rebuilt, err := logical.NewFilter(node.Input(), predicate)
	if err != nil {
		return treenode.Transformed[logical.Plan]{}, err
	}
	return treenode.Yes[logical.Plan](rebuilt), nil
}

func (r *SimplifyExpressions) simplifyProject(node *logical.Project) (treenode.Transformed[logical.Plan], error) {
	if isEmpty(node.Input()) {
		return treenode.Yes[logical.Plan](logical.NewEmpty(node.Schema())), nil
	}

	exprs := node.Exprs()
	folded := make([]expr.Expr, len(exprs))
	changed := false
	for i, e := range exprs {
		f, c := foldExpr(e)
		folded[i] = f
		changed = changed || c
	}
	if !changed {
		return treenode.No[logical.Plan](node), nil
	}

	// Folding must not rename output columns, so aliased expressions keep
	// their alias and bare expressions keep their rendering as the name.
	for i, e := range exprs {
		if _, aliased := e.(*expr.AliasExpr); aliased {
			continue
		}
		if e.String() != folded[i].String() {
			folded[i] = expr.Alias(folded[i], e.String())
		}
	}
	rebuilt, err := logical.NewProject(node.Input(), folded)
	if err != nil {
		return treenode.Transformed[logical.Plan]{}, err
	}
	return treenode.Yes[logical.Plan](rebuilt), nil
}

func (r *SimplifyExpressions) simplifyJoin(node *logical.Join) (treenode.Transformed[logical.Plan], error) {
	switch node.Type() {
	case logical.JoinTypeInner:
		if isEmpty(node.Left()) || isEmpty(node.Right()) {
			return treenode.Yes[logical.Plan](logical.NewEmpty(node.Schema())), nil
		}
	case logical.JoinTypeLeft:
		// Only an empty left side empties a left join; an empty right
		// side still emits every left row NULL-extended.
		if isEmpty(node.Left()) {
			return treenode.Yes[logical.Plan](logical.NewEmpty(node.Schema())), nil
		}
	}
	return treenode.No[logical.Plan](node), nil
}

func (r *SimplifyExpressions) simplifyUnion(node *logical.Union) (treenode.Transformed[logical.Plan], error) {
	kept := make([]logical.Plan, 0, len(node.Inputs()))
	for _, in := range node.Inputs() {
		if !isEmpty(in) {
			kept = append(kept, in)
		}
	}
	switch {
	case len(kept) == len(node.Inputs()):
		return treenode.No[logical.Plan](node), nil
	case len(kept) == 0:
		return treenode.Yes[logical.Plan](logical.NewEmpty(node.Schema())), nil
	case len(kept) == 1:
		return treenode.Yes(kept[0]), nil
	default:
		rebuilt, err := logical.NewUnion(kept)
		if err != nil {
			return treenode.Transformed[logical.Plan]{}, err
		}
		return treenode.Yes[logical.Plan](rebuilt), nil
	}
}

func isEmpty(plan logical.Plan) bool {
	_, ok := plan.(*logical.Empty)
	return ok
}

// foldExpr replaces constant subexpressions of e with their value, bottom-up
// so folds cascade. Boolean operators with one literal side are shortened
// where sound, AND with a false side and OR with a true side fold to the
// literal, AND with a true side and OR with a false side fold to the other
// operand.
func foldExpr(e expr.Expr) (expr.Expr, bool) {
	out, err := treenode.TransformUp(e, func(e expr.Expr) (treenode.Transformed[expr.Expr], error) {
		switch e := e.(type) {
		case *expr.UnaryExpr:
			if lit, ok := expr.IsLiteral(e.Value); ok {
				if folded, ok := expr.FoldUnary(e.Op, lit); ok {
					return treenode.Yes[expr.Expr](expr.NewLiteral(folded)), nil
				}
			}
		case *expr.BinaryExpr:
			left, lok := expr.IsLiteral(e.Left)
			right, rok := expr.IsLiteral(e.Right)
			if lok && rok {
				if folded, ok := expr.FoldBinary(e.Op, left, right); ok {
					return treenode.Yes[expr.Expr](expr.NewLiteral(folded)), nil
				}
			}
			if e.Op.IsLogical() {
				if lok {
					if shortened, ok := shortCircuit(e.Op, left, e.Right); ok {
						return treenode.Yes(shortened), nil
					}
				}
				if rok {
					if shortened, ok := shortCircuit(e.Op, right, e.Left); ok {
						return treenode.Yes(shortened), nil
					}
				}
			}
		}
		return treenode.No(e), nil
	})
	if err != nil {
		// The transform fn never errors.
		return e, false
	}
	return out.Data, out.Changed
}

// shortCircuit resolves a logical operator with one known boolean side.
// other is returned unevaluated when the literal side is neutral.
func shortCircuit(op types.BinaryOp, lit types.Literal, other expr.Expr) (expr.Expr, bool) {
	if lit.IsNull() || lit.DataType().ID() != types.TypeBool {
		return nil, false
	}
	switch op {
	case types.BinaryOpAnd:
		if lit.Bool() {
			return other, true
		}
		return expr.Lit(false), true
	case types.BinaryOpOr:
		if lit.Bool() {
			return expr.Lit(true), true
		}
		return other, true
	}
	return nil, false
}
