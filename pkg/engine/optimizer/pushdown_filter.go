package optimizer

import (
	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/internal/treenode"
	"github.com/floedb/floe/pkg/engine/logical"
)

// PushDownFilter moves filter predicates towards the scans. Predicates are
// split on AND so each conjunct travels independently: through projections
// (rewritten in terms of the projection inputs), below sorts, distincts,
// repartitions and explodes, into both sides of a union, into the matching
// side of a join, and below aggregations when they only touch group keys.
// Conjuncts reaching a scan become part of its pushdowns. Predicates are
// never pushed below limits, that would change which rows are kept.
type PushDownFilter struct{}

var _ Rule = (*PushDownFilter)(nil)

// Name implements Rule.
func (r *PushDownFilter) Name() string { return "PushDownFilter" }

// Apply implements Rule.
func (r *PushDownFilter) Apply(plan logical.Plan) (logical.Plan, bool, error) {
	out, err := treenode.TransformDown(plan, func(p logical.Plan) (treenode.Transformed[logical.Plan], error) {
		if f, ok := p.(*logical.Filter); ok {
			return r.pushFilter(f)
		}
		return treenode.No(p), nil
	})
	if err != nil {
		return nil, false, err
	}
	return out.Data, out.Changed, nil
}

func (r *PushDownFilter) pushFilter(f *logical.Filter) (treenode.Transformed[logical.Plan], error) {
	switch input := f.Input().(type) {
	case *logical.Filter:
		// Merge adjacent filters, then keep pushing the merged one.
		merged, err := logical.NewFilter(input.Input(), expr.And(input.Predicate(), f.Predicate()))
		if err != nil {
			return treenode.Transformed[logical.Plan]{}, err
		}
		pushed, err := r.pushFilter(merged)
		if err != nil {
			return treenode.Transformed[logical.Plan]{}, err
		}
		return treenode.Yes(pushed.Data), nil

	case *logical.Scan:
		scan := input
		for _, conjunct := range expr.SplitConjunction(f.Predicate()) {
			next, err := scan.WithPredicate(conjunct)
			if err != nil {
				return treenode.No[logical.Plan](f), nil
			}
			scan = next
		}
		return treenode.Yes[logical.Plan](scan), nil

	case *logical.Project:
		return r.pushBelowProject(f, input)

	case *logical.Sort, *logical.Distinct, *logical.Repartition:
		below, err := logical.NewFilter(input.Children()[0], f.Predicate())
		if err != nil {
			return treenode.No[logical.Plan](f), nil
		}
		swapped, err := input.WithChildren([]logical.Plan{below})
		if err != nil {
			return treenode.Transformed[logical.Plan]{}, err
		}
		return treenode.Yes(swapped), nil

	case *logical.Union:
		filtered := make([]logical.Plan, len(input.Inputs()))
		for i, in := range input.Inputs() {
			below, err := logical.NewFilter(in, f.Predicate())
			if err != nil {
				return treenode.No[logical.Plan](f), nil
			}
			filtered[i] = below
		}
		rebuilt, err := logical.NewUnion(filtered)
		if err != nil {
			return treenode.Transformed[logical.Plan]{}, err
		}
		return treenode.Yes[logical.Plan](rebuilt), nil

	case *logical.Explode:
		// Conjuncts over the exploded column see element values and must
		// stay above, the rest filters the pre-explode rows.
		exploded := columnSet([]string{input.Column()})
		pushable, kept := splitConjuncts(f.Predicate(), func(c expr.Expr) bool {
			return !refsAny(c, exploded)
		})
		return r.rebuildAround(f, input, pushable, kept)

	case *logical.Aggregate:
		keys := plainGroupKeys(input)
		pushable, kept := splitConjuncts(f.Predicate(), func(c expr.Expr) bool {
			return refsOnly(c, keys)
		})
		return r.rebuildAround(f, input, pushable, kept)

	case *logical.Join:
		return r.pushIntoJoin(f, input)
	}

	return treenode.No[logical.Plan](f), nil
}

// pushBelowProject rewrites the predicate in terms of the projection inputs
// and moves it below.
func (r *PushDownFilter) pushBelowProject(f *logical.Filter, project *logical.Project) (treenode.Transformed[logical.Plan], error) {
	replacements := make(map[string]expr.Expr, len(project.Exprs()))
	for i, e := range project.Exprs() {
		replacements[project.Schema().Columns[i].Name] = unalias(e)
	}
	substituted, err := expr.Substitute(f.Predicate(), replacements)
	if err != nil {
		return treenode.No[logical.Plan](f), nil
	}
	below, err := logical.NewFilter(project.Input(), substituted)
	if err != nil {
		return treenode.No[logical.Plan](f), nil
	}
	rebuilt, err := logical.NewProject(below, project.Exprs())
	if err != nil {
		return treenode.Transformed[logical.Plan]{}, err
	}
	return treenode.Yes[logical.Plan](rebuilt), nil
}

func (r *PushDownFilter) pushIntoJoin(f *logical.Filter, join *logical.Join) (treenode.Transformed[logical.Plan], error) {
	leftCols := columnSet(join.Left().Schema().ColumnNames())
	rightCols := columnSet(join.Right().Schema().ColumnNames())

	var leftPreds, rightPreds, kept []expr.Expr
	for _, conjunct := range expr.SplitConjunction(f.Predicate()) {
		switch {
		case refsOnly(conjunct, leftCols):
			leftPreds = append(leftPreds, conjunct)
		case refsOnly(conjunct, rightCols) && join.Type() == logical.JoinTypeInner:
			// Right-side predicates stay above a left join: filtering the
			// right side would NULL-extend rows instead of dropping them.
			rightPreds = append(rightPreds, conjunct)
		default:
			kept = append(kept, conjunct)
		}
	}
	if len(leftPreds) == 0 && len(rightPreds) == 0 {
		return treenode.No[logical.Plan](f), nil
	}

	left, right := join.Left(), join.Right()
	var err error
	if len(leftPreds) > 0 {
		left, err = logical.NewFilter(left, expr.Conjoin(leftPreds))
		if err != nil {
			return treenode.No[logical.Plan](f), nil
		}
	}
	if len(rightPreds) > 0 {
		right, err = logical.NewFilter(right, expr.Conjoin(rightPreds))
		if err != nil {
			return treenode.No[logical.Plan](f), nil
		}
	}
	rebuilt, err := logical.NewJoin(left, right, join.Type(), join.LeftOn(), join.RightOn())
	if err != nil {
		return treenode.Transformed[logical.Plan]{}, err
	}
	if len(kept) == 0 {
		return treenode.Yes[logical.Plan](rebuilt), nil
	}
	above, err := logical.NewFilter(rebuilt, expr.Conjoin(kept))
	if err != nil {
		return treenode.Transformed[logical.Plan]{}, err
	}
	return treenode.Yes[logical.Plan](above), nil
}

// rebuildAround pushes the pushable conjuncts below node, a single-input
// plan, and keeps the rest in a filter above it.
func (r *PushDownFilter) rebuildAround(f *logical.Filter, node logical.Plan, pushable, kept []expr.Expr) (treenode.Transformed[logical.Plan], error) {
	if len(pushable) == 0 {
		return treenode.No[logical.Plan](f), nil
	}
	below, err := logical.NewFilter(node.Children()[0], expr.Conjoin(pushable))
	if err != nil {
		return treenode.No[logical.Plan](f), nil
	}
	rebuilt, err := node.WithChildren([]logical.Plan{below})
	if err != nil {
		return treenode.Transformed[logical.Plan]{}, err
	}
	if len(kept) == 0 {
		return treenode.Yes(rebuilt), nil
	}
	above, err := logical.NewFilter(rebuilt, expr.Conjoin(kept))
	if err != nil {
		return treenode.Transformed[logical.Plan]{}, err
	}
	return treenode.Yes[logical.Plan](above), nil
}

// plainGroupKeys returns the group-by output columns that are bare column
// references, the only ones a predicate can safely move below the
// aggregation through. Aliased or computed keys are excluded since their
// output name does not exist on the aggregation input.
func plainGroupKeys(agg *logical.Aggregate) map[string]struct{} {
	keys := make(map[string]struct{})
	for _, g := range agg.GroupBy() {
		if col, ok := g.(*expr.ColumnExpr); ok {
			keys[col.Name] = struct{}{}
		}
	}
	return keys
}

func splitConjuncts(predicate expr.Expr, pushable func(expr.Expr) bool) (push, keep []expr.Expr) {
	for _, conjunct := range expr.SplitConjunction(predicate) {
		if pushable(conjunct) {
			push = append(push, conjunct)
		} else {
			keep = append(keep, conjunct)
		}
	}
	return push, keep
}

func unalias(e expr.Expr) expr.Expr {
	for {
		alias, ok := e.(*expr.AliasExpr)
		if !ok {
			return e
		}
		e = alias.Value
	}
}

func columnSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

// refsOnly reports whether every column e references is in allowed.
func refsOnly(e expr.Expr, allowed map[string]struct{}) bool {
	for _, name := range expr.Columns(e) {
		if _, ok := allowed[name]; !ok {
			return false
		}
	}
	return true
}

// refsAny reports whether e references any column in names.
func refsAny(e expr.Expr, names map[string]struct{}) bool {
	for _, name := range expr.Columns(e) {
		if _, ok := names[name]; ok {
			return true
		}
	}
	return false
}
