package optimizer

import (
	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/internal/treenode"
	"github.com/floedb/floe/pkg/engine/logical"
)

// PushDownProjection prunes columns nobody consumes. A required-column
// analysis walks from the root towards the leaves, drops projection outputs
// no ancestor references, and narrows scan projections to the columns that
// remain. Afterwards no-op projections are removed and adjacent projections
// are merged when none of the upstream computed columns is referenced more
// than once, merging those would evaluate them repeatedly.
type PushDownProjection struct{}

var _ Rule = (*PushDownProjection)(nil)

// Name implements Rule.
func (r *PushDownProjection) Name() string { return "PushDownProjection" }

// Apply implements Rule.
func (r *PushDownProjection) Apply(plan logical.Plan) (logical.Plan, bool, error) {
	pruned, changed := r.prune(plan, columnSet(plan.Schema().ColumnNames()))

	out, err := treenode.TransformUp(pruned, r.simplifyProjections)
	if err != nil {
		return nil, false, err
	}
	return out.Data, changed || out.Changed, nil
}

// prune rewrites plan so it produces no columns outside required. The root
// call passes the full root schema, so pruning only ever narrows interior
// nodes.
func (r *PushDownProjection) prune(plan logical.Plan, required map[string]struct{}) (logical.Plan, bool) {
	switch node := plan.(type) {
	case *logical.Scan:
		return r.pruneScan(node, required)

	case *logical.Project:
		return r.pruneProject(node, required)

	case *logical.Filter:
		return r.pruneChild(node, union(required, expr.Columns(node.Predicate())))

	case *logical.Aggregate:
		needed := expr.Columns(node.GroupBy()...)
		needed = append(needed, expr.Columns(node.Aggregations()...)...)
		return r.pruneChild(node, columnSet(needed))

	case *logical.Sort:
		fields := make([]expr.Expr, len(node.Fields()))
		for i, f := range node.Fields() {
			fields[i] = f.Expr
		}
		return r.pruneChild(node, union(required, expr.Columns(fields...)))

	case *logical.Explode:
		return r.pruneChild(node, union(required, []string{node.Column()}))

	case *logical.Distinct:
		// Distinct compares whole rows, every input column stays required.
		return r.pruneChild(node, columnSet(node.Input().Schema().ColumnNames()))

	case *logical.Repartition:
		return r.pruneChild(node, union(required, node.Keys()))

	case *logical.Limit:
		return r.pruneChild(node, required)

	case *logical.Join:
		return r.pruneJoin(node, required)

	case *logical.Union:
		inputs := make([]logical.Plan, len(node.Inputs()))
		changed := false
		for i, in := range node.Inputs() {
			pruned, c := r.prune(in, required)
			inputs[i] = pruned
			changed = changed || c
		}
		if !changed {
			return node, false
		}
		rebuilt, err := logical.NewUnion(inputs)
		if err != nil {
			return node, false
		}
		return rebuilt, true
	}

	return plan, false
}

func (r *PushDownProjection) pruneScan(scan *logical.Scan, required map[string]struct{}) (logical.Plan, bool) {
	// The pushed-down predicate is evaluated by the scan itself, its
	// columns must survive the projection.
	if scan.Predicate() != nil {
		required = union(required, expr.Columns(scan.Predicate()))
	}

	needed := make([]string, 0, len(required))
	for _, name := range scan.Schema().ColumnNames() {
		if _, ok := required[name]; ok {
			needed = append(needed, name)
		}
	}
	// Keep at least one column so row counts survive.
	if len(needed) == 0 {
		needed = scan.Schema().ColumnNames()[:1]
	}
	if len(needed) == scan.Schema().Len() {
		return scan, false
	}
	narrowed, err := scan.WithProjection(needed)
	if err != nil {
		return scan, false
	}
	return narrowed, true
}

func (r *PushDownProjection) pruneProject(project *logical.Project, required map[string]struct{}) (logical.Plan, bool) {
	kept := make([]expr.Expr, 0, len(project.Exprs()))
	for i, e := range project.Exprs() {
		if _, ok := required[project.Schema().Columns[i].Name]; ok {
			kept = append(kept, e)
		}
	}
	// A projection feeding a consumer with no column needs still controls
	// the row count, keep one expression.
	if len(kept) == 0 {
		kept = project.Exprs()[:1]
	}

	child, childChanged := r.prune(project.Input(), columnSet(expr.Columns(kept...)))
	if !childChanged && len(kept) == len(project.Exprs()) {
		return project, false
	}
	rebuilt, err := logical.NewProject(child, kept)
	if err != nil {
		return project, false
	}
	return rebuilt, true
}

func (r *PushDownProjection) pruneJoin(join *logical.Join, required map[string]struct{}) (logical.Plan, bool) {
	leftRequired := intersect(required, join.Left().Schema().ColumnNames())
	rightRequired := intersect(required, join.Right().Schema().ColumnNames())
	leftRequired = union(leftRequired, join.LeftOn())
	rightRequired = union(rightRequired, join.RightOn())

	left, leftChanged := r.prune(join.Left(), leftRequired)
	right, rightChanged := r.prune(join.Right(), rightRequired)
	if !leftChanged && !rightChanged {
		return join, false
	}
	rebuilt, err := logical.NewJoin(left, right, join.Type(), join.LeftOn(), join.RightOn())
	if err != nil {
		return join, false
	}
	return rebuilt, true
}

func (r *PushDownProjection) pruneChild(node logical.Plan, required map[string]struct{}) (logical.Plan, bool) {
	child, changed := r.prune(node.Children()[0], required)
	if !changed {
		return node, false
	}
	rebuilt, err := node.WithChildren([]logical.Plan{child})
	if err != nil {
		return node, false
	}
	return rebuilt, true
}

func (r *PushDownProjection) simplifyProjections(plan logical.Plan) (treenode.Transformed[logical.Plan], error) {
	project, ok := plan.(*logical.Project)
	if !ok {
		return treenode.No(plan), nil
	}
	if project.IsNoOp() {
		return treenode.Yes(project.Input()), nil
	}
	if merged, ok := r.mergeProjects(project); ok {
		return treenode.Yes(merged), nil
	}
	return treenode.No(plan), nil
}

// mergeProjects collapses a projection directly over another projection into
// one, rewriting the outer expressions in terms of the inner inputs. The
// merge is skipped when an inner computed column is referenced more than
// once, inlining it would evaluate it per reference.
func (r *PushDownProjection) mergeProjects(outer *logical.Project) (logical.Plan, bool) {
	inner, ok := outer.Input().(*logical.Project)
	if !ok {
		return nil, false
	}

	replacements := make(map[string]expr.Expr, len(inner.Exprs()))
	computed := make(map[string]struct{})
	for i, e := range inner.Exprs() {
		name := inner.Schema().Columns[i].Name
		value := unalias(e)
		replacements[name] = value
		if _, bare := value.(*expr.ColumnExpr); !bare {
			computed[name] = struct{}{}
		}
	}

	counts := make(map[string]int)
	for _, e := range outer.Exprs() {
		countColumnRefs(e, counts)
	}
	for name := range computed {
		if counts[name] > 1 {
			return nil, false
		}
	}

	merged := make([]expr.Expr, len(outer.Exprs()))
	for i, e := range outer.Exprs() {
		sub, err := expr.Substitute(e, replacements)
		if err != nil {
			return nil, false
		}
		if name := outer.Schema().Columns[i].Name; renderedName(sub) != name {
			sub = expr.Alias(sub, name)
		}
		merged[i] = sub
	}
	rebuilt, err := logical.NewProject(inner.Input(), merged)
	if err != nil {
		return nil, false
	}
	return rebuilt, true
}

func countColumnRefs(e expr.Expr, counts map[string]int) {
	_ = treenode.Walk(e, func(e expr.Expr) (treenode.Recursion, error) {
		if col, ok := e.(*expr.ColumnExpr); ok {
			counts[col.Name]++
		}
		return treenode.Continue, nil
	})
}

// renderedName is the output column name an expression produces, the alias
// for aliased expressions and the rendering for everything else.
func renderedName(e expr.Expr) string {
	if alias, ok := e.(*expr.AliasExpr); ok {
		return alias.Name
	}
	return e.String()
}

func union(set map[string]struct{}, names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(set)+len(names))
	for name := range set {
		out[name] = struct{}{}
	}
	for _, name := range names {
		out[name] = struct{}{}
	}
	return out
}

func intersect(set map[string]struct{}, names []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, name := range names {
		if _, ok := set[name]; ok {
			out[name] = struct{}{}
		}
	}
	return out
}
