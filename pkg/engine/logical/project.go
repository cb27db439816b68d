package logical

import (
	"fmt"
	"strings"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/schema"
)

// Compile-time check to ensure Project implements Plan.
var _ Plan = (*Project)(nil)

// Project computes one output column per expression. Output columns are
// named after the expressions; use [expr.Alias] to control names.
type Project struct {
	input  Plan
	exprs  []expr.Expr
	schema *schema.Schema
}

// NewProject creates a projection over input. Expressions must bind against
// the input schema, must not contain aggregate calls, and must produce
// uniquely named columns.
func NewProject(input Plan, exprs []expr.Expr) (*Project, error) {
	if len(exprs) == 0 {
		return nil, planErr("Project", "needs at least one expression")
	}

	columns := make([]schema.Column, 0, len(exprs))
	for _, e := range exprs {
		if expr.HasAggregations(e) {
			return nil, planErr("Project", "expression %s contains an aggregate call, use Aggregate", e)
		}
		field, err := e.ToField(input.Schema())
		if err != nil {
			return nil, &PlanError{Op: "Project", Err: err}
		}
		columns = append(columns, field)
	}
	derived, err := schema.New(columns...)
	if err != nil {
		return nil, &PlanError{Op: "Project", Err: err}
	}
	return &Project{input: input, exprs: exprs, schema: derived}, nil
}

// Exprs returns the projection expressions.
func (p *Project) Exprs() []expr.Expr { return p.exprs }

// Input returns the projected plan.
func (p *Project) Input() Plan { return p.input }

// IsNoOp reports whether the projection returns exactly the input schema
// columns in order.
func (p *Project) IsNoOp() bool {
	input := p.input.Schema()
	if len(p.exprs) != input.Len() {
		return false
	}
	for i, e := range p.exprs {
		col, ok := e.(*expr.ColumnExpr)
		if !ok || col.Name != input.Columns[i].Name {
			return false
		}
	}
	return true
}

func (*Project) isPlan() {}

func (p *Project) Schema() *schema.Schema { return p.schema }

func (p *Project) Children() []Plan { return []Plan{p.input} }

func (p *Project) WithChildren(children []Plan) (Plan, error) {
	if err := expectChildren("Project", 1, len(children)); err != nil {
		return nil, err
	}
	return NewProject(children[0], p.exprs)
}

func (p *Project) String() string {
	rendered := make([]string, len(p.exprs))
	for i, e := range p.exprs {
		rendered[i] = e.String()
	}
	return fmt.Sprintf("Project exprs=(%s)", strings.Join(rendered, ", "))
}
