package logical

import (
	"fmt"

	"github.com/floedb/floe/pkg/engine/schema"
	"github.com/floedb/floe/pkg/engine/types"
)

// Compile-time check to ensure Explode implements Plan.
var _ Plan = (*Explode)(nil)

// Explode emits one output row per element of a list column, repeating the
// other columns of the row. An empty or NULL list produces a single row with
// a NULL element.
type Explode struct {
	input  Plan
	column string
	schema *schema.Schema
}

// NewExplode creates an explode of the named list column of input. The output
// schema replaces the list column with its element type, marked nullable.
func NewExplode(input Plan, column string) (*Explode, error) {
	col, _, ok := input.Schema().Lookup(column)
	if !ok {
		return nil, planErr("Explode", "column %q not found in input", column)
	}
	list, ok := col.Type.(*types.ListType)
	if !ok {
		return nil, planErr("Explode", "column %q has type %s, expected a list", column, col.Type)
	}

	columns := make([]schema.Column, 0, input.Schema().Len())
	for _, c := range input.Schema().Columns {
		if c.Name == column {
			c = schema.Column{Name: c.Name, Type: list.Elem(), Nullable: true}
		}
		columns = append(columns, c)
	}
	out, err := schema.New(columns...)
	if err != nil {
		return nil, &PlanError{Op: "Explode", Err: err}
	}
	return &Explode{input: input, column: column, schema: out}, nil
}

// Column returns the name of the exploded list column.
func (e *Explode) Column() string { return e.column }

// Input returns the exploded plan.
func (e *Explode) Input() Plan { return e.input }

func (*Explode) isPlan() {}

func (e *Explode) Schema() *schema.Schema { return e.schema }

func (e *Explode) Children() []Plan { return []Plan{e.input} }

func (e *Explode) WithChildren(children []Plan) (Plan, error) {
	if err := expectChildren("Explode", 1, len(children)); err != nil {
		return nil, err
	}
	return NewExplode(children[0], e.column)
}

func (e *Explode) String() string {
	return fmt.Sprintf("Explode column=%s", e.column)
}
