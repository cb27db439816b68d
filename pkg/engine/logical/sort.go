package logical

import (
	"fmt"
	"strings"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/schema"
	"github.com/floedb/floe/pkg/engine/types"
)

// SortField is a single sort key with its direction and NULL placement.
type SortField struct {
	Expr expr.Expr
	// Desc sorts in descending order.
	Desc bool
	// NullsFirst places NULLs before all values.
	NullsFirst bool
}

// String returns the field rendered as "expr ASC" or "expr DESC".
func (f SortField) String() string {
	direction := "ASC"
	if f.Desc {
		direction = "DESC"
	}
	if f.NullsFirst {
		return fmt.Sprintf("%s %s NULLS FIRST", f.Expr, direction)
	}
	return fmt.Sprintf("%s %s", f.Expr, direction)
}

// Compile-time check to ensure Sort implements Plan.
var _ Plan = (*Sort)(nil)

// Sort orders the input rows by the sort fields, comparing fields
// left-to-right.
type Sort struct {
	input  Plan
	fields []SortField
}

// NewSort creates a sort over input. Sort keys must bind to orderable types
// against the input schema.
func NewSort(input Plan, fields []SortField) (*Sort, error) {
	if len(fields) == 0 {
		return nil, planErr("Sort", "needs at least one sort field")
	}
	for _, f := range fields {
		if expr.HasAggregations(f.Expr) {
			return nil, planErr("Sort", "sort key %s contains an aggregate call", f.Expr)
		}
		field, err := f.Expr.ToField(input.Schema())
		if err != nil {
			return nil, &PlanError{Op: "Sort", Err: err}
		}
		switch field.Type.ID() {
		case types.TypeInt64, types.TypeFloat64, types.TypeString, types.TypeTimestamp, types.TypeBool:
		default:
			return nil, planErr("Sort", "sort key %s has unorderable type %s", f.Expr, field.Type)
		}
	}
	return &Sort{input: input, fields: fields}, nil
}

// Fields returns the sort fields.
func (s *Sort) Fields() []SortField { return s.fields }

// Input returns the sorted plan.
func (s *Sort) Input() Plan { return s.input }

func (*Sort) isPlan() {}

func (s *Sort) Schema() *schema.Schema { return s.input.Schema() }

func (s *Sort) Children() []Plan { return []Plan{s.input} }

func (s *Sort) WithChildren(children []Plan) (Plan, error) {
	if err := expectChildren("Sort", 1, len(children)); err != nil {
		return nil, err
	}
	return NewSort(children[0], s.fields)
}

func (s *Sort) String() string {
	rendered := make([]string, len(s.fields))
	for i, f := range s.fields {
		rendered[i] = f.String()
	}
	return fmt.Sprintf("Sort fields=(%s)", strings.Join(rendered, ", "))
}
