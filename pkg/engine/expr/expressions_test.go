package expr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/floedb/floe/pkg/engine/schema"
	"github.com/floedb/floe/pkg/engine/types"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New(
		schema.Column{Name: "a", Type: types.Int64},
		schema.Column{Name: "b", Type: types.Float64, Nullable: true},
		schema.Column{Name: "s", Type: types.String},
		schema.Column{Name: "flag", Type: types.Bool},
		schema.Column{Name: "ts", Type: types.Timestamp},
	)
	require.NoError(t, err)
	return s
}

func TestToField(t *testing.T) {
	input := testSchema(t)

	tests := []struct {
		name     string
		expr     Expr
		wantName string
		wantType types.DataType
		wantErr  error
	}{
		{
			name:     "column reference",
			expr:     Col("a"),
			wantName: "a",
			wantType: types.Int64,
		},
		{
			name:    "unknown column",
			expr:    Col("missing"),
			wantErr: ErrUnknownColumn,
		},
		{
			name:     "literal",
			expr:     Lit(10),
			wantName: "10",
			wantType: types.Int64,
		},
		{
			name:     "comparison yields bool",
			expr:     Gt(Col("a"), Lit(5)),
			wantName: "GT(a, 5)",
			wantType: types.Bool,
		},
		{
			name:     "numeric promotion widens to float",
			expr:     Add(Col("a"), Col("b")),
			wantName: "ADD(a, b)",
			wantType: types.Float64,
		},
		{
			name:     "integer arithmetic stays integer",
			expr:     Mul(Col("a"), Lit(2)),
			wantType: types.Int64,
		},
		{
			name:    "string and numeric comparison rejected",
			expr:    Eq(Col("s"), Col("a")),
			wantErr: ErrTypeMismatch,
		},
		{
			name:    "arithmetic on strings rejected",
			expr:    Add(Col("s"), Lit(1)),
			wantErr: ErrTypeMismatch,
		},
		{
			name:    "logical over non-bool rejected",
			expr:    And(Col("flag"), Col("a")),
			wantErr: ErrTypeMismatch,
		},
		{
			name:     "not",
			expr:     Not(Col("flag")),
			wantType: types.Bool,
		},
		{
			name:     "is null is never nullable",
			expr:     IsNull(Col("b")),
			wantType: types.Bool,
		},
		{
			name:     "alias renames",
			expr:     Alias(Add(Col("a"), Lit(1)), "a_plus_one"),
			wantName: "a_plus_one",
			wantType: types.Int64,
		},
		{
			name:     "cast int to float",
			expr:     Cast(Col("a"), types.Float64),
			wantName: "a",
			wantType: types.Float64,
		},
		{
			name:    "cast bool to timestamp rejected",
			expr:    Cast(Col("flag"), types.Timestamp),
			wantErr: ErrTypeMismatch,
		},
		{
			name:     "sum keeps operand type",
			expr:     Sum(Col("a")),
			wantName: "sum(a)",
			wantType: types.Int64,
		},
		{
			name:     "avg is float",
			expr:     Avg(Col("a")),
			wantType: types.Float64,
		},
		{
			name:     "count star",
			expr:     CountAll(),
			wantName: "count(*)",
			wantType: types.Int64,
		},
		{
			name:     "min over timestamp",
			expr:     Min(Col("ts")),
			wantType: types.Timestamp,
		},
		{
			name:    "sum over string rejected",
			expr:    Sum(Col("s")),
			wantErr: ErrTypeMismatch,
		},
		{
			name:     "scalar function",
			expr:     Call("length", Col("s")),
			wantName: "length(s)",
			wantType: types.Int64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field, err := tt.expr.ToField(input)
			if tt.wantErr != nil {
				require.Error(t, err)
				require.ErrorIs(t, err, tt.wantErr)
				var typeErr *TypeError
				require.ErrorAs(t, err, &typeErr)
				return
			}
			require.NoError(t, err)
			if tt.wantName != "" {
				require.Equal(t, tt.wantName, field.Name)
			}
			require.True(t, field.Type.Equal(tt.wantType), "got %s, want %s", field.Type, tt.wantType)
		})
	}
}

func TestUnknownFunction(t *testing.T) {
	_, err := Call("sqrt", Col("a")).ToField(testSchema(t))
	require.ErrorContains(t, err, `unknown function "sqrt"`)
}

func TestCoalesce(t *testing.T) {
	input := testSchema(t)

	field, err := Call("coalesce", Col("b"), Lit(0.0)).ToField(input)
	require.NoError(t, err)
	require.True(t, field.Type.Equal(types.Float64))
	require.False(t, field.Nullable, "non-null fallback makes coalesce non-null")

	field, err = Call("coalesce", Col("b"), Col("a")).ToField(input)
	require.NoError(t, err)
	require.True(t, field.Type.Equal(types.Float64), "mixed numerics promote")

	_, err = Call("coalesce", Col("b"), Col("s")).ToField(input)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestBindErrorsSurfaceInnermostExpression(t *testing.T) {
	input := testSchema(t)

	_, err := And(Gt(Col("a"), Lit(5)), Eq(Col("nope"), Lit(1))).ToField(input)
	var typeErr *TypeError
	require.ErrorAs(t, err, &typeErr)
	require.True(t, errors.Is(err, ErrUnknownColumn))
	require.Equal(t, "nope", typeErr.Expr.(*ColumnExpr).Name)
}

func TestWithChildrenRebuilds(t *testing.T) {
	e := Gt(Col("a"), Lit(5))

	rebuilt, err := e.WithChildren([]Expr{Col("c"), Lit(7)})
	require.NoError(t, err)
	require.Equal(t, "GT(c, 7)", rebuilt.String())
	require.Equal(t, "GT(a, 5)", e.String(), "original is unchanged")

	_, err = e.WithChildren([]Expr{Col("c")})
	require.Error(t, err)
}

func TestEqualAndHash(t *testing.T) {
	a := And(Gt(Col("a"), Lit(5)), Eq(Col("s"), Lit("x")))
	b := And(Gt(Col("a"), Lit(5)), Eq(Col("s"), Lit("x")))
	c := And(Gt(Col("a"), Lit(6)), Eq(Col("s"), Lit("x")))

	require.True(t, Equal(a, b))
	require.False(t, Equal(a, c))
	require.Equal(t, Hash(a), Hash(b))
	require.NotEqual(t, Hash(a), Hash(c))

	require.False(t, Equal(Col("a"), Lit(1)))
	require.False(t, Equal(Alias(Col("a"), "x"), Alias(Col("a"), "y")))
	require.True(t, Equal(CountAll(), CountAll()))
	require.False(t, Equal(CountAll(), Count(Col("a"))))
}

func TestColumns(t *testing.T) {
	e := And(Gt(Col("a"), Lit(5)), Or(Eq(Col("b"), Col("a")), IsNull(Col("c"))))
	require.Equal(t, []string{"a", "b", "c"}, Columns(e))
	require.Empty(t, Columns(Lit(1)))
	require.Equal(t, []string{"x", "y"}, Columns(Col("x"), Col("y"), Col("x")))
}

func TestSubstitute(t *testing.T) {
	e := Gt(Col("computed"), Lit(5))

	replaced, err := Substitute(e, map[string]Expr{"computed": Add(Col("a"), Col("b"))})
	require.NoError(t, err)
	require.Equal(t, "GT(ADD(a, b), 5)", replaced.String())
	require.Equal(t, "GT(computed, 5)", e.String(), "original is unchanged")

	same, err := Substitute(e, map[string]Expr{"other": Lit(1)})
	require.NoError(t, err)
	require.True(t, Equal(e, same))
}

func TestSplitAndConjoin(t *testing.T) {
	a, b, c := Gt(Col("a"), Lit(1)), Lt(Col("a"), Lit(10)), Eq(Col("s"), Lit("x"))

	conjuncts := SplitConjunction(And(And(a, b), c))
	require.Len(t, conjuncts, 3)
	require.True(t, Equal(conjuncts[0], a))
	require.True(t, Equal(conjuncts[1], b))
	require.True(t, Equal(conjuncts[2], c))

	require.Nil(t, Conjoin(nil))
	require.True(t, Equal(Conjoin([]Expr{a}), a))
	joined := Conjoin([]Expr{a, b, c})
	require.True(t, Equal(joined, And(And(a, b), c)))
}

func TestHasAggregations(t *testing.T) {
	require.True(t, HasAggregations(Add(Sum(Col("a")), Lit(1))))
	require.False(t, HasAggregations(Add(Col("a"), Lit(1))))
}
