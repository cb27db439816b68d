package physical

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/logical"
)

func TestPrintAsTree(t *testing.T) {
	df := logical.From(testSource(t, "events", 1)).
		Filter(expr.Gt(expr.Col("a"), expr.Lit(int64(5)))).
		Select(expr.Col("a"), expr.Col("b")).
		Limit(10)
	plan := build(t, Config{}, df)

	actual := "\n" + PrintAsTree(plan)
	t.Logf("Actual output:\n%s", actual)

	expected := `
Limit fetch=10 partitioning=single
└── Projection expressions=(a, b) partitioning=single
    └── Filter predicate[0]=GT(a, 5) partitioning=single
        └── Scan source=events partitioning=single
`
	require.Equal(t, expected, actual)
}

func TestPrintAsTreeSort(t *testing.T) {
	df := logical.From(testSource(t, "events", 3)).
		Sort(logical.SortField{Expr: expr.Col("a")})
	plan := build(t, Config{}, df)

	actual := "\n" + PrintAsTree(plan)
	t.Logf("Actual output:\n%s", actual)

	expected := `
SortMerge fields=(a ASC) partitioning=single
└── Exchange mode=single partitioning=single
    └── Sort fields=(a ASC) partitioning=unpartitioned(3)
        └── Scan source=events partitioning=unpartitioned(3)
`
	require.Equal(t, expected, actual)
}

func TestPrintAsTreeTopK(t *testing.T) {
	df := logical.From(testSource(t, "events", 3)).
		Sort(logical.SortField{Expr: expr.Col("a"), Desc: true}).
		Limit(10)
	plan := build(t, Config{}, df)

	actual := "\n" + PrintAsTree(plan)
	t.Logf("Actual output:\n%s", actual)

	expected := `
Limit fetch=10 partitioning=single
└── SortMerge fields=(a DESC) partitioning=single
    └── Exchange mode=single partitioning=single
        └── TopK fields=(a DESC) k=10 partitioning=unpartitioned(3)
            └── Scan source=events partitioning=unpartitioned(3)
`
	require.Equal(t, expected, actual)
}

func TestPrintAsTreeAggregate(t *testing.T) {
	df := logical.From(testSource(t, "events", 3)).
		Aggregate(
			[]expr.Expr{expr.Col("b")},
			[]expr.Expr{expr.Alias(expr.Sum(expr.Col("a")), "total")},
		)
	plan := build(t, Config{}, df)

	actual := "\n" + PrintAsTree(plan)
	t.Logf("Actual output:\n%s", actual)

	expected := `
Merge partitioning=single
└── Exchange mode=single partitioning=single
    └── Aggregate mode=final group_by=(b) aggregations=(sum(a) AS total) partitioning=hash(b; 3)
        └── Exchange mode=hash keys=(b) partitioning=hash(b; 3)
            └── Aggregate mode=partial group_by=(b) aggregations=(sum(a) AS total) partitioning=unpartitioned(3)
                └── Scan source=events partitioning=unpartitioned(3)
`
	require.Equal(t, expected, actual)
}
