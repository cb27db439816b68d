package logical

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/floedb/floe/pkg/engine/expr"
)

func TestPrintTree(t *testing.T) {
	plan, err := From(testSource(t, "events")).
		Filter(expr.Gt(expr.Col("a"), expr.Lit(int64(5)))).
		Select(expr.Col("a"), expr.Col("b")).
		Limit(10).
		Plan()
	require.NoError(t, err)

	var sb strings.Builder
	PrintTree(&sb, plan)

	actual := "\n" + sb.String()
	t.Logf("Actual output:\n%s", actual)

	expected := `
Limit fetch=10
└── Project expressions=(a, b)
    └── Filter predicate=GT(a, 5)
        └── Scan source=events
`
	require.Equal(t, expected, actual)
}

func TestPrintTreeJoin(t *testing.T) {
	left, right := joinSources(t)
	plan, err := NewJoin(left, right, JoinTypeInner, []string{"k"}, []string{"k"})
	require.NoError(t, err)

	var sb strings.Builder
	PrintTree(&sb, plan)

	actual := "\n" + sb.String()
	t.Logf("Actual output:\n%s", actual)

	expected := `
Join type=INNER left_on=(k) right_on=(k)
├── Scan source=left
└── Scan source=right
`
	require.Equal(t, expected, actual)
}
