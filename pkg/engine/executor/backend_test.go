package executor

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/logical"
	"github.com/floedb/floe/pkg/engine/physical"
	"github.com/floedb/floe/pkg/engine/scheduler"
	"github.com/floedb/floe/pkg/engine/schema"
	"github.com/floedb/floe/pkg/engine/source"
	"github.com/floedb/floe/pkg/engine/types"
	"github.com/floedb/floe/pkg/util/arrowtest"
)

// checkedAllocator returns an allocator that asserts no memory is leaked.
// The assertion runs as the last cleanup, after test records are released.
func checkedAllocator(t *testing.T) *memory.CheckedAllocator {
	t.Helper()
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	t.Cleanup(func() { alloc.AssertSize(t, 0) })
	return alloc
}

// makeSource builds an in-memory source with one partition per element of
// parts. Each partition may hold several batches; all batches share the
// schema inferred from the first one.
func makeSource(t *testing.T, alloc memory.Allocator, name string, parts ...[]arrowtest.Rows) *source.MemorySource {
	t.Helper()
	require.NotEmpty(t, parts)
	require.NotEmpty(t, parts[0])
	return makeSourceSchema(t, alloc, name, parts[0][0].Schema(), parts...)
}

func makeSourceSchema(t *testing.T, alloc memory.Allocator, name string, arrowSchema *arrow.Schema, parts ...[]arrowtest.Rows) *source.MemorySource {
	t.Helper()

	s, err := schema.FromArrow(arrowSchema)
	require.NoError(t, err)

	partitions := make([][]arrow.Record, len(parts))
	for i, batches := range parts {
		for _, rows := range batches {
			record := rows.Record(alloc, arrowSchema)
			t.Cleanup(record.Release)
			partitions[i] = append(partitions[i], record)
		}
	}
	src, err := source.NewMemorySource(name, s, partitions)
	require.NoError(t, err)
	return src
}

// runQuery lowers the logical plan, schedules it on a local backend, and
// reads the result to completion.
func runQuery(t *testing.T, alloc memory.Allocator, opts Options, lp logical.Plan) (arrowtest.Rows, error) {
	t.Helper()

	plan, err := physical.NewPlanner(physical.Config{}).Build(lp)
	require.NoError(t, err)

	backend := NewLocalBackend(opts, log.NewNopLogger(), alloc)
	sched, err := scheduler.New(scheduler.Options{}, log.NewNopLogger(), backend, plan)
	require.NoError(t, err)

	pipeline, err := sched.Run(context.Background())
	require.NoError(t, err)
	defer pipeline.Close()

	var out arrowtest.Rows
	for {
		record, err := pipeline.Read(context.Background())
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		rows, rowsErr := arrowtest.RecordRows(record)
		record.Release()
		require.NoError(t, rowsErr)
		out = append(out, rows...)
	}
}

func TestLocalBackend_Filter(t *testing.T) {
	alloc := checkedAllocator(t)

	src := makeSource(t, alloc, "events", []arrowtest.Rows{{
		{"a": int64(3), "b": "x"},
		{"a": int64(7), "b": "y"},
		{"a": nil, "b": "z"},
		{"a": int64(9), "b": "w"},
	}})

	lp, err := logical.From(src).
		Filter(expr.Gt(expr.Col("a"), expr.Lit(int64(5)))).
		Plan()
	require.NoError(t, err)

	got, err := runQuery(t, alloc, Options{}, lp)
	require.NoError(t, err)
	require.Equal(t, arrowtest.Rows{
		{"a": int64(7), "b": "y"},
		{"a": int64(9), "b": "w"},
	}, got)
}

func TestLocalBackend_Project(t *testing.T) {
	alloc := checkedAllocator(t)

	src := makeSource(t, alloc, "events", []arrowtest.Rows{{
		{"a": int64(1), "b": int64(10)},
		{"a": int64(2), "b": int64(20)},
	}})

	lp, err := logical.From(src).
		Select(
			expr.Col("a"),
			expr.Alias(expr.Add(expr.Col("a"), expr.Col("b")), "total"),
		).
		Plan()
	require.NoError(t, err)

	got, err := runQuery(t, alloc, Options{}, lp)
	require.NoError(t, err)
	require.Equal(t, arrowtest.Rows{
		{"a": int64(1), "total": int64(11)},
		{"a": int64(2), "total": int64(22)},
	}, got)
}

func TestLocalBackend_ProjectZeroDivision(t *testing.T) {
	alloc := checkedAllocator(t)

	rows := []arrowtest.Rows{{
		{"a": int64(6), "b": int64(2)},
		{"a": int64(5), "b": int64(0)},
	}}

	build := func(src *source.MemorySource) logical.Plan {
		lp, err := logical.From(src).
			Select(expr.Alias(expr.Div(expr.Col("a"), expr.Col("b")), "q")).
			Plan()
		require.NoError(t, err)
		return lp
	}

	t.Run("strict policy fails the query", func(t *testing.T) {
		src := makeSource(t, alloc, "strict", rows)
		_, err := runQuery(t, alloc, Options{}, build(src))
		require.ErrorIs(t, err, ErrDivisionByZero)
	})

	t.Run("null policy keeps the remaining rows", func(t *testing.T) {
		src := makeSource(t, alloc, "lenient", rows)
		got, err := runQuery(t, alloc, Options{ZeroDivision: ZeroDivisionNull}, build(src))
		require.NoError(t, err)
		require.Equal(t, arrowtest.Rows{
			{"q": int64(3)},
			{"q": nil},
		}, got)
	})
}

func TestLocalBackend_Limit(t *testing.T) {
	alloc := checkedAllocator(t)

	// Three batches in one partition; skip and fetch both cross batch
	// boundaries.
	batch := func(from, to int64) arrowtest.Rows {
		rows := make(arrowtest.Rows, 0, to-from)
		for v := from; v < to; v++ {
			rows = append(rows, arrowtest.Row{"v": v})
		}
		return rows
	}
	src := makeSource(t, alloc, "numbers", []arrowtest.Rows{
		batch(0, 4), batch(4, 8), batch(8, 12),
	})

	lp, err := logical.From(src).Offset(2, 5).Plan()
	require.NoError(t, err)

	got, err := runQuery(t, alloc, Options{}, lp)
	require.NoError(t, err)
	require.Equal(t, arrowtest.Rows{
		{"v": int64(2)}, {"v": int64(3)}, {"v": int64(4)}, {"v": int64(5)}, {"v": int64(6)},
	}, got)

	t.Run("zero fetch yields no rows", func(t *testing.T) {
		lp, err := logical.From(src).Limit(0).Plan()
		require.NoError(t, err)

		got, err := runQuery(t, alloc, Options{}, lp)
		require.NoError(t, err)
		require.Empty(t, got)
	})
}

func TestLocalBackend_LimitAcrossPartitions(t *testing.T) {
	alloc := checkedAllocator(t)

	partition := func(base int64) []arrowtest.Rows {
		rows := make(arrowtest.Rows, 0, 100)
		for v := int64(0); v < 100; v++ {
			rows = append(rows, arrowtest.Row{"a": base + v, "b": base - v})
		}
		return []arrowtest.Rows{rows}
	}
	src := makeSource(t, alloc, "wide", partition(0), partition(1000), partition(2000))

	lp, err := logical.From(src).
		Filter(expr.Gt(expr.Col("a"), expr.Lit(int64(5)))).
		Select(expr.Col("a"), expr.Col("b")).
		Limit(10).
		Plan()
	require.NoError(t, err)

	got, err := runQuery(t, alloc, Options{}, lp)
	require.NoError(t, err)

	// Which rows arrive first depends on partition interleaving; the count
	// and the predicate do not.
	require.Len(t, got, 10)
	for _, row := range got {
		require.Greater(t, row["a"].(int64), int64(5))
	}
}

func TestLocalBackend_ScanPushdowns(t *testing.T) {
	alloc := checkedAllocator(t)

	partition := func(vals ...int64) []arrowtest.Rows {
		rows := make(arrowtest.Rows, 0, len(vals))
		for _, v := range vals {
			rows = append(rows, arrowtest.Row{"a": v, "b": v * 10})
		}
		return []arrowtest.Rows{rows}
	}
	src := makeSource(t, alloc, "events", partition(1, 2, 3, 4), partition(5, 6, 7, 8))

	// The scan enforces all three pushdowns itself: project to a, keep odd
	// values, then at most one row per partition.
	scan, err := logical.NewScan(src, []string{"a"})
	require.NoError(t, err)
	scan, err = scan.WithPredicate(expr.Eq(expr.Mod(expr.Col("a"), expr.Lit(int64(2))), expr.Lit(int64(1))))
	require.NoError(t, err)
	scan = scan.WithLimit(1)

	lp, err := logical.NewDataFrame(scan).Plan()
	require.NoError(t, err)

	got, err := runQuery(t, alloc, Options{}, lp)
	require.NoError(t, err)
	require.ElementsMatch(t, arrowtest.Rows{
		{"a": int64(1)},
		{"a": int64(5)},
	}, got)
}

func TestLocalBackend_Distinct(t *testing.T) {
	alloc := checkedAllocator(t)

	t.Run("single partition", func(t *testing.T) {
		src := makeSource(t, alloc, "dupes", []arrowtest.Rows{
			{
				{"k": "a", "v": int64(1)},
				{"k": "a", "v": int64(1)},
				{"k": "b", "v": int64(2)},
			},
			{
				// Duplicates spanning batches collapse too.
				{"k": "a", "v": int64(1)},
				{"k": "b", "v": int64(3)},
			},
		})

		lp, err := logical.From(src).Distinct().Plan()
		require.NoError(t, err)

		got, err := runQuery(t, alloc, Options{}, lp)
		require.NoError(t, err)
		require.Equal(t, arrowtest.Rows{
			{"k": "a", "v": int64(1)},
			{"k": "b", "v": int64(2)},
			{"k": "b", "v": int64(3)},
		}, got)
	})

	t.Run("across partitions", func(t *testing.T) {
		src := makeSource(t, alloc, "dupes",
			[]arrowtest.Rows{{
				{"k": "a", "v": int64(1)},
				{"k": "b", "v": int64(2)},
			}},
			[]arrowtest.Rows{{
				{"k": "a", "v": int64(1)},
				{"k": "c", "v": int64(3)},
			}},
		)

		lp, err := logical.From(src).Distinct().Plan()
		require.NoError(t, err)

		got, err := runQuery(t, alloc, Options{}, lp)
		require.NoError(t, err)
		require.ElementsMatch(t, arrowtest.Rows{
			{"k": "a", "v": int64(1)},
			{"k": "b", "v": int64(2)},
			{"k": "c", "v": int64(3)},
		}, got)
	})

	t.Run("null and zero are distinct", func(t *testing.T) {
		src := makeSource(t, alloc, "nullable", []arrowtest.Rows{{
			{"v": int64(0)},
			{"v": nil},
			{"v": int64(0)},
			{"v": nil},
		}})

		lp, err := logical.From(src).Distinct().Plan()
		require.NoError(t, err)

		got, err := runQuery(t, alloc, Options{}, lp)
		require.NoError(t, err)
		require.Equal(t, arrowtest.Rows{
			{"v": int64(0)},
			{"v": nil},
		}, got)
	})
}

func TestLocalBackend_Explode(t *testing.T) {
	alloc := checkedAllocator(t)

	arrowSchema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "tags", Type: arrow.ListOf(arrow.PrimitiveTypes.Int64), Nullable: true},
	}, nil)

	src := makeSourceSchema(t, alloc, "nested", arrowSchema, []arrowtest.Rows{{
		{"id": int64(1), "tags": []any{int64(10), int64(11)}},
		{"id": int64(2), "tags": []any{}},
		{"id": int64(3), "tags": nil},
		{"id": int64(4), "tags": []any{int64(40)}},
	}})

	lp, err := logical.From(src).Explode("tags").Plan()
	require.NoError(t, err)

	got, err := runQuery(t, alloc, Options{}, lp)
	require.NoError(t, err)
	require.Equal(t, arrowtest.Rows{
		{"id": int64(1), "tags": int64(10)},
		{"id": int64(1), "tags": int64(11)},
		{"id": int64(2), "tags": nil},
		{"id": int64(3), "tags": nil},
		{"id": int64(4), "tags": int64(40)},
	}, got)
}

func TestLocalBackend_Union(t *testing.T) {
	alloc := checkedAllocator(t)

	left := makeSource(t, alloc, "left", []arrowtest.Rows{{
		{"v": int64(1)}, {"v": int64(2)},
	}})
	right := makeSource(t, alloc, "right", []arrowtest.Rows{{
		{"v": int64(3)},
	}})

	lp, err := logical.From(left).Union(logical.From(right)).Plan()
	require.NoError(t, err)

	got, err := runQuery(t, alloc, Options{}, lp)
	require.NoError(t, err)
	require.ElementsMatch(t, arrowtest.Rows{
		{"v": int64(1)}, {"v": int64(2)}, {"v": int64(3)},
	}, got)
}

func TestLocalBackend_GlobalAggregate(t *testing.T) {
	alloc := checkedAllocator(t)

	src := makeSource(t, alloc, "values", []arrowtest.Rows{{
		{"v": int64(4)},
		{"v": int64(2)},
		{"v": nil},
		{"v": int64(6)},
	}})

	lp, err := logical.From(src).
		Aggregate(nil, []expr.Expr{
			expr.CountAll(),
			expr.Count(expr.Col("v")),
			expr.Sum(expr.Col("v")),
			expr.Avg(expr.Col("v")),
			expr.Min(expr.Col("v")),
			expr.Max(expr.Col("v")),
		}).
		Plan()
	require.NoError(t, err)

	got, err := runQuery(t, alloc, Options{}, lp)
	require.NoError(t, err)
	require.Equal(t, arrowtest.Rows{{
		"count(*)": int64(4),
		"count(v)": int64(3),
		"sum(v)":   int64(12),
		"avg(v)":   4.0,
		"min(v)":   int64(2),
		"max(v)":   int64(6),
	}}, got)
}

func TestLocalBackend_GlobalAggregateEmptyInput(t *testing.T) {
	alloc := checkedAllocator(t)

	s, err := schema.New(schema.Column{Name: "v", Type: types.Int64, Nullable: true})
	require.NoError(t, err)
	src, err := source.NewMemorySource("empty", s, [][]arrow.Record{{}})
	require.NoError(t, err)

	lp, err := logical.From(src).
		Aggregate(nil, []expr.Expr{
			expr.CountAll(),
			expr.Sum(expr.Col("v")),
			expr.Min(expr.Col("v")),
		}).
		Plan()
	require.NoError(t, err)

	got, err := runQuery(t, alloc, Options{}, lp)
	require.NoError(t, err)
	require.Equal(t, arrowtest.Rows{{
		"count(*)": int64(0),
		"sum(v)":   nil,
		"min(v)":   nil,
	}}, got)
}

func TestLocalBackend_GroupedAggregate(t *testing.T) {
	alloc := checkedAllocator(t)

	// Two partitions force a partial stage per partition, a hash exchange
	// on the group key, and a final stage merging the partial states.
	src := makeSource(t, alloc, "sales",
		[]arrowtest.Rows{{
			{"region": "eu", "amount": int64(10)},
			{"region": "us", "amount": int64(5)},
			{"region": "eu", "amount": int64(20)},
		}},
		[]arrowtest.Rows{{
			{"region": "us", "amount": int64(15)},
			{"region": "eu", "amount": int64(30)},
			{"region": "ap", "amount": nil},
		}},
	)

	lp, err := logical.From(src).
		Aggregate(
			[]expr.Expr{expr.Col("region")},
			[]expr.Expr{
				expr.Alias(expr.Sum(expr.Col("amount")), "total"),
				expr.Alias(expr.Avg(expr.Col("amount")), "mean"),
				expr.CountAll(),
			},
		).
		Plan()
	require.NoError(t, err)

	got, err := runQuery(t, alloc, Options{}, lp)
	require.NoError(t, err)
	require.ElementsMatch(t, arrowtest.Rows{
		{"region": "eu", "total": int64(60), "mean": 20.0, "count(*)": int64(3)},
		{"region": "us", "total": int64(20), "mean": 10.0, "count(*)": int64(2)},
		{"region": "ap", "total": nil, "mean": nil, "count(*)": int64(1)},
	}, got)
}

func TestLocalBackend_GroupedAggregateEmptyInput(t *testing.T) {
	alloc := checkedAllocator(t)

	src := makeSource(t, alloc, "sales", []arrowtest.Rows{{
		{"region": "eu", "amount": int64(10)},
	}})

	// Grouping an input filtered down to nothing yields no groups.
	lp, err := logical.From(src).
		Filter(expr.Gt(expr.Col("amount"), expr.Lit(int64(100)))).
		Aggregate(
			[]expr.Expr{expr.Col("region")},
			[]expr.Expr{expr.Sum(expr.Col("amount"))},
		).
		Plan()
	require.NoError(t, err)

	got, err := runQuery(t, alloc, Options{}, lp)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestLocalBackend_InnerJoin(t *testing.T) {
	alloc := checkedAllocator(t)

	users := makeSource(t, alloc, "users", []arrowtest.Rows{{
		{"id": int64(1), "name": "ada"},
		{"id": int64(2), "name": "bob"},
		{"id": nil, "name": "ghost"},
		{"id": int64(4), "name": "dan"},
	}})
	orders := makeSource(t, alloc, "orders", []arrowtest.Rows{{
		{"id": int64(1), "item": "keyboard"},
		{"id": int64(2), "item": "mouse"},
		{"id": int64(1), "item": "monitor"},
		{"id": nil, "item": "lost"},
		{"id": int64(9), "item": "unmatched"},
	}})

	lp, err := logical.From(users).
		Join(logical.From(orders), logical.JoinTypeInner, []string{"id"}, []string{"id"}).
		Plan()
	require.NoError(t, err)

	// Key columns with equal names merge into one output column; NULL keys
	// never match.
	got, err := runQuery(t, alloc, Options{}, lp)
	require.NoError(t, err)
	require.Equal(t, arrowtest.Rows{
		{"id": int64(1), "name": "ada", "item": "keyboard"},
		{"id": int64(1), "name": "ada", "item": "monitor"},
		{"id": int64(2), "name": "bob", "item": "mouse"},
	}, got)
}

func TestLocalBackend_LeftJoin(t *testing.T) {
	alloc := checkedAllocator(t)

	users := makeSource(t, alloc, "users", []arrowtest.Rows{{
		{"id": int64(1), "name": "ada"},
		{"id": nil, "name": "ghost"},
		{"id": int64(3), "name": "cat"},
	}})
	orders := makeSource(t, alloc, "orders", []arrowtest.Rows{{
		{"id": int64(1), "item": "keyboard"},
	}})

	lp, err := logical.From(users).
		Join(logical.From(orders), logical.JoinTypeLeft, []string{"id"}, []string{"id"}).
		Plan()
	require.NoError(t, err)

	got, err := runQuery(t, alloc, Options{}, lp)
	require.NoError(t, err)
	require.Equal(t, arrowtest.Rows{
		{"id": int64(1), "name": "ada", "item": "keyboard"},
		{"id": nil, "name": "ghost", "item": nil},
		{"id": int64(3), "name": "cat", "item": nil},
	}, got)
}

func TestLocalBackend_PartitionedJoin(t *testing.T) {
	alloc := checkedAllocator(t)

	users := makeSource(t, alloc, "users",
		[]arrowtest.Rows{{
			{"id": int64(1), "name": "ada"},
			{"id": int64(2), "name": "bob"},
		}},
		[]arrowtest.Rows{{
			{"id": int64(3), "name": "cat"},
		}},
	)
	orders := makeSource(t, alloc, "orders",
		[]arrowtest.Rows{{
			{"id": int64(3), "item": "lamp"},
			{"id": int64(1), "item": "desk"},
		}},
		[]arrowtest.Rows{{
			{"id": int64(2), "item": "chair"},
			{"id": int64(3), "item": "rug"},
		}},
	)

	// Both sides are redistributed on the key, so matching rows meet in the
	// same partition regardless of where they started.
	lp, err := logical.From(users).
		Join(logical.From(orders), logical.JoinTypeInner, []string{"id"}, []string{"id"}).
		Plan()
	require.NoError(t, err)

	got, err := runQuery(t, alloc, Options{}, lp)
	require.NoError(t, err)
	require.ElementsMatch(t, arrowtest.Rows{
		{"id": int64(1), "name": "ada", "item": "desk"},
		{"id": int64(2), "name": "bob", "item": "chair"},
		{"id": int64(3), "name": "cat", "item": "lamp"},
		{"id": int64(3), "name": "cat", "item": "rug"},
	}, got)
}

func TestLocalBackend_JoinMixedKeyTypes(t *testing.T) {
	alloc := checkedAllocator(t)

	ints := makeSource(t, alloc, "ints", []arrowtest.Rows{{
		{"k": int64(1), "l": "one"},
		{"k": int64(2), "l": "two"},
	}})
	floats := makeSource(t, alloc, "floats", []arrowtest.Rows{{
		{"k": 2.0, "r": "deux"},
		{"k": 2.5, "r": "deux et demi"},
	}})

	lp, err := logical.From(ints).
		Join(logical.From(floats), logical.JoinTypeInner, []string{"k"}, []string{"k"}).
		Plan()
	require.NoError(t, err)

	// Int64 keys hash equal to their Float64 counterparts.
	got, err := runQuery(t, alloc, Options{}, lp)
	require.NoError(t, err)
	require.Equal(t, arrowtest.Rows{
		{"k": int64(2), "l": "two", "r": "deux"},
	}, got)
}

func TestLocalBackend_Sort(t *testing.T) {
	alloc := checkedAllocator(t)

	src := makeSource(t, alloc, "scores", []arrowtest.Rows{{
		{"score": int64(10), "name": "c"},
		{"score": nil, "name": "d"},
		{"score": int64(30), "name": "a"},
		{"score": int64(10), "name": "b"},
	}})

	t.Run("descending nulls last", func(t *testing.T) {
		lp, err := logical.From(src).
			Sort(logical.SortField{Expr: expr.Col("score"), Desc: true}).
			Plan()
		require.NoError(t, err)

		got, err := runQuery(t, alloc, Options{}, lp)
		require.NoError(t, err)
		require.Equal(t, arrowtest.Rows{
			{"score": int64(30), "name": "a"},
			{"score": int64(10), "name": "c"},
			{"score": int64(10), "name": "b"},
			{"score": nil, "name": "d"},
		}, got)
	})

	t.Run("ascending nulls first with tiebreaker", func(t *testing.T) {
		lp, err := logical.From(src).
			Sort(
				logical.SortField{Expr: expr.Col("score"), NullsFirst: true},
				logical.SortField{Expr: expr.Col("name")},
			).
			Plan()
		require.NoError(t, err)

		got, err := runQuery(t, alloc, Options{}, lp)
		require.NoError(t, err)
		require.Equal(t, arrowtest.Rows{
			{"score": nil, "name": "d"},
			{"score": int64(10), "name": "b"},
			{"score": int64(10), "name": "c"},
			{"score": int64(30), "name": "a"},
		}, got)
	})

	t.Run("computed sort key", func(t *testing.T) {
		lp, err := logical.From(src).
			Sort(logical.SortField{Expr: expr.Neg(expr.Col("score"))}).
			Plan()
		require.NoError(t, err)

		got, err := runQuery(t, alloc, Options{}, lp)
		require.NoError(t, err)
		require.Equal(t, arrowtest.Rows{
			{"score": int64(30), "name": "a"},
			{"score": int64(10), "name": "c"},
			{"score": int64(10), "name": "b"},
			{"score": nil, "name": "d"},
		}, got)
	})
}

func TestLocalBackend_SortAcrossPartitions(t *testing.T) {
	alloc := checkedAllocator(t)

	// Partitions are sorted independently and merged into a total order by
	// the sort-merge gather.
	src := makeSource(t, alloc, "scores",
		[]arrowtest.Rows{{
			{"v": int64(5)}, {"v": int64(1)}, {"v": int64(9)},
		}},
		[]arrowtest.Rows{{
			{"v": int64(4)}, {"v": int64(8)},
		}},
		[]arrowtest.Rows{{
			{"v": nil}, {"v": int64(2)},
		}},
	)

	lp, err := logical.From(src).
		Sort(logical.SortField{Expr: expr.Col("v")}).
		Plan()
	require.NoError(t, err)

	got, err := runQuery(t, alloc, Options{BatchSize: 2}, lp)
	require.NoError(t, err)
	require.Equal(t, arrowtest.Rows{
		{"v": int64(1)}, {"v": int64(2)}, {"v": int64(4)}, {"v": int64(5)},
		{"v": int64(8)}, {"v": int64(9)}, {"v": nil},
	}, got)
}

func TestLocalBackend_TopK(t *testing.T) {
	alloc := checkedAllocator(t)

	// A limit over a sort runs as a top-k, retaining only the best rows
	// instead of materializing the input.
	src := makeSource(t, alloc, "scores", []arrowtest.Rows{
		{
			{"score": int64(10), "name": "c"},
			{"score": int64(40), "name": "e"},
			{"score": nil, "name": "d"},
		},
		{
			{"score": int64(30), "name": "a"},
			{"score": int64(10), "name": "b"},
			{"score": int64(20), "name": "f"},
		},
	})

	t.Run("descending keeps the largest", func(t *testing.T) {
		lp, err := logical.From(src).
			Sort(logical.SortField{Expr: expr.Col("score"), Desc: true}).
			Limit(3).
			Plan()
		require.NoError(t, err)

		got, err := runQuery(t, alloc, Options{}, lp)
		require.NoError(t, err)
		require.Equal(t, arrowtest.Rows{
			{"score": int64(40), "name": "e"},
			{"score": int64(30), "name": "a"},
			{"score": int64(20), "name": "f"},
		}, got)
	})

	t.Run("ties keep arrival order", func(t *testing.T) {
		lp, err := logical.From(src).
			Sort(logical.SortField{Expr: expr.Col("score")}).
			Limit(3).
			Plan()
		require.NoError(t, err)

		got, err := runQuery(t, alloc, Options{}, lp)
		require.NoError(t, err)
		require.Equal(t, arrowtest.Rows{
			{"score": int64(10), "name": "c"},
			{"score": int64(10), "name": "b"},
			{"score": int64(20), "name": "f"},
		}, got)
	})

	t.Run("skip widens the retained window", func(t *testing.T) {
		lp, err := logical.From(src).
			Sort(logical.SortField{Expr: expr.Col("score"), Desc: true}).
			Offset(2, 2).
			Plan()
		require.NoError(t, err)

		got, err := runQuery(t, alloc, Options{}, lp)
		require.NoError(t, err)
		require.Equal(t, arrowtest.Rows{
			{"score": int64(20), "name": "f"},
			{"score": int64(10), "name": "c"},
		}, got)
	})

	t.Run("fetch beyond the input returns everything sorted", func(t *testing.T) {
		lp, err := logical.From(src).
			Sort(logical.SortField{Expr: expr.Col("score"), Desc: true}).
			Limit(100).
			Plan()
		require.NoError(t, err)

		got, err := runQuery(t, alloc, Options{}, lp)
		require.NoError(t, err)
		require.Equal(t, arrowtest.Rows{
			{"score": int64(40), "name": "e"},
			{"score": int64(30), "name": "a"},
			{"score": int64(20), "name": "f"},
			{"score": int64(10), "name": "c"},
			{"score": int64(10), "name": "b"},
			{"score": nil, "name": "d"},
		}, got)
	})
}

func TestLocalBackend_TopKCompaction(t *testing.T) {
	alloc := checkedAllocator(t)

	// Each batch contributes one row to the top 3 while the rest goes
	// unused, so retained batches pile up dead rows until the operator
	// compacts them. BatchSize 2 keeps the compaction threshold at 4.
	src := makeSource(t, alloc, "numbers", []arrowtest.Rows{
		{
			{"v": int64(1)}, {"v": int64(2)}, {"v": int64(100)},
			{"v": int64(101)}, {"v": int64(102)},
		},
		{
			{"v": int64(3)}, {"v": int64(200)}, {"v": int64(201)},
			{"v": int64(202)}, {"v": int64(203)},
		},
		{
			{"v": int64(0)}, {"v": int64(300)}, {"v": int64(301)}, {"v": int64(302)},
		},
	})

	lp, err := logical.From(src).
		Sort(logical.SortField{Expr: expr.Col("v")}).
		Limit(3).
		Plan()
	require.NoError(t, err)

	got, err := runQuery(t, alloc, Options{BatchSize: 2}, lp)
	require.NoError(t, err)
	require.Equal(t, arrowtest.Rows{
		{"v": int64(0)}, {"v": int64(1)}, {"v": int64(2)},
	}, got)
}

func TestLocalBackend_TopKAcrossPartitions(t *testing.T) {
	alloc := checkedAllocator(t)

	// Each partition retains its own top rows; the sort-merge gather
	// restores the total order before the final limit.
	src := makeSource(t, alloc, "scores",
		[]arrowtest.Rows{{
			{"v": int64(5)}, {"v": int64(1)}, {"v": int64(9)},
		}},
		[]arrowtest.Rows{{
			{"v": int64(4)}, {"v": int64(8)},
		}},
		[]arrowtest.Rows{{
			{"v": nil}, {"v": int64(2)},
		}},
	)

	lp, err := logical.From(src).
		Sort(logical.SortField{Expr: expr.Col("v")}).
		Limit(4).
		Plan()
	require.NoError(t, err)

	got, err := runQuery(t, alloc, Options{BatchSize: 2}, lp)
	require.NoError(t, err)
	require.Equal(t, arrowtest.Rows{
		{"v": int64(1)}, {"v": int64(2)}, {"v": int64(4)}, {"v": int64(5)},
	}, got)
}

func TestLocalBackend_Repartition(t *testing.T) {
	alloc := checkedAllocator(t)

	src := makeSource(t, alloc, "events",
		[]arrowtest.Rows{{
			{"k": "a", "v": int64(1)},
			{"k": "b", "v": int64(2)},
		}},
		[]arrowtest.Rows{{
			{"k": "a", "v": int64(3)},
		}},
	)

	lp, err := logical.From(src).
		Repartition(logical.RepartitionHash, []string{"k"}, 4).
		Plan()
	require.NoError(t, err)

	got, err := runQuery(t, alloc, Options{}, lp)
	require.NoError(t, err)
	require.ElementsMatch(t, arrowtest.Rows{
		{"k": "a", "v": int64(1)},
		{"k": "b", "v": int64(2)},
		{"k": "a", "v": int64(3)},
	}, got)
}

// errSource fails on the first read of every partition.
type errSource struct {
	schema *schema.Schema
	err    error
}

func (s *errSource) Name() string                { return "errsource" }
func (s *errSource) Schema() *schema.Schema      { return s.schema }
func (s *errSource) Partitions() int             { return 1 }
func (s *errSource) Stats() (source.Stats, bool) { return source.Stats{}, false }

func (s *errSource) Open(context.Context, int, source.Pushdowns) (source.Reader, error) {
	return &errReader{err: s.err}, nil
}

type errReader struct{ err error }

func (r *errReader) Read(context.Context) (arrow.Record, error) { return nil, r.err }
func (r *errReader) Close()                                     {}

func TestLocalBackend_SourceErrorPropagates(t *testing.T) {
	alloc := checkedAllocator(t)

	s, err := schema.New(schema.Column{Name: "v", Type: types.Int64, Nullable: true})
	require.NoError(t, err)

	readErr := errors.New("storage unavailable")
	src := &errSource{schema: s, err: readErr}

	lp, err := logical.From(src).
		Filter(expr.Gt(expr.Col("v"), expr.Lit(int64(0)))).
		Plan()
	require.NoError(t, err)

	_, err = runQuery(t, alloc, Options{}, lp)
	require.ErrorIs(t, err, readErr)
}

func TestLocalBackend_CloseMidStream(t *testing.T) {
	alloc := checkedAllocator(t)

	// Many batches against a tiny buffer keep producers suspended when the
	// consumer walks away; closing must still unwind everything.
	batches := make([]arrowtest.Rows, 0, 50)
	for b := int64(0); b < 50; b++ {
		rows := make(arrowtest.Rows, 0, 100)
		for v := int64(0); v < 100; v++ {
			rows = append(rows, arrowtest.Row{"v": b*100 + v})
		}
		batches = append(batches, rows)
	}
	src := makeSource(t, alloc, "big", batches)

	lp, err := logical.From(src).
		Filter(expr.Gte(expr.Col("v"), expr.Lit(int64(0)))).
		Plan()
	require.NoError(t, err)

	plan, err := physical.NewPlanner(physical.Config{}).Build(lp)
	require.NoError(t, err)

	backend := NewLocalBackend(Options{BufferSize: 1}, log.NewNopLogger(), alloc)
	sched, err := scheduler.New(scheduler.Options{}, log.NewNopLogger(), backend, plan)
	require.NoError(t, err)

	pipeline, err := sched.Run(context.Background())
	require.NoError(t, err)

	record, err := pipeline.Read(context.Background())
	require.NoError(t, err)
	record.Release()

	// Close blocks until the operator goroutines stopped, so the allocator
	// check at cleanup proves nothing was left behind.
	pipeline.Close()
}

func TestLocalBackend_CancelTask(t *testing.T) {
	alloc := checkedAllocator(t)

	src := makeSource(t, alloc, "numbers", []arrowtest.Rows{{
		{"v": int64(1)}, {"v": int64(2)},
	}})

	lp, err := logical.From(src).Plan()
	require.NoError(t, err)

	plan, err := physical.NewPlanner(physical.Config{}).Build(lp)
	require.NoError(t, err)

	backend := NewLocalBackend(Options{}, log.NewNopLogger(), alloc)
	sched, err := scheduler.New(scheduler.Options{}, log.NewNopLogger(), backend, plan)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	pipeline, err := sched.Run(ctx)
	require.NoError(t, err)
	defer pipeline.Close()

	cancel()

	// Reads observe either the cancellation or output that was already in
	// flight; they must not hang.
	for {
		record, err := pipeline.Read(context.Background())
		if err != nil {
			break
		}
		record.Release()
	}
}
