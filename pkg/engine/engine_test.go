package engine

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/floedb/floe/pkg/engine/executor"
	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/logical"
	"github.com/floedb/floe/pkg/engine/optimizer"
	"github.com/floedb/floe/pkg/engine/schema"
	"github.com/floedb/floe/pkg/engine/source"
	"github.com/floedb/floe/pkg/util/arrowtest"
)

func checkedAllocator(t *testing.T) *memory.CheckedAllocator {
	t.Helper()
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	t.Cleanup(func() { alloc.AssertSize(t, 0) })
	return alloc
}

// makeSource builds an in-memory source with one partition per element of
// parts.
func makeSource(t *testing.T, alloc memory.Allocator, name string, parts ...[]arrowtest.Rows) *source.MemorySource {
	t.Helper()
	require.NotEmpty(t, parts)
	require.NotEmpty(t, parts[0])

	arrowSchema := parts[0][0].Schema()
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

func newTestEngine(t *testing.T, alloc memory.Allocator, cfg Config) *Engine {
	t.Helper()
	e, err := New(Params{Allocator: alloc, Config: cfg})
	require.NoError(t, err)
	return e
}

func readAll(t *testing.T, res *Result) arrowtest.Rows {
	t.Helper()
	var out arrowtest.Rows
	for {
		record, err := res.Read(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)

		rows, err := arrowtest.RecordRows(record)
		record.Release()
		require.NoError(t, err)
		out = append(out, rows...)
	}
}

// TestEngine_EndToEnd runs a full query over a partitioned source: three
// partitions of a hundred rows, filtered, projected down to two columns,
// limited to ten rows.
func TestEngine_EndToEnd(t *testing.T) {
	alloc := checkedAllocator(t)

	parts := make([][]arrowtest.Rows, 3)
	for p := range parts {
		batch := make(arrowtest.Rows, 100)
		for i := range batch {
			batch[i] = arrowtest.Row{
				"a": int64(i % 10),
				"b": fmt.Sprintf("p%d-%03d", p, i),
				"c": float64(i),
			}
		}
		parts[p] = []arrowtest.Rows{batch}
	}
	src := makeSource(t, alloc, "events", parts...)

	e := newTestEngine(t, alloc, Config{})
	df := logical.From(src).
		Filter(expr.Gt(expr.Col("a"), expr.Lit(int64(5)))).
		Select(expr.Col("a"), expr.Col("b")).
		Limit(10)

	res, err := e.Execute(context.Background(), df)
	require.NoError(t, err)
	defer res.Close()

	require.Equal(t, []string{"a", "b"}, res.Schema().ColumnNames())

	got := readAll(t, res)
	require.Len(t, got, 10)
	for _, row := range got {
		require.Len(t, row, 2)
		require.Contains(t, row, "b")
		require.Greater(t, row["a"].(int64), int64(5))
	}
}

// TestEngine_FilterLimitOrder runs the same query with the filter and the
// limit swapped. The two orders select different rows, so the optimizer
// must leave a limit above a filter where the caller put it.
func TestEngine_FilterLimitOrder(t *testing.T) {
	alloc := checkedAllocator(t)

	batch := make(arrowtest.Rows, 10)
	for i := range batch {
		batch[i] = arrowtest.Row{"a": int64(i)}
	}
	src := makeSource(t, alloc, "numbers", []arrowtest.Rows{batch})

	e := newTestEngine(t, alloc, Config{})
	odd := expr.Eq(expr.Mod(expr.Col("a"), expr.Lit(int64(2))), expr.Lit(int64(1)))

	res, err := e.Execute(context.Background(), logical.From(src).Filter(odd).Limit(4))
	require.NoError(t, err)
	filteredFirst := readAll(t, res)
	res.Close()

	res, err = e.Execute(context.Background(), logical.From(src).Limit(4).Filter(odd))
	require.NoError(t, err)
	limitedFirst := readAll(t, res)
	res.Close()

	// Filtering first fills the limit from all ten rows; limiting first
	// leaves only the odd values among the first four.
	require.Equal(t, arrowtest.Rows{
		{"a": int64(1)}, {"a": int64(3)}, {"a": int64(5)}, {"a": int64(7)},
	}, filteredFirst)
	require.Equal(t, arrowtest.Rows{
		{"a": int64(1)}, {"a": int64(3)},
	}, limitedFirst)
}

// TestEngine_SchemaPreserved checks that optimizing and lowering leave the
// result schema identical to the schema of the plan the caller built.
func TestEngine_SchemaPreserved(t *testing.T) {
	alloc := checkedAllocator(t)
	src := makeSource(t, alloc, "orders",
		[]arrowtest.Rows{{
			{"region": "eu", "amount": int64(3)},
			{"region": "us", "amount": int64(5)},
		}},
		[]arrowtest.Rows{{
			{"region": "eu", "amount": int64(4)},
		}},
	)

	e := newTestEngine(t, alloc, Config{TargetPartitions: 2})
	df := logical.From(src).
		Aggregate(
			[]expr.Expr{expr.Col("region")},
			[]expr.Expr{expr.Alias(expr.Sum(expr.Col("amount")), "total")},
		).
		Sort(logical.SortField{Expr: expr.Col("region")})

	plan, err := df.Plan()
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), df)
	require.NoError(t, err)
	defer res.Close()

	require.True(t, schema.Equal(plan.Schema(), res.Schema()))
	require.Equal(t, arrowtest.Rows{
		{"region": "eu", "total": int64(7)},
		{"region": "us", "total": int64(5)},
	}, readAll(t, res))
}

// TestEngine_DivisionByZero checks that the engine config selects the
// divide-by-zero behavior of the executor.
func TestEngine_DivisionByZero(t *testing.T) {
	rows := []arrowtest.Rows{{
		{"a": int64(6), "b": int64(2)},
		{"a": int64(1), "b": int64(0)},
	}}

	t.Run("default errors", func(t *testing.T) {
		alloc := checkedAllocator(t)
		src := makeSource(t, alloc, "frac", rows)

		e := newTestEngine(t, alloc, Config{})
		df := logical.From(src).
			Select(expr.Alias(expr.Div(expr.Col("a"), expr.Col("b")), "q"))

		res, err := e.Execute(context.Background(), df)
		require.NoError(t, err)
		defer res.Close()

		for {
			record, err := res.Read(context.Background())
			if err != nil {
				require.ErrorIs(t, err, executor.ErrDivisionByZero)
				return
			}
			record.Release()
		}
	})

	t.Run("null mode", func(t *testing.T) {
		alloc := checkedAllocator(t)
		src := makeSource(t, alloc, "frac", rows)

		e := newTestEngine(t, alloc, Config{NullOnDivisionByZero: true})
		df := logical.From(src).
			Select(expr.Alias(expr.Div(expr.Col("a"), expr.Col("b")), "q"))

		res, err := e.Execute(context.Background(), df)
		require.NoError(t, err)
		defer res.Close()

		require.Equal(t, arrowtest.Rows{
			{"q": int64(3)},
			{"q": nil},
		}, readAll(t, res))
	})
}

func TestEngine_PlanError(t *testing.T) {
	alloc := checkedAllocator(t)
	src := makeSource(t, alloc, "events", []arrowtest.Rows{{{"a": int64(1)}}})

	e := newTestEngine(t, alloc, Config{})
	df := logical.From(src).Filter(expr.Gt(expr.Col("missing"), expr.Lit(int64(0))))

	res, err := e.Execute(context.Background(), df)
	require.Error(t, err)
	require.ErrorIs(t, err, expr.ErrUnknownColumn)
	require.Nil(t, res)
}

func TestEngine_Explain(t *testing.T) {
	alloc := checkedAllocator(t)
	src := makeSource(t, alloc, "events",
		[]arrowtest.Rows{{{"a": int64(1), "b": "x"}}},
		[]arrowtest.Rows{{{"a": int64(2), "b": "y"}}},
	)

	e := newTestEngine(t, alloc, Config{})
	df := logical.From(src).
		Filter(expr.Gt(expr.Col("a"), expr.Lit(int64(0)))).
		Select(expr.Col("b"))

	out, err := e.Explain(df)
	require.NoError(t, err)

	require.Contains(t, out, "Logical plan:")
	require.Contains(t, out, "Optimized logical plan:")
	require.Contains(t, out, "Physical plan:")
	require.Contains(t, out, "Tasks:")
	require.Contains(t, out, "Scan")
	require.Contains(t, out, "Filter")
	// Both partitions gather through an exchange before the final merge.
	require.Contains(t, out, "Exchange")

	_, err = e.Explain(logical.From(src).Select(expr.Col("missing")))
	require.Error(t, err)
}

// TestEngine_Reuse runs two queries on the same engine to verify runs do
// not share state.
func TestEngine_Reuse(t *testing.T) {
	alloc := checkedAllocator(t)
	src := makeSource(t, alloc, "events", []arrowtest.Rows{{
		{"a": int64(1)},
		{"a": int64(2)},
	}})

	e := newTestEngine(t, alloc, Config{})

	for range 2 {
		res, err := e.Execute(context.Background(), logical.From(src))
		require.NoError(t, err)
		require.Len(t, readAll(t, res), 2)
		res.Close()
	}
}

func TestEngine_Metrics(t *testing.T) {
	alloc := checkedAllocator(t)
	src := makeSource(t, alloc, "events", []arrowtest.Rows{{{"a": int64(1)}}})

	reg := prometheus.NewPedanticRegistry()
	e, err := New(Params{Registerer: reg, Allocator: alloc})
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), logical.From(src))
	require.NoError(t, err)
	require.Len(t, readAll(t, res), 1)
	res.Close()

	names := familyNames(t, reg)
	require.Contains(t, names, "floe_engine_queries_total")
	require.Contains(t, names, "floe_engine_optimizer_batch_iterations")
	require.Contains(t, names, "floe_engine_scheduler_tasks_total")
	require.Contains(t, names, "floe_engine_emitted_rows_total")
}

func familyNames(t *testing.T, g prometheus.Gatherer) []string {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, family := range families {
		names = append(names, family.GetName())
	}
	return names
}

func TestConfig_RegisterFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var cfg Config
	cfg.RegisterFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"-engine.batch-size=64",
		"-engine.buffer-size=2",
		"-engine.null-on-division-by-zero",
		"-engine.target-partitions=4",
	}))
	require.Equal(t, int64(64), cfg.BatchSize)
	require.Equal(t, 2, cfg.BufferSize)
	require.True(t, cfg.NullOnDivisionByZero)
	require.Equal(t, 4, cfg.TargetPartitions)
	require.Equal(t, optimizer.DefaultMaxIterations, cfg.MaxOptimizerIterations)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Params{Config: Config{BatchSize: -1}})
	require.Error(t, err)

	_, err = New(Params{Config: Config{BufferSize: -1}})
	require.Error(t, err)
}
