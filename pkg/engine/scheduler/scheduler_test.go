package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/logical"
	"github.com/floedb/floe/pkg/engine/physical"
	"github.com/floedb/floe/pkg/engine/schema"
	"github.com/floedb/floe/pkg/engine/types"
	"github.com/floedb/floe/pkg/util/arrowtest"
)

// testBackend records every task it is handed and returns empty results,
// with as many shards as the task's fragment is expected to produce. An
// execute override replaces the default behavior.
type testBackend struct {
	mut      sync.Mutex
	executed []*Task
	inputs   map[string][]int
	canceled []ulid.ULID

	entered chan *Task

	execute func(ctx context.Context, task *Task, inputs []TaskInput) (*TaskResult, error)
}

func newTestBackend() *testBackend {
	return &testBackend{
		inputs:  make(map[string][]int),
		entered: make(chan *Task, 16),
	}
}

func (b *testBackend) Execute(ctx context.Context, task *Task, inputs []TaskInput) (*TaskResult, error) {
	b.record(task, inputs)

	if b.execute != nil {
		return b.execute(ctx, task, inputs)
	}
	return &TaskResult{Shards: make([][]arrow.Record, shardCount(task))}, nil
}

func (b *testBackend) Cancel(id ulid.ULID) {
	b.mut.Lock()
	defer b.mut.Unlock()
	b.canceled = append(b.canceled, id)
}

func (b *testBackend) record(task *Task, inputs []TaskInput) {
	b.mut.Lock()
	b.executed = append(b.executed, task)
	counts := make([]int, 0, len(inputs))
	for _, in := range inputs {
		counts = append(counts, len(in.Shards))
	}
	b.inputs[task.ID()] = counts
	b.mut.Unlock()

	select {
	case b.entered <- task:
	default:
	}
}

func (b *testBackend) executedTasks() []*Task {
	b.mut.Lock()
	defer b.mut.Unlock()
	return append([]*Task(nil), b.executed...)
}

func (b *testBackend) inputCounts(id string) []int {
	b.mut.Lock()
	defer b.mut.Unlock()
	return b.inputs[id]
}

func (b *testBackend) canceledIDs() []ulid.ULID {
	b.mut.Lock()
	defer b.mut.Unlock()
	return append([]ulid.ULID(nil), b.canceled...)
}

// testStreamingBackend additionally serves the final task as a stream.
type testStreamingBackend struct {
	*testBackend
	streamed []*Task
}

func (b *testStreamingBackend) Stream(_ context.Context, task *Task, inputs []TaskInput) (Pipeline, error) {
	b.mut.Lock()
	b.streamed = append(b.streamed, task)
	counts := make([]int, 0, len(inputs))
	for _, in := range inputs {
		counts = append(counts, len(in.Shards))
	}
	b.inputs[task.ID()] = counts
	b.mut.Unlock()
	return emptyPipeline{}, nil
}

func (b *testStreamingBackend) streamedTasks() []*Task {
	b.mut.Lock()
	defer b.mut.Unlock()
	return append([]*Task(nil), b.streamed...)
}

type emptyPipeline struct{}

func (emptyPipeline) Read(context.Context) (arrow.Record, error) { return nil, io.EOF }
func (emptyPipeline) Close()                                     {}

// shardCount mirrors what the scheduler expects a task to produce: one
// shard per output partition of an exchange-rooted fragment, one otherwise.
func shardCount(task *Task) int {
	root, err := task.Fragment.Root()
	if err != nil {
		return 1
	}
	if ex, ok := root.(*physical.Exchange); ok {
		return ex.Partitioning().Partitions
	}
	return 1
}

// scanPartition returns the partition bound to the task's scan, if it has
// one.
func scanPartition(task *Task) (int, bool) {
	for n := range task.Fragment.Nodes() {
		if scan, ok := n.(*physical.Scan); ok {
			return scan.Partition, true
		}
	}
	return 0, false
}

func singleTaskScheduler(t *testing.T, backend Backend, opts Options) *Scheduler {
	t.Helper()
	plan := buildPhysical(t, physical.Config{}, logical.From(testSource(t, "events", 1)).
		Filter(expr.Gt(expr.Col("a"), expr.Lit(int64(5)))).
		Limit(10))
	sched, err := New(opts, nil, backend, plan)
	require.NoError(t, err)
	return sched
}

func aggregateScheduler(t *testing.T, backend Backend, opts Options) *Scheduler {
	t.Helper()
	plan := buildPhysical(t, physical.Config{}, logical.From(testSource(t, "events", 3)).
		Aggregate(
			[]expr.Expr{expr.Col("b")},
			[]expr.Expr{expr.Alias(expr.Sum(expr.Col("a")), "total")},
		))
	sched, err := New(opts, nil, backend, plan)
	require.NoError(t, err)
	return sched
}

func unionScheduler(t *testing.T, backend Backend, opts Options) *Scheduler {
	t.Helper()
	plan := buildPhysical(t, physical.Config{}, logical.From(testSource(t, "left", 3)).
		Union(logical.From(testSource(t, "right", 3))))
	sched, err := New(opts, nil, backend, plan)
	require.NoError(t, err)
	return sched
}

func drainPipeline(t *testing.T, p Pipeline) {
	t.Helper()
	for {
		record, err := p.Read(context.Background())
		if errors.Is(err, io.EOF) {
			return
		}
		require.NoError(t, err)
		record.Release()
	}
}

func TestSchedulerRunSingleTask(t *testing.T) {
	backend := newTestBackend()
	sched := singleTaskScheduler(t, backend, Options{})
	require.Len(t, sched.Tasks(), 1)

	pipe, err := sched.Run(context.Background())
	require.NoError(t, err)
	drainPipeline(t, pipe)
	pipe.Close()

	require.Len(t, backend.executedTasks(), 1)
	require.Equal(t, TaskStateCompleted, sched.StateOf(sched.root))
}

func TestSchedulerRunDependencyOrder(t *testing.T) {
	backend := newTestBackend()
	sched := aggregateScheduler(t, backend, Options{})

	pipe, err := sched.Run(context.Background())
	require.NoError(t, err)
	drainPipeline(t, pipe)
	pipe.Close()

	executed := backend.executedTasks()
	require.Len(t, executed, 7)
	index := make(map[*Task]int, len(executed))
	for i, task := range executed {
		index[task] = i
	}

	for _, task := range sched.Tasks() {
		require.Contains(t, index, task)
		for _, dep := range sched.graph.Children(task) {
			require.Less(t, index[dep], index[task], "dependency must run before its dependent")
		}
	}

	// Every consumer sees one shard per producer task of its input stage.
	for _, task := range sched.Tasks() {
		counts := backend.inputCounts(task.ID())
		require.Len(t, counts, len(task.Inputs))
		for _, count := range counts {
			require.Equal(t, 3, count)
		}
		require.Equal(t, TaskStateCompleted, sched.StateOf(task))
	}
}

func TestSchedulerTaskFailure(t *testing.T) {
	errBoom := errors.New("scan exploded")

	backend := newTestBackend()
	backend.execute = func(ctx context.Context, task *Task, _ []TaskInput) (*TaskResult, error) {
		if p, ok := scanPartition(task); ok && p == 1 {
			return nil, errBoom
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	sched := aggregateScheduler(t, backend, Options{})

	pipe, err := sched.Run(context.Background())
	require.NoError(t, err)
	_, err = pipe.Read(context.Background())
	require.ErrorIs(t, err, errBoom)
	pipe.Close()

	scanIDs := make(map[ulid.ULID]struct{})
	for _, task := range sched.Tasks() {
		state := sched.StateOf(task)
		p, ok := scanPartition(task)
		if !ok {
			// Tasks above the failed one never start and are marked as
			// failed by dependency.
			require.Equal(t, TaskStateFailedDependency, state)
			continue
		}
		if p == 1 {
			require.Equal(t, TaskStateFailed, state)
			continue
		}
		require.Equal(t, TaskStateCanceled, state)
		scanIDs[task.ULID] = struct{}{}
	}

	// Backend cancellation only reaches tasks that were running when the
	// failure surfaced.
	for _, id := range backend.canceledIDs() {
		require.Contains(t, scanIDs, id)
	}
}

func TestSchedulerCloseCancelsQueuedTasks(t *testing.T) {
	backend := newTestBackend()
	backend.execute = func(ctx context.Context, _ *Task, _ []TaskInput) (*TaskResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	sched := unionScheduler(t, backend, Options{MaxRunningScanTasks: 1})

	pipe, err := sched.Run(context.Background())
	require.NoError(t, err)

	first := <-backend.entered
	pipe.Close()

	// Closing the pipeline stops the run. The one admitted task is wound
	// down and none of the queued ones ever reaches the backend.
	require.Equal(t, []*Task{first}, backend.executedTasks())
	for _, task := range sched.Tasks() {
		require.Equal(t, TaskStateCanceled, sched.StateOf(task))
	}

	_, err = pipe.Read(context.Background())
	require.ErrorIs(t, err, errPipelineClosed)
}

func TestSchedulerAdmissionLimit(t *testing.T) {
	var (
		mut            sync.Mutex
		active, peaked int
	)

	backend := newTestBackend()
	backend.execute = func(_ context.Context, task *Task, _ []TaskInput) (*TaskResult, error) {
		if _, ok := scanPartition(task); ok {
			mut.Lock()
			active++
			if active > peaked {
				peaked = active
			}
			mut.Unlock()

			time.Sleep(5 * time.Millisecond)

			mut.Lock()
			active--
			mut.Unlock()
		}
		return &TaskResult{Shards: make([][]arrow.Record, shardCount(task))}, nil
	}
	sched := aggregateScheduler(t, backend, Options{MaxRunningScanTasks: 1})

	pipe, err := sched.Run(context.Background())
	require.NoError(t, err)
	drainPipeline(t, pipe)
	pipe.Close()

	require.Equal(t, 1, peaked)
	for _, task := range sched.Tasks() {
		require.Equal(t, TaskStateCompleted, sched.StateOf(task))
	}
}

func TestSchedulerStreamingRoot(t *testing.T) {
	backend := &testStreamingBackend{testBackend: newTestBackend()}
	sched := aggregateScheduler(t, backend, Options{})

	pipe, err := sched.Run(context.Background())
	require.NoError(t, err)
	drainPipeline(t, pipe)
	pipe.Close()

	require.Equal(t, []*Task{sched.root}, backend.streamedTasks())
	require.NotContains(t, backend.executedTasks(), sched.root)
	require.Len(t, backend.executedTasks(), 6)

	require.Equal(t, []int{3}, backend.inputCounts(sched.root.ID()))
	require.Equal(t, TaskStateCompleted, sched.StateOf(sched.root))
}

func TestSchedulerRunTwice(t *testing.T) {
	backend := newTestBackend()
	sched := singleTaskScheduler(t, backend, Options{})

	pipe, err := sched.Run(context.Background())
	require.NoError(t, err)
	_, err = sched.Run(context.Background())
	require.ErrorContains(t, err, "already running")

	drainPipeline(t, pipe)
	pipe.Close()
}

func TestSchedulerReleasesResults(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)

	s, err := schema.New(schema.Column{Name: "a", Type: types.Int64, Nullable: true})
	require.NoError(t, err)

	backend := newTestBackend()
	backend.execute = func(_ context.Context, task *Task, _ []TaskInput) (*TaskResult, error) {
		shards := make([][]arrow.Record, shardCount(task))
		for i := range shards {
			shards[i] = []arrow.Record{
				arrowtest.Rows{{"a": int64(i)}}.Record(alloc, s.ArrowSchema()),
			}
		}
		return &TaskResult{Shards: shards}, nil
	}
	sched := aggregateScheduler(t, backend, Options{})

	pipe, err := sched.Run(context.Background())
	require.NoError(t, err)

	var rows int64
	for {
		record, err := pipe.Read(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		rows += record.NumRows()
		record.Release()
	}
	require.Equal(t, int64(1), rows)
	pipe.Close()

	// Closing the pipeline releases every record the run produced,
	// including shards no consumer read.
	alloc.AssertSize(t, 0)
}
