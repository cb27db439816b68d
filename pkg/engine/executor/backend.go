package executor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/ulid/v2"

	"github.com/floedb/floe/pkg/engine/physical"
	"github.com/floedb/floe/pkg/engine/scheduler"
)

// LocalBackend executes task fragments in-process. Every task becomes a
// set of operator goroutines connected by bounded edges; Execute
// materializes the output into shards, Stream hands it over as a pipeline
// while the operators keep running.
type LocalBackend struct {
	opts   Options
	logger log.Logger
	alloc  memory.Allocator

	mut     sync.Mutex
	running map[ulid.ULID]context.CancelFunc
}

var (
	_ scheduler.Backend          = (*LocalBackend)(nil)
	_ scheduler.StreamingBackend = (*LocalBackend)(nil)
)

// NewLocalBackend creates a backend executing tasks in-process. A nil
// logger disables logging and a nil allocator falls back to the default
// Go allocator.
func NewLocalBackend(opts Options, logger log.Logger, alloc memory.Allocator) *LocalBackend {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}
	return &LocalBackend{
		opts:    opts.withDefaults(),
		logger:  logger,
		alloc:   alloc,
		running: make(map[ulid.ULID]context.CancelFunc),
	}
}

// Execute implements the [scheduler.Backend] interface. It runs the task
// fragment to completion and returns the materialized output shards.
func (l *LocalBackend) Execute(ctx context.Context, task *scheduler.Task, inputs []scheduler.TaskInput) (*scheduler.TaskResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.register(task.ULID, cancel)
	defer l.unregister(task.ULID)

	root, err := task.Fragment.Root()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	b := newBuilder(l.opts, l.alloc, l.logger, task.Fragment, inputs)

	var shards [][]arrow.Record
	if ex, ok := root.(*physical.Exchange); ok {
		shards, err = l.executeExchange(ctx, cancel, b, ex)
	} else {
		shards, err = l.executeSingle(ctx, cancel, b, root)
	}
	if err != nil {
		return nil, err
	}

	level.Debug(l.logger).Log(
		"msg", "executed task",
		"task_id", task.ULID,
		"partition", task.Partition,
		"duration", time.Since(start),
		"rows_scanned", b.stats.rowsScanned.Load(),
		"rows_out", b.stats.rowsOut.Load(),
	)
	return &scheduler.TaskResult{Shards: shards}, nil
}

// executeExchange runs a fragment whose root is an exchange: the child's
// output is routed into one shard per consumer partition.
func (l *LocalBackend) executeExchange(ctx context.Context, cancel context.CancelFunc, b *builder, root *physical.Exchange) ([][]arrow.Record, error) {
	writer, err := newShardWriter(l.alloc, root)
	if err != nil {
		return nil, err
	}

	children := b.plan.Children(root)
	if len(children) != 1 {
		return nil, fmt.Errorf("%s expects exactly one input, got %d", root.Type(), len(children))
	}
	in, err := b.build(ctx, children[0])
	if err != nil {
		// Operators built before the failure are already running; unwind
		// them before reporting.
		cancel()
		_ = b.wait()
		return nil, err
	}

	collectErr := writer.collect(ctx, in)
	waitErr := b.wait()
	if err := firstError(collectErr, waitErr); err != nil {
		writer.release()
		return nil, err
	}

	shards := writer.take()
	for _, shard := range shards {
		for _, record := range shard {
			b.stats.batchesOut.Inc()
			b.stats.rowsOut.Add(record.NumRows())
		}
	}
	return shards, nil
}

// executeSingle runs a fragment with a regular root and materializes its
// output into the task's single shard.
func (l *LocalBackend) executeSingle(ctx context.Context, cancel context.CancelFunc, b *builder, root physical.Node) ([][]arrow.Record, error) {
	out, err := b.build(ctx, root)
	if err != nil {
		cancel()
		_ = b.wait()
		return nil, err
	}

	var records []arrow.Record
	collectErr := func() error {
		for {
			batch, err := out.next(ctx)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				out.closeReader()
				return err
			}
			b.stats.batchesOut.Inc()
			b.stats.rowsOut.Add(batch.NumRows())
			records = append(records, batch)
		}
	}()

	waitErr := b.wait()
	if err := firstError(collectErr, waitErr); err != nil {
		releaseAll(records)
		return nil, err
	}
	return [][]arrow.Record{records}, nil
}

// Stream implements the [scheduler.StreamingBackend] interface. The task
// keeps executing while the returned pipeline is read; closing the
// pipeline cancels whatever is still running.
func (l *LocalBackend) Stream(ctx context.Context, task *scheduler.Task, inputs []scheduler.TaskInput) (scheduler.Pipeline, error) {
	root, err := task.Fragment.Root()
	if err != nil {
		return nil, err
	}
	if _, ok := root.(*physical.Exchange); ok {
		return nil, fmt.Errorf("cannot stream task %s with an exchange root", task.ULID)
	}

	ctx, cancel := context.WithCancel(ctx)
	l.register(task.ULID, cancel)

	b := newBuilder(l.opts, l.alloc, l.logger, task.Fragment, inputs)
	out, err := b.build(ctx, root)
	if err != nil {
		cancel()
		_ = b.wait()
		l.unregister(task.ULID)
		return nil, err
	}

	return &localPipeline{
		backend: l,
		task:    task,
		builder: b,
		out:     out,
		cancel:  cancel,
		start:   time.Now(),
	}, nil
}

// Cancel implements the [scheduler.Backend] interface.
func (l *LocalBackend) Cancel(id ulid.ULID) {
	l.mut.Lock()
	cancel := l.running[id]
	l.mut.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (l *LocalBackend) register(id ulid.ULID, cancel context.CancelFunc) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.running[id] = cancel
}

func (l *LocalBackend) unregister(id ulid.ULID) {
	l.mut.Lock()
	defer l.mut.Unlock()
	delete(l.running, id)
}

// localPipeline adapts a streaming task's root edge to the
// [scheduler.Pipeline] interface.
type localPipeline struct {
	backend *LocalBackend
	task    *scheduler.Task
	builder *builder
	out     *edge
	cancel  context.CancelFunc
	start   time.Time
	once    sync.Once
}

// Read returns the next output record. The caller owns it.
func (p *localPipeline) Read(ctx context.Context) (arrow.Record, error) {
	batch, err := p.out.next(ctx)
	if err != nil {
		return nil, err
	}
	p.builder.stats.batchesOut.Inc()
	p.builder.stats.rowsOut.Add(batch.NumRows())
	return batch, nil
}

// Close stops the task and releases its resources. Closing before the
// output is exhausted unwinds the running operators; Close is idempotent
// and returns once they have stopped.
func (p *localPipeline) Close() {
	p.once.Do(func() {
		p.out.closeReader()
		p.cancel()
		_ = p.builder.wait()

		level.Debug(p.backend.logger).Log(
			"msg", "streamed task",
			"task_id", p.task.ULID,
			"partition", p.task.Partition,
			"duration", time.Since(p.start),
			"rows_scanned", p.builder.stats.rowsScanned.Load(),
			"rows_out", p.builder.stats.rowsOut.Load(),
		)
		p.backend.unregister(p.task.ULID)
	})
}

// firstError returns the first non-nil error.
func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
