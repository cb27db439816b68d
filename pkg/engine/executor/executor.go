// Package executor runs physical plan fragments as push-based operator
// pipelines. Every plan edge becomes a bounded channel; producers suspend
// when a consumer falls behind and resume as capacity frees up. Errors
// travel in-band along the edges, so they surface to the task output in a
// deterministic order regardless of which operator failed first.
package executor

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"golang.org/x/sync/errgroup"

	"github.com/floedb/floe/pkg/engine/physical"
	"github.com/floedb/floe/pkg/engine/scheduler"
)

const (
	defaultBatchSize  = 1024
	defaultBufferSize = 4
)

// Options configure task execution.
type Options struct {
	// BatchSize caps the rows per record emitted by operators that build
	// their output, such as aggregations and sorts. Defaults to 1024.
	BatchSize int64

	// BufferSize is the capacity of the channel backing each plan edge,
	// in records. A producer that is BufferSize records ahead of its
	// consumer suspends until the consumer catches up. Defaults to 4.
	BufferSize int

	// Parallelism overrides the worker count for data-parallel operators.
	// Zero derives the count from the node's CPU request.
	Parallelism int

	// ZeroDivision selects how division by zero behaves.
	ZeroDivision ZeroDivision
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBufferSize
	}
	return o
}

// batchFunc transforms one record into another. It takes ownership of the
// input and hands ownership of the result to the caller. A nil result
// drops the batch.
type batchFunc func(ctx context.Context, batch arrow.Record) (arrow.Record, error)

// builder assembles the operator goroutines for one task fragment. Each
// build call returns the edge carrying the node's output; the caller reads
// from the root edge and then waits for the goroutines to settle.
type builder struct {
	opts   Options
	alloc  memory.Allocator
	logger log.Logger
	eval   evaluator

	plan   *physical.Plan
	inputs map[physical.Node][][]arrow.Record
	stats  *taskStats

	group errgroup.Group
	edges []*edge
}

func newBuilder(opts Options, alloc memory.Allocator, logger log.Logger, plan *physical.Plan, inputs []scheduler.TaskInput) *builder {
	in := make(map[physical.Node][][]arrow.Record, len(inputs))
	for _, input := range inputs {
		in[input.Node] = input.Shards
	}
	return &builder{
		opts:   opts,
		alloc:  alloc,
		logger: logger,
		eval:   newEvaluator(alloc, opts.ZeroDivision),
		plan:   plan,
		inputs: in,
		stats:  &taskStats{},
	}
}

// newEdge creates an edge registered for the final drain.
func (b *builder) newEdge(producers int) *edge {
	e := newEdge(b.opts.BufferSize, producers)
	b.edges = append(b.edges, e)
	return e
}

// wait blocks until every operator goroutine returned, then releases any
// records still parked on edges. An early-terminating consumer can leave
// up to BufferSize records per edge behind; they are reclaimed here.
func (b *builder) wait() error {
	err := b.group.Wait()
	for _, e := range b.edges {
		e.drain()
	}
	return err
}

// build starts the operators for the subtree rooted at node and returns
// the edge carrying the node's output.
func (b *builder) build(ctx context.Context, node physical.Node) (*edge, error) {
	switch node := node.(type) {
	case *physical.Scan:
		return b.buildScan(ctx, node)
	case *physical.Filter:
		return b.buildFilter(ctx, node)
	case *physical.Projection:
		return b.buildProjection(ctx, node)
	case *physical.Limit:
		return b.buildLimit(ctx, node)
	case *physical.Aggregate:
		return b.buildAggregate(ctx, node)
	case *physical.Join:
		return b.buildJoin(ctx, node)
	case *physical.Sort:
		return b.buildSort(ctx, node)
	case *physical.SortMerge:
		return b.buildSortMerge(ctx, node)
	case *physical.TopK:
		return b.buildTopK(ctx, node)
	case *physical.Distinct:
		return b.buildDistinct(ctx, node)
	case *physical.Explode:
		return b.buildExplode(ctx, node)
	case *physical.Merge:
		return b.buildMerge(ctx, node)
	case *physical.Exchange:
		return b.buildExchangeInput(ctx, node)
	case *physical.Empty:
		return b.newEdge(0), nil
	}
	return nil, fmt.Errorf("invalid node type: %T", node)
}

// childEdge builds the single input of a unary node.
func (b *builder) childEdge(ctx context.Context, node physical.Node) (*edge, error) {
	children := b.plan.Children(node)
	if len(children) != 1 {
		return nil, fmt.Errorf("%s expects exactly one input, got %d", node.Type(), len(children))
	}
	return b.build(ctx, children[0])
}

// workers returns the fan-out width for a data-parallel node.
func (b *builder) workers(node physical.Node) int {
	if b.opts.Parallelism > 0 {
		return b.opts.Parallelism
	}
	return max(1, node.Resources().CPUCores)
}

// spawnTransform runs fn over every input record. Stateless transforms fan
// out across workers when the node requests more than one core; results
// are pushed downstream in input order either way.
func (b *builder) spawnTransform(ctx context.Context, node physical.Node, in *edge, fn batchFunc) *edge {
	out := b.newEdge(1)
	workers := b.workers(node)
	b.group.Go(func() error {
		defer out.finish()
		if workers > 1 {
			runParallel(ctx, workers, in, out, fn)
		} else {
			transform(ctx, in, out, fn)
		}
		return nil
	})
	return out
}

// transform is the single-threaded operator loop: read, apply, push. Every
// early exit closes the input so upstream producers unwind instead of
// blocking on a full channel.
func transform(ctx context.Context, in, out *edge, fn batchFunc) {
	for {
		batch, err := in.next(ctx)
		if err == io.EOF {
			return
		}
		if err != nil {
			in.closeReader()
			out.fail(ctx, err)
			return
		}

		result, err := fn(ctx, batch)
		if err != nil {
			in.closeReader()
			out.fail(ctx, err)
			return
		}
		if result == nil || result.NumRows() == 0 {
			if result != nil {
				result.Release()
			}
			continue
		}
		if out.push(ctx, result) != nil {
			result.Release()
			in.closeReader()
			return
		}
	}
}

// copyStream forwards records from in to out unchanged.
func copyStream(ctx context.Context, in, out *edge) {
	for {
		batch, err := in.next(ctx)
		if err == io.EOF {
			return
		}
		if err != nil {
			in.closeReader()
			out.fail(ctx, err)
			return
		}
		if out.push(ctx, batch) != nil {
			batch.Release()
			in.closeReader()
			return
		}
	}
}

// buildExchangeInput feeds an exchange leaf from the upstream task outputs
// routed to this task. The shards interleave into one edge, with one
// producer goroutine per non-empty shard.
func (b *builder) buildExchangeInput(ctx context.Context, node *physical.Exchange) (*edge, error) {
	shards, ok := b.inputs[node]
	if !ok {
		return nil, fmt.Errorf("no task inputs for exchange %s", node.ID())
	}

	producers := 0
	for _, shard := range shards {
		if len(shard) > 0 {
			producers++
		}
	}
	out := b.newEdge(producers)
	for _, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		b.group.Go(func() error {
			defer out.finish()
			pushShard(ctx, out, shard)
			return nil
		})
	}
	return out, nil
}

// shardEdges feeds an exchange leaf as one edge per upstream shard,
// preserving the per-producer record order. Used by sort-merge, which
// needs its sorted input streams kept apart.
func (b *builder) shardEdges(ctx context.Context, node *physical.Exchange) ([]*edge, error) {
	shards, ok := b.inputs[node]
	if !ok {
		return nil, fmt.Errorf("no task inputs for exchange %s", node.ID())
	}

	streams := make([]*edge, 0, len(shards))
	for _, shard := range shards {
		out := b.newEdge(1)
		b.group.Go(func() error {
			defer out.finish()
			pushShard(ctx, out, shard)
			return nil
		})
		streams = append(streams, out)
	}
	return streams, nil
}

// pushShard pushes the records of one upstream shard. The originals stay
// owned by the scheduler, so each record is retained before it enters the
// pipeline.
func pushShard(ctx context.Context, out *edge, shard []arrow.Record) {
	for _, record := range shard {
		record.Retain()
		if out.push(ctx, record) != nil {
			record.Release()
			return
		}
	}
}

// buildMerge interleaves all inputs into one output in arrival order.
func (b *builder) buildMerge(ctx context.Context, node *physical.Merge) (*edge, error) {
	children := b.plan.Children(node)
	streams := make([]*edge, 0, len(children))
	for _, child := range children {
		in, err := b.build(ctx, child)
		if err != nil {
			return nil, err
		}
		streams = append(streams, in)
	}

	out := b.newEdge(len(streams))
	for _, in := range streams {
		b.group.Go(func() error {
			defer out.finish()
			copyStream(ctx, in, out)
			return nil
		})
	}
	return out, nil
}
