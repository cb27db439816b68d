package executor

import (
	"container/heap"
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/floedb/floe/pkg/engine/logical"
	"github.com/floedb/floe/pkg/engine/physical"
)

// buildSortMerge merges already-sorted input streams into one sorted
// output. The streams stay separate; each upstream shard of an exchange
// leaf feeds its own cursor, so the per-stream order survives.
func (b *builder) buildSortMerge(ctx context.Context, node *physical.SortMerge) (*edge, error) {
	var streams []*edge
	for _, child := range b.plan.Children(node) {
		if ex, ok := child.(*physical.Exchange); ok {
			shards, err := b.shardEdges(ctx, ex)
			if err != nil {
				return nil, err
			}
			streams = append(streams, shards...)
			continue
		}
		in, err := b.build(ctx, child)
		if err != nil {
			return nil, err
		}
		streams = append(streams, in)
	}

	out := b.newEdge(1)
	b.group.Go(func() error {
		defer out.finish()
		b.runSortMerge(ctx, node, streams, out)
		return nil
	})
	return out, nil
}

// mergeCursor tracks the read position within one sorted stream.
type mergeCursor struct {
	in    *edge
	batch arrow.Record
	keys  []ColumnVector
	row   int
}

// release drops the cursor's current batch and key vectors.
func (c *mergeCursor) release() {
	if c.batch == nil {
		return
	}
	releaseVectors(c.keys)
	c.batch.Release()
	c.batch = nil
	c.keys = nil
}

// cursorHeap is a min-heap of stream cursors ordered by their current row
// under the sort fields.
type cursorHeap struct {
	fields  []logical.SortField
	cursors []*mergeCursor
}

func (h *cursorHeap) Len() int { return len(h.cursors) }

func (h *cursorHeap) Less(i, j int) bool {
	a, b := h.cursors[i], h.cursors[j]
	for f, field := range h.fields {
		c := compareKey(a.keys[f].Value(a.row), b.keys[f].Value(b.row), field)
		if c != 0 {
			return c < 0
		}
	}
	return false
}

func (h *cursorHeap) Swap(i, j int) { h.cursors[i], h.cursors[j] = h.cursors[j], h.cursors[i] }

func (h *cursorHeap) Push(x any) { h.cursors = append(h.cursors, x.(*mergeCursor)) }

func (h *cursorHeap) Pop() any {
	old := h.cursors
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	h.cursors = old[:n-1]
	return c
}

func (b *builder) runSortMerge(ctx context.Context, node *physical.SortMerge, streams []*edge, out *edge) {
	h := &cursorHeap{fields: node.Fields}
	abort := func(err error) {
		for _, cur := range h.cursors {
			cur.release()
		}
		for _, in := range streams {
			in.closeReader()
		}
		if err != nil {
			out.fail(ctx, err)
		}
	}

	for _, in := range streams {
		cur := &mergeCursor{in: in}
		ok, err := b.advanceCursor(ctx, node, cur)
		if err != nil {
			abort(err)
			return
		}
		if ok {
			h.cursors = append(h.cursors, cur)
		}
	}
	heap.Init(h)

	rb := array.NewRecordBuilder(b.alloc, node.Schema().ArrowSchema())
	defer rb.Release()

	var pending int64
	for h.Len() > 0 {
		cur := h.cursors[0]
		for col := range int(cur.batch.NumCols()) {
			appendValue(rb.Field(col), cur.batch.Column(col), cur.row)
		}
		pending++

		cur.row++
		if cur.row >= int(cur.batch.NumRows()) {
			ok, err := b.advanceCursor(ctx, node, cur)
			if err != nil {
				abort(err)
				return
			}
			if !ok {
				heap.Pop(h)
			} else {
				heap.Fix(h, 0)
			}
		} else {
			heap.Fix(h, 0)
		}

		if pending >= b.opts.BatchSize {
			if !pushBuilt(ctx, out, rb) {
				abort(nil)
				return
			}
			pending = 0
		}
	}
	if pending > 0 {
		pushBuilt(ctx, out, rb)
	}
}

// advanceCursor loads the cursor's next non-empty batch and evaluates its
// sort keys. It reports false once the stream is exhausted.
func (b *builder) advanceCursor(ctx context.Context, node *physical.SortMerge, cur *mergeCursor) (bool, error) {
	cur.release()
	for {
		batch, err := cur.in.next(ctx)
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if batch.NumRows() == 0 {
			batch.Release()
			continue
		}
		keys, err := b.sortKeys(node.Fields, batch)
		if err != nil {
			batch.Release()
			return false, err
		}
		cur.batch = batch
		cur.keys = keys
		cur.row = 0
		return true, nil
	}
}
