package executor

import (
	"container/heap"
	"context"
	"io"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/floedb/floe/pkg/engine/logical"
	"github.com/floedb/floe/pkg/engine/physical"
)

// buildTopK retains the K best rows of the input under the sort fields and
// emits them in sort order. Unlike a full sort, at most K rows plus a
// bounded compaction slack are held at any time.
func (b *builder) buildTopK(ctx context.Context, node *physical.TopK) (*edge, error) {
	in, err := b.childEdge(ctx, node)
	if err != nil {
		return nil, err
	}

	out := b.newEdge(1)
	b.group.Go(func() error {
		defer out.finish()
		b.runTopK(ctx, node, in, out)
		return nil
	})
	return out, nil
}

// topkBatch is an input batch retained because some of its rows are in the
// running top K, together with its evaluated sort keys.
type topkBatch struct {
	rec  arrow.Record
	keys []ColumnVector

	// used counts the rows of rec currently in the heap. The batch is
	// released once it drops back to zero.
	used int
}

func (tb *topkBatch) release() {
	releaseVectors(tb.keys)
	tb.rec.Release()
}

// topkRow addresses one row of a retained batch. The arrival sequence
// breaks key ties, so the retained rows match what a stable full sort
// would keep.
type topkRow struct {
	batch *topkBatch
	row   int
	seq   int
}

// topkHeap holds the running top K rows with the worst row at the root,
// so that offering a better row replaces the worst in O(log K).
type topkHeap struct {
	fields []logical.SortField
	rows   []*topkRow
}

// compare orders two rows by the sort fields, then by arrival.
func (h *topkHeap) compare(a, b *topkRow) int {
	for f, field := range h.fields {
		if c := compareKey(a.batch.keys[f].Value(a.row), b.batch.keys[f].Value(b.row), field); c != 0 {
			return c
		}
	}
	if a.seq < b.seq {
		return -1
	}
	return 1
}

func (h *topkHeap) Len() int { return len(h.rows) }

// Less inverts the row order so that heap.Pop removes the worst row.
func (h *topkHeap) Less(i, j int) bool { return h.compare(h.rows[i], h.rows[j]) > 0 }

func (h *topkHeap) Swap(i, j int) { h.rows[i], h.rows[j] = h.rows[j], h.rows[i] }

func (h *topkHeap) Push(x any) { h.rows = append(h.rows, x.(*topkRow)) }

func (h *topkHeap) Pop() any {
	old := h.rows
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	h.rows = old[:n-1]
	return r
}

// topkState accumulates the running top K across input batches.
type topkState struct {
	k        int
	heap     *topkHeap
	retained map[*topkBatch]struct{}
	seq      int
}

// put offers every row of the batch and retains it while at least one row
// stays in the top K. It takes ownership of the batch.
func (s *topkState) put(tb *topkBatch) {
	for row := range int(tb.rec.NumRows()) {
		s.offer(tb, row)
	}
	if tb.used == 0 {
		tb.release()
		return
	}
	s.retained[tb] = struct{}{}
}

// offer pushes one row onto the heap, evicting the current worst row when
// the heap is full and the offered row is better. A batch whose last used
// row is evicted is released, unless it is the batch being offered.
func (s *topkState) offer(tb *topkBatch, row int) {
	ref := &topkRow{batch: tb, row: row, seq: s.seq}
	s.seq++

	if s.heap.Len() < s.k {
		heap.Push(s.heap, ref)
		tb.used++
		return
	}

	worst := s.heap.rows[0]
	if s.heap.compare(ref, worst) >= 0 {
		return
	}
	s.heap.rows[0] = ref
	heap.Fix(s.heap, 0)
	tb.used++

	worst.batch.used--
	if worst.batch.used == 0 && worst.batch != tb {
		delete(s.retained, worst.batch)
		worst.batch.release()
	}
}

// unused returns the retained rows that are not part of the top K. Each
// partially-used batch contributes its row count minus its used rows.
func (s *topkState) unused() int {
	total := 0
	for tb := range s.retained {
		total += int(tb.rec.NumRows()) - tb.used
	}
	return total
}

// popAll drains the heap in sort order, best row first. The popped rows
// stay valid until the retained batches are released.
func (s *topkState) popAll() []*topkRow {
	rows := make([]*topkRow, 0, s.heap.Len())
	for s.heap.Len() > 0 {
		rows = append(rows, heap.Pop(s.heap).(*topkRow))
	}
	slices.Reverse(rows)
	return rows
}

// drain releases everything still held. Every heap row references a
// retained batch, so dropping the rows and releasing the batches frees all
// records.
func (s *topkState) drain() {
	s.heap.rows = nil
	for tb := range s.retained {
		tb.release()
	}
	clear(s.retained)
}

func (b *builder) runTopK(ctx context.Context, node *physical.TopK, in, out *edge) {
	k := int(node.K)
	if k <= 0 {
		in.closeReader()
		return
	}

	// Compaction bounds the rows retained beyond the top K themselves.
	// Rewriting the top K into a fresh record costs one copy, so it only
	// happens once a couple of batches' worth of dead rows accumulated.
	maxUnused := int(b.opts.BatchSize) * 2

	state := &topkState{
		k:        k,
		heap:     &topkHeap{fields: node.Fields},
		retained: make(map[*topkBatch]struct{}),
	}
	defer state.drain()

	for {
		batch, err := in.next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			in.closeReader()
			out.fail(ctx, err)
			return
		}
		keys, err := b.sortKeys(node.Fields, batch)
		if err != nil {
			batch.Release()
			in.closeReader()
			out.fail(ctx, err)
			return
		}
		state.put(&topkBatch{rec: batch, keys: keys})

		if state.unused() > maxUnused {
			if err := b.compactTopK(node, state); err != nil {
				in.closeReader()
				out.fail(ctx, err)
				return
			}
		}
	}

	rows := state.popAll()
	rb := array.NewRecordBuilder(b.alloc, node.Schema().ArrowSchema())
	defer rb.Release()

	var pending int64
	for _, ref := range rows {
		rec := ref.batch.rec
		for col := range int(rec.NumCols()) {
			appendValue(rb.Field(col), rec.Column(col), ref.row)
		}
		if pending++; pending >= b.opts.BatchSize {
			if !pushBuilt(ctx, out, rb) {
				return
			}
			pending = 0
		}
	}
	if pending > 0 {
		pushBuilt(ctx, out, rb)
	}
}

// compactTopK rewrites the current top K into a single fresh record and
// releases the retained input batches, dropping their unused rows. The
// compacted rows keep their relative order, so ties still resolve towards
// earlier arrivals.
func (b *builder) compactTopK(node *physical.TopK, state *topkState) error {
	rows := state.popAll()
	rb := array.NewRecordBuilder(b.alloc, node.Schema().ArrowSchema())
	defer rb.Release()

	for _, ref := range rows {
		rec := ref.batch.rec
		for col := range int(rec.NumCols()) {
			appendValue(rb.Field(col), rec.Column(col), ref.row)
		}
	}
	compacted := rb.NewRecord()
	state.drain()

	keys, err := b.sortKeys(node.Fields, compacted)
	if err != nil {
		compacted.Release()
		return err
	}
	state.put(&topkBatch{rec: compacted, keys: keys})
	return nil
}
