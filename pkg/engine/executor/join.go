package executor

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cespare/xxhash/v2"

	"github.com/floedb/floe/pkg/engine/logical"
	"github.com/floedb/floe/pkg/engine/physical"
	"github.com/floedb/floe/pkg/engine/schema"
)

// buildJoin runs a hash join. The right input is the build side and is
// consumed into a hash table first; the left input streams through as the
// probe side. While the table builds, left producers fill their edge
// buffers and suspend until probing starts.
func (b *builder) buildJoin(ctx context.Context, node *physical.Join) (*edge, error) {
	children := b.plan.Children(node)
	if len(children) != 2 {
		return nil, fmt.Errorf("Join expects exactly two inputs, got %d", len(children))
	}
	left, err := b.build(ctx, children[0])
	if err != nil {
		return nil, err
	}
	right, err := b.build(ctx, children[1])
	if err != nil {
		return nil, err
	}

	join, err := newHashJoin(b.alloc, b.opts.BatchSize, node, children[0].Schema(), children[1].Schema())
	if err != nil {
		return nil, err
	}

	out := b.newEdge(1)
	b.group.Go(func() error {
		defer out.finish()
		join.run(ctx, left, right, out)
		return nil
	})
	return out, nil
}

// rowRef points at a single row of a retained build-side batch.
type rowRef struct {
	batch arrow.Record
	row   int
}

type hashJoin struct {
	alloc     memory.Allocator
	node      *physical.Join
	batchSize int64

	// leftKeys and rightKeys are the key column positions in the probe and
	// build schemas. coerce marks key positions whose sides disagree on
	// numeric type; their values widen to float64 before hashing so equal
	// numbers meet in the same bucket.
	leftKeys  []int
	rightKeys []int
	coerce    []bool

	// rightOut are the build-side columns emitted after the probe columns.
	// Key columns merged into their left counterpart are left out.
	leftWidth int
	rightOut  []int

	digest xxhash.Digest
	keyBuf []any
}

func newHashJoin(alloc memory.Allocator, batchSize int64, node *physical.Join, left, right *schema.Schema) (*hashJoin, error) {
	j := &hashJoin{
		alloc:     alloc,
		node:      node,
		batchSize: batchSize,
		leftKeys:  make([]int, len(node.LeftOn)),
		rightKeys: make([]int, len(node.LeftOn)),
		coerce:    make([]bool, len(node.LeftOn)),
		leftWidth: left.Len(),
	}

	for i := range node.LeftOn {
		lcol, lidx, ok := left.Lookup(node.LeftOn[i])
		if !ok {
			return nil, fmt.Errorf("join key %q not found in probe input %s", node.LeftOn[i], left)
		}
		rcol, ridx, ok := right.Lookup(node.RightOn[i])
		if !ok {
			return nil, fmt.Errorf("join key %q not found in build input %s", node.RightOn[i], right)
		}
		j.leftKeys[i] = lidx
		j.rightKeys[i] = ridx
		j.coerce[i] = lcol.Type.ID() != rcol.Type.ID()
	}

	for idx, rcol := range right.Columns {
		if i := slices.Index(node.RightOn, rcol.Name); i >= 0 && node.LeftOn[i] == rcol.Name {
			continue
		}
		j.rightOut = append(j.rightOut, idx)
	}
	if want := node.Schema().Len(); j.leftWidth+len(j.rightOut) != want {
		return nil, fmt.Errorf("join emits %d columns, schema has %d", j.leftWidth+len(j.rightOut), want)
	}
	return j, nil
}

func (j *hashJoin) run(ctx context.Context, left, right, out *edge) {
	builds, table, err := j.buildTable(ctx, right)
	if err != nil {
		left.closeReader()
		right.closeReader()
		releaseAll(builds)
		out.fail(ctx, err)
		return
	}
	defer releaseAll(builds)
	j.probe(ctx, left, out, table)
}

// buildTable drains the build side into a row lookup table. Rows with a
// NULL key value are left out, since NULL never equals anything.
func (j *hashJoin) buildTable(ctx context.Context, right *edge) ([]arrow.Record, map[uint64][]rowRef, error) {
	var builds []arrow.Record
	table := make(map[uint64][]rowRef)

	for {
		batch, err := right.next(ctx)
		if err == io.EOF {
			return builds, table, nil
		}
		if err != nil {
			right.closeReader()
			return builds, nil, err
		}
		builds = append(builds, batch)

		for row := range int(batch.NumRows()) {
			key, ok := j.rowKey(batch, j.rightKeys, row)
			if !ok {
				continue
			}
			table[key] = append(table[key], rowRef{batch: batch, row: row})
		}
	}
}

// probe streams the probe side against the table, emitting matched rows.
// Left join rows without a match are emitted with NULL build columns.
func (j *hashJoin) probe(ctx context.Context, left, out *edge, table map[uint64][]rowRef) {
	rb := array.NewRecordBuilder(j.alloc, j.node.Schema().ArrowSchema())
	defer rb.Release()

	var pending int64
	flush := func() bool {
		pending = 0
		return pushBuilt(ctx, out, rb)
	}

	for {
		batch, err := left.next(ctx)
		if err == io.EOF {
			if pending > 0 {
				flush()
			}
			return
		}
		if err != nil {
			left.closeReader()
			out.fail(ctx, err)
			return
		}

		for row := range int(batch.NumRows()) {
			var matches []rowRef
			if key, ok := j.rowKey(batch, j.leftKeys, row); ok {
				matches = table[key]
			}

			if len(matches) == 0 {
				if j.node.How == logical.JoinTypeLeft {
					j.appendRow(rb, batch, row, nil)
					pending++
				}
			} else {
				for i := range matches {
					j.appendRow(rb, batch, row, &matches[i])
					pending++
				}
			}

			if pending >= j.batchSize {
				if !flush() {
					batch.Release()
					left.closeReader()
					return
				}
			}
		}
		batch.Release()
	}
}

// rowKey hashes the key values of one row. It reports false when any key
// value is NULL, which makes the row unmatchable.
func (j *hashJoin) rowKey(batch arrow.Record, keys []int, row int) (uint64, bool) {
	values := j.keyBuf[:0]
	for i, idx := range keys {
		col := batch.Column(idx)
		if col.IsNull(row) {
			j.keyBuf = values
			return 0, false
		}
		v := arrayValue(col, row)
		if j.coerce[i] {
			if iv, ok := v.(int64); ok {
				v = float64(iv)
			}
		}
		values = append(values, v)
	}
	j.keyBuf = values
	return hashValues(&j.digest, values), true
}

// appendRow writes one output row: the probe columns, then the emitted
// build columns from the match, or NULLs without one.
func (j *hashJoin) appendRow(rb *array.RecordBuilder, left arrow.Record, row int, match *rowRef) {
	for col := range j.leftWidth {
		appendValue(rb.Field(col), left.Column(col), row)
	}
	for i, rcol := range j.rightOut {
		field := rb.Field(j.leftWidth + i)
		if match == nil {
			field.AppendNull()
		} else {
			appendValue(field, match.batch.Column(rcol), match.row)
		}
	}
}

func releaseAll(records []arrow.Record) {
	for _, record := range records {
		record.Release()
	}
}
