package executor

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cespare/xxhash/v2"

	"github.com/floedb/floe/pkg/engine/physical"
)

// buildDistinct keeps the first occurrence of every row. Rows compare over
// all columns with NULLs equal to each other. The seen set spans batches,
// so this runs single-threaded regardless of the node's CPU request.
func (b *builder) buildDistinct(ctx context.Context, node *physical.Distinct) (*edge, error) {
	in, err := b.childEdge(ctx, node)
	if err != nil {
		return nil, err
	}

	out := b.newEdge(1)
	b.group.Go(func() error {
		defer out.finish()
		d := &distinct{alloc: b.alloc, seen: make(map[uint64]struct{})}
		transform(ctx, in, out, d.apply)
		return nil
	})
	return out, nil
}

type distinct struct {
	alloc  memory.Allocator
	digest xxhash.Digest
	seen   map[uint64]struct{}
}

func (d *distinct) apply(ctx context.Context, batch arrow.Record) (arrow.Record, error) {
	defer batch.Release()

	keep := make([]bool, batch.NumRows())
	for row := range keep {
		d.digest.Reset()
		for col := range int(batch.NumCols()) {
			hashArrayValue(&d.digest, batch.Column(col), row)
			_, _ = d.digest.Write([]byte{0})
		}
		key := d.digest.Sum64()
		if _, ok := d.seen[key]; ok {
			continue
		}
		d.seen[key] = struct{}{}
		keep[row] = true
	}
	return filterRecord(d.alloc, batch, func(row int) bool { return keep[row] }), nil
}
