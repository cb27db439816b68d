package executor

import (
	"context"
	"io"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/floedb/floe/pkg/engine/logical"
	"github.com/floedb/floe/pkg/engine/physical"
)

// buildSort materializes the whole input, sorts row references by the sort
// fields, and re-emits the rows in order. The sort is stable, so rows with
// equal keys keep their arrival order.
func (b *builder) buildSort(ctx context.Context, node *physical.Sort) (*edge, error) {
	in, err := b.childEdge(ctx, node)
	if err != nil {
		return nil, err
	}

	out := b.newEdge(1)
	b.group.Go(func() error {
		defer out.finish()
		b.runSort(ctx, node, in, out)
		return nil
	})
	return out, nil
}

// sortRow addresses one row of a collected batch.
type sortRow struct {
	batch int
	row   int
}

func (b *builder) runSort(ctx context.Context, node *physical.Sort, in, out *edge) {
	var (
		batches []arrow.Record
		keys    [][]ColumnVector
	)
	defer func() {
		for _, vecs := range keys {
			releaseVectors(vecs)
		}
		releaseAll(batches)
	}()

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
		vecs, err := b.sortKeys(node.Fields, batch)
		if err != nil {
			batch.Release()
			in.closeReader()
			out.fail(ctx, err)
			return
		}
		batches = append(batches, batch)
		keys = append(keys, vecs)
	}

	var rows int
	for _, batch := range batches {
		rows += int(batch.NumRows())
	}
	refs := make([]sortRow, 0, rows)
	for i, batch := range batches {
		for row := range int(batch.NumRows()) {
			refs = append(refs, sortRow{batch: i, row: row})
		}
	}

	sort.SliceStable(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		for f, field := range node.Fields {
			c := compareKey(keys[a.batch][f].Value(a.row), keys[b.batch][f].Value(b.row), field)
			if c != 0 {
				return c < 0
			}
		}
		return false
	})

	rb := array.NewRecordBuilder(b.alloc, node.Schema().ArrowSchema())
	defer rb.Release()

	var pending int64
	for _, ref := range refs {
		batch := batches[ref.batch]
		for col := range int(batch.NumCols()) {
			appendValue(rb.Field(col), batch.Column(col), ref.row)
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

// sortKeys evaluates the sort field expressions against a batch.
func (b *builder) sortKeys(fields []logical.SortField, batch arrow.Record) ([]ColumnVector, error) {
	vecs := make([]ColumnVector, 0, len(fields))
	for _, field := range fields {
		vec, err := b.eval.eval(field.Expr, batch)
		if err != nil {
			releaseVectors(vecs)
			return nil, err
		}
		vecs = append(vecs, vec)
	}
	return vecs, nil
}

// compareKey orders two key values under a sort field. NULL placement
// follows NullsFirst and is not affected by the sort direction.
func compareKey(a, b any, field logical.SortField) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		if field.NullsFirst {
			return -1
		}
		return 1
	case b == nil:
		if field.NullsFirst {
			return 1
		}
		return -1
	}
	c := compareGoValues(a, b)
	if field.Desc {
		return -c
	}
	return c
}

func releaseVectors(vecs []ColumnVector) {
	for _, vec := range vecs {
		vec.Release()
	}
}
