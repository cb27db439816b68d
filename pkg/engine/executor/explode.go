package executor

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/floedb/floe/pkg/engine/physical"
)

// buildExplode unnests a list column: each row is repeated once per list
// element with the element in the list column's place. Rows with a NULL or
// empty list survive as a single row with a NULL element.
func (b *builder) buildExplode(ctx context.Context, node *physical.Explode) (*edge, error) {
	children := b.plan.Children(node)
	if len(children) != 1 {
		return nil, fmt.Errorf("%s expects exactly one input, got %d", node.Type(), len(children))
	}
	in, err := b.build(ctx, children[0])
	if err != nil {
		return nil, err
	}

	_, colIdx, ok := children[0].Schema().Lookup(node.Column)
	if !ok {
		return nil, fmt.Errorf("explode column %q not found in input %s", node.Column, children[0].Schema())
	}

	target := node.Schema().ArrowSchema()
	fn := func(ctx context.Context, batch arrow.Record) (arrow.Record, error) {
		defer batch.Release()

		list, ok := batch.Column(colIdx).(*array.List)
		if !ok {
			return nil, fmt.Errorf("explode column %q holds %s, not a list", node.Column, batch.Column(colIdx).DataType())
		}
		values := list.ListValues()

		rb := array.NewRecordBuilder(b.alloc, target)
		defer rb.Release()

		appendOthers := func(row int) {
			for col := range int(batch.NumCols()) {
				if col == colIdx {
					continue
				}
				appendValue(rb.Field(col), batch.Column(col), row)
			}
		}

		for row := range int(batch.NumRows()) {
			start, end := list.ValueOffsets(row)
			if list.IsNull(row) || start == end {
				appendOthers(row)
				rb.Field(colIdx).AppendNull()
				continue
			}
			for i := start; i < end; i++ {
				appendOthers(row)
				appendValue(rb.Field(colIdx), values, int(i))
			}
		}
		return rb.NewRecord(), nil
	}
	return b.spawnTransform(ctx, node, in, fn), nil
}
