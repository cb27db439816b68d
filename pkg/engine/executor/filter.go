package executor

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/physical"
)

// buildFilter drops rows where any predicate is false or NULL. Filtering
// is stateless and fans out across workers when the node requests them.
func (b *builder) buildFilter(ctx context.Context, node *physical.Filter) (*edge, error) {
	in, err := b.childEdge(ctx, node)
	if err != nil {
		return nil, err
	}
	fn := func(ctx context.Context, batch arrow.Record) (arrow.Record, error) {
		return b.applyPredicates(ctx, node.Predicates, batch)
	}
	return b.spawnTransform(ctx, node, in, fn), nil
}

// applyPredicates evaluates the predicates against the batch and copies
// out the rows where every predicate is true. It takes ownership of the
// batch.
func (b *builder) applyPredicates(ctx context.Context, predicates []expr.Expr, batch arrow.Record) (arrow.Record, error) {
	defer batch.Release()

	masks := make([]*array.Boolean, 0, len(predicates))
	defer func() {
		for _, mask := range masks {
			mask.Release()
		}
	}()
	for i, pred := range predicates {
		vec, err := b.eval.eval(pred, batch)
		if err != nil {
			return nil, err
		}
		arr := vec.ToArray()
		mask, ok := arr.(*array.Boolean)
		if !ok {
			vec.Release()
			return nil, fmt.Errorf("predicate %d returned non-boolean type %s", i, vec.Type())
		}
		mask.Retain()
		vec.Release()
		masks = append(masks, mask)
	}

	keep := func(row int) bool {
		for _, mask := range masks {
			if mask.IsNull(row) || !mask.Value(row) {
				return false
			}
		}
		return true
	}
	return filterRecord(b.alloc, batch, keep), nil
}
