package executor

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/floedb/floe/pkg/engine/physical"
)

// buildProjection evaluates the node's expressions against each batch and
// assembles the results into records matching the node schema. Stateless,
// so it fans out across workers when the node requests them.
func (b *builder) buildProjection(ctx context.Context, node *physical.Projection) (*edge, error) {
	in, err := b.childEdge(ctx, node)
	if err != nil {
		return nil, err
	}

	target := node.Schema().ArrowSchema()
	fn := func(ctx context.Context, batch arrow.Record) (arrow.Record, error) {
		defer batch.Release()

		columns := make([]arrow.Array, len(node.Expressions))
		vectors := make([]ColumnVector, 0, len(node.Expressions))
		defer func() {
			for _, vec := range vectors {
				vec.Release()
			}
		}()
		for i, e := range node.Expressions {
			vec, err := b.eval.eval(e, batch)
			if err != nil {
				return nil, err
			}
			vectors = append(vectors, vec)
			columns[i] = vec.ToArray()
		}
		return array.NewRecord(target, columns, batch.NumRows()), nil
	}
	return b.spawnTransform(ctx, node, in, fn), nil
}
