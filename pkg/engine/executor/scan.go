package executor

import (
	"context"
	"fmt"
	"io"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/physical"
)

// buildScan starts reading the node's source partitions. Pushdown hints
// are enforced here regardless of whether the source honored them: columns
// are projected, the predicate is applied, and the limit caps the rows
// read per partition.
func (b *builder) buildScan(ctx context.Context, node *physical.Scan) (*edge, error) {
	if n := len(b.plan.Children(node)); n != 0 {
		return nil, fmt.Errorf("Scan expects no inputs, got %d", n)
	}

	out := b.newEdge(1)
	b.group.Go(func() error {
		defer out.finish()
		b.runScan(ctx, node, out)
		return nil
	})
	return out, nil
}

func (b *builder) runScan(ctx context.Context, node *physical.Scan, out *edge) {
	if node.Partition >= 0 {
		b.scanPartition(ctx, node, node.Partition, out)
		return
	}
	for partition := range node.Source.Partitions() {
		if !b.scanPartition(ctx, node, partition, out) {
			return
		}
	}
}

// scanPartition reads one source partition to exhaustion, its limit, or an
// error. It reports whether scanning should continue with the next
// partition.
func (b *builder) scanPartition(ctx context.Context, node *physical.Scan, partition int, out *edge) bool {
	reader, err := node.Source.Open(ctx, partition, node.Pushdowns)
	if err != nil {
		out.fail(ctx, fmt.Errorf("open %s partition %d: %w", node.Source.Name(), partition, err))
		return false
	}
	defer reader.Close()

	target := node.Schema().ArrowSchema()
	remaining := node.Pushdowns.Limit

	for {
		batch, err := reader.Read(ctx)
		if err == io.EOF {
			return true
		}
		if err != nil {
			out.fail(ctx, fmt.Errorf("read %s partition %d: %w", node.Source.Name(), partition, err))
			return false
		}
		b.stats.rowsScanned.Add(batch.NumRows())

		projected, err := projectColumns(batch, target)
		batch.Release()
		if err != nil {
			out.fail(ctx, err)
			return false
		}
		batch = projected

		if node.Pushdowns.Predicate != nil {
			filtered, err := b.applyPredicates(ctx, []expr.Expr{node.Pushdowns.Predicate}, batch)
			if err != nil {
				out.fail(ctx, err)
				return false
			}
			batch = filtered
		}

		if node.Pushdowns.Limit > 0 {
			if remaining <= 0 {
				batch.Release()
				return true
			}
			if batch.NumRows() > remaining {
				sliced := batch.NewSlice(0, remaining)
				batch.Release()
				batch = sliced
			}
			remaining -= batch.NumRows()
		}

		if batch.NumRows() == 0 {
			batch.Release()
			continue
		}
		if out.push(ctx, batch) != nil {
			batch.Release()
			return false
		}
	}
}
