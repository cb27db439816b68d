package executor

import (
	"context"
	"io"
	"math"

	"github.com/floedb/floe/pkg/engine/physical"
)

// buildLimit skips the first Skip rows and passes through at most Fetch
// rows after that. Once the quota is exhausted the input is closed, which
// unwinds the producers above instead of letting them run to completion.
func (b *builder) buildLimit(ctx context.Context, node *physical.Limit) (*edge, error) {
	in, err := b.childEdge(ctx, node)
	if err != nil {
		return nil, err
	}

	out := b.newEdge(1)
	b.group.Go(func() error {
		defer out.finish()
		b.runLimit(ctx, node, in, out)
		return nil
	})
	return out, nil
}

func (b *builder) runLimit(ctx context.Context, node *physical.Limit, in, out *edge) {
	skip := clampInt64(node.Skip)
	fetch := clampInt64(node.Fetch)

	for {
		if fetch <= 0 {
			in.closeReader()
			return
		}

		batch, err := in.next(ctx)
		if err == io.EOF {
			return
		}
		if err != nil {
			in.closeReader()
			out.fail(ctx, err)
			return
		}

		rows := batch.NumRows()
		start := min(skip, rows)
		skip -= start
		end := min(start+fetch, rows)
		if start == end {
			batch.Release()
			continue
		}

		sliced := batch.NewSlice(start, end)
		batch.Release()
		fetch -= end - start

		if out.push(ctx, sliced) != nil {
			sliced.Release()
			in.closeReader()
			return
		}
	}
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
