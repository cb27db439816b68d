package executor

import (
	"context"
	"io"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
)

// sequenced tags a batch or error with its input position so fan-out
// results can be re-emitted in input order.
type sequenced struct {
	seq   int64
	batch arrow.Record
	err   error
}

// runParallel is the data-parallel variant of [transform]: a dispatcher
// hands input batches to a pool of workers and a reorder loop pushes the
// results downstream in input order. Backpressure carries through, with at
// most workers+1 extra batches in flight beyond the edge buffers.
func runParallel(ctx context.Context, workers int, in, out *edge, fn batchFunc) {
	work := make(chan sequenced)
	results := make(chan sequenced, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for item := range work {
				if item.err == nil {
					item.batch, item.err = fn(ctx, item.batch)
				}
				select {
				case results <- item:
				case <-ctx.Done():
					if item.batch != nil {
						item.batch.Release()
					}
					return
				}
			}
		}()
	}

	go func() {
		defer close(work)
		var seq int64
		for {
			batch, err := in.next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				in.closeReader()
				select {
				case work <- sequenced{seq: seq, err: err}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case work <- sequenced{seq: seq, batch: batch}:
				seq++
			case <-ctx.Done():
				batch.Release()
				in.closeReader()
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		next    int64
		pending = make(map[int64]sequenced)
		failed  bool
	)
	emit := func(item sequenced) bool {
		if item.err != nil {
			in.closeReader()
			out.fail(ctx, item.err)
			return false
		}
		if item.batch == nil || item.batch.NumRows() == 0 {
			if item.batch != nil {
				item.batch.Release()
			}
			return true
		}
		if out.push(ctx, item.batch) != nil {
			item.batch.Release()
			in.closeReader()
			return false
		}
		return true
	}

	for item := range results {
		if failed {
			if item.batch != nil {
				item.batch.Release()
			}
			continue
		}
		pending[item.seq] = item
		for {
			queued, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if !emit(queued) {
				failed = true
				break
			}
		}
	}

	for _, item := range pending {
		if item.batch != nil {
			item.batch.Release()
		}
	}
}
