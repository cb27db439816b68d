package executor

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cespare/xxhash/v2"

	"github.com/floedb/floe/pkg/engine/physical"
)

// shardWriter routes the output of an exchange-rooted fragment into the
// shards its consumer tasks will read. Shard i feeds consumer partition i.
type shardWriter struct {
	alloc  memory.Allocator
	mode   physical.ExchangeMode
	keys   []int
	shards [][]arrow.Record

	digest xxhash.Digest
	next   int
}

func newShardWriter(alloc memory.Allocator, node *physical.Exchange) (*shardWriter, error) {
	w := &shardWriter{
		alloc:  alloc,
		mode:   node.Mode,
		shards: make([][]arrow.Record, max(1, node.Partitioning().Partitions)),
	}
	if node.Mode == physical.ExchangeModeHash {
		if len(node.Keys) == 0 {
			return nil, fmt.Errorf("hash exchange %s has no keys", node.ID())
		}
		w.keys = make([]int, len(node.Keys))
		for i, name := range node.Keys {
			_, idx, ok := node.Schema().Lookup(name)
			if !ok {
				return nil, fmt.Errorf("hash key %q not found in exchange schema %s", name, node.Schema())
			}
			w.keys[i] = idx
		}
	}
	return w, nil
}

// collect consumes the stage output edge and routes every record. On error
// the caller releases whatever was already routed.
func (w *shardWriter) collect(ctx context.Context, in *edge) error {
	for {
		batch, err := in.next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			in.closeReader()
			return err
		}
		w.route(batch)
	}
}

// route takes ownership of the batch and assigns it to shards according to
// the exchange mode.
func (w *shardWriter) route(batch arrow.Record) {
	switch w.mode {
	case physical.ExchangeModeSingle:
		w.shards[0] = append(w.shards[0], batch)

	case physical.ExchangeModeBroadcast:
		for i := range w.shards {
			if i > 0 {
				batch.Retain()
			}
			w.shards[i] = append(w.shards[i], batch)
		}

	case physical.ExchangeModeRandom:
		w.shards[w.next] = append(w.shards[w.next], batch)
		w.next = (w.next + 1) % len(w.shards)

	case physical.ExchangeModeHash:
		w.routeByHash(batch)

	default:
		panic(fmt.Sprintf("invalid exchange mode %s", w.mode))
	}
}

// routeByHash splits a batch row-wise by key hash. All rows with equal
// keys land in the same shard, NULL keys included.
func (w *shardWriter) routeByHash(batch arrow.Record) {
	defer batch.Release()

	n := uint64(len(w.shards))
	rowShard := make([]int, batch.NumRows())
	counts := make([]int64, len(w.shards))
	for row := range rowShard {
		w.digest.Reset()
		for _, idx := range w.keys {
			hashArrayValue(&w.digest, batch.Column(idx), row)
			_, _ = w.digest.Write([]byte{0})
		}
		shard := int(w.digest.Sum64() % n)
		rowShard[row] = shard
		counts[shard]++
	}

	for shard := range w.shards {
		if counts[shard] == 0 {
			continue
		}
		part := filterRecord(w.alloc, batch, func(row int) bool { return rowShard[row] == shard })
		w.shards[shard] = append(w.shards[shard], part)
	}
}

// take hands the routed shards to the caller.
func (w *shardWriter) take() [][]arrow.Record {
	shards := w.shards
	w.shards = nil
	return shards
}

// release drops everything routed so far.
func (w *shardWriter) release() {
	for _, shard := range w.shards {
		releaseAll(shard)
	}
	w.shards = nil
}
