package executor

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/floedb/floe/pkg/util/arrowtest"
)

func testBatch(t *testing.T, alloc memory.Allocator, values ...int64) arrow.Record {
	t.Helper()
	rows := make(arrowtest.Rows, 0, len(values))
	for _, v := range values {
		rows = append(rows, arrowtest.Row{"v": v})
	}
	return rows.Record(alloc, rows.Schema())
}

func TestEdge_Backpressure(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	ctx := context.Background()
	e := newEdge(2, 1)

	// Two pushes fit in the buffer without any consumer.
	require.NoError(t, e.push(ctx, testBatch(t, alloc, 1)))
	require.NoError(t, e.push(ctx, testBatch(t, alloc, 2)))

	// The third push must suspend until the consumer takes a record.
	pushed := make(chan error, 1)
	go func() {
		pushed <- e.push(ctx, testBatch(t, alloc, 3))
	}()

	select {
	case err := <-pushed:
		t.Fatalf("push beyond the buffer capacity returned early with err=%v", err)
	case <-time.After(50 * time.Millisecond):
	}

	batch, err := e.next(ctx)
	require.NoError(t, err)
	batch.Release()

	select {
	case err := <-pushed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("push did not resume after the consumer freed a slot")
	}

	e.closeReader()
	e.drain()
}

func TestEdge_CancelUnblocksProducer(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	e := newEdge(1, 1)

	require.NoError(t, e.push(ctx, testBatch(t, alloc, 1)))

	blocked := testBatch(t, alloc, 2)
	pushed := make(chan error, 1)
	go func() {
		pushed <- e.push(ctx, blocked)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-pushed:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("push did not return after cancellation")
	}

	// A failed push leaves ownership with the caller.
	blocked.Release()
	e.closeReader()
	e.drain()
}

func TestEdge_CloseReaderUnblocksProducer(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	ctx := context.Background()
	e := newEdge(1, 1)

	require.NoError(t, e.push(ctx, testBatch(t, alloc, 1)))

	blocked := testBatch(t, alloc, 2)
	pushed := make(chan error, 1)
	go func() {
		pushed <- e.push(ctx, blocked)
	}()

	time.Sleep(20 * time.Millisecond)
	e.closeReader()

	select {
	case err := <-pushed:
		require.ErrorIs(t, err, errEdgeClosed)
	case <-time.After(time.Second):
		t.Fatal("push did not return after the reader closed")
	}

	blocked.Release()

	// Pushes after the close fail immediately.
	late := testBatch(t, alloc, 3)
	require.ErrorIs(t, e.push(ctx, late), errEdgeClosed)
	late.Release()

	e.drain()
}

func TestEdge_EndOfStream(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	ctx := context.Background()
	e := newEdge(4, 2)

	require.NoError(t, e.push(ctx, testBatch(t, alloc, 1)))
	e.finish()

	// One producer is still open, so the stream must not end yet.
	batch, err := e.next(ctx)
	require.NoError(t, err)
	batch.Release()

	require.NoError(t, e.push(ctx, testBatch(t, alloc, 2)))
	e.finish()

	batch, err = e.next(ctx)
	require.NoError(t, err)
	batch.Release()

	_, err = e.next(ctx)
	require.ErrorIs(t, err, io.EOF)

	// End of stream is stable.
	_, err = e.next(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestEdge_NoProducers(t *testing.T) {
	e := newEdge(4, 0)
	_, err := e.next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestEdge_ErrorInBand(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	ctx := context.Background()
	e := newEdge(4, 1)

	require.NoError(t, e.push(ctx, testBatch(t, alloc, 1)))
	failure := io.ErrUnexpectedEOF
	e.fail(ctx, failure)
	e.finish()

	// Records pushed before the failure surface first, then the error.
	batch, err := e.next(ctx)
	require.NoError(t, err)
	batch.Release()

	_, err = e.next(ctx)
	require.ErrorIs(t, err, failure)
}

func TestEdge_DrainReleasesParkedRecords(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	ctx := context.Background()
	e := newEdge(4, 1)

	require.NoError(t, e.push(ctx, testBatch(t, alloc, 1)))
	require.NoError(t, e.push(ctx, testBatch(t, alloc, 2)))
	e.finish()

	// The consumer walks away without reading; drain reclaims the records
	// still parked on the channel.
	e.closeReader()
	e.drain()
}
