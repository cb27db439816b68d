package executor

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/atomic"
)

// errEdgeClosed is returned from push when the consumer abandoned the edge.
// Producers treat it as a signal to unwind, not as a failure.
var errEdgeClosed = errors.New("edge closed by reader")

// message is one item traveling through an edge: a batch or a terminal
// error.
type message struct {
	batch arrow.Record
	err   error
}

// edge is the bounded buffer connecting a producer operator to a consumer
// operator. A producer that runs ahead by more than the buffer capacity
// blocks in push until the consumer takes a batch. End of stream is
// signaled by closing the channel once every producer finished; errors
// travel in-band as messages and terminate the stream.
type edge struct {
	ch        chan message
	done      chan struct{}
	producers atomic.Int32
	closeOnce sync.Once
}

// newEdge creates an edge with room for capacity batches, fed by the given
// number of producers. An edge with zero producers is immediately at end of
// stream.
func newEdge(capacity, producers int) *edge {
	e := &edge{
		ch:   make(chan message, capacity),
		done: make(chan struct{}),
	}
	e.producers.Store(int32(producers))
	if producers == 0 {
		close(e.ch)
	}
	return e
}

// push hands one batch to the consumer, blocking while the buffer is full.
// On error the caller keeps ownership of the batch.
func (e *edge) push(ctx context.Context, batch arrow.Record) error {
	select {
	case e.ch <- message{batch: batch}:
		return nil
	case <-e.done:
		return errEdgeClosed
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// pushError delivers a terminal error to the consumer. The producer must
// not push anything after it.
func (e *edge) pushError(ctx context.Context, err error) error {
	select {
	case e.ch <- message{err: err}:
		return nil
	case <-e.done:
		return errEdgeClosed
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// fail delivers err to the consumer if it is still listening.
func (e *edge) fail(ctx context.Context, err error) {
	_ = e.pushError(ctx, err)
}

// finish marks one producer as done. The channel closes, signaling end of
// stream, once all producers finished.
func (e *edge) finish() {
	if e.producers.Dec() == 0 {
		close(e.ch)
	}
}

// next returns the next batch, blocking until one is available. It returns
// [io.EOF] at end of stream. The caller owns the returned batch.
func (e *edge) next(ctx context.Context) (arrow.Record, error) {
	select {
	case m, ok := <-e.ch:
		if !ok {
			return nil, io.EOF
		}
		if m.err != nil {
			return nil, m.err
		}
		return m.batch, nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// closeReader abandons the consumer side, unblocking producers stuck in
// push. Idempotent.
func (e *edge) closeReader() {
	e.closeOnce.Do(func() {
		close(e.done)
	})
}

// drain releases batches still parked in the buffer. Only safe once all
// producers returned.
func (e *edge) drain() {
	for {
		select {
		case m, ok := <-e.ch:
			if !ok {
				return
			}
			if m.batch != nil {
				m.batch.Release()
			}
		default:
			return
		}
	}
}
