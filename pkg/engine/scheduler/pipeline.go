package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
)

// resultPipeline is the pipeline returned from [Scheduler.Run]. Reads block
// until the final task output is available or the run fails, and Close
// tears the whole run down.
type resultPipeline struct {
	mut      sync.Mutex
	ready    chan struct{}
	resolved bool
	closed   bool
	inner    Pipeline
	err      error

	// onDone is invoked exactly once when the inner pipeline is exhausted,
	// fails, or is closed before either. A nil error means all output was
	// read.
	onDone func(error)
	done   bool

	onClose func()
}

func newResultPipeline(onClose func()) *resultPipeline {
	return &resultPipeline{
		ready:   make(chan struct{}),
		onClose: onClose,
	}
}

// provide resolves the pipeline with the final task output. It reports
// whether the output was accepted; it is not accepted if the pipeline was
// closed or failed first, in which case the caller keeps ownership of
// inner.
func (p *resultPipeline) provide(inner Pipeline, onDone func(error)) bool {
	p.mut.Lock()
	defer p.mut.Unlock()

	if p.resolved {
		return false
	}
	p.resolved = true
	p.inner = inner
	p.onDone = onDone
	close(p.ready)
	return true
}

// fail resolves the pipeline with an error. Calls after the pipeline is
// resolved are ignored.
func (p *resultPipeline) fail(err error) {
	p.mut.Lock()
	defer p.mut.Unlock()

	if p.resolved {
		return
	}
	p.resolved = true
	p.err = err
	close(p.ready)
}

// Read implements [Pipeline].
func (p *resultPipeline) Read(ctx context.Context) (arrow.Record, error) {
	select {
	case <-p.ready:
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}

	p.mut.Lock()
	inner, err := p.inner, p.err
	p.mut.Unlock()

	if err != nil {
		return nil, err
	}

	record, err := inner.Read(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			p.finish(nil)
		} else {
			p.finish(err)
		}
	}
	return record, err
}

// Close implements [Pipeline]. Closing cancels whatever part of the run is
// still outstanding and releases its resources. Close is idempotent.
func (p *resultPipeline) Close() {
	p.mut.Lock()
	if p.closed {
		p.mut.Unlock()
		return
	}
	p.closed = true
	if !p.resolved {
		p.resolved = true
		p.err = errPipelineClosed
		close(p.ready)
	}
	inner := p.inner
	p.mut.Unlock()

	if inner != nil {
		inner.Close()
	}
	p.finish(errPipelineClosed)
	p.onClose()
}

func (p *resultPipeline) finish(err error) {
	p.mut.Lock()
	if p.done || p.onDone == nil {
		p.mut.Unlock()
		return
	}
	p.done = true
	onDone := p.onDone
	p.mut.Unlock()

	onDone(err)
}

// materialized is a Pipeline over an already-computed list of records.
// Records are retained on read, so the caller's release does not
// invalidate the copies owned by the scheduler.
type materialized struct {
	records []arrow.Record
	off     int
}

func newMaterialized(records []arrow.Record) *materialized {
	return &materialized{records: records}
}

// Read implements [Pipeline].
func (m *materialized) Read(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}
	if m.off >= len(m.records) {
		return nil, io.EOF
	}
	record := m.records[m.off]
	m.off++
	record.Retain()
	return record, nil
}

// Close implements [Pipeline].
func (m *materialized) Close() {}
