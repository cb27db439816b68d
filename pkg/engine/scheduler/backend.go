package scheduler

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/oklog/ulid/v2"

	"github.com/floedb/floe/pkg/engine/physical"
)

// Backend executes individual tasks. Implementations decide where and how a
// task fragment runs; the scheduler only sequences tasks and routes their
// outputs.
type Backend interface {
	// Execute runs a task to completion and returns its materialized
	// output. The records in the returned result are owned by the caller.
	// Execute must return promptly with the context error once ctx is
	// canceled.
	Execute(ctx context.Context, task *Task, inputs []TaskInput) (*TaskResult, error)

	// Cancel aborts a running task. Canceling an unknown or already
	// finished task is a no-op, and canceling the same task twice has no
	// additional effect.
	Cancel(id ulid.ULID)
}

// StreamingBackend is a Backend that can additionally stream the output of
// a task while it executes instead of materializing it. The scheduler uses
// streaming for the final task of a run when the backend supports it.
type StreamingBackend interface {
	Backend

	// Stream starts executing the task and returns a pipeline over its
	// output. The task keeps running until the pipeline is exhausted or
	// closed.
	Stream(ctx context.Context, task *Task, inputs []TaskInput) (Pipeline, error)
}

// TaskInput carries the upstream records feeding one exchange leaf of a
// task fragment. Shards[i] holds the records the i-th upstream task routed
// to the consuming task's partition. The records are only valid for the
// duration of the task execution and must not be released by the backend.
type TaskInput struct {
	Node   physical.Node
	Shards [][]arrow.Record
}

// Pipeline is a pull-based reader over task output. Read returns records
// until the output is exhausted, at which point it returns [io.EOF]. The
// caller owns returned records and must release them.
type Pipeline interface {
	Read(ctx context.Context) (arrow.Record, error)
	Close()
}
