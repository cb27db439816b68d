package scheduler

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/oklog/ulid/v2"

	"github.com/floedb/floe/pkg/engine/physical"
)

// Task is the unit of scheduling: a fragment of a physical plan bound to a
// single partition. Sibling tasks share the same fragment shape and differ
// only in the partition they process.
type Task struct {
	// ULID uniquely identifies the task.
	ULID ulid.ULID

	// Fragment is the physical plan fragment executed by the task. Fragment
	// nodes are copies owned by the task; scan leaves are bound to the
	// task's partition.
	Fragment *physical.Plan

	// Partition is the partition index the task is bound to.
	Partition int

	// Partitions is the number of sibling tasks sharing the same fragment
	// shape, including this one.
	Partitions int

	// Inputs maps exchange leaves of the fragment to the upstream task
	// outputs feeding them. Tasks without exchange leaves have no inputs
	// and read directly from their scan sources.
	Inputs map[physical.Node][]InputRef

	// Resources is the combined resource request of the fragment.
	Resources physical.ResourceRequest
}

// ID implements the [dag.Node] interface.
// Returns the string form of the task ULID.
func (t *Task) ID() string { return t.ULID.String() }

// InputRef identifies a single shard of an upstream task's output.
type InputRef struct {
	// Task is the upstream task producing the shard.
	Task *Task

	// Shard is the index into the upstream task's output shards, which
	// equals the partition of the consuming task.
	Shard int
}

// TaskResult is the materialized output of a task, split into shards
// indexed by consumer partition. Tasks whose fragment root is not an
// exchange produce exactly one shard.
//
// The records in a result are owned by the scheduler and stay valid until
// the run's output pipeline is closed.
type TaskResult struct {
	Shards [][]arrow.Record
}

// TaskState describes the lifecycle state of a task.
type TaskState int

const (
	// TaskStatePending is the initial state of a task that has not been
	// handed to the backend yet.
	TaskStatePending TaskState = iota

	// TaskStateRunning marks a task that the backend is executing.
	TaskStateRunning

	// TaskStateCompleted marks a task that finished and produced a result.
	TaskStateCompleted

	// TaskStateFailed marks a task whose execution returned an error.
	TaskStateFailed

	// TaskStateFailedDependency marks a task that never ran because one of
	// the tasks it depends on failed.
	TaskStateFailedDependency

	// TaskStateCanceled marks a task that was canceled before or during
	// execution.
	TaskStateCanceled
)

// String returns a human-readable representation of the task state.
func (s TaskState) String() string {
	switch s {
	case TaskStatePending:
		return "pending"
	case TaskStateRunning:
		return "running"
	case TaskStateCompleted:
		return "completed"
	case TaskStateFailed:
		return "failed"
	case TaskStateFailedDependency:
		return "failed_dependency"
	case TaskStateCanceled:
		return "canceled"
	default:
		panic(fmt.Sprintf("unknown task state %d", s))
	}
}

// Terminal returns whether the state is final.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateFailedDependency, TaskStateCanceled:
		return true
	}
	return false
}

// TaskStatus pairs a task state with the error that caused it, if any.
type TaskStatus struct {
	State TaskState
	Error error
}

// TaskError reports which task an execution failure came from. It wraps
// the underlying cause.
type TaskError struct {
	Task ulid.ULID
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s: %s", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
