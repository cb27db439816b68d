// Package scheduler partitions physical plans into graphs of
// partition-bound tasks and runs them in dependency order on a pluggable
// [Backend].
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.uber.org/atomic"

	"github.com/floedb/floe/pkg/engine/internal/dag"
	"github.com/floedb/floe/pkg/engine/physical"
)

// ErrFailedDependency marks tasks that never ran because a task below them
// failed.
var ErrFailedDependency = errors.New("task dependency failed")

// errPipelineClosed resolves reads on a result pipeline that was closed
// before producing output.
var errPipelineClosed = errors.New("pipeline closed")

// Options configure a [Scheduler].
type Options struct {
	// MaxRunningScanTasks bounds how many tasks with scan leaves may run
	// concurrently. Zero or negative means no bound.
	MaxRunningScanTasks int

	// MaxRunningOtherTasks bounds how many tasks without scan leaves may
	// run concurrently. Zero or negative means no bound.
	MaxRunningOtherTasks int

	// Metrics receives the run's task observations. Sharing one Metrics
	// across runs accumulates them process-wide. Nil creates unregistered
	// metrics.
	Metrics *Metrics
}

// Scheduler executes the task graph derived from a physical plan. Tasks
// start once all tasks they depend on have completed, and their combined
// outputs are routed to dependents through [InputRef]s. A Scheduler runs
// one plan and is not reused.
type Scheduler struct {
	opts    Options
	logger  log.Logger
	backend Backend
	metrics *Metrics

	graph dag.Graph[*Task]
	root  *Task

	admission *admissionControl
	running   atomic.Bool

	mut     sync.RWMutex
	states  map[*Task]TaskState
	results map[*Task]*TaskResult
}

// New creates a Scheduler for the physical plan. New returns an error if
// the plan cannot be partitioned into tasks or does not produce exactly
// one final task.
func New(opts Options, logger log.Logger, backend Backend, plan *physical.Plan) (*Scheduler, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	graph, err := planTasks(plan)
	if err != nil {
		return nil, err
	}
	roots := graph.Roots()
	if len(roots) != 1 {
		return nil, fmt.Errorf("task graph has %d roots, expected exactly one", len(roots))
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Scheduler{
		opts:    opts,
		logger:  logger,
		backend: backend,
		metrics: metrics,

		graph: graph,
		root:  roots[0],

		admission: newAdmissionControl(
			int64(opts.MaxRunningScanTasks),
			int64(opts.MaxRunningOtherTasks),
		),

		states:  make(map[*Task]TaskState),
		results: make(map[*Task]*TaskResult),
	}, nil
}

// Tasks returns every task in the graph, dependents before their
// dependencies, starting at the final task.
func (s *Scheduler) Tasks() []*Task {
	var tasks []*Task
	for _, root := range s.graph.Roots() {
		_ = s.graph.Walk(root, func(t *Task) error {
			tasks = append(tasks, t)
			return nil
		}, dag.PreOrderWalk)
	}
	return tasks
}

// StateOf returns the last observed state of the task.
func (s *Scheduler) StateOf(t *Task) TaskState {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.states[t]
}

// Run executes the task graph and returns a pipeline over the final
// task's output. Run returns immediately; execution proceeds in the
// background while the caller reads.
//
// The returned pipeline must be closed to release the run's resources.
// Closing it before it is exhausted cancels all remaining tasks. Run may
// only be called once.
func (s *Scheduler) Run(ctx context.Context) (Pipeline, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, errors.New("scheduler is already running")
	}

	taskCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})

	out := newResultPipeline(func() {
		cancel(errPipelineClosed)
		// Wait for in-flight tasks to wind down before releasing the
		// records they may still be reading.
		<-done
		s.releaseResults()
	})

	go func() {
		defer close(done)
		s.dispatch(taskCtx, cancel, out)
	}()

	return out, nil
}

// taskEvent reports a task state change from a task goroutine back to the
// dispatch loop.
type taskEvent struct {
	task   *Task
	status TaskStatus
	result *TaskResult
}

// dispatch runs the event loop of a scheduler run. It starts tasks whose
// dependencies have completed, records results, and propagates the first
// failure by canceling everything still outstanding. All state transitions
// happen on this goroutine.
func (s *Scheduler) dispatch(ctx context.Context, cancel context.CancelCauseFunc, out *resultPipeline) {
	tasks := s.Tasks()

	var (
		remaining = make(map[*Task]int, len(tasks))
		started   = make(map[*Task]bool, len(tasks))

		// Each task emits at most two events, one for running and one for
		// its terminal state, so task goroutines never block on send.
		events = make(chan taskEvent, 2*len(tasks))

		inflight int
		terminal int
		firstErr error
	)

	for _, t := range tasks {
		remaining[t] = len(s.graph.Children(t))
	}

	start := func(t *Task) {
		started[t] = true
		inflight++
		if t == s.root {
			go s.runRootTask(ctx, t, events, out)
		} else {
			go s.runTask(ctx, t, events)
		}
	}

	for _, t := range tasks {
		if remaining[t] == 0 {
			start(t)
		}
	}

	for inflight > 0 || (firstErr == nil && terminal < len(tasks)) {
		ev := <-events
		s.observe(ev.task, ev.status)

		if ev.status.State == TaskStateRunning {
			continue
		}
		inflight--
		terminal++

		switch ev.status.State {
		case TaskStateCompleted:
			if ev.result != nil {
				s.storeResult(ev.task, ev.result)

				// A materialized final result becomes the run output. A
				// streamed one was already handed over by runRootTask and
				// completes with a nil result.
				if ev.task == s.root {
					var records []arrow.Record
					if len(ev.result.Shards) > 0 {
						records = ev.result.Shards[0]
					}
					out.provide(newMaterialized(records), nil)
				}
			}
			for _, parent := range s.graph.Parents(ev.task) {
				remaining[parent]--
				if remaining[parent] == 0 && firstErr == nil && !started[parent] {
					start(parent)
				}
			}

		case TaskStateFailed:
			if firstErr == nil {
				firstErr = &TaskError{Task: ev.task.ULID, Err: ev.status.Error}
				out.fail(firstErr)
				cancel(firstErr)
				s.cancelRunning(tasks)
			}

		case TaskStateCanceled:
			if firstErr == nil {
				firstErr = ev.status.Error
				out.fail(firstErr)
			}
		}
	}

	if firstErr != nil {
		s.abandonPending(tasks, started, firstErr)
	}
}

// runTask executes a single task through the backend and reports its
// progress on events. Admission happens before the task counts as running,
// so a canceled run stops queued tasks from ever reaching the backend.
func (s *Scheduler) runTask(ctx context.Context, t *Task, events chan<- taskEvent) {
	queueStart := time.Now()

	lane := s.admission.laneFor(t)
	if err := lane.Acquire(ctx, 1); err != nil {
		events <- taskEvent{task: t, status: TaskStatus{State: TaskStateCanceled, Error: context.Cause(ctx)}}
		return
	}
	defer lane.Release(1)

	s.metrics.taskQueueSeconds.Observe(time.Since(queueStart).Seconds())

	if ctx.Err() != nil {
		events <- taskEvent{task: t, status: TaskStatus{State: TaskStateCanceled, Error: context.Cause(ctx)}}
		return
	}

	inputs, err := s.resolveInputs(t)
	if err != nil {
		events <- taskEvent{task: t, status: TaskStatus{State: TaskStateFailed, Error: err}}
		return
	}

	events <- taskEvent{task: t, status: TaskStatus{State: TaskStateRunning}}

	execStart := time.Now()
	result, err := s.backend.Execute(ctx, t, inputs)
	if err != nil {
		events <- taskEvent{task: t, status: s.terminalStatus(ctx, err)}
		return
	}

	s.metrics.taskExecSeconds.Observe(time.Since(execStart).Seconds())
	events <- taskEvent{task: t, status: TaskStatus{State: TaskStateCompleted}, result: result}
}

// runRootTask executes the final task of the run. When the backend
// supports streaming, the task output is streamed to the result pipeline
// while the task runs; otherwise the task is executed like any other and
// its materialized result becomes the run output.
func (s *Scheduler) runRootTask(ctx context.Context, t *Task, events chan<- taskEvent, out *resultPipeline) {
	backend, ok := s.backend.(StreamingBackend)
	if !ok {
		s.runTask(ctx, t, events)
		return
	}

	queueStart := time.Now()

	lane := s.admission.laneFor(t)
	if err := lane.Acquire(ctx, 1); err != nil {
		events <- taskEvent{task: t, status: TaskStatus{State: TaskStateCanceled, Error: context.Cause(ctx)}}
		return
	}

	s.metrics.taskQueueSeconds.Observe(time.Since(queueStart).Seconds())

	if ctx.Err() != nil {
		lane.Release(1)
		events <- taskEvent{task: t, status: TaskStatus{State: TaskStateCanceled, Error: context.Cause(ctx)}}
		return
	}

	inputs, err := s.resolveInputs(t)
	if err != nil {
		lane.Release(1)
		events <- taskEvent{task: t, status: TaskStatus{State: TaskStateFailed, Error: err}}
		return
	}

	events <- taskEvent{task: t, status: TaskStatus{State: TaskStateRunning}}

	execStart := time.Now()
	pipeline, err := backend.Stream(ctx, t, inputs)
	if err != nil {
		lane.Release(1)
		events <- taskEvent{task: t, status: s.terminalStatus(ctx, err)}
		return
	}

	// The task keeps running while the caller reads, so the admission slot
	// is held until reading finishes instead of until this goroutine
	// returns.
	accepted := out.provide(pipeline, func(err error) {
		lane.Release(1)
		switch {
		case err == nil:
			s.metrics.taskExecSeconds.Observe(time.Since(execStart).Seconds())
			events <- taskEvent{task: t, status: TaskStatus{State: TaskStateCompleted}}
		case errors.Is(err, errPipelineClosed) || errors.Is(err, context.Canceled):
			events <- taskEvent{task: t, status: TaskStatus{State: TaskStateCanceled, Error: err}}
		default:
			events <- taskEvent{task: t, status: TaskStatus{State: TaskStateFailed, Error: err}}
		}
	})
	if !accepted {
		pipeline.Close()
		lane.Release(1)
		events <- taskEvent{task: t, status: TaskStatus{State: TaskStateCanceled, Error: errPipelineClosed}}
	}
}

// terminalStatus maps an execution error to a terminal status, reporting
// cancellation rather than failure when the run context was canceled.
func (s *Scheduler) terminalStatus(ctx context.Context, err error) TaskStatus {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return TaskStatus{State: TaskStateCanceled, Error: context.Cause(ctx)}
	}
	return TaskStatus{State: TaskStateFailed, Error: err}
}

func (s *Scheduler) observe(t *Task, status TaskStatus) {
	s.mut.Lock()
	old := s.states[t]
	s.states[t] = status.State
	s.mut.Unlock()

	if old == status.State {
		return
	}

	level.Debug(s.logger).Log(
		"msg", "task state change",
		"task_id", t.ULID,
		"partition", t.Partition,
		"old_state", old,
		"new_state", status.State,
	)
	s.metrics.tasksTotal.WithLabelValues(status.State.String()).Inc()
}

func (s *Scheduler) storeResult(t *Task, result *TaskResult) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.results[t] = result
}

// resolveInputs looks up the result shards feeding each exchange leaf of
// the task. All tasks below it completed before it started, so a missing
// result indicates a scheduling bug.
func (s *Scheduler) resolveInputs(t *Task) ([]TaskInput, error) {
	if len(t.Inputs) == 0 {
		return nil, nil
	}

	s.mut.RLock()
	defer s.mut.RUnlock()

	inputs := make([]TaskInput, 0, len(t.Inputs))
	for node, refs := range t.Inputs {
		shards := make([][]arrow.Record, len(refs))
		for i, ref := range refs {
			result := s.results[ref.Task]
			if result == nil {
				return nil, fmt.Errorf("task %s has no result for input task %s", t.ULID, ref.Task.ULID)
			}
			if ref.Shard >= len(result.Shards) {
				return nil, fmt.Errorf("input task %s produced %d shards, need shard %d", ref.Task.ULID, len(result.Shards), ref.Shard)
			}
			shards[i] = result.Shards[ref.Shard]
		}
		inputs = append(inputs, TaskInput{Node: node, Shards: shards})
	}
	return inputs, nil
}

func (s *Scheduler) releaseResults() {
	s.mut.Lock()
	defer s.mut.Unlock()

	for _, result := range s.results {
		for _, shard := range result.Shards {
			for _, record := range shard {
				record.Release()
			}
		}
	}
	clear(s.results)
}

// cancelRunning issues backend cancellation for tasks currently running.
// Context cancellation already reaches in-process backends; the explicit
// call covers backends where the context does not cross a process
// boundary.
func (s *Scheduler) cancelRunning(tasks []*Task) {
	s.mut.RLock()
	defer s.mut.RUnlock()

	for _, t := range tasks {
		if s.states[t] == TaskStateRunning {
			s.backend.Cancel(t.ULID)
		}
	}
}

// abandonPending marks every task that never started with a terminal
// state: failed-by-dependency when a failed task is somewhere below it,
// canceled otherwise.
func (s *Scheduler) abandonPending(tasks []*Task, started map[*Task]bool, cause error) {
	failedBelow := make(map[*Task]bool, len(tasks))
	var check func(t *Task) bool
	check = func(t *Task) bool {
		if v, ok := failedBelow[t]; ok {
			return v
		}
		v := s.StateOf(t) == TaskStateFailed
		if !v {
			for _, child := range s.graph.Children(t) {
				if check(child) {
					v = true
					break
				}
			}
		}
		failedBelow[t] = v
		return v
	}

	for _, t := range tasks {
		if started[t] || s.StateOf(t).Terminal() {
			continue
		}
		status := TaskStatus{State: TaskStateCanceled, Error: cause}
		if check(t) {
			status = TaskStatus{State: TaskStateFailedDependency, Error: ErrFailedDependency}
		}
		s.observe(t, status)
	}
}
