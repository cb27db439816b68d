// Package engine executes dataframe queries. An [Engine] takes the logical
// plan behind a [logical.DataFrame], optimizes it, lowers it into a
// partitioned physical plan, splits that plan into tasks, and runs the
// tasks on a local executor backend. Results stream back to the caller as
// Arrow records.
package engine

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/floedb/floe/pkg/engine/executor"
	"github.com/floedb/floe/pkg/engine/logical"
	"github.com/floedb/floe/pkg/engine/optimizer"
	"github.com/floedb/floe/pkg/engine/physical"
	"github.com/floedb/floe/pkg/engine/scheduler"
	"github.com/floedb/floe/pkg/engine/schema"
)

var (
	// ErrPlanningFailed is returned when optimizing or lowering a plan
	// fails unexpectedly. Errors from constructing the plan itself, such
	// as unknown columns, are returned as-is.
	ErrPlanningFailed = errors.New("query planning failed unexpectedly")

	// ErrSchedulingFailed is returned when the plan cannot be split into
	// tasks or the task run cannot be started.
	ErrSchedulingFailed = errors.New("failed to schedule query")
)

// Config configures query execution.
type Config struct {
	// BatchSize caps the rows per record emitted by operators that build
	// their output.
	BatchSize int64 `yaml:"batch_size"`

	// BufferSize is the capacity, in records, of the buffer between two
	// connected operators. A producer that is this far ahead of its
	// consumer suspends until the consumer catches up.
	BufferSize int `yaml:"buffer_size"`

	// Parallelism overrides the worker count of data-parallel operators.
	// Zero derives the count from each node's CPU request.
	Parallelism int `yaml:"parallelism"`

	// NullOnDivisionByZero makes division and modulo by zero yield NULL
	// instead of failing the query.
	NullOnDivisionByZero bool `yaml:"null_on_division_by_zero"`

	// TargetPartitions is the partition count for hash redistributions.
	// Zero keeps the producer's partition count.
	TargetPartitions int `yaml:"target_partitions"`

	// BroadcastJoinRows enables broadcast joins for build sides estimated
	// at or below this many rows. Zero disables broadcast joins.
	BroadcastJoinRows int64 `yaml:"broadcast_join_rows"`

	// MaxOptimizerIterations caps the iterations of each optimizer rule
	// batch.
	MaxOptimizerIterations int `yaml:"max_optimizer_iterations"`

	// MaxRunningScanTasks bounds how many tasks with scan leaves may run
	// concurrently. Zero or negative means no bound.
	MaxRunningScanTasks int `yaml:"max_running_scan_tasks"`

	// MaxRunningOtherTasks bounds how many tasks without scan leaves may
	// run concurrently. Zero or negative means no bound.
	MaxRunningOtherTasks int `yaml:"max_running_other_tasks"`

	// AcceleratedFunctions maps scalar function names to the number of
	// accelerator devices a projection calling them requires. Not
	// flag-settable.
	AcceleratedFunctions map[string]int `yaml:"-"`
}

// RegisterFlags registers flags with the "engine." prefix.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("engine.", f)
}

func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.Int64Var(&cfg.BatchSize, prefix+"batch-size", 1024, "Maximum number of rows per emitted record.")
	f.IntVar(&cfg.BufferSize, prefix+"buffer-size", 4, "Capacity, in records, of the buffer between two connected operators.")
	f.IntVar(&cfg.Parallelism, prefix+"parallelism", 0, "Worker count for data-parallel operators. 0 derives the count from each node's CPU request.")
	f.BoolVar(&cfg.NullOnDivisionByZero, prefix+"null-on-division-by-zero", false, "Yield NULL for division and modulo by zero instead of failing the query.")
	f.IntVar(&cfg.TargetPartitions, prefix+"target-partitions", 0, "Partition count for hash redistributions. 0 keeps the producer's partition count.")
	f.Int64Var(&cfg.BroadcastJoinRows, prefix+"broadcast-join-rows", 0, "Replicate join build sides estimated at or below this many rows instead of hash partitioning. 0 disables broadcast joins.")
	f.IntVar(&cfg.MaxOptimizerIterations, prefix+"max-optimizer-iterations", optimizer.DefaultMaxIterations, "Maximum iterations of each optimizer rule batch.")
	f.IntVar(&cfg.MaxRunningScanTasks, prefix+"max-running-scan-tasks", 0, "Maximum number of concurrently running tasks that scan sources. 0 means no bound.")
	f.IntVar(&cfg.MaxRunningOtherTasks, prefix+"max-running-other-tasks", 0, "Maximum number of concurrently running tasks that do not scan sources. 0 means no bound.")
}

// validate validates cfg. Zero values mean defaults and are filled in by
// the components that consume them.
func (cfg *Config) validate() error {
	if cfg.BatchSize < 0 {
		return fmt.Errorf("invalid batch size, must not be negative, got %d", cfg.BatchSize)
	}
	if cfg.BufferSize < 0 {
		return fmt.Errorf("invalid buffer size, must not be negative, got %d", cfg.BufferSize)
	}
	return nil
}

// Params holds parameters for constructing a new [Engine].
type Params struct {
	Logger     log.Logger            // Logger for optional log messages.
	Registerer prometheus.Registerer // Registerer for optional metrics.
	Allocator  memory.Allocator      // Allocator for record memory.

	Config Config // Config for the Engine.
}

// validate validates p and applies defaults.
func (p *Params) validate() error {
	if p.Logger == nil {
		p.Logger = log.NewNopLogger()
	}
	if p.Registerer == nil {
		p.Registerer = prometheus.NewRegistry()
	}
	if p.Allocator == nil {
		p.Allocator = memory.DefaultAllocator
	}
	return p.Config.validate()
}

// Engine plans and executes queries. An Engine is safe for concurrent use;
// each call to [Engine.Execute] runs independently.
type Engine struct {
	logger  log.Logger
	metrics *metrics
	config  Config

	optimizer    *optimizer.Optimizer
	backend      *executor.LocalBackend
	schedMetrics *scheduler.Metrics
}

// New creates a new Engine.
func New(params Params) (*Engine, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	opt := optimizer.New(optimizer.Config{
		MaxIterations: params.Config.MaxOptimizerIterations,
		Logger:        params.Logger,
		Registerer:    params.Registerer,
	})
	backend := executor.NewLocalBackend(executor.Options{
		BatchSize:    params.Config.BatchSize,
		BufferSize:   params.Config.BufferSize,
		Parallelism:  params.Config.Parallelism,
		ZeroDivision: zeroDivision(params.Config),
	}, params.Logger, params.Allocator)

	return &Engine{
		logger:  params.Logger,
		metrics: newMetrics(params.Registerer),
		config:  params.Config,

		optimizer:    opt,
		backend:      backend,
		schedMetrics: scheduler.NewMetrics(params.Registerer),
	}, nil
}

func zeroDivision(cfg Config) executor.ZeroDivision {
	if cfg.NullOnDivisionByZero {
		return executor.ZeroDivisionNull
	}
	return executor.ZeroDivisionError
}

func (e *Engine) plannerConfig() physical.Config {
	return physical.Config{
		TargetPartitions:     e.config.TargetPartitions,
		BroadcastJoinRows:    e.config.BroadcastJoinRows,
		AcceleratedFunctions: e.config.AcceleratedFunctions,
	}
}

func (e *Engine) schedulerOptions() scheduler.Options {
	return scheduler.Options{
		MaxRunningScanTasks:  e.config.MaxRunningScanTasks,
		MaxRunningOtherTasks: e.config.MaxRunningOtherTasks,
		Metrics:              e.schedMetrics,
	}
}

// Execute runs the query behind df and returns a streaming [Result] over
// its output. Execution proceeds in the background while the caller reads;
// the Result must be closed to release the run's resources.
func (e *Engine) Execute(ctx context.Context, df *logical.DataFrame) (*Result, error) {
	queryID := uuid.NewString()
	logger := log.With(e.logger, "query_id", queryID)
	start := time.Now()

	plan, err := df.Plan()
	if err != nil {
		e.metrics.queries.WithLabelValues(statusFailure).Inc()
		return nil, err
	}

	optimized, durOptimize, err := e.optimize(logger, plan)
	if err != nil {
		e.metrics.queries.WithLabelValues(statusFailure).Inc()
		return nil, fmt.Errorf("%w: %w", ErrPlanningFailed, err)
	}

	physicalPlan, durLower, err := e.lower(logger, optimized)
	if err != nil {
		e.metrics.queries.WithLabelValues(statusFailure).Inc()
		return nil, fmt.Errorf("%w: %w", ErrPlanningFailed, err)
	}

	root, err := physicalPlan.Root()
	if err != nil {
		// Unreachable: lowering already validated the plan has one root.
		e.metrics.queries.WithLabelValues(statusFailure).Inc()
		return nil, fmt.Errorf("%w: %w", ErrPlanningFailed, err)
	}

	sched, err := scheduler.New(e.schedulerOptions(), logger, e.backend, physicalPlan)
	if err != nil {
		e.metrics.queries.WithLabelValues(statusFailure).Inc()
		return nil, fmt.Errorf("%w: %w", ErrSchedulingFailed, err)
	}

	pipeline, err := sched.Run(ctx)
	if err != nil {
		e.metrics.queries.WithLabelValues(statusFailure).Inc()
		return nil, fmt.Errorf("%w: %w", ErrSchedulingFailed, err)
	}

	return &Result{
		engine:   e,
		logger:   logger,
		schema:   root.Schema(),
		pipeline: pipeline,

		start:       start,
		durOptimize: durOptimize,
		durLower:    durLower,
	}, nil
}

// optimize rewrites the logical plan through the engine's rule batches.
func (e *Engine) optimize(logger log.Logger, plan logical.Plan) (logical.Plan, time.Duration, error) {
	timer := prometheus.NewTimer(e.metrics.logicalPlanning)

	optimized, err := e.optimizer.Optimize(plan)
	if err != nil {
		level.Warn(logger).Log("msg", "failed to optimize logical plan", "err", err)
		return nil, 0, err
	}

	duration := timer.ObserveDuration()
	level.Debug(logger).Log(
		"msg", "finished logical planning",
		"plan", sprintLogical(optimized),
		"duration", duration.String(),
	)
	return optimized, duration, nil
}

// lower builds a physical plan from the optimized logical plan.
func (e *Engine) lower(logger log.Logger, plan logical.Plan) (*physical.Plan, time.Duration, error) {
	timer := prometheus.NewTimer(e.metrics.physicalPlanning)

	physicalPlan, err := physical.NewPlanner(e.plannerConfig()).Build(plan)
	if err != nil {
		level.Warn(logger).Log("msg", "failed to create physical plan", "err", err)
		return nil, 0, err
	}

	duration := timer.ObserveDuration()
	level.Debug(logger).Log(
		"msg", "finished physical planning",
		"plan", physical.PrintAsTree(physicalPlan),
		"duration", duration.String(),
	)
	return physicalPlan, duration, nil
}

// Explain returns a textual rendering of how the engine would run the
// query behind df: the logical plan, its optimized form, the physical plan
// with partitioning, and the tasks the run would be split into.
func (e *Engine) Explain(df *logical.DataFrame) (string, error) {
	plan, err := df.Plan()
	if err != nil {
		return "", err
	}

	optimized, err := e.optimizer.Optimize(plan)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPlanningFailed, err)
	}
	physicalPlan, err := physical.NewPlanner(e.plannerConfig()).Build(optimized)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPlanningFailed, err)
	}
	sched, err := scheduler.New(e.schedulerOptions(), e.logger, e.backend, physicalPlan)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSchedulingFailed, err)
	}

	var sb strings.Builder
	sb.WriteString("Logical plan:\n")
	logical.PrintTree(&sb, plan)
	sb.WriteString("\nOptimized logical plan:\n")
	logical.PrintTree(&sb, optimized)
	sb.WriteString("\nPhysical plan:\n")
	sb.WriteString(physical.PrintAsTree(physicalPlan))
	sb.WriteString("\nTasks:\n")
	sb.WriteString(scheduler.Sprint(sched))
	return sb.String(), nil
}

func sprintLogical(p logical.Plan) string {
	var sb strings.Builder
	logical.PrintTree(&sb, p)
	return sb.String()
}

// Result is a streaming view over a query's output.
//
// Records returned from Read are owned by the caller and must be released.
// Close must be called once reading is done; closing before the stream is
// exhausted cancels the remaining work.
type Result struct {
	engine   *Engine
	logger   log.Logger
	schema   *schema.Schema
	pipeline scheduler.Pipeline

	start       time.Time
	durOptimize time.Duration
	durLower    time.Duration

	rows    int64
	batches int64
	err     error

	closeOnce sync.Once
}

// Schema returns the schema of the records the result produces.
func (r *Result) Schema() *schema.Schema { return r.schema }

// Read returns the next record of the result, blocking until one is
// available. It returns [io.EOF] once the result is exhausted.
func (r *Result) Read(ctx context.Context) (arrow.Record, error) {
	record, err := r.pipeline.Read(ctx)
	if err != nil {
		if !errors.Is(err, io.EOF) && r.err == nil {
			r.err = err
		}
		return nil, err
	}

	r.rows += record.NumRows()
	r.batches++
	r.engine.metrics.emittedRows.Add(float64(record.NumRows()))
	r.engine.metrics.emittedBatches.Inc()
	return record, nil
}

// Close releases the resources of the run. Close is idempotent.
func (r *Result) Close() {
	r.closeOnce.Do(func() {
		r.pipeline.Close()

		status := statusSuccess
		switch {
		case errors.Is(r.err, context.Canceled):
			status = statusCanceled
		case r.err != nil:
			status = statusFailure
		}
		r.engine.metrics.queries.WithLabelValues(status).Inc()
		r.engine.metrics.execution.Observe(time.Since(r.start).Seconds())

		logValues := []any{
			"msg", "finished executing",
			"status", status,
			"duration_optimize", r.durOptimize,
			"duration_lower", r.durLower,
			"duration_full", time.Since(r.start),
			"batches", r.batches,
			"rows", r.rows,
		}
		if r.err != nil {
			logValues = append(logValues, "err", r.err)
		}
		level.Info(r.logger).Log(logValues...)
	})
}
