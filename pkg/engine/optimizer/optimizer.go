// Package optimizer rewrites logical plans into cheaper equivalent plans.
// Rules are grouped into ordered batches; each batch is iterated until no
// rule changes the plan or the iteration cap is reached. Every rewrite must
// keep the root schema intact, a rule that changes it fails the whole
// optimization.
package optimizer

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/floedb/floe/pkg/engine/logical"
	"github.com/floedb/floe/pkg/engine/schema"
)

// A Rule is a transformation that can be applied on a plan.
type Rule interface {
	// Name identifies the rule in errors and logs.
	Name() string
	// Apply tries to apply the transformation on the plan. It returns the
	// resulting plan and a boolean indicating whether the transformation
	// has been applied. Applying a rule to its own output must report no
	// change.
	Apply(plan logical.Plan) (logical.Plan, bool, error)
}

// A Batch is an ordered set of rules iterated together until none of them
// changes the plan.
type Batch struct {
	// Name identifies the batch in logs.
	Name string
	// Rules are applied in order within each iteration.
	Rules []Rule
	// MaxIterations caps the iterations of this batch. Zero falls back to
	// the optimizer-wide cap.
	MaxIterations int
}

// DefaultMaxIterations is the per-batch iteration cap used when neither the
// batch nor the config sets one.
const DefaultMaxIterations = 5

// DefaultBatches returns the standard rule batches in their standard order:
// expression simplification, pushdowns, then join ordering.
func DefaultBatches() []Batch {
	return []Batch{
		{Name: "simplify", Rules: []Rule{&SimplifyExpressions{}}},
		{Name: "pushdown", Rules: []Rule{&PushDownFilter{}, &PushDownProjection{}, &PushDownLimit{}}},
		{Name: "join-order", Rules: []Rule{&ReorderJoins{}}},
	}
}

// Config configures an [Optimizer].
type Config struct {
	// Batches overrides the rule batches. Nil uses [DefaultBatches].
	Batches []Batch
	// MaxIterations caps batch iterations. Zero uses
	// [DefaultMaxIterations].
	MaxIterations int
	// Logger receives a warning when a batch hits its iteration cap
	// without converging. Nil discards logs.
	Logger log.Logger
	// Registerer receives the optimizer's metrics. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer
}

// The Optimizer applies its configured rule batches to logical plans.
type Optimizer struct {
	batches       []Batch
	maxIterations int
	logger        log.Logger
	metrics       *metrics
}

// New creates an optimizer from cfg.
func New(cfg Config) *Optimizer {
	batches := cfg.Batches
	if batches == nil {
		batches = DefaultBatches()
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Optimizer{
		batches:       batches,
		maxIterations: maxIterations,
		logger:        logger,
		metrics:       newMetrics(cfg.Registerer),
	}
}

// Optimize runs all batches over plan and returns the rewritten plan. The
// input plan is never mutated. Optimize fails if a rule errors or breaks the
// root schema; the plan is then unusable and the error names the rule.
func (o *Optimizer) Optimize(plan logical.Plan) (logical.Plan, error) {
	for _, batch := range o.batches {
		var err error
		plan, err = o.runBatch(batch, plan)
		if err != nil {
			return nil, err
		}
	}
	return plan, nil
}

func (o *Optimizer) runBatch(batch Batch, plan logical.Plan) (logical.Plan, error) {
	maxIterations := batch.MaxIterations
	if maxIterations <= 0 {
		maxIterations = o.maxIterations
	}

	iterations := 0
	for iterations < maxIterations {
		iterations++

		anyChanged := false
		for _, rule := range batch.Rules {
			next, changed, err := rule.Apply(plan)
			if err != nil {
				return nil, fmt.Errorf("optimizer rule %s: %w", rule.Name(), err)
			}
			if !changed {
				continue
			}
			if !schema.Equal(plan.Schema(), next.Schema()) {
				return nil, fmt.Errorf("optimizer rule %s changed the plan schema from %s to %s",
					rule.Name(), plan.Schema(), next.Schema())
			}
			plan = next
			anyChanged = true
			o.metrics.rulesApplied.WithLabelValues(rule.Name()).Inc()
		}

		if !anyChanged {
			// Stop immediately once an iteration produced no changes.
			o.metrics.batchIterations.WithLabelValues(batch.Name).Observe(float64(iterations))
			return plan, nil
		}
	}

	level.Warn(o.logger).Log(
		"msg", "optimization batch did not converge",
		"batch", batch.Name,
		"max_iterations", maxIterations,
	)
	o.metrics.batchIterations.WithLabelValues(batch.Name).Observe(float64(iterations))
	return plan, nil
}
