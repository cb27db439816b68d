package optimizer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics is a container of metrics for an optimizer.
type metrics struct {
	batchIterations *prometheus.HistogramVec
	rulesApplied    *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		batchIterations: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "floe_engine_optimizer_batch_iterations",
			Help:    "Number of iterations a rule batch ran before converging or hitting its cap",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}, []string{"batch"}),

		rulesApplied: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "floe_engine_optimizer_rule_applications_total",
			Help: "Total number of plan rewrites, counted per applying rule",
		}, []string{"rule"}),
	}
}
