package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess  = "success"
	statusFailure  = "failure"
	statusCanceled = "canceled"
)

// metrics is a container of metrics for an engine.
type metrics struct {
	queries *prometheus.CounterVec

	logicalPlanning  prometheus.Histogram
	physicalPlanning prometheus.Histogram
	execution        prometheus.Histogram

	emittedRows    prometheus.Counter
	emittedBatches prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		queries: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "floe_engine_queries_total",
			Help: "Total number of queries by outcome",
		}, []string{"status"}),

		logicalPlanning: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "floe_engine_logical_planning_seconds",
			Help: "Number of seconds spent optimizing the logical plan",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),
		physicalPlanning: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "floe_engine_physical_planning_seconds",
			Help: "Number of seconds spent lowering the logical plan into a physical plan",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),
		execution: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "floe_engine_execution_seconds",
			Help: "Number of seconds from starting a query until its result was closed",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),

		emittedRows: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "floe_engine_emitted_rows_total",
			Help: "Total number of rows returned to result readers",
		}),
		emittedBatches: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "floe_engine_emitted_batches_total",
			Help: "Total number of records returned to result readers",
		}),
	}
}
