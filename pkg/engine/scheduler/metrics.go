package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the task metrics of one or more schedulers. A Scheduler
// runs a single plan, so the long-lived owner creates the Metrics once and
// hands them to every run through [Options].
type Metrics struct {
	tasksTotal *prometheus.CounterVec

	taskQueueSeconds prometheus.Histogram
	taskExecSeconds  prometheus.Histogram
}

// NewMetrics creates task metrics registered with reg. A nil reg leaves
// them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		tasksTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "floe_engine_scheduler_tasks_total",
			Help: "Total number of tasks by state, counting transitions into state",
		}, []string{"state"}),

		taskQueueSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "floe_engine_scheduler_task_queue_seconds",
			Help: "Number of seconds a task waited for admission before starting",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),

		taskExecSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "floe_engine_scheduler_task_exec_seconds",
			Help: "Number of seconds a task took to complete successfully",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),
	}
}
