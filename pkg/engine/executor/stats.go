package executor

import "go.uber.org/atomic"

// taskStats counts per-task execution progress. Operators update the
// counters concurrently.
type taskStats struct {
	rowsScanned atomic.Int64
	batchesOut  atomic.Int64
	rowsOut     atomic.Int64
}
