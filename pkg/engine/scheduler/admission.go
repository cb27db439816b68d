package scheduler

import (
	"math"

	"golang.org/x/sync/semaphore"

	"github.com/floedb/floe/pkg/engine/physical"
)

type taskType string

const (
	taskTypeScan  taskType = "scan"
	taskTypeOther taskType = "other"
)

type admissionLane struct {
	*semaphore.Weighted
	capacity int64
	lane     taskType
}

func newAdmissionLane(lane taskType, capacity int64) *admissionLane {
	return &admissionLane{
		Weighted: semaphore.NewWeighted(capacity),
		capacity: capacity,
		lane:     lane,
	}
}

// admissionControl bounds how many tasks of each type run concurrently. It
// is a lightweight wrapper around a mapping of task type to a weighted
// semaphore, so scan-heavy stages cannot starve the rest of the run.
type admissionControl struct {
	mapping map[taskType]*admissionLane
}

func newAdmissionControl(maxScanTasks, maxOtherTasks int64) *admissionControl {
	if maxScanTasks < 1 {
		maxScanTasks = math.MaxInt64
	}
	if maxOtherTasks < 1 {
		maxOtherTasks = math.MaxInt64
	}

	return &admissionControl{
		mapping: map[taskType]*admissionLane{
			taskTypeScan:  newAdmissionLane(taskTypeScan, maxScanTasks),
			taskTypeOther: newAdmissionLane(taskTypeOther, maxOtherTasks),
		},
	}
}

func (ac *admissionControl) typeFor(task *Task) taskType {
	if isScanTask(task) {
		return taskTypeScan
	}
	return taskTypeOther
}

func (ac *admissionControl) laneFor(task *Task) *admissionLane {
	return ac.mapping[ac.typeFor(task)]
}

func isScanTask(task *Task) bool {
	for node := range task.Fragment.Nodes() {
		if node.Type() == physical.NodeTypeScan {
			return true
		}
	}
	return false
}
