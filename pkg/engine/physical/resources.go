package physical

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Default resource requests assigned by the planner, by operator class.
// Stateful operators hold their whole input (hash tables, sort buffers)
// and get a larger memory request than streaming ones.
var (
	defaultScanResources      = ResourceRequest{CPUCores: 1, MemoryBytes: 64 << 20}
	defaultStreamingResources = ResourceRequest{CPUCores: 1, MemoryBytes: 16 << 20}
	defaultStatefulResources  = ResourceRequest{CPUCores: 1, MemoryBytes: 256 << 20}
	defaultExchangeResources  = ResourceRequest{CPUCores: 1, MemoryBytes: 32 << 20}
)

// ResourceRequest describes the resources a node needs while executing.
// Requests accumulate bottom-up: a node's effective request is at least the
// fieldwise maximum of its children's, because a pipeline stage runs all its
// operators concurrently. Accumulation stops at [Exchange] nodes since an
// exchange's input runs as a separate set of tasks.
type ResourceRequest struct {
	// CPUCores is the requested worker parallelism for data-parallel
	// operators.
	CPUCores int
	// MemoryBytes is the peak in-flight memory estimate.
	MemoryBytes int64
	// Accelerators is the number of accelerator devices required.
	// Non-zero only for projections calling accelerator-bound functions.
	Accelerators int
}

// Max returns the fieldwise maximum of r and other.
func (r ResourceRequest) Max(other ResourceRequest) ResourceRequest {
	return ResourceRequest{
		CPUCores:     max(r.CPUCores, other.CPUCores),
		MemoryBytes:  max(r.MemoryBytes, other.MemoryBytes),
		Accelerators: max(r.Accelerators, other.Accelerators),
	}
}

// IsZero reports whether no resources are requested.
func (r ResourceRequest) IsZero() bool {
	return r.CPUCores == 0 && r.MemoryBytes == 0 && r.Accelerators == 0
}

// String returns a representation such as "cpu=2 memory=64 MiB" with an
// "accelerators=" field appended when non-zero.
func (r ResourceRequest) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cpu=%d memory=%s", r.CPUCores, humanize.IBytes(uint64(max(r.MemoryBytes, 0))))
	if r.Accelerators > 0 {
		fmt.Fprintf(&sb, " accelerators=%d", r.Accelerators)
	}
	return sb.String()
}
