package physical

import (
	"fmt"
	"strings"
)

// PartitionScheme describes how a relation's rows are distributed across
// parallel units.
type PartitionScheme uint8

const (
	// PartitionUnknown is the zero value and only valid as a requirement,
	// where it means "no requirement".
	PartitionUnknown PartitionScheme = iota

	// PartitionUnpartitioned means rows are split across units without any
	// key discipline.
	PartitionUnpartitioned
	// PartitionHash means rows are distributed by a hash of the key
	// columns; equal keys land in the same partition.
	PartitionHash
	// PartitionRange means rows are distributed by contiguous ranges of
	// the key columns; each partition is internally ordered by them.
	PartitionRange
	// PartitionSingle means all rows live in exactly one partition.
	PartitionSingle
)

// String returns the string representation of the [PartitionScheme].
func (s PartitionScheme) String() string {
	switch s {
	case PartitionUnknown:
		return "unknown"
	case PartitionUnpartitioned:
		return "unpartitioned"
	case PartitionHash:
		return "hash"
	case PartitionRange:
		return "range"
	case PartitionSingle:
		return "single"
	default:
		return fmt.Sprintf("PartitionScheme(%d)", s)
	}
}

// Partitioning describes the distribution of a node's output rows. It is
// used both as the actual distribution of a producer and as the required
// distribution of a consumer; [Partitioning.Satisfies] compares the two.
type Partitioning struct {
	Scheme PartitionScheme
	// Keys are the column names rows are distributed by. Only set for
	// hash and range schemes.
	Keys []string
	// Partitions is the number of parallel units. Zero in a requirement
	// means any partition count is acceptable.
	Partitions int
}

// Unpartitioned returns an unpartitioned distribution across n units.
func Unpartitioned(n int) Partitioning {
	return Partitioning{Scheme: PartitionUnpartitioned, Partitions: n}
}

// HashPartitioned returns a hash distribution on keys across n units.
func HashPartitioned(keys []string, n int) Partitioning {
	return Partitioning{Scheme: PartitionHash, Keys: keys, Partitions: n}
}

// RangePartitioned returns a range distribution on keys across n units.
func RangePartitioned(keys []string, n int) Partitioning {
	return Partitioning{Scheme: PartitionRange, Keys: keys, Partitions: n}
}

// SinglePartition returns the single-partition distribution.
func SinglePartition() Partitioning {
	return Partitioning{Scheme: PartitionSingle, Partitions: 1}
}

// Satisfies reports whether data distributed as p meets the requirement.
// This comparison is the single authoritative point deciding whether the
// planner inserts an [Exchange]: one is inserted exactly when the producer's
// actual partitioning does not satisfy the consumer's required partitioning.
//
// An unknown requirement is always satisfied. A single-partition requirement
// is satisfied by any distribution with one partition. Hash and range
// requirements need the same scheme and the same keys in the same order;
// key order matters because the row hash is built in key order. A zero
// partition count in the requirement accepts any count.
func (p Partitioning) Satisfies(required Partitioning) bool {
	switch required.Scheme {
	case PartitionUnknown:
		return true
	case PartitionUnpartitioned:
		return required.Partitions == 0 || p.Partitions == required.Partitions
	case PartitionSingle:
		return p.Partitions == 1
	case PartitionHash, PartitionRange:
		if p.Scheme != required.Scheme {
			return false
		}
		if required.Partitions != 0 && p.Partitions != required.Partitions {
			return false
		}
		if len(p.Keys) != len(required.Keys) {
			return false
		}
		for i := range p.Keys {
			if p.Keys[i] != required.Keys[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String returns a compact representation such as "hash(region, user; 4)"
// or "single".
func (p Partitioning) String() string {
	switch p.Scheme {
	case PartitionHash, PartitionRange:
		return fmt.Sprintf("%s(%s; %d)", p.Scheme, strings.Join(p.Keys, ", "), p.Partitions)
	case PartitionSingle:
		return p.Scheme.String()
	default:
		return fmt.Sprintf("%s(%d)", p.Scheme, p.Partitions)
	}
}
