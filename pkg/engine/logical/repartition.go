package logical

import (
	"fmt"
	"strings"

	"github.com/floedb/floe/pkg/engine/schema"
)

// RepartitionKind identifies how rows are redistributed across partitions.
type RepartitionKind int

// Supported repartition kinds.
const (
	// RepartitionHash routes each row by a hash of its key columns. Rows
	// with equal keys land in the same partition.
	RepartitionHash RepartitionKind = iota
	// RepartitionRandom spreads rows across partitions without regard to
	// their content.
	RepartitionRandom
	// RepartitionSingle collapses all rows into one partition.
	RepartitionSingle
)

var repartitionKindStrings = map[RepartitionKind]string{
	RepartitionHash:   "hash",
	RepartitionRandom: "random",
	RepartitionSingle: "single",
}

// String returns a human-readable representation of the repartition kind.
func (k RepartitionKind) String() string {
	if s, ok := repartitionKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("RepartitionKind(%d)", k)
}

// Compile-time check to ensure Repartition implements Plan.
var _ Plan = (*Repartition)(nil)

// Repartition redistributes the rows of its input across a target number of
// partitions. Row content and the schema are unchanged.
type Repartition struct {
	input      Plan
	kind       RepartitionKind
	keys       []string
	partitions int
}

// NewRepartition creates a repartition of input. Hash repartitioning needs at
// least one key column present in the input schema; the other kinds take no
// keys. RepartitionSingle ignores partitions and always yields one.
func NewRepartition(input Plan, kind RepartitionKind, keys []string, partitions int) (*Repartition, error) {
	switch kind {
	case RepartitionHash:
		if len(keys) == 0 {
			return nil, planErr("Repartition", "hash repartitioning needs at least one key")
		}
		for _, key := range keys {
			if !input.Schema().Has(key) {
				return nil, planErr("Repartition", "key column %q not found in input", key)
			}
		}
		if partitions < 1 {
			return nil, planErr("Repartition", "partition count must be positive, got %d", partitions)
		}
	case RepartitionRandom:
		if len(keys) > 0 {
			return nil, planErr("Repartition", "random repartitioning takes no keys")
		}
		if partitions < 1 {
			return nil, planErr("Repartition", "partition count must be positive, got %d", partitions)
		}
	case RepartitionSingle:
		if len(keys) > 0 {
			return nil, planErr("Repartition", "single repartitioning takes no keys")
		}
		partitions = 1
	default:
		return nil, planErr("Repartition", "unsupported kind %s", kind)
	}
	return &Repartition{input: input, kind: kind, keys: keys, partitions: partitions}, nil
}

// Kind returns the repartition kind.
func (r *Repartition) Kind() RepartitionKind { return r.kind }

// Keys returns the hash key columns. Empty for non-hash kinds.
func (r *Repartition) Keys() []string { return r.keys }

// Partitions returns the target partition count.
func (r *Repartition) Partitions() int { return r.partitions }

// Input returns the repartitioned plan.
func (r *Repartition) Input() Plan { return r.input }

func (*Repartition) isPlan() {}

func (r *Repartition) Schema() *schema.Schema { return r.input.Schema() }

func (r *Repartition) Children() []Plan { return []Plan{r.input} }

func (r *Repartition) WithChildren(children []Plan) (Plan, error) {
	if err := expectChildren("Repartition", 1, len(children)); err != nil {
		return nil, err
	}
	return NewRepartition(children[0], r.kind, r.keys, r.partitions)
}

func (r *Repartition) String() string {
	if r.kind == RepartitionHash {
		return fmt.Sprintf("Repartition kind=%s keys=(%s) partitions=%d", r.kind, strings.Join(r.keys, ", "), r.partitions)
	}
	return fmt.Sprintf("Repartition kind=%s partitions=%d", r.kind, r.partitions)
}
