package optimizer

import (
	"math"

	"github.com/floedb/floe/pkg/engine/internal/treenode"
	"github.com/floedb/floe/pkg/engine/logical"
)

// PushDownLimit moves limits towards the scans. Adjacent limits merge,
// limits move below projections, a copy of the limit caps every union input,
// and limits reaching a scan become part of its pushdowns. Limits are never
// pushed below filters, sorts, aggregations, distincts or explodes, all of
// those change which or how many rows come out.
type PushDownLimit struct{}

var _ Rule = (*PushDownLimit)(nil)

// Name implements Rule.
func (r *PushDownLimit) Name() string { return "PushDownLimit" }

// Apply implements Rule.
func (r *PushDownLimit) Apply(plan logical.Plan) (logical.Plan, bool, error) {
	out, err := treenode.TransformDown(plan, func(p logical.Plan) (treenode.Transformed[logical.Plan], error) {
		if l, ok := p.(*logical.Limit); ok {
			return r.pushLimit(l)
		}
		return treenode.No(p), nil
	})
	if err != nil {
		return nil, false, err
	}
	return out.Data, out.Changed, nil
}

func (r *PushDownLimit) pushLimit(l *logical.Limit) (treenode.Transformed[logical.Plan], error) {
	switch input := l.Input().(type) {
	case *logical.Limit:
		// The outer limit slices the inner limit's output. Merge the two,
		// then keep pushing the merged one.
		skip := saturatingAdd(input.Skip(), l.Skip())
		fetch := min(l.Fetch(), saturatingSub(input.Fetch(), l.Skip()))
		merged, err := logical.NewLimit(input.Input(), skip, fetch)
		if err != nil {
			return treenode.Transformed[logical.Plan]{}, err
		}
		pushed, err := r.pushLimit(merged)
		if err != nil {
			return treenode.Transformed[logical.Plan]{}, err
		}
		return treenode.Yes(pushed.Data), nil

	case *logical.Project:
		below, err := logical.NewLimit(input.Input(), l.Skip(), l.Fetch())
		if err != nil {
			return treenode.Transformed[logical.Plan]{}, err
		}
		rebuilt, err := logical.NewProject(below, input.Exprs())
		if err != nil {
			return treenode.No[logical.Plan](l), nil
		}
		return treenode.Yes[logical.Plan](rebuilt), nil

	case *logical.Union:
		return r.pushIntoUnion(l, input)

	case *logical.Scan:
		total := saturatingAdd(l.Skip(), l.Fetch())
		if input.Limit() != 0 && input.Limit() <= int64(total) {
			return treenode.No[logical.Plan](l), nil
		}
		if total > math.MaxInt64 {
			return treenode.No[logical.Plan](l), nil
		}
		// The scan limit is a per-partition hint, the limit node above
		// stays to enforce the exact count.
		rebuilt, err := l.WithChildren([]logical.Plan{input.WithLimit(int64(total))})
		if err != nil {
			return treenode.Transformed[logical.Plan]{}, err
		}
		return treenode.Yes(rebuilt), nil
	}

	return treenode.No[logical.Plan](l), nil
}

// pushIntoUnion caps every union input at the rows the outer limit can ever
// need. The outer limit stays to apply the exact skip and fetch globally.
func (r *PushDownLimit) pushIntoUnion(l *logical.Limit, u *logical.Union) (treenode.Transformed[logical.Plan], error) {
	total := saturatingAdd(l.Skip(), l.Fetch())

	capped := make([]logical.Plan, len(u.Inputs()))
	changed := false
	for i, in := range u.Inputs() {
		if existing, ok := in.(*logical.Limit); ok && existing.Skip() == 0 && existing.Fetch() <= total {
			capped[i] = in
			continue
		}
		below, err := logical.NewLimit(in, 0, total)
		if err != nil {
			return treenode.Transformed[logical.Plan]{}, err
		}
		capped[i] = below
		changed = true
	}
	if !changed {
		return treenode.No[logical.Plan](l), nil
	}

	rebuilt, err := logical.NewUnion(capped)
	if err != nil {
		return treenode.No[logical.Plan](l), nil
	}
	above, err := l.WithChildren([]logical.Plan{rebuilt})
	if err != nil {
		return treenode.Transformed[logical.Plan]{}, err
	}
	return treenode.Yes(above), nil
}

func saturatingAdd(a, b uint64) uint64 {
	if sum := a + b; sum >= a {
		return sum
	}
	return math.MaxUint64
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
