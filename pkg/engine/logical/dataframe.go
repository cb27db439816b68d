package logical

import (
	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/source"
)

// DataFrame builds a logical plan through chained method calls. Each call
// wraps the plan in a new node; the first construction error is carried and
// returned by Plan, so callers chain freely and check once:
//
//	plan, err := logical.From(src).
//		Filter(expr.Gt(expr.Col("a"), expr.Lit(int64(5)))).
//		Select(expr.Col("a"), expr.Col("b")).
//		Limit(10).
//		Plan()
type DataFrame struct {
	plan Plan
	err  error
}

// From starts a DataFrame reading all columns of src.
func From(src source.DataSource) *DataFrame {
	scan, err := NewScan(src, nil)
	return &DataFrame{plan: scan, err: err}
}

// NewDataFrame starts a DataFrame from an existing plan.
func NewDataFrame(plan Plan) *DataFrame {
	return &DataFrame{plan: plan}
}

func (df *DataFrame) wrap(plan Plan, err error) *DataFrame {
	if err != nil {
		return &DataFrame{err: err}
	}
	return &DataFrame{plan: plan}
}

// Filter keeps rows for which predicate evaluates to true.
func (df *DataFrame) Filter(predicate expr.Expr) *DataFrame {
	if df.err != nil {
		return df
	}
	return df.wrap(NewFilter(df.plan, predicate))
}

// Select projects the frame to the given expressions.
func (df *DataFrame) Select(exprs ...expr.Expr) *DataFrame {
	if df.err != nil {
		return df
	}
	return df.wrap(NewProject(df.plan, exprs))
}

// Aggregate groups by the groupBy expressions and computes the aggregations
// within each group. An empty groupBy aggregates the whole frame into one row.
func (df *DataFrame) Aggregate(groupBy []expr.Expr, aggregations []expr.Expr) *DataFrame {
	if df.err != nil {
		return df
	}
	return df.wrap(NewAggregate(df.plan, groupBy, aggregations))
}

// Join combines the frame with other on equality of the key column pairs.
func (df *DataFrame) Join(other *DataFrame, how JoinType, leftOn, rightOn []string) *DataFrame {
	if df.err != nil {
		return df
	}
	if other.err != nil {
		return &DataFrame{err: other.err}
	}
	return df.wrap(NewJoin(df.plan, other.plan, how, leftOn, rightOn))
}

// Sort orders the frame by the sort fields.
func (df *DataFrame) Sort(fields ...SortField) *DataFrame {
	if df.err != nil {
		return df
	}
	return df.wrap(NewSort(df.plan, fields))
}

// Limit keeps at most fetch rows.
func (df *DataFrame) Limit(fetch uint64) *DataFrame {
	if df.err != nil {
		return df
	}
	return df.wrap(NewLimit(df.plan, 0, fetch))
}

// Offset skips the first skip rows and keeps at most fetch of the rest.
func (df *DataFrame) Offset(skip, fetch uint64) *DataFrame {
	if df.err != nil {
		return df
	}
	return df.wrap(NewLimit(df.plan, skip, fetch))
}

// Explode emits one row per element of the named list column.
func (df *DataFrame) Explode(column string) *DataFrame {
	if df.err != nil {
		return df
	}
	return df.wrap(NewExplode(df.plan, column))
}

// Distinct removes duplicate rows.
func (df *DataFrame) Distinct() *DataFrame {
	if df.err != nil {
		return df
	}
	return df.wrap(NewDistinct(df.plan))
}

// Union concatenates the frame with the others.
func (df *DataFrame) Union(others ...*DataFrame) *DataFrame {
	if df.err != nil {
		return df
	}
	inputs := make([]Plan, 0, len(others)+1)
	inputs = append(inputs, df.plan)
	for _, o := range others {
		if o.err != nil {
			return &DataFrame{err: o.err}
		}
		inputs = append(inputs, o.plan)
	}
	return df.wrap(NewUnion(inputs))
}

// Repartition redistributes the frame across partitions.
func (df *DataFrame) Repartition(kind RepartitionKind, keys []string, partitions int) *DataFrame {
	if df.err != nil {
		return df
	}
	return df.wrap(NewRepartition(df.plan, kind, keys, partitions))
}

// Plan returns the built plan, or the first error hit while chaining.
func (df *DataFrame) Plan() (Plan, error) {
	if df.err != nil {
		return nil, df.err
	}
	return df.plan, nil
}
