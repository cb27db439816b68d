package executor

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cespare/xxhash/v2"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/physical"
	"github.com/floedb/floe/pkg/engine/types"
)

// buildAggregate runs a hash aggregation. The operator consumes its whole
// input before emitting: complete and partial stages accumulate raw rows,
// the final stage merges accumulator states produced by partial stages.
func (b *builder) buildAggregate(ctx context.Context, node *physical.Aggregate) (*edge, error) {
	in, err := b.childEdge(ctx, node)
	if err != nil {
		return nil, err
	}
	aggs, err := nodeAggregations(node)
	if err != nil {
		return nil, err
	}

	out := b.newEdge(1)
	b.group.Go(func() error {
		defer out.finish()
		agg := &hashAggregate{
			alloc:     b.alloc,
			eval:      b.eval,
			node:      node,
			aggs:      aggs,
			batchSize: b.opts.BatchSize,
			groups:    make(map[uint64]*groupState),
		}
		agg.run(ctx, in, out)
		return nil
	})
	return out, nil
}

// aggregation pairs an aggregate call with its final value type.
type aggregation struct {
	call    *expr.AggExpr
	outType types.DataType
}

// stateWidth is the number of partial state columns the aggregation
// occupies.
func (a aggregation) stateWidth() int {
	if a.call.Op == types.AggregateOpAvg {
		return 2
	}
	return 1
}

// nodeAggregations resolves the node's aggregate calls against its schema.
// The schema is positional: group columns lead, then one column per
// aggregation, except that a partial-stage avg holds a sum and a count
// column.
func nodeAggregations(node *physical.Aggregate) ([]aggregation, error) {
	cols := node.Schema().Columns[len(node.GroupBy):]
	aggs := make([]aggregation, 0, len(node.Aggregations))
	idx := 0
	for _, e := range node.Aggregations {
		call := unwrapAggCall(e)
		if call == nil {
			return nil, fmt.Errorf("%s is not an aggregate call", e)
		}
		if idx >= len(cols) {
			return nil, fmt.Errorf("aggregate schema has %d value columns for %d aggregations", len(cols), len(node.Aggregations))
		}
		aggs = append(aggs, aggregation{call: call, outType: cols[idx].Type})
		if call.Op == types.AggregateOpAvg && node.Mode == physical.AggregateModePartial {
			idx += 2
		} else {
			idx++
		}
	}
	return aggs, nil
}

// unwrapAggCall returns the aggregate call inside e, stepping through
// aliases, or nil if there is none.
func unwrapAggCall(e expr.Expr) *expr.AggExpr {
	for {
		switch v := e.(type) {
		case *expr.AggExpr:
			return v
		case *expr.AliasExpr:
			e = v.Value
		default:
			return nil
		}
	}
}

// groupState holds one group's key values and accumulator per aggregation.
type groupState struct {
	keys []any
	accs []accumulator
}

type hashAggregate struct {
	alloc     memory.Allocator
	eval      evaluator
	node      *physical.Aggregate
	aggs      []aggregation
	batchSize int64

	digest xxhash.Digest
	groups map[uint64]*groupState
	order  []uint64
}

func (a *hashAggregate) run(ctx context.Context, in, out *edge) {
	// A global aggregation emits exactly one row even over empty input, so
	// its single group exists up front.
	if len(a.node.GroupBy) == 0 {
		a.groupFor(0, nil)
	}

	for {
		batch, err := in.next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			in.closeReader()
			out.fail(ctx, err)
			return
		}

		if a.node.Mode == physical.AggregateModeFinal {
			err = a.mergeBatch(batch)
		} else {
			err = a.addBatch(batch)
		}
		batch.Release()
		if err != nil {
			in.closeReader()
			out.fail(ctx, err)
			return
		}
	}

	a.emit(ctx, out)
}

// addBatch accumulates raw input rows into their groups.
func (a *hashAggregate) addBatch(batch arrow.Record) error {
	keys := make([]ColumnVector, len(a.node.GroupBy))
	values := make([]ColumnVector, len(a.aggs))
	defer func() {
		for _, vec := range keys {
			if vec != nil {
				vec.Release()
			}
		}
		for _, vec := range values {
			if vec != nil {
				vec.Release()
			}
		}
	}()

	for i, g := range a.node.GroupBy {
		vec, err := a.eval.eval(g, batch)
		if err != nil {
			return err
		}
		keys[i] = vec
	}
	for i, agg := range a.aggs {
		if agg.call.Value == nil {
			continue
		}
		vec, err := a.eval.eval(agg.call.Value, batch)
		if err != nil {
			return err
		}
		values[i] = vec
	}

	rowKeys := make([]any, len(keys))
	for row := range int(batch.NumRows()) {
		for i, vec := range keys {
			rowKeys[i] = vec.Value(row)
		}
		group := a.groupFor(a.hashKeys(rowKeys), rowKeys)
		for i := range a.aggs {
			var v any
			if values[i] != nil {
				v = values[i].Value(row)
			}
			group.accs[i].add(v)
		}
	}
	return nil
}

// mergeBatch folds partial accumulator states into their groups. The
// input layout is the partial schema: group keys first, then the state
// columns per aggregation.
func (a *hashAggregate) mergeBatch(batch arrow.Record) error {
	groupWidth := len(a.node.GroupBy)
	stateWidth := 0
	for _, agg := range a.aggs {
		stateWidth += agg.stateWidth()
	}
	if int(batch.NumCols()) != groupWidth+stateWidth {
		return fmt.Errorf("partial state batch has %d columns, expected %d", batch.NumCols(), groupWidth+stateWidth)
	}

	rowKeys := make([]any, groupWidth)
	for row := range int(batch.NumRows()) {
		for i := range groupWidth {
			rowKeys[i] = arrayValue(batch.Column(i), row)
		}
		group := a.groupFor(a.hashKeys(rowKeys), rowKeys)

		col := groupWidth
		for i, agg := range a.aggs {
			if agg.call.Op == types.AggregateOpAvg {
				sum := arrayValue(batch.Column(col), row)
				count := arrayValue(batch.Column(col+1), row)
				group.accs[i].mergeAvg(sum, count)
				col += 2
				continue
			}
			group.accs[i].merge(arrayValue(batch.Column(col), row))
			col++
		}
	}
	return nil
}

// hashKeys digests the group key values. The empty key of a global
// aggregation always digests to zero.
func (a *hashAggregate) hashKeys(keys []any) uint64 {
	if len(keys) == 0 {
		return 0
	}
	return hashValues(&a.digest, keys)
}

// groupFor returns the group for the digest, creating it on first sight.
// Emission follows creation order.
func (a *hashAggregate) groupFor(digest uint64, keys []any) *groupState {
	if group, ok := a.groups[digest]; ok {
		return group
	}
	group := &groupState{
		keys: make([]any, len(keys)),
		accs: make([]accumulator, len(a.aggs)),
	}
	for i, key := range keys {
		// Strings point into arrow buffers that die with the batch.
		if s, ok := key.(string); ok {
			key = strings.Clone(s)
		}
		group.keys[i] = key
	}
	for i, agg := range a.aggs {
		group.accs[i] = accumulator{op: agg.call.Op, countAll: agg.call.Value == nil, outType: agg.outType}
	}
	a.groups[digest] = group
	a.order = append(a.order, digest)
	return group
}

// emit builds the output records in group creation order, flushing every
// batchSize rows.
func (a *hashAggregate) emit(ctx context.Context, out *edge) {
	rb := array.NewRecordBuilder(a.alloc, a.node.Schema().ArrowSchema())
	defer rb.Release()

	partial := a.node.Mode == physical.AggregateModePartial
	groupWidth := len(a.node.GroupBy)

	var pending int64
	for _, digest := range a.order {
		group := a.groups[digest]
		for i, key := range group.keys {
			appendGoValue(rb.Field(i), key)
		}
		col := groupWidth
		for i := range a.aggs {
			acc := &group.accs[i]
			if partial {
				col += acc.emitState(rb, col)
				continue
			}
			appendGoValue(rb.Field(col), acc.emitFinal())
			col++
		}

		if pending++; pending >= a.batchSize {
			if !pushBuilt(ctx, out, rb) {
				return
			}
			pending = 0
		}
	}
	if pending > 0 {
		pushBuilt(ctx, out, rb)
	}
}

// pushBuilt flushes the rows collected in rb downstream. It reports
// whether emission should continue.
func pushBuilt(ctx context.Context, out *edge, rb *array.RecordBuilder) bool {
	rec := rb.NewRecord()
	if rec.NumRows() == 0 {
		rec.Release()
		return true
	}
	if out.push(ctx, rec) != nil {
		rec.Release()
		return false
	}
	return true
}

// accumulator holds the running state of one aggregation for one group.
type accumulator struct {
	op       types.AggregateOp
	outType  types.DataType
	countAll bool

	intSum   int64
	floatSum float64
	count    int64
	extreme  any
	seen     bool
}

// add folds one raw input value into the accumulator. NULL values are
// ignored except by COUNT(*), which counts rows.
func (c *accumulator) add(v any) {
	if c.op == types.AggregateOpCount {
		if c.countAll || v != nil {
			c.count++
		}
		return
	}
	if v == nil {
		return
	}

	switch c.op {
	case types.AggregateOpSum:
		c.addSum(v)
	case types.AggregateOpAvg:
		c.floatSum += asFloat64(v)
		c.count++
	case types.AggregateOpMin:
		if !c.seen || compareGoValues(v, c.extreme) < 0 {
			c.setExtreme(v)
		}
	case types.AggregateOpMax:
		if !c.seen || compareGoValues(v, c.extreme) > 0 {
			c.setExtreme(v)
		}
	}
	c.seen = true
}

// merge folds one partial state value into the accumulator. Counts merge
// by summing; sums, minimums, and maximums merge like raw values.
func (c *accumulator) merge(v any) {
	if c.op == types.AggregateOpCount {
		if v != nil {
			c.count += v.(int64)
		}
		return
	}
	c.add(v)
}

// mergeAvg folds one partial avg state, a sum and count column pair.
func (c *accumulator) mergeAvg(sum, count any) {
	if sum != nil {
		c.floatSum += asFloat64(sum)
	}
	if count != nil {
		c.count += count.(int64)
	}
	c.seen = c.seen || c.count > 0
}

func (c *accumulator) addSum(v any) {
	if c.outType.ID() == types.TypeInt64 {
		c.intSum += v.(int64)
		return
	}
	c.floatSum += asFloat64(v)
}

func (c *accumulator) setExtreme(v any) {
	if s, ok := v.(string); ok {
		v = strings.Clone(s)
	}
	c.extreme = v
}

// emitFinal returns the final value of the aggregation, or nil for NULL.
func (c *accumulator) emitFinal() any {
	switch c.op {
	case types.AggregateOpCount:
		return c.count
	case types.AggregateOpSum:
		if !c.seen {
			return nil
		}
		if c.outType.ID() == types.TypeInt64 {
			return c.intSum
		}
		return c.floatSum
	case types.AggregateOpMin, types.AggregateOpMax:
		if !c.seen {
			return nil
		}
		return c.extreme
	case types.AggregateOpAvg:
		if c.count == 0 {
			return nil
		}
		return c.floatSum / float64(c.count)
	}
	panic(fmt.Sprintf("invalid aggregate operator %s", c.op))
}

// emitState appends the partial state columns to the record builder
// starting at column col and returns how many columns it wrote.
func (c *accumulator) emitState(rb *array.RecordBuilder, col int) int {
	switch c.op {
	case types.AggregateOpAvg:
		if c.count == 0 {
			rb.Field(col).AppendNull()
		} else {
			appendGoValue(rb.Field(col), c.floatSum)
		}
		appendGoValue(rb.Field(col+1), c.count)
		return 2
	default:
		appendGoValue(rb.Field(col), c.emitFinal())
		return 1
	}
}

func asFloat64(v any) float64 {
	switch v := v.(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	}
	panic(fmt.Sprintf("not a numeric value: %T", v))
}

// compareGoValues orders two non-nil values of the same type.
func compareGoValues(a, b any) int {
	switch av := a.(type) {
	case int64:
		return compareInt64(av, b.(int64))
	case float64:
		return compareFloat64(av, b.(float64))
	case string:
		return strings.Compare(av, b.(string))
	case bool:
		return compareBool(av, b.(bool))
	case arrow.Timestamp:
		return compareInt64(int64(av), int64(b.(arrow.Timestamp)))
	}
	panic(fmt.Sprintf("unsupported comparison between %T values", a))
}
