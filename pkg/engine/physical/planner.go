package physical

import (
	"fmt"
	"math"

	"github.com/floedb/floe/pkg/engine/expr"
	"github.com/floedb/floe/pkg/engine/logical"
	"github.com/floedb/floe/pkg/engine/schema"
)

// Config holds planner settings.
type Config struct {
	// TargetPartitions is the partition count for hash redistributions.
	// Zero keeps the producer's partition count.
	TargetPartitions int
	// BroadcastJoinRows enables broadcast joins: when the build side is
	// estimated at or below this many rows, it is replicated to every
	// probe partition instead of hash partitioning both sides. Zero
	// disables broadcast joins.
	BroadcastJoinRows int64
	// AcceleratedFunctions maps scalar function names to the number of
	// accelerator devices a projection calling them requires. Such
	// projections are resource-isolated and do not inherit their
	// children's requests.
	AcceleratedFunctions map[string]int
}

// Planner lowers logical plans into physical plans. It maps each logical
// node to one or more physical nodes and inserts an [Exchange] exactly
// where a node's required partitioning is not satisfied by its input, as
// decided by [Partitioning.Satisfies].
type Planner struct {
	config Config
	plan   *Plan
}

// NewPlanner creates a new planner instance with the given configuration.
func NewPlanner(config Config) *Planner {
	return &Planner{config: config}
}

// Build lowers the given logical plan. The returned plan has a single root
// with a single output partition; a gather is appended when the lowered
// root is partitioned.
func (p *Planner) Build(lp logical.Plan) (*Plan, error) {
	p.plan = &Plan{}
	root, err := p.process(lp)
	if err != nil {
		return nil, err
	}

	if root.Partitioning().Partitions > 1 {
		root, err = p.exchange(ExchangeModeSingle, nil, 1, root.Schema(), root)
		if err != nil {
			return nil, err
		}
	}

	// An exchange needs a consumer, so a plan ending in one (a trailing
	// repartition, or the gather above) gets a merge on top.
	if ex, ok := root.(*Exchange); ok {
		merge := &Merge{
			schema:       ex.Schema(),
			partitioning: SinglePartition(),
			resources:    accumulate(defaultStreamingResources, ex),
		}
		if _, err := p.connect(merge, ex); err != nil {
			return nil, err
		}
	}
	return p.plan, nil
}

func (p *Planner) process(lp logical.Plan) (Node, error) {
	switch v := lp.(type) {
	case *logical.Scan:
		return p.processScan(v)
	case *logical.Filter:
		return p.processFilter(v)
	case *logical.Project:
		return p.processProject(v)
	case *logical.Aggregate:
		return p.processAggregate(v)
	case *logical.Join:
		return p.processJoin(v)
	case *logical.Sort:
		return p.processSort(v)
	case *logical.Limit:
		return p.processLimit(v)
	case *logical.Explode:
		return p.processExplode(v)
	case *logical.Distinct:
		return p.processDistinct(v)
	case *logical.Union:
		return p.processUnion(v)
	case *logical.Repartition:
		return p.processRepartition(v)
	case *logical.Empty:
		return p.processEmpty(v)
	default:
		return nil, fmt.Errorf("lowering does not support logical node %T", lp)
	}
}

// connect adds the node to the plan and wires edges to its children.
func (p *Planner) connect(n Node, children ...Node) (Node, error) {
	p.plan.addNode(n)
	for _, child := range children {
		if err := p.plan.addEdge(Edge{Parent: n, Child: child}); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// exchange adds an [Exchange] of the given mode above child.
func (p *Planner) exchange(mode ExchangeMode, keys []string, partitions int, s *schema.Schema, child Node) (Node, error) {
	var part Partitioning
	switch mode {
	case ExchangeModeHash:
		part = HashPartitioned(keys, partitions)
	case ExchangeModeSingle:
		part = SinglePartition()
	default:
		// Random and broadcast exchanges leave rows without key
		// discipline.
		part = Unpartitioned(partitions)
	}
	node := &Exchange{
		Mode:         mode,
		Keys:         keys,
		schema:       s,
		partitioning: part,
		resources:    defaultExchangeResources,
	}
	return p.connect(node, child)
}

func (p *Planner) processScan(lp *logical.Scan) (Node, error) {
	partitions := max(1, lp.Source().Partitions())
	partitioning := Unpartitioned(partitions)
	if partitions == 1 {
		partitioning = SinglePartition()
	}
	node := &Scan{
		Source:       lp.Source(),
		Pushdowns:    lp.Pushdowns(),
		Partition:    -1,
		schema:       lp.Schema(),
		partitioning: partitioning,
		resources:    defaultScanResources,
	}
	return p.connect(node)
}

func (p *Planner) processFilter(lp *logical.Filter) (Node, error) {
	child, err := p.process(lp.Input())
	if err != nil {
		return nil, err
	}
	node := &Filter{
		Predicates:   expr.SplitConjunction(lp.Predicate()),
		schema:       lp.Schema(),
		partitioning: child.Partitioning(),
		resources:    accumulate(defaultStreamingResources, child),
	}
	return p.connect(node, child)
}

func (p *Planner) processProject(lp *logical.Project) (Node, error) {
	child, err := p.process(lp.Input())
	if err != nil {
		return nil, err
	}
	resources := defaultStreamingResources
	if n := p.acceleratorCount(lp.Exprs()); n > 0 {
		// Accelerator-bound projections are resource-isolated.
		resources.Accelerators = n
	} else {
		resources = accumulate(resources, child)
	}
	node := &Projection{
		Expressions:  lp.Exprs(),
		schema:       lp.Schema(),
		partitioning: child.Partitioning(),
		resources:    resources,
	}
	return p.connect(node, child)
}

func (p *Planner) processAggregate(lp *logical.Aggregate) (Node, error) {
	child, err := p.process(lp.Input())
	if err != nil {
		return nil, err
	}

	// Global aggregation over a single partition, or grouped aggregation
	// over input already hash partitioned on the group keys, needs one
	// complete stage and no redistribution.
	if satisfiesGrouping(child, lp.GroupBy()) {
		node := &Aggregate{
			GroupBy:      lp.GroupBy(),
			Aggregations: lp.Aggregations(),
			Mode:         AggregateModeComplete,
			schema:       lp.Schema(),
			partitioning: child.Partitioning(),
			resources:    accumulate(defaultStatefulResources, child),
		}
		return p.connect(node, child)
	}

	partialSchema, err := PartialSchema(child.Schema(), lp.GroupBy(), lp.Aggregations())
	if err != nil {
		return nil, err
	}
	partial := &Aggregate{
		GroupBy:      lp.GroupBy(),
		Aggregations: lp.Aggregations(),
		Mode:         AggregateModePartial,
		schema:       partialSchema,
		partitioning: child.Partitioning(),
		resources:    accumulate(defaultStatefulResources, child),
	}
	if _, err := p.connect(partial, child); err != nil {
		return nil, err
	}

	var ex Node
	var finalPart Partitioning
	if len(lp.GroupBy()) == 0 {
		ex, err = p.exchange(ExchangeModeSingle, nil, 1, partialSchema, partial)
		finalPart = SinglePartition()
	} else {
		keys, kerr := outputNames(child.Schema(), lp.GroupBy())
		if kerr != nil {
			return nil, kerr
		}
		partitions := p.targetPartitions(child)
		ex, err = p.exchange(ExchangeModeHash, keys, partitions, partialSchema, partial)
		finalPart = HashPartitioned(keys, partitions)
	}
	if err != nil {
		return nil, err
	}

	final := &Aggregate{
		GroupBy:      lp.GroupBy(),
		Aggregations: lp.Aggregations(),
		Mode:         AggregateModeFinal,
		schema:       lp.Schema(),
		partitioning: finalPart,
		resources:    accumulate(defaultStatefulResources, ex),
	}
	return p.connect(final, ex)
}

func (p *Planner) processJoin(lp *logical.Join) (Node, error) {
	left, err := p.process(lp.Left())
	if err != nil {
		return nil, err
	}
	right, err := p.process(lp.Right())
	if err != nil {
		return nil, err
	}

	join := &Join{
		How:     lp.Type(),
		LeftOn:  lp.LeftOn(),
		RightOn: lp.RightOn(),
		schema:  lp.Schema(),
	}

	// Broadcast the build side to every probe partition when it is small
	// enough, saving the redistribution of the probe side.
	if p.config.BroadcastJoinRows > 0 && left.Partitioning().Partitions > 1 {
		if rows, ok := statsRows(lp.Right()); ok && rows <= p.config.BroadcastJoinRows {
			ex, err := p.exchange(ExchangeModeBroadcast, nil, left.Partitioning().Partitions, right.Schema(), right)
			if err != nil {
				return nil, err
			}
			join.partitioning = left.Partitioning()
			join.resources = accumulate(defaultStatefulResources, left, ex)
			return p.connect(join, left, ex)
		}
	}

	if left.Partitioning().Partitions == 1 && right.Partitioning().Partitions == 1 {
		join.partitioning = SinglePartition()
		join.resources = accumulate(defaultStatefulResources, left, right)
		return p.connect(join, left, right)
	}

	partitions := p.config.TargetPartitions
	if partitions <= 0 {
		switch {
		case left.Partitioning().Satisfies(HashPartitioned(lp.LeftOn(), 0)):
			partitions = left.Partitioning().Partitions
		case right.Partitioning().Satisfies(HashPartitioned(lp.RightOn(), 0)):
			partitions = right.Partitioning().Partitions
		default:
			partitions = max(left.Partitioning().Partitions, right.Partitioning().Partitions)
		}
	}

	if required := HashPartitioned(lp.LeftOn(), partitions); !left.Partitioning().Satisfies(required) {
		left, err = p.exchange(ExchangeModeHash, lp.LeftOn(), partitions, left.Schema(), left)
		if err != nil {
			return nil, err
		}
	}
	if required := HashPartitioned(lp.RightOn(), partitions); !right.Partitioning().Satisfies(required) {
		right, err = p.exchange(ExchangeModeHash, lp.RightOn(), partitions, right.Schema(), right)
		if err != nil {
			return nil, err
		}
	}

	join.partitioning = HashPartitioned(lp.LeftOn(), partitions)
	join.resources = accumulate(defaultStatefulResources, left, right)
	return p.connect(join, left, right)
}

func (p *Planner) processSort(lp *logical.Sort) (Node, error) {
	child, err := p.process(lp.Input())
	if err != nil {
		return nil, err
	}
	node := &Sort{
		Fields:       lp.Fields(),
		schema:       lp.Schema(),
		partitioning: child.Partitioning(),
		resources:    accumulate(defaultStatefulResources, child),
	}
	if _, err := p.connect(node, child); err != nil {
		return nil, err
	}
	if node.partitioning.Partitions == 1 {
		return node, nil
	}

	// Partitions are sorted independently; a sort-merge gather
	// establishes the total order.
	ex, err := p.exchange(ExchangeModeSingle, nil, 1, lp.Schema(), node)
	if err != nil {
		return nil, err
	}
	merge := &SortMerge{
		Fields:       lp.Fields(),
		schema:       lp.Schema(),
		partitioning: SinglePartition(),
		resources:    accumulate(defaultStreamingResources, ex),
	}
	return p.connect(merge, ex)
}

func (p *Planner) processLimit(lp *logical.Limit) (Node, error) {
	if sort, ok := lp.Input().(*logical.Sort); ok && fuseTopK(lp) {
		return p.processTopK(lp, sort)
	}

	child, err := p.process(lp.Input())
	if err != nil {
		return nil, err
	}
	if child.Partitioning().Partitions == 1 {
		node := &Limit{
			Skip:         lp.Skip(),
			Fetch:        lp.Fetch(),
			schema:       lp.Schema(),
			partitioning: child.Partitioning(),
			resources:    accumulate(defaultStreamingResources, child),
		}
		return p.connect(node, child)
	}

	// No partition can skip rows on its own, so each passes through the
	// first skip+fetch rows and the final limit slices the gathered
	// stream.
	pre := &Limit{
		Skip:         0,
		Fetch:        saturatingAdd(lp.Skip(), lp.Fetch()),
		schema:       lp.Schema(),
		partitioning: child.Partitioning(),
		resources:    accumulate(defaultStreamingResources, child),
	}
	if _, err := p.connect(pre, child); err != nil {
		return nil, err
	}
	ex, err := p.exchange(ExchangeModeSingle, nil, 1, lp.Schema(), pre)
	if err != nil {
		return nil, err
	}
	final := &Limit{
		Skip:         lp.Skip(),
		Fetch:        lp.Fetch(),
		schema:       lp.Schema(),
		partitioning: SinglePartition(),
		resources:    accumulate(defaultStreamingResources, ex),
	}
	return p.connect(final, ex)
}

// maxTopKRows caps the per-partition heap of a fused top-k. Limits over
// sorts with a larger window fall back to a full sort, which spills the
// same rows but emits in streamable batches.
const maxTopKRows = 1 << 20

// fuseTopK reports whether a limit over a sort is worth fusing into a
// [TopK]. A zero fetch emits nothing and a huge window would retain more
// rows than a heap saves.
func fuseTopK(lp *logical.Limit) bool {
	k := saturatingAdd(lp.Skip(), lp.Fetch())
	return lp.Fetch() > 0 && k <= maxTopKRows
}

// processTopK lowers a limit over a sort into a per-partition [TopK]
// retaining the skip+fetch best rows. Partitioned input is gathered through
// a sort-merge to restore the total order, and the outer limit stays to
// apply the exact skip and fetch.
func (p *Planner) processTopK(lp *logical.Limit, sort *logical.Sort) (Node, error) {
	child, err := p.process(sort.Input())
	if err != nil {
		return nil, err
	}
	top := &TopK{
		Fields:       sort.Fields(),
		K:            saturatingAdd(lp.Skip(), lp.Fetch()),
		schema:       sort.Schema(),
		partitioning: child.Partitioning(),
		resources:    accumulate(defaultStatefulResources, child),
	}
	if _, err := p.connect(top, child); err != nil {
		return nil, err
	}

	var input Node = top
	if top.partitioning.Partitions > 1 {
		ex, err := p.exchange(ExchangeModeSingle, nil, 1, sort.Schema(), top)
		if err != nil {
			return nil, err
		}
		merge := &SortMerge{
			Fields:       sort.Fields(),
			schema:       sort.Schema(),
			partitioning: SinglePartition(),
			resources:    accumulate(defaultStreamingResources, ex),
		}
		if _, err := p.connect(merge, ex); err != nil {
			return nil, err
		}
		input = merge
	}

	limit := &Limit{
		Skip:         lp.Skip(),
		Fetch:        lp.Fetch(),
		schema:       lp.Schema(),
		partitioning: input.Partitioning(),
		resources:    accumulate(defaultStreamingResources, input),
	}
	return p.connect(limit, input)
}

func (p *Planner) processExplode(lp *logical.Explode) (Node, error) {
	child, err := p.process(lp.Input())
	if err != nil {
		return nil, err
	}
	node := &Explode{
		Column:       lp.Column(),
		schema:       lp.Schema(),
		partitioning: child.Partitioning(),
		resources:    accumulate(defaultStreamingResources, child),
	}
	return p.connect(node, child)
}

func (p *Planner) processDistinct(lp *logical.Distinct) (Node, error) {
	child, err := p.process(lp.Input())
	if err != nil {
		return nil, err
	}
	pre := &Distinct{
		schema:       lp.Schema(),
		partitioning: child.Partitioning(),
		resources:    accumulate(defaultStatefulResources, child),
	}
	if _, err := p.connect(pre, child); err != nil {
		return nil, err
	}
	if pre.partitioning.Partitions == 1 {
		return pre, nil
	}

	// Cross-partition duplicates only meet after redistributing on every
	// column.
	keys := lp.Schema().ColumnNames()
	partitions := p.targetPartitions(child)
	ex, err := p.exchange(ExchangeModeHash, keys, partitions, lp.Schema(), pre)
	if err != nil {
		return nil, err
	}
	final := &Distinct{
		schema:       lp.Schema(),
		partitioning: HashPartitioned(keys, partitions),
		resources:    accumulate(defaultStatefulResources, ex),
	}
	return p.connect(final, ex)
}

func (p *Planner) processUnion(lp *logical.Union) (Node, error) {
	children := make([]Node, 0, len(lp.Inputs()))
	for _, input := range lp.Inputs() {
		child, err := p.process(input)
		if err != nil {
			return nil, err
		}
		if child.Partitioning().Partitions > 1 {
			child, err = p.exchange(ExchangeModeSingle, nil, 1, child.Schema(), child)
			if err != nil {
				return nil, err
			}
		}
		children = append(children, child)
	}
	node := &Merge{
		schema:       lp.Schema(),
		partitioning: SinglePartition(),
		resources:    accumulate(defaultStreamingResources, children...),
	}
	return p.connect(node, children...)
}

func (p *Planner) processRepartition(lp *logical.Repartition) (Node, error) {
	child, err := p.process(lp.Input())
	if err != nil {
		return nil, err
	}

	var mode ExchangeMode
	var target Partitioning
	switch lp.Kind() {
	case logical.RepartitionHash:
		mode = ExchangeModeHash
		target = HashPartitioned(lp.Keys(), lp.Partitions())
	case logical.RepartitionRandom:
		mode = ExchangeModeRandom
		target = Unpartitioned(lp.Partitions())
	case logical.RepartitionSingle:
		mode = ExchangeModeSingle
		target = SinglePartition()
	default:
		return nil, fmt.Errorf("lowering does not support repartition kind %s", lp.Kind())
	}

	// Redistribution is inserted exactly when needed.
	if child.Partitioning().Satisfies(target) {
		return child, nil
	}
	return p.exchange(mode, lp.Keys(), target.Partitions, lp.Schema(), child)
}

func (p *Planner) processEmpty(lp *logical.Empty) (Node, error) {
	node := &Empty{
		schema:       lp.Schema(),
		partitioning: SinglePartition(),
	}
	return p.connect(node)
}

// targetPartitions returns the partition count for a redistribution fed by
// child.
func (p *Planner) targetPartitions(child Node) int {
	if p.config.TargetPartitions > 0 {
		return p.config.TargetPartitions
	}
	return max(1, child.Partitioning().Partitions)
}

// acceleratorCount returns the accelerator devices required by the
// configured functions appearing in exprs.
func (p *Planner) acceleratorCount(exprs []expr.Expr) int {
	if len(p.config.AcceleratedFunctions) == 0 {
		return 0
	}
	count := 0
	var walk func(e expr.Expr)
	walk = func(e expr.Expr) {
		if fn, ok := e.(*expr.FuncExpr); ok {
			count = max(count, p.config.AcceleratedFunctions[fn.Name])
		}
		for _, child := range e.Children() {
			walk(child)
		}
	}
	for _, e := range exprs {
		walk(e)
	}
	return count
}

// accumulate combines a node's own request with its children's. A stage
// runs all its operators concurrently, so the effective request is the
// fieldwise maximum.
func accumulate(own ResourceRequest, children ...Node) ResourceRequest {
	r := own
	for _, child := range children {
		r = r.Max(child.Resources())
	}
	return r
}

// satisfiesGrouping reports whether child's distribution already co-locates
// equal group keys, making a single complete aggregation stage sufficient.
func satisfiesGrouping(child Node, groupBy []expr.Expr) bool {
	if child.Partitioning().Partitions == 1 {
		return true
	}
	if len(groupBy) == 0 {
		return false
	}
	keys := make([]string, 0, len(groupBy))
	for _, g := range groupBy {
		col, ok := g.(*expr.ColumnExpr)
		if !ok {
			return false
		}
		keys = append(keys, col.Name)
	}
	return child.Partitioning().Satisfies(HashPartitioned(keys, 0))
}

// outputNames resolves the output column names of exprs against the input
// schema.
func outputNames(input *schema.Schema, exprs []expr.Expr) ([]string, error) {
	names := make([]string, len(exprs))
	for i, e := range exprs {
		field, err := e.ToField(input)
		if err != nil {
			return nil, err
		}
		names[i] = field.Name
	}
	return names, nil
}

func saturatingAdd(a, b uint64) uint64 {
	if sum := a + b; sum >= a {
		return sum
	}
	return math.MaxUint64
}

// statsRows estimates the row count of a logical subtree from source
// statistics. The estimate only exists when every leaf reachable without
// crossing a join or explode reports statistics.
func statsRows(lp logical.Plan) (int64, bool) {
	switch v := lp.(type) {
	case *logical.Scan:
		stats, ok := v.Source().Stats()
		if !ok {
			return 0, false
		}
		return stats.Rows, true
	case *logical.Empty:
		return 0, true
	case *logical.Limit:
		rows, ok := statsRows(v.Input())
		if !ok {
			return 0, false
		}
		fetch := v.Fetch()
		if fetch > math.MaxInt64 {
			fetch = math.MaxInt64
		}
		return min(rows, int64(fetch)), true
	case *logical.Union:
		var total int64
		for _, input := range v.Inputs() {
			rows, ok := statsRows(input)
			if !ok {
				return 0, false
			}
			total += rows
		}
		return total, true
	case *logical.Filter:
		return statsRows(v.Input())
	case *logical.Project:
		return statsRows(v.Input())
	case *logical.Sort:
		return statsRows(v.Input())
	case *logical.Distinct:
		return statsRows(v.Input())
	case *logical.Repartition:
		return statsRows(v.Input())
	default:
		return 0, false
	}
}
