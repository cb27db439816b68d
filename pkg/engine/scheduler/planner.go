package scheduler

import (
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/floedb/floe/pkg/engine/internal/dag"
	"github.com/floedb/floe/pkg/engine/physical"
)

// planner partitions a physical plan into the task graph held by a
// [Scheduler].
type planner struct {
	physical *physical.Plan
	graph    dag.Graph[*Task]

	// stageTasks memoizes the tasks built for a stage root, so exchanges
	// with more than one consumer are planned once.
	stageTasks map[physical.Node][]*Task
}

// planTasks partitions a physical plan into a graph of partition-bound
// tasks. The plan is cut at exchange nodes: every maximal exchange-free
// region becomes a stage, and each stage yields one task per partition.
//
// An exchange appears in two fragments. It is the root of the producer
// stage, where it splits the stage output into shards, and a leaf of the
// consumer stage, where it is fed from the producer tasks through the
// consumer task's [InputRef]s.
func planTasks(plan *physical.Plan) (dag.Graph[*Task], error) {
	root, err := plan.Root()
	if err != nil {
		return dag.Graph[*Task]{}, err
	}

	planner := &planner{
		physical:   plan,
		stageTasks: make(map[physical.Node][]*Task),
	}
	if _, err := planner.processStage(root); err != nil {
		return dag.Graph[*Task]{}, err
	}

	return planner.graph, nil
}

// edge is a parent-child pair local to a stage fragment.
type edge struct {
	Parent, Child physical.Node
}

// processStage builds the tasks for the stage rooted at root and returns
// them. Tasks for producer stages below root are built recursively and
// wired up as dependencies. All tasks are added to p.graph.
func (p *planner) processStage(root physical.Node) ([]*Task, error) {
	if tasks, ok := p.stageTasks[root]; ok {
		return tasks, nil
	}

	// Collect the fragment members: every node reachable from root without
	// descending through an exchange. An exchange child stays in the
	// fragment as a leaf to be fed from upstream tasks, and separately
	// becomes the root of its own producer stage. Only the stage root
	// itself, when it is an exchange, has its children traversed.
	var (
		members    = []physical.Node{root}
		edges      []edge
		boundaries []*physical.Exchange

		seen  = map[physical.Node]struct{}{root: {}}
		stack = []physical.Node{root}
	)
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, child := range p.physical.Children(next) {
			if _, ok := seen[child]; ok {
				// Nodes with multiple parents within a stage are added
				// once, but every edge to them is kept.
				edges = append(edges, edge{Parent: next, Child: child})
				continue
			}
			seen[child] = struct{}{}
			members = append(members, child)
			edges = append(edges, edge{Parent: next, Child: child})

			if ex, ok := child.(*physical.Exchange); ok {
				boundaries = append(boundaries, ex)
				continue
			}
			stack = append(stack, child)
		}
	}

	partitions, err := p.stagePartitions(root)
	if err != nil {
		return nil, err
	}

	// Plan producer stages first so their tasks exist before we reference
	// them from input refs.
	producers := make(map[*physical.Exchange][]*Task, len(boundaries))
	for _, ex := range boundaries {
		tasks, err := p.processStage(ex)
		if err != nil {
			return nil, err
		}
		producers[ex] = tasks
	}

	tasks := make([]*Task, 0, partitions)
	for part := range partitions {
		var (
			fragment  dag.Graph[physical.Node]
			clones    = make(map[physical.Node]physical.Node, len(members))
			resources physical.ResourceRequest
		)
		for _, member := range members {
			clone := member.Clone()
			if scan, ok := clone.(*physical.Scan); ok && scan.Partition < 0 {
				scan.Partition = part
			}
			clones[member] = fragment.Add(clone)
			resources = resources.Max(member.Resources())
		}
		for _, e := range edges {
			_ = fragment.AddEdge(dag.Edge[physical.Node]{
				Parent: clones[e.Parent],
				Child:  clones[e.Child],
			})
		}

		var inputs map[physical.Node][]InputRef
		if len(boundaries) > 0 {
			inputs = make(map[physical.Node][]InputRef, len(boundaries))
			for _, ex := range boundaries {
				refs := make([]InputRef, 0, len(producers[ex]))
				for _, producer := range producers[ex] {
					refs = append(refs, InputRef{Task: producer, Shard: part})
				}
				inputs[clones[ex]] = refs
			}
		}

		task := &Task{
			ULID:       ulid.Make(),
			Fragment:   physical.FromGraph(fragment),
			Partition:  part,
			Partitions: partitions,
			Inputs:     inputs,
			Resources:  resources,
		}
		p.graph.Add(task)

		// A consumer task needs its shard from every producer task, so each
		// task depends on all tasks of all producer stages.
		for _, ex := range boundaries {
			for _, producer := range producers[ex] {
				_ = p.graph.AddEdge(dag.Edge[*Task]{Parent: task, Child: producer})
			}
		}

		tasks = append(tasks, task)
	}

	p.stageTasks[root] = tasks
	return tasks, nil
}

// stagePartitions determines how many tasks the stage rooted at root runs.
// For an exchange-rooted stage this is the partition count of the work
// below the exchange, since the exchange's own partitioning describes its
// consumer side.
func (p *planner) stagePartitions(root physical.Node) (int, error) {
	if _, ok := root.(*physical.Exchange); ok {
		children := p.physical.Children(root)
		if len(children) != 1 {
			return 0, fmt.Errorf("exchange must have exactly one child, got %d", len(children))
		}
		return max(1, children[0].Partitioning().Partitions), nil
	}
	return max(1, root.Partitioning().Partitions), nil
}
