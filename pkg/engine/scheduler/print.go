package scheduler

import (
	"fmt"
	"strings"

	"github.com/floedb/floe/pkg/engine/internal/dag"
	"github.com/floedb/floe/pkg/engine/internal/tree"
	"github.com/floedb/floe/pkg/engine/physical"
)

// Sprint renders the task graph of a scheduler as text, one framed block
// per task, dependents before their dependencies. Exchange leaves are
// annotated with the upstream tasks and shards feeding them.
func Sprint(s *Scheduler) string {
	var sb strings.Builder

	for _, root := range s.graph.Roots() {
		_ = s.graph.Walk(root, func(t *Task) error {
			printTask(&sb, t)
			return nil
		}, dag.PreOrderWalk)
	}

	return sb.String()
}

func printTask(sb *strings.Builder, t *Task) {
	fmt.Fprintf(sb, "┌ Task %s\n", t.ULID)
	fmt.Fprintf(sb, "│ @partition index=%d of=%d\n", t.Partition, t.Partitions)
	if !t.Resources.IsZero() {
		fmt.Fprintf(sb, "│ @resources %s\n", t.Resources)
	}
	sb.WriteString("│\n")

	for _, root := range t.Fragment.Roots() {
		node := physical.BuildTreeWith(t.Fragment, root, func(n physical.Node, tn *tree.Node) {
			for _, ref := range t.Inputs[n] {
				tn.AddComment("@input",
					tree.NewProperty("task", false, ref.Task.ULID),
					tree.NewProperty("shard", false, ref.Shard),
				)
			}
		})

		var tb strings.Builder
		tree.NewPrinter(&tb).Print(node)
		for _, line := range strings.Split(strings.TrimRight(tb.String(), "\n"), "\n") {
			sb.WriteString("│ ")
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}

	sb.WriteString("└\n")
}
