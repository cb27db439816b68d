package treenode

// Recursion controls how [Walk] proceeds after visiting a node.
type Recursion int

const (
	// Continue descends into the children of the visited node.
	Continue Recursion = iota
	// SkipChildren skips the children of the visited node but continues
	// with its siblings.
	SkipChildren
	// Stop aborts the traversal entirely.
	Stop
)

// WalkFunc is called for every visited node.
type WalkFunc[T Node[T]] func(T) (Recursion, error)

// Walk traverses the tree in pre-order, visiting parents before children.
func Walk[T Node[T]](node T, fn WalkFunc[T]) error {
	_, err := walk(node, fn)
	return err
}

func walk[T Node[T]](node T, fn WalkFunc[T]) (Recursion, error) {
	recursion, err := fn(node)
	if err != nil || recursion == Stop {
		return Stop, err
	}
	if recursion == SkipChildren {
		return Continue, nil
	}
	for _, child := range node.Children() {
		recursion, err := walk(child, fn)
		if err != nil || recursion == Stop {
			return Stop, err
		}
	}
	return Continue, nil
}
