package predicate

// LeafOpaque keys opaque leaves in CountLeaves output. Opaque has no
// wire operator of its own; it is what uninterpretable clauses become.
const LeafOpaque = "opaque"

// CountLeaves returns how many leaves of each kind the tree contains,
// keyed by wire operator names. Composite nodes are walked, not counted.
func CountLeaves(node Node) map[string]int {
	counts := make(map[string]int)
	countLeaves(node, counts)
	return counts
}

func countLeaves(node Node, counts map[string]int) {
	switch n := node.(type) {
	case *Equals:
		counts[OpEquals]++
	case *IsNull:
		counts[OpIsNull]++
	case *Opaque:
		counts[LeafOpaque]++
	case *And:
		for _, child := range n.Children {
			countLeaves(child, counts)
		}
	case *Or:
		for _, child := range n.Children {
			countLeaves(child, counts)
		}
	}
}
