package layout

// The scorer is a heuristic, not a tree edit distance. The planner's
// convergence behavior is defined relative to this exact weight table and
// depth decay, so the numbers here are a contract.
const (
	weightEqual     = 1.0
	weightSplitish  = 0.5
	weightAlternate = 0.5
	weightMismatch  = 0.25
)

type comparePair struct {
	target     NodeID
	actual     NodeID
	alternates []NodeID
	depth      int
}

// Compare scores how close the actual layout is to the target. Traversal
// is breadth-first over index-paired children; each pair contributes its
// match weight divided by its depth (root depth 1). Mismatched actual
// nodes are annotated with the target node they were paired against.
func Compare(target, actual *Layout) float64 {
	if target.Tree.Root() == NoNode || actual.Tree.Root() == NoNode {
		return 0
	}
	score := 0.0
	queue := []comparePair{{target: target.Tree.Root(), actual: actual.Tree.Root(), depth: 1}}
	for len(queue) > 0 {
		pair := queue[0]
		queue = queue[1:]

		// Chains of single-child split wrappers are transparent: descend
		// through them on both sides independently so redundant wrapping
		// never lowers the score.
		tID := collapseWrappers(target.Tree, pair.target)
		aID := collapseWrappers(actual.Tree, pair.actual)
		tNode := target.Tree.Node(tID)
		aNode := actual.Tree.Node(aID)

		equal := NodesEqual(tNode, aNode)
		switch {
		case equal:
			score += weightEqual / float64(pair.depth)
		case tNode.Kind == KindSplit && aNode.Kind == KindSplit:
			score += weightSplitish / float64(pair.depth)
		case inAlternates(target.Tree, pair.alternates, aNode):
			score += weightAlternate / float64(pair.depth)
		default:
			score += weightMismatch / float64(pair.depth)
		}
		if !equal {
			aNode.Expected = tID
		}

		// Only children present on both sides by index are compared;
		// extras simply contribute nothing.
		tChildren := tNode.Children
		aChildren := aNode.Children
		for i, child := range tChildren {
			if i >= len(aChildren) {
				break
			}
			queue = append(queue, comparePair{
				target:     child,
				actual:     aChildren[i],
				alternates: tChildren,
				depth:      pair.depth + 1,
			})
		}
	}
	return score
}

func collapseWrappers(t *Tree, id NodeID) NodeID {
	for {
		n := t.Node(id)
		if n.Kind != KindSplit || len(n.Children) != 1 {
			return id
		}
		child := n.Children[0]
		if t.Node(child).Kind != KindSplit {
			return id
		}
		id = child
	}
}

func inAlternates(t *Tree, alternates []NodeID, actual *Node) bool {
	for _, alt := range alternates {
		if NodesEqual(t.Node(alt), actual) {
			return true
		}
	}
	return false
}

// EqualPrecise is strict structural equality: node equality at every
// position, identical arity, recursing over the full child lists. It is
// the planner's convergence test.
func EqualPrecise(a, b *Layout) bool {
	if a.Tree.Root() == NoNode || b.Tree.Root() == NoNode {
		return a.Tree.Root() == b.Tree.Root()
	}
	return equalPrecise(a.Tree, a.Tree.Root(), b.Tree, b.Tree.Root())
}

func equalPrecise(at *Tree, a NodeID, bt *Tree, b NodeID) bool {
	an := at.Node(a)
	bn := bt.Node(b)
	if !NodesEqual(an, bn) || len(an.Children) != len(bn.Children) {
		return false
	}
	for i := range an.Children {
		if !equalPrecise(at, an.Children[i], bt, bn.Children[i]) {
			return false
		}
	}
	return true
}
