package layout

import (
	"math"
	"testing"
)

const scoreEps = 1e-9

// unboundPair builds target splith[foot, splitv[firefox, emacs]] without
// con ids, as decoded from a record.
func unboundTarget() *Layout {
	tree := NewTree()
	root := tree.NewSplit(LayoutSplitH)
	tree.SetRoot(root)
	tree.AddChild(root, tree.NewWindow(Swallows{AppID: "foot"}), -1)
	inner := tree.NewSplit(LayoutSplitV)
	tree.AddChild(root, inner, -1)
	tree.AddChild(inner, tree.NewWindow(Swallows{AppID: "firefox"}), -1)
	tree.AddChild(inner, tree.NewWindow(Swallows{AppID: "emacs"}), -1)
	return &Layout{Workspace: "1", Tree: tree}
}

func TestCompareIdenticalIsDepthSum(t *testing.T) {
	target := unboundTarget()
	actual := unboundTarget()
	// root at depth 1, two children at depth 2, two grandchildren at 3.
	want := 1.0 + 2*(1.0/2) + 2*(1.0/3)
	if got := Compare(target, actual); math.Abs(got-want) > scoreEps {
		t.Fatalf("Compare(identical) = %v, want %v", got, want)
	}
}

func TestCompareSwappedChildrenUseAlternates(t *testing.T) {
	target := NewTree()
	troot := target.NewSplit(LayoutSplitH)
	target.SetRoot(troot)
	target.AddChild(troot, target.NewWindow(Swallows{AppID: "foot"}), -1)
	target.AddChild(troot, target.NewWindow(Swallows{AppID: "emacs"}), -1)

	actual := NewTree()
	aroot := actual.NewSplit(LayoutSplitH)
	actual.SetRoot(aroot)
	actual.AddChild(aroot, actual.NewWindow(Swallows{AppID: "emacs"}), -1)
	actual.AddChild(aroot, actual.NewWindow(Swallows{AppID: "foot"}), -1)

	// Both children mismatch in place but match a sibling slot.
	want := 1.0 + 2*(0.5/2)
	got := Compare(&Layout{Tree: target}, &Layout{Tree: actual})
	if math.Abs(got-want) > scoreEps {
		t.Fatalf("Compare(swapped) = %v, want %v", got, want)
	}
}

func TestCompareSplitMismatchScoresHalf(t *testing.T) {
	target := NewTree()
	troot := target.NewSplit(LayoutSplitV)
	target.SetRoot(troot)
	actual := NewTree()
	aroot := actual.NewSplit(LayoutSplitH)
	actual.SetRoot(aroot)
	want := 0.5
	got := Compare(&Layout{Tree: target}, &Layout{Tree: actual})
	if math.Abs(got-want) > scoreEps {
		t.Fatalf("Compare(split mismatch) = %v, want %v", got, want)
	}
}

func TestCompareUnrelatedScoresQuarter(t *testing.T) {
	target := NewTree()
	troot := target.NewSplit(LayoutSplitH)
	target.SetRoot(troot)
	target.AddChild(troot, target.NewWindow(Swallows{AppID: "foot"}), -1)

	actual := NewTree()
	aroot := actual.NewSplit(LayoutSplitH)
	actual.SetRoot(aroot)
	stranger := actual.NewWindow(Swallows{AppID: "gimp"})
	actual.AddChild(aroot, stranger, -1)

	want := 1.0 + 0.25/2
	got := Compare(&Layout{Tree: target}, &Layout{Tree: actual})
	if math.Abs(got-want) > scoreEps {
		t.Fatalf("Compare(unrelated leaf) = %v, want %v", got, want)
	}
	// The losing node is annotated with its intended counterpart.
	if actual.Node(stranger).Expected == NoNode {
		t.Fatalf("mismatched node should carry its expected pairing")
	}
}

func TestCompareSeesThroughWrapperChains(t *testing.T) {
	target := unboundTarget()
	plain := Compare(target, unboundTarget())

	// Wrap the actual inner split in a redundant single-child split.
	actual := unboundTarget()
	inner := actual.Tree.Node(actual.Tree.Root()).Children[1]
	at := actual.Tree.childIndex(actual.Tree.Root(), inner)
	actual.Tree.Detach(inner)
	wrapper := actual.Tree.NewSplit(LayoutSplitH)
	actual.Tree.AddChild(actual.Tree.Root(), wrapper, at)
	actual.Tree.AddChild(wrapper, inner, -1)

	wrapped := Compare(target, actual)
	if math.Abs(plain-wrapped) > scoreEps {
		t.Fatalf("redundant wrapper changed the score: %v != %v", wrapped, plain)
	}
}

func TestComparePrefersCloserLayouts(t *testing.T) {
	target := unboundTarget()

	// Flat: all three windows directly under the root.
	flat := NewTree()
	froot := flat.NewSplit(LayoutSplitH)
	flat.SetRoot(froot)
	for _, app := range []string{"foot", "firefox", "emacs"} {
		flat.AddChild(froot, flat.NewWindow(Swallows{AppID: app}), -1)
	}

	far := Compare(target, &Layout{Tree: flat})
	near := Compare(target, unboundTarget())
	if far >= near {
		t.Fatalf("flat layout scored %v, should be below the exact match %v", far, near)
	}
}

func TestEqualPrecise(t *testing.T) {
	if !EqualPrecise(unboundTarget(), unboundTarget()) {
		t.Fatalf("identical layouts should compare equal")
	}

	// Extra child breaks arity even when the prefix matches.
	extra := unboundTarget()
	inner := extra.Tree.Node(extra.Tree.Root()).Children[1]
	extra.Tree.AddChild(inner, extra.Tree.NewWindow(Swallows{AppID: "mpv"}), -1)
	if EqualPrecise(unboundTarget(), extra) {
		t.Fatalf("differing arity should not compare equal")
	}

	// Same multiset, different order.
	swapped := unboundTarget()
	sInner := swapped.Tree.Node(swapped.Tree.Root()).Children[1]
	sKids := swapped.Tree.Node(sInner).Children
	sKids[0], sKids[1] = sKids[1], sKids[0]
	if EqualPrecise(unboundTarget(), swapped) {
		t.Fatalf("reordered children should not compare equal")
	}
}
