package layout

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// Layout values a split container can carry. The manager arranges a
// container's children side by side, stacked, or tabbed depending on
// this value.
const (
	LayoutSplitH  = "splith"
	LayoutSplitV  = "splitv"
	LayoutTabbed  = "tabbed"
	LayoutStacked = "stacked"
)

// Directions accepted by the directional move.
const (
	DirUp    = "up"
	DirDown  = "down"
	DirLeft  = "left"
	DirRight = "right"
)

// NodeID is a stable index into a Tree's node arena. IDs survive cloning,
// so a candidate evaluated on a clone can be referenced on the original.
type NodeID int

// NoNode is the nil NodeID (no parent, unset annotation).
const NoNode NodeID = -1

// Kind distinguishes the two container variants.
type Kind int

const (
	// KindSplit is a container arranging children along one axis.
	KindSplit Kind = iota
	// KindWindow is a leaf representing a single window.
	KindWindow
)

// Rect is the recorded geometry of a container. Percent is the share of
// the parent the container occupies, nil when the manager reports none
// (workspace roots).
type Rect struct {
	Width   float64
	Height  float64
	Percent *float64
}

// Swallows is the matching criterion of a window leaf. Exactly one field
// is set: Class for X11 windows, AppID for Wayland ones.
type Swallows struct {
	Class string
	AppID string
}

// Node is one container in the arena. ConID is the manager-assigned
// identity, zero while the node is unbound. FakeID is a synthetic
// identity assigned at construction so unbound nodes can still key maps.
// Expected is a scorer annotation referencing the node of the compared
// target tree this node was paired with; NoNode when the pair matched.
type Node struct {
	Kind     Kind
	ConID    int64
	FakeID   string
	Parent   NodeID
	Children []NodeID
	Rect     Rect
	Expected NodeID

	// Split containers only.
	Layout string
	// Window leaves only.
	Swallows Swallows
}

// Tree owns a flat arena of nodes. Detached subtrees stay in the arena as
// unreachable slots; traversals and counts consider only nodes reachable
// from the root.
type Tree struct {
	nodes []Node
	root  NodeID
}

// NewTree returns an empty tree with no root.
func NewTree() *Tree {
	return &Tree{root: NoNode}
}

// NewSplit allocates an unattached split container.
func (t *Tree) NewSplit(layoutValue string) NodeID {
	return t.alloc(Node{Kind: KindSplit, Layout: layoutValue})
}

// NewWindow allocates an unattached window leaf.
func (t *Tree) NewWindow(swallows Swallows) NodeID {
	return t.alloc(Node{Kind: KindWindow, Swallows: swallows})
}

func (t *Tree) alloc(n Node) NodeID {
	n.Parent = NoNode
	n.Expected = NoNode
	n.FakeID = ulid.Make().String()
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

// Node returns the node for id. The pointer stays valid until the next
// allocation on this tree.
func (t *Tree) Node(id NodeID) *Node {
	return &t.nodes[id]
}

// Root returns the tree root, NoNode for an empty tree.
func (t *Tree) Root() NodeID {
	return t.root
}

// SetRoot marks id as the tree root.
func (t *Tree) SetRoot(id NodeID) {
	t.root = id
}

// Clone copies the arena. Node IDs remain valid on the clone, and the two
// trees share no mutable state.
func (t *Tree) Clone() *Tree {
	nodes := make([]Node, len(t.nodes))
	copy(nodes, t.nodes)
	for i := range nodes {
		nodes[i].Children = append([]NodeID(nil), nodes[i].Children...)
	}
	return &Tree{nodes: nodes, root: t.root}
}

// Detach removes id from its parent's children and clears the parent
// link. No-op when the node is already rootless.
func (t *Tree) Detach(id NodeID) {
	n := t.Node(id)
	if n.Parent == NoNode {
		return
	}
	parent := t.Node(n.Parent)
	for i, child := range parent.Children {
		if child == id {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			break
		}
	}
	n.Parent = NoNode
}

// AddChild inserts child into parent's children at position at (negative
// or out of range appends) and sets the parent link. The caller must
// detach child first; the tree does not auto-detach.
func (t *Tree) AddChild(parent, child NodeID, at int) {
	p := t.Node(parent)
	if at < 0 || at >= len(p.Children) {
		p.Children = append(p.Children, child)
	} else {
		p.Children = append(p.Children, NoNode)
		copy(p.Children[at+1:], p.Children[at:])
		p.Children[at] = child
	}
	t.Node(child).Parent = parent
}

// AddSibling inserts other into anchor's parent immediately before or
// after anchor. Fails when anchor is the tree root.
func (t *Tree) AddSibling(anchor, other NodeID, after bool) error {
	parent := t.Node(anchor).Parent
	if parent == NoNode {
		return fmt.Errorf("cannot add a sibling to the root container")
	}
	at := t.childIndex(parent, anchor)
	if after {
		at++
	}
	t.AddChild(parent, other, at)
	return nil
}

// Replace inserts other in old's place and detaches old. No-op when old
// is rootless.
func (t *Tree) Replace(old, other NodeID) {
	if t.Node(old).Parent == NoNode {
		return
	}
	_ = t.AddSibling(old, other, true)
	t.Detach(old)
}

// ReapEmpty detaches a split container that lost its last child and
// ascends into the emptied parent. Calling it on a container with
// children is a no-op, and repeated calls terminate.
func (t *Tree) ReapEmpty(id NodeID) {
	n := t.Node(id)
	if n.Kind != KindSplit || len(n.Children) > 0 {
		return
	}
	parent := n.Parent
	if parent == NoNode {
		return
	}
	t.Detach(id)
	t.ReapEmpty(parent)
}

// Flatten collapses a split container with exactly one child by promoting
// the child into its place, then recurses upward. Safe on already-flat
// trees.
func (t *Tree) Flatten(id NodeID) {
	n := t.Node(id)
	if n.Kind != KindSplit || len(n.Children) != 1 {
		return
	}
	parent := n.Parent
	if parent == NoNode {
		return
	}
	child := n.Children[0]
	t.Detach(child)
	t.Replace(id, child)
	t.Flatten(parent)
}

// HasAncestor reports whether candidate appears among id's transitive
// parents.
func (t *Tree) HasAncestor(id, candidate NodeID) bool {
	for cur := t.Node(id).Parent; cur != NoNode; cur = t.Node(cur).Parent {
		if cur == candidate {
			return true
		}
	}
	return false
}

// Nodes returns all reachable nodes in depth-first document order.
func (t *Tree) Nodes() []NodeID {
	if t.root == NoNode {
		return nil
	}
	out := make([]NodeID, 0, len(t.nodes))
	var walk func(NodeID)
	walk = func(id NodeID) {
		out = append(out, id)
		for _, child := range t.Node(id).Children {
			walk(child)
		}
	}
	walk(t.root)
	return out
}

// NodesBreadth returns all reachable nodes in level order.
func (t *Tree) NodesBreadth() []NodeID {
	if t.root == NoNode {
		return nil
	}
	out := make([]NodeID, 0, len(t.nodes))
	queue := []NodeID{t.root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, id)
		queue = append(queue, t.Node(id).Children...)
	}
	return out
}

// Leaves returns every reachable childless node that has a parent, in
// document order. The root of an empty workspace is not a leaf.
func (t *Tree) Leaves() []NodeID {
	var out []NodeID
	for _, id := range t.Nodes() {
		n := t.Node(id)
		if len(n.Children) == 0 && n.Parent != NoNode {
			out = append(out, id)
		}
	}
	return out
}

// Count returns the number of reachable nodes.
func (t *Tree) Count() int {
	return len(t.Nodes())
}

// FindByCon returns the reachable node bound to conID.
func (t *Tree) FindByCon(conID int64) (NodeID, bool) {
	for _, id := range t.Nodes() {
		if t.Node(id).ConID == conID {
			return id, true
		}
	}
	return NoNode, false
}

// Orientation maps a layout value onto its axis.
func Orientation(layoutValue string) string {
	switch layoutValue {
	case LayoutSplitH, LayoutTabbed:
		return "horizontal"
	case LayoutSplitV, LayoutStacked:
		return "vertical"
	default:
		return ""
	}
}

// parallel reports whether a container with the given layout arranges its
// children along the axis of direction.
func parallel(layoutValue, direction string) bool {
	switch Orientation(layoutValue) {
	case "horizontal":
		return direction == DirLeft || direction == DirRight
	case "vertical":
		return direction == DirUp || direction == DirDown
	default:
		return false
	}
}

// WrapChildren moves all of id's children into one new split container
// carrying wrapLayout and attaches it as id's sole child. Returns the new
// container.
func (t *Tree) WrapChildren(id NodeID, wrapLayout string) NodeID {
	middle := t.NewSplit(wrapLayout)
	children := append([]NodeID(nil), t.Node(id).Children...)
	for _, child := range children {
		t.Detach(child)
		t.AddChild(middle, child, -1)
	}
	t.AddChild(id, middle, -1)
	return middle
}

// Move applies the manager's directional move semantics to id and reports
// whether the tree changed. The cases the live manager resolves by
// swapping with a neighbor, descending into it, or crossing outputs are
// deliberately inert: they return false and leave the tree untouched.
// Moving against the workspace root's axis re-orients the root instead.
func (t *Tree) Move(id NodeID, direction string) bool {
	offs := 1
	if direction == DirLeft || direction == DirUp {
		offs = -1
	}

	// Walk up looking for the nearest ancestor arranged parallel to the
	// direction. If the walk hits the workspace root without finding one,
	// re-orient the root by wrapping its children.
	ancestor := NoNode
	current := id
	wrapped := false
	index := -1
	target := NoNode
	for ancestor == NoNode {
		parent := t.Node(current).Parent
		if parent == NoNode {
			return false
		}
		if !parallel(t.Node(parent).Layout, direction) {
			if t.Node(parent).Parent == NoNode {
				root := t.root
				middle := t.WrapChildren(root, t.Node(root).Layout)
				if direction == DirLeft || direction == DirRight {
					t.Node(root).Layout = LayoutSplitH
				} else {
					t.Node(root).Layout = LayoutSplitV
				}
				current = middle
				wrapped = true
			} else {
				current = parent
			}
			continue
		}

		siblings := t.Node(parent).Children
		index = t.childIndex(parent, current)
		desired := index + offs
		target = NoNode
		if desired >= 0 && desired < len(siblings) {
			target = siblings[desired]
		}

		if current == id {
			if target != NoNode {
				// Would swap with or descend into the neighbor.
				return false
			}
			current = parent
			if t.Node(current).Parent == NoNode {
				// Escaped the workspace.
				return false
			}
			continue
		}
		ancestor = current
	}

	if target != NoNode {
		// Would move in with a cousin container.
		return false
	}
	oldParent := t.Node(id).Parent
	if !wrapped && oldParent == t.root && len(t.Node(oldParent).Children) == 1 {
		// Sole child of the workspace: the manager would move it to the
		// next output.
		return false
	}

	// Promote: re-insert next to the parallel ancestor, offset by the
	// direction's sign.
	at := index
	if offs > 0 {
		at++
	}
	anchorParent := t.Node(ancestor).Parent
	t.Detach(id)
	t.AddChild(anchorParent, id, at)
	if oldParent != NoNode {
		t.ReapEmpty(oldParent)
	}
	return true
}

func (t *Tree) childIndex(parent, child NodeID) int {
	for i, c := range t.Node(parent).Children {
		if c == child {
			return i
		}
	}
	return -1
}

// NodesEqual is the node equality the scorer and matcher build on. Live
// identity short-circuits: two bound nodes compare by ConID alone.
// Unbound splits compare by layout, unbound windows by the swallow key
// both sides carry.
func NodesEqual(a, b *Node) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.ConID != 0 && b.ConID != 0 {
		return a.ConID == b.ConID
	}
	if a.Kind == KindSplit {
		return a.Layout == b.Layout
	}
	if a.Swallows.Class != "" && b.Swallows.Class != "" {
		return a.Swallows.Class == b.Swallows.Class
	}
	if a.Swallows.AppID != "" && b.Swallows.AppID != "" {
		return a.Swallows.AppID == b.Swallows.AppID
	}
	return false
}

// SwallowsLeaf reports whether the target leaf's criterion binds the live
// leaf: by identity when the target is already bound, else by the swallow
// key the target carries.
func SwallowsLeaf(target, live *Node) bool {
	if target.Kind != KindWindow || live.Kind != KindWindow {
		return false
	}
	if target.ConID != 0 {
		return live.ConID == target.ConID
	}
	if target.Swallows.Class != "" {
		return target.Swallows.Class == live.Swallows.Class
	}
	if target.Swallows.AppID != "" {
		return target.Swallows.AppID == live.Swallows.AppID
	}
	return false
}

// LeafName is a window leaf's display name: its app id when set, else its
// class.
func LeafName(n *Node) string {
	if n.Swallows.AppID != "" {
		return n.Swallows.AppID
	}
	return n.Swallows.Class
}

// Describe renders one node for logs.
func (t *Tree) Describe(id NodeID) string {
	n := t.Node(id)
	var s string
	if n.Kind == KindSplit {
		switch n.Layout {
		case LayoutSplitH:
			s = "Horizontal Split"
		case LayoutSplitV:
			s = "Vertical Split"
		case LayoutTabbed:
			s = "Tabbed Split"
		case LayoutStacked:
			s = "Stacked Split"
		default:
			s = "Split"
		}
	} else if n.ConID != 0 {
		s = "Window: " + LeafName(n)
	} else {
		s = "Swallows: " + LeafName(n)
	}
	if n.ConID != 0 {
		s += fmt.Sprintf(" (con_id=%d)", n.ConID)
	}
	return s
}
