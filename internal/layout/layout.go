package layout

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/swayback/swayback/internal/ipc"
)

// Layout is one workspace's window tree, fixed to a workspace and output.
// A layout built from a live snapshot is fully bound; one decoded from a
// record is unbound until Match runs.
type Layout struct {
	Workspace string
	Output    string
	Tree      *Tree
}

// TreeSource is the slice of the manager client layouts are captured
// through.
type TreeSource interface {
	Tree(ctx context.Context) (*ipc.Node, error)
	Outputs(ctx context.Context) ([]ipc.Output, error)
}

// FromWorkspace captures the named workspace's live layout.
func FromWorkspace(ctx context.Context, src TreeSource, workspace string) (*Layout, error) {
	root, err := src.Tree(ctx)
	if err != nil {
		return nil, err
	}
	ws := root.FindWorkspace(workspace)
	if ws == nil {
		return nil, fmt.Errorf("workspace %q not found", workspace)
	}
	output := ""
	outputs, err := src.Outputs(ctx)
	if err != nil {
		return nil, err
	}
	for _, out := range outputs {
		if out.CurrentWorkspace == workspace {
			output = out.Name
		}
	}
	return FromNode(ws, workspace, output), nil
}

// FromNode converts a manager tree snapshot rooted at a workspace node
// into a fully bound Layout.
func FromNode(ws *ipc.Node, workspace, output string) *Layout {
	tree := NewTree()
	root := fromCon(tree, ws)
	tree.SetRoot(root)
	return &Layout{Workspace: workspace, Output: output, Tree: tree}
}

func fromCon(t *Tree, con *ipc.Node) NodeID {
	rect := Rect{Width: con.Rect.Width, Height: con.Rect.Height, Percent: con.Percent}
	if con.Layout == "none" {
		var swallows Swallows
		if con.WindowProperties != nil && con.WindowProperties.Class != "" {
			swallows.Class = con.WindowProperties.Class
		} else if con.AppID != "" {
			swallows.AppID = con.AppID
		}
		id := t.NewWindow(swallows)
		n := t.Node(id)
		n.ConID = con.ID
		n.Rect = rect
		return id
	}
	id := t.NewSplit(con.Layout)
	n := t.Node(id)
	n.ConID = con.ID
	n.Rect = rect
	for i := range con.Nodes {
		child := fromCon(t, &con.Nodes[i])
		t.AddChild(id, child, -1)
	}
	return id
}

// Clone deep-copies the layout for simulation.
func (l *Layout) Clone() *Layout {
	return &Layout{Workspace: l.Workspace, Output: l.Output, Tree: l.Tree.Clone()}
}

// BindingError reports that the window matcher cannot produce a total
// assignment of target leaves to live windows.
type BindingError struct {
	Workspace string
	Reason    string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("cannot bind layout on workspace %q: %s", e.Workspace, e.Reason)
}

// Match binds every unbound leaf of the target layout to a distinct live
// window, first-fit over the live workspace's leaves in document order.
// On error the live system is untouched and the target is only partially
// annotated.
func Match(target, live *Layout) error {
	if root := live.Tree.Root(); root == NoNode || len(live.Tree.Node(root).Children) == 0 {
		return &BindingError{Workspace: target.Workspace, Reason: "workspace is empty"}
	}
	pool := live.Tree.Leaves()
	// A lone split with no windows is how the manager renders a workspace
	// that was emptied but kept a layout container around.
	if len(pool) == 1 && live.Tree.Node(pool[0]).Kind == KindSplit {
		return &BindingError{Workspace: target.Workspace, Reason: "workspace is empty"}
	}

	for _, leafID := range target.Tree.Leaves() {
		leaf := target.Tree.Node(leafID)
		if len(pool) == 0 {
			return &BindingError{
				Workspace: target.Workspace,
				Reason:    "not enough windows, missing: " + describeLeaves(target.Tree, leafID),
			}
		}
		if leaf.ConID != 0 {
			pool = removeByCon(live.Tree, pool, leaf.ConID)
			continue
		}
		for i, liveID := range pool {
			if SwallowsLeaf(leaf, live.Tree.Node(liveID)) {
				leaf.ConID = live.Tree.Node(liveID).ConID
				pool = append(pool[:i], pool[i+1:]...)
				break
			}
		}
		if leaf.ConID == 0 {
			return &BindingError{
				Workspace: target.Workspace,
				Reason:    "no window matches " + target.Tree.Describe(leafID),
			}
		}
	}
	if len(pool) > 0 {
		return &BindingError{
			Workspace: target.Workspace,
			Reason:    "windows remain unmatched: " + describePool(live.Tree, pool),
		}
	}
	return nil
}

func removeByCon(t *Tree, pool []NodeID, conID int64) []NodeID {
	for i, id := range pool {
		if t.Node(id).ConID == conID {
			return append(pool[:i], pool[i+1:]...)
		}
	}
	return pool
}

func describeLeaves(t *Tree, from NodeID) string {
	var names []string
	seen := false
	for _, id := range t.Leaves() {
		if id == from {
			seen = true
		}
		if seen {
			names = append(names, t.Describe(id))
		}
	}
	return strings.Join(names, ", ")
}

func describePool(t *Tree, pool []NodeID) string {
	names := make([]string, 0, len(pool))
	for _, id := range pool {
		names = append(names, t.Describe(id))
	}
	return strings.Join(names, ", ")
}

// AppSignature counts the layout's leaves by display name.
func (l *Layout) AppSignature() map[string]int {
	counter := make(map[string]int)
	for _, id := range l.Tree.Leaves() {
		n := l.Tree.Node(id)
		if n.Kind != KindWindow {
			continue
		}
		counter[LeafName(n)]++
	}
	return counter
}

// Signature content-addresses the layout: the leaf-name multiset plus the
// output name, hashed. Two layouts holding the same windows on the same
// output share a signature regardless of arrangement.
func (l *Layout) Signature() string {
	names, err := json.Marshal(l.AppSignature())
	if err != nil {
		names = nil
	}
	sum := blake3.Sum256(append(names, []byte(l.Output)...))
	return hex.EncodeToString(sum[:])
}

// String renders the layout tree for logs, one node per line.
func (l *Layout) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Layout for workspace %q on output %s\n", l.Workspace, l.Output)
	if l.Tree.Root() == NoNode {
		return b.String()
	}
	var walk func(NodeID, int)
	walk = func(id NodeID, indent int) {
		b.WriteString(strings.Repeat(" ", indent))
		b.WriteString(l.Tree.Describe(id))
		b.WriteByte('\n')
		for _, child := range l.Tree.Node(id).Children {
			walk(child, indent+2)
		}
	}
	walk(l.Tree.Root(), 0)
	return b.String()
}
