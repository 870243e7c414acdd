package layout

import (
	"fmt"
)

// Record is the persisted form of a Layout. Live identities are never
// persisted; a decoded layout is unbound until Match runs.
type Record struct {
	Workspace string     `json:"workspace"`
	Root      NodeRecord `json:"root"`
}

// NodeRecord is one persisted container: a split carries a layout and
// children, a leaf carries its swallow criterion.
type NodeRecord struct {
	Layout   string          `json:"layout,omitempty"`
	Swallows *SwallowsRecord `json:"swallows,omitempty"`
	Rect     RectRecord      `json:"rect"`
	Children []NodeRecord    `json:"children,omitempty"`
}

// SwallowsRecord is the persisted swallow criterion.
type SwallowsRecord struct {
	Class string `json:"class,omitempty"`
	AppID string `json:"app_id,omitempty"`
}

// RectRecord is the persisted geometry. Percent round-trips as null when
// absent.
type RectRecord struct {
	Width   float64  `json:"width"`
	Height  float64  `json:"height"`
	Percent *float64 `json:"percent"`
}

// Record serializes the layout, dropping live identities.
func (l *Layout) Record() Record {
	return Record{
		Workspace: l.Workspace,
		Root:      nodeRecord(l.Tree, l.Tree.Root()),
	}
}

func nodeRecord(t *Tree, id NodeID) NodeRecord {
	n := t.Node(id)
	rec := NodeRecord{
		Rect: RectRecord{Width: n.Rect.Width, Height: n.Rect.Height, Percent: n.Rect.Percent},
	}
	if n.Kind == KindWindow {
		rec.Swallows = &SwallowsRecord{Class: n.Swallows.Class, AppID: n.Swallows.AppID}
		return rec
	}
	rec.Layout = n.Layout
	rec.Children = make([]NodeRecord, 0, len(n.Children))
	for _, child := range n.Children {
		rec.Children = append(rec.Children, nodeRecord(t, child))
	}
	return rec
}

// FromRecord rebuilds an unbound Layout from its persisted form.
func FromRecord(rec Record) (*Layout, error) {
	tree := NewTree()
	root, err := nodeFromRecord(tree, rec.Root)
	if err != nil {
		return nil, fmt.Errorf("workspace %q: %w", rec.Workspace, err)
	}
	tree.SetRoot(root)
	return &Layout{Workspace: rec.Workspace, Tree: tree}, nil
}

func nodeFromRecord(t *Tree, rec NodeRecord) (NodeID, error) {
	rect := Rect{Width: rec.Rect.Width, Height: rec.Rect.Height, Percent: rec.Rect.Percent}
	if rec.Swallows != nil {
		if rec.Layout != "" {
			return NoNode, fmt.Errorf("node carries both a layout and a swallow criterion")
		}
		id := t.NewWindow(Swallows{Class: rec.Swallows.Class, AppID: rec.Swallows.AppID})
		t.Node(id).Rect = rect
		return id, nil
	}
	switch rec.Layout {
	case LayoutSplitH, LayoutSplitV, LayoutTabbed, LayoutStacked:
	default:
		return NoNode, fmt.Errorf("unknown layout %q", rec.Layout)
	}
	id := t.NewSplit(rec.Layout)
	t.Node(id).Rect = rect
	for _, child := range rec.Children {
		childID, err := nodeFromRecord(t, child)
		if err != nil {
			return NoNode, err
		}
		t.AddChild(id, childID, -1)
	}
	return id, nil
}
