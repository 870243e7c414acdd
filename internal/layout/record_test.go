package layout

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRecordRoundTrip(t *testing.T) {
	tree, _, foot, _, _, _ := twoLevel(t)
	pct := 0.5
	tree.Node(foot).Rect = Rect{Width: 960, Height: 1080, Percent: &pct}
	l := &Layout{Workspace: "3", Output: "eDP-1", Tree: tree}

	rec := l.Record()
	back, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}
	if back.Workspace != "3" {
		t.Fatalf("workspace = %q, want 3", back.Workspace)
	}
	if !EqualPrecise(l, back) {
		t.Fatalf("round trip changed the structure:\n%s\nvs\n%s", l, back)
	}
	// Live identity never survives persistence.
	for _, id := range back.Tree.Nodes() {
		if back.Tree.Node(id).ConID != 0 {
			t.Fatalf("decoded node carries con_id %d", back.Tree.Node(id).ConID)
		}
	}
	leaf := back.Tree.Node(back.Tree.Leaves()[0])
	if leaf.Rect.Width != 960 || leaf.Rect.Percent == nil || *leaf.Rect.Percent != 0.5 {
		t.Fatalf("leaf geometry did not round-trip: %+v", leaf.Rect)
	}
}

func TestRecordJSONShape(t *testing.T) {
	tree := NewTree()
	root := tree.NewSplit(LayoutSplitV)
	tree.SetRoot(root)
	tree.AddChild(root, tree.NewWindow(Swallows{Class: "Emacs"}), -1)
	l := &Layout{Workspace: "1", Tree: tree}

	data, err := json.Marshal(l.Record())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"layout":"splitv"`, `"swallows":{"class":"Emacs"}`, `"percent":null`} {
		if !strings.Contains(s, want) {
			t.Fatalf("encoded record missing %s:\n%s", want, s)
		}
	}
	if strings.Contains(s, "con_id") || strings.Contains(s, "fake") {
		t.Fatalf("encoded record leaks identity fields:\n%s", s)
	}
}

func TestFromRecordRejectsMalformedNodes(t *testing.T) {
	_, err := FromRecord(Record{
		Workspace: "1",
		Root: NodeRecord{
			Layout:   LayoutSplitH,
			Swallows: &SwallowsRecord{AppID: "foot"},
		},
	})
	if err == nil || !strings.Contains(err.Error(), "both") {
		t.Fatalf("node with layout and swallows should be rejected, got %v", err)
	}

	_, err = FromRecord(Record{
		Workspace: "1",
		Root:      NodeRecord{Layout: "grid"},
	})
	if err == nil || !strings.Contains(err.Error(), "grid") {
		t.Fatalf("unknown layout should be rejected, got %v", err)
	}
}

func TestRecordSplitAlwaysEncodesChildren(t *testing.T) {
	tree := NewTree()
	root := tree.NewSplit(LayoutSplitH)
	tree.SetRoot(root)
	rec := (&Layout{Workspace: "1", Tree: tree}).Record()
	if rec.Root.Children == nil {
		t.Fatalf("split record should carry a children slice even when empty")
	}
	back, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}
	if diff := cmp.Diff(0, len(back.Tree.Node(back.Tree.Root()).Children)); diff != "" {
		t.Fatalf("empty split should decode empty (-want +got):\n%s", diff)
	}
}
