package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/swayback/swayback/internal/ipc"
	"github.com/swayback/swayback/internal/layout"
	"github.com/swayback/swayback/internal/restore"
	"github.com/swayback/swayback/internal/util"
)

type fakeManager struct {
	mu       sync.Mutex
	tree     *ipc.Node
	events   chan ipc.Event
	commands []string
}

func (f *fakeManager) Tree(context.Context) (*ipc.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tree, nil
}

func (f *fakeManager) Outputs(context.Context) ([]ipc.Output, error) {
	return []ipc.Output{{Name: "eDP-1", Active: true, CurrentWorkspace: "1"}}, nil
}

func (f *fakeManager) Command(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, text)
	return nil
}

func (f *fakeManager) CommandFor(ctx context.Context, conID int64, text string) error {
	return f.Command(ctx, text)
}

func (f *fakeManager) Subscribe(context.Context, *util.Logger, ...string) (<-chan ipc.Event, error) {
	return f.events, nil
}

type fakeDB struct {
	mu   sync.Mutex
	data map[string]layout.Record
	puts int
}

func dbKey(workspace, signature string) string { return workspace + "/" + signature }

func (f *fakeDB) Get(workspace, signature string) (layout.Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.data[dbKey(workspace, signature)]
	return rec, ok, nil
}

func (f *fakeDB) Put(workspace, signature string, rec layout.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		f.data = make(map[string]layout.Record)
	}
	f.data[dbKey(workspace, signature)] = rec
	f.puts++
	return nil
}

type fakePlanner struct {
	mu        sync.Mutex
	restores  int
	geometry  int
	restoreFn func(*layout.Layout) (restore.Result, error)
}

func (f *fakePlanner) Restore(_ context.Context, target *layout.Layout) (restore.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restores++
	if f.restoreFn != nil {
		return f.restoreFn(target)
	}
	return restore.Result{State: restore.StateConverged}, nil
}

func (f *fakePlanner) CorrectGeometry(context.Context, *layout.Layout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.geometry++
	return nil
}

// workspaceTree is workspace "1" on eDP-1 holding foot (focused) and
// emacs side by side.
func workspaceTree(innerLayout string) *ipc.Node {
	return &ipc.Node{
		Type: "root",
		Nodes: []ipc.Node{{
			Type: "output",
			Name: "eDP-1",
			Nodes: []ipc.Node{{
				ID:     1,
				Name:   "1",
				Type:   "workspace",
				Layout: innerLayout,
				Nodes: []ipc.Node{
					{ID: 10, Layout: "none", AppID: "foot", Focused: true, Rect: ipc.Rect{Width: 960, Height: 1080}},
					{ID: 20, Layout: "none", AppID: "emacs", Rect: ipc.Rect{Width: 960, Height: 1080}},
				},
			}},
		}},
	}
}

func newTestEngine(client *fakeManager, db *fakeDB, planner *fakePlanner) (*Engine, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := util.NewLoggerWithWriter(util.LevelTrace, &buf)
	e := New(client, db, planner, logger, nil, []string{"move", "swap", "resize", "split", "layout", "mode"}, 0)
	e.sleep = func(context.Context, time.Duration) {}
	return e, &buf
}

func bindingPayload(command string) json.RawMessage {
	payload, _ := json.Marshal(map[string]any{"binding": map[string]any{"command": command}})
	return payload
}

func TestBindingTriggerSavesFocusedWorkspace(t *testing.T) {
	client := &fakeManager{tree: workspaceTree("splith")}
	db := &fakeDB{}
	planner := &fakePlanner{}
	e, _ := newTestEngine(client, db, planner)

	e.handleBinding(context.Background(), bindingPayload("splitv"))
	if db.puts != 1 {
		t.Fatalf("split binding should snapshot once, got %d puts", db.puts)
	}
	if planner.restores != 0 {
		t.Fatalf("plain snapshot must not restore")
	}
}

func TestBindingSettlesOncePerArrangement(t *testing.T) {
	client := &fakeManager{tree: workspaceTree("splith")}
	db := &fakeDB{}
	e, _ := newTestEngine(client, db, &fakePlanner{})
	settles := 0
	e.sleep = func(context.Context, time.Duration) { settles++ }

	e.handleBinding(context.Background(), bindingPayload("splitv"))
	if settles != 1 {
		t.Fatalf("a snapshot binding should settle exactly once, got %d", settles)
	}

	settles = 0
	e.handleBinding(context.Background(), bindingPayload(`move container to workspace "2"`))
	if settles != 2 {
		t.Fatalf("a cross-workspace move should settle once per arranged end, got %d", settles)
	}
}

func TestBindingIgnoresFocusAndNonTriggers(t *testing.T) {
	client := &fakeManager{tree: workspaceTree("splith")}
	db := &fakeDB{}
	e, _ := newTestEngine(client, db, &fakePlanner{})

	e.handleBinding(context.Background(), bindingPayload("focus left"))
	e.handleBinding(context.Background(), bindingPayload("exec foot"))
	if db.puts != 0 {
		t.Fatalf("neither binding should snapshot, got %d puts", db.puts)
	}
}

func TestBindingIgnoredDuringRestore(t *testing.T) {
	client := &fakeManager{tree: workspaceTree("splith")}
	db := &fakeDB{}
	e, _ := newTestEngine(client, db, &fakePlanner{})

	e.restoring.Store(true)
	e.handleBinding(context.Background(), bindingPayload("splitv"))
	if db.puts != 0 {
		t.Fatalf("bindings during a restore must be ignored, got %d puts", db.puts)
	}
}

func TestMoveToWorkspaceArrangesBothEnds(t *testing.T) {
	client := &fakeManager{tree: workspaceTree("splith")}
	db := &fakeDB{}
	e, _ := newTestEngine(client, db, &fakePlanner{})

	// Workspace "2" does not exist in the fake tree, so only the focused
	// end produces a snapshot; the dest arrange logs and moves on.
	e.handleBinding(context.Background(), bindingPayload(`move container to workspace "2"`))
	if db.puts != 1 {
		t.Fatalf("focused workspace should be snapshotted, got %d puts", db.puts)
	}
}

func TestWindowEventSavesUnknownArrangement(t *testing.T) {
	client := &fakeManager{tree: workspaceTree("splith")}
	db := &fakeDB{}
	planner := &fakePlanner{}
	e, _ := newTestEngine(client, db, planner)

	e.handleWindow(context.Background(), json.RawMessage(`{"change":"new"}`))
	if db.puts != 1 {
		t.Fatalf("unknown window set should be saved, got %d puts", db.puts)
	}
	// Title changes are noise.
	e.handleWindow(context.Background(), json.RawMessage(`{"change":"title"}`))
	if db.puts != 1 {
		t.Fatalf("title change must not snapshot, got %d puts", db.puts)
	}
}

func TestWindowEventRestoresKnownArrangement(t *testing.T) {
	client := &fakeManager{tree: workspaceTree("splith")}
	db := &fakeDB{}
	planner := &fakePlanner{}
	e, _ := newTestEngine(client, db, planner)

	// Store a snapshot for the same window set but a different shape.
	want := layout.FromNode(&workspaceTree("splitv").Nodes[0].Nodes[0], "1", "eDP-1")
	live, err := layout.FromWorkspace(context.Background(), client, "1")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if err := db.Put("1", live.Signature(), want.Record()); err != nil {
		t.Fatalf("put: %v", err)
	}

	e.handleWindow(context.Background(), json.RawMessage(`{"change":"move"}`))
	if planner.restores != 1 {
		t.Fatalf("stored arrangement should trigger a restore, got %d", planner.restores)
	}
	if planner.geometry != 1 {
		t.Fatalf("converged restore should correct geometry, got %d", planner.geometry)
	}
	found := false
	client.mu.Lock()
	for _, cmd := range client.commands {
		if cmd == "focus" {
			found = true
		}
	}
	client.mu.Unlock()
	if !found {
		t.Fatalf("focus should return to the previously focused window")
	}
	stats := e.Status()
	if stats.Restores != 1 || stats.Failures != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestMatchingSnapshotIsLeftAlone(t *testing.T) {
	client := &fakeManager{tree: workspaceTree("splith")}
	db := &fakeDB{}
	planner := &fakePlanner{}
	e, _ := newTestEngine(client, db, planner)

	live, err := layout.FromWorkspace(context.Background(), client, "1")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if err := db.Put("1", live.Signature(), live.Record()); err != nil {
		t.Fatalf("put: %v", err)
	}

	e.handleWindow(context.Background(), json.RawMessage(`{"change":"new"}`))
	if planner.restores != 0 {
		t.Fatalf("a workspace already matching its snapshot must not restore")
	}
}

func TestFailedRestoreCountsAsFailure(t *testing.T) {
	client := &fakeManager{tree: workspaceTree("splith")}
	db := &fakeDB{}
	planner := &fakePlanner{restoreFn: func(*layout.Layout) (restore.Result, error) {
		return restore.Result{State: restore.StateMismatched}, restore.ErrMismatched
	}}
	e, buf := newTestEngine(client, db, planner)

	want := layout.FromNode(&workspaceTree("splitv").Nodes[0].Nodes[0], "1", "eDP-1")
	live, _ := layout.FromWorkspace(context.Background(), client, "1")
	if err := db.Put("1", live.Signature(), want.Record()); err != nil {
		t.Fatalf("put: %v", err)
	}

	e.handleWindow(context.Background(), json.RawMessage(`{"change":"new"}`))
	if planner.geometry != 0 {
		t.Fatalf("failed restore must skip the geometry pass")
	}
	if stats := e.Status(); stats.Failures != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if !strings.Contains(buf.String(), "gave up") {
		t.Fatalf("failed restore should be logged:\n%s", buf.String())
	}
}

func TestRunStopsWhenStreamCloses(t *testing.T) {
	events := make(chan ipc.Event)
	close(events)
	client := &fakeManager{tree: workspaceTree("splith"), events: events}
	e, _ := newTestEngine(client, &fakeDB{}, &fakePlanner{})

	if err := e.Run(context.Background()); err == nil {
		t.Fatalf("closed stream should surface an error")
	}
}

func TestExplicitRestoreUnknownSignature(t *testing.T) {
	client := &fakeManager{tree: workspaceTree("splith")}
	e, _ := newTestEngine(client, &fakeDB{}, &fakePlanner{})

	err := e.Restore(context.Background(), "1")
	if err == nil || !strings.Contains(err.Error(), "no snapshot") {
		t.Fatalf("expected missing snapshot error, got %v", err)
	}
}
