package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/swayback/swayback/internal/layout"
)

func sampleRecord(workspace string) layout.Record {
	return layout.Record{
		Workspace: workspace,
		Root: layout.NodeRecord{
			Layout: "splith",
			Rect:   layout.RectRecord{Width: 1920, Height: 1080},
			Children: []layout.NodeRecord{
				{
					Swallows: &layout.SwallowsRecord{AppID: "foot"},
					Rect:     layout.RectRecord{Width: 960, Height: 1080},
				},
				{
					Swallows: &layout.SwallowsRecord{Class: "Firefox"},
					Rect:     layout.RectRecord{Width: 960, Height: 1080},
				},
			},
		},
	}
}

func TestDBPutGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	want := sampleRecord("1")
	if err := db.Put("1", "sig-a", want); err != nil {
		t.Fatalf("put: %v", err)
	}

	// A fresh open must see the committed record.
	db2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok, err := db2.Get("1", "sig-a")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
	if _, ok, _ := db2.Get("1", "sig-b"); ok {
		t.Fatalf("unknown signature should miss")
	}
}

func TestDBFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Put("1", "sig", sampleRecord("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Fatalf("database mode = %o, want 600", got)
	}
}

func TestDBDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Put("2", "sig", sampleRecord("2")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if got := db.Signatures("2"); len(got) != 1 || got[0] != "sig" {
		t.Fatalf("Signatures = %v", got)
	}
	if err := db.Delete("2", "sig"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := db.Workspaces(); len(got) != 0 {
		t.Fatalf("emptied workspace should disappear, got %v", got)
	}
	// Absent records delete quietly.
	if err := db.Delete("2", "sig"); err != nil {
		t.Fatalf("double delete: %v", err)
	}
}

func TestOpenRejectsCorruptRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	bad := `{"1": {"sig": {"workspace": "1", "root": {"layout": "grid", "rect": {"width": 1, "height": 1}}}}}`
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatalf("invalid layout enum should fail the open")
	}
}

func TestLibrarySaveLoadList(t *testing.T) {
	lib := NewLibrary(filepath.Join(t.TempDir(), "layouts"))
	want := sampleRecord("3")
	if err := lib.Save("coding", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := lib.Save("media", sampleRecord("4")); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := lib.Load("coding")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}

	names, err := lib.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]string{"coding", "media"}, names); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}

	if err := lib.Delete("media"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := lib.Load("media"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted layout should be not found, got %v", err)
	}
}

func TestLibraryEmptyDirListsNothing(t *testing.T) {
	lib := NewLibrary(filepath.Join(t.TempDir(), "missing"))
	names, err := lib.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("missing directory should list nothing, got %v", names)
	}
}

func TestLibraryRejectsTraversalNames(t *testing.T) {
	lib := NewLibrary(t.TempDir())
	for _, name := range []string{"", "a/b", `a\b`, ".hidden", "../escape"} {
		if err := lib.Save(name, sampleRecord("1")); err == nil {
			t.Fatalf("name %q should be rejected", name)
		}
	}
}

func TestLibraryRejectsTamperedFiles(t *testing.T) {
	dir := t.TempDir()
	lib := NewLibrary(dir)
	bad := `{"workspace": "1", "root": {"layout": "splith", "swallows": {"app_id": "x"}, "rect": {"width": 1, "height": 1}}}`
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte(bad), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := lib.Load("bad"); err == nil {
		t.Fatalf("record with both layout and swallows should be rejected")
	}
}
