// Package store persists layout records: a signature-keyed database the
// daemon reads and writes on every arrange, and a named library for
// layouts saved explicitly by the user.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/swayback/swayback/internal/layout"
)

// recordSchema validates persisted layout records before they are trusted.
// A container is either a split (layout plus children) or a leaf (swallow
// criterion), never both.
const recordSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["workspace", "root"],
  "properties": {
    "workspace": {"type": "string", "minLength": 1},
    "root": {"$ref": "#/$defs/node"}
  },
  "$defs": {
    "rect": {
      "type": "object",
      "required": ["width", "height"],
      "properties": {
        "width": {"type": "number", "minimum": 0},
        "height": {"type": "number", "minimum": 0},
        "percent": {"type": ["number", "null"]}
      }
    },
    "node": {
      "type": "object",
      "required": ["rect"],
      "properties": {"rect": {"$ref": "#/$defs/rect"}},
      "oneOf": [
        {
          "required": ["layout"],
          "properties": {
            "layout": {"enum": ["splith", "splitv", "tabbed", "stacked"]},
            "children": {"type": "array", "items": {"$ref": "#/$defs/node"}}
          },
          "not": {"required": ["swallows"]}
        },
        {
          "required": ["swallows"],
          "properties": {
            "swallows": {
              "type": "object",
              "minProperties": 1,
              "properties": {
                "class": {"type": "string"},
                "app_id": {"type": "string"}
              }
            }
          },
          "not": {"required": ["layout"]}
        }
      ]
    }
  }
}`

var compiledSchema = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("record.json", strings.NewReader(recordSchema)); err != nil {
		panic(fmt.Sprintf("store: add schema resource: %v", err))
	}
	schema, err := c.Compile("record.json")
	if err != nil {
		panic(fmt.Sprintf("store: compile record schema: %v", err))
	}
	return schema
}()

func validateRecord(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	return compiledSchema.Validate(doc)
}

// ErrNotFound is returned for lookups of unknown records.
var ErrNotFound = errors.New("layout record not found")

// DB stores the daemon's automatic snapshots, keyed by workspace name and
// window-set signature. The whole database is one JSON file rewritten
// atomically on every change.
type DB struct {
	path string

	mu   sync.Mutex
	data map[string]map[string]layout.Record
}

// Open loads the database at path, starting empty when the file does not
// exist. Every stored record is validated; a corrupt entry fails the open
// so it cannot silently poison later restores.
func Open(path string) (*DB, error) {
	db := &DB{path: path, data: make(map[string]map[string]layout.Record)}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return db, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open layout database: %w", err)
	}

	var rawRecords map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rawRecords); err != nil {
		return nil, fmt.Errorf("decode layout database %s: %w", path, err)
	}
	for workspace, bySig := range rawRecords {
		db.data[workspace] = make(map[string]layout.Record, len(bySig))
		for sig, entry := range bySig {
			if err := validateRecord(entry); err != nil {
				return nil, fmt.Errorf("database %s: workspace %q signature %s: %w", path, workspace, sig, err)
			}
			var rec layout.Record
			if err := json.Unmarshal(entry, &rec); err != nil {
				return nil, fmt.Errorf("database %s: workspace %q signature %s: %w", path, workspace, sig, err)
			}
			db.data[workspace][sig] = rec
		}
	}
	return db, nil
}

// Get returns the record for the workspace and signature.
func (db *DB) Get(workspace, signature string) (layout.Record, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.data[workspace][signature]
	return rec, ok, nil
}

// Put stores the record and rewrites the database file.
func (db *DB) Put(workspace, signature string, rec layout.Record) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.data[workspace] == nil {
		db.data[workspace] = make(map[string]layout.Record)
	}
	db.data[workspace][signature] = rec
	return db.commit()
}

// Delete removes one record. Deleting an absent record is not an error.
func (db *DB) Delete(workspace, signature string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	bySig, ok := db.data[workspace]
	if !ok {
		return nil
	}
	if _, ok := bySig[signature]; !ok {
		return nil
	}
	delete(bySig, signature)
	if len(bySig) == 0 {
		delete(db.data, workspace)
	}
	return db.commit()
}

// Workspaces lists the workspaces holding at least one record, sorted.
func (db *DB) Workspaces() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]string, 0, len(db.data))
	for workspace := range db.data {
		out = append(out, workspace)
	}
	sort.Strings(out)
	return out
}

// Signatures lists the signatures recorded for one workspace, sorted.
func (db *DB) Signatures(workspace string) []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	bySig := db.data[workspace]
	out := make([]string, 0, len(bySig))
	for signature := range bySig {
		out = append(out, signature)
	}
	sort.Strings(out)
	return out
}

// commit writes the database through a temp file so readers never see a
// torn write. Caller holds db.mu.
func (db *DB) commit() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(db.data); err != nil {
		return fmt.Errorf("encode layout database: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(db.path), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(db.path), ".swayback-db-*")
	if err != nil {
		return fmt.Errorf("write layout database: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write layout database: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write layout database: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write layout database: %w", err)
	}
	if err := os.Rename(tmp.Name(), db.path); err != nil {
		return fmt.Errorf("replace layout database: %w", err)
	}
	return nil
}

// Library stores named layouts as one JSON file each, for explicit save
// and restore by name.
type Library struct {
	dir string
}

// NewLibrary returns a library rooted at dir. The directory is created on
// the first save.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

func (l *Library) fileFor(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\") || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid layout name %q", name)
	}
	return filepath.Join(l.dir, name+".json"), nil
}

// Save writes the record under the given name, replacing any previous
// version.
func (l *Library) Save(name string, rec layout.Record) error {
	path, err := l.fileFor(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create layout directory: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode layout %q: %w", name, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("save layout %q: %w", name, err)
	}
	return nil
}

// Load reads and validates the named record.
func (l *Library) Load(name string) (layout.Record, error) {
	var rec layout.Record
	path, err := l.fileFor(name)
	if err != nil {
		return rec, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return rec, fmt.Errorf("layout %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("load layout %q: %w", name, err)
	}
	if err := validateRecord(data); err != nil {
		return rec, fmt.Errorf("layout %q: %w", name, err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("layout %q: %w", name, err)
	}
	return rec, nil
}

// Delete removes the named layout.
func (l *Library) Delete(name string) error {
	path, err := l.fileFor(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("layout %q: %w", name, ErrNotFound)
		}
		return fmt.Errorf("delete layout %q: %w", name, err)
	}
	return nil
}

// List returns the saved layout names, sorted.
func (l *Library) List() ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(l.dir), "*.json")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list layouts: %w", err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(m, ".json"))
	}
	sort.Strings(names)
	return names, nil
}
