package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/fre/pkg/engine"
	"mercator-hq/fre/pkg/rule"
)

const doorRules = `name: doors
facts:
  door_open: false
rules:
  - id: open_door
    event: use_door
    modifications:
      - op: toggle
        key: door_open
`

const lightRules = `name: lights
rules:
  - id: lamp
    event: use_lamp
    actions: [lamp_on]
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFileSource_LoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "doors.yaml"), doorRules)
	writeFile(t, filepath.Join(dir, "nested", "lights.yml"), lightRules)
	writeFile(t, filepath.Join(dir, "README.md"), "not rules")
	writeFile(t, filepath.Join(dir, ".hidden", "broken.yaml"), "rules: [")

	src := NewFileSource([]string{dir}, nil)
	sets, err := src.LoadRuleSets(context.Background())
	if err != nil {
		t.Fatalf("LoadRuleSets() error = %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("got %d sets, want 2", len(sets))
	}
	if sets[0].Name != "doors" || sets[1].Name != "lights" {
		t.Errorf("got sets %q, %q, want doors, lights", sets[0].Name, sets[1].Name)
	}
}

func TestFileSource_SingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.txt")
	writeFile(t, path, lightRules)

	sets, err := NewFileSource([]string{path}, nil).LoadRuleSets(context.Background())
	if err != nil {
		t.Fatalf("LoadRuleSets() error = %v", err)
	}
	if len(sets) != 1 || sets[0].SourceFile != path {
		t.Fatalf("got %v, want one set from %s", sets, path)
	}
}

func TestFileSource_AllOrNothing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), doorRules)
	writeFile(t, filepath.Join(dir, "b.yaml"), "name: broken\nrules:\n  - id: x\n")

	sets, err := NewFileSource([]string{dir}, nil).LoadRuleSets(context.Background())
	if err == nil {
		t.Fatal("expected error for file with a rule missing its event")
	}
	if sets != nil {
		t.Errorf("got %d sets on failure, want none", len(sets))
	}
}

func TestFileSource_CrossFileDuplicate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), lightRules)
	writeFile(t, filepath.Join(dir, "b.yaml"), lightRules)

	if _, err := NewFileSource([]string{dir}, nil).LoadRuleSets(context.Background()); err == nil {
		t.Fatal("expected duplicate rule id error across files")
	}
}

func TestFileSource_Extensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), doorRules)
	writeFile(t, filepath.Join(dir, "b.rules"), lightRules)

	files, err := NewFileSource([]string{dir}, nil).WithExtensions(".rules").Files()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "b.rules" {
		t.Errorf("got files %v, want [b.rules]", files)
	}
}

func TestFileSource_MissingPath(t *testing.T) {
	src := NewFileSource([]string{filepath.Join(t.TempDir(), "nope")}, nil)
	if _, err := src.LoadRuleSets(context.Background()); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestFileSource_Watch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "doors.yaml"), doorRules)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := NewFileSource([]string{dir}, nil).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	writeFile(t, filepath.Join(dir, "ignored.txt"), "x")
	writeFile(t, filepath.Join(dir, "doors.yaml"), doorRules+"\n")

	select {
	case ev := <-events:
		if ev.Error != nil {
			t.Fatalf("watch error: %v", ev.Error)
		}
		if filepath.Base(ev.Path) != "doors.yaml" {
			t.Errorf("got event for %s, want doors.yaml", ev.Path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for file event")
	}

	cancel()
	for range events {
	}
}

func TestMemorySource(t *testing.T) {
	first := &rule.Set{Name: "first"}
	src := NewMemorySource(first)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := src.Watch(ctx)
	if err != nil {
		t.Fatal(err)
	}

	sets, _ := src.LoadRuleSets(ctx)
	if len(sets) != 1 || sets[0] != first {
		t.Fatalf("got %v, want [first]", sets)
	}

	src.SetRuleSets([]*rule.Set{{Name: "second"}})
	select {
	case ev := <-events:
		if ev.Type != engine.SourceEventModified {
			t.Errorf("got event type %q, want modified", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no event after SetRuleSets")
	}

	sets, _ = src.LoadRuleSets(ctx)
	if sets[0].Name != "second" {
		t.Errorf("got %q, want second", sets[0].Name)
	}

	cancel()
	if _, ok := <-events; ok {
		t.Error("channel still open after cancel")
	}
}
