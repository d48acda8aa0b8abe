package templates

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/questor-ai/questor/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func testRecord(name string) domain.AgentRecord {
	return domain.AgentRecord{
		Name:         name,
		Description:  "test agent",
		BasePrompt:   "You are a test agent.",
		Kind:         "dynamic",
		KnowledgeDir: "knowledge/test",
		Parameters:   map[string]any{"temperature": 0.5},
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(testRecord("researcher")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rec, err := s.Load("researcher")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rec.Name != "researcher" || rec.Kind != "dynamic" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if got := rec.FloatParam("temperature", 0); got != 0.5 {
		t.Errorf("temperature = %v, want 0.5", got)
	}
}

func TestLoad_Missing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load("ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSave_RejectsInvalidRecord(t *testing.T) {
	s := newTestStore(t)

	rec := testRecord("broken")
	rec.BasePrompt = ""
	if err := s.Save(rec); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSave_RejectsUnsafeName(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"", "../escape", "a/b", ".hidden"} {
		rec := testRecord("x")
		rec.Name = name
		if err := s.Save(rec); err == nil {
			t.Errorf("name %q: expected error", name)
		}
	}
}

func TestList_SortedAndSkipsBadFiles(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"zeta", "alpha"} {
		if err := s.Save(testRecord(name)); err != nil {
			t.Fatalf("Save %s failed: %v", name, err)
		}
	}
	// A corrupt file must not hide the valid ones.
	if err := os.WriteFile(filepath.Join(s.dir, "bad.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Name != "alpha" || records[1].Name != "zeta" {
		t.Errorf("records not sorted by name: %v, %v", records[0].Name, records[1].Name)
	}
}

func TestUpdate_MergesFields(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(testRecord("planner")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	upd := domain.AgentRecord{
		Description: "updated description",
		Parameters:  map[string]any{"max_knowledge_items": 7},
	}
	rec, err := s.Update("planner", upd)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if rec.Description != "updated description" {
		t.Errorf("Description = %q", rec.Description)
	}
	// Untouched fields and parameters survive the merge.
	if rec.BasePrompt != "You are a test agent." {
		t.Errorf("BasePrompt = %q", rec.BasePrompt)
	}
	if got := rec.FloatParam("temperature", 0); got != 0.5 {
		t.Errorf("temperature = %v, want 0.5", got)
	}
	if got := rec.IntParam("max_knowledge_items", 0); got != 7 {
		t.Errorf("max_knowledge_items = %v, want 7", got)
	}

	reloaded, err := s.Load("planner")
	if err != nil {
		t.Fatalf("Load after update failed: %v", err)
	}
	if reloaded.Description != "updated description" {
		t.Error("update was not persisted")
	}
}

func TestUpdate_Missing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Update("ghost", domain.AgentRecord{Description: "x"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_RejectsInvalidResult(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(testRecord("planner")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := s.Update("planner", domain.AgentRecord{Kind: "bogus"}); err == nil {
		t.Fatal("expected validation error for unknown kind")
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(testRecord("ephemeral")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Delete("ephemeral"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	ok, err := s.Exists("ephemeral")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if ok {
		t.Error("record still exists after delete")
	}

	if err := s.Delete("ephemeral"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestSave_OverwritesExisting(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(testRecord("agent")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	rec := testRecord("agent")
	rec.Description = "second version"
	if err := s.Save(rec); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err := s.Load("agent")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Description != "second version" {
		t.Errorf("Description = %q", loaded.Description)
	}
}
