package agent

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/questor-ai/questor/internal/domain"
)

func namedAgent(t *testing.T, name string) *Agent {
	t.Helper()
	rec := testRecord("dynamic")
	rec.Name = name
	a, err := New(rec, &mockCompleter{}, &mockRetriever{}, zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	a := namedAgent(t, "alpha")

	if err := r.Register(a); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, err := r.Get("alpha")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != a {
		t.Error("Get returned a different agent")
	}
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(namedAgent(t, "alpha")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(namedAgent(t, "alpha")); !errors.Is(err, domain.ErrAgentAlreadyExists) {
		t.Fatalf("expected ErrAgentAlreadyExists, got %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(namedAgent(t, "alpha")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := r.Remove("alpha"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := r.Get("alpha"); !errors.Is(err, domain.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound after removal, got %v", err)
	}

	if err := r.Remove("alpha"); !errors.Is(err, domain.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound for double removal, got %v", err)
	}
}

func TestRegistry_ListKeepsInsertionOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		if err := r.Register(namedAgent(t, name)); err != nil {
			t.Fatalf("Register %s failed: %v", name, err)
		}
	}

	got := r.List()
	want := []string{"charlie", "alpha", "bravo"}
	for i, a := range got {
		if a.Name() != want[i] {
			t.Errorf("List[%d] = %q, want %q", i, a.Name(), want[i])
		}
	}
}

func TestRegistry_SnapshotStableAcrossMutation(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"alpha", "bravo"} {
		if err := r.Register(namedAgent(t, name)); err != nil {
			t.Fatalf("Register %s failed: %v", name, err)
		}
	}

	captured := r.List()

	if err := r.Remove("alpha"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := r.Register(namedAgent(t, "delta")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// The earlier view is untouched by later registry changes.
	if len(captured) != 2 || captured[0].Name() != "alpha" || captured[1].Name() != "bravo" {
		t.Errorf("captured view mutated: %v", captured)
	}
}
