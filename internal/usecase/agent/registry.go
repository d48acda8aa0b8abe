package agent

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/questor-ai/questor/internal/domain"
)

// snapshot is one immutable view of the registered agents. order records
// insertion order so iteration (and router tie-breaking) is deterministic.
type snapshot struct {
	agents map[string]*Agent
	order  []string
}

// Registry holds the agent pool. Every register/remove builds a new
// snapshot and atomically swaps the reference, so concurrent in-flight
// routing sessions keep the complete view they captured and never see a
// partially updated pool.
type Registry struct {
	mu   sync.Mutex // serializes writers only
	view atomic.Pointer[snapshot]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.view.Store(&snapshot{agents: map[string]*Agent{}})
	return r
}

// Register adds an agent under its name.
func (r *Registry) Register(a *Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.view.Load()
	if _, exists := cur.agents[a.Name()]; exists {
		return fmt.Errorf("agent %q: %w", a.Name(), domain.ErrAgentAlreadyExists)
	}

	next := &snapshot{
		agents: make(map[string]*Agent, len(cur.agents)+1),
		order:  make([]string, 0, len(cur.order)+1),
	}
	for _, name := range cur.order {
		next.agents[name] = cur.agents[name]
		next.order = append(next.order, name)
	}
	next.agents[a.Name()] = a
	next.order = append(next.order, a.Name())

	r.view.Store(next)
	return nil
}

// Remove deletes an agent by name.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.view.Load()
	if _, exists := cur.agents[name]; !exists {
		return fmt.Errorf("agent %q: %w", name, domain.ErrAgentNotFound)
	}

	next := &snapshot{
		agents: make(map[string]*Agent, len(cur.agents)-1),
		order:  make([]string, 0, len(cur.order)-1),
	}
	for _, n := range cur.order {
		if n == name {
			continue
		}
		next.agents[n] = cur.agents[n]
		next.order = append(next.order, n)
	}

	r.view.Store(next)
	return nil
}

// Get returns an agent by name.
func (r *Registry) Get(name string) (*Agent, error) {
	cur := r.view.Load()
	a, ok := cur.agents[name]
	if !ok {
		return nil, fmt.Errorf("agent %q: %w", name, domain.ErrAgentNotFound)
	}
	return a, nil
}

// List returns all agents in insertion order.
func (r *Registry) List() []*Agent {
	cur := r.view.Load()
	out := make([]*Agent, 0, len(cur.order))
	for _, name := range cur.order {
		out = append(out, cur.agents[name])
	}
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	return len(r.view.Load().order)
}
