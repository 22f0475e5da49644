package gate

import (
	"sort"
	"sync"
)

// Gate admits at most one add at a time and at most one delete per id.
// Rejected calls are dropped, not queued: the in-flight operation is left to
// finish on its own.
type Gate struct {
	mu       sync.Mutex
	adding   bool
	deleting map[string]struct{}
}

// New creates an idle gate.
func New() *Gate {
	return &Gate{deleting: make(map[string]struct{})}
}

// BeginAdd reports false if an add is already in flight.
func (g *Gate) BeginAdd() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.adding {
		return false
	}
	g.adding = true
	return true
}

// EndAdd clears the add flag unconditionally.
func (g *Gate) EndAdd() {
	g.mu.Lock()
	g.adding = false
	g.mu.Unlock()
}

// BeginDelete reports false if id is already being deleted.
func (g *Gate) BeginDelete(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.deleting[id]; busy {
		return false
	}
	g.deleting[id] = struct{}{}
	return true
}

// EndDelete releases id.
func (g *Gate) EndDelete(id string) {
	g.mu.Lock()
	delete(g.deleting, id)
	g.mu.Unlock()
}

// Adding reports whether an add is in flight.
func (g *Gate) Adding() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.adding
}

// Deleting returns the ids currently being deleted, sorted.
func (g *Gate) Deleting() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]string, 0, len(g.deleting))
	for id := range g.deleting {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
