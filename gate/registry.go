package gate

import (
	"sort"
	"sync"
)

// Registry holds the named gates of the process.
type Registry struct {
	mu    sync.RWMutex
	gates map[string]*Gate
}

func NewRegistry() *Registry {
	return &Registry{gates: make(map[string]*Gate)}
}

// Register adds g, replacing any gate with the same name.
func (r *Registry) Register(g *Gate) *Gate {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gates[g.Name()] = g
	return g
}

func (r *Registry) Get(name string) (*Gate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gates[name]
	return g, ok
}

// Ready reports whether every named gate is connected. With no names it checks
// every registered gate. An unknown name is never ready.
func (r *Registry) Ready(names ...string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(names) == 0 {
		for _, g := range r.gates {
			if !g.Ready() {
				return false
			}
		}
		return true
	}
	for _, name := range names {
		g, ok := r.gates[name]
		if !ok || !g.Ready() {
			return false
		}
	}
	return true
}

func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.gates))
	for _, g := range r.gates {
		out = append(out, g.Snapshot())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
