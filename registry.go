package dopus

import (
	"slices"
	"sync"
)

// Registry maps tool ids to descriptors. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Descriptor
}

// NewRegistry creates a Registry holding descs.
func NewRegistry(descs ...*Descriptor) *Registry {
	r := &Registry{tools: make(map[string]*Descriptor, len(descs))}
	for _, d := range descs {
		r.Register(d)
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry returns the process-wide registry, created on first use.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Register adds d to the process-wide registry and returns it, so tools can be declared as
// package-level variables:
//
//	var add = dopus.Register(dopus.MustTool("add", "Add two numbers.", addFn))
func Register(d *Descriptor) *Descriptor {
	DefaultRegistry().Register(d)
	return d
}

// Register stores d under d.ID(), replacing any descriptor with the same id.
func (r *Registry) Register(d *Descriptor) {
	if d == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[d.ID()] = d
}

// Lookup returns the descriptor for id, or (nil, false).
func (r *Registry) Lookup(id string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[id]
	return d, ok
}

func (r *Registry) Contains(id string) bool {
	_, ok := r.Lookup(id)
	return ok
}

// IDs returns all registered ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Descriptors returns the descriptors of ids in the given order, skipping unknown ids.
// Provider adapters use it to render tool definitions for the active set.
func (r *Registry) Descriptors(ids []string) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(ids))
	for _, id := range ids {
		if d, ok := r.tools[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
