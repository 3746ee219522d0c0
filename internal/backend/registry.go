package backend

import (
	"fmt"
	"sync"
)

// Registry maps backend names to registered backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend under its own name. Re-registering a name
// replaces the previous backend.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Get returns a backend by name.
func (r *Registry) Get(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// Resolve parses a model selector and returns the matching backend
// along with the model name to request from it.
func (r *Registry) Resolve(selector string) (Backend, string, error) {
	name, model := ParseSelector(selector)
	b, ok := r.Get(name)
	if !ok {
		return nil, "", fmt.Errorf("unknown model backend %q", name)
	}
	return b, model, nil
}

// Names returns the registered backend names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}
