package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry maps implementation names to tools. NewRegistry installs the
// built-ins; embedders add their own with Register.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	r.Register(&WebpageTool{})
	r.Register(&RSSTool{})
	r.Register(&ExtractTool{})
	r.Register(&DatetimeTool{})
	return r
}

// NewEmptyRegistry returns a registry without built-ins.
func NewEmptyRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute runs the named tool. Unknown names are an error; tool nodes
// referencing them fail their step at run time.
func (r *Registry) Execute(ctx context.Context, name string, input any) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown tool implementation %q", name)
	}
	return t.Execute(ctx, input)
}

// Info describes a registered tool for API listings.
type Info struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// Infos returns all registered tools sorted by name.
func (r *Registry) Infos() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, Info{Name: t.Name(), Description: t.Description(), InputSchema: t.InputSchema()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
