// Package toolregistry holds the tools shared by every agent in a run and
// caches the results of read-only tools.
package toolregistry

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"triad/internal/agent/ports"
)

// Registry implements ports.ToolSet over a fixed set of tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ports.Tool
	cache *resultCache
}

// NewRegistry registers tools, wrapping each in the result cache when
// cache is enabled.
func NewRegistry(cache CacheConfig, tools ...ports.Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]ports.Tool, len(tools))}
	if !cache.Disabled {
		r.cache = newResultCache(cache)
	}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(tool ports.Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	name := strings.TrimSpace(tool.Name())
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already exists: %s", name)
	}
	if r.cache != nil {
		tool = r.cache.wrap(tool)
	}
	r.tools[name] = tool
	return nil
}

func (r *Registry) Get(name string) (ports.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Definitions lists every tool definition sorted by name.
func (r *Registry) Definitions() []ports.ToolDefinition {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ports.ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// CacheStats reports hits and misses of the result cache.
func (r *Registry) CacheStats() (hits, misses int64) {
	if r.cache == nil {
		return 0, 0
	}
	return r.cache.stats()
}

var _ ports.ToolSet = (*Registry)(nil)
