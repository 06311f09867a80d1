package search

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps engine types from the config to their constructors.
type Registry struct {
	factories map[string]EngineFactory
	mu        sync.RWMutex
}

// NewRegistry knows the built-in tavily, searxng and metaso engines.
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]EngineFactory{}}
	r.Register("tavily", NewTavilyEngine)
	r.Register("searxng", NewSearXNGEngine)
	r.Register("metaso", NewMetasoEngine)
	return r
}

func (r *Registry) Register(engineType string, factory EngineFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(engineType)] = factory
}

// CreateEngine builds an engine. An empty Type falls back to the Name, so
// "name: tavily" alone is enough in the config.
func (r *Registry) CreateEngine(config EngineConfig) (Engine, error) {
	typ := strings.ToLower(strings.TrimSpace(config.Type))
	if typ == "" {
		typ = strings.ToLower(config.Name)
	}

	r.mu.RLock()
	factory, ok := r.factories[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown engine type %q (known: %s)", config.Type, strings.Join(r.types(), ", "))
	}
	return factory(config)
}

func (r *Registry) types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
