package plugin

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/johntipper/blog/config"
)

// Registry maps plugin identifiers to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under id.
// Returns an error if id is empty or already registered.
func (r *Registry) Register(id string, f Factory) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("plugin identifier is required")
	}
	if f == nil {
		return fmt.Errorf("cannot register nil factory for %s", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("plugin %s already registered", id)
	}
	r.factories[id] = f
	return nil
}

// Lookup returns the factory registered under id.
func (r *Registry) Lookup(id string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[id]
	return f, ok
}

// IDs returns every registered identifier, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolved is a plugin instantiated from one activation.
type Resolved struct {
	ID     string
	Index  int
	Plugin Plugin
}

// Resolve instantiates every activation in order. An unknown identifier or a
// repeated one stops resolution; there is no partial result.
func (r *Registry) Resolve(activations []config.PluginActivation) ([]Resolved, error) {
	seen := make(map[string]int, len(activations))
	out := make([]Resolved, 0, len(activations))

	for i, act := range activations {
		id := strings.TrimSpace(act.Resolve)
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %q at plugins[%d] and plugins[%d]", ErrDuplicate, id, prev, i)
		}
		seen[id] = i

		factory, ok := r.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("%w: %q (plugins[%d])", ErrUnresolved, id, i)
		}
		p, err := factory(Options(act.Options))
		if err != nil {
			return nil, NewError(id, StageOptions, err)
		}
		out = append(out, Resolved{ID: id, Index: i, Plugin: p})
	}
	return out, nil
}
