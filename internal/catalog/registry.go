// ABOUTME: Thread-safe tool registry with collision detection.
// ABOUTME: The building block catalogs are composed from.

package catalog

import (
	"fmt"
	"sync"
)

// Registry is a Catalog backed by a name-keyed map. Registration order is
// preserved for Definitions and Names so advertised tool lists are stable.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
	}
}

// Register adds a tool. Returns ErrToolCollision if the name is taken.
func (r *Registry) Register(def Definition, exec Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("%w: tool %q already registered", ErrToolCollision, def.Name)
	}

	r.tools[def.Name] = &Tool{Definition: def, Execute: exec}
	r.order = append(r.order, def.Name)
	return nil
}

// MustRegister registers a tool and panics on collision. For static tool
// packs assembled at startup, where a collision is a programming error.
func (r *Registry) MustRegister(def Definition, exec Executor) {
	if err := r.Register(def, exec); err != nil {
		panic(err)
	}
}

// Definitions returns every tool definition in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Lookup resolves a tool name to its executor.
func (r *Registry) Lookup(name string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return tool.Execute, true
}

// Names returns every registered tool name in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}
