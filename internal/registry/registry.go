package registry

import (
	"fmt"
	"sort"

	"github.com/vk/promptgrid/internal/adapter"
)

// Module is the interface that all protocol modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the protocol factories and adapter definitions of a single
// application instance.
type Registry struct {
	Protocols   map[string]Factory
	Definitions map[string]*Definition
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		Protocols:   make(map[string]Factory),
		Definitions: make(map[string]*Definition),
	}
}

// AddDefinition stores def, refusing a second definition with the same name.
func (r *Registry) AddDefinition(def *Definition) error {
	if prev, exists := r.Definitions[def.Name]; exists {
		return fmt.Errorf("adapter %q defined in %s is already defined in %s", def.Name, def.Source, prev.Source)
	}
	r.Definitions[def.Name] = def
	return nil
}

// Definition returns the adapter definition with the given name.
func (r *Registry) Definition(name string) (*Definition, bool) {
	def, ok := r.Definitions[name]
	return def, ok
}

// Names returns the defined adapter names in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Definitions))
	for name := range r.Definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewAdapter instantiates the named adapter against ep.
func (r *Registry) NewAdapter(name string, ep adapter.Endpoint) (adapter.Adapter, error) {
	def, ok := r.Definitions[name]
	if !ok {
		return nil, fmt.Errorf("unknown adapter %q", name)
	}
	factory, ok := r.Protocols[def.Protocol]
	if !ok {
		return nil, fmt.Errorf("adapter %q uses unregistered protocol %q", name, def.Protocol)
	}
	return factory(def, ep), nil
}
