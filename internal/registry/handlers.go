package registry

import (
	"fmt"
	"log/slog"

	"github.com/vk/promptgrid/internal/adapter"
)

// Factory builds an adapter for a definition that uses its protocol.
type Factory func(def *Definition, ep adapter.Endpoint) adapter.Adapter

// RegisterProtocol registers the Go implementation of a protocol.
func (r *Registry) RegisterProtocol(name string, factory Factory) {
	if _, exists := r.Protocols[name]; exists {
		panic(fmt.Sprintf("protocol with name '%s' already registered", name))
	}
	slog.Debug("Registering adapter protocol.", "name", name)
	r.Protocols[name] = factory
}
