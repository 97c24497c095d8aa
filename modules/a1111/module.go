// Package a1111 registers the "a1111" adapter protocol: adapters whose
// manifests declare it talk to an AUTOMATIC1111-compatible web API.
package a1111

import (
	"net/http"
	"time"

	"github.com/vk/promptgrid/internal/adapter"
	"github.com/vk/promptgrid/internal/registry"
)

// Protocol is the manifest protocol name this module implements.
const Protocol = "a1111"

// Module implements the registry.Module interface for this package.
type Module struct{}

// NewHTTPClient returns the client shared by every adapter of a run. It has
// no overall timeout; each attempt carries its own deadline in its context.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// CloseHTTPClient releases the idle connections of a client made by
// NewHTTPClient.
func CloseHTTPClient(client *http.Client) {
	client.CloseIdleConnections()
}

// NewAdapter is the protocol factory.
func NewAdapter(def *registry.Definition, ep adapter.Endpoint) adapter.Adapter {
	return adapter.NewA1111(ep.BaseURL, def.Path, ep.Client)
}

// Register registers the protocol with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterProtocol(Protocol, NewAdapter)
}
