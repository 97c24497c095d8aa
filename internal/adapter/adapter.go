// Package adapter defines the request/response contract of an image
// generation backend and implements it for the AUTOMATIC1111 web API.
package adapter

import (
	"context"
	"net/http"
)

// Request is the fully resolved payload of one step instance.
type Request struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	CFGScale       float64 `json:"cfg_scale"`
	Sampler        string  `json:"sampler"`
	Seed           int64   `json:"seed"`
	Checkpoint     string  `json:"checkpoint,omitempty"`
	BatchSize      int     `json:"batch_size"`
}

// Deterministic reports whether the request pins its seed, so that repeating
// it yields the same images.
func (r Request) Deterministic() bool {
	return r.Seed >= 0
}

// Response carries the decoded images of a successful call.
type Response struct {
	Images [][]byte
	Info   string
}

// Adapter turns a request into generated images.
type Adapter interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Prober is implemented by adapters that can check backend availability.
// It returns the sampler names the backend offers.
type Prober interface {
	Probe(ctx context.Context) ([]string, error)
}

// Interrupter is implemented by adapters that can abort the generation
// currently running on the backend.
type Interrupter interface {
	Interrupt(ctx context.Context) error
}

// Endpoint is the read-only connection configuration shared by every worker
// of a run.
type Endpoint struct {
	BaseURL string
	Client  *http.Client
}
