package app

import (
	"context"
	"fmt"

	"github.com/vk/promptgrid/internal/adapter"
	"github.com/vk/promptgrid/internal/ctxlog"
	"github.com/vk/promptgrid/internal/validate"
)

// DefaultHealthAdapter is probed when no adapter is named.
const DefaultHealthAdapter = "a1111_txt2img"

// Health probes the configured endpoint through the named adapter and prints
// what it reports.
func (a *App) Health(ctx context.Context, adapterName string) error {
	ctx = a.context(ctx)
	logger := ctxlog.FromContext(ctx)
	if adapterName == "" {
		adapterName = DefaultHealthAdapter
	}

	if _, ok := a.registry.Definition(adapterName); !ok {
		if s := validate.Suggest(adapterName, a.registry.Names()); s != "" {
			return fmt.Errorf("unknown adapter %q; did you mean %q?", adapterName, s)
		}
		return fmt.Errorf("unknown adapter %q", adapterName)
	}
	ad, err := a.registry.NewAdapter(adapterName, adapter.Endpoint{BaseURL: a.config.Endpoint, Client: a.client})
	if err != nil {
		return err
	}
	prober, ok := ad.(adapter.Prober)
	if !ok {
		return fmt.Errorf("adapter %q cannot probe its endpoint", adapterName)
	}

	probeCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	logger.Info("🩺 Probing endpoint...", "endpoint", a.config.Endpoint, "adapter", adapterName)
	samplers, err := prober.Probe(probeCtx)
	if err != nil {
		return fmt.Errorf("endpoint %s is not healthy: %w", a.config.Endpoint, err)
	}
	fmt.Fprintf(a.outW, "Endpoint %s is up (%d samplers available).\n", a.config.Endpoint, len(samplers))
	return nil
}
