package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/promptgrid/internal/ctxlog"
	"github.com/vk/promptgrid/internal/script"
)

// ValidateRegistry performs a strict parity check between manifests and Go
// code, and checks that declared bounds make sense.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, name := range r.Names() {
		def := r.Definitions[name]
		if _, ok := r.Protocols[def.Protocol]; !ok {
			errs = append(errs, fmt.Sprintf("adapter '%s': protocol '%s' has no registered Go implementation", name, def.Protocol))
		}
		if !strings.HasPrefix(def.Path, "/") {
			errs = append(errs, fmt.Sprintf("adapter '%s': path '%s' must start with '/'", name, def.Path))
		}
		for _, field := range script.NumericFields {
			b, ok := def.Bounds[field]
			if !ok {
				continue
			}
			if b.Min != nil && b.Max != nil && *b.Min > *b.Max {
				errs = append(errs, fmt.Sprintf("adapter '%s', field '%s': min is greater than max", name, field))
			}
		}
		for field := range def.Bounds {
			if !script.IsNumericField(field) {
				errs = append(errs, fmt.Sprintf("adapter '%s': bounds declared for '%s', which is not a numeric payload field", name, field))
			}
		}
		if len(def.Samplers) == 0 {
			logger.Debug("Adapter declares no sampler list; any sampler name is accepted.", "adapter", name)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}
