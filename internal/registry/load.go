package registry

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/promptgrid/internal/ctxlog"
	"github.com/vk/promptgrid/internal/fsutil"
)

//go:embed builtin/*.hcl
var builtinManifests embed.FS

type manifestFile struct {
	Adapters []*adapterBlock `hcl:"adapter,block"`
}

type adapterBlock struct {
	Name        string         `hcl:"name,label"`
	Protocol    string         `hcl:"protocol"`
	Path        string         `hcl:"path"`
	Description string         `hcl:"description,optional"`
	Samplers    []string       `hcl:"samplers,optional"`
	Bounds      []*boundsBlock `hcl:"bounds,block"`
}

type boundsBlock struct {
	Field string   `hcl:"field,label"`
	Min   *float64 `hcl:"min,optional"`
	Max   *float64 `hcl:"max,optional"`
}

// LoadBuiltin loads the manifests compiled into the binary.
func (r *Registry) LoadBuiltin(ctx context.Context) error {
	entries, err := fs.ReadDir(builtinManifests, "builtin")
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := path.Join("builtin", entry.Name())
		src, err := builtinManifests.ReadFile(name)
		if err != nil {
			return err
		}
		if err := r.loadManifest(ctx, src, name); err != nil {
			return err
		}
	}
	return nil
}

// LoadManifests loads every .hcl manifest under path, which may be a single
// file or a directory.
func (r *Registry) LoadManifests(ctx context.Context, manifestsPath string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Registry loading adapter manifests...", "path", manifestsPath)

	filePaths, err := fsutil.FindFilesByExtension(manifestsPath, ".hcl")
	if err != nil {
		return fmt.Errorf("failed to walk adapters path: %w", err)
	}
	if len(filePaths) == 0 {
		logger.Warn("No .hcl adapter manifests found in path", "path", manifestsPath)
		return nil
	}

	for _, filePath := range filePaths {
		src, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read manifest: %w", err)
		}
		if err := r.loadManifest(ctx, src, filePath); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) loadManifest(ctx context.Context, src []byte, filename string) error {
	defs, diags := parseManifest(src, filename)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse manifest %s: %w", filename, diags)
	}
	for _, def := range defs {
		if err := r.AddDefinition(def); err != nil {
			return err
		}
	}
	ctxlog.FromContext(ctx).Debug("Loaded adapter manifest.", "file", filename, "adapters", len(defs))
	return nil
}

func parseManifest(src []byte, filename string) ([]*Definition, hcl.Diagnostics) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}

	var mf manifestFile
	diags = append(diags, gohcl.DecodeBody(file.Body, nil, &mf)...)
	if diags.HasErrors() {
		return nil, diags
	}

	defs := make([]*Definition, 0, len(mf.Adapters))
	for _, block := range mf.Adapters {
		def := &Definition{
			Name:        block.Name,
			Protocol:    block.Protocol,
			Path:        block.Path,
			Description: block.Description,
			Samplers:    block.Samplers,
			Bounds:      make(map[string]Bounds, len(block.Bounds)),
			Source:      filename,
		}
		for _, b := range block.Bounds {
			if _, dup := def.Bounds[b.Field]; dup {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Duplicate bounds block",
					Detail:   fmt.Sprintf("Adapter %q declares bounds for %q more than once.", block.Name, b.Field),
				})
				continue
			}
			def.Bounds[b.Field] = Bounds{Min: b.Min, Max: b.Max}
		}
		defs = append(defs, def)
	}
	return defs, diags
}
