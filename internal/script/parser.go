// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

var rootSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "adapter", Required: true},
		{Name: "input_config"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "variable", LabelNames: []string{"name"}},
		{Type: "step", LabelNames: []string{"name"}},
	},
}

var variableSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "default"},
		{Name: "description"},
		{Name: "type"},
	},
}

// ParseFile reads and parses the script at path.
func ParseFile(path string) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return Parse(src, path)
}

// Parse parses script source. filename is used for error positions and to
// derive the script name.
func Parse(src []byte, filename string) (*Script, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, newParseError(filename, diags)
	}

	content, contentDiags := file.Body.Content(rootSchema)
	diags = append(diags, contentDiags...)
	if contentDiags.HasErrors() {
		return nil, newParseError(filename, diags)
	}

	s := &Script{
		Filename: filename,
		Name:     strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)),
	}

	if attr, ok := content.Attributes["adapter"]; ok {
		var d hcl.Diagnostics
		s.Adapter, d = literalString(attr)
		diags = append(diags, d...)
	}
	if attr, ok := content.Attributes["input_config"]; ok {
		var d hcl.Diagnostics
		s.InputConfig, d = literalString(attr)
		diags = append(diags, d...)
	}

	seenVars := map[string]hcl.Range{}
	seenSteps := map[string]hcl.Range{}
	for _, block := range content.Blocks {
		name := block.Labels[0]
		switch block.Type {
		case "variable":
			if prev, dup := seenVars[name]; dup {
				diags = append(diags, duplicateDiag("variable", name, prev, block.DefRange))
				continue
			}
			seenVars[name] = block.DefRange
			v, d := parseVariable(block)
			diags = append(diags, d...)
			if v != nil {
				s.Variables = append(s.Variables, v)
			}
		case "step":
			if prev, dup := seenSteps[name]; dup {
				diags = append(diags, duplicateDiag("step", name, prev, block.DefRange))
				continue
			}
			seenSteps[name] = block.DefRange
			st, d := parseStep(block, s.Adapter)
			diags = append(diags, d...)
			if st != nil {
				st.Index = len(s.Steps)
				s.Steps = append(s.Steps, st)
			}
		}
	}

	if len(seenSteps) == 0 && !diags.HasErrors() {
		rng := file.Body.MissingItemRange()
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "No steps declared",
			Detail:   "A script must declare at least one step block.",
			Subject:  &rng,
		})
	}

	if diags.HasErrors() {
		return nil, newParseError(filename, diags)
	}
	return s, nil
}

func parseVariable(block *hcl.Block) (*Variable, hcl.Diagnostics) {
	content, diags := block.Body.Content(variableSchema)
	if diags.HasErrors() {
		return nil, diags
	}

	v := &Variable{
		Name:      block.Labels[0],
		Type:      cty.DynamicPseudoType,
		DeclRange: block.DefRange,
	}

	if attr, ok := content.Attributes["description"]; ok {
		var d hcl.Diagnostics
		v.Description, d = literalString(attr)
		diags = append(diags, d...)
	}

	if attr, ok := content.Attributes["type"]; ok {
		ty, d := typeexpr.TypeConstraint(attr.Expr)
		diags = append(diags, d...)
		if !d.HasErrors() {
			v.Type = ty
		}
	}

	if attr, ok := content.Attributes["default"]; ok {
		if len(attr.Expr.Variables()) > 0 {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid default value",
				Detail:   "A variable default must be a literal value and cannot reference other values.",
				Subject:  attr.Expr.Range().Ptr(),
			})
			return v, diags
		}
		val, d := attr.Expr.Value(nil)
		diags = append(diags, d...)
		if d.HasErrors() {
			return v, diags
		}
		if v.Type != cty.DynamicPseudoType {
			converted, err := convert.Convert(val, v.Type)
			if err != nil {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Invalid default value",
					Detail:   fmt.Sprintf("The default for variable %q does not match its type: %s.", v.Name, err),
					Subject:  attr.Expr.Range().Ptr(),
				})
				return v, diags
			}
			val = converted
		}
		v.Default = val
		v.HasDefault = true
	}

	return v, diags
}

// literalString evaluates attr as a constant string.
func literalString(attr *hcl.Attribute) (string, hcl.Diagnostics) {
	invalid := func(detail string) hcl.Diagnostics {
		return hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  fmt.Sprintf("Invalid %s value", attr.Name),
			Detail:   detail,
			Subject:  attr.Expr.Range().Ptr(),
		}}
	}
	if len(attr.Expr.Variables()) > 0 {
		return "", invalid(fmt.Sprintf("The %q attribute must be a literal string.", attr.Name))
	}
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return "", diags
	}
	if val.IsNull() || val.Type() != cty.String {
		return "", invalid(fmt.Sprintf("The %q attribute must be a string.", attr.Name))
	}
	return val.AsString(), nil
}

func duplicateDiag(kind, name string, prev, cur hcl.Range) *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  fmt.Sprintf("Duplicate %s", kind),
		Detail:   fmt.Sprintf("A %s named %q was already declared at %s.", kind, name, prev.String()),
		Subject:  cur.Ptr(),
	}
}
