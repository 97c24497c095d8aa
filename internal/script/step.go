// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package script

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

var stepSchema = func() *hcl.BodySchema {
	schema := &hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "output", Required: true},
			{Name: "for_each"},
		},
	}
	for _, p := range metaParsers {
		schema.Attributes = append(schema.Attributes, hcl.AttributeSchema{Name: p.Name})
	}
	for _, name := range PayloadFields {
		schema.Attributes = append(schema.Attributes, hcl.AttributeSchema{Name: name})
	}
	return schema
}()

// metaParsers handle the step attributes that configure execution rather
// than the adapter payload. All of them must be literals.
var metaParsers = []struct {
	Name  string
	Parse func(step *Step, attr *hcl.Attribute) hcl.Diagnostics
}{
	{
		Name: "adapter",
		Parse: func(step *Step, attr *hcl.Attribute) hcl.Diagnostics {
			name, diags := literalString(attr)
			if !diags.HasErrors() {
				step.Adapter = name
			}
			return diags
		},
	},
	{
		Name: "description",
		Parse: func(step *Step, attr *hcl.Attribute) hcl.Diagnostics {
			desc, diags := literalString(attr)
			step.Description = desc
			return diags
		},
	},
	{
		Name:  "timeout",
		Parse: parseTimeout,
	},
	{
		Name:  "retries",
		Parse: parseRetries,
	},
}

// parseStep builds a Step from a `step` block. defaultAdapter is the
// script-level adapter, used when the step does not name its own.
func parseStep(block *hcl.Block, defaultAdapter string) (*Step, hcl.Diagnostics) {
	content, diags := block.Body.Content(stepSchema)
	if diags.HasErrors() {
		return nil, diags
	}

	step := &Step{
		Name:      block.Labels[0],
		Kind:      Plain,
		Adapter:   defaultAdapter,
		Fields:    make(map[string]hcl.Expression),
		DeclRange: block.DefRange,
	}

	for _, p := range metaParsers {
		if attr, ok := content.Attributes[p.Name]; ok {
			diags = append(diags, p.Parse(step, attr)...)
		}
	}

	for _, name := range PayloadFields {
		if attr, ok := content.Attributes[name]; ok {
			step.Fields[name] = attr.Expr
		}
	}
	step.Output = content.Attributes["output"].Expr

	forEach, loopDiags := parseForEach(content.Attributes)
	diags = append(diags, loopDiags...)
	if forEach != nil {
		step.ForEach = forEach
		step.Kind = Iterating
	}

	diags = append(diags, checkEachReferences(step)...)
	return step, diags
}

func parseTimeout(step *Step, attr *hcl.Attribute) hcl.Diagnostics {
	raw, diags := literalString(attr)
	if diags.HasErrors() {
		return diags
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid timeout value",
			Detail:   fmt.Sprintf("The timeout must be a positive duration such as \"90s\" or \"5m\", got %q.", raw),
			Subject:  attr.Expr.Range().Ptr(),
		}}
	}
	step.Timeout = d
	return nil
}

func parseRetries(step *Step, attr *hcl.Attribute) hcl.Diagnostics {
	invalid := hcl.Diagnostics{{
		Severity: hcl.DiagError,
		Summary:  "Invalid retries value",
		Detail:   "The retries attribute must be a literal whole number of zero or more.",
		Subject:  attr.Expr.Range().Ptr(),
	}}
	if len(attr.Expr.Variables()) > 0 {
		return invalid
	}
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return diags
	}
	if val.IsNull() || val.Type() != cty.Number {
		return invalid
	}
	var n int
	if err := gocty.FromCtyValue(val, &n); err != nil || n < 0 {
		return invalid
	}
	step.Retries = &n
	return nil
}

// checkEachReferences rejects `each.*` outside of iterating steps and inside
// the for_each expression itself.
func checkEachReferences(step *Step) hcl.Diagnostics {
	var diags hcl.Diagnostics
	if step.ForEach != nil {
		for _, tr := range step.ForEach.Variables() {
			if tr.RootName() == "each" {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Invalid for_each reference",
					Detail:   "The for_each expression cannot refer to each.key or each.value.",
					Subject:  tr.SourceRange().Ptr(),
				})
			}
		}
		return diags
	}
	for _, expr := range step.Expressions() {
		for _, tr := range expr.Variables() {
			if tr.RootName() == "each" {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  `Reference to "each" in a plain step`,
					Detail:   fmt.Sprintf("Step %q has no for_each attribute, so each.key and each.value are not available.", step.Name),
					Subject:  tr.SourceRange().Ptr(),
				})
			}
		}
	}
	return diags
}
