package plan

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/promptgrid/internal/script"
	"github.com/vk/promptgrid/internal/vars"
	"github.com/zclconf/go-cty/cty"
)

// Expansion is the evaluated form of one step.
type Expansion struct {
	Step *script.Step
	// Diags holds problems with the iteration source itself.
	Diags      hcl.Diagnostics
	Candidates []*Candidate
}

// Candidate is one evaluated, not yet type-checked, step instance.
type Candidate struct {
	Step   *script.Step
	Key    string
	Fields map[string]cty.Value
	Output cty.Value
	// Diags holds evaluation problems keyed by field name, "output"
	// included.
	Diags map[string]hcl.Diagnostics
}

// Errs returns every evaluation error in canonical field order.
func (c *Candidate) Errs() hcl.Diagnostics {
	var all hcl.Diagnostics
	collect := func(name string) {
		for _, d := range c.Diags[name] {
			if d.Severity == hcl.DiagError {
				all = append(all, d)
			}
		}
	}
	for _, name := range script.PayloadFields {
		collect(name)
	}
	collect(fieldOutput)
	return all
}

// ID names the instance: the step name, followed by the quoted entry key for
// iterating steps.
func (c *Candidate) ID() string {
	return InstanceID(c.Step, c.Key)
}

// InstanceID builds the identifier used in plans and reports.
func InstanceID(step *script.Step, key string) string {
	if step.Kind == script.Iterating {
		return fmt.Sprintf("%s[%q]", step.Name, key)
	}
	return step.Name
}

const fieldOutput = "output"

type iteration struct {
	key   string
	value cty.Value
}

// Expand evaluates every step of s against b, in step order.
func Expand(s *script.Script, b *vars.Bindings) []*Expansion {
	base := baseContext(b)
	out := make([]*Expansion, 0, len(s.Steps))
	for _, step := range s.Steps {
		exp := &Expansion{Step: step}
		switch step.Kind {
		case script.Plain:
			exp.Candidates = []*Candidate{evaluate(step, "", base)}
		case script.Iterating:
			iterations, diags := iterationsOf(step, b, base)
			exp.Diags = diags
			for _, it := range iterations {
				exp.Candidates = append(exp.Candidates, evaluate(step, it.key, entryContext(b, it.key, it.value)))
			}
		}
		out = append(out, exp)
	}
	return out
}

// iterationsOf lists the entries an iterating step expands over. A bare
// `input` reference keeps the order of the shared input file; other maps and
// objects iterate in key order and lists in element order, each distinct
// element once.
func iterationsOf(step *script.Step, b *vars.Bindings, ctx *hcl.EvalContext) ([]iteration, hcl.Diagnostics) {
	if isInputRoot(step.ForEach) && b.Input != nil {
		its := make([]iteration, 0, b.Input.Len())
		for _, e := range b.Input.Entries {
			its = append(its, iteration{key: e.Key, value: e.Value})
		}
		return its, nil
	}

	val, diags := step.ForEach.Value(ctx)
	if diags.HasErrors() {
		return nil, diags
	}
	if d := script.CheckForEachValue(val, step.ForEach.Range()); d.HasErrors() {
		return nil, d
	}

	var its []iteration
	seen := make(map[string]bool)
	ty := val.Type()
	it := val.ElementIterator()
	for it.Next() {
		k, v := it.Element()
		key := v.AsString()
		if ty.IsMapType() || ty.IsObjectType() {
			key = k.AsString()
		}
		// Lists behave as sets: a repeated element is one entry.
		if seen[key] {
			continue
		}
		seen[key] = true
		its = append(its, iteration{key: key, value: v})
	}
	return its, nil
}

func isInputRoot(expr hcl.Expression) bool {
	tr, diags := hcl.AbsTraversalForExpr(expr)
	return !diags.HasErrors() && len(tr) == 1 && tr.RootName() == rootInput
}

func evaluate(step *script.Step, key string, ctx *hcl.EvalContext) *Candidate {
	c := &Candidate{
		Step:   step,
		Key:    key,
		Fields: make(map[string]cty.Value, len(step.Fields)),
		Diags:  make(map[string]hcl.Diagnostics),
	}
	for _, name := range script.PayloadFields {
		expr, ok := step.Fields[name]
		if !ok {
			continue
		}
		val, diags := expr.Value(ctx)
		if len(diags) > 0 {
			c.Diags[name] = diags
		}
		c.Fields[name] = val
	}
	out, diags := step.Output.Value(ctx)
	if len(diags) > 0 {
		c.Diags[fieldOutput] = diags
	}
	c.Output = out
	return c
}
