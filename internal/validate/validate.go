package validate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/promptgrid/internal/artifact"
	"github.com/vk/promptgrid/internal/plan"
	"github.com/vk/promptgrid/internal/registry"
	"github.com/vk/promptgrid/internal/script"
	"github.com/vk/promptgrid/internal/vars"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

var placeholder = regexp.MustCompile(`\$\{[^}]*\}|\{[A-Za-z_][A-Za-z0-9_]*\}`)

// floatFields accept fractional values; every other numeric field must be a
// whole number.
var floatFields = map[string]bool{script.FieldCFGScale: true}

const fieldForEach = "for_each"

var requiredFields = []string{script.FieldPrompt, script.FieldWidth, script.FieldHeight}

// Validator checks scripts against a fixed adapter registry.
type Validator struct {
	reg *registry.Registry
}

// New creates a Validator.
func New(reg *registry.Registry) *Validator {
	return &Validator{reg: reg}
}

// Validate returns a *ValidationError listing every violation, or nil.
func (v *Validator) Validate(s *script.Script, b *vars.Bindings) error {
	if found := v.Violations(s, b); len(found) > 0 {
		return &ValidationError{Violations: found}
	}
	return nil
}

// Violations returns every problem in s, ordered by variable declaration,
// then step order and canonical field order, then output collisions.
func (v *Validator) Violations(s *script.Script, b *vars.Bindings) []Violation {
	c := &checker{reg: v.reg, script: s, bindings: b}
	c.checkVariables()

	var expansions []*plan.Expansion
	var clean []*script.Step
	for _, step := range s.Steps {
		if c.checkReferences(step) {
			clean = append(clean, step)
		}
	}
	if len(clean) > 0 {
		expansions = plan.Expand(&script.Script{Filename: s.Filename, Name: s.Name, Adapter: s.Adapter, Variables: s.Variables, Steps: clean}, b)
	}

	byStep := make(map[string]*plan.Expansion, len(expansions))
	for _, exp := range expansions {
		byStep[exp.Step.Name] = exp
	}

	var outputs []instanceOutput
	for _, step := range s.Steps {
		def := c.checkAdapter(step)
		exp, ok := byStep[step.Name]
		if !ok {
			continue
		}
		if exp.Diags.HasErrors() {
			c.diags(step, fieldForEach, exp.Diags)
			continue
		}
		for _, cand := range exp.Candidates {
			outputs = append(outputs, c.checkCandidate(cand, def)...)
		}
	}
	c.checkCollisions(outputs)
	return c.found
}

type checker struct {
	reg      *registry.Registry
	script   *script.Script
	bindings *vars.Bindings
	found    []Violation
}

type instanceOutput struct {
	id   string
	step *script.Step
	path string
}

func (c *checker) add(v Violation) {
	c.found = append(c.found, v)
}

func (c *checker) checkVariables() {
	for _, decl := range c.script.Variables {
		if decl.Type == cty.DynamicPseudoType {
			continue
		}
		val, ok := c.bindings.Lookup(decl.Name)
		if !ok || !val.IsWhollyKnown() {
			continue
		}
		if _, err := convert.Convert(val, decl.Type); err != nil {
			c.add(Violation{
				Variable: decl.Name,
				Message:  fmt.Sprintf("value %s (from %s) is not a valid %s", plan.Describe(val), c.bindings.Origins[decl.Name], decl.Type.FriendlyName()),
				Range:    decl.DeclRange,
			})
		}
	}
}

// checkReferences reports references to undeclared variables and unknown
// roots. It returns false when the step cannot be evaluated.
func (c *checker) checkReferences(step *script.Step) bool {
	ok := true
	declared := c.script.VariableNames()
	for _, expr := range step.Expressions() {
		for _, tr := range expr.Variables() {
			root := tr.RootName()
			rng := tr.SourceRange()
			switch root {
			case "var":
				name, named := attrName(tr)
				if !named {
					continue
				}
				if _, exists := c.script.Variable(name); !exists {
					ok = false
					c.add(Violation{
						Step:    step.Name,
						Field:   fieldOf(step, rng),
						Message: fmt.Sprintf("reference to undeclared variable %q%s", name, hint(name, declared)),
						Range:   rng,
					})
				}
			case "each":
			case "input":
				if c.bindings.Input == nil {
					ok = false
					c.add(Violation{
						Step:    step.Name,
						Field:   fieldOf(step, rng),
						Message: "references input but no shared input is configured",
						Range:   rng,
					})
				}
			default:
				ok = false
				c.add(Violation{
					Step:    step.Name,
					Field:   fieldOf(step, rng),
					Message: fmt.Sprintf("unknown reference %q%s", root, hint(root, plan.Roots)),
					Range:   rng,
				})
			}
		}
	}
	return ok
}

func (c *checker) checkAdapter(step *script.Step) *registry.Definition {
	def, ok := c.reg.Definition(step.Adapter)
	if !ok {
		c.add(Violation{
			Step:    step.Name,
			Field:   "adapter",
			Message: fmt.Sprintf("unknown adapter %q%s", step.Adapter, hint(step.Adapter, c.reg.Names())),
			Range:   step.DeclRange,
		})
		return nil
	}
	return def
}

func (c *checker) checkCandidate(cand *plan.Candidate, def *registry.Definition) []instanceOutput {
	step := cand.Step
	id := cand.ID()
	violation := func(field, msg string, rng hcl.Range) {
		v := Violation{Step: step.Name, Field: field, Message: msg, Range: rng}
		if step.Kind == script.Iterating {
			v.Instance = id
		}
		c.add(v)
	}
	fieldRange := func(name string) hcl.Range {
		if expr, ok := step.Field(name); ok {
			return expr.Range()
		}
		return step.DeclRange
	}

	for _, name := range requiredFields {
		if _, ok := cand.Fields[name]; !ok {
			violation(name, "required field is not set", step.DeclRange)
		}
	}

	for _, name := range script.PayloadFields {
		val, ok := cand.Fields[name]
		if !ok {
			continue
		}
		if d := cand.Diags[name]; d.HasErrors() {
			violation(name, diagMessage(d), fieldRange(name))
			continue
		}
		rng := fieldRange(name)
		if script.IsNumericField(name) {
			c.checkNumber(name, val, def, func(msg string) { violation(name, msg, rng) })
			continue
		}
		s, err := plan.AsString(val)
		switch {
		case err != nil:
			violation(name, err.Error(), rng)
		case name == script.FieldPrompt && strings.TrimSpace(s) == "":
			violation(name, "must not be empty", rng)
		case name == script.FieldSampler && def != nil && !def.AcceptsSampler(s):
			violation(name, fmt.Sprintf("sampler %q is not offered by adapter %q%s", s, def.Name, hint(s, def.Samplers)), rng)
		}
	}

	rng := step.Output.Range()
	if d := cand.Diags["output"]; d.HasErrors() {
		violation("output", diagMessage(d), rng)
		return nil
	}
	out, err := plan.AsString(cand.Output)
	if err != nil {
		violation("output", err.Error(), rng)
		return nil
	}
	switch {
	case strings.TrimSpace(out) == "":
		violation("output", "path is empty", rng)
		return nil
	case placeholder.MatchString(out):
		violation("output", fmt.Sprintf("path %q contains an unresolved placeholder %q", out, placeholder.FindString(out)), rng)
		return nil
	case !filepath.IsLocal(filepath.FromSlash(out)):
		violation("output", fmt.Sprintf("path %q escapes the output directory", out), rng)
		return nil
	case filepath.Clean(filepath.FromSlash(out)) == ".":
		violation("output", fmt.Sprintf("path %q does not name a file", out), rng)
		return nil
	}

	path := filepath.Clean(filepath.FromSlash(out))
	batch := 1
	if n, err := plan.AsInt(cand.Fields[script.FieldBatchSize]); err == nil && n > 1 {
		batch = int(n)
	}
	outs := make([]instanceOutput, 0, batch)
	for i := 0; i < batch; i++ {
		outs = append(outs, instanceOutput{id: id, step: step, path: artifact.IndexedPath(path, i)})
	}
	return outs
}

func (c *checker) checkNumber(name string, val cty.Value, def *registry.Definition, report func(string)) {
	var n float64
	if floatFields[name] {
		f, err := plan.AsFloat(val)
		if err != nil {
			report(err.Error())
			return
		}
		n = f
	} else {
		i, err := plan.AsInt(val)
		if err != nil {
			report(err.Error())
			return
		}
		n = float64(i)
	}
	if def == nil {
		return
	}
	if bounds, ok := def.BoundsFor(name); ok && !bounds.Contains(n) {
		report(fmt.Sprintf("value %s is out of range for adapter %q, must be %s", plan.Describe(val), def.Name, bounds))
	}
}

func (c *checker) checkCollisions(outputs []instanceOutput) {
	owner := make(map[string]instanceOutput, len(outputs))
	for _, o := range outputs {
		key := o.path
		if prev, taken := owner[key]; taken {
			c.add(Violation{
				Step:    o.step.Name,
				Field:   "output",
				Message: fmt.Sprintf("%s and %s both write %q", prev.id, o.id, o.path),
				Range:   o.step.Output.Range(),
			})
			continue
		}
		owner[key] = o
	}
}

func (c *checker) diags(step *script.Step, field string, diags hcl.Diagnostics) {
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		v := Violation{Step: step.Name, Field: field, Message: describeDiag(d)}
		if d.Subject != nil {
			v.Range = *d.Subject
		}
		c.add(v)
	}
}

func attrName(tr hcl.Traversal) (string, bool) {
	if len(tr) < 2 {
		return "", false
	}
	switch step := tr[1].(type) {
	case hcl.TraverseAttr:
		return step.Name, true
	case hcl.TraverseIndex:
		if step.Key.Type() == cty.String && step.Key.IsKnown() && !step.Key.IsNull() {
			return step.Key.AsString(), true
		}
	}
	return "", false
}

// fieldOf names the step attribute whose expression contains rng.
func fieldOf(step *script.Step, rng hcl.Range) string {
	if step.ForEach != nil && step.ForEach.Range().ContainsOffset(rng.Start.Byte) {
		return fieldForEach
	}
	for _, name := range script.PayloadFields {
		if expr, ok := step.Field(name); ok && expr.Range().ContainsOffset(rng.Start.Byte) {
			return name
		}
	}
	if step.Output != nil && step.Output.Range().ContainsOffset(rng.Start.Byte) {
		return "output"
	}
	return ""
}

func diagMessage(diags hcl.Diagnostics) string {
	for _, d := range diags {
		if d.Severity == hcl.DiagError {
			return describeDiag(d)
		}
	}
	return diags.Error()
}

func describeDiag(d *hcl.Diagnostic) string {
	if d.Detail == "" {
		return d.Summary
	}
	return d.Summary + ": " + d.Detail
}
