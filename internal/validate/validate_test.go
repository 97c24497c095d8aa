package validate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/promptgrid/internal/adapter"
	"github.com/vk/promptgrid/internal/registry"
	"github.com/vk/promptgrid/internal/script"
	"github.com/vk/promptgrid/internal/vars"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	reg := registry.New()
	reg.RegisterProtocol("a1111", func(def *registry.Definition, ep adapter.Endpoint) adapter.Adapter {
		return adapter.NewA1111(ep.BaseURL, def.Path, ep.Client)
	})
	require.NoError(t, reg.LoadBuiltin(context.Background()))
	return New(reg)
}

func bind(t *testing.T, src string, input *vars.Input) (*script.Script, *vars.Bindings) {
	t.Helper()
	s, err := script.Parse([]byte(src), "test.hcl")
	require.NoError(t, err)
	b, err := vars.Resolve(s, input)
	require.NoError(t, err)
	return s, b
}

func messages(vs []Violation) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}

const scenarioScript = `
adapter = "a1111_txt2img"

variable "width"  { default = 1024 }
variable "height" { default = 768 }
variable "steps"  { default = STEPS }

step "hero" {
  prompt = "a lighthouse at dusk"
  width  = var.width
  height = var.height
  steps  = var.steps
  output = "hero.png"
}
`

func TestValidate_Scenario(t *testing.T) {
	testCases := []struct {
		name       string
		steps      string
		wantFields []string
	}{
		{name: "numeric steps", steps: "30"},
		{name: "word steps", steps: `"abc"`, wantFields: []string{"steps"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			v := newValidator(t)
			s, b := bind(t, strings.Replace(scenarioScript, "STEPS", tc.steps, 1), nil)

			// --- Act ---
			err := v.Validate(s, b)

			// --- Assert ---
			if tc.wantFields == nil {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected a ValidationError, got %v", err)
			fields := make([]string, len(verr.Violations))
			for i, v := range verr.Violations {
				fields[i] = v.Field
			}
			assert.Equal(t, tc.wantFields, fields)
			assert.Contains(t, err.Error(), `"abc" is not a number`)
		})
	}
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	// --- Arrange ---
	v := newValidator(t)
	s, b := bind(t, `
adapter = "a1111_txt2img"
variable "width" { default = 1024 }

step "hero" {
  prompt    = ""
  width     = var.widht
  height    = 768
  output    = "hero.png"
}

step "card" {
  adapter   = "a1111_txt2im"
  prompt    = "card"
  width     = 512
  height    = 512
  steps     = 500
  cfg_scale = 7.5
  seed      = 1.5
  sampler   = "euler a"
  output    = "../card.png"
}

step "thumb" {
  width  = 10
  output = "thumb_{name}.png"
}
`, nil)

	// --- Act ---
	found := v.Violations(s, b)

	// --- Assert ---
	got := messages(found)
	require.NotEmpty(t, got)

	assert.Contains(t, got[0], `reference to undeclared variable "widht"; did you mean "width"?`)
	assertHas(t, found, "card", "adapter", `unknown adapter "a1111_txt2im"; did you mean "a1111_txt2img"?`)
	assertHas(t, found, "card", "output", `escapes the output directory`)
	assertHas(t, found, "thumb", "prompt", "required field is not set")
	assertHas(t, found, "thumb", "height", "required field is not set")
	assertHas(t, found, "thumb", "output", `unresolved placeholder "{name}"`)
	assertLacks(t, found, "card", "steps")
}

func TestValidate_AdapterBoundsAndSamplers(t *testing.T) {
	// --- Arrange ---
	v := newValidator(t)
	s, b := bind(t, `
adapter = "a1111_txt2img"
step "card" {
  prompt    = "card"
  width     = 512
  height    = 8192
  steps     = 500
  cfg_scale = 7.5
  seed      = 1.5
  sampler   = "euler a"
  output    = "card.png"
}
`, nil)

	// --- Act ---
	found := v.Violations(s, b)

	// --- Assert ---
	assertHas(t, found, "card", "height", `value 8192 is out of range for adapter "a1111_txt2img", must be between 64 and 4096`)
	assertHas(t, found, "card", "steps", "must be between 1 and 150")
	assertHas(t, found, "card", "seed", "1.5 is not a whole number")
	assertHas(t, found, "card", "sampler", `did you mean "Euler a"?`)
	assertLacks(t, found, "card", "cfg_scale")
	assertLacks(t, found, "card", "width")
}

func TestValidate_OutputCollisionsNameBothInstances(t *testing.T) {
	// --- Arrange ---
	v := newValidator(t)
	s, b := bind(t, `
adapter = "a1111_txt2img"
step "hero" {
  for_each = ["noir", "dawn"]
  prompt   = each.value
  width    = 512
  height   = 512
  output   = "hero.png"
}
step "poster" {
  prompt     = "poster"
  width      = 512
  height     = 512
  batch_size = 2
  output     = "poster.png"
}
step "extra" {
  prompt = "extra"
  width  = 512
  height = 512
  output = "poster_1.png"
}
`, nil)

	// --- Act ---
	err := v.Validate(s, b)

	// --- Assert ---
	require.Error(t, err)
	assert.Contains(t, err.Error(), `hero["noir"] and hero["dawn"] both write "hero.png"`)
	assert.Contains(t, err.Error(), `poster and extra both write "poster_1.png"`)
}

func TestValidate_RepeatedListElementsDoNotCollide(t *testing.T) {
	// --- Arrange ---
	v := newValidator(t)
	s, b := bind(t, `
adapter = "a1111_txt2img"
step "cats" {
  for_each = ["tabby", "tabby"]
  prompt   = each.value
  width    = 512
  height   = 512
  output   = "cats/${each.key}.png"
}
`, nil)

	// --- Act ---
	found := v.Violations(s, b)

	// --- Assert ---
	assert.Empty(t, found)
}

func TestValidate_OutputMustNameAFile(t *testing.T) {
	testCases := []struct {
		name   string
		output string
	}{
		{name: "dot", output: "."},
		{name: "climbs back to the root", output: "a/.."},
		{name: "trailing dot segments", output: "a/b/../.."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			v := newValidator(t)
			s, b := bind(t, `
adapter = "a1111_txt2img"
step "card" {
  prompt = "card"
  width  = 512
  height = 512
  output = "`+tc.output+`"
}
`, nil)

			// --- Act ---
			found := v.Violations(s, b)

			// --- Assert ---
			assertHas(t, found, "card", "output", "does not name a file")
		})
	}
}

func TestValidate_InputWithoutSharedInput(t *testing.T) {
	// --- Arrange ---
	v := newValidator(t)
	s, b := bind(t, `
adapter = "a1111_txt2img"
step "card" {
  for_each = input
  prompt   = each.key
  width    = 512
  height   = 512
  output   = "${each.key}.png"
}
`, nil)

	// --- Act ---
	found := v.Violations(s, b)

	// --- Assert ---
	require.Len(t, found, 1)
	assert.Equal(t, "for_each", found[0].Field)
	assert.Contains(t, found[0].Message, "no shared input")
}

func TestValidate_PerEntryVariables(t *testing.T) {
	// --- Arrange ---
	v := newValidator(t)
	input, err := vars.ParseInput("input.json", []byte(`{
  "noir": {"subject": "a detective", "steps": 20},
  "dawn": {"subject": "", "steps": "many"}
}`))
	require.NoError(t, err)
	s, b := bind(t, `
adapter = "a1111_txt2img"
variable "subject" {}
variable "steps" { default = 30 }

step "card" {
  for_each = input
  prompt   = var.subject
  steps    = var.steps
  width    = 512
  height   = 512
  output   = "cards/${each.key}.png"
}

step "cover" {
  prompt = var.subject
  width  = 512
  height = 512
  output = "cover.png"
}
`, input)

	// --- Act ---
	found := v.Violations(s, b)

	// --- Assert ---
	assert.Equal(t, []string{
		`test.hcl:8,14: card["dawn"] prompt: must not be empty`,
		`test.hcl:9,14: card["dawn"] steps: "many" is not a number`,
		`test.hcl:16,12: step "cover" prompt: value is only known per shared input entry`,
	}, messages(found))
}

func TestValidate_TypedVariableMismatch(t *testing.T) {
	// --- Arrange ---
	v := newValidator(t)
	s, err := script.Parse([]byte(`
adapter = "a1111_txt2img"
variable "steps" { type = number }
step "hero" {
  prompt = "x"
  width  = 512
  height = 512
  steps  = var.steps
  output = "hero.png"
}
`), "test.hcl")
	require.NoError(t, err)
	flags, err := vars.NewFlagSource([]string{"steps=lots"})
	require.NoError(t, err)
	b, err := vars.Resolve(s, nil, flags)
	require.NoError(t, err)

	// --- Act ---
	found := v.Violations(s, b)

	// --- Assert ---
	require.NotEmpty(t, found)
	assert.Equal(t, "steps", found[0].Variable)
	assert.Contains(t, found[0].Message, `value "lots" (from flag) is not a valid number`)
}

func TestValidate_IsIdempotent(t *testing.T) {
	// --- Arrange ---
	v := newValidator(t)
	s, b := bind(t, `
adapter = "nope"
step "a" {
  prompt = var.missing
  width  = "wide"
  height = 512
  output = "a.png"
}
step "b" {
  prompt = "b"
  width  = 512
  height = -3
  output = "a.png"
}
`, nil)

	// --- Act ---
	first := v.Violations(s, b)
	second := v.Violations(s, b)

	// --- Assert ---
	require.NotEmpty(t, first)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("violations differ between runs (-first +second):\n%s", diff)
	}
}

func TestSuggest(t *testing.T) {
	candidates := []string{"width", "height", "steps"}
	assert.Equal(t, "width", Suggest("widht", candidates))
	assert.Equal(t, "steps", Suggest("step", candidates))
	assert.Equal(t, "", Suggest("checkpoint", candidates))
	assert.Equal(t, "", Suggest("x", nil))
}

func assertHas(t *testing.T, found []Violation, step, field, fragment string) {
	t.Helper()
	for _, v := range found {
		if v.Step == step && v.Field == field && strings.Contains(v.Message, fragment) {
			return
		}
	}
	t.Errorf("no violation for %s.%s containing %q in:\n%s", step, field, fragment, strings.Join(messages(found), "\n"))
}

func assertLacks(t *testing.T, found []Violation, step, field string) {
	t.Helper()
	for _, v := range found {
		if v.Step == step && v.Field == field {
			t.Errorf("unexpected violation for %s.%s: %s", step, field, v)
		}
	}
}
