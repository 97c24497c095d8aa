// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package script

import (
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Payload field names accepted inside a step block.
const (
	FieldPrompt         = "prompt"
	FieldNegativePrompt = "negative_prompt"
	FieldWidth          = "width"
	FieldHeight         = "height"
	FieldSteps          = "steps"
	FieldCFGScale       = "cfg_scale"
	FieldSampler        = "sampler"
	FieldSeed           = "seed"
	FieldCheckpoint     = "checkpoint"
	FieldBatchSize      = "batch_size"
)

// PayloadFields lists the payload fields in their canonical order. Checks and
// renderings iterate in this order so their output is stable.
var PayloadFields = []string{
	FieldPrompt,
	FieldNegativePrompt,
	FieldWidth,
	FieldHeight,
	FieldSteps,
	FieldCFGScale,
	FieldSampler,
	FieldSeed,
	FieldCheckpoint,
	FieldBatchSize,
}

// NumericFields are the payload fields that must evaluate to numbers.
var NumericFields = []string{FieldWidth, FieldHeight, FieldSteps, FieldCFGScale, FieldSeed, FieldBatchSize}

// IsNumericField reports whether name is one of NumericFields.
func IsNumericField(name string) bool {
	for _, f := range NumericFields {
		if f == name {
			return true
		}
	}
	return false
}

// Kind distinguishes plain steps from steps that expand once per entry of an
// iteration source.
type Kind int

const (
	Plain Kind = iota
	Iterating
)

func (k Kind) String() string {
	if k == Iterating {
		return "iterating"
	}
	return "plain"
}

// Script is the parsed form of a workflow script. It is never mutated after
// Parse returns.
type Script struct {
	Filename    string
	Name        string
	Adapter     string
	InputConfig string
	Variables   []*Variable
	Steps       []*Step
}

// Variable is a declared `variable` block.
type Variable struct {
	Name        string
	Description string
	Type        cty.Type
	Default     cty.Value
	HasDefault  bool
	DeclRange   hcl.Range
}

// Step is a declared `step` block.
type Step struct {
	Name        string
	Index       int
	Kind        Kind
	Adapter     string
	Description string

	// ForEach is set only for Iterating steps.
	ForEach hcl.Expression
	Fields  map[string]hcl.Expression
	Output  hcl.Expression

	// Timeout of zero means the run-wide timeout applies.
	Timeout time.Duration
	// Retries is nil when the run-wide retry count applies.
	Retries *int

	DeclRange hcl.Range
}

// Variable returns the declared variable with the given name.
func (s *Script) Variable(name string) (*Variable, bool) {
	for _, v := range s.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// VariableNames returns the declared variable names in declaration order.
func (s *Script) VariableNames() []string {
	names := make([]string, 0, len(s.Variables))
	for _, v := range s.Variables {
		names = append(names, v.Name)
	}
	return names
}

// Field returns the expression of a payload field if the step sets it.
func (s *Step) Field(name string) (hcl.Expression, bool) {
	expr, ok := s.Fields[name]
	return expr, ok
}

// Expressions returns every expression of the step: for_each first, then the
// payload fields in canonical order, then the output template.
func (s *Step) Expressions() []hcl.Expression {
	var exprs []hcl.Expression
	if s.ForEach != nil {
		exprs = append(exprs, s.ForEach)
	}
	for _, name := range PayloadFields {
		if expr, ok := s.Fields[name]; ok {
			exprs = append(exprs, expr)
		}
	}
	if s.Output != nil {
		exprs = append(exprs, s.Output)
	}
	return exprs
}
