package plan

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/vk/promptgrid/internal/adapter"
	"github.com/vk/promptgrid/internal/script"
	"github.com/vk/promptgrid/internal/vars"
)

// Defaults fill the payload fields a step leaves unset. Width, height and
// prompt have no default.
var Defaults = adapter.Request{
	Steps:     30,
	CFGScale:  7,
	Sampler:   "Euler a",
	Seed:      -1,
	BatchSize: 1,
}

// Instance is one concrete unit of work.
type Instance struct {
	Index   int             `json:"index"`
	ID      string          `json:"id"`
	Step    string          `json:"step"`
	Key     string          `json:"key,omitempty"`
	Adapter string          `json:"adapter"`
	Request adapter.Request `json:"request"`
	Output  string          `json:"output"`
	// Timeout of zero means the run-wide timeout.
	Timeout time.Duration `json:"-"`
	// Retries below zero means the run-wide retry count.
	Retries int `json:"-"`
}

// Plan is the ordered list of instances of one run.
type Plan struct {
	Script    string     `json:"script"`
	Instances []Instance `json:"instances"`
}

// Len returns the number of instances.
func (p *Plan) Len() int { return len(p.Instances) }

// IDs returns the instance identifiers in plan order.
func (p *Plan) IDs() []string {
	ids := make([]string, len(p.Instances))
	for i, inst := range p.Instances {
		ids[i] = inst.ID
	}
	return ids
}

// Build expands a validated script. Any evaluation or conversion problem is
// returned as an error; validation normally reports them first.
func Build(s *script.Script, b *vars.Bindings) (*Plan, error) {
	p := &Plan{Script: s.Name}
	for _, exp := range Expand(s, b) {
		if exp.Diags.HasErrors() {
			return nil, fmt.Errorf("failed to expand step %s: %w", exp.Step.Name, exp.Diags)
		}
		for _, c := range exp.Candidates {
			inst, err := c.instance()
			if err != nil {
				return nil, fmt.Errorf("failed to plan %s: %w", c.ID(), err)
			}
			inst.Index = len(p.Instances)
			p.Instances = append(p.Instances, inst)
		}
	}
	return p, nil
}

func (c *Candidate) instance() (Instance, error) {
	if errs := c.Errs(); errs.HasErrors() {
		return Instance{}, errs
	}
	req, err := c.Request()
	if err != nil {
		return Instance{}, err
	}
	out, err := c.OutputPath()
	if err != nil {
		return Instance{}, err
	}
	retries := -1
	if c.Step.Retries != nil {
		retries = *c.Step.Retries
	}
	return Instance{
		ID:      c.ID(),
		Step:    c.Step.Name,
		Key:     c.Key,
		Adapter: c.Step.Adapter,
		Request: req,
		Output:  out,
		Timeout: c.Step.Timeout,
		Retries: retries,
	}, nil
}

// Request converts the evaluated payload fields, applying Defaults.
func (c *Candidate) Request() (adapter.Request, error) {
	req := Defaults
	var errs []error
	field := func(name string, set func() error) {
		if _, ok := c.Fields[name]; !ok {
			return
		}
		if err := set(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	str := func(name string, dst *string) func() error {
		return func() (err error) { *dst, err = AsString(c.Fields[name]); return err }
	}
	integer := func(name string, dst *int) func() error {
		return func() error {
			n, err := AsInt(c.Fields[name])
			*dst = int(n)
			return err
		}
	}

	field(script.FieldPrompt, str(script.FieldPrompt, &req.Prompt))
	field(script.FieldNegativePrompt, str(script.FieldNegativePrompt, &req.NegativePrompt))
	field(script.FieldWidth, integer(script.FieldWidth, &req.Width))
	field(script.FieldHeight, integer(script.FieldHeight, &req.Height))
	field(script.FieldSteps, integer(script.FieldSteps, &req.Steps))
	field(script.FieldCFGScale, func() (err error) { req.CFGScale, err = AsFloat(c.Fields[script.FieldCFGScale]); return err })
	field(script.FieldSampler, str(script.FieldSampler, &req.Sampler))
	field(script.FieldSeed, func() (err error) { req.Seed, err = AsInt(c.Fields[script.FieldSeed]); return err })
	field(script.FieldCheckpoint, str(script.FieldCheckpoint, &req.Checkpoint))
	field(script.FieldBatchSize, integer(script.FieldBatchSize, &req.BatchSize))

	for _, name := range []string{script.FieldPrompt, script.FieldWidth, script.FieldHeight} {
		if _, ok := c.Fields[name]; !ok {
			errs = append(errs, fmt.Errorf("%s: required field is not set", name))
		}
	}
	return req, errors.Join(errs...)
}

// OutputPath returns the cleaned, OS-specific relative output path.
func (c *Candidate) OutputPath() (string, error) {
	s, err := AsString(c.Output)
	if err != nil {
		return "", fmt.Errorf("output: %w", err)
	}
	if s == "" {
		return "", errors.New("output: path is empty")
	}
	return filepath.Clean(filepath.FromSlash(s)), nil
}
