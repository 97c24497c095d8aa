package report

import (
	"errors"
	"sync"
	"time"

	"github.com/vk/promptgrid/internal/executor"
	"github.com/vk/promptgrid/internal/plan"
)

// Reporter collects results as steps finish. It implements
// executor.Observer and is safe for concurrent use.
type Reporter struct {
	mu           sync.Mutex
	runID        string
	script       string
	runName      string
	artifactsDir string
	started      time.Time
	steps        []StepResult
	now          func() time.Time
}

// New creates a Reporter for p. Every instance starts out pending.
func New(runID, runName, artifactsDir string, p *plan.Plan) *Reporter {
	r := &Reporter{
		runID:        runID,
		script:       p.Script,
		runName:      runName,
		artifactsDir: artifactsDir,
		now:          time.Now,
		steps:        make([]StepResult, p.Len()),
	}
	r.started = r.now()
	for i, inst := range p.Instances {
		r.steps[i] = StepResult{Index: inst.Index, ID: inst.ID, Step: inst.Step, State: executor.Pending}
	}
	return r
}

// StepStarted marks the instance in flight.
func (r *Reporter) StepStarted(inst plan.Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst.Index >= 0 && inst.Index < len(r.steps) {
		r.steps[inst.Index].State = executor.InFlight
	}
}

// StepFinished records a final result.
func (r *Reporter) StepFinished(res executor.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res.Index >= 0 && res.Index < len(r.steps) {
		r.steps[res.Index] = stepResult(res)
	}
}

// Summary builds the summary of everything recorded so far. Steps that never
// reached a final state are reported as cancelled. runErr, if not nil, is an
// error that ended the run as a whole.
func (r *Reporter) Summary(runErr error) *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	finished := r.now()
	s := &Summary{
		RunID:        r.runID,
		Script:       r.script,
		RunName:      r.runName,
		ArtifactsDir: r.artifactsDir,
		Started:      r.started,
		Finished:     finished,
		ElapsedMS:    finished.Sub(r.started).Milliseconds(),
		Outputs:      []string{},
		Steps:        make([]StepResult, len(r.steps)),
	}
	copy(s.Steps, r.steps)

	for i := range s.Steps {
		st := &s.Steps[i]
		if !st.State.Terminal() {
			st.State = executor.Cancelled
			st.ErrorKind = executor.KindCancelled
			st.Error = "run ended before the step finished"
		}
		s.Counts.Total++
		switch st.State {
		case executor.Succeeded:
			s.Counts.Succeeded++
			s.Outputs = append(s.Outputs, st.Outputs...)
		case executor.Failed:
			s.Counts.Failed++
		case executor.TimedOut:
			s.Counts.TimedOut++
		case executor.Cancelled:
			s.Counts.Cancelled++
		}
	}

	var cancelled *executor.CancelledError
	if runErr != nil {
		s.Error = runErr.Error()
	}
	s.Status = status(s.Counts, errors.As(runErr, &cancelled))
	return s
}

// Progress is a point-in-time view of a run that may still be going.
type Progress struct {
	RunID string `json:"run_id"`
	Counts
	Pending  int `json:"pending"`
	InFlight int `json:"in_flight"`
}

// Progress counts the steps recorded so far without closing anything out.
func (r *Reporter) Progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := Progress{RunID: r.runID}
	p.Total = len(r.steps)
	for _, st := range r.steps {
		switch st.State {
		case executor.Pending:
			p.Pending++
		case executor.InFlight:
			p.InFlight++
		case executor.Succeeded:
			p.Succeeded++
		case executor.Failed:
			p.Failed++
		case executor.TimedOut:
			p.TimedOut++
		case executor.Cancelled:
			p.Cancelled++
		}
	}
	return p
}
