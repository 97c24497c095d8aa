package report

import (
	"time"

	"github.com/vk/promptgrid/internal/executor"
)

// Run status values.
const (
	StatusSucceeded = "succeeded"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Counts tallies step states.
type Counts struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	TimedOut  int `json:"timed_out"`
	Cancelled int `json:"cancelled"`
}

// StepResult is the reported form of one executor.Result.
type StepResult struct {
	Index      int                `json:"index"`
	ID         string             `json:"id"`
	Step       string             `json:"step"`
	State      executor.State     `json:"state"`
	Attempts   int                `json:"attempts"`
	DurationMS int64              `json:"duration_ms"`
	Outputs    []string           `json:"outputs,omitempty"`
	Reused     bool               `json:"reused,omitempty"`
	ErrorKind  executor.ErrorKind `json:"error_kind,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Summary is the aggregate outcome of one run. Steps are listed in plan
// order.
type Summary struct {
	RunID        string       `json:"run_id"`
	Script       string       `json:"script"`
	RunName      string       `json:"run_name,omitempty"`
	ArtifactsDir string       `json:"artifacts_dir"`
	Started      time.Time    `json:"started"`
	Finished     time.Time    `json:"finished"`
	ElapsedMS    int64        `json:"elapsed_ms"`
	Status       string       `json:"status"`
	Counts       Counts       `json:"counts"`
	Outputs      []string     `json:"outputs"`
	Steps        []StepResult `json:"steps"`
	Error        string       `json:"error,omitempty"`
}

// Elapsed returns the wall-clock duration of the run.
func (s *Summary) Elapsed() time.Duration {
	return time.Duration(s.ElapsedMS) * time.Millisecond
}

// OK reports whether every step succeeded.
func (s *Summary) OK() bool {
	return s.Counts.Succeeded == s.Counts.Total && s.Error == ""
}

// Unsuccessful returns the number of steps that failed or timed out.
func (s *Summary) Unsuccessful() int {
	return s.Counts.Failed + s.Counts.TimedOut
}

// Aborted is the summary of a run that ended before any step was planned.
func Aborted(runID, script string, at time.Time, err error) *Summary {
	s := &Summary{
		RunID:    runID,
		Script:   script,
		Started:  at,
		Finished: at,
		Status:   StatusFailed,
		Outputs:  []string{},
		Steps:    []StepResult{},
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

func stepResult(r executor.Result) StepResult {
	sr := StepResult{
		Index:      r.Index,
		ID:         r.ID,
		Step:       r.Step,
		State:      r.State,
		Attempts:   r.Attempts,
		DurationMS: r.Duration.Milliseconds(),
		Outputs:    r.Outputs,
		Reused:     r.Reused,
		ErrorKind:  r.Kind,
	}
	if r.Err != nil {
		sr.Error = r.Err.Error()
	}
	return sr
}

func status(c Counts, cancelled bool) string {
	switch {
	case cancelled:
		return StatusCancelled
	case c.Succeeded == c.Total:
		return StatusSucceeded
	case c.Succeeded == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}
