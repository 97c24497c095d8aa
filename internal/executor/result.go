package executor

import (
	"time"

	"github.com/vk/promptgrid/internal/plan"
)

// State is the lifecycle state of one step instance.
type State string

const (
	Pending   State = "pending"
	InFlight  State = "in_flight"
	Succeeded State = "succeeded"
	Failed    State = "failed"
	TimedOut  State = "timed_out"
	Cancelled State = "cancelled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case Succeeded, Failed, TimedOut, Cancelled:
		return true
	}
	return false
}

// ErrorKind classifies why a step did not succeed.
type ErrorKind string

const (
	KindNone      ErrorKind = ""
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
	KindTimeout   ErrorKind = "timeout"
	KindCancelled ErrorKind = "cancelled"
	KindWrite     ErrorKind = "write"
	KindAdapter   ErrorKind = "adapter"
)

// Result is the outcome of one step instance.
type Result struct {
	Index    int
	ID       string
	Step     string
	State    State
	Attempts int
	Duration time.Duration
	Outputs  []string
	// Reused is set when the images came from an identical earlier request
	// of the same run.
	Reused bool
	Kind   ErrorKind
	Err    error
}

func pendingResult(inst plan.Instance) Result {
	return Result{Index: inst.Index, ID: inst.ID, Step: inst.Step, State: Pending}
}
