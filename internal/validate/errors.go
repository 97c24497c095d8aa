package validate

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// Violation is one problem found in a script.
type Violation struct {
	// Step is empty for problems with variable declarations.
	Step     string    `json:"step,omitempty"`
	Instance string    `json:"instance,omitempty"`
	Variable string    `json:"variable,omitempty"`
	Field    string    `json:"field,omitempty"`
	Message  string    `json:"message"`
	Range    hcl.Range `json:"-"`
}

func (v Violation) String() string {
	var b strings.Builder
	if v.Range.Filename != "" {
		fmt.Fprintf(&b, "%s:%d,%d: ", v.Range.Filename, v.Range.Start.Line, v.Range.Start.Column)
	}
	switch {
	case v.Instance != "":
		b.WriteString(v.Instance)
	case v.Step != "":
		fmt.Fprintf(&b, "step %q", v.Step)
	case v.Variable != "":
		fmt.Fprintf(&b, "variable %q", v.Variable)
	}
	if v.Field != "" {
		fmt.Fprintf(&b, " %s", v.Field)
	}
	if b.Len() > 0 {
		b.WriteString(": ")
	}
	b.WriteString(v.Message)
	return b.String()
}

// ValidationError lists every violation found in one pass.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "validation failed with %d problem(s):", len(e.Violations))
	for _, v := range e.Violations {
		b.WriteString("\n  - ")
		b.WriteString(v.String())
	}
	return b.String()
}
