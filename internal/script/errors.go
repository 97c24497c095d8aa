// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package script

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
)

// ParseError reports a malformed script. Line and Column point at the first
// error; Diagnostics holds every problem found.
type ParseError struct {
	Filename    string
	Line        int
	Column      int
	Summary     string
	Detail      string
	Diagnostics hcl.Diagnostics
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s:%d,%d: %s", e.Filename, e.Line, e.Column, e.Summary)
	if e.Detail != "" {
		msg += "; " + e.Detail
	}
	if more := len(e.Diagnostics.Errs()) - 1; more > 0 {
		msg += fmt.Sprintf(" (and %d more)", more)
	}
	return msg
}

func newParseError(filename string, diags hcl.Diagnostics) *ParseError {
	pe := &ParseError{Filename: filename, Diagnostics: diags}
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		pe.Summary = d.Summary
		pe.Detail = d.Detail
		rng := d.Subject
		if rng == nil {
			rng = d.Context
		}
		if rng != nil {
			pe.Line = rng.Start.Line
			pe.Column = rng.Start.Column
			if rng.Filename != "" {
				pe.Filename = rng.Filename
			}
		}
		break
	}
	return pe
}
