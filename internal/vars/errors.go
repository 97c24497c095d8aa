package vars

import (
	"fmt"
	"strings"
)

// UnresolvedVariableError names every declared variable that has no default
// and that no source supplied.
type UnresolvedVariableError struct {
	Names []string
}

func (e *UnresolvedVariableError) Error() string {
	quoted := make([]string, len(e.Names))
	for i, n := range e.Names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	if len(quoted) == 1 {
		return fmt.Sprintf("variable %s has no default and was not supplied", quoted[0])
	}
	return fmt.Sprintf("variables %s have no default and were not supplied", strings.Join(quoted, ", "))
}

// InputError reports a shared input file that cannot be used.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("shared input %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }
