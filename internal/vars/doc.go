// Package vars resolves the variable bindings of a run.
//
// Bindings are produced from an ordered list of Sources (highest precedence
// first) with the script's declared defaults as the final fallback. A shared
// structured input, a JSON object of named entries, can be attached to the
// bindings for batch scripts; each entry acts as a per-instance override
// source when an iterating step expands over it.
package vars
