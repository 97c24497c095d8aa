// Package plan expands a resolved script into the ordered list of concrete
// step instances a run executes.
//
// Expansion is pure: plain steps yield one instance, iterating steps yield
// one instance per entry of their for_each source in entry order. The same
// expansion backs validation, which inspects the raw evaluated candidates,
// and Build, which converts them into typed adapter requests.
package plan
