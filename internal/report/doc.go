// Package report aggregates step results into a run summary, renders it and
// keeps the run history.
package report
