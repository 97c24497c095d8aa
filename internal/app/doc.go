// Package app contains the core application logic. It wires the script,
// variable, validation, planning, execution and reporting layers into the
// validate, plan, run, health and watch operations, decoupled from any
// specific entrypoint like a CLI.
package app
