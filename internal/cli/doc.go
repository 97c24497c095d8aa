// Package cli is responsible for parsing command-line arguments, layering
// them over the configuration file and environment, and handling
// process-level concerns like exit codes. It translates CLI flags into the
// application's configuration and maps application errors to exit codes.
package cli
