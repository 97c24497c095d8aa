// Package config defines the runtime configuration of promptgrid and loads it
// in layers: built-in defaults, an optional YAML file, then PROMPTGRID_*
// environment variables. Command-line flags are applied last by the caller.
package config
