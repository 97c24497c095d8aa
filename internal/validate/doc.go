// Package validate checks a parsed script against its variable bindings and
// the adapter registry before anything runs. Validation never touches the
// network or the filesystem.
package validate
