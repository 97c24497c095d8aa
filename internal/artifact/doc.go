// Package artifact writes generated images below the output directory and
// optionally mirrors them to S3-compatible object storage.
package artifact
