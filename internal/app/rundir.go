package app

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var slugUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// RunDirName names the per-run artifacts directory:
// run-YYYYMMDD-HHMMSS-<slug>.
func RunDirName(started time.Time, scriptName string) string {
	return "run-" + started.Format("20060102-150405") + "-" + slug(scriptName)
}

func slug(name string) string {
	s := strings.Trim(strings.ToLower(slugUnsafe.ReplaceAllString(name, "-")), "-")
	if s == "" {
		return "workflow"
	}
	return s
}

// scriptName is the name a script file is reported under before it parses.
func scriptName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
