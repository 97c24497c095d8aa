package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/promptgrid/internal/artifact"
)

// SummaryFile is the name of the persisted summary inside the artifacts
// directory.
const SummaryFile = "summary.json"

// HistoryFile is the run history kept in the output directory.
const HistoryFile = "runs.jsonl"

// Persist writes s as JSON to dir/summary.json and returns the path.
func Persist(dir string, s *Summary) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode summary: %w", err)
	}
	path := filepath.Join(dir, SummaryFile)
	if err := artifact.WriteFile(path, append(data, '\n')); err != nil {
		return "", err
	}
	return path, nil
}

// HistoryEntry is one line of the run history.
type HistoryEntry struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	RunName      string    `json:"run_name"`
	Status       string    `json:"status"`
	ArtifactsDir string    `json:"artifacts_dir"`
	ImagePaths   []string  `json:"image_paths"`
	Error        string    `json:"error,omitempty"`
}

// NewHistoryEntry summarises s for the history file.
func NewHistoryEntry(s *Summary) HistoryEntry {
	name := s.RunName
	if name == "" {
		name = s.Script
	}
	return HistoryEntry{
		ID:           s.RunID,
		Timestamp:    s.Finished.UTC(),
		RunName:      name,
		Status:       s.Status,
		ArtifactsDir: s.ArtifactsDir,
		ImagePaths:   s.Outputs,
		Error:        s.Error,
	}
}

// AppendHistory appends entry as one JSON line to outputDir/runs.jsonl.
func AppendHistory(outputDir string, entry HistoryEntry) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode history entry: %w", err)
	}
	path := filepath.Join(outputDir, HistoryFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append run history: %w", err)
	}
	return nil
}
