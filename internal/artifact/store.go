package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vk/promptgrid/internal/ctxlog"
)

// Mirror receives a copy of every written artifact.
type Mirror interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Store writes the artifacts of one run. Root is the directory outputs are
// resolved against; RunDir, when set, is the name of the per-run directory
// below the output directory and prefixes mirrored keys.
type Store struct {
	Root   string
	RunDir string
	Mirror Mirror
}

// NewStore creates a store rooted at outputDir, or at outputDir/runDir when
// runDir is not empty.
func NewStore(outputDir, runDir string, mirror Mirror) *Store {
	root := outputDir
	if runDir != "" {
		root = filepath.Join(outputDir, runDir)
	}
	return &Store{Root: root, RunDir: runDir, Mirror: mirror}
}

// Save writes images to rel, the first at rel itself and image i > 0 at
// IndexedPath(rel, i). It returns the written paths. A failing mirror is
// logged and does not fail the save.
func (s *Store) Save(ctx context.Context, rel string, images [][]byte) ([]string, error) {
	logger := ctxlog.FromContext(ctx)
	paths := make([]string, 0, len(images))
	for i, img := range images {
		name := IndexedPath(rel, i)
		path := filepath.Join(s.Root, name)
		if err := WriteFile(path, img); err != nil {
			return paths, err
		}
		paths = append(paths, path)

		if s.Mirror == nil {
			continue
		}
		key := filepath.ToSlash(filepath.Join(s.RunDir, name))
		if err := s.Mirror.Put(ctx, key, img); err != nil {
			logger.Warn("Failed to mirror artifact.", "path", path, "key", key, "error", err)
		}
	}
	return paths, nil
}

// IndexedPath returns the path of image i of a batch: the path itself for
// the first image, "<stem>_<i><ext>" for the rest.
func IndexedPath(path string, i int) string {
	if i == 0 {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + strconv.Itoa(i) + ext
}

// WriteFile writes data to path through a temporary file in the same
// directory, creating intermediate directories as needed.
func WriteFile(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
