// Package output persists curation results as text artifacts.
package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/biocurator-go/internal/models"
)

// ErrPathInvalid is returned for artifact names that would escape the
// output directory.
var ErrPathInvalid = errors.New("invalid artifact path")

// Writer writes one file per (document, prompt) pair into a directory.
// Files are written to a temporary sibling and renamed into place, so a
// reader never sees a partial artifact.
type Writer struct {
	dir  string
	perm os.FileMode
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("output directory: %w", ErrPathInvalid)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Writer{dir: dir, perm: 0o644}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write stores result.Text under result.ArtifactName() and returns the
// file path.
func (w *Writer) Write(result models.CurationResult) (string, error) {
	dest, err := w.path(result.ArtifactName())
	if err != nil {
		return "", err
	}
	if err := writeAtomic(dest, []byte(result.Text), w.perm); err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	return dest, nil
}

func (w *Writer) path(name string) (string, error) {
	base := filepath.Base(filepath.Clean(name))
	if base == "." || base == ".." || base == "" || base != name {
		return "", fmt.Errorf("%q: %w", name, ErrPathInvalid)
	}
	return filepath.Join(w.dir, base), nil
}

func writeAtomic(dest string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
