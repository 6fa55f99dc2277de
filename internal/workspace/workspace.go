// Package workspace provides workspace directory management. The workspace
// is the root directory agents are confined to: every file tool path is
// resolved against it, and paths that would escape it are rejected.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// SubdirArtifacts is the subdirectory where tool runs place produced files.
	SubdirArtifacts = "artifacts"
)

// Workspace represents an agent workspace with path management capabilities.
type Workspace struct {
	path     string // expanded workspace path
	basePath string // original path from config (may contain ~)
}

// New creates a new Workspace rooted at the given path. The path is stored
// as-is in basePath and expanded in path.
func New(path string) *Workspace {
	return &Workspace{
		path:     expandHome(path),
		basePath: path,
	}
}

// Path returns the expanded workspace path.
func (w *Workspace) Path() string {
	return w.path
}

// BasePath returns the original path from config (may contain ~).
func (w *Workspace) BasePath() string {
	return w.basePath
}

// EnsureDir creates the workspace directory if it doesn't exist.
func (w *Workspace) EnsureDir() error {
	if w.path == "" {
		return fmt.Errorf("workspace path is empty")
	}

	info, err := os.Stat(w.path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("workspace path exists but is not a directory: %s", w.path)
		}
		return nil
	}

	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to access workspace path %s: %w", w.path, err)
	}

	if err := os.MkdirAll(w.path, 0755); err != nil {
		return fmt.Errorf("failed to create workspace directory %s: %w", w.path, err)
	}

	return nil
}

// ResolvePath resolves a path within the workspace. Relative paths are
// joined with the workspace root; absolute paths must already be inside it.
// Returns an error if the path would escape the workspace directory.
func (w *Workspace) ResolvePath(relPath string) (string, error) {
	if relPath == "" {
		return "", fmt.Errorf("path is empty")
	}

	absWorkspace, err := filepath.Abs(w.path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute workspace path: %w", err)
	}

	var candidate string
	if filepath.IsAbs(relPath) {
		candidate = filepath.Clean(relPath)
	} else {
		candidate = filepath.Join(absWorkspace, filepath.Clean(relPath))
	}

	absCandidate, err := filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	rel, err := filepath.Rel(absWorkspace, absCandidate)
	if err != nil {
		return "", fmt.Errorf("failed to check path relationship: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", relPath)
	}

	return absCandidate, nil
}

// Subpath returns a path for a workspace subdirectory.
func (w *Workspace) Subpath(name string) string {
	return filepath.Join(w.path, name)
}

// EnsureSubpath creates a subdirectory within the workspace if it doesn't exist.
func (w *Workspace) EnsureSubpath(name string) error {
	if err := w.EnsureDir(); err != nil {
		return fmt.Errorf("failed to ensure workspace: %w", err)
	}

	if name == "" {
		return fmt.Errorf("subdirectory name is empty")
	}

	subpath := w.Subpath(name)

	info, err := os.Stat(subpath)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("subdirectory path exists but is not a directory: %s", subpath)
		}
		return nil
	}

	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to access subdirectory %s: %w", subpath, err)
	}

	if err := os.MkdirAll(subpath, 0755); err != nil {
		return fmt.Errorf("failed to create subdirectory %s: %w", subpath, err)
	}

	return nil
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' && (len(path) == 1 || path[1] == '/') {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if len(path) == 1 {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
