// Package runs allocates per-analysis workspaces. Every analysis run owns a
// directory named by its ID under a shared output root; the directory is the
// isolation unit between concurrent runs.
package runs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// IDLength is the number of leading UUID hex characters used as a run ID.
const IDLength = 8

// Run is one allocated analysis workspace.
type Run struct {
	ID  string
	Dir string
}

// Workspace mints run IDs and manages their directories under the output
// root.
type Workspace struct {
	root string
}

// NewWorkspace ensures the output root exists and returns a workspace over
// it.
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		return nil, fmt.Errorf("output root must not be empty")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating output root: %w", err)
	}
	return &Workspace{root: root}, nil
}

// Root returns the output root directory.
func (w *Workspace) Root() string { return w.root }

// Allocate mints a fresh run ID and creates its directory. The short ID can
// collide with an existing run; Mkdir makes the collision visible and the
// allocation retries with a new ID.
func (w *Workspace) Allocate() (Run, error) {
	for attempt := 0; attempt < 5; attempt++ {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")[:IDLength]
		dir := filepath.Join(w.root, id)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return Run{ID: id, Dir: dir}, nil
		}
		if !os.IsExist(err) {
			return Run{}, fmt.Errorf("creating run directory: %w", err)
		}
	}
	return Run{}, fmt.Errorf("could not allocate a unique run ID")
}

// Dir returns the directory of an existing run.
func (w *Workspace) Dir(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	dir := filepath.Join(w.root, id)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("run %s not found", id)
	}
	return dir, nil
}

// ResolveFile returns the path of a file inside a run directory. The
// filename must be a bare name; anything that could traverse out of the run
// directory is rejected.
func (w *Workspace) ResolveFile(id, filename string) (string, error) {
	dir, err := w.Dir(id)
	if err != nil {
		return "", err
	}
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	path := filepath.Join(dir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("file %s not found in run %s", filename, id)
	}
	return path, nil
}

// Remove deletes a run directory and everything in it.
func (w *Workspace) Remove(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(w.root, id))
}

// validateID keeps run IDs to the short lowercase-hex form Allocate mints,
// which also confines all path construction to direct children of the root.
func validateID(id string) error {
	if len(id) != IDLength {
		return fmt.Errorf("invalid run ID %q", id)
	}
	for _, r := range id {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return fmt.Errorf("invalid run ID %q", id)
		}
	}
	return nil
}
