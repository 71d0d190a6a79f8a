package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	runDirPrefix      = "run-"
	workspaceLockName = ".run.lock"
)

// Workspace is one run's private directory under work_dir. Its lock file is
// held for the lifetime of the run so stale-directory sweeps leave it alone.
type Workspace struct {
	ID   string
	Dir  string
	lock *flock.Flock
}

// NewWorkspace creates <workDir>/run-<id>. An empty id gets a fresh UUID.
func NewWorkspace(workDir, id string) (*Workspace, error) {
	workDir = strings.TrimSpace(workDir)
	if workDir == "" {
		return nil, fmt.Errorf("workspace: empty work directory")
	}
	if id = strings.TrimSpace(id); id == "" {
		id = uuid.NewString()
	}
	dir := filepath.Join(workDir, runDirPrefix+id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create %s: %w", dir, err)
	}
	lock := flock.New(filepath.Join(dir, workspaceLockName))
	locked, err := lock.TryLock()
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("workspace: lock %s: %w", dir, err)
	}
	if !locked {
		return nil, fmt.Errorf("workspace: %s is held by another run", dir)
	}
	return &Workspace{ID: id, Dir: dir, lock: lock}, nil
}

// Path joins elem onto the workspace directory.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.Dir}, elem...)...)
}

// Remove releases the lock and deletes the directory. Safe to call twice.
func (w *Workspace) Remove() error {
	if w == nil {
		return nil
	}
	if w.lock != nil {
		_ = w.lock.Unlock()
		w.lock = nil
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("workspace: remove %s: %w", w.Dir, err)
	}
	return nil
}
