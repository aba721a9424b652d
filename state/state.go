// Package state manages per-worktree scratch directories under the
// repository root. Tools running inside a worktree get a stable place for
// caches and generated files that never pollutes version control.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DirName is the state root created under the repository root.
const DirName = ".hutch-state"

// Manager owns the state root for one repository.
type Manager struct {
	root string
}

// NewManager returns a manager anchored at repoRoot. Nothing is created
// until a worktree directory is requested.
func NewManager(repoRoot string) *Manager {
	return &Manager{root: filepath.Join(repoRoot, DirName)}
}

// Root returns the state root path.
func (m *Manager) Root() string {
	return m.root
}

// Dir returns the state directory path for a worktree without creating it.
func (m *Manager) Dir(worktree string) string {
	return filepath.Join(m.root, worktree)
}

// Create makes the state directory for a worktree, creating the state root
// and its ignore file on first use. Creating an existing directory is a
// no-op.
func (m *Manager) Create(worktree string) (string, error) {
	if err := m.EnsureRoot(); err != nil {
		return "", err
	}
	dir := m.Dir(worktree)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating state directory: %w", err)
	}
	return dir, nil
}

// Remove deletes a worktree's state directory and everything in it.
// Removing a directory that does not exist is a no-op.
func (m *Manager) Remove(worktree string) error {
	if err := os.RemoveAll(m.Dir(worktree)); err != nil {
		return fmt.Errorf("removing state directory: %w", err)
	}
	return nil
}

// List returns the worktree names that currently have state directories,
// sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading state root: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Orphans returns state directories whose worktree no longer exists.
func (m *Manager) Orphans(active []string) ([]string, error) {
	names, err := m.List()
	if err != nil {
		return nil, err
	}
	live := make(map[string]bool, len(active))
	for _, name := range active {
		live[name] = true
	}
	var orphans []string
	for _, name := range names {
		if !live[name] {
			orphans = append(orphans, name)
		}
	}
	return orphans, nil
}

// Clean removes every orphaned state directory and returns the names it
// removed.
func (m *Manager) Clean(active []string) ([]string, error) {
	orphans, err := m.Orphans(active)
	if err != nil {
		return nil, err
	}
	for _, name := range orphans {
		if err := m.Remove(name); err != nil {
			return nil, err
		}
	}
	return orphans, nil
}

// EnsureRoot creates the state root with a gitignore covering its whole
// contents, so state never shows up in version control. Callers that put
// their own files under the root use this before writing.
func (m *Manager) EnsureRoot() error {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return fmt.Errorf("creating state root: %w", err)
	}
	ignore := filepath.Join(m.root, ".gitignore")
	if _, err := os.Stat(ignore); err == nil {
		return nil
	}
	if err := os.WriteFile(ignore, []byte("*\n"), 0o644); err != nil {
		return fmt.Errorf("writing state gitignore: %w", err)
	}
	return nil
}
