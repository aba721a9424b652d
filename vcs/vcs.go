// Package vcs abstracts workspace lifecycle operations over the supported
// version control tools (git, mercurial, jujutsu) behind one contract.
package vcs

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Worktree is one isolated working copy tracked by a backend.
type Worktree struct {
	Name           string
	Path           string
	BranchOrChange string
	Commit         string
	Parent         string
	CreatedAt      time.Time
}

// CreateOptions describe a workspace creation request.
type CreateOptions struct {
	Name    string
	FromRef string
	// CheckoutExisting checks out an existing branch/ref instead of
	// creating a new one named after the workspace.
	CheckoutExisting bool
}

// Backend is the capability contract implemented once per supported tool.
// It deliberately limits itself to operations expressible by all three
// tools; extensions are modeled as optional interfaces probed by callers.
type Backend interface {
	Type() Type
	RepoRoot() string

	CreateWorkspace(opts CreateOptions) (Worktree, error)
	// ListWorkspaces enumerates every workspace the tool itself tracks.
	// This is the ground truth the registry rebuilds from.
	ListWorkspaces() ([]Worktree, error)
	RemoveWorkspace(name string, force bool) error

	// ParentLink returns the recorded parent workspace name, or "" if none
	// was recorded or the record is gone.
	ParentLink(name string) (string, error)
	SetParentLink(name, parent string) error

	CurrentWorkspace() (Worktree, error)
	CurrentBranchOrChange(path string) (string, error)
	HasUncommittedChanges(path string) (bool, error)
}

// SparseCheckouter is an optional backend extension. Backends without
// native sparse support simply do not implement it; callers probe with a
// type assertion and fall back to a full checkout.
type SparseCheckouter interface {
	SetupSparseCheckout(worktreePath string, paths []string) error
}

const maxNameLength = 100

// ValidateName rejects workspace names that cannot safely become directory
// names or metadata keys.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("workspace name required")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("workspace name exceeds %d characters", maxNameLength)
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("workspace name must not start with a dash")
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("workspace name must not contain path separators")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("workspace name %q is reserved", name)
	}
	return nil
}

func sortWorktrees(worktrees []Worktree) {
	sort.Slice(worktrees, func(i, j int) bool {
		return worktrees[i].Name < worktrees[j].Name
	})
}

// workspaceForDir picks the workspace whose path most specifically
// encloses dir.
func workspaceForDir(worktrees []Worktree, dir string) (Worktree, error) {
	best := -1
	for i, wt := range worktrees {
		if dir == wt.Path || strings.HasPrefix(dir, wt.Path+string(filepath.Separator)) {
			if best < 0 || len(wt.Path) > len(worktrees[best].Path) {
				best = i
			}
		}
	}
	if best < 0 {
		return Worktree{}, ErrNotInRepository
	}
	return worktrees[best], nil
}
