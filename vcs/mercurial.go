package vcs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MercurialBackend builds workspaces with `hg share`. Mercurial has no
// native workspace listing or per-workspace metadata, so both live in a
// JSON side registry under .hg/.
type MercurialBackend struct {
	repoRoot    string
	worktreeDir string
	registry    *sideRegistry
}

func openMercurial(dir string, opts Options) (*MercurialBackend, error) {
	if err := toolInstalled("hg"); err != nil {
		return nil, err
	}
	root, err := discoverRoot(dir, ".hg")
	if err != nil {
		return nil, err
	}
	worktreeDir := strings.TrimSpace(opts.WorktreeDir)
	if worktreeDir == "" {
		worktreeDir = filepath.Dir(root)
	}
	return &MercurialBackend{
		repoRoot:    root,
		worktreeDir: worktreeDir,
		registry:    newSideRegistry(filepath.Join(root, ".hg", "hutch-workspaces.json")),
	}, nil
}

func discoverRoot(dir string, marker string) (string, error) {
	current, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(current, marker)); err == nil {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", ErrNotInRepository
		}
		current = parent
	}
}

func (b *MercurialBackend) Type() Type       { return TypeMercurial }
func (b *MercurialBackend) RepoRoot() string { return b.repoRoot }

func (b *MercurialBackend) CreateWorkspace(opts CreateOptions) (Worktree, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return Worktree{}, errors.New("workspace name required")
	}
	target := filepath.Join(b.worktreeDir, name)
	if _, err := os.Stat(target); err == nil {
		return Worktree{}, &ExistsError{Name: name}
	}
	doc, err := b.registry.load()
	if err != nil {
		return Worktree{}, err
	}
	if _, ok := doc.Workspaces[name]; ok {
		return Worktree{}, &ExistsError{Name: name}
	}

	fromRef := strings.TrimSpace(opts.FromRef)
	if fromRef != "" {
		if _, err := commandOutput(b.repoRoot, "hg", "log", "-r", fromRef, "-T", "{node}"); err != nil {
			return Worktree{}, &RefError{Ref: fromRef}
		}
	}

	if _, err := commandOutput(b.repoRoot, "hg", "share", b.repoRoot, target); err != nil {
		return Worktree{}, fmt.Errorf("hg share: %w", err)
	}
	if fromRef != "" {
		if _, err := commandOutput(target, "hg", "update", fromRef); err != nil {
			_ = os.RemoveAll(target)
			return Worktree{}, fmt.Errorf("hg update %s: %w", fromRef, err)
		}
	}

	branch := fromRef
	if !opts.CheckoutExisting {
		// Named branches are mercurial's nearest equivalent of a per-
		// workspace branch; the branch becomes permanent on first commit.
		if _, err := commandOutput(target, "hg", "branch", name); err != nil {
			_ = os.RemoveAll(target)
			return Worktree{}, fmt.Errorf("hg branch %s: %w", name, err)
		}
		branch = name
	}
	if branch == "" {
		branch, _ = b.CurrentBranchOrChange(target)
	}

	commit, _ := commandOutput(target, "hg", "identify", "-i")
	createdAt := time.Now().UTC()
	err = b.registry.update(func(doc *sideDocument) error {
		doc.Workspaces[name] = sideEntry{Path: target, Branch: branch, CreatedAt: createdAt}
		return nil
	})
	if err != nil {
		_ = os.RemoveAll(target)
		return Worktree{}, err
	}

	return Worktree{
		Name:           name,
		Path:           target,
		BranchOrChange: branch,
		Commit:         strings.TrimSuffix(commit, "+"),
		CreatedAt:      createdAt,
	}, nil
}

func (b *MercurialBackend) ListWorkspaces() ([]Worktree, error) {
	doc, err := b.registry.load()
	if err != nil {
		return nil, err
	}
	branch, _ := b.CurrentBranchOrChange(b.repoRoot)
	worktrees := []Worktree{{
		Name:           filepath.Base(b.repoRoot),
		Path:           b.repoRoot,
		BranchOrChange: branch,
	}}
	for name, entry := range doc.Workspaces {
		worktrees = append(worktrees, Worktree{
			Name:           name,
			Path:           entry.Path,
			BranchOrChange: entry.Branch,
			Parent:         entry.Parent,
			CreatedAt:      entry.CreatedAt,
		})
	}
	sortWorktrees(worktrees)
	return worktrees, nil
}

func (b *MercurialBackend) RemoveWorkspace(name string, force bool) error {
	doc, err := b.registry.load()
	if err != nil {
		return err
	}
	entry, ok := doc.Workspaces[name]
	if !ok {
		return fmt.Errorf("workspace %q not found", name)
	}
	if !force {
		dirty, err := b.HasUncommittedChanges(entry.Path)
		if err != nil {
			return err
		}
		if dirty {
			return fmt.Errorf("%w: %s", ErrUncommittedChanges, name)
		}
	}
	// A share is just a working directory pointing at the parent store;
	// removal is deleting the directory.
	if err := os.RemoveAll(entry.Path); err != nil {
		return fmt.Errorf("removing %s: %w", entry.Path, err)
	}
	return b.registry.update(func(doc *sideDocument) error {
		delete(doc.Workspaces, name)
		return nil
	})
}

func (b *MercurialBackend) ParentLink(name string) (string, error) {
	doc, err := b.registry.load()
	if err != nil {
		return "", err
	}
	return doc.Workspaces[name].Parent, nil
}

func (b *MercurialBackend) SetParentLink(name, parent string) error {
	return b.registry.update(func(doc *sideDocument) error {
		entry, ok := doc.Workspaces[name]
		if !ok {
			return fmt.Errorf("workspace %q not found", name)
		}
		entry.Parent = parent
		doc.Workspaces[name] = entry
		return nil
	})
}

func (b *MercurialBackend) CurrentWorkspace() (Worktree, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Worktree{}, err
	}
	worktrees, err := b.ListWorkspaces()
	if err != nil {
		return Worktree{}, err
	}
	return workspaceForDir(worktrees, cwd)
}

func (b *MercurialBackend) CurrentBranchOrChange(path string) (string, error) {
	return commandOutput(path, "hg", "branch")
}

func (b *MercurialBackend) HasUncommittedChanges(path string) (bool, error) {
	out, err := commandOutput(path, "hg", "status", "-q")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}
