package vcs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// JujutsuBackend drives native `jj workspace` commands. Workspace
// enumeration comes from jj itself; parent links and creation timestamps
// live in a JSON side registry because jj has no per-workspace metadata
// slot.
type JujutsuBackend struct {
	repoRoot    string
	worktreeDir string
	registry    *sideRegistry
}

func openJujutsu(dir string, opts Options) (*JujutsuBackend, error) {
	if err := toolInstalled("jj"); err != nil {
		return nil, err
	}
	root, err := discoverRoot(dir, ".jj")
	if err != nil {
		return nil, err
	}
	worktreeDir := strings.TrimSpace(opts.WorktreeDir)
	if worktreeDir == "" {
		worktreeDir = filepath.Dir(root)
	}
	return &JujutsuBackend{
		repoRoot:    root,
		worktreeDir: worktreeDir,
		registry:    newSideRegistry(filepath.Join(root, ".jj", "hutch-workspaces.json")),
	}, nil
}

func (b *JujutsuBackend) Type() Type       { return TypeJujutsu }
func (b *JujutsuBackend) RepoRoot() string { return b.repoRoot }

func (b *JujutsuBackend) CreateWorkspace(opts CreateOptions) (Worktree, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return Worktree{}, errors.New("workspace name required")
	}
	target := filepath.Join(b.worktreeDir, name)
	if _, err := os.Stat(target); err == nil {
		return Worktree{}, &ExistsError{Name: name}
	}

	fromRef := strings.TrimSpace(opts.FromRef)
	if fromRef != "" {
		if _, err := commandOutput(b.repoRoot, "jj", "log", "-r", fromRef, "--no-graph", "-T", "change_id"); err != nil {
			return Worktree{}, &RefError{Ref: fromRef}
		}
	}

	args := []string{"workspace", "add", "--name", name}
	if fromRef != "" {
		args = append(args, "--revision", fromRef)
	}
	args = append(args, target)
	if _, err := commandOutput(b.repoRoot, "jj", args...); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return Worktree{}, &ExistsError{Name: name}
		}
		return Worktree{}, fmt.Errorf("jj workspace add: %w", err)
	}

	change, _ := b.CurrentBranchOrChange(target)
	createdAt := time.Now().UTC()
	err := b.registry.update(func(doc *sideDocument) error {
		doc.Workspaces[name] = sideEntry{Path: target, CreatedAt: createdAt}
		return nil
	})
	if err != nil {
		return Worktree{}, err
	}

	return Worktree{
		Name:           name,
		Path:           target,
		BranchOrChange: change,
		Commit:         change,
		CreatedAt:      createdAt,
	}, nil
}

func (b *JujutsuBackend) ListWorkspaces() ([]Worktree, error) {
	out, err := commandOutput(b.repoRoot, "jj", "workspace", "list")
	if err != nil {
		return nil, fmt.Errorf("jj workspace list: %w", err)
	}
	doc, err := b.registry.load()
	if err != nil {
		return nil, err
	}

	var worktrees []Worktree
	for name, path := range parseJJWorkspaceListMap(out) {
		change, _ := b.CurrentBranchOrChange(path)
		wt := Worktree{
			Name:           name,
			Path:           path,
			BranchOrChange: change,
			Commit:         change,
		}
		if meta, ok := doc.Workspaces[name]; ok {
			wt.Parent = meta.Parent
			wt.CreatedAt = meta.CreatedAt
		}
		worktrees = append(worktrees, wt)
	}
	sortWorktrees(worktrees)
	return worktrees, nil
}

// parseJJWorkspaceListMap parses "name: path" lines.
func parseJJWorkspaceListMap(output string) map[string]string {
	workspaces := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		path := strings.TrimSpace(parts[1])
		if name == "" || path == "" {
			continue
		}
		workspaces[name] = path
	}
	return workspaces
}

func (b *JujutsuBackend) RemoveWorkspace(name string, force bool) error {
	workspaces, err := b.ListWorkspaces()
	if err != nil {
		return err
	}
	var target *Worktree
	for i := range workspaces {
		if workspaces[i].Name == name {
			target = &workspaces[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("workspace %q not found", name)
	}
	if name == "default" {
		return fmt.Errorf("%w: the default workspace cannot be removed", ErrHasDependents)
	}
	if !force {
		dirty, err := b.HasUncommittedChanges(target.Path)
		if err != nil {
			return err
		}
		if dirty {
			return fmt.Errorf("%w: %s", ErrUncommittedChanges, name)
		}
	}
	if _, err := commandOutput(b.repoRoot, "jj", "workspace", "forget", name); err != nil {
		return fmt.Errorf("jj workspace forget: %w", err)
	}
	if err := os.RemoveAll(target.Path); err != nil {
		return fmt.Errorf("removing %s: %w", target.Path, err)
	}
	return b.registry.update(func(doc *sideDocument) error {
		delete(doc.Workspaces, name)
		return nil
	})
}

func (b *JujutsuBackend) ParentLink(name string) (string, error) {
	doc, err := b.registry.load()
	if err != nil {
		return "", err
	}
	return doc.Workspaces[name].Parent, nil
}

func (b *JujutsuBackend) SetParentLink(name, parent string) error {
	return b.registry.update(func(doc *sideDocument) error {
		entry := doc.Workspaces[name]
		entry.Parent = parent
		doc.Workspaces[name] = entry
		return nil
	})
}

func (b *JujutsuBackend) CurrentWorkspace() (Worktree, error) {
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

func (b *JujutsuBackend) CurrentBranchOrChange(path string) (string, error) {
	return commandOutput(path, "jj", "log", "-r", "@", "--no-graph", "-T", "change_id")
}

func (b *JujutsuBackend) HasUncommittedChanges(path string) (bool, error) {
	// jj snapshots the working copy automatically; "dirty" means the
	// current change has content.
	out, err := commandOutput(path, "jj", "diff", "--summary")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// SetupSparseCheckout implements the optional SparseCheckouter extension
// via `jj sparse set`.
func (b *JujutsuBackend) SetupSparseCheckout(worktreePath string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := []string{"sparse", "set"}
	for _, p := range paths {
		args = append(args, "--add", p)
	}
	if _, err := commandOutput(worktreePath, "jj", args...); err != nil {
		return fmt.Errorf("jj sparse set: %w", err)
	}
	return nil
}
