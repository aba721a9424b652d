package vcs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// GitBackend drives git worktrees. Worktree lifecycle goes through the git
// binary because go-git's linked-worktree support is incomplete; ref
// resolution and repository configuration use go-git in-process.
type GitBackend struct {
	repoRoot    string
	worktreeDir string
	repo        *git.Repository
}

const gitConfigSection = "hutch"

func openGit(dir string, opts Options) (*GitBackend, error) {
	if err := toolInstalled("git"); err != nil {
		return nil, err
	}
	root, err := commandOutput(dir, "git", "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotInRepository, err)
	}
	if strings.TrimSpace(root) == "" {
		return nil, ErrNotInRepository
	}
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotInRepository, err)
	}
	worktreeDir := strings.TrimSpace(opts.WorktreeDir)
	if worktreeDir == "" {
		worktreeDir = filepath.Dir(root)
	}
	return &GitBackend{repoRoot: root, worktreeDir: worktreeDir, repo: repo}, nil
}

func (b *GitBackend) Type() Type       { return TypeGit }
func (b *GitBackend) RepoRoot() string { return b.repoRoot }

func (b *GitBackend) CreateWorkspace(opts CreateOptions) (Worktree, error) {
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
		if _, err := b.repo.ResolveRevision(plumbing.Revision(fromRef)); err != nil {
			return Worktree{}, &RefError{Ref: fromRef}
		}
	}

	args := []string{"worktree", "add"}
	branch := name
	if opts.CheckoutExisting {
		if fromRef != "" {
			branch = fromRef
		}
		if _, err := b.repo.ResolveRevision(plumbing.Revision(branch)); err != nil {
			return Worktree{}, &RefError{Ref: branch}
		}
		args = append(args, target, branch)
	} else {
		args = append(args, "-b", name, target)
		if fromRef != "" {
			args = append(args, fromRef)
		}
	}

	if _, err := commandOutput(b.repoRoot, "git", args...); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return Worktree{}, &ExistsError{Name: name}
		}
		return Worktree{}, fmt.Errorf("git worktree add: %w", err)
	}

	createdAt := time.Now().UTC()
	if err := b.setWorkspaceOption(name, "created", createdAt.Format(time.RFC3339)); err != nil {
		return Worktree{}, err
	}

	commit, _ := commandOutput(target, "git", "rev-parse", "HEAD")
	return Worktree{
		Name:           name,
		Path:           target,
		BranchOrChange: branch,
		Commit:         commit,
		CreatedAt:      createdAt,
	}, nil
}

func (b *GitBackend) ListWorkspaces() ([]Worktree, error) {
	out, err := commandOutput(b.repoRoot, "git", "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git worktree list: %w", err)
	}
	worktrees := parsePorcelainWorktrees(out)
	for i := range worktrees {
		worktrees[i].Parent, _ = b.ParentLink(worktrees[i].Name)
		worktrees[i].CreatedAt = b.createdAt(worktrees[i].Name)
	}
	return worktrees, nil
}

func parsePorcelainWorktrees(output string) []Worktree {
	var worktrees []Worktree
	var current *Worktree
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "worktree "):
			path := strings.TrimSpace(strings.TrimPrefix(line, "worktree "))
			worktrees = append(worktrees, Worktree{Name: filepath.Base(path), Path: path})
			current = &worktrees[len(worktrees)-1]
		case strings.HasPrefix(line, "HEAD "):
			if current != nil {
				current.Commit = strings.TrimSpace(strings.TrimPrefix(line, "HEAD "))
			}
		case strings.HasPrefix(line, "branch "):
			if current != nil {
				current.BranchOrChange = shortBranch(strings.TrimPrefix(line, "branch "))
			}
		case line == "detached":
			if current != nil && current.BranchOrChange == "" {
				current.BranchOrChange = "detached"
			}
		}
	}
	for i := range worktrees {
		if worktrees[i].BranchOrChange == "" {
			worktrees[i].BranchOrChange = "detached"
		}
	}
	return worktrees
}

func shortBranch(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "refs/heads/")
	if value == "" {
		return "detached"
	}
	return value
}

func (b *GitBackend) RemoveWorkspace(name string, force bool) error {
	wt, err := b.workspaceByName(name)
	if err != nil {
		return err
	}
	if !force {
		dirty, err := b.HasUncommittedChanges(wt.Path)
		if err != nil {
			return err
		}
		if dirty {
			return fmt.Errorf("%w: %s", ErrUncommittedChanges, name)
		}
	}
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, wt.Path)
	if _, err := commandOutput(b.repoRoot, "git", args...); err != nil {
		msg := err.Error()
		if strings.Contains(msg, "is a main working tree") {
			return fmt.Errorf("%w: %s is the main checkout", ErrHasDependents, name)
		}
		if strings.Contains(msg, "contains modified or untracked files") {
			return fmt.Errorf("%w: %s", ErrUncommittedChanges, name)
		}
		return fmt.Errorf("git worktree remove: %w", err)
	}
	return b.dropWorkspaceOptions(name)
}

// Parent links live in the repository's local git configuration under
// hutch.<name>.parent, never inside tracked content.
func (b *GitBackend) ParentLink(name string) (string, error) {
	return b.workspaceOption(name, "parent")
}

func (b *GitBackend) SetParentLink(name, parent string) error {
	return b.setWorkspaceOption(name, "parent", parent)
}

func (b *GitBackend) CurrentWorkspace() (Worktree, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Worktree{}, err
	}
	return b.WorkspaceForDir(cwd)
}

// WorkspaceForDir finds the workspace whose path encloses dir.
func (b *GitBackend) WorkspaceForDir(dir string) (Worktree, error) {
	worktrees, err := b.ListWorkspaces()
	if err != nil {
		return Worktree{}, err
	}
	return workspaceForDir(worktrees, dir)
}

func (b *GitBackend) CurrentBranchOrChange(path string) (string, error) {
	out, err := commandOutput(path, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if out == "HEAD" {
		return "detached", nil
	}
	return out, nil
}

func (b *GitBackend) HasUncommittedChanges(path string) (bool, error) {
	out, err := commandOutput(path, "git", "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// SetupSparseCheckout implements the optional SparseCheckouter extension.
func (b *GitBackend) SetupSparseCheckout(worktreePath string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if _, err := commandOutput(worktreePath, "git", "sparse-checkout", "init", "--cone"); err != nil {
		return fmt.Errorf("git sparse-checkout init: %w", err)
	}
	args := append([]string{"sparse-checkout", "set"}, paths...)
	if _, err := commandOutput(worktreePath, "git", args...); err != nil {
		return fmt.Errorf("git sparse-checkout set: %w", err)
	}
	return nil
}

func (b *GitBackend) workspaceByName(name string) (Worktree, error) {
	worktrees, err := b.ListWorkspaces()
	if err != nil {
		return Worktree{}, err
	}
	for _, wt := range worktrees {
		if wt.Name == name {
			return wt, nil
		}
	}
	return Worktree{}, fmt.Errorf("workspace %q not found", name)
}

func (b *GitBackend) workspaceOption(name, key string) (string, error) {
	cfg, err := b.repo.Config()
	if err != nil {
		return "", err
	}
	sec := cfg.Raw.Section(gitConfigSection)
	if !sec.HasSubsection(name) {
		return "", nil
	}
	return strings.TrimSpace(sec.Subsection(name).Option(key)), nil
}

func (b *GitBackend) setWorkspaceOption(name, key, value string) error {
	cfg, err := b.repo.Config()
	if err != nil {
		return err
	}
	cfg.Raw.Section(gitConfigSection).Subsection(name).SetOption(key, value)
	return b.repo.SetConfig(cfg)
}

func (b *GitBackend) dropWorkspaceOptions(name string) error {
	cfg, err := b.repo.Config()
	if err != nil {
		return err
	}
	sec := cfg.Raw.Section(gitConfigSection)
	if !sec.HasSubsection(name) {
		return nil
	}
	sec.RemoveSubsection(name)
	return b.repo.SetConfig(cfg)
}

func (b *GitBackend) createdAt(name string) time.Time {
	raw, err := b.workspaceOption(name, "created")
	if err != nil || raw == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}
