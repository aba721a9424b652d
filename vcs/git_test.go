package vcs

import (
	"errors"
	"testing"
)

func TestOpenGitOutsideRepositoryKeepsCause(t *testing.T) {
	if err := toolInstalled("git"); err != nil {
		t.Skip("git not installed")
	}
	_, err := openGit(t.TempDir(), Options{})
	if !errors.Is(err, ErrNotInRepository) {
		t.Fatalf("expected ErrNotInRepository, got %v", err)
	}
	// The git error must survive wrapping so a broken repository is
	// distinguishable from no repository at all.
	if err.Error() == ErrNotInRepository.Error() {
		t.Fatalf("underlying cause dropped: %v", err)
	}
}

func TestParsePorcelainWorktrees(t *testing.T) {
	output := `worktree /home/dev/myapp
HEAD 1234567890abcdef1234567890abcdef12345678
branch refs/heads/main

worktree /home/dev/feature-auth
HEAD abcdef1234567890abcdef1234567890abcdef12
branch refs/heads/feature-auth

worktree /home/dev/experiment
HEAD fedcba0987654321fedcba0987654321fedcba09
detached
`
	worktrees := parsePorcelainWorktrees(output)
	if len(worktrees) != 3 {
		t.Fatalf("expected 3 worktrees, got %d", len(worktrees))
	}
	if worktrees[0].Name != "myapp" || worktrees[0].BranchOrChange != "main" {
		t.Fatalf("unexpected first entry: %+v", worktrees[0])
	}
	if worktrees[1].Path != "/home/dev/feature-auth" {
		t.Fatalf("unexpected path: %s", worktrees[1].Path)
	}
	if worktrees[1].Commit != "abcdef1234567890abcdef1234567890abcdef12" {
		t.Fatalf("unexpected commit: %s", worktrees[1].Commit)
	}
	if worktrees[2].BranchOrChange != "detached" {
		t.Fatalf("detached head should read as detached, got %q", worktrees[2].BranchOrChange)
	}
}

func TestParsePorcelainWorktrees_EmptyAndGarbage(t *testing.T) {
	if got := parsePorcelainWorktrees(""); len(got) != 0 {
		t.Fatalf("empty output should yield nothing, got %v", got)
	}
	// Orphan attribute lines before any worktree stanza are ignored.
	got := parsePorcelainWorktrees("branch refs/heads/stray\nHEAD abc\n")
	if len(got) != 0 {
		t.Fatalf("stray lines should be dropped, got %v", got)
	}
}

func TestShortBranch(t *testing.T) {
	cases := map[string]string{
		"refs/heads/main":       "main",
		"refs/heads/feat/x":     "feat/x",
		" refs/heads/trimmed  ": "trimmed",
		"":                      "detached",
	}
	for in, want := range cases {
		if got := shortBranch(in); got != want {
			t.Fatalf("shortBranch(%q) = %q, want %q", in, got, want)
		}
	}
}
