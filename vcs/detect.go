package vcs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Type identifies a supported version control tool.
type Type string

const (
	TypeGit       Type = "git"
	TypeMercurial Type = "mercurial"
	TypeJujutsu   Type = "jujutsu"
)

// ParseType parses a --vcs style override. Accepts short aliases.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "git":
		return TypeGit, nil
	case "hg", "mercurial":
		return TypeMercurial, nil
	case "jj", "jujutsu":
		return TypeJujutsu, nil
	default:
		return "", fmt.Errorf("invalid VCS type: %s", s)
	}
}

func (t Type) String() string { return string(t) }

// markerFor returns the tool's repository marker directory.
func markerFor(t Type) string {
	switch t {
	case TypeJujutsu:
		return ".jj"
	case TypeGit:
		return ".git"
	case TypeMercurial:
		return ".hg"
	}
	return ""
}

// detectionOrder checks the most specific tool first: a jujutsu repo
// usually colocates a .git directory, so .jj must win ties.
var detectionOrder = []Type{TypeJujutsu, TypeGit, TypeMercurial}

// Detect walks from dir toward the filesystem root probing for each tool's
// marker directory. The first marker found at the nearest level wins.
func Detect(dir string) (Type, string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", "", err
	}
	current := abs
	for {
		for _, t := range detectionOrder {
			marker := filepath.Join(current, markerFor(t))
			if _, err := os.Stat(marker); err == nil {
				return t, current, nil
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	probed := make([]string, 0, len(detectionOrder))
	for _, t := range detectionOrder {
		probed = append(probed, filepath.Join(abs, markerFor(t)))
	}
	return "", "", &NotDetectedError{Dir: abs, Probed: probed}
}

// Options configure backend construction.
type Options struct {
	// WorktreeDir is the directory new workspaces are created under.
	// Empty means the repository root's parent directory.
	WorktreeDir string
}

// NewBackend constructs the backend for an explicitly chosen tool rooted at
// the repository enclosing dir.
func NewBackend(t Type, dir string, opts Options) (Backend, error) {
	switch t {
	case TypeGit:
		return openGit(dir, opts)
	case TypeMercurial:
		return openMercurial(dir, opts)
	case TypeJujutsu:
		return openJujutsu(dir, opts)
	default:
		return nil, fmt.Errorf("invalid VCS type: %s", t)
	}
}

// DetectBackend auto-detects the tool for dir and constructs its backend.
func DetectBackend(dir string, opts Options) (Backend, error) {
	t, root, err := Detect(dir)
	if err != nil {
		return nil, err
	}
	return NewBackend(t, root, opts)
}
