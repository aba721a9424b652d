package vcs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRefNotFound means the requested base ref did not resolve.
	ErrRefNotFound = errors.New("ref not found")
	// ErrAlreadyExists means a workspace with the requested name exists.
	ErrAlreadyExists = errors.New("workspace already exists")
	// ErrUncommittedChanges blocks a non-forced removal of a dirty workspace.
	ErrUncommittedChanges = errors.New("workspace has uncommitted changes")
	// ErrHasDependents means the tool's own model forbids removal while
	// something still references the workspace.
	ErrHasDependents = errors.New("workspace has dependents")
	// ErrNotInRepository means no repository encloses the probe directory.
	ErrNotInRepository = errors.New("not in a repository")
)

// NotDetectedError reports that no supported tool's marker directory was
// found. Probed lists every location that was checked.
type NotDetectedError struct {
	Dir    string
	Probed []string
}

func (e *NotDetectedError) Error() string {
	return fmt.Sprintf("no VCS detected in %s (checked %s)", e.Dir, strings.Join(e.Probed, ", "))
}

// RefError wraps ErrRefNotFound with the unresolved ref name.
type RefError struct {
	Ref string
}

func (e *RefError) Error() string {
	return fmt.Sprintf("ref %q not found", e.Ref)
}

func (e *RefError) Is(target error) bool {
	return target == ErrRefNotFound
}

// ExistsError wraps ErrAlreadyExists with the colliding workspace name.
type ExistsError struct {
	Name string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("workspace %q already exists", e.Name)
}

func (e *ExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}
