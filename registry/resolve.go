package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrAmbiguousMatch and ErrNotFound are the resolution failure kinds.
var (
	ErrAmbiguousMatch = errors.New("ambiguous worktree name")
	ErrNotFound       = errors.New("worktree not found")
)

// AmbiguousMatchError lists every candidate produced by the rule that
// matched; resolution never falls through once a rule yields matches.
type AmbiguousMatchError struct {
	Query      string
	Candidates []string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("%q matches multiple worktrees: %s", e.Query, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousMatchError) Is(target error) bool {
	return target == ErrAmbiguousMatch
}

// NotFoundError carries cosmetic near-miss suggestions for display.
type NotFoundError struct {
	Query       string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("worktree %q not found", e.Query)
	}
	return fmt.Sprintf("worktree %q not found (did you mean %s?)", e.Query, strings.Join(e.Suggestions, ", "))
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Resolve maps a user-typed query to exactly one worktree name. Rules are
// tried in strict priority order and the first rule yielding any match is
// final:
//
//  1. exact, case-sensitive
//  2. exact, case-insensitive
//  3. case-insensitive substring
//
// A rule with two or more matches fails with AmbiguousMatchError rather
// than falling through to a looser rule.
func (r *Registry) Resolve(query string) (string, error) {
	names := r.Names()

	for _, name := range names {
		if name == query {
			return name, nil
		}
	}

	folded := matchingNames(names, func(name string) bool {
		return strings.EqualFold(name, query)
	})
	if len(folded) == 1 {
		return folded[0], nil
	}
	if len(folded) > 1 {
		return "", &AmbiguousMatchError{Query: query, Candidates: folded}
	}

	queryLower := strings.ToLower(query)
	substrings := matchingNames(names, func(name string) bool {
		return strings.Contains(strings.ToLower(name), queryLower)
	})
	if len(substrings) == 1 {
		return substrings[0], nil
	}
	if len(substrings) > 1 {
		return "", &AmbiguousMatchError{Query: query, Candidates: substrings}
	}

	return "", &NotFoundError{Query: query, Suggestions: suggestNames(query, names)}
}

func matchingNames(names []string, match func(string) bool) []string {
	var out []string
	for _, name := range names {
		if match(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
