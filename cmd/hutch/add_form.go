package main

import (
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/mrowan/hutch/orchestrator"
	"github.com/mrowan/hutch/vcs"
)

const (
	addNameKey     = "add_name"
	addFromRefKey  = "add_from_ref"
	addNoBranchKey = "add_no_branch"
)

func hutchHuhTheme() *huh.Theme {
	t := *huh.ThemeCharm()
	t.Focused.Title = t.Focused.Title.Foreground(lipgloss.Color("#7D56F4"))
	return &t
}

// runAddForm fills the creation request interactively when add is called
// without a name.
func runAddForm(req *orchestrator.CreateRequest) error {
	nameInput := huh.NewInput().
		Key(addNameKey).
		Title("Worktree name").
		Inline(true).
		Value(&req.Name).
		Validate(vcs.ValidateName)

	fromInput := huh.NewInput().
		Key(addFromRefKey).
		Title("Base ref (blank for current)").
		Inline(true).
		Value(&req.FromRef)

	existingConfirm := huh.NewConfirm().
		Key(addNoBranchKey).
		Title("Check out an existing branch?").
		Affirmative("Yes").
		Negative("No").
		Inline(true).
		Value(&req.CheckoutExisting)

	form := huh.NewForm(
		huh.NewGroup(nameInput, fromInput, existingConfirm),
	).
		WithTheme(hutchHuhTheme()).
		WithShowHelp(false)
	return form.Run()
}
