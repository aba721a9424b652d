package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/mrowan/hutch/ui"
)

var (
	headerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true)
	normalStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("251"))
	selectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	secondaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	branchStyle    = lipgloss.NewStyle().Bold(true)
)

// viewStyles adapts the lipgloss styles to the ui package, dropping to
// plain text when the terminal reports no color support.
func viewStyles() ui.Styles {
	if termenv.EnvColorProfile() == termenv.Ascii {
		return ui.Plain()
	}
	return ui.Styles{
		Header:    func(s string) string { return headerStyle.Render(s) },
		Normal:    func(s string) string { return normalStyle.Render(s) },
		Selected:  func(s string) string { return selectedStyle.Render(s) },
		Secondary: func(s string) string { return secondaryStyle.Render(s) },
		Branch:    func(s string) string { return branchStyle.Render(s) },
	}
}
