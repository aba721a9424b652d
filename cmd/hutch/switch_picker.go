package main

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mrowan/hutch/vcs"
)

// switchModel is the interactive worktree picker behind `hutch switch`.
// Typing filters by case-insensitive substring; enter confirms.
type switchModel struct {
	worktrees []vcs.Worktree
	filter    textinput.Model
	index     int
	chosen    string
}

func newSwitchPicker(worktrees []vcs.Worktree) switchModel {
	filter := textinput.New()
	filter.Placeholder = "filter"
	filter.Focus()
	return switchModel{worktrees: worktrees, filter: filter}
}

func (m switchModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m switchModel) visible() []vcs.Worktree {
	query := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	if query == "" {
		return m.worktrees
	}
	var out []vcs.Worktree
	for _, wt := range m.worktrees {
		if strings.Contains(strings.ToLower(wt.Name), query) {
			out = append(out, wt)
		}
	}
	return out
}

func (m switchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEsc, tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyUp:
			if m.index > 0 {
				m.index--
			}
			return m, nil
		case tea.KeyDown:
			if m.index < len(m.visible())-1 {
				m.index++
			}
			return m, nil
		case tea.KeyEnter:
			visible := m.visible()
			if len(visible) > 0 && m.index < len(visible) {
				m.chosen = visible[m.index].Name
			}
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	if m.index >= len(m.visible()) {
		m.index = 0
	}
	return m, cmd
}

func (m switchModel) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Switch to worktree"))
	b.WriteString("\n")
	b.WriteString(m.filter.View())
	b.WriteString("\n\n")
	visible := m.visible()
	if len(visible) == 0 {
		b.WriteString(secondaryStyle.Render("No matching worktrees."))
		b.WriteString("\n")
		return b.String()
	}
	for i, wt := range visible {
		label := wt.Name
		if wt.BranchOrChange != "" && wt.BranchOrChange != wt.Name {
			label += " (" + wt.BranchOrChange + ")"
		}
		if i == m.index {
			b.WriteString("> " + selectedStyle.Render(label))
		} else {
			b.WriteString("  " + normalStyle.Render(label))
		}
		b.WriteString("\n")
	}
	return b.String()
}
