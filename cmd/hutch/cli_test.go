package main

import (
	"reflect"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mrowan/hutch/registry"
	"github.com/mrowan/hutch/vcs"
)

func TestRootCommandWiresSubcommands(t *testing.T) {
	root := newRootCommand([]string{"hutch"})
	want := map[string]bool{
		"add": true, "list": true, "tree": true, "remove": true,
		"switch": true, "info": true, "ports": true, "prune": true,
	}
	for _, cmd := range root.Commands() {
		delete(want, cmd.Name())
	}
	for name := range want {
		t.Fatalf("subcommand %q not registered", name)
	}
}

func TestSortedKeys(t *testing.T) {
	got := sortedKeys(map[string]int{"redis": 1, "app": 2, "postgres": 3})
	if !reflect.DeepEqual(got, []string{"app", "postgres", "redis"}) {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestToTreeNodesPreservesShape(t *testing.T) {
	roots := []*registry.Node{
		{Name: "main", Children: []*registry.Node{{Name: "feature-auth"}}},
	}
	nodes := toTreeNodes(roots)
	if len(nodes) != 1 || nodes[0].Label != "main" {
		t.Fatalf("unexpected roots: %+v", nodes)
	}
	if len(nodes[0].Children) != 1 || nodes[0].Children[0].Label != "feature-auth" {
		t.Fatalf("unexpected children: %+v", nodes[0].Children)
	}
}

func TestSwitchPickerFiltersAndSelects(t *testing.T) {
	picker := newSwitchPicker([]vcs.Worktree{
		{Name: "main"},
		{Name: "feature-auth"},
		{Name: "feature-billing"},
	})

	model := tea.Model(picker)
	for _, r := range "auth" {
		model, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	visible := model.(switchModel).visible()
	if len(visible) != 1 || visible[0].Name != "feature-auth" {
		t.Fatalf("unexpected filter result: %v", visible)
	}

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if got := model.(switchModel).chosen; got != "feature-auth" {
		t.Fatalf("unexpected selection: %q", got)
	}
}

func TestSwitchPickerEscChoosesNothing(t *testing.T) {
	picker := newSwitchPicker([]vcs.Worktree{{Name: "main"}})
	model, _ := tea.Model(picker).Update(tea.KeyMsg{Type: tea.KeyEsc})
	if got := model.(switchModel).chosen; got != "" {
		t.Fatalf("esc must not choose, got %q", got)
	}
}
