// Package ui renders worktree listings, the parent/child tree, and port
// tables as plain strings. Styling is injected so the package stays free
// of terminal dependencies.
package ui

import "strings"

type WorktreeRow struct {
	Name     string
	Branch   string
	Path     string
	Current  bool
	PortInfo string
}

func RenderWorktreeList(rows []WorktreeRow, styles Styles) string {
	const (
		nameWidth   = 28
		branchWidth = 28
		portsWidth  = 24
	)
	var b strings.Builder
	header := formatWorktreeLine("Name", "Branch", "Ports", "Path", nameWidth, branchWidth, portsWidth)
	b.WriteString(styles.Header("  " + header))
	b.WriteString("\n")
	for _, row := range rows {
		line := formatWorktreeLine(row.Name, row.Branch, row.PortInfo, row.Path, nameWidth, branchWidth, portsWidth)
		if row.Current {
			b.WriteString("* " + styles.Selected(line))
		} else {
			b.WriteString("  " + styles.Normal(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatWorktreeLine(name string, branch string, ports string, path string, nameWidth int, branchWidth int, portsWidth int) string {
	return PadOrTrim(name, nameWidth) + " " +
		PadOrTrim(branch, branchWidth) + " " +
		PadOrTrim(ports, portsWidth) + " " +
		path
}

// TreeNode is one worktree in the rendered forest.
type TreeNode struct {
	Label    string
	Children []*TreeNode
}

// RenderTree draws the forest with box-drawing connectors, one root per
// top-level block.
func RenderTree(roots []*TreeNode, styles Styles) string {
	var b strings.Builder
	for _, root := range roots {
		b.WriteString(styles.Branch(root.Label))
		b.WriteString("\n")
		renderChildren(&b, root.Children, "", styles)
	}
	return b.String()
}

func renderChildren(b *strings.Builder, children []*TreeNode, prefix string, styles Styles) {
	for i, child := range children {
		connector, childPrefix := "├── ", prefix+"│   "
		if i == len(children)-1 {
			connector, childPrefix = "└── ", prefix+"    "
		}
		b.WriteString(styles.Secondary(prefix + connector))
		b.WriteString(styles.Normal(child.Label))
		b.WriteString("\n")
		renderChildren(b, child.Children, childPrefix, styles)
	}
}
