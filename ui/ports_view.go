package ui

import (
	"strconv"
	"strings"
)

type PortRow struct {
	Worktree string
	Service  string
	Port     int
}

func RenderPortTable(rows []PortRow, styles Styles) string {
	const (
		worktreeWidth = 28
		serviceWidth  = 16
		portWidth     = 6
	)
	var b strings.Builder
	header := formatPortLine("Worktree", "Service", "Port", worktreeWidth, serviceWidth, portWidth)
	b.WriteString(styles.Header("  " + header))
	b.WriteString("\n")
	if len(rows) == 0 {
		b.WriteString("  ")
		b.WriteString(styles.Secondary("No allocations."))
		b.WriteString("\n")
		return b.String()
	}
	for _, row := range rows {
		line := formatPortLine(row.Worktree, row.Service, strconv.Itoa(row.Port), worktreeWidth, serviceWidth, portWidth)
		b.WriteString("  " + styles.Normal(line))
		b.WriteString("\n")
	}
	return b.String()
}

func formatPortLine(worktree string, service string, port string, worktreeWidth int, serviceWidth int, portWidth int) string {
	return PadOrTrim(worktree, worktreeWidth) + " " +
		PadOrTrim(service, serviceWidth) + " " +
		PadOrTrim(port, portWidth)
}
