package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

var (
	keyword   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Render
	paragraph = lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2).Render

	faint   = lipgloss.NewStyle().Faint(true).Render
	success = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true).Render
	failure = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true).Render
	index   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Width(6).Align(lipgloss.Right).Render
)

// outputWidth is the terminal width, or 80 when stdout is not a terminal.
func outputWidth() int {
	fd := int(os.Stdout.Fd()) //nolint:gosec
	if term.IsTerminal(fd) {
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			return min(w, 120)
		}
	}
	return 80
}

// preview renders text on one line, truncated to width cells. CJK characters
// count as two cells.
func preview(text string, width int) string {
	b := make([]rune, 0, len(text))
	for _, r := range text {
		switch r {
		case '\n':
			b = append(b, '⏎')
		case '\t', '\r':
			b = append(b, ' ')
		default:
			b = append(b, r)
		}
	}
	if width < 4 {
		width = 4
	}
	return runewidth.Truncate(string(b), width, "…")
}
