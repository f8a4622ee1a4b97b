package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	keywordStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#1a8577", Dark: "#5AF7B0"})

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "243", Dark: "241"})

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#D2356B", Dark: "#FF6AA2"})

	paragraphStyle = lipgloss.NewStyle().Margin(1, 0, 0, 2)
)

// keyword highlights a word in help text.
func keyword(s string) string {
	return keywordStyle.Render(s)
}

func dim(s string) string {
	return dimStyle.Render(s)
}

// paragraph wraps and indents a block of help text to the terminal width.
func paragraph(s string) string {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && w < width {
		width = w
	}
	return paragraphStyle.Render(wordwrap.String(s, width-4)) + "\n"
}

func init() {
	// Respect NO_COLOR and dumb terminals.
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}
