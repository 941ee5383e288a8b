// Package ui renders device listings for the terminal and prompts for a
// device when several match.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)
)

// Plain disables colors, for piped output and tests.
func Plain() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// OK renders a success marker.
func OK(s string) string { return successStyle.Render(s) }

// Fail renders a failure marker.
func Fail(s string) string { return errorStyle.Render(s) }
