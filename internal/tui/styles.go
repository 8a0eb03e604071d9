package tui

import "github.com/charmbracelet/lipgloss"

// Color palette - keeping it minimal and accessible.
var (
	ColorPrimary   = lipgloss.Color("39")  // Blue
	ColorSecondary = lipgloss.Color("245") // Gray
	ColorWarning   = lipgloss.Color("214") // Orange
)

var (
	SpinnerStyle = lipgloss.NewStyle().Foreground(ColorPrimary)

	MessageStyle = lipgloss.NewStyle().Foreground(ColorSecondary)

	CountdownStyle = lipgloss.NewStyle().
			Foreground(ColorWarning).
			Bold(true)
)
