package tui

import "github.com/charmbracelet/lipgloss"

// Color constants shared by the choosers.
const (
	primaryColor = "#7C3AED" // Purple
	dimColor     = "#6B7280" // Gray
	errorColor   = "#EF4444" // Red
)

var (
	// TitleStyle renders titles in primary color with bold.
	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(primaryColor)).
			Bold(true)

	// DimStyle renders dim/muted text.
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(dimColor))

	// ErrorStyle renders error messages in red.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(errorColor))
)
