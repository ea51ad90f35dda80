package components

import "github.com/charmbracelet/lipgloss"

var (
	TitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("63")).
		MarginBottom(1)

	SubtitleStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244")).
		MarginBottom(1)

	ApprovedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	PendingStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	SelectedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("252")).
		Background(lipgloss.Color("236")).
		Bold(true)

	KeyHintStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))
)
