package tui

import "github.com/charmbracelet/lipgloss"

var (
	Base     = lipgloss.Color("#1e1e2e")
	Mantle   = lipgloss.Color("#181825")
	Surface1 = lipgloss.Color("#45475a")
	Text     = lipgloss.Color("#cdd6f4")
	Subtext0 = lipgloss.Color("#a6adc8")
	Sapphire = lipgloss.Color("#74c7ec")
	Green    = lipgloss.Color("#a6e3a1")
	Peach    = lipgloss.Color("#fab387")
	Red      = lipgloss.Color("#f38ba8")

	appStyle = lipgloss.NewStyle().
		Foreground(Text).
		Padding(1, 2)

	// Frame border: green while the user is in frame, peach otherwise.
	frameStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Peach).
		Background(Mantle).
		Padding(1, 2)

	frameInStyle = frameStyle.BorderForeground(Green)

	titleStyle = lipgloss.NewStyle().Foreground(Sapphire).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(Subtext0)
	hintStyle  = lipgloss.NewStyle().Foreground(Peach).Bold(true)
	doneStyle  = lipgloss.NewStyle().Foreground(Green).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(Red).Bold(true)

	actionStyle = lipgloss.NewStyle().
		Foreground(Base).
		Background(Green).
		Bold(true).
		Padding(0, 2)
)
