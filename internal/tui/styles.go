package tui

import "github.com/charmbracelet/lipgloss"

type Styles struct {
	Title    lipgloss.Style
	Subtle   lipgloss.Style
	Selected lipgloss.Style
	Item     lipgloss.Style
	Ready    lipgloss.Style
	Busy     lipgloss.Style
	Failed   lipgloss.Style
	Guidance lipgloss.Style
	Error    lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).MarginBottom(1),
		Subtle:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		Item:     lipgloss.NewStyle().PaddingLeft(2),
		Ready:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Busy:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Failed:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Guidance: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1).MarginTop(1),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
}
