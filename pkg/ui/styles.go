package ui

import "github.com/charmbracelet/lipgloss"

var (
	botStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Strikethrough(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	optionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("36"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)
)
