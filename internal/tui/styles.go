package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors taken from Catppuccin Mocha palette
	primaryColor   = lipgloss.Color("#89b4fa")
	secondaryColor = lipgloss.Color("#a6e3a1")
	dangerColor    = lipgloss.Color("#f38ba8")
	warnColor      = lipgloss.Color("#fab387")
	mutedColor     = lipgloss.Color("#6c7086")
	textColor      = lipgloss.Color("#f5e0dc")
	bgColor        = lipgloss.Color("#1e1e2e")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(textColor).
			Background(primaryColor).
			Padding(0, 1)

	normalStyle = lipgloss.NewStyle().
			Foreground(textColor).
			Padding(0, 1)

	completedStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Strikethrough(true).
			Padding(0, 1)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	successStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(dangerColor)

	warnStyle = lipgloss.NewStyle().
			Foreground(warnColor)

	completeActionStyle = lipgloss.NewStyle().
				Foreground(bgColor).
				Background(secondaryColor).
				Padding(0, 1)

	deleteActionStyle = lipgloss.NewStyle().
				Foreground(bgColor).
				Background(dangerColor).
				Padding(0, 1)

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	focusedInputStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(primaryColor).
				Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	logoStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)
)

const logo = `
     _                 _ _     _
 ___| |__   ___  _ __ | (_)___| |_
/ __| '_ \ / _ \| '_ \| | / __| __|
\__ \ | | | (_) | |_) | | \__ \ |_
|___/_| |_|\___/| .__/|_|_|___/\__|
                |_|
`
