package ui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	userLabelStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	assistantLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	timeStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userTextStyle       = lipgloss.NewStyle().PaddingLeft(2)
	pendingStyle        = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("7"))

	controlStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("14"))
	focusedStyle = lipgloss.NewStyle().PaddingLeft(2).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("14"))

	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
	panelTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	panelLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(lipgloss.Color("8"))
)
