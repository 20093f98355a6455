package kiosk

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))

	badgeFrame = lipgloss.NewStyle().
			Padding(0, 1).
			Background(lipgloss.Color("238")).
			Foreground(lipgloss.Color("252"))
	readyBadge = lipgloss.NewStyle().Padding(0, 1).Bold(true).
			Background(lipgloss.Color("28")).Foreground(lipgloss.Color("15"))
	busyBadge = lipgloss.NewStyle().Padding(0, 1).Bold(true).
			Background(lipgloss.Color("160")).Foreground(lipgloss.Color("15"))

	dialogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(1, 2)
	dialogTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))

	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	sectionStyle = lipgloss.NewStyle().Bold(true).MarginTop(1)

	noticeInfo    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	noticeSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	noticeError   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)
