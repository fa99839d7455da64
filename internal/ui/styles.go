package ui

import "github.com/charmbracelet/lipgloss"

var (
	// Header / chrome
	styleDim       = lipgloss.NewStyle().Faint(true)
	styleAccent    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true) // blue
	styleBar       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))            // green
	styleSep       = lipgloss.NewStyle().Faint(true)
	styleHelp      = lipgloss.NewStyle().Faint(true)
	styleFilterBox = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow

	styleColHeader = lipgloss.NewStyle().Bold(true).Faint(true)

	// Row states
	styleExact   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))  // green: perfect score
	stylePartial = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))  // cyan
	styleUnknown = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))   // dark gray
	styleOS      = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))  // magenta
	styleOptTxt  = lipgloss.NewStyle().Foreground(lipgloss.Color("250")) // light gray

	styleCursor = lipgloss.NewStyle().Background(lipgloss.Color("236")).Bold(true)

	styleDetailText = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))

	// Filter tabs
	styleTabActive   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10"))
	styleTabInactive = lipgloss.NewStyle().Faint(true)
)
