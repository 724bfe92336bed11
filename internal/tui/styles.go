package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	incomeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	expenseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	mutedStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	selectedStyle = lipgloss.NewStyle().Bold(true).Reverse(true)
	savingStyle   = lipgloss.NewStyle().Faint(true).Italic(true)
	helpStyle     = lipgloss.NewStyle().Faint(true)

	flashOkStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	flashErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
	focusedPanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("12")).
				Padding(0, 1)
)

// bar renders one chart bar scaled against max.
func bar(value, max float64, width int) string {
	if width <= 0 {
		width = 28
	}
	if max <= 0 {
		max = 1
	}
	filled := int(value / max * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func money(f float64) string { return fmt.Sprintf("%.2f", f) }
