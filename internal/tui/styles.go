package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/andy/billsink/internal/domain"
)

var (
	// Colors
	primaryColor = lipgloss.Color("39")  // Blue
	accentColor  = lipgloss.Color("205") // Pink
	mutedColor   = lipgloss.Color("241") // Gray
	successColor = lipgloss.Color("76")  // Green
	warningColor = lipgloss.Color("214") // Orange
	errorColor   = lipgloss.Color("196") // Red

	// Base styles
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	subtitleStyle = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("117")) // Bright cyan
	errorStyle    = lipgloss.NewStyle().Foreground(errorColor)
	successStyle  = lipgloss.NewStyle().Foreground(successColor)
	labelStyle    = lipgloss.NewStyle().Bold(true).Width(22)
	valueStyle    = lipgloss.NewStyle().Foreground(primaryColor)

	// Layout
	borderColor    = lipgloss.Color("63") // Soft purple
	appBorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(1, 2)

	// Header/Footer
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true) // Bright yellow

	// Timer specific
	timerRunningStyle = lipgloss.NewStyle().Bold(true).Foreground(successColor)
	timerValueStyle   = lipgloss.NewStyle().Foreground(accentColor)

	statusStyles = map[domain.InvoiceStatus]lipgloss.Style{
		domain.InvoiceStatusDraft:     lipgloss.NewStyle().Foreground(mutedColor),
		domain.InvoiceStatusSent:      lipgloss.NewStyle().Foreground(primaryColor),
		domain.InvoiceStatusViewed:    lipgloss.NewStyle().Foreground(accentColor),
		domain.InvoiceStatusPaid:      lipgloss.NewStyle().Foreground(successColor),
		domain.InvoiceStatusOverdue:   lipgloss.NewStyle().Bold(true).Foreground(errorColor),
		domain.InvoiceStatusCancelled: lipgloss.NewStyle().Strikethrough(true).Foreground(mutedColor),
	}
)
