package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// HeaderStyle styles the column header row.
	HeaderStyle = lipgloss.NewStyle().Bold(true)

	// FooterStyle styles the stage line under the table.
	FooterStyle = lipgloss.NewStyle().Faint(true)

	statusStyles = map[string]lipgloss.Style{
		// Terminal states
		StatusResolved: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		StatusCached:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),

		// Active states
		StatusFound:     lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		StatusResolving: lipgloss.NewStyle().Foreground(lipgloss.Color("4")),

		// Dropped
		StatusInvalid: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),

		// Error
		StatusError: lipgloss.NewStyle().Foreground(lipgloss.Color("1")),

		// Pending
		StatusPending: lipgloss.NewStyle().Faint(true),
	}

	globalKindStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	virtualKindStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
)

// Row statuses.
const (
	StatusPending   = "pending"
	StatusFound     = "found"
	StatusResolving = "resolving"
	StatusResolved  = "resolved"
	StatusCached    = "cached"
	StatusInvalid   = "invalid"
	StatusError     = "error"
)

// StatusStyle returns the lipgloss style for the given status string.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

// KindStyle colors global and virtual environment kinds differently.
func KindStyle(kind string) lipgloss.Style {
	switch {
	case strings.HasPrefix(kind, "global-"):
		return globalKindStyle
	case strings.HasPrefix(kind, "virt-"):
		return virtualKindStyle
	}
	return lipgloss.NewStyle()
}
