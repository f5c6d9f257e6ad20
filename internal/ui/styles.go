// Package ui holds the terminal styling shared by fieldsync commands.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	// Header styles section titles in status output.
	Header = lipgloss.NewStyle().Bold(true)

	// Online and Offline color the connectivity indicator.
	Online  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	Offline = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	// Warn flags pending or failed queue entries.
	Warn = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	// Muted renders secondary detail like timestamps and ids.
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	// Temp marks records that only exist locally.
	Temp = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Italic(true)
)

// Connectivity renders the online/offline indicator.
func Connectivity(online bool) string {
	if online {
		return Online.Render("● online")
	}
	return Offline.Render("○ offline")
}
