package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Styles used by the listing commands (targets, tools, status).
type Styles struct {
	Title   lipgloss.Style
	Name    lipgloss.Style
	Summary lipgloss.Style
	Muted   lipgloss.Style

	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
}

func newStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7c3aed")).
			Bold(true).
			MarginBottom(1),

		Name: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#06b6d4")).
			Bold(true).
			Width(10),

		Summary: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4d4d8")),

		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a")),

		Success: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#22c55e")).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ef4444")).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#eab308")),
	}
}

// row renders a two-column listing line.
func (s Styles) row(name, rest string) string {
	return fmt.Sprintf("  %s %s", s.Name.Render(name), s.Summary.Render(rest))
}

// status renders a found/missing marker.
func (s Styles) status(found bool) string {
	if found {
		return s.Success.Render("ok")
	}
	return s.Error.Render("missing")
}
