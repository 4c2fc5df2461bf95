package display

import "github.com/charmbracelet/lipgloss"

// 256-color palette indices.
const (
	colorRed    = lipgloss.Color("196")
	colorOrange = lipgloss.Color("214")
	colorGreen  = lipgloss.Color("82")
	colorCyan   = lipgloss.Color("81")
	colorBlue   = lipgloss.Color("33")
	colorGray   = lipgloss.Color("247")
)

type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	cell    lipgloss.Style
	dim     lipgloss.Style
	link    lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	info    lipgloss.Style
	border  lipgloss.Style
	panel   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:   r.NewStyle().Bold(true),
		header:  r.NewStyle().Bold(true).Foreground(colorCyan).Padding(0, 1),
		cell:    r.NewStyle().Padding(0, 1),
		dim:     r.NewStyle().Foreground(colorGray),
		link:    r.NewStyle().Foreground(colorBlue),
		success: r.NewStyle().Foreground(colorGreen),
		warning: r.NewStyle().Foreground(colorOrange),
		failure: r.NewStyle().Foreground(colorRed),
		info:    r.NewStyle().Foreground(colorCyan),
		border:  r.NewStyle().Foreground(colorGray),
		panel:   r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}
