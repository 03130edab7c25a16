package ui

import "github.com/charmbracelet/lipgloss"

// Terminal palette, 256-color codes.
const (
	ColorAccent   = "39"  // Blue accent for headers and the spinner
	ColorAccentLo = "31"  // Dimmed accent
	ColorGray     = "245" // Labels and secondary text
	ColorDarkGray = "238" // Borders and separators
	ColorGreen    = "42"  // Completed
	ColorRed      = "196" // Errors
	ColorYellow   = "220" // Running, warnings
)

// Styles holds all UI styles.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Panel   lipgloss.Style

	// Per-source badges in search results.
	Local   lipgloss.Style
	Drive   lipgloss.Style
	Dropbox lipgloss.Style
}

// DefaultStyles returns colored styles for terminals.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGreen)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Value:   lipgloss.NewStyle().Bold(true),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorDarkGray)).
			Padding(0, 1),
		Local:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentLo)),
		Drive:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGreen)),
		Dropbox: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent)),
	}
}

// NoColorStyles returns unstyled components for plain mode.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header: plain, Success: plain, Warning: plain, Error: plain,
		Dim: plain, Label: plain, Value: plain, Panel: plain,
		Local: plain, Drive: plain, Dropbox: plain,
	}
}

// GetStyles returns the appropriate styles based on color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
