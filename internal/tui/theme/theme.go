// Package theme provides the Lip Gloss color palette and reusable styles
// for the fixmux TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Source colors.
var (
	ColorGPS     = lipgloss.Color("#22c55e")
	ColorNetwork = lipgloss.Color("#3b82f6")
	ColorPassive = lipgloss.Color("#a855f7")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// Session state colors.
var (
	ColorRunning  = lipgloss.Color("#2563eb")
	ColorStarting = lipgloss.Color("#7c3aed")
	ColorStopped  = lipgloss.Color("#374151")
	ColorAlert    = lipgloss.Color("#dc2626")
)

// Accuracy thresholds.
var (
	ColorAccuracyGood = lipgloss.Color("#22c55e") // <= 10 m
	ColorAccuracyFair = lipgloss.Color("#d97706") // <= 50 m
	ColorAccuracyPoor = lipgloss.Color("#dc2626")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// SourceColor returns the color for a source name.
func SourceColor(source string) lipgloss.Color {
	switch source {
	case "gps":
		return ColorGPS
	case "network":
		return ColorNetwork
	case "passive":
		return ColorPassive
	default:
		return ColorDefault
	}
}

// SourceBadge returns a colored one-letter badge for a source name.
func SourceBadge(source string) string {
	style := lipgloss.NewStyle().Foreground(SourceColor(source))
	switch source {
	case "gps":
		return style.Render("[G]")
	case "network":
		return style.Render("[N]")
	case "passive":
		return style.Render("[P]")
	default:
		return style.Render("[?]")
	}
}

// StateColor returns the color for a session executor state.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "running":
		return ColorRunning
	case "starting", "created":
		return ColorStarting
	case "stopping", "terminated":
		return ColorStopped
	default:
		return ColorDefault
	}
}

// AccuracyColor returns the color for a horizontal accuracy in meters.
func AccuracyColor(meters float64) lipgloss.Color {
	switch {
	case meters <= 10:
		return ColorAccuracyGood
	case meters <= 50:
		return ColorAccuracyFair
	default:
		return ColorAccuracyPoor
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)
)

// ModeGlyph returns a glyph for a session mode name.
func ModeGlyph(mode string) string {
	switch mode {
	case "continuous":
		return "●"
	case "single_shot":
		return "◌"
	case "satellite":
		return "✦"
	default:
		return "·"
	}
}
