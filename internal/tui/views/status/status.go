package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fixmux/fixmux/internal/sim"
	"github.com/fixmux/fixmux/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	Sessions  int
	Alerts    int
	Providers []sim.ProviderState
	Width     int
}

func New() Model {
	return Model{}
}

// SetCounts updates the session and alert counts.
func (m *Model) SetCounts(sessions, alerts int) {
	m.Sessions = sessions
	m.Alerts = alerts
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	counts := fmt.Sprintf("%d sessions", m.Sessions)
	if m.Alerts > 0 {
		counts += "  " + lipgloss.NewStyle().Foreground(theme.ColorAlert).
			Render(fmt.Sprintf("%d without sources", m.Alerts))
	}

	var provParts []string
	for _, p := range m.Providers {
		var color lipgloss.Color
		var state string
		switch {
		case p.Denied:
			color, state = theme.ColorDanger, "denied"
		case p.Enabled:
			color, state = theme.ColorHealthy, "on"
		default:
			color, state = theme.ColorWarning, "off"
		}
		provParts = append(provParts, lipgloss.NewStyle().Foreground(color).Render(
			fmt.Sprintf("%s: %s", p.Name, state),
		))
	}
	provStr := strings.Join(provParts, "  ")

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + counts
	if provStr != "" {
		content += sep + provStr
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
