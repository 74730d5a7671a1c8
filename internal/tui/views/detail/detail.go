// Package detail renders the session info flyout overlay.
package detail

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fixmux/fixmux/internal/position"
	"github.com/fixmux/fixmux/internal/tui/client"
	"github.com/fixmux/fixmux/internal/tui/theme"
)

const (
	panelWidth = 64
	barWidth   = 20
	labelWidth = 14
	maxSatRows = 12

	// snrFull is the SNR rendered as a full bar.
	snrFull = 50.0
)

var (
	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1)

	styleLabel = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed).
			Width(labelWidth)

	styleValue = lipgloss.NewStyle().
			Foreground(theme.ColorBright)

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorBright)

	styleFooter = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed)

	styleSectionHeader = lipgloss.NewStyle().
				Bold(true).
				Foreground(theme.ColorDimmed)

	styleError = lipgloss.NewStyle().
			Foreground(theme.ColorDanger)
)

// Model holds the state for the detail overlay.
type Model struct {
	Session *client.SessionState
	// ActionError is the last failed control action for this session.
	ActionError string
}

func New(s *client.SessionState) Model {
	return Model{Session: s}
}

// View renders the detail panel. Returns an empty string if no session is set.
func (m Model) View() string {
	if m.Session == nil {
		return ""
	}
	return stylePanel.Width(panelWidth).Render(m.renderInner(m.Session, time.Now()))
}

func (m Model) renderInner(s *client.SessionState, now time.Time) string {
	var b strings.Builder

	b.WriteString(styleTitle.Render(fmt.Sprintf("Session %d", s.Handle)) + "\n")
	b.WriteString(strings.Repeat("─", panelWidth-4) + "\n")

	writeRow(&b, "Mode", theme.ModeGlyph(s.Mode.String())+" "+s.Mode.String())
	writeRow(&b, "Sources", s.Sources)
	writeRow(&b, "State", lipgloss.NewStyle().Foreground(theme.StateColor(s.State)).Render(s.State))
	if s.IntervalMs > 0 {
		writeRow(&b, "Interval", (time.Duration(s.IntervalMs) * time.Millisecond).String())
	}
	if !s.StartedAt.IsZero() {
		writeRow(&b, "Started", formatAge(now.Sub(s.StartedAt)))
	}
	writeRow(&b, "Fixes", fmt.Sprintf("%d forwarded  %d dropped", s.Forwarded, s.Dropped))
	if s.SourcesDisabled {
		writeRow(&b, "Alert", styleError.Render("all requested sources disabled"))
	}

	if f := s.LastFix; f != nil {
		b.WriteString("\n")
		b.WriteString(styleSectionHeader.Render("Last fix") + "\n")
		writeRow(&b, "Source", theme.SourceBadge(f.Source.String())+" "+f.Source.String())
		writeRow(&b, "Position", fmt.Sprintf("%.6f, %.6f", f.Latitude, f.Longitude))
		if f.Altitude != 0 {
			writeRow(&b, "Altitude", fmt.Sprintf("%.1f m", f.Altitude))
		}
		writeRow(&b, "Accuracy", lipgloss.NewStyle().Foreground(theme.AccuracyColor(f.Accuracy)).
			Render(fmt.Sprintf("%.1f m", f.Accuracy)))
		if f.Speed != 0 {
			writeRow(&b, "Speed", fmt.Sprintf("%.1f m/s  %.0f°", f.Speed, f.Bearing))
		}
		writeRow(&b, "Time", f.Time.Format("15:04:05.000")+"  ("+formatAge(now.Sub(f.Time))+")")
	}

	if len(s.Satellites) > 0 {
		b.WriteString("\n")
		b.WriteString(styleSectionHeader.Render(fmt.Sprintf("Satellites (%d in view, %d used)",
			len(s.Satellites), s.UsedInFix())) + "\n")
		for _, sat := range strongest(s.Satellites, maxSatRows) {
			b.WriteString(renderSatellite(sat) + "\n")
		}
	}

	if m.ActionError != "" {
		b.WriteString("\n")
		b.WriteString(styleError.Render("Error: "+m.ActionError) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(styleFooter.Render("[x] stop session  [esc] close"))

	return b.String()
}

// strongest returns up to n satellites ordered by descending SNR.
func strongest(sats []position.Satellite, n int) []position.Satellite {
	out := append([]position.Satellite(nil), sats...)
	sort.Slice(out, func(i, j int) bool { return out[i].SNR > out[j].SNR })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func renderSatellite(sat position.Satellite) string {
	color := theme.ColorDimmed
	mark := " "
	if sat.UsedInFix {
		color = theme.ColorGPS
		mark = "✓"
	}
	flags := ""
	if sat.HasEphemeris {
		flags += "E"
	}
	if sat.HasAlmanac {
		flags += "A"
	}
	return fmt.Sprintf("  %s PRN %-3d el %4.0f° az %4.0f°  %s %4.1f  %s",
		mark, sat.PRN, sat.Elevation, sat.Azimuth,
		renderBar(sat.SNR/snrFull, barWidth, color), sat.SNR, flags)
}

func writeRow(b *strings.Builder, label, value string) {
	b.WriteString(styleLabel.Render(label+":") + styleValue.Render(value) + "\n")
}

func renderBar(pct float64, width int, color lipgloss.Color) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 1 {
		pct = 1
	}
	filled := int(pct * float64(width))
	empty := width - filled
	bar := strings.Repeat("█", filled) + strings.Repeat("░", empty)
	return lipgloss.NewStyle().Foreground(color).Render(bar)
}

func formatAge(d time.Duration) string {
	switch {
	case d < 0:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds ago", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm ago", int(d.Hours()), int(d.Minutes())%60)
	}
}
