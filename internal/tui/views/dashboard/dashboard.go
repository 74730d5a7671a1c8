// Package dashboard provides a stats summary row and session table
// for the fixmux TUI.
package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fixmux/fixmux/internal/tui/client"
	"github.com/fixmux/fixmux/internal/tui/theme"
)

// Model holds the dashboard state.
type Model struct {
	Width    int
	Selected int
	sessions []*client.SessionState
}

func New() Model {
	return Model{}
}

// SetSessions replaces the session list, ordered by handle.
func (m *Model) SetSessions(sessions []*client.SessionState) {
	m.sessions = append(m.sessions[:0], sessions...)
	sort.Slice(m.sessions, func(i, j int) bool {
		return m.sessions[i].Handle < m.sessions[j].Handle
	})
}

// View renders the full dashboard: stats row + session table.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsRow(width),
		m.renderTable(width, time.Now()),
	)
}

func (m Model) renderStatsRow(width int) string {
	var continuous, single, satellite int
	var forwarded, dropped int64
	var inView int
	for _, s := range m.sessions {
		switch s.Mode.String() {
		case "satellite":
			satellite++
			inView = max(inView, len(s.Satellites))
		case "single_shot":
			single++
		default:
			continuous++
		}
		forwarded += s.Forwarded
		dropped += s.Dropped
	}

	statStyle := lipgloss.NewStyle().Padding(0, 1)
	stats := []string{
		statStyle.Foreground(theme.ColorBright).Render(fmt.Sprintf("Continuous: %d", continuous)),
		statStyle.Foreground(theme.ColorDimmed).Render(fmt.Sprintf("Single: %d", single)),
		statStyle.Foreground(theme.ColorGPS).Render(fmt.Sprintf("Satellite: %d", satellite)),
		statStyle.Foreground(theme.ColorNetwork).Render(fmt.Sprintf("Forwarded: %s", formatCount(forwarded))),
		statStyle.Foreground(theme.ColorWarning).Render(fmt.Sprintf("Dropped: %s", formatCount(dropped))),
		statStyle.Foreground(theme.ColorPassive).Render(fmt.Sprintf("Sats: %d", inView)),
	}
	content := strings.Join(stats, lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | "))

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func (m Model) renderTable(width int, now time.Time) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBright).Render("  Sessions")

	if len(m.sessions) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			theme.StyleDimmed.Render("  No sessions"),
		)
	}

	const (
		colHandle   = 7
		colMode     = 14
		colSources  = 22
		colInterval = 9
		colFwd      = 9
		colFix      = 26
		colAcc      = 9
		colAge      = 8
	)

	dimStyle := lipgloss.NewStyle().Foreground(theme.ColorDimmed)
	brightStyle := lipgloss.NewStyle().Foreground(theme.ColorBright).Bold(true)

	tableHeader := fmt.Sprintf("  %-*s %-*s %-*s %*s %*s  %-*s %*s %*s",
		colHandle, "Handle",
		colMode, "Mode",
		colSources, "Sources",
		colInterval, "Interval",
		colFwd, "Fwd",
		colFix, "Last fix",
		colAcc, "Acc",
		colAge, "Age",
	)
	lines := []string{
		header,
		dimStyle.Render(tableHeader),
		dimStyle.Render("  " + strings.Repeat("─", min(width-4, colHandle+colMode+colSources+colInterval+colFwd+colFix+colAcc+colAge+9))),
	}

	for i, s := range m.sessions {
		prefix := "  "
		if i == m.Selected {
			prefix = "> "
		}

		handleStr := brightStyle.Width(colHandle).Render(fmt.Sprintf("%d", s.Handle))

		modeColor := theme.StateColor(s.State)
		if s.SourcesDisabled {
			modeColor = theme.ColorAlert
		}
		modeStr := lipgloss.NewStyle().Foreground(modeColor).Width(colMode).
			Render(theme.ModeGlyph(s.Mode.String()) + " " + s.Mode.String())

		srcStr := dimStyle.Width(colSources).Render(truncate(s.Sources, colSources-1))
		intStr := dimStyle.Width(colInterval).Align(lipgloss.Right).
			Render(formatInterval(s.IntervalMs))
		fwdStr := brightStyle.Width(colFwd).Align(lipgloss.Right).Render(formatCount(s.Forwarded))

		fixStr, accStr, ageStr := "-", "", ""
		if s.LastFix != nil {
			f := s.LastFix
			fixStr = theme.SourceBadge(s.LastSource()) + fmt.Sprintf(" %.5f,%.5f", f.Latitude, f.Longitude)
			accStr = lipgloss.NewStyle().Foreground(theme.AccuracyColor(f.Accuracy)).
				Render(fmt.Sprintf("%.0fm", f.Accuracy))
			ageStr = formatAge(now.Sub(f.Time))
		} else if len(s.Satellites) > 0 {
			fixStr = fmt.Sprintf("%d sats, %d used", len(s.Satellites), s.UsedInFix())
		}
		fixCell := lipgloss.NewStyle().Width(colFix).Render(fixStr)
		accCell := lipgloss.NewStyle().Width(colAcc).Align(lipgloss.Right).Render(accStr)
		ageCell := dimStyle.Width(colAge).Align(lipgloss.Right).Render(ageStr)

		lines = append(lines, fmt.Sprintf("%s%s %s %s %s %s  %s %s %s",
			prefix, handleStr, modeStr, srcStr, intStr, fwdStr, fixCell, accCell, ageCell))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func formatInterval(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).String()
}

func formatAge(d time.Duration) string {
	switch {
	case d < 0:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}

// formatCount formats large numbers with K/M suffixes.
func formatCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
