// Package eventlog records what happened to each session (control results,
// disabled-source alerts, stream errors) and renders it as an overlay that
// can be narrowed to one session.
package eventlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fixmux/fixmux/internal/position"
	"github.com/fixmux/fixmux/internal/tui/theme"
)

const maxEntries = 200

// Kind classifies an entry.
type Kind int

const (
	KindLink     Kind = iota // stream connect/disconnect
	KindControl              // start/stop/single/satellites outcome
	KindDisabled             // every requested source went away
	KindError
)

var kindNames = map[Kind]string{
	KindLink:     "link",
	KindControl:  "ctl",
	KindDisabled: "off",
	KindError:    "err",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "?"
}

// Entry is one logged event. Handle is zero for daemon-wide events.
type Entry struct {
	Time   time.Time
	Kind   Kind
	Handle position.Handle
	Text   string
}

// Model holds the log and the viewport state.
type Model struct {
	Entries []Entry
	Offset  int // lines scrolled up from the newest visible entry

	filter   position.Handle
	filtered bool
}

func New() Model {
	return Model{}
}

// Link records a stream connection change.
func (m *Model) Link(text string) {
	m.add(Entry{Kind: KindLink, Text: text})
}

// Control records the outcome of a control call for handle. result is the
// registry's result name, or empty for a stop.
func (m *Model) Control(handle position.Handle, action, result string) {
	text := action
	if result != "" {
		text += " -> " + result
	}
	m.add(Entry{Kind: KindControl, Handle: handle, Text: text})
}

// Disabled records that every source requested by handle is off.
func (m *Model) Disabled(handle position.Handle) {
	m.add(Entry{Kind: KindDisabled, Handle: handle, Text: "all requested sources disabled"})
}

// Error records a failure, attributed to handle when it is non-zero.
func (m *Model) Error(handle position.Handle, err error) {
	m.add(Entry{Kind: KindError, Handle: handle, Text: err.Error()})
}

func (m *Model) add(e Entry) {
	e.Time = time.Now()
	m.Entries = append(m.Entries, e)
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.Offset = 0
}

// FocusOn narrows the view to handle. Daemon-wide entries stay visible.
func (m *Model) FocusOn(handle position.Handle) {
	m.filter = handle
	m.filtered = true
	m.Offset = 0
}

// ClearFocus shows every entry again.
func (m *Model) ClearFocus() {
	m.filter = 0
	m.filtered = false
	m.Offset = 0
}

// Focus reports the handle the view is narrowed to.
func (m Model) Focus() (position.Handle, bool) {
	return m.filter, m.filtered
}

// Visible returns the entries that pass the current focus, oldest first.
func (m Model) Visible() []Entry {
	if !m.filtered {
		return m.Entries
	}
	out := make([]Entry, 0, len(m.Entries))
	for _, e := range m.Entries {
		if e.Handle == 0 || e.Handle == m.filter {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many entries of kind mention handle.
func (m Model) Count(handle position.Handle, kind Kind) int {
	n := 0
	for _, e := range m.Entries {
		if e.Handle == handle && e.Kind == kind {
			n++
		}
	}
	return n
}

func (m *Model) ScrollUp(n int) {
	limit := max(len(m.Visible())-1, 0)
	m.Offset = min(m.Offset+n, limit)
}

func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	visibleLines := max(height-6, 3)
	entries := m.Visible()

	titleText := " EVENT LOG "
	if m.filtered {
		titleText = fmt.Sprintf(" EVENT LOG · session %d ", m.filter)
	}
	title := theme.StyleHeader.Render(titleText)
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  f:focus session  esc:close  %d/%d entries", len(entries), len(m.Entries)))

	panel := lipgloss.NewStyle().
		Width(innerW).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)

	if len(entries) == 0 {
		body := theme.StyleDimmed.Render("  No events recorded yet.")
		return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help))
	}

	end := max(len(entries)-m.Offset, 0)
	start := max(end-visibleLines, 0)

	lines := make([]string, 0, end-start)
	for _, e := range entries[start:end] {
		lines = append(lines, renderEntry(e, innerW))
	}

	more := ""
	if m.Offset > 0 {
		more = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.Offset))
	}
	return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), more, help))
}

func renderEntry(e Entry, width int) string {
	ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
	kind := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Width(4).Render(e.Kind.String())
	handle := "  --"
	if e.Handle != 0 {
		handle = fmt.Sprintf("%4d", e.Handle)
	}
	text := e.Text
	if room := width - 26; room > 3 && len(text) > room {
		text = text[:room-3] + "..."
	}
	return fmt.Sprintf("%s %s %s %s", ts, kind, handle, text)
}

func kindColor(k Kind) lipgloss.Color {
	switch k {
	case KindLink:
		return theme.ColorRunning
	case KindControl:
		return theme.ColorStarting
	case KindDisabled:
		return theme.ColorWarning
	case KindError:
		return theme.ColorDanger
	default:
		return theme.ColorDimmed
	}
}
