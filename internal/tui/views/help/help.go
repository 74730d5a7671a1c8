// Package help renders the key reference overlay from markdown.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/fixmux/fixmux/internal/tui/theme"
)

const intro = `# fixmux

Each row is a session: one arbitrated fix stream under a client handle.
A session whose requested sources are all disabled stays registered and
resumes when any of them comes back.

## Keys
`

// Markdown builds the help text for the given bindings.
func Markdown(bindings []key.Binding) string {
	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n| key | action |\n|---|---|\n")
	for _, kb := range bindings {
		h := kb.Help()
		if h.Key == "" {
			continue
		}
		fmt.Fprintf(&b, "| `%s` | %s |\n", h.Key, h.Desc)
	}
	return b.String()
}

// View renders the help overlay at the given width. Rendering failures fall
// back to the raw markdown.
func View(bindings []key.Binding, width int) string {
	innerW := max(width-8, 30)
	md := Markdown(bindings)

	out := md
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(innerW),
	)
	if err == nil {
		if rendered, err := r.Render(md); err == nil {
			out = rendered
		}
	}

	return lipgloss.NewStyle().
		Width(innerW).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(strings.TrimRight(out, "\n") + "\n" + theme.StyleDimmed.Render("  esc:close"))
}
