package help

import (
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/key"
)

func TestMarkdownListsBindings(t *testing.T) {
	bindings := []key.Binding{
		key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop session")),
		key.NewBinding(key.WithKeys("z")),
	}
	md := Markdown(bindings)
	if !strings.Contains(md, "| `x` | stop session |") {
		t.Errorf("markdown missing binding row:\n%s", md)
	}
	if strings.Count(md, "\n| `") != 1 {
		t.Errorf("bindings without help should be skipped:\n%s", md)
	}
}

func TestViewRendersKeys(t *testing.T) {
	bindings := []key.Binding{
		key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "restart")),
	}
	v := View(bindings, 80)
	if !strings.Contains(v, "restart") {
		t.Error("view should contain the binding description")
	}
	if !strings.Contains(v, "esc:close") {
		t.Error("view should contain the close hint")
	}
}
