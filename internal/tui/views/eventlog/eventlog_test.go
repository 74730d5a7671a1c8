package eventlog

import (
	"errors"
	"strings"
	"testing"
)

func TestTypedEntries(t *testing.T) {
	m := New()
	m.Link("connected")
	m.Control(4, "start", "closed_error")
	m.Disabled(4)
	m.Error(5, errors.New("unknown handle"))

	if len(m.Entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(m.Entries))
	}
	want := []Kind{KindLink, KindControl, KindDisabled, KindError}
	for i, k := range want {
		if m.Entries[i].Kind != k {
			t.Errorf("entry %d kind = %v, want %v", i, m.Entries[i].Kind, k)
		}
	}
	if m.Entries[0].Handle != 0 {
		t.Error("link events are not tied to a session")
	}
	if m.Entries[1].Text != "start -> closed_error" {
		t.Errorf("control text = %q", m.Entries[1].Text)
	}
	if got := m.Count(4, KindDisabled); got != 1 {
		t.Errorf("Count(4, off) = %d, want 1", got)
	}
}

func TestStopHasNoResult(t *testing.T) {
	m := New()
	m.Control(2, "stop", "")
	if m.Entries[0].Text != "stop" {
		t.Errorf("text = %q, want stop", m.Entries[0].Text)
	}
}

func TestFocusKeepsSessionAndDaemonEvents(t *testing.T) {
	m := New()
	m.Link("connected")
	m.Control(1, "start", "no_error")
	m.Control(2, "start", "no_error")
	m.Disabled(2)

	m.FocusOn(2)
	got := m.Visible()
	if len(got) != 3 {
		t.Fatalf("visible = %d, want 3 (link + two for session 2)", len(got))
	}
	for _, e := range got {
		if e.Handle == 1 {
			t.Errorf("session 1 entry leaked through focus: %+v", e)
		}
	}
	if h, ok := m.Focus(); !ok || h != 2 {
		t.Errorf("Focus() = %d, %v", h, ok)
	}

	v := m.View(100, 20)
	if !strings.Contains(v, "session 2") {
		t.Error("title should name the focused session")
	}

	m.ClearFocus()
	if len(m.Visible()) != 4 {
		t.Error("clearing focus should show everything")
	}
}

func TestMaxEntries(t *testing.T) {
	m := New()
	for i := 0; i < maxEntries+50; i++ {
		m.Control(1, "single", "no_error")
	}
	if len(m.Entries) != maxEntries {
		t.Errorf("got %d entries, want %d", len(m.Entries), maxEntries)
	}
}

func TestScrollFollowsFocus(t *testing.T) {
	m := New()
	for i := 0; i < 10; i++ {
		m.Control(1, "single", "no_error")
	}
	m.Control(2, "start", "no_error")
	m.Control(2, "stop", "")

	m.ScrollUp(100)
	if m.Offset != 11 {
		t.Fatalf("offset = %d, want 11", m.Offset)
	}

	m.FocusOn(2)
	if m.Offset != 0 {
		t.Error("changing focus should reset scroll")
	}
	m.ScrollUp(100)
	if m.Offset != 1 {
		t.Errorf("offset = %d, want capped at 1 for two visible entries", m.Offset)
	}
	m.ScrollDown(5)
	if m.Offset != 0 {
		t.Errorf("offset = %d, want 0", m.Offset)
	}

	m.ScrollUp(1)
	m.Disabled(2)
	if m.Offset != 0 {
		t.Error("a new entry should jump back to the newest line")
	}
}

func TestView(t *testing.T) {
	m := New()
	if !strings.Contains(m.View(80, 20), "No events") {
		t.Error("empty view should say so")
	}

	m.Disabled(7)
	m.Error(0, errors.New("providers: timeout"))
	v := m.View(100, 20)
	for _, want := range []string{"all requested sources disabled", "providers: timeout", "   7", "--"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
}
