package app

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fixmux/fixmux/internal/position"
	"github.com/fixmux/fixmux/internal/registry"
	"github.com/fixmux/fixmux/internal/tui/client"
	"github.com/fixmux/fixmux/internal/tui/views/eventlog"
	"github.com/fixmux/fixmux/internal/ws"
)

func newSizedModel() Model {
	m := New(nil, nil)
	m.width = 120
	m.height = 40
	m.statusBar.Width = 120
	m.dashboard.Width = 120
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestDisconnectOverlay(t *testing.T) {
	m := newSizedModel()
	m.connected = false

	v := m.View()
	if !strings.Contains(v, "DISCONNECTED") {
		t.Error("disconnect overlay should contain 'DISCONNECTED'")
	}
	if !strings.Contains(v, "Reconnecting") {
		t.Error("disconnect overlay should contain 'Reconnecting'")
	}
}

func TestSnapshotKeepsSatellites(t *testing.T) {
	m := newSizedModel()
	m.connected = true

	m = update(t, m, client.WSSatellitesMsg{Payload: ws.SatellitesPayload{Updates: []ws.SatelliteUpdate{
		{Handle: 4, Satellites: []position.Satellite{{PRN: 7, UsedInFix: true}, {PRN: 9}}},
	}}})
	if got := m.sessions[4].UsedInFix(); got != 1 {
		t.Fatalf("UsedInFix = %d, want 1", got)
	}

	m = update(t, m, client.WSSnapshotMsg{Payload: ws.SnapshotPayload{Sessions: []registry.Info{
		{Handle: 4, Mode: position.SatelliteMode, State: "running"},
		{Handle: 2, Mode: position.Continuous, State: "running"},
	}}})
	if len(m.order) != 2 || m.order[0] != 2 || m.order[1] != 4 {
		t.Fatalf("order = %v, want [2 4]", m.order)
	}
	if got := len(m.sessions[4].Satellites); got != 2 {
		t.Errorf("satellites after snapshot = %d, want 2", got)
	}
}

func TestSnapshotDropsStoppedSessions(t *testing.T) {
	m := newSizedModel()
	m = update(t, m, client.WSSnapshotMsg{Payload: ws.SnapshotPayload{Sessions: []registry.Info{{Handle: 1}, {Handle: 2}}}})
	m.selectedIdx = 1

	m = update(t, m, client.WSSnapshotMsg{Payload: ws.SnapshotPayload{Sessions: []registry.Info{{Handle: 1}}}})
	if len(m.sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(m.sessions))
	}
	if m.selectedIdx != 0 {
		t.Errorf("selectedIdx = %d, want clamped to 0", m.selectedIdx)
	}
}

func TestPositionUpdatesSession(t *testing.T) {
	m := newSizedModel()
	m.connected = true
	m = update(t, m, client.WSSnapshotMsg{Payload: ws.SnapshotPayload{Sessions: []registry.Info{{Handle: 1, Forwarded: 5}}}})

	fix := position.Fix{Source: position.Network, Time: time.Now(), Latitude: 52.5, Longitude: 13.4, Accuracy: 40}
	m = update(t, m, client.WSPositionMsg{Payload: ws.PositionPayload{Updates: []ws.PositionUpdate{
		{Handle: 1, Fix: fix},
		{Handle: 9, SingleShot: true, Fix: fix},
	}}})

	s := m.sessions[1]
	if s.Forwarded != 6 || s.LastSource() != "network" {
		t.Errorf("session 1 = %+v", s)
	}
	placeholder, ok := m.sessions[9]
	if !ok {
		t.Fatal("unknown handle should get a placeholder")
	}
	if placeholder.Mode != position.SingleShot {
		t.Errorf("placeholder mode = %v, want single_shot", placeholder.Mode)
	}
	if !strings.Contains(m.View(), "52.50000,13.40000") {
		t.Error("dashboard should show the last fix")
	}
}

func TestSourcesDisabledAlert(t *testing.T) {
	m := newSizedModel()
	m.connected = true
	m = update(t, m, client.WSSnapshotMsg{Payload: ws.SnapshotPayload{Sessions: []registry.Info{{Handle: 3}}}})

	m = update(t, m, client.WSSourcesDisabledMsg{Payload: ws.SourcesDisabledPayload{Handle: 3}})
	if !m.sessions[3].SourcesDisabled {
		t.Fatal("session should be flagged")
	}
	if m.statusBar.Alerts != 1 {
		t.Errorf("alerts = %d, want 1", m.statusBar.Alerts)
	}
	if len(m.events.Entries) != 1 || m.events.Entries[0].Kind != eventlog.KindDisabled || m.events.Entries[0].Handle != 3 {
		t.Errorf("events = %+v", m.events.Entries)
	}

	m = update(t, m, client.WSPositionMsg{Payload: ws.PositionPayload{Updates: []ws.PositionUpdate{
		{Handle: 3, Fix: position.Fix{Source: position.GPS, Time: time.Now()}},
	}}})
	if m.sessions[3].SourcesDisabled || m.statusBar.Alerts != 0 {
		t.Error("a forwarded fix should clear the alert")
	}
}

func TestActionResults(t *testing.T) {
	m := newSizedModel()

	info := registry.Info{Handle: 5, Mode: position.Continuous}
	m = update(t, m, actionMsg{action: "start", handle: 5, res: &ws.ResultResponse{
		Code: position.ClosedError, Name: "closed_error", Session: &info,
	}})
	if s, ok := m.sessions[5]; !ok || !s.SourcesDisabled {
		t.Fatalf("closed session should be stored and flagged: %+v", m.sessions)
	}

	m = update(t, m, actionMsg{action: "stop", handle: 5})
	if _, ok := m.sessions[5]; ok {
		t.Error("stopped session should be removed")
	}

	m = update(t, m, actionMsg{action: "start", handle: 6, err: errors.New("boom")})
	if m.actionErr[6] != "boom" {
		t.Errorf("actionErr = %v", m.actionErr)
	}
}

func TestNavigationAndOverlays(t *testing.T) {
	m := newSizedModel()
	m.connected = true
	m = update(t, m, client.WSSnapshotMsg{Payload: ws.SnapshotPayload{Sessions: []registry.Info{{Handle: 1}, {Handle: 2}}}})

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	if m.selectedIdx != 1 {
		t.Fatalf("selectedIdx = %d, want 1", m.selectedIdx)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.overlay != OverlayDetail {
		t.Fatal("enter should open detail")
	}
	if !strings.Contains(m.View(), "Session 2") {
		t.Error("detail should show the selected session")
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.overlay != OverlayNone {
		t.Error("esc should close the overlay")
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	if m.overlay != OverlayEvents {
		t.Error("d should open the event log")
	}
}

func TestEventLogFocusOnSelectedSession(t *testing.T) {
	m := newSizedModel()
	m.connected = true
	m = update(t, m, client.WSSnapshotMsg{Payload: ws.SnapshotPayload{Sessions: []registry.Info{{Handle: 1}, {Handle: 2}}}})
	m = update(t, m, client.WSSourcesDisabledMsg{Payload: ws.SourcesDisabledPayload{Handle: 1}})
	m = update(t, m, actionMsg{action: "stop", handle: 2})

	m.selectedIdx = 0
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("f")})
	if h, ok := m.events.Focus(); !ok || h != 1 {
		t.Fatalf("focus = %d, %v, want session 1", h, ok)
	}
	for _, e := range m.events.Visible() {
		if e.Handle == 2 {
			t.Errorf("session 2 entry visible while focused on 1: %+v", e)
		}
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("f")})
	if _, ok := m.events.Focus(); ok {
		t.Error("second f should clear the focus")
	}
}

func TestNextHandle(t *testing.T) {
	m := newSizedModel()
	if got := m.nextHandle(); got != 1 {
		t.Errorf("nextHandle on empty = %d, want 1", got)
	}
	m = update(t, m, client.WSSnapshotMsg{Payload: ws.SnapshotPayload{Sessions: []registry.Info{{Handle: 3}, {Handle: 8}}}})
	if got := m.nextHandle(); got != 9 {
		t.Errorf("nextHandle = %d, want 9", got)
	}
}
