package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fixmux/fixmux/internal/position"
	"github.com/fixmux/fixmux/internal/registry"
	"github.com/fixmux/fixmux/internal/sim"
	"github.com/fixmux/fixmux/internal/tui/client"
	"github.com/fixmux/fixmux/internal/tui/theme"
	"github.com/fixmux/fixmux/internal/tui/views/dashboard"
	"github.com/fixmux/fixmux/internal/tui/views/detail"
	"github.com/fixmux/fixmux/internal/tui/views/eventlog"
	"github.com/fixmux/fixmux/internal/tui/views/help"
	"github.com/fixmux/fixmux/internal/tui/views/status"
	"github.com/fixmux/fixmux/internal/ws"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDetail
	OverlayEvents
	OverlayHelp
)

const (
	defaultInterval = time.Second
	refreshInterval = time.Second
)

type tickMsg time.Time

// actionMsg carries the outcome of a control call back into Update.
type actionMsg struct {
	action string
	handle position.Handle
	res    *ws.ResultResponse
	err    error
}

type providersMsg struct {
	states []sim.ProviderState
	err    error
}

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	http   *client.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	sessions map[position.Handle]*client.SessionState
	order    []position.Handle

	selectedIdx int
	overlay     Overlay
	actionErr   map[position.Handle]string
	providers   []sim.ProviderState

	statusBar status.Model
	dashboard dashboard.Model
	events    eventlog.Model

	connected bool
}

// New creates the root model.
func New(ws *client.WSClient, http *client.HTTPClient) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		ws:        ws,
		http:      http,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		sessions:  make(map[position.Handle]*client.SessionState),
		actionErr: make(map[position.Handle]string),
		statusBar: status.New(),
		dashboard: dashboard.New(),
		events:    eventlog.New(),
	}
}

// Init starts the WebSocket connection.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.ws.Listen(m.ctx), m.fetchProviders(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.dashboard.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		return m, tick()

	case client.WSConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		m.events.Link("connected")
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSDisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		m.events.Link(fmt.Sprintf("disconnected: %v", msg.Err))
		return m, m.ws.Listen(m.ctx)

	case client.WSSnapshotMsg:
		m.applySnapshot(msg.Payload.Sessions)
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSPositionMsg:
		now := time.Now()
		for _, u := range msg.Payload.Updates {
			mode := position.Continuous
			if u.SingleShot {
				mode = position.SingleShot
			}
			m.session(u.Handle, mode).ApplyPosition(u, now)
		}
		m.refresh()
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSSatellitesMsg:
		now := time.Now()
		for _, u := range msg.Payload.Updates {
			m.session(u.Handle, position.SatelliteMode).ApplySatellites(u, now)
		}
		m.refresh()
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSSourcesDisabledMsg:
		if s, ok := m.sessions[msg.Payload.Handle]; ok {
			s.SourcesDisabled = true
		}
		m.events.Disabled(msg.Payload.Handle)
		m.refresh()
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSErrorMsg:
		m.events.Error(0, errors.New(msg.Payload.Message))
		return m, m.ws.ReadLoop(m.ctx)

	case actionMsg:
		m.applyAction(msg)
		return m, nil

	case providersMsg:
		if msg.err != nil {
			m.events.Error(0, fmt.Errorf("providers: %w", msg.err))
			return m, nil
		}
		m.providers = msg.states
		m.statusBar.Providers = msg.states
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.overlay != OverlayNone {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNone
		case m.overlay == OverlayEvents && key.Matches(msg, m.keys.Up):
			m.events.ScrollUp(1)
		case m.overlay == OverlayEvents && key.Matches(msg, m.keys.Down):
			m.events.ScrollDown(1)
		case m.overlay == OverlayEvents && key.Matches(msg, m.keys.Focus):
			m.toggleFocus()
		case m.overlay == OverlayDetail && key.Matches(msg, m.keys.Stop):
			m.overlay = OverlayNone
			return m, m.stopSelected()
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Down):
		if len(m.order) > 0 {
			m.selectedIdx = (m.selectedIdx + 1) % len(m.order)
			m.dashboard.Selected = m.selectedIdx
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if len(m.order) > 0 {
			m.selectedIdx = (m.selectedIdx - 1 + len(m.order)) % len(m.order)
			m.dashboard.Selected = m.selectedIdx
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		if _, ok := m.selected(); ok {
			m.overlay = OverlayDetail
		}
		return m, nil

	case key.Matches(msg, m.keys.Events):
		m.overlay = OverlayEvents
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp
		return m, nil

	case key.Matches(msg, m.keys.Start):
		h := m.nextHandle()
		return m, m.action("start", h, func() (*ws.ResultResponse, error) {
			return m.http.StartSession(h, []string{"gps", "network"}, defaultInterval)
		})

	case key.Matches(msg, m.keys.Single):
		h := m.nextHandle()
		return m, m.action("single", h, func() (*ws.ResultResponse, error) {
			return m.http.RequestSingle(h, []string{"gps", "network"})
		})

	case key.Matches(msg, m.keys.Satellites):
		h := m.nextHandle()
		return m, m.action("satellites", h, func() (*ws.ResultResponse, error) {
			return m.http.StartSatellites(h, defaultInterval, false)
		})

	case key.Matches(msg, m.keys.Stop):
		return m, m.stopSelected()

	case key.Matches(msg, m.keys.ToggleGPS):
		return m, m.toggleProvider("gps", false)

	case key.Matches(msg, m.keys.ToggleNetwork):
		return m, m.toggleProvider("network", false)

	case key.Matches(msg, m.keys.TogglePassive):
		return m, m.toggleProvider("passive", false)

	case key.Matches(msg, m.keys.DenyGPS):
		return m, m.toggleProvider("gps", true)
	}

	return m, nil
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var body string
	switch {
	case !m.connected:
		body = m.renderDisconnected()
	case m.overlay == OverlayDetail:
		if s, ok := m.selected(); ok {
			d := detail.New(s)
			d.ActionError = m.actionErr[s.Handle]
			body = d.View()
		}
	case m.overlay == OverlayEvents:
		body = m.events.View(m.width, m.height-4)
	case m.overlay == OverlayHelp:
		body = help.View(m.keys.Bindings(), m.width)
	default:
		body = m.dashboard.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		body,
		theme.StyleDimmed.Render("  j/k:navigate  enter:detail  n:start  s:single  v:satellites  x:stop  1/2/3:toggle source  d:events  ?:help  q:quit"),
	)
}

func (m Model) renderDisconnected() string {
	msg := lipgloss.JoinVertical(lipgloss.Center,
		lipgloss.NewStyle().Bold(true).Foreground(theme.ColorDanger).Render("DISCONNECTED"),
		theme.StyleDimmed.Render("Reconnecting..."),
	)
	panel := theme.StyleBorder.Padding(1, 4).Render(msg)
	return lipgloss.Place(m.width, max(m.height-4, 5), lipgloss.Center, lipgloss.Center, panel)
}

func (m Model) selected() (*client.SessionState, bool) {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.order) {
		return nil, false
	}
	s, ok := m.sessions[m.order[m.selectedIdx]]
	return s, ok
}

// toggleFocus narrows the event log to the selected session, or widens it
// again when it is already narrowed.
func (m *Model) toggleFocus() {
	if _, ok := m.events.Focus(); ok {
		m.events.ClearFocus()
		return
	}
	if s, ok := m.selected(); ok {
		m.events.FocusOn(s.Handle)
	}
}

func (m Model) nextHandle() position.Handle {
	var h position.Handle
	for id := range m.sessions {
		if id > h {
			h = id
		}
	}
	return h + 1
}

// session returns the state for handle, creating a placeholder when the
// stream names a session the last snapshot did not contain.
func (m *Model) session(handle position.Handle, mode position.Mode) *client.SessionState {
	s, ok := m.sessions[handle]
	if !ok {
		s = client.NewSessionState(registry.Info{Handle: handle, Mode: mode, SingleShot: mode == position.SingleShot})
		m.sessions[handle] = s
	}
	return s
}

func (m *Model) applySnapshot(infos []registry.Info) {
	next := make(map[position.Handle]*client.SessionState, len(infos))
	for _, info := range infos {
		s := client.NewSessionState(info)
		if prev, ok := m.sessions[info.Handle]; ok {
			s.Satellites = prev.Satellites
			s.SourcesDisabled = prev.SourcesDisabled
			s.Fixes = prev.Fixes
		}
		next[info.Handle] = s
	}
	m.sessions = next
	m.refresh()
}

func (m *Model) applyAction(msg actionMsg) {
	if msg.err != nil {
		m.actionErr[msg.handle] = msg.err.Error()
		m.events.Error(msg.handle, fmt.Errorf("%s: %w", msg.action, msg.err))
		return
	}
	delete(m.actionErr, msg.handle)
	if msg.action == "stop" {
		delete(m.sessions, msg.handle)
		m.events.Control(msg.handle, msg.action, "")
		m.refresh()
		return
	}
	if msg.res == nil {
		return
	}
	m.events.Control(msg.handle, msg.action, msg.res.Name)
	if msg.res.Session != nil {
		s := client.NewSessionState(*msg.res.Session)
		s.SourcesDisabled = msg.res.Code == position.ClosedError
		m.sessions[msg.handle] = s
		m.refresh()
	}
}

// refresh rebuilds the handle order and pushes state into the sub-views.
func (m *Model) refresh() {
	m.order = make([]position.Handle, 0, len(m.sessions))
	alerts := 0
	list := make([]*client.SessionState, 0, len(m.sessions))
	for h, s := range m.sessions {
		m.order = append(m.order, h)
		list = append(list, s)
		if s.SourcesDisabled {
			alerts++
		}
	}
	sort.Slice(m.order, func(i, j int) bool { return m.order[i] < m.order[j] })
	if m.selectedIdx >= len(m.order) {
		m.selectedIdx = max(len(m.order)-1, 0)
	}
	m.dashboard.Selected = m.selectedIdx
	m.dashboard.SetSessions(list)
	m.statusBar.SetCounts(len(m.sessions), alerts)
}

func (m Model) action(name string, handle position.Handle, call func() (*ws.ResultResponse, error)) tea.Cmd {
	if m.http == nil {
		return nil
	}
	return func() tea.Msg {
		res, err := call()
		return actionMsg{action: name, handle: handle, res: res, err: err}
	}
}

func (m Model) stopSelected() tea.Cmd {
	s, ok := m.selected()
	if !ok || m.http == nil {
		return nil
	}
	h := s.Handle
	return func() tea.Msg {
		return actionMsg{action: "stop", handle: h, err: m.http.StopSession(h)}
	}
}

func (m Model) fetchProviders() tea.Cmd {
	if m.http == nil {
		return nil
	}
	return func() tea.Msg {
		states, err := m.http.SimProviders()
		return providersMsg{states: states, err: err}
	}
}

// toggleProvider flips a simulated provider's enabled flag, or its
// permission when permission is set.
func (m Model) toggleProvider(name string, permission bool) tea.Cmd {
	if m.http == nil {
		return nil
	}
	enabled, denied := true, false
	for _, p := range m.providers {
		if p.Name == name {
			enabled, denied = p.Enabled, p.Denied
		}
	}
	if permission {
		denied = !denied
	} else {
		enabled = !enabled
	}
	return func() tea.Msg {
		states, err := m.http.SetSimProvider(name, enabled, denied)
		if err != nil {
			err = fmt.Errorf("set %s: %w", name, err)
		}
		return providersMsg{states: states, err: err}
	}
}
