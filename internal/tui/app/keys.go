package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the TUI.
type KeyMap struct {
	Up            key.Binding
	Down          key.Binding
	Enter         key.Binding
	Escape        key.Binding
	Quit          key.Binding
	Events        key.Binding
	Focus         key.Binding
	Start         key.Binding
	Single        key.Binding
	Satellites    key.Binding
	Stop          key.Binding
	ToggleGPS     key.Binding
	ToggleNetwork key.Binding
	TogglePassive key.Binding
	DenyGPS       key.Binding
	Help          key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "prev session"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next session"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "detail"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Events: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "event log"),
		),
		Focus: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "event log: focus selected session"),
		),
		Start: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new gps+network session"),
		),
		Single: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "single update"),
		),
		Satellites: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "satellite session"),
		),
		Stop: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "stop session"),
		),
		ToggleGPS: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "toggle gps"),
		),
		ToggleNetwork: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "toggle network"),
		),
		TogglePassive: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "toggle passive"),
		),
		DenyGPS: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "toggle gps permission"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
	}
}

// Bindings lists every binding in display order.
func (k KeyMap) Bindings() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.Enter, k.Start, k.Single, k.Satellites, k.Stop,
		k.ToggleGPS, k.ToggleNetwork, k.TogglePassive, k.DenyGPS,
		k.Events, k.Focus, k.Help, k.Escape, k.Quit,
	}
}
