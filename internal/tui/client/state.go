package client

import (
	"time"

	"github.com/fixmux/fixmux/internal/position"
	"github.com/fixmux/fixmux/internal/registry"
	"github.com/fixmux/fixmux/internal/ws"
)

// SessionState is the TUI's view of one registry session, folded from the
// snapshot and the incremental stream messages.
type SessionState struct {
	registry.Info

	// Satellites is the most recent visibility report for satellite sessions.
	Satellites []position.Satellite

	// SourcesDisabled is set when the server reported that every requested
	// source is off. It clears on the next forwarded fix.
	SourcesDisabled bool

	// Fixes counts fixes seen on the stream since the TUI connected, which
	// can lag the server-side Forwarded counter after a reconnect.
	Fixes     int
	UpdatedAt time.Time
}

// NewSessionState wraps a snapshot entry.
func NewSessionState(info registry.Info) *SessionState {
	s := &SessionState{Info: info}
	if info.LastFix != nil {
		s.UpdatedAt = info.LastFix.Time
	}
	return s
}

// ApplyPosition folds a forwarded fix into the state.
func (s *SessionState) ApplyPosition(u ws.PositionUpdate, now time.Time) {
	fix := u.Fix
	s.LastFix = &fix
	s.Forwarded++
	s.Fixes++
	s.SourcesDisabled = false
	s.UpdatedAt = now
}

// ApplySatellites replaces the visibility report.
func (s *SessionState) ApplySatellites(u ws.SatelliteUpdate, now time.Time) {
	s.Satellites = u.Satellites
	s.SourcesDisabled = false
	s.UpdatedAt = now
}

// UsedInFix counts satellites that contributed to the last fix.
func (s *SessionState) UsedInFix() int {
	n := 0
	for _, sat := range s.Satellites {
		if sat.UsedInFix {
			n++
		}
	}
	return n
}

// LastSource returns the source name of the last forwarded fix, or "".
func (s *SessionState) LastSource() string {
	if s.LastFix == nil {
		return ""
	}
	return s.LastFix.Source.String()
}
