// Package satellite translates raw satellite status events into forwarded
// satellite-visibility updates for a single session.
package satellite

import (
	"log"

	"github.com/fixmux/fixmux/internal/locsvc"
	"github.com/fixmux/fixmux/internal/position"
	"github.com/fixmux/fixmux/internal/sink"
)

// DefaultMaxSatellites bounds a forwarded snapshot when no limit is given.
const DefaultMaxSatellites = 64

// Monitor belongs to one satellite-mode session and runs on its execution
// context.
type Monitor struct {
	handle     position.Handle
	singleShot bool
	max        int
	out        sink.Sink

	updates int
}

// New returns a Monitor forwarding to out. max <= 0 selects
// DefaultMaxSatellites.
func New(handle position.Handle, singleShot bool, max int, out sink.Sink) *Monitor {
	if max <= 0 {
		max = DefaultMaxSatellites
	}
	return &Monitor{handle: handle, singleShot: singleShot, max: max, out: out}
}

// Handle processes one status event. It reports whether anything was
// forwarded.
func (m *Monitor) Handle(ev locsvc.Event) bool {
	switch ev.Type {
	case locsvc.EventSatelliteStatus:
		snap := Snapshot(ev.Satellites, m.max)
		m.updates++
		m.out.SatelliteStatusUpdated(snap, m.handle, m.singleShot)
		return true
	case locsvc.EventFirstFix, locsvc.EventTrackingStarted, locsvc.EventTrackingStopped:
		// Observed but not forwarded.
		log.Printf("[satellite h=%d] %s", m.handle, ev.Type)
		return false
	default:
		return false
	}
}

// Updates returns how many snapshots have been forwarded.
func (m *Monitor) Updates() int {
	return m.updates
}

// Snapshot copies sats into a new slice of fixed length, truncated to max
// entries. The result never aliases the source layer's buffer.
func Snapshot(sats []position.Satellite, max int) []position.Satellite {
	n := len(sats)
	if max > 0 && n > max {
		n = max
	}
	out := make([]position.Satellite, n)
	copy(out, sats[:n])
	return out
}
