// Package fusion decides which of the fixes arriving from a session's
// sources are forwarded downstream.
//
// GPS is assumed to be strictly more accurate than Network whenever it is
// delivering. Network fixes pass while no GPS fix has been seen, and again
// once GPS has been silent for longer than the session's update interval.
package fusion

import (
	"time"

	"github.com/fixmux/fixmux/internal/position"
)

// Engine is the arbitration state of one session. It is not safe for
// concurrent use; a session only touches it from its own execution context.
type Engine struct {
	interval time.Duration
	bypass   bool
	single   bool

	lastGPS     *position.Fix
	lastNetwork *position.Fix
	forwarded   map[position.SourceKind]bool // single-shot bookkeeping
}

// New returns an engine for a session requesting mask in mode. Arbitration
// only runs for continuous sessions requesting both sources; every other
// combination forwards fixes as they come.
func New(mode position.Mode, mask position.SourceMask, interval time.Duration) *Engine {
	e := &Engine{
		interval: interval,
		single:   mode == position.SingleShot,
		bypass:   mode == position.SingleShot || mask.Single(),
	}
	if e.single {
		e.forwarded = make(map[position.SourceKind]bool, 2)
	}
	return e
}

// Arbitrate records fix and reports whether it should be forwarded.
func (e *Engine) Arbitrate(fix position.Fix) bool {
	switch fix.Source {
	case position.GPS:
		e.lastGPS = keepNewer(e.lastGPS, fix)
	case position.Network:
		e.lastNetwork = keepNewer(e.lastNetwork, fix)
	default:
		return false
	}

	if e.bypass {
		if !e.single {
			return true
		}
		if e.forwarded[fix.Source] {
			return false
		}
		e.forwarded[fix.Source] = true
		return true
	}

	if fix.Source == position.GPS {
		return true
	}

	if e.lastGPS == nil {
		return true
	}
	// Negative deltas are stale network fixes; small positive deltas mean
	// GPS is still inside its refresh window.
	delta := fix.Time.Sub(e.lastGPS.Time)
	return delta >= e.interval
}

// LastGPS returns the most recent GPS fix seen, if any.
func (e *Engine) LastGPS() (position.Fix, bool) {
	if e.lastGPS == nil {
		return position.Fix{}, false
	}
	return *e.lastGPS, true
}

// LastNetwork returns the most recent Network fix seen, if any.
func (e *Engine) LastNetwork() (position.Fix, bool) {
	if e.lastNetwork == nil {
		return position.Fix{}, false
	}
	return *e.lastNetwork, true
}

// keepNewer returns the later of prev and fix. Recorded fixes never move
// backwards in time.
func keepNewer(prev *position.Fix, fix position.Fix) *position.Fix {
	if prev != nil && fix.Time.Before(prev.Time) {
		return prev
	}
	return &fix
}
