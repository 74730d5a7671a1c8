package registry

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/fixmux/fixmux/internal/availability"
	"github.com/fixmux/fixmux/internal/fusion"
	"github.com/fixmux/fixmux/internal/locsvc"
	"github.com/fixmux/fixmux/internal/position"
	"github.com/fixmux/fixmux/internal/satellite"
	"github.com/fixmux/fixmux/internal/sink"
	"github.com/fixmux/fixmux/internal/worker"
)

// Session is one live registration. Everything except the counters and the
// last forwarded fix is touched only from the session's execution context
// or under the registry's control lock.
type Session struct {
	handle     position.Handle
	mask       position.SourceMask
	mode       position.Mode
	interval   time.Duration
	singleShot bool
	started    time.Time

	engine  *fusion.Engine     // nil in satellite mode
	monitor *satellite.Monitor // non-nil only in satellite mode
	exec    *worker.Loop[locsvc.Event]
	subs    []locsvc.Subscription

	out     sink.Sink
	checker *availability.Checker

	forwarded atomic.Int64
	dropped   atomic.Int64
	lastFix   atomic.Pointer[position.Fix]
}

type sessionParams struct {
	handle     position.Handle
	mask       position.SourceMask
	mode       position.Mode
	interval   time.Duration
	singleShot bool
	inboxSize  int
	maxSats    int
}

func newSession(p sessionParams, out sink.Sink, checker *availability.Checker) *Session {
	s := &Session{
		handle:     p.handle,
		mask:       p.mask,
		mode:       p.mode,
		interval:   p.interval,
		singleShot: p.singleShot,
		started:    time.Now(),
		out:        out,
		checker:    checker,
	}
	if p.mode == position.SatelliteMode {
		s.monitor = satellite.New(p.handle, p.singleShot, p.maxSats, out)
	} else {
		s.engine = fusion.New(p.mode, p.mask, p.interval)
	}
	s.exec = worker.New(fmt.Sprintf("h=%d", p.handle), p.inboxSize, s.handleEvent)
	return s
}

// handleEvent runs on the session's execution context.
func (s *Session) handleEvent(ev locsvc.Event) {
	switch ev.Type {
	case locsvc.EventFix:
		if s.engine == nil {
			// Satellite sessions keep GPS running but only report satellites.
			return
		}
		if !s.engine.Arbitrate(ev.Fix) {
			s.dropped.Add(1)
			return
		}
		fix := ev.Fix
		s.lastFix.Store(&fix)
		s.forwarded.Add(1)
		s.out.PositionUpdated(fix, s.handle, s.singleShot)
	case locsvc.EventProviderDisabled:
		s.checker.OnSourceDisabled(s.handle, s.mask, ev.Provider, s.out)
	case locsvc.EventProviderEnabled:
		log.Printf("[session h=%d] provider enabled: %s", s.handle, ev.Provider)
	default:
		if s.monitor != nil && s.monitor.Handle(ev) {
			s.forwarded.Add(1)
		}
	}
}

// inbox is what the location service delivers to.
func (s *Session) inbox() locsvc.Inbox {
	return s.exec.Post
}

// Info is a read-only view of a session.
type Info struct {
	Handle     position.Handle     `json:"handle"`
	Mode       position.Mode       `json:"mode"`
	Sources    string              `json:"sources"`
	IntervalMs int64               `json:"intervalMs"`
	SingleShot bool                `json:"singleShot"`
	State      string              `json:"state"`
	StartedAt  time.Time           `json:"startedAt"`
	Forwarded  int64               `json:"forwarded"`
	Dropped    int64               `json:"dropped"`
	LastFix    *position.Fix       `json:"lastFix,omitempty"`
	Mask       position.SourceMask `json:"-"`
}

func (s *Session) info() Info {
	return Info{
		Handle:     s.handle,
		Mode:       s.mode,
		Sources:    s.mask.String(),
		IntervalMs: s.interval.Milliseconds(),
		SingleShot: s.singleShot,
		State:      s.exec.State().String(),
		StartedAt:  s.started,
		Forwarded:  s.forwarded.Load(),
		Dropped:    s.dropped.Load(),
		LastFix:    s.lastFix.Load(),
		Mask:       s.mask,
	}
}
