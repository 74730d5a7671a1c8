// Package sink defines where accepted updates go once a session decides to
// forward them.
package sink

import (
	"sync"

	"github.com/fixmux/fixmux/internal/position"
)

// Sink receives the updates fixmux forwards for each session. Calls for one
// handle are made from that session's execution context, so they arrive in
// order per handle; calls for different handles may be concurrent.
type Sink interface {
	PositionUpdated(fix position.Fix, handle position.Handle, singleShot bool)
	SourcesAllDisabled(handle position.Handle)
	SatelliteStatusUpdated(sats []position.Satellite, handle position.Handle, singleShot bool)
}

// Kind tags a recorded call.
type Kind int

const (
	KindPosition Kind = iota
	KindSourcesDisabled
	KindSatellites
)

// Call is one recorded Sink invocation.
type Call struct {
	Kind       Kind
	Handle     position.Handle
	SingleShot bool
	Fix        position.Fix
	Satellites []position.Satellite
}

// Recorder is a Sink that keeps every call in memory. Optionally it forwards
// to a wrapped sink.
type Recorder struct {
	mu     sync.Mutex
	calls  []Call
	next   Sink
	notify chan struct{}
}

// NewRecorder returns a Recorder that forwards to next when next is non-nil.
func NewRecorder(next Sink) *Recorder {
	return &Recorder{next: next, notify: make(chan struct{}, 1)}
}

func (r *Recorder) PositionUpdated(fix position.Fix, handle position.Handle, singleShot bool) {
	r.record(Call{Kind: KindPosition, Handle: handle, SingleShot: singleShot, Fix: fix})
	if r.next != nil {
		r.next.PositionUpdated(fix, handle, singleShot)
	}
}

func (r *Recorder) SourcesAllDisabled(handle position.Handle) {
	r.record(Call{Kind: KindSourcesDisabled, Handle: handle})
	if r.next != nil {
		r.next.SourcesAllDisabled(handle)
	}
}

func (r *Recorder) SatelliteStatusUpdated(sats []position.Satellite, handle position.Handle, singleShot bool) {
	r.record(Call{Kind: KindSatellites, Handle: handle, SingleShot: singleShot, Satellites: sats})
	if r.next != nil {
		r.next.SatelliteStatusUpdated(sats, handle, singleShot)
	}
}

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Calls returns a copy of every call recorded so far.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsFor returns the recorded calls for handle.
func (r *Recorder) CallsFor(handle position.Handle) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if c.Handle == handle {
			out = append(out, c)
		}
	}
	return out
}

// Notify is signalled (coalesced) after every recorded call.
func (r *Recorder) Notify() <-chan struct{} {
	return r.notify
}

// Reset forgets every recorded call.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}
