// Package registry is the single entry point for callers. It owns every live
// session, keyed by the caller's handle, and serializes their construction
// and teardown.
package registry

import (
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/fixmux/fixmux/internal/availability"
	"github.com/fixmux/fixmux/internal/config"
	"github.com/fixmux/fixmux/internal/locsvc"
	"github.com/fixmux/fixmux/internal/position"
	"github.com/fixmux/fixmux/internal/sink"
)

var errNoSources = errors.New("no requestable source in mask")

type Registry struct {
	// mu serializes start and stop. Read-only queries go to sessions
	// directly and never wait on a slow start.
	mu       sync.Mutex
	sessions cmap.ConcurrentMap[position.Handle, *Session]

	svc     locsvc.Service
	checker *availability.Checker
	out     sink.Sink
	cfg     config.RegistryConfig
	maxSats int

	beforeRegister func(*Session) // test hook
}

// New returns a registry driving svc and forwarding to out. A nil cfg uses
// the defaults.
func New(svc locsvc.Service, out sink.Sink, cfg *config.Config) *Registry {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Registry{
		sessions: cmap.NewWithCustomShardingFunction[position.Handle, *Session](func(h position.Handle) uint32 {
			return uint32(h)
		}),
		svc:     svc,
		checker: availability.New(svc),
		out:     out,
		cfg:     cfg.Registry,
		maxSats: cfg.Satellite.MaxSatellites,
	}
}

// Start begins continuous updates from the sources in mask, at most once per
// interval. An interval of zero selects the configured default.
func (r *Registry) Start(handle position.Handle, mask position.SourceMask, interval time.Duration) position.Result {
	return r.start(sessionParams{handle: handle, mask: mask, mode: position.Continuous, interval: interval})
}

// RequestSingleUpdate asks every source in mask for exactly one fix. The
// caller still has to Stop the handle afterwards.
func (r *Registry) RequestSingleUpdate(handle position.Handle, mask position.SourceMask) position.Result {
	return r.start(sessionParams{handle: handle, mask: mask, mode: position.SingleShot, singleShot: true})
}

// StartSatelliteUpdates reports satellite visibility for handle. The result
// uses the satellite variant of the code taxonomy.
func (r *Registry) StartSatelliteUpdates(handle position.Handle, interval time.Duration, singleShot bool) position.Result {
	return r.start(sessionParams{
		handle:     handle,
		mask:       position.MaskGPS,
		mode:       position.SatelliteMode,
		interval:   interval,
		singleShot: singleShot,
	})
}

func (r *Registry) start(p sessionParams) (res position.Result) {
	satellite := p.mode == position.SatelliteMode
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[registry] recovered panic starting h=%d: %v\n%s", p.handle, rec, debug.Stack())
			res = resultFor(fmt.Errorf("panic: %v", rec), satellite)
		}
	}()

	if p.interval <= 0 {
		p.interval = r.cfg.DefaultInterval
	}
	p.inboxSize = r.cfg.InboxSize
	p.maxSats = r.maxSats

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.sessions.Pop(p.handle); ok {
		log.Printf("[registry] h=%d already live, replacing %s session", p.handle, old.mode)
		r.teardown(old)
	}

	s, err := r.construct(p)
	res = resultFor(err, satellite)
	if s != nil {
		r.sessions.Set(p.handle, s)
	}
	if err != nil {
		log.Printf("[registry] start h=%d %s %s: %s (%v)", p.handle, p.mode, p.mask, res, err)
	} else {
		log.Printf("[registry] started h=%d %s %s every %v", p.handle, p.mode, p.mask, p.interval)
	}
	return res
}

// construct builds and starts a session. It returns a nil session unless
// the session should be stored, which includes the case where it is live
// but none of its sources is currently enabled.
func (r *Registry) construct(p sessionParams) (s *Session, err error) {
	if len(p.mask.Kinds()) == 0 {
		return nil, fmt.Errorf("h=%d mask %d: %w", p.handle, p.mask, errNoSources)
	}

	s = newSession(p, r.out, r.checker)
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[registry] recovered panic constructing h=%d: %v\n%s", p.handle, rec, debug.Stack())
			err = fmt.Errorf("h=%d: panic: %v", p.handle, rec)
		}
		if err != nil && !errors.Is(err, errSourcesClosed) {
			r.teardown(s)
			s = nil
		}
	}()

	// Subscriptions deliver into the inbox straight away, so the context
	// must be running first.
	if err := s.exec.Start(r.cfg.ReadyTimeout); err != nil {
		return s, fmt.Errorf("h=%d: %w", p.handle, err)
	}
	if err := r.register(s); err != nil {
		return s, fmt.Errorf("h=%d: %w", p.handle, err)
	}
	if !r.checker.IsAnyAvailable(s.mask) {
		return s, errSourcesClosed
	}
	return s, nil
}

// register subscribes s with each requested source. Satellite sessions get
// GPS updates plus the satellite status stream; the stream is required.
func (r *Registry) register(s *Session) error {
	if r.beforeRegister != nil {
		r.beforeRegister(s)
	}
	kinds := s.mask.Kinds()
	regErr := &registrationError{requested: len(kinds)}
	for _, kind := range kinds {
		var (
			sub locsvc.Subscription
			err error
		)
		if s.mode == position.SingleShot {
			sub, err = r.svc.RequestSingleUpdate(kind, s.inbox())
		} else {
			sub, err = r.svc.RequestUpdates(kind, s.interval, s.inbox())
		}
		if err != nil {
			log.Printf("[registry] h=%d register %s: %v", s.handle, kind, err)
			regErr.add(kind, err)
			continue
		}
		s.subs = append(s.subs, sub)
	}
	if err := regErr.err(); err != nil {
		return err
	}

	if s.mode == position.SatelliteMode {
		sub, err := r.svc.WatchSatellites(s.inbox())
		if err != nil {
			return fmt.Errorf("watch satellites: %w", err)
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

// teardown removes every subscription before signalling the execution
// context. It does not wait for the worker goroutine to exit.
func (r *Registry) teardown(s *Session) {
	for _, sub := range s.subs {
		r.remove(s.handle, sub)
	}
	s.subs = nil
	s.exec.Stop()
}

func (r *Registry) remove(handle position.Handle, sub locsvc.Subscription) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[registry] recovered panic removing %s for h=%d: %v", sub.ID, handle, rec)
		}
	}()
	r.svc.Remove(sub)
}

// Stop tears down the session for handle. Unknown handles are ignored.
func (r *Registry) Stop(handle position.Handle) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[registry] recovered panic stopping h=%d: %v\n%s", handle, rec, debug.Stack())
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions.Pop(handle)
	if !ok {
		log.Printf("[registry] stop h=%d: no such session", handle)
		return
	}
	r.teardown(s)
	log.Printf("[registry] stopped h=%d after %v (%d forwarded)", handle, time.Since(s.started).Round(time.Millisecond), s.forwarded.Load())
}

// Close stops every session. A panic tearing down one session does not keep
// the others alive.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, h := range r.sessions.Keys() {
		if s, ok := r.sessions.Pop(h); ok {
			r.closeSession(s)
		}
	}
	log.Printf("[registry] closed")
}

func (r *Registry) closeSession(s *Session) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[registry] recovered panic closing h=%d: %v\n%s", s.handle, rec, debug.Stack())
		}
	}()
	r.teardown(s)
}

// QueryLastKnownPosition returns the freshest cached fix. With satelliteOnly
// only GPS is consulted. When both are cached, GPS wins unless the network
// fix is newer by at least the configured window.
func (r *Registry) QueryLastKnownPosition(satelliteOnly bool) (fix position.Fix, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[registry] recovered panic querying last known position: %v", rec)
			fix, ok = position.Fix{}, false
		}
	}()

	gps, gpsOK := r.lastKnown(position.GPS)
	if satelliteOnly {
		return gps, gpsOK
	}
	network, networkOK := r.lastKnown(position.Network)

	switch {
	case gpsOK && networkOK:
		if network.Time.Sub(gps.Time) < r.cfg.LastKnownWindow {
			return gps, true
		}
		return network, true
	case gpsOK:
		return gps, true
	case networkOK:
		return network, true
	}
	return position.Fix{}, false
}

func (r *Registry) lastKnown(kind position.SourceKind) (position.Fix, bool) {
	fix, ok, err := r.svc.LastKnown(kind)
	if err != nil {
		log.Printf("[registry] last known %s: %v", kind, err)
		return position.Fix{}, false
	}
	return fix, ok
}

// ListAvailableProviders maps the platform's provider list onto SourceKind,
// preserving its order. Providers fixmux does not know map to Unknown.
func (r *Registry) ListAvailableProviders() (kinds []position.SourceKind) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[registry] recovered panic listing providers: %v", rec)
			kinds = nil
		}
	}()

	names := r.svc.Providers()
	kinds = make([]position.SourceKind, 0, len(names))
	for _, name := range names {
		kinds = append(kinds, position.KindFromName(name))
	}
	return kinds
}

// Lookup returns a snapshot of the live session for handle.
func (r *Registry) Lookup(handle position.Handle) (Info, bool) {
	s, ok := r.sessions.Get(handle)
	if !ok {
		return Info{}, false
	}
	return s.info(), true
}

// List returns every live session ordered by handle.
func (r *Registry) List() []Info {
	items := r.sessions.Items()
	result := make([]Info, 0, len(items))
	for _, s := range items {
		result = append(result, s.info())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Handle < result[j].Handle
	})
	return result
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	return r.sessions.Count()
}
