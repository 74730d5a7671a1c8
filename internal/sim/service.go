// Package sim is a simulated platform location service. A receiver walks
// around a fixed origin and every enabled provider reports a noisy fix of
// the true position each tick, so the whole daemon can run without hardware.
package sim

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fixmux/fixmux/internal/config"
	"github.com/fixmux/fixmux/internal/locsvc"
	"github.com/fixmux/fixmux/internal/position"
)

const (
	metersPerDegree = 111320.0
	walkSpeed       = 1.4 // m/s
)

// providerOrder is the platform listing order.
var providerOrder = []position.SourceKind{position.GPS, position.Network, position.Passive}

type provider struct {
	kind       position.SourceKind
	enabled    bool
	denied     bool
	accuracy   float64
	stallEvery int
}

type subscription struct {
	sub       locsvc.Subscription
	inbox     locsvc.Inbox
	interval  time.Duration
	single    bool
	satellite bool

	nextAt    time.Time
	delivered bool
	tracking  bool
	firstFix  bool
}

// delivery is an event waiting to be handed to an inbox outside the lock.
type delivery struct {
	inbox locsvc.Inbox
	ev    locsvc.Event
}

// Service implements locsvc.Service.
type Service struct {
	mu        sync.Mutex
	rng       *rand.Rand
	tick      time.Duration
	providers map[position.SourceKind]*provider
	subs      map[string]*subscription
	last      map[position.SourceKind]position.Fix

	lat, lon float64
	heading  float64
	ticks    int
	sky      []skyTrack
}

func New(cfg config.SimConfig) *Service {
	s := &Service{
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		tick:      cfg.Tick,
		providers: make(map[position.SourceKind]*provider),
		subs:      make(map[string]*subscription),
		last:      make(map[position.SourceKind]position.Fix),
		lat:       cfg.OriginLat,
		lon:       cfg.OriginLon,
	}
	if s.tick <= 0 {
		s.tick = 200 * time.Millisecond
	}
	for name, pc := range cfg.Providers {
		kind := position.KindFromName(name)
		if kind == position.Unknown {
			log.Printf("[sim] ignoring unknown provider %q", name)
			continue
		}
		s.providers[kind] = &provider{
			kind:       kind,
			enabled:    pc.Enabled,
			denied:     pc.Denied,
			accuracy:   pc.Accuracy,
			stallEvery: pc.StallEvery,
		}
	}
	s.heading = s.rng.Float64() * 2 * math.Pi
	s.sky = newSky(s.rng)
	return s
}

// Start drives the simulation until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	log.Printf("[sim] started: %d providers, tick %v", len(s.providers), s.tick)
	go s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Step(now)
		}
	}
}

// Step advances the simulation by one tick at time now and delivers
// whatever the tick produced.
func (s *Service) Step(now time.Time) {
	s.mu.Lock()
	s.ticks++
	s.walk()
	s.advanceSky()

	var out []delivery
	for _, kind := range providerOrder {
		p, ok := s.providers[kind]
		if !ok || !p.enabled {
			continue
		}
		if p.stallEvery > 0 && s.ticks%p.stallEvery == 0 {
			continue
		}
		fix := s.observe(p, now)
		s.last[kind] = fix
		out = append(out, s.fixDeliveries(fix, now)...)
	}
	out = append(out, s.satelliteDeliveries(now)...)
	s.mu.Unlock()

	deliver(out)
}

func (s *Service) fixDeliveries(fix position.Fix, now time.Time) []delivery {
	var out []delivery
	for _, sub := range s.subs {
		if sub.satellite || sub.sub.Kind != fix.Source {
			continue
		}
		if sub.single && sub.delivered {
			continue
		}
		if now.Before(sub.nextAt) {
			continue
		}
		sub.nextAt = now.Add(sub.interval)
		sub.delivered = true
		out = append(out, delivery{inbox: sub.inbox, ev: locsvc.FixEvent(fix)})
	}
	return out
}

func (s *Service) satelliteDeliveries(now time.Time) []delivery {
	gps, ok := s.providers[position.GPS]
	if !ok || !gps.enabled {
		return nil
	}
	var out []delivery
	for _, sub := range s.subs {
		if !sub.satellite {
			continue
		}
		if !sub.tracking {
			sub.tracking = true
			out = append(out, delivery{inbox: sub.inbox, ev: locsvc.Event{Type: locsvc.EventTrackingStarted}})
		}
		if now.Before(sub.nextAt) {
			continue
		}
		sub.nextAt = now.Add(sub.interval)
		out = append(out, delivery{inbox: sub.inbox, ev: locsvc.SatelliteEvent(s.visible())})
		if !sub.firstFix {
			if _, fixed := s.last[position.GPS]; fixed {
				sub.firstFix = true
				out = append(out, delivery{inbox: sub.inbox, ev: locsvc.Event{Type: locsvc.EventFirstFix}})
			}
		}
	}
	return out
}

func deliver(out []delivery) {
	for _, d := range out {
		d.inbox(d.ev)
	}
}

// walk moves the true position one tick along a meandering heading.
func (s *Service) walk() {
	s.heading += s.rng.NormFloat64() * 0.2
	dist := walkSpeed * s.tick.Seconds()
	s.lat += dist * math.Cos(s.heading) / metersPerDegree
	s.lon += dist * math.Sin(s.heading) / (metersPerDegree * math.Cos(s.lat*math.Pi/180))
}

// observe returns p's noisy view of the true position.
func (s *Service) observe(p *provider, now time.Time) position.Fix {
	acc := p.accuracy
	if acc <= 0 {
		acc = 10
	}
	north := s.rng.NormFloat64() * acc / 2
	east := s.rng.NormFloat64() * acc / 2
	fix := position.Fix{
		Source:    p.kind,
		Time:      now,
		Latitude:  s.lat + north/metersPerDegree,
		Longitude: s.lon + east/(metersPerDegree*math.Cos(s.lat*math.Pi/180)),
		Accuracy:  acc * (0.8 + 0.4*s.rng.Float64()),
	}
	if p.kind == position.GPS {
		fix.Altitude = 34 + s.rng.NormFloat64()*3
		fix.Speed = walkSpeed + s.rng.NormFloat64()*0.2
		fix.Bearing = math.Mod(s.heading*180/math.Pi+360, 360)
	}
	return fix
}

func (s *Service) register(kind position.SourceKind, interval time.Duration, single bool, inbox locsvc.Inbox) (locsvc.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.providers[kind]
	if !ok {
		return locsvc.Subscription{}, fmt.Errorf("%s: %w", kind, locsvc.ErrUnknownProvider)
	}
	if p.denied {
		return locsvc.Subscription{}, fmt.Errorf("%s: %w", kind, locsvc.ErrPermission)
	}
	sub := &subscription{
		sub:      locsvc.Subscription{ID: uuid.NewString(), Kind: kind},
		inbox:    inbox,
		interval: interval,
		single:   single,
	}
	s.subs[sub.sub.ID] = sub
	return sub.sub, nil
}

func (s *Service) RequestUpdates(kind position.SourceKind, interval time.Duration, inbox locsvc.Inbox) (locsvc.Subscription, error) {
	return s.register(kind, interval, false, inbox)
}

func (s *Service) RequestSingleUpdate(kind position.SourceKind, inbox locsvc.Inbox) (locsvc.Subscription, error) {
	return s.register(kind, 0, true, inbox)
}

// WatchSatellites needs the GPS provider to exist and be permitted; it may
// be disabled.
func (s *Service) WatchSatellites(inbox locsvc.Inbox) (locsvc.Subscription, error) {
	sub, err := s.register(position.GPS, 0, false, inbox)
	if err != nil {
		return sub, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.subs[sub.ID]
	st.satellite = true
	st.sub.Kind = position.Unknown
	return st.sub, nil
}

func (s *Service) Remove(sub locsvc.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub.ID)
}

func (s *Service) Providers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.providers))
	for _, kind := range providerOrder {
		if _, ok := s.providers[kind]; ok {
			names = append(names, kind.String())
		}
	}
	return names
}

func (s *Service) EnabledProviders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, kind := range providerOrder {
		if p, ok := s.providers[kind]; ok && p.enabled {
			names = append(names, kind.String())
		}
	}
	return names
}

func (s *Service) LastKnown(kind position.SourceKind) (position.Fix, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[kind]
	if !ok {
		return position.Fix{}, false, fmt.Errorf("%s: %w", kind, locsvc.ErrUnknownProvider)
	}
	if p.denied {
		return position.Fix{}, false, fmt.Errorf("%s: %w", kind, locsvc.ErrPermission)
	}
	fix, ok := s.last[kind]
	return fix, ok, nil
}

// SetProvider switches a provider on or off and grants or revokes access to
// it. Subscribers of the provider are told about enabled transitions.
func (s *Service) SetProvider(name string, enabled, denied bool) error {
	kind := position.KindFromName(name)

	s.mu.Lock()
	p, ok := s.providers[kind]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%q: %w", name, locsvc.ErrUnknownProvider)
	}
	changed := p.enabled != enabled
	p.enabled = enabled
	p.denied = denied

	var out []delivery
	if changed {
		ev := locsvc.ProviderEvent(kind, enabled)
		for _, sub := range s.subs {
			if sub.sub.Kind == kind {
				out = append(out, delivery{inbox: sub.inbox, ev: ev})
			}
			if sub.satellite && kind == position.GPS && !enabled && sub.tracking {
				sub.tracking = false
				out = append(out, delivery{inbox: sub.inbox, ev: locsvc.Event{Type: locsvc.EventTrackingStopped}})
			}
		}
	}
	s.mu.Unlock()

	log.Printf("[sim] provider %s enabled=%v denied=%v (%d notified)", kind, enabled, denied, len(out))
	deliver(out)
	return nil
}

// ProviderState is a provider's current simulated settings.
type ProviderState struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Denied  bool   `json:"denied"`
}

func (s *Service) ProviderStates() []ProviderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	states := make([]ProviderState, 0, len(s.providers))
	for kind, p := range s.providers {
		states = append(states, ProviderState{Name: kind.String(), Enabled: p.enabled, Denied: p.denied})
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })
	return states
}

// Subscriptions returns the number of active subscriptions.
func (s *Service) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
