package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fixmux/fixmux/internal/config"
	"github.com/fixmux/fixmux/internal/locsvc"
	"github.com/fixmux/fixmux/internal/position"
)

type collector struct {
	mu     sync.Mutex
	events []locsvc.Event
}

func (c *collector) inbox(ev locsvc.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return true
}

func (c *collector) ofType(t locsvc.EventType) []locsvc.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []locsvc.Event
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func testConfig() config.SimConfig {
	return config.SimConfig{
		Enabled:   true,
		Tick:      200 * time.Millisecond,
		Seed:      42,
		OriginLat: 52.52,
		OriginLon: 13.405,
		Providers: map[string]config.SimProviderConfig{
			"gps":     {Enabled: true, Accuracy: 5},
			"network": {Enabled: true, Accuracy: 50},
		},
	}
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestProviderListing(t *testing.T) {
	cfg := testConfig()
	cfg.Providers["passive"] = config.SimProviderConfig{Enabled: false}
	s := New(cfg)

	require.Equal(t, []string{"gps", "network", "passive"}, s.Providers())
	require.Equal(t, []string{"gps", "network"}, s.EnabledProviders())
}

func TestRegistrationErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Providers["network"] = config.SimProviderConfig{Enabled: true, Denied: true}
	s := New(cfg)
	c := &collector{}

	_, err := s.RequestUpdates(position.Network, time.Second, c.inbox)
	require.ErrorIs(t, err, locsvc.ErrPermission)

	_, err = s.RequestSingleUpdate(position.Passive, c.inbox)
	require.ErrorIs(t, err, locsvc.ErrUnknownProvider)

	sub, err := s.RequestUpdates(position.GPS, time.Second, c.inbox)
	require.NoError(t, err)
	require.NotEmpty(t, sub.ID)
	require.Equal(t, position.GPS, sub.Kind)
}

func TestStepRespectsInterval(t *testing.T) {
	s := New(testConfig())
	c := &collector{}
	_, err := s.RequestUpdates(position.GPS, time.Second, c.inbox)
	require.NoError(t, err)

	s.Step(t0)
	s.Step(t0.Add(200 * time.Millisecond))
	s.Step(t0.Add(400 * time.Millisecond))
	require.Len(t, c.ofType(locsvc.EventFix), 1)

	s.Step(t0.Add(time.Second))
	fixes := c.ofType(locsvc.EventFix)
	require.Len(t, fixes, 2)
	require.Equal(t, position.GPS, fixes[1].Fix.Source)
	require.Equal(t, t0.Add(time.Second), fixes[1].Fix.Time)
	require.InDelta(t, 52.52, fixes[1].Fix.Latitude, 0.01)
}

func TestSingleUpdateDeliversOnce(t *testing.T) {
	s := New(testConfig())
	c := &collector{}
	_, err := s.RequestSingleUpdate(position.Network, c.inbox)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		s.Step(t0.Add(time.Duration(i) * time.Second))
	}
	fixes := c.ofType(locsvc.EventFix)
	require.Len(t, fixes, 1)
	require.Equal(t, position.Network, fixes[0].Fix.Source)
}

func TestStallingProviderSkipsTicks(t *testing.T) {
	cfg := testConfig()
	cfg.Providers["gps"] = config.SimProviderConfig{Enabled: true, Accuracy: 5, StallEvery: 2}
	s := New(cfg)
	c := &collector{}
	_, err := s.RequestUpdates(position.GPS, 0, c.inbox)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		s.Step(t0.Add(time.Duration(i) * 200 * time.Millisecond))
	}
	require.Len(t, c.ofType(locsvc.EventFix), 2)
}

func TestSetProviderNotifiesSubscribers(t *testing.T) {
	s := New(testConfig())
	gps, network := &collector{}, &collector{}
	_, err := s.RequestUpdates(position.GPS, 0, gps.inbox)
	require.NoError(t, err)
	_, err = s.RequestUpdates(position.Network, 0, network.inbox)
	require.NoError(t, err)

	require.NoError(t, s.SetProvider("gps", false, false))
	require.NoError(t, s.SetProvider("gps", false, false), "no transition, no event")

	disabled := gps.ofType(locsvc.EventProviderDisabled)
	require.Len(t, disabled, 1)
	require.Equal(t, position.GPS, disabled[0].Provider)
	require.Empty(t, network.ofType(locsvc.EventProviderDisabled))
	require.Equal(t, []string{"network"}, s.EnabledProviders())

	s.Step(t0)
	require.Empty(t, gps.ofType(locsvc.EventFix))
	require.Len(t, network.ofType(locsvc.EventFix), 1)

	require.NoError(t, s.SetProvider("gps", true, false))
	require.Len(t, gps.ofType(locsvc.EventProviderEnabled), 1)

	require.ErrorIs(t, s.SetProvider("glonass", true, false), locsvc.ErrUnknownProvider)
}

func TestWatchSatellites(t *testing.T) {
	s := New(testConfig())
	c := &collector{}
	sub, err := s.WatchSatellites(c.inbox)
	require.NoError(t, err)
	require.Equal(t, position.Unknown, sub.Kind)

	s.Step(t0)
	require.Len(t, c.ofType(locsvc.EventTrackingStarted), 1)
	require.Len(t, c.ofType(locsvc.EventFirstFix), 1)
	status := c.ofType(locsvc.EventSatelliteStatus)
	require.Len(t, status, 1)
	for _, sat := range status[0].Satellites {
		require.Greater(t, sat.Elevation, 5.0)
		require.True(t, sat.PRN >= 1 && sat.PRN <= constellationSize)
	}
	require.Empty(t, c.ofType(locsvc.EventFix), "a status watch never receives fixes")

	require.NoError(t, s.SetProvider("gps", false, false))
	require.Len(t, c.ofType(locsvc.EventTrackingStopped), 1)
	s.Step(t0.Add(time.Second))
	require.Len(t, c.ofType(locsvc.EventSatelliteStatus), 1)
}

func TestWatchSatellitesDenied(t *testing.T) {
	cfg := testConfig()
	cfg.Providers["gps"] = config.SimProviderConfig{Enabled: true, Denied: true}
	s := New(cfg)

	_, err := s.WatchSatellites((&collector{}).inbox)
	require.ErrorIs(t, err, locsvc.ErrPermission)
	require.Zero(t, s.Subscriptions())
}

func TestRemoveStopsDelivery(t *testing.T) {
	s := New(testConfig())
	c := &collector{}
	sub, err := s.RequestUpdates(position.GPS, 0, c.inbox)
	require.NoError(t, err)
	require.Equal(t, 1, s.Subscriptions())

	s.Remove(sub)
	s.Remove(sub)
	require.Zero(t, s.Subscriptions())

	s.Step(t0)
	require.Empty(t, c.ofType(locsvc.EventFix))
}

func TestLastKnown(t *testing.T) {
	s := New(testConfig())

	_, ok, err := s.LastKnown(position.GPS)
	require.NoError(t, err)
	require.False(t, ok)

	s.Step(t0)
	fix, ok, err := s.LastKnown(position.Network)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, t0, fix.Time)

	_, _, err = s.LastKnown(position.Passive)
	require.ErrorIs(t, err, locsvc.ErrUnknownProvider)
}

func TestSeedIsDeterministic(t *testing.T) {
	a, b := New(testConfig()), New(testConfig())
	a.Step(t0)
	b.Step(t0)

	fa, _, _ := a.LastKnown(position.GPS)
	fb, _, _ := b.LastKnown(position.GPS)
	require.Equal(t, fa, fb)
}

func TestStartRunsUntilCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.Tick = 5 * time.Millisecond
	s := New(cfg)
	c := &collector{}
	_, err := s.RequestUpdates(position.GPS, 0, c.inbox)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	require.Eventually(t, func() bool { return len(c.ofType(locsvc.EventFix)) >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
}
