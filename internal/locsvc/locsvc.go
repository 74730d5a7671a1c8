// Package locsvc defines the contract between fixmux and the platform
// location service: registering for fixes per provider, querying enabled
// providers and last known fixes, and the typed events the service delivers.
package locsvc

import (
	"errors"
	"time"

	"github.com/fixmux/fixmux/internal/position"
)

// ErrPermission is returned (possibly wrapped) by registration calls when the
// platform refuses access to a provider.
var ErrPermission = errors.New("location permission denied")

// ErrUnknownProvider is returned when a provider does not exist on the
// platform at all.
var ErrUnknownProvider = errors.New("unknown location provider")

// Service is the platform location service as seen by the registry. It is
// injected into the registry at construction so tests can substitute it.
//
// Events for a subscription are delivered to the inbox passed at
// registration. The registry hands in the sender of a session's execution
// context, which never blocks: an event that finds the session's inbox full
// is dropped and counted, so one slow session cannot stall delivery to the
// others.
type Service interface {
	// RequestUpdates registers for periodic fixes from kind, at most once
	// per interval. Enabled/disabled transitions of kind are delivered on
	// the same inbox for as long as the subscription is active.
	RequestUpdates(kind position.SourceKind, interval time.Duration, inbox Inbox) (Subscription, error)

	// RequestSingleUpdate registers for exactly one fix from kind.
	// Enabled/disabled transitions are delivered like RequestUpdates.
	RequestSingleUpdate(kind position.SourceKind, inbox Inbox) (Subscription, error)

	// WatchSatellites registers for raw satellite status changes.
	WatchSatellites(inbox Inbox) (Subscription, error)

	// Remove cancels a subscription. Removing an already removed
	// subscription is a no-op.
	Remove(sub Subscription)

	// Providers lists every provider the platform knows, in platform order.
	Providers() []string

	// EnabledProviders lists the providers that are currently enabled.
	EnabledProviders() []string

	// LastKnown returns the most recent cached fix of kind. ok is false
	// when the provider has never produced one.
	LastKnown(kind position.SourceKind) (fix position.Fix, ok bool, err error)
}

// Subscription identifies one registration with the Service.
type Subscription struct {
	ID   string
	Kind position.SourceKind // Unknown for satellite status subscriptions
}

// Inbox receives events for a subscription. It reports false when the event
// was dropped, either because the receiving session is shutting down or
// because its inbox is full.
type Inbox func(Event) bool

// EventType tags the variant carried by an Event.
type EventType int

const (
	EventFix              EventType = iota // Fix is set
	EventProviderEnabled                   // Provider is set
	EventProviderDisabled                  // Provider is set
	EventSatelliteStatus                   // Satellites is set
	EventFirstFix                          // satellite engine acquired its first fix
	EventTrackingStarted                   // satellite engine powered up
	EventTrackingStopped                   // satellite engine powered down
)

var eventNames = map[EventType]string{
	EventFix:              "fix",
	EventProviderEnabled:  "provider_enabled",
	EventProviderDisabled: "provider_disabled",
	EventSatelliteStatus:  "satellite_status",
	EventFirstFix:         "first_fix",
	EventTrackingStarted:  "tracking_started",
	EventTrackingStopped:  "tracking_stopped",
}

func (t EventType) String() string {
	if s, ok := eventNames[t]; ok {
		return s
	}
	return "unknown"
}

// Event is a tagged variant delivered from the Service to a session.
type Event struct {
	Type       EventType
	Fix        position.Fix
	Provider   position.SourceKind
	Satellites []position.Satellite
}

// FixEvent wraps a fix.
func FixEvent(fix position.Fix) Event {
	return Event{Type: EventFix, Fix: fix, Provider: fix.Source}
}

// ProviderEvent reports an enabled or disabled transition of kind.
func ProviderEvent(kind position.SourceKind, enabled bool) Event {
	t := EventProviderDisabled
	if enabled {
		t = EventProviderEnabled
	}
	return Event{Type: t, Provider: kind}
}

// SatelliteEvent carries a satellite status snapshot.
func SatelliteEvent(sats []position.Satellite) Event {
	return Event{Type: EventSatelliteStatus, Satellites: sats}
}
