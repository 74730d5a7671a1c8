// Package position holds the value types shared by every layer of fixmux:
// caller handles, source selection masks, fixes and satellite records.
package position

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Handle is the caller-assigned key of a session. fixmux never generates
// handles; it only guarantees at most one live session per handle.
type Handle int

// SourceKind identifies a positioning provider.
type SourceKind int

const (
	Unknown SourceKind = iota
	GPS
	Network
	Passive
)

var kindNames = map[SourceKind]string{
	Unknown: "unknown",
	GPS:     "gps",
	Network: "network",
	Passive: "passive",
}

var kindFromName = map[string]SourceKind{
	"unknown": Unknown,
	"gps":     GPS,
	"network": Network,
	"passive": Passive,
}

func (k SourceKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Index returns the provider index used on the native side of the bridge:
// GPS=0, Network=1, Passive=2 and -1 for anything else.
func (k SourceKind) Index() int {
	switch k {
	case GPS:
		return 0
	case Network:
		return 1
	case Passive:
		return 2
	default:
		return -1
	}
}

// KindFromName maps a platform provider name to a SourceKind. Names the
// enumeration does not know map to Unknown.
func KindFromName(name string) SourceKind {
	if k, ok := kindFromName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return k
	}
	return Unknown
}

func (k SourceKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *SourceKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*k = KindFromName(s)
	return nil
}

// SourceMask selects which sources a session requests.
type SourceMask int

const (
	MaskGPS     SourceMask = 1
	MaskNetwork SourceMask = 2
	MaskAll                = MaskGPS | MaskNetwork
)

// MaskOf returns the mask bit for k, or 0 for kinds that cannot be requested.
func MaskOf(k SourceKind) SourceMask {
	switch k {
	case GPS:
		return MaskGPS
	case Network:
		return MaskNetwork
	default:
		return 0
	}
}

// Has reports whether k is requested by m.
func (m SourceMask) Has(k SourceKind) bool {
	bit := MaskOf(k)
	return bit != 0 && m&bit != 0
}

// Kinds returns the requested kinds in registration order (GPS first).
func (m SourceMask) Kinds() []SourceKind {
	var kinds []SourceKind
	if m&MaskGPS != 0 {
		kinds = append(kinds, GPS)
	}
	if m&MaskNetwork != 0 {
		kinds = append(kinds, Network)
	}
	return kinds
}

// Single reports whether exactly one source is requested.
func (m SourceMask) Single() bool {
	return len(m.Kinds()) == 1
}

func (m SourceMask) String() string {
	kinds := m.Kinds()
	if len(kinds) == 0 {
		return "none"
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, "|")
}

// ParseMask builds a mask from provider names such as "gps" or "network".
// Unknown names are ignored.
func ParseMask(names ...string) SourceMask {
	var m SourceMask
	for _, n := range names {
		for _, part := range strings.Split(n, "|") {
			m |= MaskOf(KindFromName(part))
		}
	}
	return m
}

// Mode is the kind of update stream a session produces.
type Mode int

const (
	Continuous Mode = iota
	SingleShot
	SatelliteMode
)

var modeNames = map[Mode]string{
	Continuous:    "continuous",
	SingleShot:    "single_shot",
	SatelliteMode: "satellite",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "unknown"
}

func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for mode, name := range modeNames {
		if name == s {
			*m = mode
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q", s)
}

// Fix is one reported position sample. Fixes are passed by value and never
// mutated after the source layer produces them.
type Fix struct {
	Source    SourceKind `json:"source"`
	Time      time.Time  `json:"time"`
	Latitude  float64    `json:"lat"`
	Longitude float64    `json:"lon"`
	Altitude  float64    `json:"altitude_m,omitempty"`
	Accuracy  float64    `json:"accuracy_m"`
	Speed     float64    `json:"speed_mps,omitempty"`
	Bearing   float64    `json:"bearing_deg,omitempty"`
}

// Satellite is one entry of a satellite-visibility report.
type Satellite struct {
	PRN          int     `json:"prn"`
	Elevation    float64 `json:"elevation"` // degrees above horizon
	Azimuth      float64 `json:"azimuth"`   // degrees true
	SNR          float64 `json:"snr"`       // dB-Hz, 0 when not tracked
	UsedInFix    bool    `json:"usedInFix"`
	HasAlmanac   bool    `json:"hasAlmanac"`
	HasEphemeris bool    `json:"hasEphemeris"`
}
