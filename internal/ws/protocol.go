package ws

import (
	"github.com/fixmux/fixmux/internal/position"
	"github.com/fixmux/fixmux/internal/registry"
)

type MessageType string

const (
	MsgSnapshot        MessageType = "snapshot"
	MsgPosition        MessageType = "position"
	MsgSatellites      MessageType = "satellites"
	MsgSourcesDisabled MessageType = "sources_disabled"
	MsgError           MessageType = "error"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Sessions []registry.Info `json:"sessions"`
}

type PositionUpdate struct {
	Handle     position.Handle `json:"handle"`
	SingleShot bool            `json:"singleShot"`
	Fix        position.Fix    `json:"fix"`
}

type PositionPayload struct {
	Updates []PositionUpdate `json:"updates"`
}

type SatelliteUpdate struct {
	Handle     position.Handle      `json:"handle"`
	SingleShot bool                 `json:"singleShot"`
	Satellites []position.Satellite `json:"satellites"`
}

type SatellitesPayload struct {
	Updates []SatelliteUpdate `json:"updates"`
}

type SourcesDisabledPayload struct {
	Handle position.Handle `json:"handle"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Control plane bodies.

type StartRequest struct {
	Handle     position.Handle `json:"handle"`
	Sources    []string        `json:"sources"`
	IntervalMs int64           `json:"intervalMs"`
}

type SingleRequest struct {
	Sources []string `json:"sources"`
}

type SatelliteRequest struct {
	IntervalMs int64 `json:"intervalMs"`
	SingleShot bool  `json:"singleShot"`
}

type ResultResponse struct {
	Code    position.ErrorCode `json:"code"`
	Name    string             `json:"name"`
	Error   string             `json:"error,omitempty"`
	Session *registry.Info     `json:"session,omitempty"`
}

type ProviderToggle struct {
	Enabled bool `json:"enabled"`
	Denied  bool `json:"denied"`
}

type HealthResponse struct {
	Status     string  `json:"status"`
	Sessions   int     `json:"sessions"`
	Clients    int     `json:"clients"`
	UptimeSec  int64   `json:"uptimeSec"`
	Goroutines int     `json:"goroutines"`
	RSSBytes   uint64  `json:"rssBytes,omitempty"`
	CPUPercent float64 `json:"cpuPercent,omitempty"`
	Threads    int32   `json:"threads,omitempty"`
}
