package ws

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fixmux/fixmux/internal/position"
	"github.com/fixmux/fixmux/internal/registry"
)

// ErrTooManyConnections is returned by AddClient when the client limit is
// reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

const defaultClientBuffer = 64

// SessionLister provides the session list sent in snapshots.
type SessionLister interface {
	List() []registry.Info
}

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster fans forwarded updates out to websocket clients. It is the
// daemon's sink: positions and satellite reports are batched for one
// throttle period. A disabled-source notice flushes the pending batch and
// goes out right after it, so clients see each session's updates in the
// order the sessions produced them.
type Broadcaster struct {
	mu           sync.RWMutex
	clients      map[*client]bool
	sessions     SessionLister
	throttle     time.Duration
	maxClients   int
	clientBuffer int

	snapshotTicker *time.Ticker
	stop           chan struct{}
	stopOnce       sync.Once

	emitMu            sync.Mutex // serializes drain+send so batches and notices never interleave
	flushMu           sync.Mutex
	flushTimer        *time.Timer
	pendingPositions  []PositionUpdate
	pendingSatellites map[position.Handle]SatelliteUpdate
}

func NewBroadcaster(throttle, snapshotInterval time.Duration, maxClients, clientBuffer int) *Broadcaster {
	if clientBuffer <= 0 {
		clientBuffer = defaultClientBuffer
	}
	if snapshotInterval <= 0 {
		snapshotInterval = time.Minute
	}
	b := &Broadcaster{
		clients:           make(map[*client]bool),
		throttle:          throttle,
		maxClients:        maxClients,
		clientBuffer:      clientBuffer,
		stop:              make(chan struct{}),
		pendingSatellites: make(map[position.Handle]SatelliteUpdate),
	}

	b.snapshotTicker = time.NewTicker(snapshotInterval)
	go b.snapshotLoop()

	return b
}

// SetSessionLister configures where snapshots come from. Must be called
// before clients connect.
func (b *Broadcaster) SetSessionLister(l SessionLister) {
	b.mu.Lock()
	b.sessions = l
	b.mu.Unlock()
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	b.mu.Lock()
	if b.maxClients > 0 && len(b.clients) >= b.maxClients {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	c := &client{conn: conn, b: b, send: make(chan []byte, b.clientBuffer)}
	b.clients[c] = true
	b.mu.Unlock()

	go c.writePump()

	data, err := json.Marshal(b.snapshot())
	if err != nil {
		log.Printf("[ws] snapshot marshal error: %v", err)
		return c, nil
	}
	b.sendTo(c, data)
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) PositionUpdated(fix position.Fix, handle position.Handle, singleShot bool) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.pendingPositions = append(b.pendingPositions, PositionUpdate{Handle: handle, SingleShot: singleShot, Fix: fix})
	b.scheduleFlush()
}

// SatelliteStatusUpdated keeps only the latest report per handle within a
// throttle period. Each report is a full picture of the sky, so an older one
// still pending is replaced rather than sent.
func (b *Broadcaster) SatelliteStatusUpdated(sats []position.Satellite, handle position.Handle, singleShot bool) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.pendingSatellites[handle] = SatelliteUpdate{Handle: handle, SingleShot: singleShot, Satellites: sats}
	b.scheduleFlush()
}

func (b *Broadcaster) SourcesAllDisabled(handle position.Handle) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.emitPending()
	b.broadcast(WSMessage{Type: MsgSourcesDisabled, Payload: SourcesDisabledPayload{Handle: handle}})
}

// scheduleFlush must be called with flushMu held.
func (b *Broadcaster) scheduleFlush() {
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

func (b *Broadcaster) flush() {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()
	b.emitPending()
}

// emitPending drains and sends the current batch. Must be called with emitMu
// held.
func (b *Broadcaster) emitPending() {
	b.flushMu.Lock()
	positions := b.pendingPositions
	sats := b.pendingSatellites
	b.pendingPositions = nil
	b.pendingSatellites = make(map[position.Handle]SatelliteUpdate)
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	b.flushMu.Unlock()

	if len(positions) > 0 {
		b.broadcast(WSMessage{Type: MsgPosition, Payload: PositionPayload{Updates: positions}})
	}
	if len(sats) > 0 {
		updates := make([]SatelliteUpdate, 0, len(sats))
		for _, u := range sats {
			updates = append(updates, u)
		}
		b.broadcast(WSMessage{Type: MsgSatellites, Payload: SatellitesPayload{Updates: updates}})
	}
}

func (b *Broadcaster) snapshot() WSMessage {
	b.mu.RLock()
	lister := b.sessions
	b.mu.RUnlock()

	sessions := []registry.Info{}
	if lister != nil {
		sessions = lister.List()
	}
	return WSMessage{Type: MsgSnapshot, Payload: SnapshotPayload{Sessions: sessions}}
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.stop:
			return
		case <-b.snapshotTicker.C:
			if b.ClientCount() > 0 {
				b.broadcast(b.snapshot())
			}
		}
	}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ws] broadcast marshal error: %v", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		b.sendTo(c, data)
	}
}

// sendTo never blocks. A client that can't keep up is disconnected.
func (b *Broadcaster) sendTo(c *client, data []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		go func() {
			log.Printf("[ws] client too slow, disconnecting")
			b.RemoveClient(c)
		}()
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stop ends the snapshot loop and disconnects every client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.snapshotTicker.Stop()
		close(b.stop)

		b.flushMu.Lock()
		if b.flushTimer != nil {
			b.flushTimer.Stop()
			b.flushTimer = nil
		}
		b.flushMu.Unlock()

		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			close(c.send)
		}
		b.mu.Unlock()
	})
}
