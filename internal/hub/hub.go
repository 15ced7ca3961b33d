// Package hub fans engine output out to WebSocket clients. Each client
// declares a subscription set (symbols x topics); delivery is best-effort
// with a bounded per-client queue that drops oldest under pressure. A
// heartbeat envelope goes out every 5s carrying the last snapshot so a
// late-joining client is immediately usable.
package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"marketpulse/internal/model"
)

// Topic is a fan-out channel name.
type Topic string

const (
	TopicTick       Topic = "tick"
	TopicSnapshot   Topic = "snapshot"
	TopicOutlook    Topic = "outlook"
	TopicDecision   Topic = "decision"
	TopicOIMomentum Topic = "oi_momentum"
)

// Topics lists every topic a client may subscribe to.
var Topics = []Topic{TopicTick, TopicSnapshot, TopicOutlook, TopicDecision, TopicOIMomentum}

// envelope type names on the wire; oi_momentum publishes as
// "oi_momentum_update" to distinguish the event from the subscription topic.
func envelopeType(t Topic) string {
	if t == TopicOIMomentum {
		return "oi_momentum_update"
	}
	return string(t)
}

// Envelope is the typed server->client message.
type Envelope struct {
	Type   string       `json:"type"`
	Symbol model.Symbol `json:"symbol,omitempty"`
	Data   any          `json:"data,omitempty"`
	TS     time.Time    `json:"ts"`
}

const (
	clientQueueLen = 256
	heartbeatEvery = 5 * time.Second
	writeTimeout   = 2 * time.Second
)

// Hub owns the subscriber table.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	lastSnap map[model.Symbol]model.Snapshot

	// OnDrop fires when a client queue overflows and the oldest envelope
	// is discarded.
	OnDrop func(clientID string, t Topic)

	// Live reports whether the upstream feed is producing fresh ticks.
	// Replayed snapshots (heartbeats, connect-time) rewrite is_live from it
	// so a cached live flag cannot outlast the feed. Unset means live.
	Live func() bool
}

// New builds an empty Hub.
func New() *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		lastSnap: make(map[model.Symbol]model.Snapshot),
	}
}

// Publish delivers data on (topic, symbol) to every subscribed client.
// Snapshot publishes also refresh the heartbeat payload.
func (h *Hub) Publish(topic Topic, sym model.Symbol, data any) {
	env := Envelope{Type: envelopeType(topic), Symbol: sym, Data: data, TS: time.Now()}

	h.mu.Lock()
	if topic == TopicSnapshot {
		if snap, ok := data.(model.Snapshot); ok {
			h.lastSnap[sym] = snap
		}
	}
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if c.subscribed(topic, sym) {
			h.offer(c, topic, env)
		}
	}
}

// offer enqueues with drop-oldest on overflow. The client's read lock keeps
// the queue from being closed mid-send.
func (h *Hub) offer(c *Client, topic Topic, env Envelope) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- env:
		return
	default:
	}
	// full: discard the oldest and retry once
	select {
	case <-c.send:
		if h.OnDrop != nil {
			h.OnDrop(c.id, topic)
		}
	default:
	}
	select {
	case c.send <- env:
	default:
		if h.OnDrop != nil {
			h.OnDrop(c.id, topic)
		}
	}
}

// Snapshot returns the last published snapshot for sym.
func (h *Hub) Snapshot(sym model.Symbol) (model.Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.lastSnap[sym]
	return s, ok
}

// ClientCount reports connected clients, for diagnostics.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("[hub] client %s connected (%d total)", c.id, n)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	close(c.send)
	log.Printf("[hub] client %s disconnected (%d total)", c.id, n)
}

// Run emits heartbeat envelopes until ctx is done. Each heartbeat carries
// the last snapshot per symbol so stalled feeds remain observable.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(heartbeatEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.heartbeat()
		}
	}
}

func (h *Hub) heartbeat() {
	h.mu.RLock()
	snaps := make(map[model.Symbol]model.Snapshot, len(h.lastSnap))
	for sym, s := range h.lastSnap {
		snaps[sym] = s
	}
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	live := h.Live == nil || h.Live()
	now := time.Now()
	for _, topic := range Topics {
		for sym, snap := range snaps {
			if !live {
				snap.IsLive = false
			}
			env := Envelope{Type: "heartbeat", Symbol: sym, Data: snap, TS: now}
			for _, c := range clients {
				if c.subscribed(topic, sym) {
					h.offer(c, topic, env)
				}
			}
		}
	}
}
