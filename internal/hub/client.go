package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"marketpulse/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type subKey struct {
	topic Topic
	sym   model.Symbol
}

// Client is one connected WebSocket subscriber.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan Envelope

	mu     sync.RWMutex
	subs   map[subKey]bool
	closed bool
}

func (c *Client) subscribed(topic Topic, sym model.Symbol) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[subKey{topic, sym}]
}

// clientOp is a subscribe/unsubscribe request from the client.
type clientOp struct {
	Op      string   `json:"op"`
	Topics  []string `json:"topics"`
	Symbols []string `json:"symbols"`
}

func (c *Client) apply(op clientOp) {
	topics := make([]Topic, 0, len(op.Topics))
	for _, t := range op.Topics {
		for _, known := range Topics {
			if Topic(t) == known {
				topics = append(topics, known)
			}
		}
	}
	syms := make([]model.Symbol, 0, len(op.Symbols))
	for _, s := range op.Symbols {
		if sym, ok := model.ParseSymbol(s); ok {
			syms = append(syms, sym)
		}
	}
	if len(topics) == 0 || len(syms) == 0 {
		return
	}

	c.mu.Lock()
	for _, t := range topics {
		for _, s := range syms {
			if op.Op == "unsubscribe" {
				delete(c.subs, subKey{t, s})
			} else {
				c.subs[subKey{t, s}] = true
			}
		}
	}
	c.mu.Unlock()
}

// defaultSubs subscribes every topic for every tracked symbol.
func defaultSubs() map[subKey]bool {
	subs := make(map[subKey]bool)
	for _, t := range Topics {
		for _, s := range model.AllSymbols() {
			subs[subKey{t, s}] = true
		}
	}
	return subs
}

// HandleWS upgrades the request and runs the client until it disconnects.
// On connect the server immediately sends a snapshot envelope per symbol.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[hub] upgrade failed: %v", err)
		return
	}

	c := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Envelope, clientQueueLen),
		subs: defaultSubs(),
	}
	h.register(c)

	// initial snapshots so the client is usable before the first live event
	now := time.Now()
	live := h.Live == nil || h.Live()
	for _, sym := range model.AllSymbols() {
		if snap, ok := h.Snapshot(sym); ok {
			if !live {
				snap.IsLive = false
			}
			c.send <- Envelope{Type: "snapshot", Symbol: sym, Data: snap, TS: now}
		}
	}

	go c.writeLoop(h)
	c.readLoop(h)
}

// readLoop consumes subscribe/unsubscribe ops. Unrecognized ops are
// ignored; malformed JSON closes the socket with 1003.
func (c *Client) readLoop(h *Hub) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	for {
		mt, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var op clientOp
		if err := json.Unmarshal(msg, &op); err != nil {
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "malformed JSON"),
				time.Now().Add(writeTimeout))
			return
		}
		switch op.Op {
		case "subscribe", "unsubscribe":
			c.apply(op)
		default:
			// ignored
		}
	}
}

// writeLoop drains the send queue. A write past the deadline drops the
// client.
func (c *Client) writeLoop(h *Hub) {
	defer c.conn.Close()
	for env := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(env); err != nil {
			log.Printf("[hub] client %s write failed, dropping: %v", c.id, err)
			h.unregister(c)
			// drain remaining queued envelopes
			for range c.send {
			}
			return
		}
	}
}
