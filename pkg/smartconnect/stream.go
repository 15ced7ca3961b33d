package smartconnect

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultStreamURL = "wss://smartapisocket.angelone.in/smart-stream"

	heartbeatEvery = 10 * time.Second
	readDeadline   = 30 * time.Second
	writeDeadline  = 5 * time.Second
	tickBuffer     = 1024
)

// Subscription modes.
const (
	ModeLTP       = 1
	ModeQuote     = 2
	ModeSnapQuote = 3
)

// Exchange segment codes.
const (
	ExchangeNSECM = 1
	ExchangeNSEFO = 2
	ExchangeBSECM = 3
	ExchangeBSEFO = 4
)

// StreamTick is one decoded tick frame. Prices are paise as sent on the
// wire; OHLC and OI fields are only populated in SNAP_QUOTE mode.
type StreamTick struct {
	Token        string
	ExchangeType int
	Sequence     int64
	ExchangeTS   time.Time
	LTP          int64
	LastQty      int64
	Volume       int64 // cumulative for the day
	Open         int64
	High         int64
	Low          int64
	PrevClose    int64
	OI           int64
}

// SubscriptionEntry groups tokens by exchange segment for subscribe frames.
type SubscriptionEntry struct {
	ExchangeType int      `json:"exchangeType"`
	Tokens       []string `json:"tokens"`
}

// Stream is one live tick-stream connection. A Stream is single-use: once
// the read loop exits the Ticks channel closes and the terminal error is
// available via Err.
type Stream struct {
	conn *websocket.Conn

	ticks chan StreamTick
	done  chan struct{}

	mu      sync.Mutex
	err     error
	closed  bool
	subs    []SubscriptionEntry
	lastMsg time.Time
}

// OpenStream dials the tick stream, authenticates with the session's feed
// token, and subscribes entries in SNAP_QUOTE mode.
func (c *Client) OpenStream(entries []SubscriptionEntry) (*Stream, error) {
	access, feed := c.AccessToken(), c.FeedToken()
	if access == "" || feed == "" {
		return nil, fmt.Errorf("smartconnect: stream: missing tokens: %w", ErrTokenRejected)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+access)
	header.Set("x-api-key", c.apiKey)
	header.Set("x-client-code", c.clientCode)
	header.Set("x-feed-token", feed)

	conn, resp, err := websocket.DefaultDialer.Dial(c.wsURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			c.fireExpiry()
			return nil, fmt.Errorf("smartconnect: stream dial http %d: %w", resp.StatusCode, ErrTokenRejected)
		}
		return nil, fmt.Errorf("smartconnect: stream dial: %w", err)
	}

	s := &Stream{
		conn:    conn,
		ticks:   make(chan StreamTick, tickBuffer),
		done:    make(chan struct{}),
		subs:    entries,
		lastMsg: time.Now(),
	}

	if err := s.subscribe(); err != nil {
		conn.Close()
		return nil, err
	}

	go s.readLoop()
	go s.heartbeatLoop()
	return s, nil
}

// Ticks returns the decoded tick channel. It closes when the stream dies.
func (s *Stream) Ticks() <-chan StreamTick { return s.ticks }

// Err returns the terminal error after Ticks closes, nil on clean Close.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears the connection down. Safe to call more than once.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeDeadline))
	return s.conn.Close()
}

func (s *Stream) subscribe() error {
	req := map[string]any{
		"correlationID": "marketpulse",
		"action":        1,
		"params": map[string]any{
			"mode":      ModeSnapQuote,
			"tokenList": s.subs,
		},
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("smartconnect: subscribe: %w", err)
	}
	return nil
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	if s.err == nil && !s.closed {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *Stream) readLoop() {
	defer close(s.ticks)
	defer close(s.done)
	for {
		s.conn.SetReadDeadline(time.Now().Add(readDeadline))
		mt, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(err)
			return
		}
		s.mu.Lock()
		s.lastMsg = time.Now()
		s.mu.Unlock()

		switch mt {
		case websocket.BinaryMessage:
			tick, err := decodeTick(msg)
			if err != nil {
				log.Printf("[smartconnect] bad tick frame (%d bytes): %v", len(msg), err)
				continue
			}
			select {
			case s.ticks <- tick:
			default:
				// consumer stalled; drop rather than block the read loop
			}
		case websocket.TextMessage:
			// "pong" replies to our heartbeat; anything else is a control
			// acknowledgment we don't act on
		}
	}
}

func (s *Stream) heartbeatLoop() {
	t := time.NewTicker(heartbeatEvery)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				s.fail(err)
				s.conn.Close()
				return
			}
		}
	}
}

// Binary frame layout (little endian): mode u8, exchange u8, token 25 bytes
// NUL-padded, sequence i64, exchange ts ms i64, LTP i64. QUOTE adds last qty,
// ATP, day volume, buy/sell qty (f64), day OHLC. SNAP_QUOTE adds last trade
// ts, OI, OI change.
const (
	frameLTPLen   = 51
	frameQuoteLen = 123
	frameSnapLen  = 147
)

func decodeTick(b []byte) (StreamTick, error) {
	if len(b) < frameLTPLen {
		return StreamTick{}, errors.New("frame shorter than LTP layout")
	}
	t := StreamTick{
		ExchangeType: int(b[1]),
		Token:        cstr(b[2:27]),
		Sequence:     int64(binary.LittleEndian.Uint64(b[27:35])),
		LTP:          int64(binary.LittleEndian.Uint64(b[43:51])),
	}
	t.ExchangeTS = time.UnixMilli(int64(binary.LittleEndian.Uint64(b[35:43]))).In(istZone)

	mode := int(b[0])
	if (mode == ModeQuote || mode == ModeSnapQuote) && len(b) >= frameQuoteLen {
		t.LastQty = int64(binary.LittleEndian.Uint64(b[51:59]))
		t.Volume = int64(binary.LittleEndian.Uint64(b[67:75]))
		t.Open = int64(binary.LittleEndian.Uint64(b[91:99]))
		t.High = int64(binary.LittleEndian.Uint64(b[99:107]))
		t.Low = int64(binary.LittleEndian.Uint64(b[107:115]))
		t.PrevClose = int64(binary.LittleEndian.Uint64(b[115:123]))
	}
	if mode == ModeSnapQuote && len(b) >= frameSnapLen {
		t.OI = int64(binary.LittleEndian.Uint64(b[131:139]))
	}
	return t, nil
}

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
