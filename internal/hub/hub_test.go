package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/model"
)

func dialTestHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn, timeout time.Duration) (Envelope, bool) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		return Envelope{}, false
	}
	return env, true
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client count never reached %d", n)
}

func TestPublishReachesSubscribedClient(t *testing.T) {
	h := New()
	conn := dialTestHub(t, h)
	waitClients(t, h, 1)

	h.Publish(TopicTick, model.Nifty, map[string]any{"price": 24100.5})

	env, ok := readEnvelope(t, conn, 2*time.Second)
	require.True(t, ok)
	require.Equal(t, "tick", env.Type)
	require.Equal(t, model.Nifty, env.Symbol)
}

func TestInitialSnapshotOnConnect(t *testing.T) {
	h := New()
	h.Publish(TopicSnapshot, model.Nifty, model.Snapshot{Symbol: model.Nifty, Price: 24100.5})

	conn := dialTestHub(t, h)
	env, ok := readEnvelope(t, conn, 2*time.Second)
	require.True(t, ok)
	require.Equal(t, "snapshot", env.Type)
	require.Equal(t, model.Nifty, env.Symbol)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := New()
	conn := dialTestHub(t, h)
	waitClients(t, h, 1)

	require.NoError(t, conn.WriteJSON(clientOp{
		Op:      "unsubscribe",
		Topics:  []string{"tick", "snapshot", "outlook", "decision", "oi_momentum"},
		Symbols: []string{"NIFTY", "BANKNIFTY", "SENSEX"},
	}))

	// wait for the op to land server-side
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.RLock()
		var c *Client
		for _, cl := range h.clients {
			c = cl
		}
		h.mu.RUnlock()
		if c != nil && !c.subscribed(TopicTick, model.Nifty) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.Publish(TopicTick, model.Nifty, map[string]any{"price": 1.0})
	_, ok := readEnvelope(t, conn, 300*time.Millisecond)
	require.False(t, ok, "unsubscribed client received an envelope")
}

func TestMalformedJSONCloses1003(t *testing.T) {
	h := New()
	conn := dialTestHub(t, h)
	waitClients(t, h, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	require.Equal(t, websocket.CloseUnsupportedData, closeErr.Code)
	waitClients(t, h, 0)
}

func TestUnknownOpIgnored(t *testing.T) {
	h := New()
	conn := dialTestHub(t, h)
	waitClients(t, h, 1)

	require.NoError(t, conn.WriteJSON(map[string]string{"op": "frobnicate"}))

	h.Publish(TopicTick, model.BankNifty, map[string]any{"price": 1.0})
	env, ok := readEnvelope(t, conn, 2*time.Second)
	require.True(t, ok)
	require.Equal(t, model.BankNifty, env.Symbol)
}

func TestOfferDropsOldestOnOverflow(t *testing.T) {
	h := New()
	var dropped int
	h.OnDrop = func(id string, topic Topic) { dropped++ }

	c := &Client{id: "test", send: make(chan Envelope, 2), subs: defaultSubs()}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	for i := 0; i < 5; i++ {
		h.offer(c, TopicTick, Envelope{Type: "tick", Data: i})
	}
	require.Equal(t, 3, dropped)
	require.Len(t, c.send, 2)

	// survivors are the newest two
	first := <-c.send
	second := <-c.send
	require.Equal(t, 3, first.Data)
	require.Equal(t, 4, second.Data)
}

func TestHeartbeatRewritesLiveFlagFromFeed(t *testing.T) {
	h := New()
	feedUp := true
	h.Live = func() bool { return feedUp }
	h.Publish(TopicSnapshot, model.Nifty, model.Snapshot{Symbol: model.Nifty, Price: 24100.5, IsLive: true})

	c := &Client{id: "test", send: make(chan Envelope, clientQueueLen), subs: defaultSubs()}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.heartbeat()
	env := <-c.send
	snap, ok := env.Data.(model.Snapshot)
	require.True(t, ok)
	require.True(t, snap.IsLive)
	for len(c.send) > 0 {
		<-c.send
	}

	// the feed goes down: replayed snapshots must stop claiming liveness
	feedUp = false
	h.heartbeat()
	env = <-c.send
	snap, ok = env.Data.(model.Snapshot)
	require.True(t, ok)
	require.False(t, snap.IsLive)

	// the stored snapshot itself is untouched
	stored, ok := h.Snapshot(model.Nifty)
	require.True(t, ok)
	require.True(t, stored.IsLive)
}

func TestInitialSnapshotReflectsFeedLiveness(t *testing.T) {
	h := New()
	h.Live = func() bool { return false }
	h.Publish(TopicSnapshot, model.Nifty, model.Snapshot{Symbol: model.Nifty, Price: 24100.5, IsLive: true})

	conn := dialTestHub(t, h)
	env, ok := readEnvelope(t, conn, 2*time.Second)
	require.True(t, ok)
	require.Equal(t, "snapshot", env.Type)
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, false, data["is_live"])
}

func TestHeartbeatCarriesLastSnapshot(t *testing.T) {
	h := New()
	h.Publish(TopicSnapshot, model.Sensex, model.Snapshot{Symbol: model.Sensex, Price: 80500})

	c := &Client{id: "test", send: make(chan Envelope, clientQueueLen), subs: defaultSubs()}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.heartbeat()
	require.NotEmpty(t, c.send)
	env := <-c.send
	require.Equal(t, "heartbeat", env.Type)
	require.Equal(t, model.Sensex, env.Symbol)
	snap, ok := env.Data.(model.Snapshot)
	require.True(t, ok)
	require.Equal(t, float64(80500), snap.Price)
}
