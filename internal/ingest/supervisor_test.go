package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketpulse/internal/broker"
	"marketpulse/internal/model"
)

type fakeStream struct {
	ch     chan model.Tick
	err    error
	closed chan struct{}
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan model.Tick, 64), closed: make(chan struct{})}
}

func (f *fakeStream) Ticks() <-chan model.Tick { return f.ch }
func (f *fakeStream) Err() error               { return f.err }
func (f *fakeStream) Close() error {
	f.once.Do(func() {
		close(f.closed)
		close(f.ch)
	})
	return nil
}

type fakeAdapter struct {
	broker.Adapter
	mu       sync.Mutex
	streams  []*fakeStream
	errs     []error // errors to return before handing out streams
	quoteErr error
}

func (f *fakeAdapter) Stream(ctx context.Context) (broker.TickStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	st := newFakeStream()
	f.streams = append(f.streams, st)
	return st, nil
}

func (f *fakeAdapter) Quote(ctx context.Context, sym model.Symbol) (model.Tick, error) {
	if f.quoteErr != nil {
		return model.Tick{}, f.quoteErr
	}
	return model.Tick{Symbol: sym, Price: 100, TS: time.Now(), Source: model.SourceREST}, nil
}

func (f *fakeAdapter) current() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

func (f *fakeAdapter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

type recordSink struct {
	mu    sync.Mutex
	ticks []model.Tick
}

func (r *recordSink) Publish(ctx context.Context, t model.Tick) error {
	r.mu.Lock()
	r.ticks = append(r.ticks, t)
	r.mu.Unlock()
	return nil
}

func (r *recordSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

func marketOpen() model.SessionState { return model.SessionMarketOpen }

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSupervisorHealthyFlow(t *testing.T) {
	ad := &fakeAdapter{}
	sink := &recordSink{}
	s := New(ad, sink, marketOpen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Open()
	waitFor(t, func() bool { return ad.count() == 1 }, "stream never opened")

	st := ad.current()
	base := time.Now()
	st.ch <- model.Tick{Symbol: model.Nifty, Price: 100, TS: base}
	waitFor(t, func() bool { return s.State() == StateHealthy }, "never reached HEALTHY")
	require.True(t, s.Live())
	require.Equal(t, 1, sink.count())
}

func TestPublishDropsNonMonotonicTicks(t *testing.T) {
	sink := &recordSink{}
	s := New(&fakeAdapter{}, sink, marketOpen)

	base := time.Now()
	s.publish(context.Background(), model.Tick{Symbol: model.Nifty, TS: base})
	s.publish(context.Background(), model.Tick{Symbol: model.Nifty, TS: base.Add(-time.Second)}) // older: dropped
	s.publish(context.Background(), model.Tick{Symbol: model.Nifty, TS: base})                  // same ts: dropped
	s.publish(context.Background(), model.Tick{Symbol: model.Nifty, TS: base.Add(time.Second)})
	s.publish(context.Background(), model.Tick{Symbol: model.BankNifty, TS: base.Add(-time.Hour)}) // other symbol: fine

	require.Equal(t, 3, sink.count())
}

func TestForceReconnectResetsAndReopens(t *testing.T) {
	ad := &fakeAdapter{}
	sink := &recordSink{}
	s := New(ad, sink, marketOpen)

	var resetCalled bool
	var resetMu sync.Mutex
	s.OnReset = func() {
		resetMu.Lock()
		resetCalled = true
		resetMu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Open()
	waitFor(t, func() bool { return ad.count() == 1 }, "stream never opened")

	fctx, fcancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer fcancel()
	require.NoError(t, s.ForceReconnect(fctx))

	resetMu.Lock()
	require.True(t, resetCalled)
	resetMu.Unlock()

	waitFor(t, func() bool { return ad.count() == 2 }, "no new stream after force-reconnect")
}

func TestAuthFailuresEscalateToTokenExpired(t *testing.T) {
	ad := &fakeAdapter{errs: []error{
		&broker.AuthError{Op: "stream", Msg: "rejected"},
		&broker.AuthError{Op: "stream", Msg: "rejected"},
		&broker.AuthError{Op: "stream", Msg: "rejected"},
	}}
	sink := &recordSink{}
	s := New(ad, sink, marketOpen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Open()
	waitFor(t, func() bool { return s.State() == StateTokenExpired }, "never reached TOKEN_EXPIRED")
	require.Equal(t, 0, ad.count())

	s.TokenRecovered()
	waitFor(t, func() bool { return ad.count() == 1 }, "no stream after token recovery")
}

func TestSubscribeClearsStaleAuthFailures(t *testing.T) {
	ad := &fakeAdapter{errs: []error{
		&broker.AuthError{Op: "stream", Msg: "rejected"},
		&broker.AuthError{Op: "stream", Msg: "rejected"},
	}}
	s := New(ad, &recordSink{}, marketOpen)

	var mu sync.Mutex
	var states []State
	s.OnStateChange = func(_, to State) {
		mu.Lock()
		states = append(states, to)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	s.Open()

	waitFor(t, func() bool { return ad.count() == 1 }, "stream never opened after auth failures")
	require.Equal(t, 0, s.Health().AuthFailures)

	// one fresh auth error after a working subscribe must not escalate:
	// the two failures above belong to a finished episode
	ad.mu.Lock()
	ad.errs = append(ad.errs, &broker.AuthError{Op: "stream", Msg: "rejected"})
	ad.mu.Unlock()
	ad.current().Close()

	waitFor(t, func() bool { return ad.count() == 2 }, "never reconnected after stream death")
	mu.Lock()
	defer mu.Unlock()
	require.NotContains(t, states, StateTokenExpired)
}

func TestSchedulerCloseStopsSession(t *testing.T) {
	ad := &fakeAdapter{}
	s := New(ad, &recordSink{}, marketOpen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Open()
	waitFor(t, func() bool { return ad.count() == 1 }, "stream never opened")

	s.Close()
	waitFor(t, func() bool { return s.State() == StateClosed }, "never reached CLOSED")
	require.False(t, s.Health().FeedOpen)
}

func TestCheckStaleFiresOncePerEpisode(t *testing.T) {
	s := New(&fakeAdapter{}, &recordSink{}, marketOpen)

	s.mu.Lock()
	s.lastTick[model.Nifty] = time.Now().Add(-20 * time.Second)
	s.mu.Unlock()

	require.Equal(t, model.Nifty, s.checkStale())
	require.Equal(t, model.Symbol(""), s.checkStale()) // same episode: silent

	// a fresh tick re-arms the watchdog
	s.publish(context.Background(), model.Tick{Symbol: model.Nifty, TS: time.Now()})
	s.mu.Lock()
	s.lastTick[model.Nifty] = time.Now().Add(-20 * time.Second)
	s.mu.Unlock()
	require.Equal(t, model.Nifty, s.checkStale())
}

func TestCheckStaleDisabledOutsideTradingWindows(t *testing.T) {
	s := New(&fakeAdapter{}, &recordSink{}, func() model.SessionState { return model.SessionClosed })
	s.mu.Lock()
	s.lastTick[model.Nifty] = time.Now().Add(-time.Hour)
	s.mu.Unlock()
	require.Equal(t, model.Symbol(""), s.checkStale())
}

func TestBackoffBounds(t *testing.T) {
	for attempt := 0; attempt < 20; attempt++ {
		d := backoff(attempt)
		require.Greater(t, d, time.Duration(0), "attempt %d", attempt)
		require.LessOrEqual(t, d, time.Duration(float64(backoffCap)*(1+backoffJitter))+time.Millisecond, "attempt %d", attempt)
	}
	// early attempts stay near the base
	require.Less(t, backoff(0), 2*time.Second)
}
