// Package candle aggregates normalized ticks into 1m/5m/15m OHLCV candles
// and keeps a bounded history ring per (symbol, timeframe). Buckets are
// aligned to the IST wall clock; the IST offset (19800s) is a multiple of
// every tracked timeframe, so Unix-second alignment and IST alignment agree.
package candle

import (
	"context"
	"sync"
	"time"

	"marketpulse/internal/model"
)

// Timeframes tracked by the builder, with their history depths.
var ringDepth = map[int]int{
	model.TF1m:  75,
	model.TF5m:  50,
	model.TF15m: 50,
}

// staleTolerance bounds how far behind the current bucket an out-of-order
// tick may be and still be applied to the forming candle.
const staleTolerance = 2 * time.Second

type series struct {
	tf      int
	bucket  int64 // Unix second of the forming bucket start
	cur     model.Candle
	started bool
	ring    *Ring
}

type symbolState struct {
	series map[int]*series

	// Carry-forward context for sparse tick fields.
	lastCum   int64
	cumSeeded bool
	lastOI    int64
	dayOpen   int64
	dayHigh   int64
	dayLow    int64
	prevClose int64
	lastTS    time.Time
}

// Builder turns the tick stream into candles. It owns its ring buffers
// exclusively; readers use Snapshot, which copies out a bounded window.
type Builder struct {
	mu    sync.Mutex
	state map[model.Symbol]*symbolState

	// OnFinal fires for each finalized candle (candle-close event).
	OnFinal func(c model.Candle)
	// OnDroppedTick fires when an out-of-order tick is discarded.
	OnDroppedTick func()
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{state: make(map[model.Symbol]*symbolState)}
}

// Run consumes ticks until ctx is done or the channel closes.
func (b *Builder) Run(ctx context.Context, ticks <-chan model.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			b.ProcessTick(t)
		}
	}
}

// ProcessTick folds one tick into every timeframe series for its symbol.
func (b *Builder) ProcessTick(t model.Tick) {
	if t.Price <= 0 || t.TS.IsZero() {
		return
	}

	b.mu.Lock()

	st, ok := b.state[t.Symbol]
	if !ok {
		st = &symbolState{series: make(map[int]*series, len(ringDepth))}
		for tf, depth := range ringDepth {
			st.series[tf] = &series{tf: tf, ring: NewRing(depth)}
		}
		b.state[t.Symbol] = st
	}

	// Carry forward last-seen values for fields absent on this tick.
	if t.OI == 0 {
		t.OI = st.lastOI
	} else {
		st.lastOI = t.OI
	}
	if t.DayOpen == 0 {
		t.DayOpen = st.dayOpen
	} else {
		st.dayOpen = t.DayOpen
	}
	if t.DayHigh == 0 {
		t.DayHigh = st.dayHigh
	} else {
		st.dayHigh = t.DayHigh
	}
	if t.DayLow == 0 {
		t.DayLow = st.dayLow
	} else {
		st.dayLow = t.DayLow
	}
	if t.PrevClose == 0 {
		t.PrevClose = st.prevClose
	} else {
		st.prevClose = t.PrevClose
	}

	// Volume as positive diffs of the cumulative day volume. A decrease
	// means the exchange counter reset (new session): re-baseline.
	var vol int64
	switch {
	case t.CumVolume > 0 && st.cumSeeded:
		vol = t.CumVolume - st.lastCum
		if vol < 0 {
			vol = 0
		}
		st.lastCum = t.CumVolume
	case t.CumVolume > 0:
		st.lastCum = t.CumVolume
		st.cumSeeded = true
	default:
		vol = t.Qty
	}
	st.lastTS = t.TS

	var finalized []model.Candle
	for _, s := range st.series {
		if c, done := s.apply(t, vol, b.OnDroppedTick); done {
			finalized = append(finalized, c)
		}
	}
	b.mu.Unlock()

	if b.OnFinal != nil {
		for _, c := range finalized {
			b.OnFinal(c)
		}
	}
}

// apply folds the tick into one timeframe series. Returns the finalized
// candle when the tick crossed a bucket boundary.
func (s *series) apply(t model.Tick, vol int64, onDrop func()) (model.Candle, bool) {
	ts := t.TS.Unix()
	bucket := ts - ts%int64(s.tf)

	if s.started && bucket < s.bucket {
		// Out-of-order tick from an earlier bucket. Within tolerance it
		// still contributes to the forming candle; beyond it, drop.
		if time.Duration(s.bucket-ts)*time.Second > staleTolerance {
			if onDrop != nil {
				onDrop()
			}
			return model.Candle{}, false
		}
		s.merge(t, vol)
		return model.Candle{}, false
	}

	if s.started && bucket > s.bucket {
		final := s.cur
		final.Forming = false
		s.ring.Append(final)
		s.open(t, bucket, vol)
		return final, true
	}

	if !s.started {
		s.open(t, bucket, vol)
		return model.Candle{}, false
	}

	s.merge(t, vol)
	return model.Candle{}, false
}

func (s *series) open(t model.Tick, bucket int64, vol int64) {
	s.bucket = bucket
	s.started = true
	s.cur = model.Candle{
		Symbol:  t.Symbol,
		TF:      s.tf,
		TS:      time.Unix(bucket, 0).In(t.TS.Location()),
		Open:    t.Price,
		High:    t.Price,
		Low:     t.Price,
		Close:   t.Price,
		Volume:  vol,
		OIClose: t.OI,
		Ticks:   1,
		Forming: true,
	}
}

func (s *series) merge(t model.Tick, vol int64) {
	c := &s.cur
	if t.Price > c.High {
		c.High = t.Price
	}
	if t.Price < c.Low {
		c.Low = t.Price
	}
	c.Close = t.Price
	c.Volume += vol
	c.OIClose = t.OI
	c.Ticks++
}

// Snapshot copies out up to n finalized candles (oldest first) and the
// forming candle for a (symbol, timeframe). ok is false when the series has
// seen no ticks yet.
func (b *Builder) Snapshot(sym model.Symbol, tf int, n int) (window []model.Candle, partial model.Candle, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, exists := b.state[sym]
	if !exists {
		return nil, model.Candle{}, false
	}
	s, exists := st.series[tf]
	if !exists || !s.started {
		return nil, model.Candle{}, false
	}
	return s.ring.Window(n), s.cur, true
}

// LastTickTS returns the timestamp of the last tick folded in for a symbol.
func (b *Builder) LastTickTS(sym model.Symbol) (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.state[sym]
	if !ok {
		return time.Time{}, false
	}
	return st.lastTS, true
}

// Reset discards all state for a symbol. Used by force-reconnect so a new
// session cannot mix with stale carry-forward values.
func (b *Builder) Reset(sym model.Symbol) {
	b.mu.Lock()
	delete(b.state, sym)
	b.mu.Unlock()
}
