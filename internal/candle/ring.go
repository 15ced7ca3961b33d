package candle

import "marketpulse/internal/model"

// Ring is a fixed-capacity history of finalized candles for one
// (symbol, timeframe). The builder is the only writer; readers get copies
// through Window, so a reader can never observe a mutation.
type Ring struct {
	buf   []model.Candle
	next  int // index of the next write
	count int
}

// NewRing creates a ring with the given capacity.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]model.Candle, capacity)}
}

// Append adds a finalized candle, evicting the oldest when full.
func (r *Ring) Append(c model.Candle) {
	r.buf[r.next] = c
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Len returns the number of stored candles.
func (r *Ring) Len() int { return r.count }

// Last returns the most recent finalized candle.
func (r *Ring) Last() (model.Candle, bool) {
	if r.count == 0 {
		return model.Candle{}, false
	}
	idx := (r.next - 1 + len(r.buf)) % len(r.buf)
	return r.buf[idx], true
}

// Window copies out up to n most recent candles, oldest first.
func (r *Ring) Window(n int) []model.Candle {
	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]model.Candle, n)
	start := (r.next - n + len(r.buf)) % len(r.buf)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}
