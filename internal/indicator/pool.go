// Package indicator computes the per-symbol technical battery. Incremental
// indicators (EMA family, RSI, ATR, SuperTrend, PSAR, VWMA, VWAP) advance on
// finalized candles; window-based ones (ORB, volume profile) read a bounded
// copy of the candle history. Evaluation against the forming candle is
// throttled to one pass per symbol per 500ms.
package indicator

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"marketpulse/internal/markethours"
	"marketpulse/internal/model"
)

// CandleSource is the read seam onto the candle builder: a copy-out window
// of finalized candles plus the forming candle.
type CandleSource interface {
	Snapshot(sym model.Symbol, tf int, n int) (window []model.Candle, partial model.Candle, ok bool)
}

// evalThrottle is the minimum spacing between forming-candle evaluations.
const evalThrottle = 500 * time.Millisecond

type volStats struct {
	vols  [20]float64
	next  int
	count int
}

func (v *volStats) update(vol int64) {
	v.vols[v.next] = float64(vol)
	v.next = (v.next + 1) % len(v.vols)
	if v.count < len(v.vols) {
		v.count++
	}
}

func (v *volStats) ready() bool { return v.count >= len(v.vols) }

func (v *volStats) meanStd() (mean, std float64) {
	if v.count == 0 {
		return 0, 0
	}
	for i := 0; i < v.count; i++ {
		mean += v.vols[i]
	}
	mean /= float64(v.count)
	for i := 0; i < v.count; i++ {
		d := v.vols[i] - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(v.count))
	return mean, std
}

type priorDay struct {
	high, low, close float64
	ok               bool
}

type symState struct {
	ema20, ema50, ema100, ema200 *EMA
	rsi5, rsi15                  *RSI
	atr                          *ATR
	vwap                         *VWAP
	vwma                         *VWMA
	st                           *SuperTrend
	sar                          *PSAR
	vol                          volStats

	prevOI   int64
	lastOI   int64
	oiSeeded bool

	prior priorDay

	limiter *rate.Limiter
	last    model.Indicators
	hasLast bool
}

func newSymState() *symState {
	return &symState{
		ema20:   NewEMA(20),
		ema50:   NewEMA(50),
		ema100:  NewEMA(100),
		ema200:  NewEMA(200),
		rsi5:    NewRSI(14),
		rsi15:   NewRSI(14),
		atr:     NewATR(14),
		vwap:    NewVWAP(),
		vwma:    NewVWMA(20),
		st:      NewSuperTrend(10, 2),
		sar:     NewPSAR(),
		limiter: rate.NewLimiter(rate.Every(evalThrottle), 1),
	}
}

// Pool holds the indicator state for every symbol.
type Pool struct {
	src CandleSource

	mu    sync.Mutex
	state map[model.Symbol]*symState
}

// NewPool creates a Pool reading candles from src.
func NewPool(src CandleSource) *Pool {
	return &Pool{src: src, state: make(map[model.Symbol]*symState)}
}

func (p *Pool) sym(sym model.Symbol) *symState {
	st, ok := p.state[sym]
	if !ok {
		st = newSymState()
		p.state[sym] = st
	}
	return st
}

// SetPriorDay records the previous trading day's OHLC (rupees) used for
// pivot and Camarilla levels.
func (p *Pool) SetPriorDay(sym model.Symbol, high, low, close float64) {
	p.mu.Lock()
	p.sym(sym).prior = priorDay{high: high, low: low, close: close, ok: true}
	p.mu.Unlock()
}

// OnCandleClose advances the incremental indicators with a finalized candle.
func (p *Pool) OnCandleClose(c model.Candle) {
	p.mu.Lock()
	st := p.sym(c.Symbol)

	h, l, cl := model.Rupees(c.High), model.Rupees(c.Low), model.Rupees(c.Close)
	switch c.TF {
	case model.TF1m:
		st.vwap.Update(c.TS, h, l, cl, c.Volume)
	case model.TF5m:
		st.ema20.Update(cl)
		st.ema50.Update(cl)
		st.ema100.Update(cl)
		st.ema200.Update(cl)
		st.rsi5.Update(cl)
		st.atr.Update(h, l, cl)
		st.vwma.Update(cl, c.Volume)
		st.st.Update(h, l, cl)
		st.sar.Update(h, l)
		st.vol.update(c.Volume)
		if c.OIClose > 0 {
			if st.oiSeeded {
				st.prevOI = st.lastOI
			}
			st.lastOI = c.OIClose
			st.oiSeeded = true
		}
	case model.TF15m:
		st.rsi15.Update(cl)
	}
	p.mu.Unlock()
}

// Evaluate produces the indicator record for a symbol, folding the forming
// 5m candle in via Peek. Throttled: within 500ms of the previous pass the
// cached record is returned. force bypasses the throttle (candle close).
func (p *Pool) Evaluate(sym model.Symbol, force bool) (model.Indicators, bool) {
	p.mu.Lock()
	st := p.sym(sym)
	if !force && !st.limiter.Allow() && st.hasLast {
		out := st.last
		p.mu.Unlock()
		return out, true
	}
	p.mu.Unlock()

	win5, partial5, ok := p.src.Snapshot(sym, model.TF5m, 50)
	if !ok {
		return model.Indicators{Symbol: sym, TS: time.Now()}, false
	}
	win1, partial1, have1m := p.src.Snapshot(sym, model.TF1m, 75)

	price := model.Rupees(partial5.Close)

	p.mu.Lock()
	defer p.mu.Unlock()

	ind := model.Indicators{
		Symbol:    sym,
		TS:        partial5.TS.Add(time.Duration(partial5.TF) * time.Second),
		LastPrice: price,
	}
	if ts := latestTS(win5, partial5); !ts.IsZero() {
		ind.TS = ts
	}

	// EMA family, peeked against the forming close.
	ind.EMA20 = st.ema20.Peek(price)
	ind.EMA50 = st.ema50.Peek(price)
	ind.EMA100 = st.ema100.Peek(price)
	ind.EMA200 = st.ema200.Peek(price)
	ind.EMAReady = st.ema50.Ready()

	ind.VWAP = st.vwap.Value()
	ind.VWAPReady = st.vwap.Ready()

	ind.VWMA20 = st.vwma.Value()
	ind.VWMAReady = st.vwma.Ready()

	ind.RSI5m = st.rsi5.Peek(price)
	ind.RSI15m = st.rsi15.Value()
	ind.RSIReady = st.rsi5.Ready() && st.rsi15.Ready()

	ind.ATR14 = st.atr.Value()
	ind.ATRReady = st.atr.Ready()

	if st.prior.ok {
		ind.Pivots = ComputePivots(st.prior.high, st.prior.low, st.prior.close)
		ind.PivotsReady = true
	}

	if have1m {
		if hi, lo, ok := openingRange(win1, partial1); ok {
			ind.ORBHigh, ind.ORBLow, ind.ORBReady = hi, lo, true
		}
		if label, ok := ProfileBucket(append(win1, partial1), price); ok {
			ind.ProfileBucket, ind.ProfileReady = label, true
		}
	}

	if st.oiSeeded && st.prevOI > 0 {
		ind.OIDelta = st.lastOI - st.prevOI
		ind.OIDeltaPct = float64(ind.OIDelta) / float64(st.prevOI) * 100
		ind.OIReady = true
	}

	ind.SuperTrend = st.st.Value()
	ind.SuperTrendUp = st.st.Up()
	ind.SuperTrendAge = st.st.Age()
	ind.SuperTrendReady = st.st.Ready()

	ind.SAR = st.sar.Value()
	ind.SARUp = st.sar.Up()
	ind.SARAge = st.sar.Age()
	ind.SARReady = st.sar.Ready()

	ind.VolumeMA20, ind.VolumeStd20 = st.vol.meanStd()
	ind.VolumeReady = st.vol.ready()

	st.last = ind
	st.hasLast = true
	return ind, true
}

// Reset drops all indicator state for a symbol (force-reconnect path).
func (p *Pool) Reset(sym model.Symbol) {
	p.mu.Lock()
	delete(p.state, sym)
	p.mu.Unlock()
}

// openingRange extracts the high/low of the first 15 minutes of the regular
// session (09:15-09:30 IST) for the day of the most recent candle. The range
// is only fixed once a candle at or past 09:30 exists.
func openingRange(win []model.Candle, partial model.Candle) (hi, lo float64, ok bool) {
	last := partial.TS
	if last.IsZero() && len(win) > 0 {
		last = win[len(win)-1].TS
	}
	if last.IsZero() {
		return 0, 0, false
	}
	day := last.In(markethours.IST)
	open := time.Date(day.Year(), day.Month(), day.Day(), markethours.OpenHour, markethours.OpenMinute, 0, 0, markethours.IST)
	fixAt := open.Add(15 * time.Minute)

	sealed := false
	found := false
	all := append(append([]model.Candle(nil), win...), partial)
	for _, c := range all {
		ts := c.TS.In(markethours.IST)
		if !ts.Before(fixAt) {
			sealed = true
			continue
		}
		if ts.Before(open) {
			continue
		}
		h, l := model.Rupees(c.High), model.Rupees(c.Low)
		if !found || h > hi {
			hi = h
		}
		if !found || l < lo {
			lo = l
		}
		found = true
	}
	return hi, lo, sealed && found
}

func latestTS(win []model.Candle, partial model.Candle) time.Time {
	if !partial.TS.IsZero() {
		return partial.TS
	}
	if len(win) > 0 {
		return win[len(win)-1].TS
	}
	return time.Time{}
}
