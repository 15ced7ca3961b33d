// Package marketindices maintains the market-wide context record: put-call
// ratio from the option chain, OI momentum, advance/decline breadth across
// the tracked symbols, intraday range volatility, and the session state. The
// decision engine folds this record into every per-symbol decision.
package marketindices

import (
	"context"
	"log"
	"sync"
	"time"

	"marketpulse/internal/broker"
	"marketpulse/internal/model"
)

const (
	refreshEvery = 60 * time.Second
	chainTimeout = 5 * time.Second
)

// SessionFunc reports the scheduler's current session state.
type SessionFunc func() model.SessionState

type symTrack struct {
	price     int64
	prevClose int64
	dayHigh   int64
	dayLow    int64
	oi        int64
	seen      bool
}

// Engine computes MarketIndices. It observes the live tick flow for breadth,
// volatility, and OI, and polls the option chain for PCR.
type Engine struct {
	adapter broker.Adapter
	session SessionFunc
	market  model.Symbol // index whose chain carries market PCR

	mu    sync.RWMutex
	track map[model.Symbol]*symTrack
	cur   model.MarketIndices

	// prior refresh values for the OI momentum quadrant
	refPrice int64
	refOI    int64
	refSet   bool

	// OnUpdate fires after each refresh with the new record.
	OnUpdate func(model.MarketIndices)
}

// New builds an Engine polling market's option chain for PCR.
func New(adapter broker.Adapter, session SessionFunc, market model.Symbol) *Engine {
	return &Engine{
		adapter: adapter,
		session: session,
		market:  market,
		track:   make(map[model.Symbol]*symTrack),
		cur: model.MarketIndices{
			PCRSentiment:    model.PCRNeutral,
			OIMomentum:      model.OIFlat,
			BreadthLabel:    model.BreadthNeutral,
			VolatilityLevel: model.VolNormal,
		},
	}
}

// Observe records a tick into the breadth/volatility/OI tracking state.
func (e *Engine) Observe(t model.Tick) {
	e.mu.Lock()
	st, ok := e.track[t.Symbol]
	if !ok {
		st = &symTrack{}
		e.track[t.Symbol] = st
	}
	st.price = t.Price
	st.seen = true
	if t.PrevClose > 0 {
		st.prevClose = t.PrevClose
	}
	if t.DayHigh > 0 {
		st.dayHigh = t.DayHigh
	}
	if t.DayLow > 0 {
		st.dayLow = t.DayLow
	}
	if t.OI > 0 {
		st.oi = t.OI
	}
	e.mu.Unlock()
}

// Current returns the last computed record.
func (e *Engine) Current() model.MarketIndices {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cur
}

// Run consumes ticks and refreshes the record once a minute. It returns when
// ctx is done or the tick channel closes.
func (e *Engine) Run(ctx context.Context, ticks <-chan model.Tick) {
	timer := time.NewTicker(refreshEvery)
	defer timer.Stop()
	e.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			e.Observe(t)
		case <-timer.C:
			e.Refresh(ctx)
		}
	}
}

// Refresh recomputes all indices and publishes the new record.
func (e *Engine) Refresh(ctx context.Context) {
	pcr, pcrOK := e.fetchPCR(ctx)

	e.mu.Lock()
	ind := model.MarketIndices{
		SessionState: e.session(),
		TS:           time.Now(),
	}

	if pcrOK {
		ind.PCRValue = pcr
		ind.PCRSentiment = ClassifyPCR(pcr)
		ind.PCRAvailable = true
	} else {
		ind.PCRValue = e.cur.PCRValue
		ind.PCRSentiment = e.cur.PCRSentiment
		ind.PCRAvailable = false
	}

	adv, dec := 0, 0
	for _, st := range e.track {
		if !st.seen || st.prevClose == 0 {
			continue
		}
		switch {
		case st.price > st.prevClose:
			adv++
		case st.price < st.prevClose:
			dec++
		}
	}
	ind.BreadthRatio = breadthRatio(adv, dec)
	ind.BreadthLabel = ClassifyBreadth(ind.BreadthRatio)

	if mkt, ok := e.track[e.market]; ok && mkt.prevClose > 0 && mkt.dayHigh > mkt.dayLow {
		ind.VolatilityPct = float64(mkt.dayHigh-mkt.dayLow) / float64(mkt.prevClose) * 100
	}
	ind.VolatilityLevel = ClassifyVolatility(ind.VolatilityPct)

	ind.OIMomentum = model.OIFlat
	if mkt, ok := e.track[e.market]; ok && mkt.seen {
		if e.refSet && e.refOI > 0 && mkt.oi > 0 {
			ind.OIMomentum = OIQuadrant(mkt.price-e.refPrice, mkt.oi-e.refOI)
		}
		e.refPrice, e.refOI, e.refSet = mkt.price, mkt.oi, true
	}

	e.cur = ind
	cb := e.OnUpdate
	e.mu.Unlock()

	if cb != nil {
		cb(ind)
	}
}

func (e *Engine) fetchPCR(ctx context.Context) (float64, bool) {
	cctx, cancel := context.WithTimeout(ctx, chainTimeout)
	defer cancel()
	chain, err := e.adapter.OptionChain(cctx, e.market)
	if err != nil {
		log.Printf("[indices] option chain read failed: %v", err)
		return 0, false
	}
	return chain.PCR()
}

func breadthRatio(adv, dec int) float64 {
	if dec == 0 {
		if adv == 0 {
			return 1
		}
		return float64(adv)
	}
	return float64(adv) / float64(dec)
}

// ClassifyPCR buckets the put-call ratio. A heavy put side reads contrarian
// bullish for index options.
func ClassifyPCR(v float64) model.PCRSentiment {
	switch {
	case v >= 1.3:
		return model.PCRVeryBullish
	case v >= 1.1:
		return model.PCRBullish
	case v > 0.9:
		return model.PCRNeutral
	case v > 0.7:
		return model.PCRBearish
	default:
		return model.PCRVeryBearish
	}
}

// ClassifyBreadth buckets the advance/decline ratio.
func ClassifyBreadth(r float64) model.BreadthLabel {
	switch {
	case r >= 2.0:
		return model.BreadthStrongPositive
	case r >= 1.2:
		return model.BreadthPositive
	case r > 0.8:
		return model.BreadthNeutral
	case r > 0.5:
		return model.BreadthNegative
	default:
		return model.BreadthStrongNegative
	}
}

// ClassifyVolatility buckets the intraday range as a percent of prior close.
func ClassifyVolatility(pct float64) model.VolatilityLevel {
	switch {
	case pct <= 0:
		return model.VolNormal // no range data yet
	case pct < 0.5:
		return model.VolLow
	case pct <= 1.5:
		return model.VolNormal
	default:
		return model.VolHigh
	}
}

// OIQuadrant maps (price change, OI change) to the standard four-quadrant
// futures read.
func OIQuadrant(dPrice, dOI int64) model.OIMomentumState {
	switch {
	case dPrice > 0 && dOI > 0:
		return model.OILongBuildup
	case dPrice < 0 && dOI > 0:
		return model.OIShortBuildup
	case dPrice < 0 && dOI < 0:
		return model.OILongUnwinding
	case dPrice > 0 && dOI < 0:
		return model.OIShortCovering
	default:
		return model.OIFlat
	}
}
