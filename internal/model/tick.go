package model

import "time"

// TickSource tags where a tick was produced.
type TickSource string

const (
	SourceWS   TickSource = "ws"
	SourceREST TickSource = "rest"
)

// Tick is a single normalized market data tick.
// Prices are stored as int64 in paise (1 INR = 100 paise) to avoid float drift.
// Fields the broker omitted on a given frame are zero; the candle builder
// carries forward last-seen values.
type Tick struct {
	Symbol    Symbol     `json:"symbol"`
	Price     int64      `json:"price"`      // paise (LTP)
	Qty       int64      `json:"qty"`        // last traded quantity
	CumVolume int64      `json:"cum_volume"` // cumulative day volume
	OI        int64      `json:"oi"`         // open interest
	DayOpen   int64      `json:"day_open"`   // paise
	DayHigh   int64      `json:"day_high"`   // paise
	DayLow    int64      `json:"day_low"`    // paise
	PrevClose int64      `json:"prev_close"` // paise
	TS        time.Time  `json:"ts"`         // exchange timestamp (IST wall clock)
	Source    TickSource `json:"source"`
}

// Rupees converts a paise amount to rupees for the JSON edge.
func Rupees(paise int64) float64 {
	return float64(paise) / 100.0
}

// Paise converts rupees to the internal paise representation.
func Paise(rupees float64) int64 {
	if rupees >= 0 {
		return int64(rupees*100 + 0.5)
	}
	return int64(rupees*100 - 0.5)
}
