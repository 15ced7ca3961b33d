package model

import (
	"encoding/json"
	"time"
)

// Timeframes tracked by the candle builder, in seconds.
const (
	TF1m  = 60
	TF5m  = 300
	TF15m = 900
)

// Candle is an OHLCV bar for one symbol and timeframe.
// A finalized candle (Forming=false) is immutable; only the forming candle
// for the current bucket mutates. Prices are in paise.
type Candle struct {
	Symbol  Symbol    `json:"symbol"`
	TF      int       `json:"tf"`      // timeframe in seconds
	TS      time.Time `json:"ts"`      // bucket open time (IST-aligned)
	Open    int64     `json:"open"`    // paise
	High    int64     `json:"high"`    // paise
	Low     int64     `json:"low"`     // paise
	Close   int64     `json:"close"`   // paise
	Volume  int64     `json:"volume"`  // traded quantity within the bucket
	OIClose int64     `json:"oi"`      // last open interest seen in the bucket
	Ticks   int       `json:"ticks"`   // ticks aggregated
	Forming bool      `json:"forming"` // true while the bucket is still open
}

// Body returns the absolute candle body size in paise.
func (c *Candle) Body() int64 {
	d := c.Close - c.Open
	if d < 0 {
		return -d
	}
	return d
}

// Range returns high-low in paise.
func (c *Candle) Range() int64 {
	return c.High - c.Low
}

// Bullish reports whether the candle closed above its open.
func (c *Candle) Bullish() bool { return c.Close > c.Open }

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
