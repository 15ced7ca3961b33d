package model

import "time"

// Snapshot is the authoritative last-known market view for one symbol.
// It is what late-joining clients receive first and what the REST surface
// serves from cache. Prices are rupees at this edge.
type Snapshot struct {
	Symbol    Symbol    `json:"symbol"`
	Price     float64   `json:"price"`
	DayOpen   float64   `json:"day_open"`
	DayHigh   float64   `json:"day_high"`
	DayLow    float64   `json:"day_low"`
	PrevClose float64   `json:"prev_close"`
	ChangePct float64   `json:"change_pct"`
	Volume    int64     `json:"volume"`
	OI        int64     `json:"oi"`
	IsLive    bool      `json:"is_live"` // false when serving stale/closed-market data
	TS        time.Time `json:"ts"`
}

// SnapshotFromTick builds a snapshot from a normalized tick.
func SnapshotFromTick(t Tick, live bool) Snapshot {
	s := Snapshot{
		Symbol:    t.Symbol,
		Price:     Rupees(t.Price),
		DayOpen:   Rupees(t.DayOpen),
		DayHigh:   Rupees(t.DayHigh),
		DayLow:    Rupees(t.DayLow),
		PrevClose: Rupees(t.PrevClose),
		Volume:    t.CumVolume,
		OI:        t.OI,
		IsLive:    live,
		TS:        t.TS,
	}
	if t.PrevClose > 0 {
		s.ChangePct = float64(t.Price-t.PrevClose) / float64(t.PrevClose) * 100
	}
	return s
}
