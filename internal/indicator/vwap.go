package indicator

import "time"

// VWAP accumulates the session volume-weighted average price from candles.
// It resets when the trading day (IST date) changes.
type VWAP struct {
	day    string
	sumPV  float64
	sumVol float64
}

// NewVWAP creates a session VWAP accumulator.
func NewVWAP() *VWAP {
	return &VWAP{}
}

// Update folds one candle in, using the typical price (H+L+C)/3.
func (v *VWAP) Update(ts time.Time, high, low, close float64, volume int64) {
	day := ts.Format("2006-01-02")
	if day != v.day {
		v.day = day
		v.sumPV = 0
		v.sumVol = 0
	}
	typical := (high + low + close) / 3
	v.sumPV += typical * float64(volume)
	v.sumVol += float64(volume)
}

func (v *VWAP) Value() float64 {
	if v.sumVol == 0 {
		return 0
	}
	return v.sumPV / v.sumVol
}

func (v *VWAP) Ready() bool { return v.sumVol > 0 }

// VWMA is a rolling volume-weighted moving average over the last N candles.
type VWMA struct {
	period int
	closes []float64
	vols   []float64
	next   int
	count  int
}

// NewVWMA creates a VWMA with the given window length.
func NewVWMA(period int) *VWMA {
	return &VWMA{
		period: period,
		closes: make([]float64, period),
		vols:   make([]float64, period),
	}
}

func (v *VWMA) Update(close float64, volume int64) {
	v.closes[v.next] = close
	v.vols[v.next] = float64(volume)
	v.next = (v.next + 1) % v.period
	if v.count < v.period {
		v.count++
	}
}

func (v *VWMA) Value() float64 {
	var sumPV, sumV float64
	for i := 0; i < v.count; i++ {
		sumPV += v.closes[i] * v.vols[i]
		sumV += v.vols[i]
	}
	if sumV == 0 {
		return 0
	}
	return sumPV / sumV
}

func (v *VWMA) Ready() bool { return v.count >= v.period }
