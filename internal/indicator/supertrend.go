package indicator

// SuperTrend is the ATR-band trend-following indicator, incremental per
// finalized candle. Default parameters in this service are (10, 2).
type SuperTrend struct {
	mult float64
	atr  *ATR

	upperBand float64
	lowerBand float64
	prevClose float64
	up        bool // close above band (uptrend)
	age       int  // candles on the current band side
	seeded    bool
}

// NewSuperTrend creates a SuperTrend with the given ATR period and
// band multiplier.
func NewSuperTrend(period int, mult float64) *SuperTrend {
	return &SuperTrend{mult: mult, atr: NewATR(period)}
}

func (s *SuperTrend) Update(high, low, close float64) {
	s.atr.Update(high, low, close)
	if !s.atr.Ready() {
		s.prevClose = close
		return
	}

	mid := (high + low) / 2
	basicUpper := mid + s.mult*s.atr.Value()
	basicLower := mid - s.mult*s.atr.Value()

	if !s.seeded {
		s.upperBand = basicUpper
		s.lowerBand = basicLower
		s.up = close > mid
		s.age = 1
		s.seeded = true
		s.prevClose = close
		return
	}

	// Band carry rules: bands only tighten while the trend holds.
	if basicUpper < s.upperBand || s.prevClose > s.upperBand {
		s.upperBand = basicUpper
	}
	if basicLower > s.lowerBand || s.prevClose < s.lowerBand {
		s.lowerBand = basicLower
	}

	wasUp := s.up
	if s.up {
		if close < s.lowerBand {
			s.up = false
			s.upperBand = basicUpper
		}
	} else {
		if close > s.upperBand {
			s.up = true
			s.lowerBand = basicLower
		}
	}

	if s.up == wasUp {
		s.age++
	} else {
		s.age = 1
	}
	s.prevClose = close
}

// Value returns the active band: the lower band in an uptrend, upper in a
// downtrend.
func (s *SuperTrend) Value() float64 {
	if s.up {
		return s.lowerBand
	}
	return s.upperBand
}

func (s *SuperTrend) Up() bool    { return s.up }
func (s *SuperTrend) Age() int    { return s.age }
func (s *SuperTrend) Ready() bool { return s.seeded }
