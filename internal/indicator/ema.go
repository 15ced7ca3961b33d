package indicator

// EMA is an incremental exponential moving average. O(1) per update: the
// first `period` closes seed an SMA, after which each update is one
// multiply-add.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates an EMA with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Update(close float64) {
	e.count++
	if e.count <= e.period {
		e.sum += close
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}
	e.current = close*e.multiplier + e.current*(1-e.multiplier)
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }

// Peek returns the value one more close would produce, without mutating.
func (e *EMA) Peek(close float64) float64 {
	if e.count < e.period {
		return close
	}
	return close*e.multiplier + e.current*(1-e.multiplier)
}
