package indicator

// PSAR is an incremental Parabolic SAR with the standard 0.02/0.02/0.2
// acceleration schedule.
type PSAR struct {
	afStart float64
	afStep  float64
	afMax   float64

	sar    float64
	ep     float64 // extreme point of the current trend
	af     float64
	up     bool
	age    int
	count  int
	prevHi float64
	prevLo float64
}

// NewPSAR creates a Parabolic SAR with the default schedule.
func NewPSAR() *PSAR {
	return &PSAR{afStart: 0.02, afStep: 0.02, afMax: 0.2}
}

func (p *PSAR) Update(high, low float64) {
	p.count++
	if p.count == 1 {
		p.prevHi, p.prevLo = high, low
		return
	}
	if p.count == 2 {
		// Seed trend from the first two candles.
		p.up = high > p.prevHi
		if p.up {
			p.sar = p.prevLo
			p.ep = high
		} else {
			p.sar = p.prevHi
			p.ep = low
		}
		p.af = p.afStart
		p.age = 1
		p.prevHi, p.prevLo = high, low
		return
	}

	p.sar = p.sar + p.af*(p.ep-p.sar)

	if p.up {
		// SAR may not enter the prior candle's range.
		if p.sar > p.prevLo {
			p.sar = p.prevLo
		}
		if low < p.sar {
			// Reversal: flip to downtrend.
			p.up = false
			p.sar = p.ep
			p.ep = low
			p.af = p.afStart
			p.age = 1
		} else {
			if high > p.ep {
				p.ep = high
				p.af += p.afStep
				if p.af > p.afMax {
					p.af = p.afMax
				}
			}
			p.age++
		}
	} else {
		if p.sar < p.prevHi {
			p.sar = p.prevHi
		}
		if high > p.sar {
			p.up = true
			p.sar = p.ep
			p.ep = high
			p.af = p.afStart
			p.age = 1
		} else {
			if low < p.ep {
				p.ep = low
				p.af += p.afStep
				if p.af > p.afMax {
					p.af = p.afMax
				}
			}
			p.age++
		}
	}
	p.prevHi, p.prevLo = high, low
}

func (p *PSAR) Value() float64 { return p.sar }
func (p *PSAR) Up() bool       { return p.up }
func (p *PSAR) Age() int       { return p.age }
func (p *PSAR) Ready() bool    { return p.count >= 3 }
