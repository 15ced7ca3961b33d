package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketpulse/internal/markethours"
	"marketpulse/internal/model"
)

func istDate(y int, mo time.Month, d, h, m int) time.Time {
	return time.Date(y, mo, d, h, m, 0, 0, markethours.IST)
}

func TestEMASeedAndSmooth(t *testing.T) {
	e := NewEMA(3)
	require.False(t, e.Ready())

	e.Update(10)
	e.Update(20)
	require.False(t, e.Ready())
	e.Update(30)
	require.True(t, e.Ready())
	require.InDelta(t, 20.0, e.Value(), 1e-9) // SMA seed

	// multiplier 2/(3+1)=0.5
	e.Update(40)
	require.InDelta(t, 30.0, e.Value(), 1e-9)
}

func TestEMAPeekDoesNotMutate(t *testing.T) {
	e := NewEMA(3)
	for _, v := range []float64{10, 20, 30} {
		e.Update(v)
	}
	got := e.Peek(40)
	require.InDelta(t, 30.0, got, 1e-9)
	require.InDelta(t, 20.0, e.Value(), 1e-9)
	// before the seed completes, Peek echoes the input
	require.InDelta(t, 42.0, NewEMA(5).Peek(42), 1e-9)
}

func TestRSIAllGainsIs100(t *testing.T) {
	r := NewRSI(14)
	for i := 0; i <= 15; i++ {
		r.Update(100 + float64(i))
	}
	require.True(t, r.Ready())
	require.InDelta(t, 100.0, r.Value(), 1e-9)
}

func TestRSIBalancedNear50(t *testing.T) {
	r := NewRSI(14)
	price := 100.0
	r.Update(price)
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			price += 1
		} else {
			price -= 1
		}
		r.Update(price)
	}
	require.InDelta(t, 50.0, r.Value(), 5.0)
}

func TestRSIPeekDoesNotMutate(t *testing.T) {
	r := NewRSI(14)
	for i := 0; i <= 15; i++ {
		r.Update(100 + float64(i))
	}
	before := r.Value()
	peeked := r.Peek(90) // a large drop must pull RSI down
	require.Less(t, peeked, before)
	require.InDelta(t, before, r.Value(), 1e-9)
}

func TestATRWilderSmoothing(t *testing.T) {
	a := NewATR(3)
	// constant 2-point ranges, no gaps
	a.Update(102, 100, 101)
	a.Update(102, 100, 101)
	require.False(t, a.Ready())
	a.Update(102, 100, 101)
	require.True(t, a.Ready())
	require.InDelta(t, 2.0, a.Value(), 1e-9)

	// a gap up widens the true range (high-prevClose irrelevant here,
	// low-prevClose = 5)
	a.Update(108, 106, 107)
	require.InDelta(t, (2*2+7)/3.0, a.Value(), 1e-9)
}

func TestPivotLevels(t *testing.T) {
	pv := ComputePivots(24120, 23880, 24050)
	p := (24120.0 + 23880.0 + 24050.0) / 3

	require.InDelta(t, p, pv.P, 1e-9)
	require.InDelta(t, 2*p-23880, pv.R1, 1e-9)
	require.InDelta(t, 2*p-24120, pv.S1, 1e-9)
	require.InDelta(t, p+240, pv.R2, 1e-9)
	require.InDelta(t, p-240, pv.S2, 1e-9)

	// Camarilla rails around the close
	rng := 240.0
	require.InDelta(t, 24050+rng*1.1/2, pv.H4, 1e-9)
	require.InDelta(t, 24050-rng*1.1/2, pv.L4, 1e-9)
	require.InDelta(t, 24050+rng*1.1/4, pv.H3, 1e-9)
	require.Greater(t, pv.H4, pv.H3)
	require.Less(t, pv.L4, pv.L3)
}

func TestVWAPResetsOnNewDay(t *testing.T) {
	v := NewVWAP()
	d1 := istDate(2026, time.August, 24, 9, 16)
	v.Update(d1, 102, 98, 100, 100) // typical 100
	v.Update(d1.Add(time.Minute), 112, 108, 110, 100)
	require.InDelta(t, 105.0, v.Value(), 1e-9)

	v.Update(istDate(2026, time.August, 25, 9, 16), 202, 198, 200, 50)
	require.InDelta(t, 200.0, v.Value(), 1e-9)
}

func TestVWMAWeightsByVolume(t *testing.T) {
	v := NewVWMA(2)
	v.Update(100, 100)
	require.False(t, v.Ready())
	v.Update(200, 300)
	require.True(t, v.Ready())
	require.InDelta(t, (100*100+200*300)/400.0, v.Value(), 1e-9)
}

func TestSuperTrendFlipsOnBandBreak(t *testing.T) {
	s := NewSuperTrend(3, 2)
	// establish an uptrend
	px := 100.0
	for i := 0; i < 8; i++ {
		s.Update(px+1, px-1, px)
		px += 2
	}
	require.True(t, s.Ready())
	require.True(t, s.Up())
	age := s.Age()
	require.Greater(t, age, 1)

	// collapse far below the lower band forces a flip
	s.Update(px-40, px-44, px-43)
	require.False(t, s.Up())
	require.Equal(t, 1, s.Age())
}

func TestPSARTracksTrendAndReverses(t *testing.T) {
	p := NewPSAR()
	px := 100.0
	for i := 0; i < 10; i++ {
		p.Update(px+1, px-1)
		px += 2
	}
	require.True(t, p.Ready())
	require.True(t, p.Up())
	require.Less(t, p.Value(), px-1) // SAR trails below price in an uptrend

	// crash through the SAR reverses the trend
	p.Update(p.Value()-5, p.Value()-10)
	require.False(t, p.Up())
	require.Equal(t, 1, p.Age())
}

func TestProfileBucketLabels(t *testing.T) {
	// 24 candles trading at two levels: heavy volume at ~100, light at ~110
	var win []model.Candle
	for i := 0; i < 12; i++ {
		win = append(win, model.Candle{High: 10100, Low: 9900, Close: 10000, Volume: 1000})
	}
	for i := 0; i < 12; i++ {
		win = append(win, model.Candle{High: 11100, Low: 10900, Close: 11000, Volume: 10})
	}

	label, ok := ProfileBucket(win, 100)
	require.True(t, ok)
	require.Equal(t, ProfileHighVolumeNode, label)

	label, ok = ProfileBucket(win, 110)
	require.True(t, ok)
	require.Equal(t, ProfileLowVolumeNode, label)
}

func TestProfileBucketThinWindow(t *testing.T) {
	win := []model.Candle{{High: 101, Low: 99, Close: 100, Volume: 10}}
	_, ok := ProfileBucket(win, 100)
	require.False(t, ok)
}

func TestVolStats(t *testing.T) {
	var v volStats
	for i := 0; i < 20; i++ {
		v.update(1000)
	}
	require.True(t, v.ready())
	mean, std := v.meanStd()
	require.InDelta(t, 1000.0, mean, 1e-9)
	require.InDelta(t, 0.0, std, 1e-9)

	v.update(3000) // replaces the oldest
	mean, _ = v.meanStd()
	require.InDelta(t, 1100.0, mean, 1e-9)
}

func TestMathSanity(t *testing.T) {
	// guard against NaN leaking from empty accumulators
	require.False(t, math.IsNaN(NewVWAP().Value()))
	require.False(t, math.IsNaN(NewVWMA(5).Value()))
}
