package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketpulse/internal/model"
)

func c5(ts time.Time, open, high, low, close float64, vol int64) model.Candle {
	return model.Candle{
		Symbol: model.Nifty, TF: model.TF5m, TS: ts,
		Open: model.Paise(open), High: model.Paise(high),
		Low: model.Paise(low), Close: model.Paise(close),
		Volume: vol, Ticks: 10,
	}
}

// bullishFixture builds an input where every directional signal should read
// long: rising structure, price above every band and level, volume surge,
// OI building with price.
func bullishFixture() Input {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.FixedZone("IST", 19800))
	win := make([]model.Candle, 0, 12)
	px := 97.0
	for i := 0; i < 12; i++ {
		lo := px
		hi := px + 0.5
		// close at the high: accumulation in the money-flow read
		win = append(win, c5(base.Add(time.Duration(i)*5*time.Minute), lo+0.05, hi, lo, hi, 1000))
		px += 0.25
	}
	partial := c5(base.Add(60*time.Minute), 100.2, 101.05, 100.15, 101.0, 2000)

	return Input{
		Session:  model.SessionMarketOpen,
		Win5:     win,
		Partial5: partial,
		Ind: model.Indicators{
			Symbol:    model.Nifty,
			TS:        partial.TS,
			LastPrice: 101.0,

			EMA20: 100.5, EMA50: 99.0, EMA100: 98.5, EMA200: 98.0, EMAReady: true,
			VWAP: 100.2, VWAPReady: true,
			VWMA20: 100.0, VWMAReady: true,
			RSI5m: 65, RSI15m: 55, RSIReady: true,
			ATR14: 0.6, ATRReady: true,

			Pivots: model.PivotLevels{
				P: 100.0, R1: 101.5, R2: 102.0, R3: 102.5,
				S1: 99.5, S2: 99.0, S3: 98.5,
				H1: 100.2, H2: 100.4, H3: 100.6, H4: 100.8,
				L1: 99.8, L2: 99.6, L3: 99.4, L4: 99.2,
			},
			PivotsReady: true,

			ORBHigh: 100.5, ORBLow: 99.5, ORBReady: true,

			OIDelta: 1000, OIDeltaPct: 2.0, OIReady: true,

			SuperTrend: 99.8, SuperTrendUp: true, SuperTrendAge: 5, SuperTrendReady: true,
			SAR: 99.6, SARUp: true, SARAge: 5, SARReady: true,

			VolumeMA20: 1000, VolumeStd20: 100, VolumeReady: true,
		},
	}
}

func TestEvaluateAlwaysFourteenSignals(t *testing.T) {
	for name, in := range map[string]Input{
		"empty":   {},
		"bullish": bullishFixture(),
	} {
		sigs := Evaluate(in)
		require.Len(t, sigs, 14, name)
		for i, s := range sigs {
			require.Equal(t, model.SignalKinds[i], s.Kind, name)
			require.GreaterOrEqual(t, s.Confidence, 0.0, name)
			require.LessOrEqual(t, s.Confidence, 100.0, name)
			require.NotEmpty(t, s.Status, name)
		}
	}
}

func TestEvaluateEmptyInputAllNoData(t *testing.T) {
	for _, s := range Evaluate(Input{}) {
		if s.Direction != model.DirNeutral {
			t.Fatalf("%s: direction %s on empty input", s.Kind, s.Direction)
		}
		if s.Confidence != 50 {
			t.Fatalf("%s: confidence %.1f on empty input, want 50", s.Kind, s.Confidence)
		}
	}
}

func TestEvaluateBullishFixture(t *testing.T) {
	in := bullishFixture()
	sigs := Evaluate(in)

	byKind := map[model.SignalKind]model.Signal{}
	for _, s := range sigs {
		byKind[s.Kind] = s
	}

	for _, kind := range []model.SignalKind{
		model.KindTrendBase, model.KindVolumePulse, model.KindCandleIntent,
		model.KindPivotPoints, model.KindORB, model.KindSuperTrend,
		model.KindParabolicSAR, model.KindRSI, model.KindCamarilla,
		model.KindVWMA, model.KindHighVolume, model.KindSmartMoney,
		model.KindOIMomentum,
	} {
		require.Equal(t, model.DirBuy, byKind[kind].Direction, "%s: %s", kind, byKind[kind].Status)
	}
	// price sits between S1 and R1: no trade zone engaged
	require.Equal(t, model.DirNeutral, byKind[model.KindTradeZones].Direction)
}

func TestAggregateCountsAndLabel(t *testing.T) {
	in := bullishFixture()
	o := Aggregate(model.Nifty, Evaluate(in), in)

	require.Equal(t, 14, o.Bullish+o.Bearish+o.Neutral)
	require.Equal(t, 13, o.Bullish)
	require.Equal(t, 0, o.Bearish)
	require.Greater(t, o.Confidence, 70.0)
	require.Equal(t, model.OutlookStrongBuy, o.Label)
	require.InDelta(t, 92.9, o.TrendPercent, 0.01)
}

func TestAggregateOrderIndependent(t *testing.T) {
	in := bullishFixture()
	sigs := Evaluate(in)

	shuffled := make([]model.Signal, len(sigs))
	for i, s := range sigs {
		shuffled[(i*5)%len(sigs)] = s
	}

	a := Aggregate(model.Nifty, sigs, in)
	b := Aggregate(model.Nifty, shuffled, in)
	require.Equal(t, a.Bullish, b.Bullish)
	require.Equal(t, a.Bearish, b.Bearish)
	require.Equal(t, a.Label, b.Label)
	require.InDelta(t, a.Confidence, b.Confidence, 1e-9)
	require.InDelta(t, a.TrendPercent, b.TrendPercent, 1e-9)
}

func TestAggregateLabelThresholds(t *testing.T) {
	mk := func(buy, sell int, conf float64) []model.Signal {
		out := make([]model.Signal, 0, 14)
		for i := 0; i < 14; i++ {
			s := model.Signal{Kind: model.SignalKinds[i], Direction: model.DirNeutral, Confidence: conf}
			if i < buy {
				s.Direction = model.DirBuy
			} else if i < buy+sell {
				s.Direction = model.DirSell
			}
			out = append(out, s)
		}
		return out
	}

	cases := []struct {
		buy, sell int
		conf      float64
		want      model.OutlookLabel
	}{
		{6, 2, 80, model.OutlookStrongBuy},  // margin 4, conf > 70
		{6, 2, 60, model.OutlookBuy},        // margin 4 but conf too low
		{5, 4, 90, model.OutlookBuy},        // margin 1
		{2, 6, 80, model.OutlookStrongSell}, // mirrored
		{4, 5, 90, model.OutlookSell},
		{4, 4, 90, model.OutlookNeutral},
	}
	for _, tc := range cases {
		o := Aggregate(model.Nifty, mk(tc.buy, tc.sell, tc.conf), Input{})
		require.Equal(t, tc.want, o.Label, "buy=%d sell=%d conf=%.0f", tc.buy, tc.sell, tc.conf)
	}
}
