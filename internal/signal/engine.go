// Package signal scores the fourteen per-symbol signals and aggregates them
// into an outlook. Every evaluator is a pure function of its Input; when the
// inputs it needs are not available it emits NEUTRAL at confidence 50 with a
// status naming the gap, so downstream consumers can tell "no data" from a
// computed neutral.
package signal

import (
	"math"

	"marketpulse/internal/model"
)

// Input is everything a signal evaluator may look at.
type Input struct {
	Ind      model.Indicators
	Win5     []model.Candle // finalized 5m candles, oldest first
	Partial5 model.Candle
	Session  model.SessionState
}

type evaluator func(Input) model.Signal

// evaluators in the canonical kind order; aggregation is order-independent
// but the published signal list follows this order.
var evaluators = []evaluator{
	evalTrendBase,
	evalVolumePulse,
	evalCandleIntent,
	evalPivotPoints,
	evalORB,
	evalSuperTrend,
	evalParabolicSAR,
	evalRSI,
	evalCamarilla,
	evalVWMA,
	evalHighVolume,
	evalSmartMoney,
	evalTradeZones,
	evalOIMomentum,
}

// Evaluate runs all fourteen signals. The result always has exactly 14
// entries in canonical order.
func Evaluate(in Input) []model.Signal {
	out := make([]model.Signal, 0, len(evaluators))
	for _, ev := range evaluators {
		s := ev(in)
		s.Confidence = clamp(s.Confidence, 0, 100)
		out = append(out, s)
	}
	return out
}

// Aggregate folds the fourteen signals into an outlook.
func Aggregate(sym model.Symbol, signals []model.Signal, in Input) model.Outlook {
	o := model.Outlook{Symbol: sym, TS: in.Ind.TS, Signals: signals}
	var sum float64
	for _, s := range signals {
		sum += s.Confidence
		switch s.Direction {
		case model.DirBuy:
			o.Bullish++
		case model.DirSell:
			o.Bearish++
		default:
			o.Neutral++
		}
	}
	n := len(signals)
	if n == 0 {
		o.Label = model.OutlookNeutral
		return o
	}
	o.Confidence = sum / float64(n)
	o.TrendPercent = math.Round(float64(o.Bullish-o.Bearish)/float64(n)*1000) / 10

	switch {
	case o.Bullish-o.Bearish > 3 && o.Confidence > 70:
		o.Label = model.OutlookStrongBuy
	case o.Bullish > o.Bearish:
		o.Label = model.OutlookBuy
	case o.Bearish-o.Bullish > 3 && o.Confidence > 70:
		o.Label = model.OutlookStrongSell
	case o.Bearish > o.Bullish:
		o.Label = model.OutlookSell
	default:
		o.Label = model.OutlookNeutral
	}
	return o
}

// noData builds the NEUTRAL/50 marker for a signal whose inputs are absent.
func noData(kind model.SignalKind, why string) model.Signal {
	return model.Signal{Kind: kind, Direction: model.DirNeutral, Confidence: 50, Status: why}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// pctDist returns |a-b| as a percentage of ref.
func pctDist(a, b, ref float64) float64 {
	if ref == 0 {
		return 0
	}
	return math.Abs(a-b) / ref * 100
}
