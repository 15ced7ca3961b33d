// Package decision composes the final trading decision from a symbol's
// outlook and the market-wide indices. The arithmetic is fully exposed in
// ScoreComponents so every published decision can be audited back to its
// inputs.
package decision

import (
	"fmt"

	"marketpulse/internal/model"
)

// Adjustment weights from the score formula:
// s = base + 0.30*pcr + 0.30*oi + 0.20*vol + 0.20*breadth, clipped [0,100].
const (
	wPCR     = 0.30
	wOI      = 0.30
	wVol     = 0.20
	wBreadth = 0.20
)

// Compute derives the decision for one symbol. Outside MARKET_OPEN the
// action collapses to WAIT with the confidence floored at 50; the score
// components still reflect the full arithmetic.
func Compute(sym model.Symbol, o model.Outlook, mi model.MarketIndices) model.Decision {
	bearish := o.Bearish > o.Bullish

	sc := model.ScoreComponents{
		Base:       o.Confidence,
		PCRAdj:     wPCR * pcrAdjust(mi),
		OIAdj:      wOI * oiAdjust(mi.OIMomentum, bearish),
		VolAdj:     wVol * volAdjust(mi.VolatilityLevel),
		BreadthAdj: wBreadth * breadthAdjust(mi.BreadthLabel),
	}
	sc.Final = clip(sc.Base+sc.PCRAdj+sc.OIAdj+sc.VolAdj+sc.BreadthAdj, 0, 100)

	d := model.Decision{
		Symbol:     sym,
		Action:     mapAction(sc.Final, bearish),
		Confidence: sc.Final,
		Score:      sc,
		TS:         o.TS,
	}
	d.Risk = riskLevel(sc.Final, mi.VolatilityLevel)

	if mi.SessionState != model.SessionMarketOpen {
		d.Action = model.ActionWait
		if d.Confidence < 50 {
			d.Confidence = 50
		}
		d.Monitor = append(d.Monitor, fmt.Sprintf("market session %s, decisions resume at open", mi.SessionState))
	}

	d.Actions = lookupActions(d.Action, d.Risk, mi.VolatilityLevel)
	d.Monitor = append(d.Monitor, monitorNotes(o, mi)...)
	return d
}

// FeedOutage collapses a decision to WAIT while the broker session is
// unusable (token expired). Confidence is capped at 50: a dead feed carries
// no conviction. The trader-action table is re-resolved for the collapsed
// action.
func FeedOutage(d model.Decision, vol model.VolatilityLevel, note string) model.Decision {
	d.Action = model.ActionWait
	if d.Confidence > 50 {
		d.Confidence = 50
	}
	d.Actions = lookupActions(d.Action, d.Risk, vol)
	d.Monitor = append(d.Monitor, note)
	return d
}

// pcrAdjust maps PCR sentiment to its raw adjustment. Unavailable PCR
// contributes nothing.
func pcrAdjust(mi model.MarketIndices) float64 {
	if !mi.PCRAvailable {
		return 0
	}
	switch mi.PCRSentiment {
	case model.PCRVeryBullish:
		return 15
	case model.PCRBullish:
		return 10
	case model.PCRBearish:
		return -10
	case model.PCRVeryBearish:
		return -15
	default:
		return 0
	}
}

// oiAdjust rewards OI building in the outlook's direction and fades an
// unwind against it.
func oiAdjust(st model.OIMomentumState, bearish bool) float64 {
	switch st {
	case model.OILongBuildup:
		if bearish {
			return -10
		}
		return 10
	case model.OIShortBuildup:
		if bearish {
			return 10
		}
		return -10
	case model.OILongUnwinding:
		if bearish {
			return 5
		}
		return -5
	case model.OIShortCovering:
		if bearish {
			return -5
		}
		return 5
	default:
		return 0
	}
}

// volAdjust penalizes confidence away from NORMAL. High volatility hurts
// more than low; both are bounded at -10 raw.
func volAdjust(lvl model.VolatilityLevel) float64 {
	switch lvl {
	case model.VolHigh:
		return -10
	case model.VolLow:
		return -5
	default:
		return 0
	}
}

func breadthAdjust(lbl model.BreadthLabel) float64 {
	switch lbl {
	case model.BreadthStrongPositive:
		return 8
	case model.BreadthPositive:
		return 4
	case model.BreadthNegative:
		return -4
	case model.BreadthStrongNegative:
		return -8
	default:
		return 0
	}
}

// mapAction converts the final score to an action. The thresholds mirror
// for a bearish outlook: a high score then means high conviction to sell.
func mapAction(s float64, bearish bool) model.Action {
	if bearish {
		switch {
		case s >= 80:
			return model.ActionStrongSell
		case s >= 65:
			return model.ActionSell
		case s >= 50:
			return model.ActionHold
		default:
			return model.ActionWait
		}
	}
	switch {
	case s >= 80:
		return model.ActionStrongBuy
	case s >= 65:
		return model.ActionBuy
	case s >= 50:
		return model.ActionHold
	default:
		return model.ActionWait
	}
}

// riskLevel reads risk jointly from score and volatility: conviction lowers
// risk, volatility raises it.
func riskLevel(s float64, vol model.VolatilityLevel) model.RiskLevel {
	switch vol {
	case model.VolHigh:
		if s >= 80 {
			return model.RiskMedium
		}
		return model.RiskHigh
	case model.VolLow:
		if s >= 65 {
			return model.RiskLow
		}
		return model.RiskMedium
	default:
		switch {
		case s >= 80:
			return model.RiskLow
		case s >= 50:
			return model.RiskMedium
		default:
			return model.RiskHigh
		}
	}
}

func monitorNotes(o model.Outlook, mi model.MarketIndices) []string {
	var notes []string
	if !mi.PCRAvailable {
		notes = append(notes, "PCR unavailable, score computed without option-chain sentiment")
	}
	if mi.VolatilityLevel == model.VolHigh {
		notes = append(notes, fmt.Sprintf("high intraday volatility %.2f%%, widen stops", mi.VolatilityPct))
	}
	if o.Neutral >= 7 {
		notes = append(notes, fmt.Sprintf("%d of 14 signals neutral, conviction is thin", o.Neutral))
	}
	return notes
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
