package decision

import "marketpulse/internal/model"

type actionKey struct {
	action model.Action
	risk   model.RiskLevel
	vol    model.VolatilityLevel
}

// actionTable is the trader-guidance decision table. Lookups fall back in
// order: exact (action, risk, vol), then (action, risk, any vol), then the
// per-action default.
var actionTable = map[actionKey]model.TraderActions{
	{model.ActionStrongBuy, model.RiskLow, model.VolNormal}: {
		Entry:     "Enter long at market or on a shallow dip to VWAP",
		Position:  "Full position, scale out a third at R1 and a third at R2",
		Risk:      "Stop below the last 5m swing low or SuperTrend band",
		Timeframe: "Intraday, hold through regular hours while trend holds",
	},
	{model.ActionStrongBuy, model.RiskMedium, model.VolHigh}: {
		Entry:     "Enter long on a pullback only, avoid chasing strength",
		Position:  "Half position, add only on a higher-low confirmation",
		Risk:      "Wider stop below the SuperTrend band, honor it strictly",
		Timeframe: "Intraday, reassess every 15m candle",
	},
	{model.ActionBuy, model.RiskLow, model.VolLow}: {
		Entry:     "Buy a break of the last 5m high with volume",
		Position:  "Standard position, trail behind the 5m higher lows",
		Risk:      "Stop below S1 or the opening range low, whichever is nearer",
		Timeframe: "Intraday, exit into strength before close",
	},
	{model.ActionBuy, model.RiskMedium, model.VolNormal}: {
		Entry:     "Buy a retest of VWAP or the pivot that holds",
		Position:  "Standard position, book half at R1",
		Risk:      "Stop below VWAP on a 5m closing basis",
		Timeframe: "Intraday",
	},
	{model.ActionSell, model.RiskMedium, model.VolNormal}: {
		Entry:     "Sell a break of the last 5m low or a rejection at VWAP",
		Position:  "Standard position, book half at S1",
		Risk:      "Stop above VWAP on a 5m closing basis",
		Timeframe: "Intraday",
	},
	{model.ActionStrongSell, model.RiskLow, model.VolNormal}: {
		Entry:     "Enter short at market or on a weak bounce to VWAP",
		Position:  "Full position, scale out a third at S1 and a third at S2",
		Risk:      "Stop above the last 5m swing high or SuperTrend band",
		Timeframe: "Intraday, hold through regular hours while trend holds",
	},
	{model.ActionStrongSell, model.RiskMedium, model.VolHigh}: {
		Entry:     "Enter short on a bounce only, avoid chasing weakness",
		Position:  "Half position, add only on a lower-high confirmation",
		Risk:      "Wider stop above the SuperTrend band, honor it strictly",
		Timeframe: "Intraday, reassess every 15m candle",
	},
}

// actionDefaults covers every action with volatility-agnostic guidance.
var actionDefaults = map[model.Action]model.TraderActions{
	model.ActionStrongBuy: {
		Entry:     "Enter long, prefer a pullback entry over chasing",
		Position:  "Full position sized to the stop distance",
		Risk:      "Stop below the last confirmed higher low",
		Timeframe: "Intraday",
	},
	model.ActionBuy: {
		Entry:     "Buy on strength confirmation above VWAP",
		Position:  "Standard position, partials at resistance levels",
		Risk:      "Stop below the nearest support",
		Timeframe: "Intraday",
	},
	model.ActionHold: {
		Entry:     "No fresh entry, manage existing positions only",
		Position:  "Hold, tighten trails as levels approach",
		Risk:      "Keep existing stops, do not widen",
		Timeframe: "Until the next signal update",
	},
	model.ActionWait: {
		Entry:     "Stay flat, wait for a clear setup",
		Position:  "No position",
		Risk:      "Capital preservation, no exposure",
		Timeframe: "Until conditions improve",
	},
	model.ActionSell: {
		Entry:     "Sell on weakness confirmation below VWAP",
		Position:  "Standard position, partials at support levels",
		Risk:      "Stop above the nearest resistance",
		Timeframe: "Intraday",
	},
	model.ActionStrongSell: {
		Entry:     "Enter short, prefer a bounce entry over chasing",
		Position:  "Full position sized to the stop distance",
		Risk:      "Stop above the last confirmed lower high",
		Timeframe: "Intraday",
	},
}

// lookupActions resolves the guidance block with tiered fallback.
func lookupActions(a model.Action, r model.RiskLevel, v model.VolatilityLevel) model.TraderActions {
	if t, ok := actionTable[actionKey{a, r, v}]; ok {
		return t
	}
	for _, vol := range []model.VolatilityLevel{model.VolNormal, model.VolLow, model.VolHigh} {
		if t, ok := actionTable[actionKey{a, r, vol}]; ok {
			return t
		}
	}
	return actionDefaults[a]
}
