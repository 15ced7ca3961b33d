package model

import "time"

// Direction is a signal's directional read.
type Direction string

const (
	DirBuy     Direction = "BUY"
	DirSell    Direction = "SELL"
	DirNeutral Direction = "NEUTRAL"
)

// SignalKind enumerates the fourteen signals.
type SignalKind string

const (
	KindTrendBase    SignalKind = "TREND_BASE"
	KindVolumePulse  SignalKind = "VOLUME_PULSE"
	KindCandleIntent SignalKind = "CANDLE_INTENT"
	KindPivotPoints  SignalKind = "PIVOT_POINTS"
	KindORB          SignalKind = "ORB"
	KindSuperTrend   SignalKind = "SUPERTREND"
	KindParabolicSAR SignalKind = "PARABOLIC_SAR"
	KindRSI          SignalKind = "RSI_60_40"
	KindCamarilla    SignalKind = "CAMARILLA"
	KindVWMA         SignalKind = "VWMA20"
	KindHighVolume   SignalKind = "HIGH_VOLUME"
	KindSmartMoney   SignalKind = "SMART_MONEY_FLOW"
	KindTradeZones   SignalKind = "TRADE_ZONES"
	KindOIMomentum   SignalKind = "OI_MOMENTUM"
)

// SignalKinds lists all fourteen kinds in canonical order.
var SignalKinds = []SignalKind{
	KindTrendBase, KindVolumePulse, KindCandleIntent, KindPivotPoints,
	KindORB, KindSuperTrend, KindParabolicSAR, KindRSI, KindCamarilla,
	KindVWMA, KindHighVolume, KindSmartMoney, KindTradeZones, KindOIMomentum,
}

// Signal is one scored signal. Confidence is always within [0,100].
type Signal struct {
	Kind       SignalKind `json:"kind"`
	Direction  Direction  `json:"direction"`
	Confidence float64    `json:"confidence"`
	Status     string     `json:"status_text"`
}

// OutlookLabel is the aggregate label over the fourteen signals.
type OutlookLabel string

const (
	OutlookStrongBuy  OutlookLabel = "STRONG_BUY"
	OutlookBuy        OutlookLabel = "BUY"
	OutlookNeutral    OutlookLabel = "NEUTRAL"
	OutlookSell       OutlookLabel = "SELL"
	OutlookStrongSell OutlookLabel = "STRONG_SELL"
)

// Outlook aggregates the fourteen signals for one symbol.
// Invariant: Bullish+Bearish+Neutral == len(Signals) == 14.
type Outlook struct {
	Symbol       Symbol       `json:"symbol"`
	TS           time.Time    `json:"ts"`
	Signals      []Signal     `json:"signals"`
	Bullish      int          `json:"bullish"`
	Bearish      int          `json:"bearish"`
	Neutral      int          `json:"neutral"`
	Confidence   float64      `json:"overall_confidence"`
	TrendPercent float64      `json:"trend_percent"` // 100*(bull-bear)/14, one decimal
	Label        OutlookLabel `json:"label"`
}
