package model

import "time"

// PCRSentiment buckets the put-call ratio.
type PCRSentiment string

const (
	PCRVeryBullish PCRSentiment = "VERY_BULLISH"
	PCRBullish     PCRSentiment = "BULLISH"
	PCRNeutral     PCRSentiment = "NEUTRAL"
	PCRBearish     PCRSentiment = "BEARISH"
	PCRVeryBearish PCRSentiment = "VERY_BEARISH"
)

// OIMomentumState is the (ΔOI, Δprice) quadrant read.
type OIMomentumState string

const (
	OILongBuildup   OIMomentumState = "LONG_BUILDUP"   // OI up, price up
	OIShortBuildup  OIMomentumState = "SHORT_BUILDUP"  // OI up, price down
	OILongUnwinding OIMomentumState = "LONG_UNWINDING" // OI down, price down
	OIShortCovering OIMomentumState = "SHORT_COVERING" // OI down, price up
	OIFlat          OIMomentumState = "NEUTRAL"
)

// BreadthLabel buckets the advance/decline ratio.
type BreadthLabel string

const (
	BreadthStrongPositive BreadthLabel = "STRONGLY_POSITIVE"
	BreadthPositive       BreadthLabel = "POSITIVE"
	BreadthNeutral        BreadthLabel = "NEUTRAL"
	BreadthNegative       BreadthLabel = "NEGATIVE"
	BreadthStrongNegative BreadthLabel = "STRONGLY_NEGATIVE"
)

// VolatilityLevel buckets intraday range volatility.
type VolatilityLevel string

const (
	VolLow    VolatilityLevel = "LOW"
	VolNormal VolatilityLevel = "NORMAL"
	VolHigh   VolatilityLevel = "HIGH"
)

// MarketIndices is the market-wide context used by the decision engine.
type MarketIndices struct {
	PCRValue        float64         `json:"pcr_value"`
	PCRSentiment    PCRSentiment    `json:"pcr_sentiment"`
	PCRAvailable    bool            `json:"pcr_available"`
	OIMomentum      OIMomentumState `json:"oi_momentum"`
	BreadthRatio    float64         `json:"breadth_ad_ratio"`
	BreadthLabel    BreadthLabel    `json:"breadth_label"`
	VolatilityPct   float64         `json:"volatility_pct"`
	VolatilityLevel VolatilityLevel `json:"volatility_level"`
	SessionState    SessionState    `json:"session_state"`
	TS              time.Time       `json:"ts"`
}
