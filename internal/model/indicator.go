package model

import "time"

// PivotLevels holds classical and Camarilla pivot rails computed from the
// prior trading day's OHLC. Values are rupees.
type PivotLevels struct {
	P  float64 `json:"p"`
	R1 float64 `json:"r1"`
	R2 float64 `json:"r2"`
	R3 float64 `json:"r3"`
	S1 float64 `json:"s1"`
	S2 float64 `json:"s2"`
	S3 float64 `json:"s3"`

	// Camarilla rails; H3/H4 and L3/L4 are the actionable ones.
	H1 float64 `json:"h1"`
	H2 float64 `json:"h2"`
	H3 float64 `json:"h3"`
	H4 float64 `json:"h4"`
	L1 float64 `json:"l1"`
	L2 float64 `json:"l2"`
	L3 float64 `json:"l3"`
	L4 float64 `json:"l4"`
}

// Indicators is the flat per-symbol indicator battery attached to each
// evaluation. Values are rupees. Every block carries its own readiness flag;
// a false flag means "no data", never a sentinel value — downstream signal
// code must branch on the flag instead of guessing from zeros.
type Indicators struct {
	Symbol    Symbol    `json:"symbol"`
	TS        time.Time `json:"ts"`
	LastPrice float64   `json:"last_price"`

	EMA20    float64 `json:"ema20"`
	EMA50    float64 `json:"ema50"`
	EMA100   float64 `json:"ema100"`
	EMA200   float64 `json:"ema200"`
	EMAReady bool    `json:"ema_ready"`

	VWAP      float64 `json:"vwap"`
	VWAPReady bool    `json:"vwap_ready"`

	VWMA20    float64 `json:"vwma20"`
	VWMAReady bool    `json:"vwma_ready"`

	RSI5m    float64 `json:"rsi_5m"`
	RSI15m   float64 `json:"rsi_15m"`
	RSIReady bool    `json:"rsi_ready"`

	ATR14    float64 `json:"atr14"`
	ATRReady bool    `json:"atr_ready"`

	Pivots      PivotLevels `json:"pivots"`
	PivotsReady bool        `json:"pivots_ready"`

	// Opening range: fixed once the first 15 minutes of the regular
	// session have closed.
	ORBHigh  float64 `json:"orb_high"`
	ORBLow   float64 `json:"orb_low"`
	ORBReady bool    `json:"orb_ready"`

	ProfileBucket string `json:"profile_bucket"` // volume-profile label for last price
	ProfileReady  bool   `json:"profile_ready"`

	OIDelta    int64   `json:"oi_delta"`
	OIDeltaPct float64 `json:"oi_delta_pct"`
	OIReady    bool    `json:"oi_ready"`

	SuperTrend      float64 `json:"supertrend"`
	SuperTrendUp    bool    `json:"supertrend_up"`  // close above band
	SuperTrendAge   int     `json:"supertrend_age"` // candles on current band side
	SuperTrendReady bool    `json:"supertrend_ready"`

	SAR      float64 `json:"sar"`
	SARUp    bool    `json:"sar_up"`  // SAR below price
	SARAge   int     `json:"sar_age"` // candles in current SAR trend
	SARReady bool    `json:"sar_ready"`

	VolumeMA20  float64 `json:"volume_ma20"`
	VolumeStd20 float64 `json:"volume_std20"`
	VolumeReady bool    `json:"volume_ready"`
}
