package signal

import (
	"fmt"

	"marketpulse/internal/model"
)

// evalVolumePulse follows the candle direction when volume runs at least
// 1.3x its 20-period average. Cap 75.
func evalVolumePulse(in Input) model.Signal {
	if !in.Ind.VolumeReady || in.Ind.VolumeMA20 == 0 {
		return noData(model.KindVolumePulse, "volume MA20 not ready")
	}
	c := in.Partial5
	if c.Ticks == 0 {
		return noData(model.KindVolumePulse, "no forming candle")
	}

	ratio := float64(c.Volume) / in.Ind.VolumeMA20
	if ratio < 1.3 {
		return model.Signal{
			Kind: model.KindVolumePulse, Direction: model.DirNeutral, Confidence: 50,
			Status: fmt.Sprintf("volume %.2fx MA20, below 1.3x threshold", ratio),
		}
	}

	conf := clamp(35+ratio*20, 0, 75)
	dir := model.DirBuy
	if !c.Bullish() {
		dir = model.DirSell
	}
	return model.Signal{
		Kind: model.KindVolumePulse, Direction: dir, Confidence: conf,
		Status: fmt.Sprintf("volume %.2fx MA20 confirms candle direction", ratio),
	}
}

// evalHighVolume flags volume anomalies by z-score; direction follows the
// candle. Cap 80.
func evalHighVolume(in Input) model.Signal {
	if !in.Ind.VolumeReady || in.Ind.VolumeStd20 == 0 {
		return noData(model.KindHighVolume, "volume distribution not ready")
	}
	c := in.Partial5
	if c.Ticks == 0 {
		return noData(model.KindHighVolume, "no forming candle")
	}

	z := (float64(c.Volume) - in.Ind.VolumeMA20) / in.Ind.VolumeStd20
	if z < 2 {
		return model.Signal{
			Kind: model.KindHighVolume, Direction: model.DirNeutral, Confidence: 50,
			Status: fmt.Sprintf("volume z-score %.2f, no anomaly", z),
		}
	}

	conf := clamp(40+z*15, 0, 80)
	dir := model.DirBuy
	if !c.Bullish() {
		dir = model.DirSell
	}
	return model.Signal{
		Kind: model.KindHighVolume, Direction: dir, Confidence: conf,
		Status: fmt.Sprintf("volume anomaly z=%.2f", z),
	}
}

// evalSmartMoney runs an accumulation/distribution test over the recent
// window: volume-weighted close positioning within each candle's range.
// Cap 85.
func evalSmartMoney(in Input) model.Signal {
	if len(in.Win5) < 10 {
		return noData(model.KindSmartMoney, "insufficient history for A/D test")
	}

	tail := in.Win5[len(in.Win5)-10:]
	var ad, totalVol float64
	for _, c := range tail {
		rng := c.Range()
		if rng == 0 {
			continue
		}
		// Money-flow multiplier in [-1, 1].
		mfm := float64((c.Close-c.Low)-(c.High-c.Close)) / float64(rng)
		ad += mfm * float64(c.Volume)
		totalVol += float64(c.Volume)
	}
	if totalVol == 0 {
		return noData(model.KindSmartMoney, "no volume in window")
	}

	norm := ad / totalVol // [-1, 1]
	conf := clamp(50+absf(norm)*70, 0, 85)
	switch {
	case norm > 0.15:
		return model.Signal{
			Kind: model.KindSmartMoney, Direction: model.DirBuy, Confidence: conf,
			Status: fmt.Sprintf("accumulation detected (A/D %.2f)", norm),
		}
	case norm < -0.15:
		return model.Signal{
			Kind: model.KindSmartMoney, Direction: model.DirSell, Confidence: conf,
			Status: fmt.Sprintf("distribution detected (A/D %.2f)", norm),
		}
	default:
		return model.Signal{
			Kind: model.KindSmartMoney, Direction: model.DirNeutral, Confidence: 50,
			Status: "balanced money flow",
		}
	}
}

// evalVWMA compares price to VWMA20 with volume support. Cap 65.
func evalVWMA(in Input) model.Signal {
	if !in.Ind.VWMAReady || in.Ind.VWMA20 == 0 {
		return noData(model.KindVWMA, "VWMA20 not ready")
	}
	price := in.Ind.LastPrice
	dev := pctDist(price, in.Ind.VWMA20, in.Ind.VWMA20)
	supportive := in.Ind.VolumeReady && in.Ind.VolumeMA20 > 0 &&
		float64(in.Partial5.Volume) >= in.Ind.VolumeMA20

	conf := clamp(45+dev*120, 0, 65)
	switch {
	case price > in.Ind.VWMA20 && supportive:
		return model.Signal{
			Kind: model.KindVWMA, Direction: model.DirBuy, Confidence: conf,
			Status: fmt.Sprintf("price %.2f%% above VWMA20 with volume", dev),
		}
	case price < in.Ind.VWMA20 && supportive:
		return model.Signal{
			Kind: model.KindVWMA, Direction: model.DirSell, Confidence: conf,
			Status: fmt.Sprintf("price %.2f%% below VWMA20 with volume", dev),
		}
	default:
		return model.Signal{
			Kind: model.KindVWMA, Direction: model.DirNeutral, Confidence: 50,
			Status: "no volume support at VWMA20",
		}
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
