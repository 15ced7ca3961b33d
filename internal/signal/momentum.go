package signal

import (
	"fmt"

	"marketpulse/internal/model"
)

// evalRSI needs the 5m and 15m readings to agree: both above their
// thresholds for BUY, both below for SELL. Confidence scales with the 5m
// distance from the midline. Cap 95.
func evalRSI(in Input) model.Signal {
	if !in.Ind.RSIReady {
		return noData(model.KindRSI, "RSI not warmed up")
	}
	r5, r15 := in.Ind.RSI5m, in.Ind.RSI15m
	conf := clamp(50+absf(r5-50)*1.5, 0, 95)

	switch {
	case r5 > 60 && r15 > 50:
		return model.Signal{
			Kind: model.KindRSI, Direction: model.DirBuy, Confidence: conf,
			Status: fmt.Sprintf("RSI 5m %.1f / 15m %.1f aligned bullish", r5, r15),
		}
	case r5 < 40 && r15 < 50:
		return model.Signal{
			Kind: model.KindRSI, Direction: model.DirSell, Confidence: conf,
			Status: fmt.Sprintf("RSI 5m %.1f / 15m %.1f aligned bearish", r5, r15),
		}
	default:
		return model.Signal{
			Kind: model.KindRSI, Direction: model.DirNeutral, Confidence: 50,
			Status: fmt.Sprintf("RSI 5m %.1f / 15m %.1f mixed", r5, r15),
		}
	}
}

// evalSuperTrend follows the band side; confidence grows with the trend's
// age in candles. Cap 98.
func evalSuperTrend(in Input) model.Signal {
	if !in.Ind.SuperTrendReady {
		return noData(model.KindSuperTrend, "supertrend not warmed up")
	}
	conf := clamp(60+float64(in.Ind.SuperTrendAge)*4, 0, 98)
	if in.Ind.SuperTrendUp {
		return model.Signal{
			Kind: model.KindSuperTrend, Direction: model.DirBuy, Confidence: conf,
			Status: fmt.Sprintf("above supertrend %.1f for %d candles", in.Ind.SuperTrend, in.Ind.SuperTrendAge),
		}
	}
	return model.Signal{
		Kind: model.KindSuperTrend, Direction: model.DirSell, Confidence: conf,
		Status: fmt.Sprintf("below supertrend %.1f for %d candles", in.Ind.SuperTrend, in.Ind.SuperTrendAge),
	}
}

// evalParabolicSAR follows the SAR side with age-scaled confidence. Cap 70.
func evalParabolicSAR(in Input) model.Signal {
	if !in.Ind.SARReady {
		return noData(model.KindParabolicSAR, "SAR not warmed up")
	}
	conf := clamp(52+float64(in.Ind.SARAge)*3, 0, 70)
	if in.Ind.SARUp {
		return model.Signal{
			Kind: model.KindParabolicSAR, Direction: model.DirBuy, Confidence: conf,
			Status: fmt.Sprintf("SAR below price at %.1f", in.Ind.SAR),
		}
	}
	return model.Signal{
		Kind: model.KindParabolicSAR, Direction: model.DirSell, Confidence: conf,
		Status: fmt.Sprintf("SAR above price at %.1f", in.Ind.SAR),
	}
}

// evalOIMomentum places (price change, OI change) in the classic four-quadrant
// read: long buildup, short buildup, long unwinding, short covering.
// Confidence scales with |OI delta %|. Cap 95.
func evalOIMomentum(in Input) model.Signal {
	if !in.Ind.OIReady {
		return noData(model.KindOIMomentum, "open interest unavailable")
	}
	n := len(in.Win5)
	if n == 0 {
		return noData(model.KindOIMomentum, "no closed candles for price delta")
	}
	last := in.Win5[n-1]
	priceUp := in.Ind.LastPrice > model.Rupees(last.Close)
	priceDown := in.Ind.LastPrice < model.Rupees(last.Close)
	oiUp := in.Ind.OIDelta > 0

	conf := clamp(55+absf(in.Ind.OIDeltaPct)*8, 0, 95)
	switch {
	case priceUp && oiUp:
		return model.Signal{
			Kind: model.KindOIMomentum, Direction: model.DirBuy, Confidence: conf,
			Status: fmt.Sprintf("long buildup, OI %+.2f%%", in.Ind.OIDeltaPct),
		}
	case priceDown && oiUp:
		return model.Signal{
			Kind: model.KindOIMomentum, Direction: model.DirSell, Confidence: conf,
			Status: fmt.Sprintf("short buildup, OI %+.2f%%", in.Ind.OIDeltaPct),
		}
	case priceUp && !oiUp:
		return model.Signal{
			Kind: model.KindOIMomentum, Direction: model.DirBuy,
			Confidence: clamp(conf-10, 0, 95),
			Status:     fmt.Sprintf("short covering, OI %+.2f%%", in.Ind.OIDeltaPct),
		}
	case priceDown && !oiUp:
		return model.Signal{
			Kind: model.KindOIMomentum, Direction: model.DirSell,
			Confidence: clamp(conf-10, 0, 95),
			Status:     fmt.Sprintf("long unwinding, OI %+.2f%%", in.Ind.OIDeltaPct),
		}
	default:
		return model.Signal{
			Kind: model.KindOIMomentum, Direction: model.DirNeutral, Confidence: 50,
			Status: "price flat against OI change",
		}
	}
}
