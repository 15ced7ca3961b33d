package signal

import (
	"fmt"

	"marketpulse/internal/model"
)

// evalTrendBase reads structure (higher lows / lower highs) against the EMA
// stack. Confidence scales with EMA separation, capped at 95.
func evalTrendBase(in Input) model.Signal {
	if !in.Ind.EMAReady {
		return noData(model.KindTrendBase, "EMA stack not ready")
	}
	if len(in.Win5) < 4 {
		return noData(model.KindTrendBase, "insufficient candle history")
	}

	price := in.Ind.LastPrice
	sep := pctDist(in.Ind.EMA20, in.Ind.EMA50, price)
	conf := clamp(55+sep*80, 0, 95)

	hl := higherLows(in.Win5)
	lh := lowerHighs(in.Win5)

	switch {
	case hl && price > in.Ind.EMA50:
		return model.Signal{
			Kind: model.KindTrendBase, Direction: model.DirBuy, Confidence: conf,
			Status: fmt.Sprintf("higher lows, price above EMA50 (%.1f)", in.Ind.EMA50),
		}
	case lh && price < in.Ind.EMA50:
		return model.Signal{
			Kind: model.KindTrendBase, Direction: model.DirSell, Confidence: conf,
			Status: fmt.Sprintf("lower highs, price below EMA50 (%.1f)", in.Ind.EMA50),
		}
	default:
		return model.Signal{
			Kind: model.KindTrendBase, Direction: model.DirNeutral, Confidence: 50,
			Status: "no clear structure against EMA50",
		}
	}
}

// evalCandleIntent reads the body/range ratio and close position of the
// forming candle. Cap 90.
func evalCandleIntent(in Input) model.Signal {
	c := in.Partial5
	rng := c.Range()
	if rng == 0 || c.Ticks == 0 {
		return noData(model.KindCandleIntent, "no forming candle range")
	}

	body := float64(c.Body()) / float64(rng)
	closePos := float64(c.Close-c.Low) / float64(rng) // 1 = closed at high

	conf := clamp(body*100, 0, 90)
	switch {
	case body >= 0.6 && c.Bullish() && closePos >= 0.7:
		return model.Signal{
			Kind: model.KindCandleIntent, Direction: model.DirBuy, Confidence: conf,
			Status: fmt.Sprintf("strong bullish body %.0f%%, close near high", body*100),
		}
	case body >= 0.6 && !c.Bullish() && closePos <= 0.3:
		return model.Signal{
			Kind: model.KindCandleIntent, Direction: model.DirSell, Confidence: conf,
			Status: fmt.Sprintf("strong bearish body %.0f%%, close near low", body*100),
		}
	default:
		return model.Signal{
			Kind: model.KindCandleIntent, Direction: model.DirNeutral, Confidence: 50,
			Status: "indecisive candle",
		}
	}
}

// higherLows checks the last 4 candles for a rising sequence of lows.
func higherLows(win []model.Candle) bool {
	n := len(win)
	if n < 4 {
		return false
	}
	tail := win[n-4:]
	for i := 1; i < len(tail); i++ {
		if tail[i].Low <= tail[i-1].Low {
			return false
		}
	}
	return true
}

// lowerHighs checks the last 4 candles for a falling sequence of highs.
func lowerHighs(win []model.Candle) bool {
	n := len(win)
	if n < 4 {
		return false
	}
	tail := win[n-4:]
	for i := 1; i < len(tail); i++ {
		if tail[i].High >= tail[i-1].High {
			return false
		}
	}
	return true
}
