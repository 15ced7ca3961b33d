package signal

import (
	"fmt"

	"marketpulse/internal/model"
)

// proximityPct is how close (as % of price) the market must be to a level
// before the level-based signals consider it in play.
const proximityPct = 0.25

// evalPivotPoints scores proximity to the classical pivot ladder: near a
// support with price holding above it leans BUY, near a resistance with price
// held below leans SELL. Cap 80.
func evalPivotPoints(in Input) model.Signal {
	if !in.Ind.PivotsReady {
		return noData(model.KindPivotPoints, "prior-day pivots unavailable")
	}
	price := in.Ind.LastPrice
	pv := in.Ind.Pivots

	supports := []struct {
		name string
		lvl  float64
	}{{"S1", pv.S1}, {"S2", pv.S2}, {"S3", pv.S3}}
	resistances := []struct {
		name string
		lvl  float64
	}{{"R1", pv.R1}, {"R2", pv.R2}, {"R3", pv.R3}}

	for _, s := range supports {
		d := pctDist(price, s.lvl, price)
		if d <= proximityPct && price >= s.lvl {
			conf := clamp(80-d*80, 0, 80)
			return model.Signal{
				Kind: model.KindPivotPoints, Direction: model.DirBuy, Confidence: conf,
				Status: fmt.Sprintf("holding above %s (%.1f)", s.name, s.lvl),
			}
		}
	}
	for _, r := range resistances {
		d := pctDist(price, r.lvl, price)
		if d <= proximityPct && price <= r.lvl {
			conf := clamp(80-d*80, 0, 80)
			return model.Signal{
				Kind: model.KindPivotPoints, Direction: model.DirSell, Confidence: conf,
				Status: fmt.Sprintf("rejected below %s (%.1f)", r.name, r.lvl),
			}
		}
	}

	dir := model.DirNeutral
	status := "between pivot levels"
	conf := 50.0
	if price > pv.P {
		dir, status = model.DirBuy, fmt.Sprintf("above pivot %.1f", pv.P)
		conf = clamp(50+pctDist(price, pv.P, price)*20, 0, 65)
	} else if price < pv.P {
		dir, status = model.DirSell, fmt.Sprintf("below pivot %.1f", pv.P)
		conf = clamp(50+pctDist(price, pv.P, price)*20, 0, 65)
	}
	return model.Signal{Kind: model.KindPivotPoints, Direction: dir, Confidence: conf, Status: status}
}

// evalORB scores an opening-range breakout with volume confirmation. Cap 85.
func evalORB(in Input) model.Signal {
	if !in.Ind.ORBReady {
		return noData(model.KindORB, "opening range not sealed")
	}
	price := in.Ind.LastPrice
	volConfirm := in.Ind.VolumeReady && in.Ind.VolumeMA20 > 0 &&
		float64(in.Partial5.Volume) >= in.Ind.VolumeMA20*1.2

	switch {
	case price > in.Ind.ORBHigh:
		conf := clamp(55+pctDist(price, in.Ind.ORBHigh, price)*60, 0, 85)
		if !volConfirm {
			conf = clamp(conf-15, 0, 85)
		}
		return model.Signal{
			Kind: model.KindORB, Direction: model.DirBuy, Confidence: conf,
			Status: fmt.Sprintf("break above opening range high %.1f", in.Ind.ORBHigh),
		}
	case price < in.Ind.ORBLow:
		conf := clamp(55+pctDist(price, in.Ind.ORBLow, price)*60, 0, 85)
		if !volConfirm {
			conf = clamp(conf-15, 0, 85)
		}
		return model.Signal{
			Kind: model.KindORB, Direction: model.DirSell, Confidence: conf,
			Status: fmt.Sprintf("break below opening range low %.1f", in.Ind.ORBLow),
		}
	default:
		return model.Signal{
			Kind: model.KindORB, Direction: model.DirNeutral, Confidence: 50,
			Status: "inside opening range",
		}
	}
}

// evalCamarilla watches the H3/L3 reversal bands and H4/L4 breakout levels.
// Cap 75.
func evalCamarilla(in Input) model.Signal {
	if !in.Ind.PivotsReady {
		return noData(model.KindCamarilla, "prior-day levels unavailable")
	}
	price := in.Ind.LastPrice
	pv := in.Ind.Pivots

	switch {
	case price > pv.H4:
		return model.Signal{
			Kind: model.KindCamarilla, Direction: model.DirBuy,
			Confidence: clamp(60+pctDist(price, pv.H4, price)*50, 0, 75),
			Status:     fmt.Sprintf("breakout above H4 (%.1f)", pv.H4),
		}
	case price < pv.L4:
		return model.Signal{
			Kind: model.KindCamarilla, Direction: model.DirSell,
			Confidence: clamp(60+pctDist(price, pv.L4, price)*50, 0, 75),
			Status:     fmt.Sprintf("breakdown below L4 (%.1f)", pv.L4),
		}
	case pctDist(price, pv.L3, price) <= proximityPct && price >= pv.L3:
		return model.Signal{
			Kind: model.KindCamarilla, Direction: model.DirBuy, Confidence: 65,
			Status: fmt.Sprintf("reversal zone at L3 (%.1f)", pv.L3),
		}
	case pctDist(price, pv.H3, price) <= proximityPct && price <= pv.H3:
		return model.Signal{
			Kind: model.KindCamarilla, Direction: model.DirSell, Confidence: 65,
			Status: fmt.Sprintf("reversal zone at H3 (%.1f)", pv.H3),
		}
	default:
		return model.Signal{
			Kind: model.KindCamarilla, Direction: model.DirNeutral, Confidence: 50,
			Status: "inside camarilla bands",
		}
	}
}

// evalTradeZones marks price inside the S1-S2 accumulation zone or the R1-R2
// distribution zone. Cap 80.
func evalTradeZones(in Input) model.Signal {
	if !in.Ind.PivotsReady {
		return noData(model.KindTradeZones, "prior-day levels unavailable")
	}
	price := in.Ind.LastPrice
	pv := in.Ind.Pivots

	switch {
	case price <= pv.S1 && price >= pv.S2:
		mid := (pv.S1 + pv.S2) / 2
		conf := clamp(80-pctDist(price, mid, price)*40, 50, 80)
		return model.Signal{
			Kind: model.KindTradeZones, Direction: model.DirBuy, Confidence: conf,
			Status: fmt.Sprintf("inside buy zone S1-S2 (%.1f-%.1f)", pv.S2, pv.S1),
		}
	case price >= pv.R1 && price <= pv.R2:
		mid := (pv.R1 + pv.R2) / 2
		conf := clamp(80-pctDist(price, mid, price)*40, 50, 80)
		return model.Signal{
			Kind: model.KindTradeZones, Direction: model.DirSell, Confidence: conf,
			Status: fmt.Sprintf("inside sell zone R1-R2 (%.1f-%.1f)", pv.R1, pv.R2),
		}
	default:
		return model.Signal{
			Kind: model.KindTradeZones, Direction: model.DirNeutral, Confidence: 50,
			Status: "outside trade zones",
		}
	}
}
