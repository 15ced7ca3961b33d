package indicator

import "marketpulse/internal/model"

// ComputePivots derives classical and Camarilla levels from the prior
// trading day's OHLC (rupees). Camarilla uses the standard 1.1 multipliers;
// H3/H4 and L3/L4 are the actionable rails.
func ComputePivots(high, low, close float64) model.PivotLevels {
	p := (high + low + close) / 3
	rng := high - low

	return model.PivotLevels{
		P:  p,
		R1: 2*p - low,
		R2: p + rng,
		R3: high + 2*(p-low),
		S1: 2*p - high,
		S2: p - rng,
		S3: low - 2*(high-p),

		H1: close + rng*1.1/12,
		H2: close + rng*1.1/6,
		H3: close + rng*1.1/4,
		H4: close + rng*1.1/2,
		L1: close - rng*1.1/12,
		L2: close - rng*1.1/6,
		L3: close - rng*1.1/4,
		L4: close - rng*1.1/2,
	}
}
