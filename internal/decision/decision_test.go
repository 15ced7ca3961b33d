package decision

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketpulse/internal/model"
)

func bullOutlook(conf float64) model.Outlook {
	return model.Outlook{Symbol: model.Nifty, Bullish: 10, Bearish: 2, Neutral: 2, Confidence: conf, Label: model.OutlookBuy}
}

func bearOutlook(conf float64) model.Outlook {
	return model.Outlook{Symbol: model.Nifty, Bullish: 2, Bearish: 10, Neutral: 2, Confidence: conf, Label: model.OutlookSell}
}

func openIndices() model.MarketIndices {
	return model.MarketIndices{
		PCRSentiment:    model.PCRNeutral,
		PCRAvailable:    true,
		OIMomentum:      model.OIFlat,
		BreadthLabel:    model.BreadthNeutral,
		VolatilityLevel: model.VolNormal,
		SessionState:    model.SessionMarketOpen,
	}
}

func TestComputeScoreArithmetic(t *testing.T) {
	mi := openIndices()
	mi.PCRSentiment = model.PCRVeryBullish  // +15 raw
	mi.OIMomentum = model.OILongBuildup     // +10 raw with bullish outlook
	mi.BreadthLabel = model.BreadthPositive // +4 raw
	mi.VolatilityLevel = model.VolHigh      // -10 raw

	d := Compute(model.Nifty, bullOutlook(70), mi)

	require.InDelta(t, 70, d.Score.Base, 1e-9)
	require.InDelta(t, 4.5, d.Score.PCRAdj, 1e-9)     // 0.30*15
	require.InDelta(t, 3.0, d.Score.OIAdj, 1e-9)      // 0.30*10
	require.InDelta(t, -2.0, d.Score.VolAdj, 1e-9)    // 0.20*-10
	require.InDelta(t, 0.8, d.Score.BreadthAdj, 1e-9) // 0.20*4
	require.InDelta(t, 76.3, d.Score.Final, 1e-9)
	require.Equal(t, d.Score.Final, d.Confidence)
	require.Equal(t, model.ActionBuy, d.Action)
}

func TestComputeBearishMirrorsAdjustmentsAndActions(t *testing.T) {
	mi := openIndices()
	mi.OIMomentum = model.OIShortBuildup // +10 in the bear's favor

	d := Compute(model.Nifty, bearOutlook(80), mi)
	require.InDelta(t, 3.0, d.Score.OIAdj, 1e-9)
	require.Equal(t, model.ActionStrongSell, d.Action)

	mi.OIMomentum = model.OIShortCovering // against the bear: -5 raw
	d = Compute(model.Nifty, bearOutlook(66), mi)
	require.InDelta(t, -1.5, d.Score.OIAdj, 1e-9)
	require.Equal(t, model.ActionHold, d.Action) // 64.5 < 65
}

func TestComputeClipsScore(t *testing.T) {
	mi := openIndices()
	mi.PCRSentiment = model.PCRVeryBullish
	mi.OIMomentum = model.OILongBuildup
	mi.BreadthLabel = model.BreadthStrongPositive

	d := Compute(model.Nifty, bullOutlook(99), mi)
	require.Equal(t, 100.0, d.Score.Final)
	require.Equal(t, model.ActionStrongBuy, d.Action)

	mi2 := openIndices()
	mi2.PCRSentiment = model.PCRVeryBearish
	mi2.OIMomentum = model.OIShortBuildup
	mi2.BreadthLabel = model.BreadthStrongNegative
	d2 := Compute(model.Nifty, bullOutlook(2), mi2)
	require.Equal(t, 0.0, d2.Score.Final)
	require.Equal(t, model.ActionWait, d2.Action)
}

func TestComputeWaitOutsideMarketOpen(t *testing.T) {
	for _, st := range []model.SessionState{
		model.SessionPreOpen, model.SessionAfterHours, model.SessionClosed, model.SessionHoliday,
	} {
		mi := openIndices()
		mi.SessionState = st
		d := Compute(model.Nifty, bullOutlook(90), mi)
		require.Equal(t, model.ActionWait, d.Action, string(st))
		require.GreaterOrEqual(t, d.Confidence, 50.0, string(st))
	}

	// low-confidence outlook still floors at 50 when collapsed
	mi := openIndices()
	mi.SessionState = model.SessionClosed
	d := Compute(model.Nifty, bullOutlook(20), mi)
	require.Equal(t, 50.0, d.Confidence)
}

func TestFeedOutageCollapsesToWait(t *testing.T) {
	mi := openIndices()
	d := Compute(model.Nifty, bullOutlook(90), mi)
	require.Equal(t, model.ActionStrongBuy, d.Action)

	out := FeedOutage(d, mi.VolatilityLevel, "broker token expired")
	require.Equal(t, model.ActionWait, out.Action)
	require.Equal(t, 50.0, out.Confidence)
	require.Equal(t, "No position", out.Actions.Position)
	require.Contains(t, out.Monitor[len(out.Monitor)-1], "token expired")

	// an already-low confidence is kept, not raised
	low := FeedOutage(Compute(model.Nifty, bullOutlook(30), mi), mi.VolatilityLevel, "broker token expired")
	require.Equal(t, model.ActionWait, low.Action)
	require.LessOrEqual(t, low.Confidence, 50.0)
}

func TestComputeIsDeterministic(t *testing.T) {
	mi := openIndices()
	a := Compute(model.Nifty, bullOutlook(72), mi)
	b := Compute(model.Nifty, bullOutlook(72), mi)
	a.TS, b.TS = b.TS, a.TS
	require.Equal(t, a, b)
}

func TestPCRUnavailableContributesNothing(t *testing.T) {
	mi := openIndices()
	mi.PCRAvailable = false
	mi.PCRSentiment = model.PCRVeryBullish // must be ignored
	d := Compute(model.Nifty, bullOutlook(70), mi)
	require.Equal(t, 0.0, d.Score.PCRAdj)
	require.Contains(t, d.Monitor[0], "PCR unavailable")
}

func TestLookupActionsFallback(t *testing.T) {
	// exact entry
	got := lookupActions(model.ActionStrongBuy, model.RiskMedium, model.VolHigh)
	require.Contains(t, got.Entry, "pullback")

	// risk/vol combination not in the table falls back to the action default
	got = lookupActions(model.ActionWait, model.RiskHigh, model.VolHigh)
	require.Equal(t, "No position", got.Position)

	// every action resolves to non-empty guidance for every key combination
	for _, a := range []model.Action{
		model.ActionStrongBuy, model.ActionBuy, model.ActionHold,
		model.ActionWait, model.ActionSell, model.ActionStrongSell,
	} {
		for _, r := range []model.RiskLevel{model.RiskLow, model.RiskMedium, model.RiskHigh} {
			for _, v := range []model.VolatilityLevel{model.VolLow, model.VolNormal, model.VolHigh} {
				ta := lookupActions(a, r, v)
				require.NotEmpty(t, ta.Entry, "%s/%s/%s", a, r, v)
				require.NotEmpty(t, ta.Risk, "%s/%s/%s", a, r, v)
			}
		}
	}
}
