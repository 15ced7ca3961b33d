package marketindices

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"marketpulse/internal/broker"
	"marketpulse/internal/model"
)

type stubAdapter struct {
	broker.Adapter
	chain broker.OptionChain
	err   error
}

func (s *stubAdapter) OptionChain(ctx context.Context, sym model.Symbol) (broker.OptionChain, error) {
	return s.chain, s.err
}

func openSession() model.SessionState { return model.SessionMarketOpen }

func TestClassifyPCR(t *testing.T) {
	cases := []struct {
		v    float64
		want model.PCRSentiment
	}{
		{1.5, model.PCRVeryBullish},
		{1.3, model.PCRVeryBullish},
		{1.2, model.PCRBullish},
		{1.0, model.PCRNeutral},
		{0.8, model.PCRBearish},
		{0.6, model.PCRVeryBearish},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ClassifyPCR(tc.v), "pcr=%.2f", tc.v)
	}
}

func TestClassifyBreadthAndVolatility(t *testing.T) {
	require.Equal(t, model.BreadthStrongPositive, ClassifyBreadth(2.5))
	require.Equal(t, model.BreadthPositive, ClassifyBreadth(1.4))
	require.Equal(t, model.BreadthNeutral, ClassifyBreadth(1.0))
	require.Equal(t, model.BreadthNegative, ClassifyBreadth(0.6))
	require.Equal(t, model.BreadthStrongNegative, ClassifyBreadth(0.4))

	require.Equal(t, model.VolLow, ClassifyVolatility(0.3))
	require.Equal(t, model.VolNormal, ClassifyVolatility(1.0))
	require.Equal(t, model.VolHigh, ClassifyVolatility(2.0))
	require.Equal(t, model.VolNormal, ClassifyVolatility(0)) // no data yet
}

func TestOIQuadrant(t *testing.T) {
	require.Equal(t, model.OILongBuildup, OIQuadrant(10, 100))
	require.Equal(t, model.OIShortBuildup, OIQuadrant(-10, 100))
	require.Equal(t, model.OILongUnwinding, OIQuadrant(-10, -100))
	require.Equal(t, model.OIShortCovering, OIQuadrant(10, -100))
	require.Equal(t, model.OIFlat, OIQuadrant(0, 100))
}

func TestRefreshComputesRecord(t *testing.T) {
	ad := &stubAdapter{chain: broker.OptionChain{
		Symbol: model.Nifty,
		Rows: []broker.OptionRow{
			{Strike: 24000, CallVol: 1000, PutVol: 1300},
		},
	}}
	e := New(ad, openSession, model.Nifty)

	e.Observe(model.Tick{Symbol: model.Nifty, Price: model.Paise(24100),
		PrevClose: model.Paise(24000), DayHigh: model.Paise(24200), DayLow: model.Paise(23960),
		OI: 5000})
	e.Observe(model.Tick{Symbol: model.BankNifty, Price: model.Paise(51000), PrevClose: model.Paise(51200)})
	e.Observe(model.Tick{Symbol: model.Sensex, Price: model.Paise(80500), PrevClose: model.Paise(80000)})

	e.Refresh(context.Background())
	got := e.Current()

	require.True(t, got.PCRAvailable)
	require.InDelta(t, 1.3, got.PCRValue, 1e-9)
	require.Equal(t, model.PCRVeryBullish, got.PCRSentiment)
	require.InDelta(t, 2.0, got.BreadthRatio, 1e-9) // 2 advancing vs 1 declining
	require.Equal(t, model.BreadthStrongPositive, got.BreadthLabel)
	require.Equal(t, model.SessionMarketOpen, got.SessionState)
	// (24200-23960)/24000 = 1.0%
	require.InDelta(t, 1.0, got.VolatilityPct, 1e-9)
	require.Equal(t, model.VolNormal, got.VolatilityLevel)
	// first refresh only seeds the OI reference
	require.Equal(t, model.OIFlat, got.OIMomentum)

	// second refresh: price and OI both up relative to the reference
	e.Observe(model.Tick{Symbol: model.Nifty, Price: model.Paise(24150), OI: 5600})
	e.Refresh(context.Background())
	require.Equal(t, model.OILongBuildup, e.Current().OIMomentum)
}

func TestRefreshKeepsOldPCROnChainError(t *testing.T) {
	ad := &stubAdapter{chain: broker.OptionChain{
		Rows: []broker.OptionRow{{CallVol: 100, PutVol: 80}},
	}}
	e := New(ad, openSession, model.Nifty)
	e.Refresh(context.Background())
	require.True(t, e.Current().PCRAvailable)
	require.InDelta(t, 0.8, e.Current().PCRValue, 1e-9)

	ad.err = context.DeadlineExceeded
	e.Refresh(context.Background())
	got := e.Current()
	require.False(t, got.PCRAvailable)
	require.InDelta(t, 0.8, got.PCRValue, 1e-9) // carried forward
}
