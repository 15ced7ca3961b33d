package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketpulse/internal/model"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "candles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func candleAt(sym model.Symbol, tf int, ts time.Time, close int64) model.Candle {
	return model.Candle{
		Symbol: sym, TF: tf, TS: ts,
		Open: close - 50, High: close + 25, Low: close - 75, Close: close,
		Volume: 1200, OIClose: 500000, Ticks: 40,
	}
}

func TestJournalRoundTrip(t *testing.T) {
	j := openTestJournal(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { j.Run(ctx); close(done) }()

	base := time.Date(2026, 8, 24, 9, 15, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, j.Append(candleAt(model.Nifty, model.TF5m, base.Add(time.Duration(i)*5*time.Minute), int64(2410000+i*100))))
	}
	cancel() // Run flushes on shutdown
	<-done

	got, err := j.Recent(model.Nifty, model.TF5m, 10)
	require.NoError(t, err)
	require.Len(t, got, 5)

	// oldest first, prices intact
	require.Equal(t, int64(2410000), got[0].Close)
	require.Equal(t, int64(2410400), got[4].Close)
	require.Equal(t, base.Unix(), got[0].TS.Unix())
	require.Equal(t, model.Nifty, got[0].Symbol)
}

func TestJournalRecentLimitsAndFilters(t *testing.T) {
	j := openTestJournal(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { j.Run(ctx); close(done) }()

	base := time.Date(2026, 8, 24, 9, 15, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		require.NoError(t, j.Append(candleAt(model.Nifty, model.TF1m, base.Add(time.Duration(i)*time.Minute), int64(100+i))))
	}
	require.NoError(t, j.Append(candleAt(model.BankNifty, model.TF1m, base, 999)))
	cancel()
	<-done

	got, err := j.Recent(model.Nifty, model.TF1m, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, int64(105), got[0].Close) // newest three: 105,106,107
	require.Equal(t, int64(107), got[2].Close)

	other, err := j.Recent(model.BankNifty, model.TF1m, 10)
	require.NoError(t, err)
	require.Len(t, other, 1)
}

func TestJournalUpsertReplacesSameBucket(t *testing.T) {
	j := openTestJournal(t)

	ts := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	require.NoError(t, j.insertBatch([]model.Candle{candleAt(model.Sensex, model.TF5m, ts, 8050000)}))
	require.NoError(t, j.insertBatch([]model.Candle{candleAt(model.Sensex, model.TF5m, ts, 8051000)}))

	got, err := j.Recent(model.Sensex, model.TF5m, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(8051000), got[0].Close)
}

func TestAppendDropsWhenQueueFull(t *testing.T) {
	j := openTestJournal(t)
	// no Run goroutine: fill the queue
	c := candleAt(model.Nifty, model.TF1m, time.Now(), 100)
	for i := 0; i < queueLen; i++ {
		require.NoError(t, j.Append(c))
	}
	require.Error(t, j.Append(c))
}
