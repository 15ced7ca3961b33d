package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemorySetGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SetWithTTL(ctx, Key(KindSnapshot, "NIFTY"), []byte(`{"price":24100.5}`), time.Minute))

	got, err := m.Get(ctx, "snapshot:NIFTY")
	require.NoError(t, err)
	require.JSONEq(t, `{"price":24100.5}`, string(got))
}

func TestMemoryMissAndExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Get(ctx, "absent")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.SetWithTTL(ctx, "short", []byte("v"), 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)
	_, err = m.Get(ctx, "short")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryOverwriteIsLastWriterWins(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SetWithTTL(ctx, "k", []byte("one"), time.Minute))
	require.NoError(t, m.SetWithTTL(ctx, "k", []byte("two"), time.Minute))

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "two", string(got))
}

func TestMemoryDeleteAndPrefix(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, k := range []string{"outlook:NIFTY", "outlook:BANKNIFTY", "decision:NIFTY"} {
		require.NoError(t, m.SetWithTTL(ctx, k, []byte("v"), time.Minute))
	}

	require.NoError(t, m.Delete(ctx, "decision:NIFTY"))
	_, err := m.Get(ctx, "decision:NIFTY")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.DeletePrefix(ctx, "outlook:"))
	_, err = m.Get(ctx, "outlook:NIFTY")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(ctx, "outlook:BANKNIFTY")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SetWithTTL(ctx, "k", []byte("abc"), time.Minute))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	got[0] = 'z'

	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "abc", string(again))
}

func TestMemoryLenCountsLiveOnly(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SetWithTTL(ctx, "live", []byte("v"), time.Minute))
	require.NoError(t, m.SetWithTTL(ctx, "dead", []byte("v"), time.Millisecond))
	time.Sleep(10 * time.Millisecond)

	require.Equal(t, 1, m.Len())
}

func TestKeyFormat(t *testing.T) {
	require.Equal(t, "decision:SENSEX", Key(KindDecision, "SENSEX"))
}
