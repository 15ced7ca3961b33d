package smartconnect

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func snapQuoteFrame(token string, ltp, volume, oi int64, tsMilli int64) []byte {
	b := make([]byte, frameSnapLen)
	b[0] = ModeSnapQuote
	b[1] = ExchangeNSECM
	copy(b[2:27], token)
	binary.LittleEndian.PutUint64(b[27:35], 42)                // sequence
	binary.LittleEndian.PutUint64(b[35:43], uint64(tsMilli))   // exchange ts
	binary.LittleEndian.PutUint64(b[43:51], uint64(ltp))       // ltp
	binary.LittleEndian.PutUint64(b[51:59], 75)                // last qty
	binary.LittleEndian.PutUint64(b[67:75], uint64(volume))    // day volume
	binary.LittleEndian.PutUint64(b[91:99], uint64(ltp-100))   // open
	binary.LittleEndian.PutUint64(b[99:107], uint64(ltp+50))   // high
	binary.LittleEndian.PutUint64(b[107:115], uint64(ltp-200)) // low
	binary.LittleEndian.PutUint64(b[115:123], uint64(ltp-150)) // prev close
	binary.LittleEndian.PutUint64(b[131:139], uint64(oi))      // open interest
	return b
}

func TestDecodeTickSnapQuote(t *testing.T) {
	ts := time.Date(2026, 8, 24, 10, 30, 0, 0, istZone)
	frame := snapQuoteFrame("99926000", 2412345, 123456, 9999, ts.UnixMilli())

	tick, err := decodeTick(frame)
	require.NoError(t, err)
	require.Equal(t, "99926000", tick.Token)
	require.Equal(t, ExchangeNSECM, tick.ExchangeType)
	require.Equal(t, int64(42), tick.Sequence)
	require.Equal(t, int64(2412345), tick.LTP)
	require.Equal(t, int64(75), tick.LastQty)
	require.Equal(t, int64(123456), tick.Volume)
	require.Equal(t, int64(2412245), tick.Open)
	require.Equal(t, int64(2412395), tick.High)
	require.Equal(t, int64(2412145), tick.Low)
	require.Equal(t, int64(2412195), tick.PrevClose)
	require.Equal(t, int64(9999), tick.OI)
	require.True(t, tick.ExchangeTS.Equal(ts))
}

func TestDecodeTickLTPOnlyFrame(t *testing.T) {
	frame := snapQuoteFrame("99926009", 5100000, 0, 0, time.Now().UnixMilli())[:frameLTPLen]
	frame[0] = ModeLTP

	tick, err := decodeTick(frame)
	require.NoError(t, err)
	require.Equal(t, "99926009", tick.Token)
	require.Equal(t, int64(5100000), tick.LTP)
	// quote-mode fields absent on an LTP frame
	require.Zero(t, tick.Volume)
	require.Zero(t, tick.OI)
}

func TestDecodeTickRejectsShortFrame(t *testing.T) {
	_, err := decodeTick(make([]byte, 10))
	require.Error(t, err)
}
