// Package broker defines the narrow seam onto the upstream broker: the tick
// stream, REST snapshot reads, daily OHLC history, and the option chain. The
// concrete implementation lives in pkg/smartconnect; everything inside the
// engine depends only on these interfaces so tests can run against stubs.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketpulse/internal/model"
)

// ErrTokenExpired marks credential failures. Callers match with errors.Is;
// the ingest supervisor escalates to TOKEN_EXPIRED after three in a row.
var ErrTokenExpired = errors.New("broker: access token expired")

// AuthError wraps a broker auth failure with the upstream message.
type AuthError struct {
	Op  string
	Msg string
}

func (e *AuthError) Error() string { return fmt.Sprintf("broker: auth failed during %s: %s", e.Op, e.Msg) }
func (e *AuthError) Unwrap() error { return ErrTokenExpired }

// TickStream is a live upstream subscription. Ticks closes when the stream
// dies; the terminal error is then available on Err.
type TickStream interface {
	Ticks() <-chan model.Tick
	Err() error
	Close() error
}

// DayBar is one daily OHLC bar. Prices are paise.
type DayBar struct {
	Date   time.Time
	Open   int64
	High   int64
	Low    int64
	Close  int64
	Volume int64
}

// OptionRow is one strike's OI and volume on both sides.
type OptionRow struct {
	Strike  float64
	CallOI  int64
	PutOI   int64
	CallVol int64
	PutVol  int64
}

// OptionChain is a point-in-time option chain read for an index.
type OptionChain struct {
	Symbol model.Symbol
	TS     time.Time
	Rows   []OptionRow
}

// PCR returns the put/call volume ratio, falling back to OI when volumes are
// absent. ok is false when neither side has data.
func (oc OptionChain) PCR() (float64, bool) {
	var callV, putV, callOI, putOI int64
	for _, r := range oc.Rows {
		callV += r.CallVol
		putV += r.PutVol
		callOI += r.CallOI
		putOI += r.PutOI
	}
	if callV > 0 {
		return float64(putV) / float64(callV), true
	}
	if callOI > 0 {
		return float64(putOI) / float64(callOI), true
	}
	return 0, false
}

// Adapter is the full broker surface the engine consumes.
type Adapter interface {
	// Stream opens the tick stream for the fixed instrument set.
	Stream(ctx context.Context) (TickStream, error)

	// Quote fetches a REST snapshot; used by the polling fallback.
	Quote(ctx context.Context, sym model.Symbol) (model.Tick, error)

	// DailyOHLC returns the most recent daily bars, newest last.
	DailyOHLC(ctx context.Context, sym model.Symbol, days int) ([]DayBar, error)

	// OptionChain reads the nearest-expiry chain around the current strike.
	OptionChain(ctx context.Context, sym model.Symbol) (OptionChain, error)
}

// Auth is the OAuth collaborator bridge: the engine never runs the login
// flow itself, it only hands out the login URL and accepts a validated
// request token.
type Auth interface {
	LoginURL() string
	SetToken(ctx context.Context, requestToken string) error
}
