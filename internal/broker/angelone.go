package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketpulse/internal/model"
	"marketpulse/pkg/smartconnect"
)

// segment names the REST exchange segment for an instrument's exchange type.
func segment(exchangeType int) string {
	if exchangeType == smartconnect.ExchangeBSECM {
		return "BSE"
	}
	return "NSE"
}

// AngelOne adapts the SmartAPI client to the Adapter seam.
type AngelOne struct {
	client *smartconnect.Client
}

// NewAngelOne wraps a configured SmartAPI client.
func NewAngelOne(c *smartconnect.Client) *AngelOne {
	return &AngelOne{client: c}
}

// Client exposes the underlying SmartAPI client for the auth bridge.
func (a *AngelOne) Client() *smartconnect.Client { return a.client }

// LoginURL implements Auth.
func (a *AngelOne) LoginURL() string { return a.client.LoginURL() }

// SetToken implements Auth: install a validated access token from the OAuth
// collaborator.
func (a *AngelOne) SetToken(ctx context.Context, requestToken string) error {
	a.client.SetTokens(requestToken, "")
	// a quote read validates the token immediately instead of at the next tick
	if _, err := a.Quote(ctx, model.Nifty); err != nil {
		return wrapAuth("set-token", err)
	}
	return nil
}

// Stream implements Adapter. The stream carries every tracked instrument in
// snap-quote mode.
func (a *AngelOne) Stream(ctx context.Context) (TickStream, error) {
	byExchange := map[int][]string{}
	for _, sym := range model.AllSymbols() {
		inst := model.Instruments[sym]
		byExchange[inst.ExchangeType] = append(byExchange[inst.ExchangeType], inst.Token)
	}
	entries := make([]smartconnect.SubscriptionEntry, 0, len(byExchange))
	for ex, toks := range byExchange {
		entries = append(entries, smartconnect.SubscriptionEntry{ExchangeType: ex, Tokens: toks})
	}

	st, err := a.client.OpenStream(entries)
	if err != nil {
		return nil, wrapAuth("stream", err)
	}

	as := &angelStream{inner: st, out: make(chan model.Tick, 256)}
	go as.pump(ctx)
	return as, nil
}

type angelStream struct {
	inner *smartconnect.Stream
	out   chan model.Tick
}

func (s *angelStream) Ticks() <-chan model.Tick { return s.out }
func (s *angelStream) Err() error               { return wrapAuth("stream", s.inner.Err()) }
func (s *angelStream) Close() error             { return s.inner.Close() }

func (s *angelStream) pump(ctx context.Context) {
	defer close(s.out)
	for {
		select {
		case <-ctx.Done():
			s.inner.Close()
			return
		case raw, ok := <-s.inner.Ticks():
			if !ok {
				return
			}
			sym, known := model.SymbolByToken(raw.Token)
			if !known {
				continue
			}
			t := model.Tick{
				Symbol:    sym,
				Price:     raw.LTP,
				Qty:       raw.LastQty,
				CumVolume: raw.Volume,
				OI:        raw.OI,
				DayOpen:   raw.Open,
				DayHigh:   raw.High,
				DayLow:    raw.Low,
				PrevClose: raw.PrevClose,
				TS:        raw.ExchangeTS,
				Source:    model.SourceWS,
			}
			select {
			case s.out <- t:
			case <-ctx.Done():
				s.inner.Close()
				return
			}
		}
	}
}

// Quote implements Adapter via the FULL-mode REST quote.
func (a *AngelOne) Quote(ctx context.Context, sym model.Symbol) (model.Tick, error) {
	inst, ok := model.Instruments[sym]
	if !ok {
		return model.Tick{}, fmt.Errorf("broker: unknown symbol %q", sym)
	}
	quotes, err := a.client.Quote(ctx, map[string][]string{segment(inst.ExchangeType): {inst.Token}})
	if err != nil {
		return model.Tick{}, wrapAuth("quote", err)
	}
	if len(quotes) == 0 {
		return model.Tick{}, fmt.Errorf("broker: empty quote response for %s", sym)
	}
	q := quotes[0]
	return model.Tick{
		Symbol:    sym,
		Price:     q.LTP,
		Qty:       q.LastTradedQty,
		CumVolume: q.Volume,
		OI:        q.OI,
		DayOpen:   q.Open,
		DayHigh:   q.High,
		DayLow:    q.Low,
		PrevClose: q.Close,
		TS:        q.ExchangeTS,
		Source:    model.SourceREST,
	}, nil
}

// DailyOHLC implements Adapter. It over-fetches calendar days to cover
// weekends and holidays, then returns the most recent `days` bars.
func (a *AngelOne) DailyOHLC(ctx context.Context, sym model.Symbol, days int) ([]DayBar, error) {
	inst, ok := model.Instruments[sym]
	if !ok {
		return nil, fmt.Errorf("broker: unknown symbol %q", sym)
	}
	now := time.Now()
	rows, err := a.client.CandleData(ctx, smartconnect.CandleRequest{
		Exchange: segment(inst.ExchangeType),
		Token:    inst.Token,
		Interval: "ONE_DAY",
		From:     now.AddDate(0, 0, -(days*2 + 5)),
		To:       now,
	})
	if err != nil {
		return nil, wrapAuth("daily-ohlc", err)
	}

	bars := make([]DayBar, 0, len(rows))
	for _, r := range rows {
		bars = append(bars, DayBar{
			Date: r.TS, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume,
		})
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}

// OptionChain implements Adapter. The broker reports the put-call ratio
// directly instead of a raw chain, so the ratio is encoded as a single
// synthetic row that PCR() recovers exactly.
func (a *AngelOne) OptionChain(ctx context.Context, sym model.Symbol) (OptionChain, error) {
	rows, err := a.client.PutCallRatio(ctx)
	if err != nil {
		return OptionChain{}, wrapAuth("option-chain", err)
	}

	prefix := string(sym)
	for _, r := range rows {
		if !strings.HasPrefix(strings.ToUpper(r.TradingSymbol), prefix) {
			continue
		}
		const callBase = 1_000_000
		return OptionChain{
			Symbol: sym,
			TS:     time.Now(),
			Rows: []OptionRow{{
				CallVol: callBase,
				PutVol:  int64(r.PCR * callBase),
			}},
		}, nil
	}
	return OptionChain{}, fmt.Errorf("broker: no PCR row for %s", sym)
}

func wrapAuth(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, smartconnect.ErrTokenRejected) {
		return &AuthError{Op: op, Msg: err.Error()}
	}
	return err
}
