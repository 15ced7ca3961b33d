// Package service wires the pipeline: the ingest supervisor publishes ticks
// onto the bus; the candle builder consumes them on a must-consume channel;
// finalized candles drive the indicator pool and the signal/decision engines;
// results land in the cache and fan out over the hub. The REST surface reads
// the cache first and falls back to an on-demand evaluation.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"marketpulse/internal/broker"
	"marketpulse/internal/bus"
	"marketpulse/internal/cache"
	"marketpulse/internal/candle"
	"marketpulse/internal/decision"
	"marketpulse/internal/hub"
	"marketpulse/internal/indicator"
	"marketpulse/internal/ingest"
	"marketpulse/internal/markethours"
	"marketpulse/internal/marketindices"
	"marketpulse/internal/metrics"
	"marketpulse/internal/model"
	"marketpulse/internal/signal"
)

// Cache TTLs for derived records. Snapshots use markethours.SnapshotTTL.
const (
	outlookTTL   = 60 * time.Second
	decisionTTL  = 60 * time.Second
	indicatorTTL = 60 * time.Second
	indicesTTL   = 60 * time.Second
)

// Journal persists finalized candles. Append must not block the hot path for
// long; the sqlite writer batches internally.
type Journal interface {
	Append(c model.Candle) error
}

// Deps carries the long-lived components the service composes. All fields
// except Journal are required.
type Deps struct {
	Adapter    broker.Adapter
	Bus        *bus.Bus
	Builder    *candle.Builder
	Pool       *indicator.Pool
	Indices    *marketindices.Engine
	Cache      cache.Cache
	Hub        *hub.Hub
	Supervisor *ingest.Supervisor
	Session    func() model.SessionState
	Journal    Journal          // optional
	Metrics    *metrics.Metrics // optional
}

// Service owns the glue between ingest, analysis, and the outward surfaces.
type Service struct {
	adapter broker.Adapter
	bus     *bus.Bus
	builder *candle.Builder
	pool    *indicator.Pool
	indices *marketindices.Engine
	cache   cache.Cache
	hub     *hub.Hub
	sup     *ingest.Supervisor
	session func() model.SessionState
	journal Journal
	metrics *metrics.Metrics

	mu   sync.Mutex
	base context.Context // set by Run; hooks fire from pipeline goroutines
}

// New wires the hooks between the components. Call Run afterwards.
func New(d Deps) *Service {
	s := &Service{
		adapter: d.Adapter,
		bus:     d.Bus,
		builder: d.Builder,
		pool:    d.Pool,
		indices: d.Indices,
		cache:   d.Cache,
		hub:     d.Hub,
		sup:     d.Supervisor,
		session: d.Session,
		journal: d.Journal,
		metrics: d.Metrics,
		base:    context.Background(),
	}

	s.builder.OnFinal = s.onFinalCandle
	s.sup.OnReset = s.onFeedReset
	s.indices.OnUpdate = s.onIndicesUpdate
	s.hub.Live = s.sup.Live
	return s
}

// Run seeds prior-day levels, starts the pipeline goroutines, and blocks
// until ctx is done. The ingest supervisor and scheduler run separately;
// Run only owns the consumers of the tick bus.
func (s *Service) Run(ctx context.Context) {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	s.seedPriorDay(ctx)

	candleCh := s.bus.Subscribe("candles", 4096)
	fanCh := s.bus.SubscribeBestEffort("fanout", 1024)
	indicesCh := s.bus.SubscribeBestEffort("indices", 1024)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); s.builder.Run(ctx, candleCh) }()
	go func() { defer wg.Done(); s.indices.Run(ctx, indicesCh) }()
	go func() { defer wg.Done(); s.hub.Run(ctx) }()
	go func() { defer wg.Done(); s.fanLoop(ctx, fanCh) }()
	wg.Wait()
}

// seedPriorDay pulls daily bars per symbol so pivots and Camarilla rails are
// available before the first live candle closes. A failed fetch leaves the
// pivot block unready; the signals report "no data" instead of guessing.
func (s *Service) seedPriorDay(ctx context.Context) {
	today := time.Now().In(markethours.IST).Truncate(24 * time.Hour)
	for _, sym := range model.AllSymbols() {
		bars, err := s.adapter.DailyOHLC(ctx, sym, 5)
		if err != nil {
			log.Printf("[service] %s: prior-day fetch failed: %v", sym, err)
			continue
		}
		var prior *broker.DayBar
		for i := range bars {
			if bars[i].Date.In(markethours.IST).Before(today) {
				prior = &bars[i]
			}
		}
		if prior == nil {
			log.Printf("[service] %s: no prior-day bar in %d rows", sym, len(bars))
			continue
		}
		s.pool.SetPriorDay(sym, model.Rupees(prior.High), model.Rupees(prior.Low), model.Rupees(prior.Close))
		log.Printf("[service] %s: prior day %s H=%.2f L=%.2f C=%.2f", sym,
			prior.Date.Format("2006-01-02"), model.Rupees(prior.High), model.Rupees(prior.Low), model.Rupees(prior.Close))
	}
}

// fanLoop serves the latency-sensitive consumers: tick fan-out, snapshot
// cache/publish, and the throttled indicator refresh.
func (s *Service) fanLoop(ctx context.Context, ticks <-chan model.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			s.onTick(ctx, t)
		}
	}
}

// tickView is the rupee-priced tick shape published on the tick topic.
type tickView struct {
	Symbol model.Symbol     `json:"symbol"`
	Price  float64          `json:"price"`
	Qty    int64            `json:"qty"`
	Volume int64            `json:"volume"`
	OI     int64            `json:"oi"`
	Source model.TickSource `json:"source"`
	TS     time.Time        `json:"ts"`
}

func (s *Service) onTick(ctx context.Context, t model.Tick) {
	s.hub.Publish(hub.TopicTick, t.Symbol, tickView{
		Symbol: t.Symbol,
		Price:  model.Rupees(t.Price),
		Qty:    t.Qty,
		Volume: t.CumVolume,
		OI:     t.OI,
		Source: t.Source,
		TS:     t.TS,
	})

	snap := model.SnapshotFromTick(t, s.sup.Live())
	if raw, err := json.Marshal(snap); err == nil {
		ttl := markethours.SnapshotTTL(s.session())
		if err := s.cache.SetWithTTL(ctx, cache.Key(cache.KindSnapshot, string(t.Symbol)), raw, ttl); err != nil {
			log.Printf("[service] snapshot cache write failed: %v", err)
		}
	}
	s.hub.Publish(hub.TopicSnapshot, t.Symbol, snap)

	// throttled: the pool serves its cached battery between refresh slots
	s.evaluate(ctx, t.Symbol, false)
}

// onFinalCandle runs on the builder goroutine for every finalized bar.
// 5m closes force a full evaluation; 1m and 15m closes only feed the pool.
func (s *Service) onFinalCandle(c model.Candle) {
	if s.journal != nil {
		if err := s.journal.Append(c); err != nil {
			log.Printf("[service] candle journal append failed: %v", err)
		}
	}
	s.pool.OnCandleClose(c)
	if c.TF == model.TF5m {
		s.evaluate(s.ctx(), c.Symbol, true)
	}
}

// evaluate runs indicators -> signals -> outlook -> decision for one symbol
// and publishes the results. With force=false the pool may serve its cached
// battery, keeping the per-tick cost flat.
func (s *Service) evaluate(ctx context.Context, sym model.Symbol, force bool) {
	ind, ok := s.pool.Evaluate(sym, force)
	if !ok {
		return
	}
	start := time.Now()

	win5, partial5, _ := s.builder.Snapshot(sym, model.TF5m, 60)
	in := signal.Input{Ind: ind, Win5: win5, Partial5: partial5, Session: s.session()}
	signals := signal.Evaluate(in)
	outlook := signal.Aggregate(sym, signals, in)

	mi := s.indices.Current()
	mi.SessionState = s.session()
	dec := decision.Compute(sym, outlook, mi)
	if s.sup.State() == ingest.StateTokenExpired {
		dec = decision.FeedOutage(dec, mi.VolatilityLevel,
			"broker token expired, live feed interrupted; re-authenticate via set-token")
	}

	s.cacheJSON(ctx, cache.Key(cache.KindIndicator, string(sym)), ind, indicatorTTL)
	s.cacheJSON(ctx, cache.Key(cache.KindOutlook, string(sym)), outlook, outlookTTL)
	s.cacheJSON(ctx, cache.Key(cache.KindDecision, string(sym)), dec, decisionTTL)

	s.hub.Publish(hub.TopicOutlook, sym, outlook)
	s.hub.Publish(hub.TopicDecision, sym, dec)

	if s.metrics != nil {
		s.metrics.EvaluationDur.Observe(time.Since(start).Seconds())
		s.metrics.DecisionsTotal.WithLabelValues(string(sym), string(dec.Action)).Inc()
	}
}

// onFeedReset runs inside force-reconnect after the old stream is drained
// and before ticks flow again: derived state must not survive the reset.
func (s *Service) onFeedReset() {
	ctx := s.ctx()
	for _, sym := range model.AllSymbols() {
		s.builder.Reset(sym)
		s.pool.Reset(sym)
		for _, kind := range []string{cache.KindSnapshot, cache.KindOutlook, cache.KindDecision, cache.KindIndicator} {
			if err := s.cache.Delete(ctx, cache.Key(kind, string(sym))); err != nil && err != cache.ErrNotFound {
				log.Printf("[service] reset: cache delete %s:%s failed: %v", kind, sym, err)
			}
		}
	}
	log.Printf("[service] pipeline state reset (force-reconnect)")
}

func (s *Service) onIndicesUpdate(mi model.MarketIndices) {
	ctx := s.ctx()
	s.cacheJSON(ctx, cache.Key(cache.KindIndices, "market"), mi, indicesTTL)
	for _, sym := range model.AllSymbols() {
		s.hub.Publish(hub.TopicOIMomentum, sym, mi)
	}
}

func (s *Service) cacheJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Printf("[service] marshal %s failed: %v", key, err)
		return
	}
	if err := s.cache.SetWithTTL(ctx, key, raw, ttl); err != nil {
		log.Printf("[service] cache write %s failed: %v", key, err)
	}
}

func (s *Service) ctx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

// --- read side -------------------------------------------------------------

// SnapshotFor serves the last-known snapshot: cache first, then the hub's
// in-memory copy, then a REST quote as the cold-start fallback.
func (s *Service) SnapshotFor(ctx context.Context, sym model.Symbol) (model.Snapshot, error) {
	var snap model.Snapshot
	if raw, err := s.cache.Get(ctx, cache.Key(cache.KindSnapshot, string(sym))); err == nil {
		if err := json.Unmarshal(raw, &snap); err == nil {
			return snap, nil
		}
	}
	if snap, ok := s.hub.Snapshot(sym); ok {
		snap.IsLive = false
		return snap, nil
	}
	t, err := s.adapter.Quote(ctx, sym)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot %s: %w", sym, err)
	}
	snap = model.SnapshotFromTick(t, false)
	s.cacheJSON(ctx, cache.Key(cache.KindSnapshot, string(sym)), snap, markethours.SnapshotTTL(s.session()))
	return snap, nil
}

// OutlookFor serves the cached outlook or computes one on demand.
func (s *Service) OutlookFor(ctx context.Context, sym model.Symbol) (model.Outlook, error) {
	var o model.Outlook
	if raw, err := s.cache.Get(ctx, cache.Key(cache.KindOutlook, string(sym))); err == nil {
		if err := json.Unmarshal(raw, &o); err == nil {
			return o, nil
		}
	}
	s.evaluate(ctx, sym, true)
	raw, err := s.cache.Get(ctx, cache.Key(cache.KindOutlook, string(sym)))
	if err != nil {
		return model.Outlook{}, fmt.Errorf("outlook %s: no data", sym)
	}
	err = json.Unmarshal(raw, &o)
	return o, err
}

// DecisionFor serves the cached decision or computes one on demand.
func (s *Service) DecisionFor(ctx context.Context, sym model.Symbol) (model.Decision, error) {
	var d model.Decision
	if raw, err := s.cache.Get(ctx, cache.Key(cache.KindDecision, string(sym))); err == nil {
		if err := json.Unmarshal(raw, &d); err == nil {
			return d, nil
		}
	}
	s.evaluate(ctx, sym, true)
	raw, err := s.cache.Get(ctx, cache.Key(cache.KindDecision, string(sym)))
	if err != nil {
		return model.Decision{}, fmt.Errorf("decision %s: no data", sym)
	}
	err = json.Unmarshal(raw, &d)
	return d, err
}

// IndicatorsFor serves the cached indicator battery or evaluates on demand.
func (s *Service) IndicatorsFor(ctx context.Context, sym model.Symbol) (model.Indicators, error) {
	var ind model.Indicators
	if raw, err := s.cache.Get(ctx, cache.Key(cache.KindIndicator, string(sym))); err == nil {
		if err := json.Unmarshal(raw, &ind); err == nil {
			return ind, nil
		}
	}
	ind, ok := s.pool.Evaluate(sym, true)
	if !ok {
		return model.Indicators{}, fmt.Errorf("indicators %s: no data", sym)
	}
	s.cacheJSON(ctx, cache.Key(cache.KindIndicator, string(sym)), ind, indicatorTTL)
	return ind, nil
}

// MarketIndices returns the current market-wide context record.
func (s *Service) MarketIndices() model.MarketIndices {
	mi := s.indices.Current()
	mi.SessionState = s.session()
	return mi
}

// Diagnostics is the connection-health view served by the REST surface.
type Diagnostics struct {
	Ingest     ingest.Health      `json:"ingest"`
	Session    model.SessionState `json:"session_state"`
	HubClients int                `json:"ws_clients"`
	Bus        []bus.Stat         `json:"bus"`
	TS         time.Time          `json:"ts"`
}

// ConnectionHealth assembles the diagnostics record.
func (s *Service) ConnectionHealth() Diagnostics {
	return Diagnostics{
		Ingest:     s.sup.Health(),
		Session:    s.session(),
		HubClients: s.hub.ClientCount(),
		Bus:        s.bus.Stats(),
		TS:         time.Now(),
	}
}

// ForceReconnect tears the feed down, resets derived state, and reopens.
func (s *Service) ForceReconnect(ctx context.Context) error {
	return s.sup.ForceReconnect(ctx)
}
