// Package ingest owns the upstream tick session: one WebSocket stream per
// process, a per-symbol staleness watchdog, reconnect with jittered backoff,
// token-expiry escalation, and a REST-polling fallback when the stream stays
// unusable during market hours. The supervisor is the sole producer of ticks
// into the bus.
package ingest

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"marketpulse/internal/broker"
	"marketpulse/internal/model"
)

// State is the supervisor's connection state.
type State string

const (
	StateInit         State = "INIT"
	StateConnecting   State = "CONNECTING"
	StateSubscribed   State = "SUBSCRIBED"
	StateHealthy      State = "HEALTHY"
	StateDegraded     State = "DEGRADED"
	StateBackoff      State = "BACKOFF"
	StateTokenExpired State = "TOKEN_EXPIRED"
	StateFallbackREST State = "FALLBACK_REST"
	StateClosed       State = "CLOSED"
)

const (
	backoffBase   = time.Second
	backoffCap    = 60 * time.Second
	backoffJitter = 0.2

	staleOpen    = 15 * time.Second
	stalePreOpen = 120 * time.Second

	fallbackAfter = 30 * time.Second
	fallbackPoll  = 2 * time.Second

	authFailLimit = 3
	watchdogEvery = time.Second
)

// Publisher is the tick sink, satisfied by the bus.
type Publisher interface {
	Publish(ctx context.Context, t model.Tick) error
}

// SymbolHealth is one symbol's watchdog view.
type SymbolHealth struct {
	Symbol     model.Symbol `json:"symbol"`
	LastTickTS time.Time    `json:"last_tick_ts"`
	AgeMS      int64        `json:"age_ms"`
	Stale      bool         `json:"stale"`
}

// Health is the diagnostics snapshot of the ingest session.
type Health struct {
	State          State          `json:"state"`
	FeedOpen       bool           `json:"feed_open"`
	Fallback       bool           `json:"rest_fallback_active"`
	AuthFailures   int            `json:"consecutive_auth_failures"`
	ReconnectCount int            `json:"reconnects"`
	Symbols        []SymbolHealth `json:"symbols"`
}

// Supervisor drives the ingest session. Construct with New, wire the hooks,
// then call Run once.
type Supervisor struct {
	adapter broker.Adapter
	sink    Publisher
	session func() model.SessionState
	breaker *gobreaker.CircuitBreaker

	mu             sync.Mutex
	state          State
	feedOpen       bool
	lastTick       map[model.Symbol]time.Time
	lastPublished  map[model.Symbol]time.Time
	staleFired     map[model.Symbol]bool
	authFails      int
	reconnects     int
	degradedSince  time.Time
	fallbackCancel context.CancelFunc

	openCh  chan struct{}
	closeCh chan struct{}
	forceCh chan chan struct{}
	tokenCh chan struct{}

	// OnStateChange observes every transition.
	OnStateChange func(old, new State)
	// OnReset runs during force-reconnect, after the stream is drained and
	// before any new tick is published. Cache purge and pipeline resets
	// belong here.
	OnReset func()
}

// New builds a Supervisor publishing into sink.
func New(adapter broker.Adapter, sink Publisher, session func() model.SessionState) *Supervisor {
	return &Supervisor{
		adapter:       adapter,
		sink:          sink,
		session:       session,
		lastTick:      make(map[model.Symbol]time.Time),
		lastPublished: make(map[model.Symbol]time.Time),
		staleFired:    make(map[model.Symbol]bool),
		state:         StateInit,
		openCh:        make(chan struct{}, 1),
		closeCh:       make(chan struct{}, 1),
		forceCh:       make(chan chan struct{}, 1),
		tokenCh:       make(chan struct{}, 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "broker-rest",
			Timeout: 10 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Open implements the scheduler's feed command: start the session.
func (s *Supervisor) Open() {
	select {
	case s.openCh <- struct{}{}:
	default:
	}
}

// Close implements the scheduler's feed command: stop the session.
func (s *Supervisor) Close() {
	select {
	case s.closeCh <- struct{}{}:
	default:
	}
}

// ForceReconnect drains the stream, runs OnReset, and re-enters CONNECTING.
// It returns once the old session is torn down or ctx expires.
func (s *Supervisor) ForceReconnect(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case s.forceCh <- done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TokenRecovered unblocks a TOKEN_EXPIRED session after a new token is set.
func (s *Supervisor) TokenRecovered() {
	s.mu.Lock()
	s.authFails = 0
	s.mu.Unlock()
	select {
	case s.tokenCh <- struct{}{}:
	default:
	}
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Health returns the diagnostics snapshot.
func (s *Supervisor) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	limit := s.staleLimit()
	h := Health{
		State:          s.state,
		FeedOpen:       s.feedOpen,
		Fallback:       s.fallbackCancel != nil,
		AuthFailures:   s.authFails,
		ReconnectCount: s.reconnects,
	}
	for _, sym := range model.AllSymbols() {
		sh := SymbolHealth{Symbol: sym}
		if ts, ok := s.lastTick[sym]; ok {
			sh.LastTickTS = ts
			sh.AgeMS = now.Sub(ts).Milliseconds()
			sh.Stale = limit > 0 && now.Sub(ts) > limit
		}
		h.Symbols = append(h.Symbols, sh)
	}
	return h
}

// Live reports whether the feed is currently producing fresh WS ticks.
func (s *Supervisor) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateHealthy
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	old := s.state
	if old == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	cb := s.OnStateChange
	s.mu.Unlock()

	log.Printf("[ingest] %s -> %s", old, st)
	if cb != nil {
		cb(old, st)
	}
}

// staleLimit must be called with s.mu held.
func (s *Supervisor) staleLimit() time.Duration {
	switch s.session() {
	case model.SessionMarketOpen:
		return staleOpen
	case model.SessionPreOpen:
		return stalePreOpen
	default:
		return 0
	}
}

// Run drives the session until ctx is done. It blocks.
func (s *Supervisor) Run(ctx context.Context) {
	defer s.stopFallback()
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		open := s.feedOpen
		s.mu.Unlock()
		if !open {
			s.stopFallback()
			s.setState(StateClosed)
			select {
			case <-ctx.Done():
				return
			case <-s.openCh:
				s.mu.Lock()
				s.feedOpen = true
				s.degradedSince = time.Time{}
				s.mu.Unlock()
				attempt = 0
			case <-s.closeCh:
			case done := <-s.forceCh:
				close(done)
			}
			continue
		}

		s.setState(StateConnecting)
		stream, err := s.adapter.Stream(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.markDegraded()
			s.maybeFallback(ctx)

			var authErr *broker.AuthError
			if errors.As(err, &authErr) || errors.Is(err, broker.ErrTokenExpired) {
				s.mu.Lock()
				s.authFails++
				fails := s.authFails
				s.mu.Unlock()
				log.Printf("[ingest] auth failure %d/%d: %v", fails, authFailLimit, err)
				if fails >= authFailLimit {
					s.stopFallback()
					s.setState(StateTokenExpired)
					if !s.waitToken(ctx) {
						return
					}
					attempt = 0
					continue
				}
			} else {
				log.Printf("[ingest] connect failed: %v", err)
			}
			s.setState(StateBackoff)
			if !s.sleep(ctx, backoff(attempt)) {
				return
			}
			attempt++
			continue
		}

		s.mu.Lock()
		s.reconnects++
		// expiry escalation counts consecutive failures only; a working
		// subscribe clears the slate
		s.authFails = 0
		s.staleFired = make(map[model.Symbol]bool)
		s.mu.Unlock()
		attempt = 0
		s.setState(StateSubscribed)

		if !s.consume(ctx, stream) {
			stream.Close()
			return
		}
		stream.Close()
	}
}

// consume pumps one stream until it dies or a command interrupts it.
// Returns false only when ctx is done.
func (s *Supervisor) consume(ctx context.Context, stream broker.TickStream) bool {
	watchdog := time.NewTicker(watchdogEvery)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return false

		case <-s.closeCh:
			s.mu.Lock()
			s.feedOpen = false
			s.mu.Unlock()
			s.stopFallback()
			log.Printf("[ingest] feed closed by scheduler")
			return true

		case <-s.openCh:
			// already open

		case done := <-s.forceCh:
			log.Printf("[ingest] force-reconnect requested")
			s.stopFallback()
			stream.Close()
			s.drain(stream)
			if s.OnReset != nil {
				s.OnReset()
			}
			s.mu.Lock()
			s.lastTick = make(map[model.Symbol]time.Time)
			s.lastPublished = make(map[model.Symbol]time.Time)
			s.staleFired = make(map[model.Symbol]bool)
			s.degradedSince = time.Time{}
			s.mu.Unlock()
			close(done)
			return true

		case t, ok := <-stream.Ticks():
			if !ok {
				if err := stream.Err(); err != nil {
					log.Printf("[ingest] stream died: %v", err)
					var authErr *broker.AuthError
					if errors.As(err, &authErr) {
						s.mu.Lock()
						s.authFails++
						s.mu.Unlock()
					}
				}
				s.markDegraded()
				s.setState(StateDegraded)
				return true
			}
			s.publish(ctx, t)
			if st := s.State(); st != StateHealthy {
				// WS ticks resumed: the fallback yields immediately
				s.stopFallback()
				s.mu.Lock()
				s.degradedSince = time.Time{}
				s.mu.Unlock()
				s.setState(StateHealthy)
			}

		case <-watchdog.C:
			if stale := s.checkStale(); stale != "" {
				log.Printf("[ingest] watchdog: %s stale, forcing reconnect", stale)
				stream.Close()
				s.drain(stream)
				s.markDegraded()
				s.setState(StateDegraded)
				return true
			}
			s.maybeFallback(ctx)
		}
	}
}

func (s *Supervisor) markDegraded() {
	s.mu.Lock()
	if s.degradedSince.IsZero() {
		s.degradedSince = time.Now()
	}
	s.mu.Unlock()
}

// maybeFallback starts the REST poller once degradation has persisted past
// the budget during market hours.
func (s *Supervisor) maybeFallback(ctx context.Context) {
	s.mu.Lock()
	start := s.fallbackCancel == nil &&
		!s.degradedSince.IsZero() &&
		time.Since(s.degradedSince) > fallbackAfter &&
		s.session() == model.SessionMarketOpen
	if start {
		fbCtx, cancel := context.WithCancel(ctx)
		s.fallbackCancel = cancel
		go s.restFallback(fbCtx)
	}
	s.mu.Unlock()
	if start {
		s.setState(StateFallbackREST)
	}
}

func (s *Supervisor) stopFallback() {
	s.mu.Lock()
	cancel := s.fallbackCancel
	s.fallbackCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Supervisor) waitToken(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-s.tokenCh:
			log.Printf("[ingest] token recovered")
			return true
		case <-s.closeCh:
			s.mu.Lock()
			s.feedOpen = false
			s.mu.Unlock()
			return true
		case done := <-s.forceCh:
			close(done)
		}
	}
}

// publish forwards a tick to the bus, enforcing per-symbol timestamp
// monotonicity: an older tick is dropped, never re-published.
func (s *Supervisor) publish(ctx context.Context, t model.Tick) {
	s.mu.Lock()
	if last, ok := s.lastPublished[t.Symbol]; ok && !t.TS.After(last) {
		s.mu.Unlock()
		return
	}
	s.lastPublished[t.Symbol] = t.TS
	s.lastTick[t.Symbol] = time.Now()
	s.staleFired[t.Symbol] = false
	s.mu.Unlock()

	if err := s.sink.Publish(ctx, t); err != nil && ctx.Err() == nil {
		log.Printf("[ingest] publish %s: %v", t.Symbol, err)
	}
}

// checkStale returns the first symbol whose feed breached the staleness
// limit this episode, or "" when all are fresh.
func (s *Supervisor) checkStale() model.Symbol {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := s.staleLimit()
	if limit == 0 {
		return ""
	}
	now := time.Now()
	for _, sym := range model.AllSymbols() {
		ts, ok := s.lastTick[sym]
		if !ok || s.staleFired[sym] {
			continue
		}
		if now.Sub(ts) > limit {
			s.staleFired[sym] = true
			return sym
		}
	}
	return ""
}

// restFallback polls REST quotes every 2s and feeds synthetic ticks until
// its context is cancelled. The circuit breaker keeps a dead REST surface
// from being hammered.
func (s *Supervisor) restFallback(ctx context.Context) {
	log.Printf("[ingest] REST fallback engaged")
	t := time.NewTicker(fallbackPoll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[ingest] REST fallback stopped")
			return
		case <-t.C:
			for _, sym := range model.AllSymbols() {
				res, err := s.breaker.Execute(func() (any, error) {
					return s.adapter.Quote(ctx, sym)
				})
				if err != nil {
					if ctx.Err() == nil {
						log.Printf("[ingest] fallback quote %s: %v", sym, err)
					}
					continue
				}
				tick := res.(model.Tick)
				tick.Source = model.SourceREST
				s.publish(ctx, tick)
			}
		}
	}
}

func (s *Supervisor) drain(stream broker.TickStream) {
	for range stream.Ticks() {
	}
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	case <-s.closeCh:
		s.mu.Lock()
		s.feedOpen = false
		s.mu.Unlock()
		return true
	}
}

// backoff returns the jittered delay for the given attempt: 1s doubling to
// a 60s cap with ±20% jitter.
func backoff(attempt int) time.Duration {
	d := backoffBase << uint(attempt)
	if d > backoffCap || d <= 0 {
		d = backoffCap
	}
	j := 1 + backoffJitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * j)
}
