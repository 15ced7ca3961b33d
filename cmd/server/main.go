// Command server runs the full market intelligence service: broker ingest,
// candle/indicator/signal/decision pipeline, REST + WebSocket surface, and
// the IST session scheduler.
//
// Exit codes: 0 clean shutdown, 1 configuration error, 2 unrecoverable
// broker startup failure.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"marketpulse/config"
	"marketpulse/internal/api"
	"marketpulse/internal/broker"
	"marketpulse/internal/bus"
	"marketpulse/internal/cache"
	"marketpulse/internal/candle"
	"marketpulse/internal/hub"
	"marketpulse/internal/indicator"
	"marketpulse/internal/ingest"
	"marketpulse/internal/logger"
	"marketpulse/internal/markethours"
	"marketpulse/internal/marketindices"
	"marketpulse/internal/metrics"
	"marketpulse/internal/model"
	"marketpulse/internal/scheduler"
	"marketpulse/internal/service"
	sqlitestore "marketpulse/internal/store/sqlite"
	"marketpulse/pkg/smartconnect"
)

const loginAttempts = 3

// busSink adapts the bus to the supervisor's error-returning sink and counts
// published ticks.
type busSink struct {
	b *bus.Bus
	m *metrics.Metrics
}

func (s busSink) Publish(ctx context.Context, t model.Tick) error {
	s.b.Publish(ctx, t)
	s.m.TicksTotal.WithLabelValues(string(t.Symbol), string(t.Source)).Inc()
	return nil
}

// countingJournal counts candles dropped on a full journal queue.
type countingJournal struct {
	inner service.Journal
	m     *metrics.Metrics
}

func (j countingJournal) Append(c model.Candle) error {
	err := j.inner.Append(c)
	if err != nil {
		j.m.JournalQueueFull.Inc()
	}
	return err
}

func main() {
	cfg := config.Load()
	logger.Init("marketpulse", logger.ParseLevel(os.Getenv("LOG_LEVEL")))
	log.Printf("[server] starting")

	// holiday calendar
	cal := markethours.NewCalendar()
	if cfg.HolidayFile != "" {
		loaded, err := markethours.LoadCalendar(cfg.HolidayFile)
		if err != nil {
			log.Printf("[server] holiday file %s unreadable, continuing without: %v", cfg.HolidayFile, err)
		} else {
			cal = loaded
			log.Printf("[server] holiday calendar loaded (%d dates)", cal.Len())
		}
	}
	sched := scheduler.New(cal, cfg.EnableScheduler)

	// broker session
	client := smartconnect.New(smartconnect.Config{
		APIKey:      cfg.BrokerAPIKey,
		ClientCode:  cfg.BrokerClientCode,
		PIN:         cfg.BrokerPIN,
		TOTPSecret:  cfg.BrokerTOTPSecret,
		AccessToken: cfg.BrokerAccessToken,
		FeedToken:   cfg.BrokerFeedToken,
	})
	if cfg.BrokerAccessToken == "" {
		if err := loginWithRetry(client); err != nil {
			log.Printf("[server] broker login failed after %d attempts: %v", loginAttempts, err)
			os.Exit(2)
		}
	}
	angel := broker.NewAngelOne(client)

	// instrumentation
	m, reg := metrics.New()
	var metricsSrv *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = metrics.NewServer(cfg.MetricsAddr, reg)
		metricsSrv.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// cache backend
	var store cache.Cache
	if cfg.CacheURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.CacheURL)
		if err != nil {
			log.Printf("[server] redis unreachable, using in-memory cache: %v", err)
			mem := cache.NewMemory()
			go mem.Sweep(ctx, time.Minute)
			store = mem
		} else {
			defer rc.Close()
			store = rc
		}
	} else {
		mem := cache.NewMemory()
		go mem.Sweep(ctx, time.Minute)
		store = mem
	}

	// pipeline components
	tickBus := bus.New()
	builder := candle.NewBuilder()
	pool := indicator.NewPool(builder)
	indices := marketindices.New(angel, sched.State, model.Nifty)
	wsHub := hub.New()
	sup := ingest.New(angel, busSink{tickBus, m}, sched.State)

	var journal service.Journal
	if cfg.CandleDBPath != "" {
		j, err := sqlitestore.Open(cfg.CandleDBPath)
		if err != nil {
			log.Printf("[server] candle journal disabled: %v", err)
		} else {
			defer j.Close()
			go j.Run(ctx)
			journal = countingJournal{inner: j, m: m}
		}
	}

	svc := service.New(service.Deps{
		Adapter:    angel,
		Bus:        tickBus,
		Builder:    builder,
		Pool:       pool,
		Indices:    indices,
		Cache:      store,
		Hub:        wsHub,
		Supervisor: sup,
		Session:    sched.State,
		Journal:    journal,
		Metrics:    m,
	})

	wireMetrics(m, tickBus, builder, wsHub, indices, sup, sched)
	go pollClientCount(ctx, m, wsHub)

	go sup.Run(ctx)
	go svc.Run(ctx)
	go func() {
		if err := sched.Run(ctx, sup, cfg.HolidayFile); err != nil {
			log.Printf("[scheduler] run failed: %v", err)
		}
	}()

	// HTTP surface
	apiSrv := api.New(svc, angel, sched.State, cfg.APIToken)
	apiSrv.OnTokenSet = sup.TokenRecovered
	mux := apiSrv.Routes()
	mux.HandleFunc("/ws/market", wsHub.HandleWS)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpSrv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Printf("[server] listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[server] http server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Printf("[server] shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		log.Printf("[server] http shutdown: %v", err)
	}
	if metricsSrv != nil {
		metricsSrv.Stop(shutCtx)
	}
	tickBus.Close()
	log.Printf("[server] stopped")
}

// loginWithRetry runs the TOTP session flow a few times before giving up.
// Auth rejections are terminal immediately: retrying a bad credential only
// burns rate limit.
func loginWithRetry(client *smartconnect.Client) error {
	var err error
	for attempt := 1; attempt <= loginAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err = client.GenerateSession(ctx)
		cancel()
		if err == nil {
			log.Printf("[server] broker session established")
			return nil
		}
		if errors.Is(err, smartconnect.ErrTokenRejected) {
			return err
		}
		log.Printf("[server] broker login attempt %d/%d failed: %v", attempt, loginAttempts, err)
		time.Sleep(time.Duration(attempt) * 2 * time.Second)
	}
	return err
}

func wireMetrics(m *metrics.Metrics, tickBus *bus.Bus, builder *candle.Builder, wsHub *hub.Hub, indices *marketindices.Engine, sup *ingest.Supervisor, sched *scheduler.Scheduler) {
	tickBus.OnDrop = func(name string) { m.BusDropsTotal.WithLabelValues(name).Inc() }
	wsHub.OnDrop = func(_ string, topic hub.Topic) { m.HubDropsTotal.WithLabelValues(string(topic)).Inc() }
	builder.OnDroppedTick = func() { m.DroppedTicks.Inc() }

	// count finalized candles without displacing the service's OnFinal hook
	prevFinal := builder.OnFinal
	builder.OnFinal = func(c model.Candle) {
		m.CandlesTotal.WithLabelValues(strconv.Itoa(c.TF)).Inc()
		if prevFinal != nil {
			prevFinal(c)
		}
	}

	sup.OnStateChange = func(_, to ingest.State) {
		m.FeedState.Set(feedStateValue(to))
		m.FeedTransitions.WithLabelValues(string(to)).Inc()
		switch to {
		case ingest.StateConnecting:
			m.Reconnects.Inc()
		case ingest.StateFallbackREST:
			m.FallbackActive.Set(1)
		case ingest.StateDegraded:
			m.StaleEpisodes.Inc()
		}
		if to != ingest.StateFallbackREST {
			m.FallbackActive.Set(0)
		}
	}

	sched.OnTransition = func(_, to model.SessionState) {
		m.SessionState.Set(sessionStateValue(to))
	}

	// count carried-forward PCR reads without displacing the service's hook
	prevUpdate := indices.OnUpdate
	indices.OnUpdate = func(mi model.MarketIndices) {
		if !mi.PCRAvailable {
			m.PCRUnavailable.Inc()
		}
		if prevUpdate != nil {
			prevUpdate(mi)
		}
	}
}

func pollClientCount(ctx context.Context, m *metrics.Metrics, wsHub *hub.Hub) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.WSClients.Set(float64(wsHub.ClientCount()))
		}
	}
}

func feedStateValue(s ingest.State) float64 {
	switch s {
	case ingest.StateInit:
		return 0
	case ingest.StateConnecting:
		return 1
	case ingest.StateSubscribed:
		return 2
	case ingest.StateHealthy:
		return 3
	case ingest.StateDegraded:
		return 4
	case ingest.StateBackoff:
		return 5
	case ingest.StateTokenExpired:
		return 6
	case ingest.StateFallbackREST:
		return 7
	default:
		return 8
	}
}

func sessionStateValue(s model.SessionState) float64 {
	switch s {
	case model.SessionPreOpen:
		return 1
	case model.SessionMarketOpen:
		return 2
	case model.SessionAfterHours:
		return 3
	case model.SessionHoliday:
		return 4
	default:
		return 0
	}
}
