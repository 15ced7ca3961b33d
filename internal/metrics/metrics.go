// Package metrics exposes Prometheus instrumentation for the pipeline and a
// small exposition server. Hooks on the bus, hub, builder, and ingest
// supervisor feed the counters; nothing in the hot path depends on this
// package directly.
package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus series the service emits.
type Metrics struct {
	TicksTotal   *prometheus.CounterVec // labels: symbol, source
	CandlesTotal *prometheus.CounterVec // labels: tf

	BusDropsTotal *prometheus.CounterVec // labels: subscriber
	HubDropsTotal *prometheus.CounterVec // labels: topic
	DroppedTicks  prometheus.Counter     // out-of-order ticks rejected by the builder

	FeedState        prometheus.Gauge       // enumerated ingest state
	FeedTransitions  *prometheus.CounterVec // labels: state
	Reconnects       prometheus.Counter
	FallbackActive   prometheus.Gauge
	StaleEpisodes    prometheus.Counter
	EvaluationDur    prometheus.Histogram
	WSClients        prometheus.Gauge
	SessionState     prometheus.Gauge // 0=closed,1=pre-open,2=open,3=after-hours,4=holiday
	DecisionsTotal   *prometheus.CounterVec // labels: symbol, action
	PCRUnavailable   prometheus.Counter
	JournalQueueFull prometheus.Counter
}

// New registers all series on a fresh registry and returns both.
func New() (*Metrics, *prometheus.Registry) {
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketpulse_ticks_total",
			Help: "Ticks published onto the bus",
		}, []string{"symbol", "source"}),
		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketpulse_candles_total",
			Help: "Finalized candles emitted by the builder",
		}, []string{"tf"}),
		BusDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketpulse_bus_drops_total",
			Help: "Ticks dropped by best-effort bus subscribers",
		}, []string{"subscriber"}),
		HubDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketpulse_hub_drops_total",
			Help: "Envelopes dropped from slow WebSocket client queues",
		}, []string{"topic"}),
		DroppedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketpulse_dropped_ticks_total",
			Help: "Out-of-order ticks rejected by the candle builder",
		}),
		FeedState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketpulse_feed_state",
			Help: "Ingest state: 0=init 1=connecting 2=subscribed 3=healthy 4=degraded 5=backoff 6=token_expired 7=fallback_rest 8=closed",
		}),
		FeedTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketpulse_feed_transitions_total",
			Help: "Ingest state transitions by target state",
		}, []string{"state"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketpulse_feed_reconnects_total",
			Help: "Feed reconnect attempts",
		}),
		FallbackActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketpulse_rest_fallback_active",
			Help: "1 while the REST polling fallback is serving ticks",
		}),
		StaleEpisodes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketpulse_stale_episodes_total",
			Help: "Watchdog stale-feed episodes",
		}),
		EvaluationDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketpulse_evaluation_duration_seconds",
			Help:    "Full indicator+signal+decision evaluation latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketpulse_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		SessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketpulse_session_state",
			Help: "Market session: 0=closed 1=pre_open 2=market_open 3=after_hours 4=holiday",
		}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketpulse_decisions_total",
			Help: "Trading decisions computed",
		}, []string{"symbol", "action"}),
		PCRUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketpulse_pcr_unavailable_total",
			Help: "Option-chain refreshes that carried the PCR forward",
		}),
		JournalQueueFull: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketpulse_journal_queue_full_total",
			Help: "Candles dropped because the sqlite journal queue was full",
		}),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		m.TicksTotal, m.CandlesTotal, m.BusDropsTotal, m.HubDropsTotal,
		m.DroppedTicks, m.FeedState, m.FeedTransitions, m.Reconnects,
		m.FallbackActive, m.StaleEpisodes, m.EvaluationDur, m.WSClients,
		m.SessionState, m.DecisionsTotal, m.PCRUnavailable, m.JournalQueueFull,
	)
	return m, reg
}

// Server serves /metrics on its own listener so the exposition port can stay
// off the public API port.
type Server struct {
	srv *http.Server
}

// NewServer builds the exposition server for addr (e.g. ":9090").
func NewServer(addr string, reg *prometheus.Registry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return &Server{srv: &http.Server{Addr: addr, Handler: mux}}
}

// Start serves in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] serving on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop shuts the listener down.
func (s *Server) Stop(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	s.srv.Shutdown(ctx)
}
