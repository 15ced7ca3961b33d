// Package api is the outward REST surface plus the WebSocket mount. All
// payloads are JSON with rupee-priced values; errors use a single
// {"error":{"code","message"}} envelope. Symbol parameters are
// case-insensitive and validated against the fixed universe.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"marketpulse/internal/broker"
	"marketpulse/internal/model"
	"marketpulse/internal/service"
)

const forceReconnectTimeout = 15 * time.Second

// Analysis is the read/control surface the handlers need from the service.
type Analysis interface {
	SnapshotFor(ctx context.Context, sym model.Symbol) (model.Snapshot, error)
	IndicatorsFor(ctx context.Context, sym model.Symbol) (model.Indicators, error)
	OutlookFor(ctx context.Context, sym model.Symbol) (model.Outlook, error)
	DecisionFor(ctx context.Context, sym model.Symbol) (model.Decision, error)
	MarketIndices() model.MarketIndices
	ConnectionHealth() service.Diagnostics
	ForceReconnect(ctx context.Context) error
}

// Server holds the handler dependencies.
type Server struct {
	svc     Analysis
	auth    broker.Auth
	session func() model.SessionState
	token   string // bearer token for /api routes; empty disables the gate
	started time.Time

	// OnTokenSet fires after a successful set-token so the ingest
	// supervisor can leave TOKEN_EXPIRED.
	OnTokenSet func()
}

// New builds the server. token may be empty for open development setups.
func New(svc Analysis, auth broker.Auth, session func() model.SessionState, token string) *Server {
	return &Server{svc: svc, auth: auth, session: session, token: token, started: time.Now()}
}

// Routes registers every REST endpoint on a fresh mux. The caller mounts the
// WebSocket handler alongside (the hub owns that handler).
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/analysis/analyze/{symbol}", s.protect(s.handleAnalyze))
	mux.HandleFunc("GET /api/analysis/market-outlook/all", s.protect(s.handleOutlookAll))
	mux.HandleFunc("GET /api/analysis/market-outlook/{symbol}", s.protect(s.handleOutlook))
	mux.HandleFunc("GET /api/analysis/trading-decision/all", s.protect(s.handleDecisionAll))
	mux.HandleFunc("GET /api/analysis/trading-decision/{symbol}", s.protect(s.handleDecision))
	mux.HandleFunc("GET /api/analysis/market-indices", s.protect(s.handleIndices))

	mux.HandleFunc("GET /api/diagnostics/connection-health", s.protect(s.handleConnectionHealth))
	mux.HandleFunc("POST /api/diagnostics/force-reconnect", s.protect(s.handleForceReconnect))

	mux.HandleFunc("GET /api/auth/login-url", s.protect(s.handleLoginURL))
	mux.HandleFunc("POST /api/auth/set-token", s.protect(s.handleSetToken))

	return mux
}

// setCORS allows browser dashboards to hit the REST surface directly.
func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

// protect enforces the bearer token when one is configured.
func (s *Server) protect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if s.token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != s.token {
				writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid bearer token")
				return
			}
		}
		next(w, r)
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] response encode failed: %v", err)
	}
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]apiError{"error": {Code: code, Message: msg}})
}

// pathSymbol validates the {symbol} path segment. Unknown symbols are 404:
// the universe is fixed, so an unknown name is a missing resource, not a
// malformed request.
func pathSymbol(w http.ResponseWriter, r *http.Request) (model.Symbol, bool) {
	sym, ok := model.ParseSymbol(r.PathValue("symbol"))
	if !ok {
		writeErr(w, http.StatusNotFound, "SYMBOL_UNKNOWN", "unknown symbol "+r.PathValue("symbol"))
		return "", false
	}
	return sym, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"session":    s.session(),
		"uptime_sec": int(time.Since(s.started).Seconds()),
	})
}

// analyzeResponse is the full per-symbol view: price, indicator battery,
// signal outlook, trading decision, and market context in one payload.
type analyzeResponse struct {
	Symbol     model.Symbol        `json:"symbol"`
	Snapshot   model.Snapshot      `json:"snapshot"`
	Indicators model.Indicators    `json:"indicators"`
	Outlook    model.Outlook       `json:"outlook"`
	Decision   model.Decision      `json:"decision"`
	Market     model.MarketIndices `json:"market_indices"`
	TS         time.Time           `json:"ts"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	sym, ok := pathSymbol(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	snap, err := s.svc.SnapshotFor(ctx, sym)
	if err != nil {
		writeErr(w, http.StatusServiceUnavailable, "NO_DATA", err.Error())
		return
	}
	ind, err := s.svc.IndicatorsFor(ctx, sym)
	if err != nil {
		writeErr(w, http.StatusServiceUnavailable, "NO_DATA", err.Error())
		return
	}
	outlook, err := s.svc.OutlookFor(ctx, sym)
	if err != nil {
		writeErr(w, http.StatusServiceUnavailable, "NO_DATA", err.Error())
		return
	}
	dec, err := s.svc.DecisionFor(ctx, sym)
	if err != nil {
		writeErr(w, http.StatusServiceUnavailable, "NO_DATA", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		Symbol:     sym,
		Snapshot:   snap,
		Indicators: ind,
		Outlook:    outlook,
		Decision:   dec,
		Market:     s.svc.MarketIndices(),
		TS:         time.Now(),
	})
}

func (s *Server) handleOutlook(w http.ResponseWriter, r *http.Request) {
	sym, ok := pathSymbol(w, r)
	if !ok {
		return
	}
	o, err := s.svc.OutlookFor(r.Context(), sym)
	if err != nil {
		writeErr(w, http.StatusServiceUnavailable, "NO_DATA", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleOutlookAll(w http.ResponseWriter, r *http.Request) {
	out := make(map[model.Symbol]model.Outlook, len(model.AllSymbols()))
	for _, sym := range model.AllSymbols() {
		o, err := s.svc.OutlookFor(r.Context(), sym)
		if err != nil {
			continue // symbols without data are omitted, not errors
		}
		out[sym] = o
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	sym, ok := pathSymbol(w, r)
	if !ok {
		return
	}
	d, err := s.svc.DecisionFor(r.Context(), sym)
	if err != nil {
		writeErr(w, http.StatusServiceUnavailable, "NO_DATA", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDecisionAll(w http.ResponseWriter, r *http.Request) {
	out := make(map[model.Symbol]model.Decision, len(model.AllSymbols()))
	for _, sym := range model.AllSymbols() {
		d, err := s.svc.DecisionFor(r.Context(), sym)
		if err != nil {
			continue
		}
		out[sym] = d
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIndices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.MarketIndices())
}

func (s *Server) handleConnectionHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ConnectionHealth())
}

func (s *Server) handleForceReconnect(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), forceReconnectTimeout)
	defer cancel()
	if err := s.svc.ForceReconnect(ctx); err != nil {
		writeErr(w, http.StatusServiceUnavailable, "RECONNECT_FAILED", err.Error())
		return
	}
	log.Printf("[api] force-reconnect completed")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reconnected"})
}

func (s *Server) handleLoginURL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"login_url": s.auth.LoginURL()})
}

func (s *Server) handleSetToken(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("request_token")
	if token == "" {
		writeErr(w, http.StatusBadRequest, "MISSING_TOKEN", "request_token query parameter is required")
		return
	}
	if err := s.auth.SetToken(r.Context(), token); err != nil {
		var authErr *broker.AuthError
		if errors.As(err, &authErr) {
			writeErr(w, http.StatusUnauthorized, "TOKEN_REJECTED", authErr.Error())
			return
		}
		writeErr(w, http.StatusBadGateway, "BROKER_ERROR", err.Error())
		return
	}
	log.Printf("[api] broker token refreshed")
	if s.OnTokenSet != nil {
		s.OnTokenSet()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
