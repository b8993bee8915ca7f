// Package gateway exposes the HTTP and WebSocket surface: historical
// klines and indicators, the simulated position ledger, and a live bar
// stream fed by the market data reconciler.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tradelab/internal/ledger"
	"tradelab/internal/metrics"
	"tradelab/internal/model"
)

// BarFetcher is the slice of the reconciler the gateway depends on.
type BarFetcher interface {
	FetchBars(ctx context.Context, symbol string, iv model.Interval, startMs, endMs int64) ([]model.Bar, error)
}

// Config assembles the gateway dependencies.
type Config struct {
	Fetcher BarFetcher
	Ledger  *ledger.Ledger

	// Journal is optional; when set, closed trades are persisted as the
	// ledger produces them.
	Journal model.TradeJournal

	// Auth is optional; nil leaves all endpoints open.
	Auth *Authenticator

	// Metrics is optional.
	Metrics *metrics.Metrics

	CORSOrigin string
	Logger     *slog.Logger
}

// Gateway wires HTTP handlers, the ledger and the WS hub together.
// The ledger itself is single-threaded; the gateway owns the mutex that
// serializes access to it.
type Gateway struct {
	fetcher BarFetcher
	journal model.TradeJournal
	auth    *Authenticator
	metrics *metrics.Metrics
	hub     *Hub
	log     *slog.Logger
	cors    string
	start   time.Time

	ledgerMu  sync.Mutex
	ledger    *ledger.Ledger
	journaled int // count of closed trades already persisted
}

// New creates a Gateway. The caller is expected to pass the hub's
// Publish method as the reconciler's OnBars callback and to run
// gw.Hub().Run in the background.
func New(cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Ledger == nil {
		cfg.Ledger = ledger.New()
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	return &Gateway{
		fetcher: cfg.Fetcher,
		ledger:  cfg.Ledger,
		journal: cfg.Journal,
		auth:    cfg.Auth,
		metrics: cfg.Metrics,
		hub:     NewHub(cfg.Metrics, cfg.Logger),
		log:     cfg.Logger,
		cors:    cfg.CORSOrigin,
		start:   time.Now(),
	}
}

// Hub returns the websocket hub, for wiring OnBars and Run.
func (g *Gateway) Hub() *Hub { return g.hub }

// SetFetcher installs the bar fetcher. The reconciler's OnBars callback
// points at the hub, and the hub lives inside the gateway, so the two are
// constructed in sequence and tied together here.
func (g *Gateway) SetFetcher(f BarFetcher) { g.fetcher = f }

// RegisterRoutes registers all HTTP routes on the provided mux.
func (g *Gateway) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", g.handleWS)

	mux.HandleFunc("/api/klines", g.instrument("klines", g.handleKlines))
	mux.HandleFunc("/api/indicators", g.instrument("indicators", g.handleIndicators))

	mux.HandleFunc("/api/auth", g.instrument("auth", g.handleAuth))

	mux.HandleFunc("/api/position", g.instrument("position", g.handlePosition))
	mux.HandleFunc("/api/position/open", g.protected("position_open", g.handleOpen))
	mux.HandleFunc("/api/position/add", g.protected("position_add", g.handleAdd))
	mux.HandleFunc("/api/position/reduce", g.protected("position_reduce", g.handleReduce))
	mux.HandleFunc("/api/position/close", g.protected("position_close", g.handleClose))
	mux.HandleFunc("/api/position/stoploss", g.protected("position_stoploss", g.handleStopLoss))
	mux.HandleFunc("/api/position/takeprofit", g.protected("position_takeprofit", g.handleTakeProfit))
	mux.HandleFunc("/api/position/leverage", g.protected("position_leverage", g.handleLeverage))
	mux.HandleFunc("/api/reset", g.protected("reset", g.handleReset))

	mux.HandleFunc("/api/stats", g.instrument("stats", g.handleStats))
	mux.HandleFunc("/api/trades", g.instrument("trades", g.handleTrades))
	mux.HandleFunc("/api/trades/export", g.instrument("trades_export", g.handleTradesExport))

	mux.HandleFunc("/health", g.handleHealth)
}

// setCORS sets CORS headers for REST endpoints.
func (g *Gateway) setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", g.cors)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

// instrument wraps a handler with CORS, OPTIONS preflight and a request
// counter.
func (g *Gateway) instrument(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.setCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if g.metrics != nil {
			g.metrics.HTTPRequests.WithLabelValues(name).Inc()
		}
		h(w, r)
	}
}

// protected is instrument plus bearer-token authentication.
func (g *Gateway) protected(name string, h http.HandlerFunc) http.HandlerFunc {
	return g.instrument(name, func(w http.ResponseWriter, r *http.Request) {
		if g.auth != nil && !g.auth.Authorized(r) {
			if g.metrics != nil {
				g.metrics.AuthFailures.Inc()
			}
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		h(w, r)
	})
}
