package gateway

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradelab/internal/indicator"
	"tradelab/internal/ledger"
	"tradelab/internal/marketdata"
	"tradelab/internal/model"
)

const (
	defaultKlineLimit = 500
	maxKlineLimit     = 1500
)

// parseBarRange resolves symbol, interval and the [start, end] window from
// query parameters. When start/end are absent the window is the last
// `limit` bars ending now.
func parseBarRange(r *http.Request) (symbol string, iv model.Interval, startMs, endMs int64, err error) {
	q := r.URL.Query()
	symbol = strings.ToUpper(strings.TrimSpace(q.Get("symbol")))
	if symbol == "" {
		return "", "", 0, 0, fmt.Errorf("symbol is required")
	}
	iv, err = model.ParseInterval(q.Get("interval"))
	if err != nil {
		return "", "", 0, 0, err
	}

	if s := q.Get("start"); s != "" {
		startMs, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return "", "", 0, 0, fmt.Errorf("invalid start: %q", s)
		}
	}
	if s := q.Get("end"); s != "" {
		endMs, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return "", "", 0, 0, fmt.Errorf("invalid end: %q", s)
		}
	}

	if startMs == 0 || endMs == 0 {
		limit := defaultKlineLimit
		if s := q.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > maxKlineLimit {
				return "", "", 0, 0, fmt.Errorf("invalid limit: %q", s)
			}
			limit = n
		}
		if endMs == 0 {
			endMs = time.Now().UnixMilli()
		}
		if startMs == 0 {
			startMs = endMs - int64(limit)*iv.Ms()
		}
	}
	if endMs <= startMs {
		return "", "", 0, 0, fmt.Errorf("end must be after start")
	}
	return symbol, iv, startMs, endMs, nil
}

// handleKlines serves GET /api/klines?symbol=&interval=&start=&end=|limit=.
func (g *Gateway) handleKlines(w http.ResponseWriter, r *http.Request) {
	symbol, iv, startMs, endMs, err := parseBarRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bars, err := g.fetcher.FetchBars(r.Context(), symbol, iv, startMs, endMs)
	if err != nil {
		writeError(w, fetchStatus(err), err.Error())
		return
	}
	if bars == nil {
		bars = []model.Bar{}
	}
	writeJSON(w, http.StatusOK, bars)
}

// handleIndicators serves GET /api/indicators?name=&symbol=&interval=...
// over the same window parameters as /api/klines. Periods come from
// query parameters with the conventional defaults.
func (g *Gateway) handleIndicators(w http.ResponseWriter, r *http.Request) {
	symbol, iv, startMs, endMs, err := parseBarRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	name := strings.ToLower(q.Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	bars, err := g.fetcher.FetchBars(r.Context(), symbol, iv, startMs, endMs)
	if err != nil {
		writeError(w, fetchStatus(err), err.Error())
		return
	}

	period := queryInt(q.Get("period"), 20)
	var out any
	switch name {
	case "sma":
		out = indicator.SMA(bars, period)
	case "ema":
		out = indicator.EMA(bars, period)
	case "bollinger":
		mult := queryFloat(q.Get("mult"), 2)
		out = indicator.Bollinger(bars, period, mult)
	case "macd":
		fast := queryInt(q.Get("fast"), 12)
		slow := queryInt(q.Get("slow"), 26)
		signal := queryInt(q.Get("signal"), 9)
		out = indicator.MACD(bars, fast, slow, signal)
	case "fractals":
		out = indicator.Fractals(bars)
	default:
		writeError(w, http.StatusBadRequest, "unknown indicator: "+name)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func queryInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func queryFloat(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}

// fetchStatus maps reconciler errors to HTTP status codes.
func fetchStatus(err error) int {
	switch {
	case errors.Is(err, marketdata.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, marketdata.ErrUnknownSymbol):
		return http.StatusNotFound
	case errors.Is(err, marketdata.ErrProviderTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// handleAuth serves POST /api/auth with a TOTP code.
func (g *Gateway) handleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if g.auth == nil {
		writeError(w, http.StatusNotImplemented, "authentication is not configured")
		return
	}
	var req authRequest
	if !decodeBody(w, r, &req) {
		return
	}
	token, ok := g.auth.Login(req.Code)
	if !ok {
		if g.metrics != nil {
			g.metrics.AuthFailures.Inc()
		}
		writeError(w, http.StatusUnauthorized, "invalid code")
		return
	}
	log.Printf("[gateway] auth token issued")
	writeJSON(w, http.StatusOK, authResponse{
		Token:     token,
		ExpiresIn: int64(sessionTTL.Seconds()),
	})
}

// ledgerOp runs fn under the ledger mutex, persists any newly closed
// trades, records metrics, and writes the standard position response.
func (g *Gateway) ledgerOp(w http.ResponseWriter, r *http.Request, op string, fn func(l *ledger.Ledger) error) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	g.ledgerMu.Lock()
	defer g.ledgerMu.Unlock()

	if err := fn(g.ledger); err != nil {
		if g.metrics != nil {
			g.metrics.LedgerErrors.WithLabelValues(op).Inc()
		}
		writeError(w, ledgerStatus(err), err.Error())
		return
	}
	if g.metrics != nil {
		g.metrics.LedgerOps.WithLabelValues(op).Inc()
	}
	g.persistNewTradesLocked(r.Context())
	writeJSON(w, http.StatusOK, g.positionSnapshotLocked(nil))
}

// persistNewTradesLocked journals closed trades the ledger produced since
// the last call. A failed append stops the pass with the cursor unmoved, so
// the remaining trades are retried on the next call; failures are logged,
// not surfaced, and the in-memory ledger stays the source of truth.
func (g *Gateway) persistNewTradesLocked(ctx context.Context) {
	if g.journal == nil {
		return
	}
	closed := g.ledger.ClosedTrades()
	for g.journaled < len(closed) {
		t := closed[g.journaled]
		if err := g.journal.AppendTrade(ctx, t); err != nil {
			g.log.Error("journal append failed", "trade", t.ID, "err", err)
			return
		}
		g.journaled++
	}
}

func (g *Gateway) positionSnapshotLocked(price *float64) positionResponse {
	resp := positionResponse{
		Position:    g.ledger.Position(),
		Leverage:    g.ledger.Leverage(),
		ClosedCount: len(g.ledger.ClosedTrades()),
	}
	if price != nil && resp.Position != nil {
		pnl, pct := g.ledger.UnrealizedPnL(*price)
		resp.UnrealizedPnL = &pnl
		resp.UnrealizedPnLPercent = &pct
	}
	return resp
}

func ledgerStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNoPosition):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrOppositePosition):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (g *Gateway) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !decodeBody(w, r, &req) {
		return
	}
	g.ledgerOp(w, r, "open", func(l *ledger.Ledger) error {
		return l.Open(model.Side(strings.ToLower(req.Side)), req.Price, req.Time, req.Quantity, req.Leverage, req.Symbol)
	})
}

func (g *Gateway) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !decodeBody(w, r, &req) {
		return
	}
	g.ledgerOp(w, r, "add", func(l *ledger.Ledger) error {
		return l.AddByPercent(model.Side(strings.ToLower(req.Side)), req.Price, req.Time, req.Percent, req.Symbol)
	})
}

func (g *Gateway) handleReduce(w http.ResponseWriter, r *http.Request) {
	var req reduceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	g.ledgerOp(w, r, "reduce", func(l *ledger.Ledger) error {
		if req.Percent != 0 {
			return l.ReduceByPercent(req.Price, req.Time, req.Percent)
		}
		return l.Reduce(req.Price, req.Time, req.Quantity)
	})
}

func (g *Gateway) handleClose(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	g.ledgerOp(w, r, "close", func(l *ledger.Ledger) error {
		return l.Close(req.Price, req.Time)
	})
}

func (g *Gateway) handleStopLoss(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	g.ledgerOp(w, r, "stoploss", func(l *ledger.Ledger) error {
		return l.SetStopLoss(req.Price)
	})
}

func (g *Gateway) handleTakeProfit(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	g.ledgerOp(w, r, "takeprofit", func(l *ledger.Ledger) error {
		return l.SetTakeProfit(req.Price)
	})
}

func (g *Gateway) handleLeverage(w http.ResponseWriter, r *http.Request) {
	var req leverageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	g.ledgerOp(w, r, "leverage", func(l *ledger.Ledger) error {
		return l.SetLeverage(req.Leverage)
	})
}

// handleReset wipes the ledger and, when a journal is attached, the
// persisted trade history.
func (g *Gateway) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	g.ledgerMu.Lock()
	defer g.ledgerMu.Unlock()

	g.ledger.Reset()
	g.journaled = 0
	if g.journal != nil {
		if err := g.journal.ClearTrades(r.Context()); err != nil {
			g.log.Error("journal clear failed", "err", err)
		}
	}
	if g.metrics != nil {
		g.metrics.LedgerOps.WithLabelValues("reset").Inc()
	}
	log.Printf("[gateway] ledger reset")
	writeJSON(w, http.StatusOK, g.positionSnapshotLocked(nil))
}

// handlePosition serves GET /api/position[?price=].
func (g *Gateway) handlePosition(w http.ResponseWriter, r *http.Request) {
	var price *float64
	if s := r.URL.Query().Get("price"); s != "" {
		p, err := strconv.ParseFloat(s, 64)
		if err != nil || p <= 0 {
			writeError(w, http.StatusBadRequest, "invalid price: "+s)
			return
		}
		price = &p
	}
	g.ledgerMu.Lock()
	defer g.ledgerMu.Unlock()
	writeJSON(w, http.StatusOK, g.positionSnapshotLocked(price))
}

// handleStats serves GET /api/stats over the session's closed trades.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	g.ledgerMu.Lock()
	stats := ledger.ComputeStats(g.ledger.ClosedTrades())
	g.ledgerMu.Unlock()
	writeJSON(w, http.StatusOK, stats)
}

// handleTrades serves GET /api/trades.
func (g *Gateway) handleTrades(w http.ResponseWriter, r *http.Request) {
	g.ledgerMu.Lock()
	trades := g.ledger.ClosedTrades()
	g.ledgerMu.Unlock()
	writeJSON(w, http.StatusOK, trades)
}

// handleTradesExport serves GET /api/trades/export as CSV.
func (g *Gateway) handleTradesExport(w http.ResponseWriter, r *http.Request) {
	g.ledgerMu.Lock()
	trades := g.ledger.ClosedTrades()
	g.ledgerMu.Unlock()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="trades.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{"id", "symbol", "side", "entry_price", "close_price", "quantity", "leverage", "open_time", "close_time", "partial", "realized_pnl"})
	for _, t := range trades {
		cw.Write([]string{
			t.ID,
			t.Symbol,
			string(t.Side),
			strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(t.ClosePrice, 'f', -1, 64),
			strconv.FormatFloat(t.Quantity, 'f', -1, 64),
			strconv.Itoa(t.Leverage),
			strconv.FormatInt(t.OpenTime, 10),
			strconv.FormatInt(t.CloseTime, 10),
			strconv.FormatBool(t.Partial),
			strconv.FormatFloat(t.RealizedPnL, 'f', -1, 64),
		})
	}
	cw.Flush()
}

// handleHealth serves GET /health.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.setCORS(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"ws_clients": g.hub.ClientCount(),
		"uptime_sec": int64(time.Since(g.start).Seconds()),
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
	})
}
