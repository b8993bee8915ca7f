package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the simulation engine.
type Metrics struct {
	// Reconciler
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	ProviderRequests *prometheus.CounterVec // labels: provider
	ProviderFailures *prometheus.CounterVec // labels: provider
	FetchDur         prometheus.Histogram
	BarsCached       prometheus.Counter

	// Ledger
	LedgerOps    *prometheus.CounterVec // labels: op
	LedgerErrors *prometheus.CounterVec // labels: op

	// Gateway
	WSClients     prometheus.Gauge
	HTTPRequests  *prometheus.CounterVec // labels: endpoint
	AuthFailures  prometheus.Counter
	CacheCBState  prometheus.Gauge // 0=closed, 1=open, 2=half-open
	CacheCBTrips  prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradelab_cache_hits_total",
			Help: "Bar fetches served from the local cache",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradelab_cache_misses_total",
			Help: "Bar fetches that required a remote provider",
		}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradelab_provider_requests_total",
			Help: "Remote fetch attempts (by provider)",
		}, []string{"provider"}),
		ProviderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradelab_provider_failures_total",
			Help: "Failed provider fetches triggering fallback (by provider)",
		}, []string{"provider"}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradelab_fetch_duration_seconds",
			Help:    "End-to-end bar reconcile latency (cache or remote)",
			Buckets: prometheus.DefBuckets,
		}),
		BarsCached: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradelab_bars_cached_total",
			Help: "Bars written into the local cache",
		}),

		LedgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradelab_ledger_ops_total",
			Help: "Ledger operations (by op)",
		}, []string{"op"}),
		LedgerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradelab_ledger_errors_total",
			Help: "Rejected ledger operations (by op)",
		}, []string{"op"}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradelab_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradelab_http_requests_total",
			Help: "Gateway HTTP requests (by endpoint)",
		}, []string{"endpoint"}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradelab_auth_failures_total",
			Help: "Rejected auth attempts on the gateway",
		}),
		CacheCBState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradelab_cache_circuit_breaker_state",
			Help: "Cache circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		CacheCBTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradelab_cache_circuit_breaker_trips_total",
			Help: "Cache circuit breaker open transitions",
		}),
	}

	prometheus.MustRegister(
		m.CacheHits, m.CacheMisses, m.ProviderRequests, m.ProviderFailures,
		m.FetchDur, m.BarsCached,
		m.LedgerOps, m.LedgerErrors,
		m.WSClients, m.HTTPRequests, m.AuthFailures,
		m.CacheCBState, m.CacheCBTrips,
	)
	return m
}

// HealthStatus tracks dependency health for the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	StartedAt       time.Time
	RedisConnected  bool
	RedisLatencyMs  float64
	SQLiteOK        bool
	SQLiteLatencyMs float64
	LastFetchTime   time.Time
	LastCheckAt     time.Time
}

// NewHealthStatus creates a health tracker.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

// SetRedisConnected records Redis connectivity at startup.
func (h *HealthStatus) SetRedisConnected(ok bool) {
	h.mu.Lock()
	h.RedisConnected = ok
	h.mu.Unlock()
}

// SetSQLiteOK records SQLite health at startup.
func (h *HealthStatus) SetSQLiteOK(ok bool) {
	h.mu.Lock()
	h.SQLiteOK = ok
	h.mu.Unlock()
}

// RecordFetch notes a successful bar reconcile.
func (h *HealthStatus) RecordFetch() {
	h.mu.Lock()
	h.LastFetchTime = time.Now()
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. The Redis cache is optional, so
// only SQLite drives the overall status; Redis state is reported as-is.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	lastFetch := ""
	if !h.LastFetchTime.IsZero() {
		lastFetch = h.LastFetchTime.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastFetchAt     string  `json:"last_fetch_at"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastFetchAt:     lastFetch,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
