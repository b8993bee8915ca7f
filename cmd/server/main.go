package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tradelab/config"
	"tradelab/internal/gateway"
	"tradelab/internal/ledger"
	"tradelab/internal/logger"
	"tradelab/internal/marketdata"
	"tradelab/internal/metrics"
	"tradelab/internal/model"
	redisstore "tradelab/internal/store/redis"
	sqlitestore "tradelab/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[server] starting...")

	cfg := config.Load()
	slogger := logger.Init("tradelab", logger.ParseLevel(cfg.LogLevel))

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite: durable bars + trade journal ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[server] sqlite init failed: %v", err)
	}
	defer store.Close()
	health.SetSQLiteOK(true)

	// ---- Redis bar cache (optional, preferred over SQLite when up) ----
	var barCache model.BarCache = store
	var redisCache *redisstore.Cache
	if cfg.RedisAddr != "" {
		redisCache, err = redisstore.NewCache(redisstore.CacheConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, prom)
		if err != nil {
			log.Printf("[server] WARNING: redis init failed: %v (continuing on sqlite)", err)
			health.SetRedisConnected(false)
		} else {
			defer redisCache.Close()
			barCache = redisCache
			health.SetRedisConnected(true)
		}
	}

	// ---- Liveness checks ----
	if redisCache != nil {
		health.StartLivenessChecker(ctx, redisCache.Client(), store.DB(), 15*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, store.DB(), 15*time.Second)
	}

	// ---- Providers: Binance primary, OKX fallback ----
	providers := []marketdata.Provider{
		marketdata.NewBinanceProvider(cfg.BinanceBaseURL, cfg.ProviderTimeout),
		marketdata.NewOKXProvider(cfg.OKXBaseURL, cfg.ProviderTimeout),
	}

	// ---- Gateway (ledger + HTTP + WS hub) ----
	var auth *gateway.Authenticator
	if cfg.TOTPSecret != "" {
		auth = gateway.NewAuthenticator(cfg.TOTPSecret)
		log.Println("[server] TOTP authentication enabled")
	} else {
		log.Println("[server] WARNING: TOTP_SECRET not set, ledger endpoints are open")
	}

	gw := gateway.New(gateway.Config{
		Ledger:     ledger.New(),
		Journal:    store,
		Auth:       auth,
		Metrics:    prom,
		CORSOrigin: cfg.CORSOrigin,
		Logger:     slogger,
	})

	// ---- Reconciler: cache-first fetch with provider fallback ----
	recon, err := marketdata.New(marketdata.Config{
		Cache:            barCache,
		Providers:        providers,
		CacheSufficiency: cfg.CacheSufficiency,
		Metrics:          prom,
		OnBars:           gw.Hub().Publish,
		Logger:           slogger,
	})
	if err != nil {
		log.Fatalf("[server] reconciler init failed: %v", err)
	}
	gw.SetFetcher(recon)

	go gw.Hub().Run(ctx)

	mux := http.NewServeMux()
	gw.RegisterRoutes(mux)
	srv := &http.Server{Addr: cfg.GatewayAddr, Handler: mux}

	go func() {
		log.Printf("[server] serving at http://localhost%s", cfg.GatewayAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[server] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[server] shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
}
