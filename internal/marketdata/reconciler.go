package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradelab/internal/metrics"
	"tradelab/internal/model"
)

// defaultCacheSufficiency is the fraction of the expected bar count the
// cache must cover to be accepted without a remote fetch. Deliberately a
// tolerance, not exactness: boundary bars and minor provider gaps are
// expected, and re-fetching for a handful of missing bars is wasteful.
const defaultCacheSufficiency = 0.9

// Config configures a Reconciler.
type Config struct {
	// Cache is the local bar store. Optional: nil (or an unreachable cache)
	// behaves as permanently empty.
	Cache model.BarCache

	// Providers is the ordered fallback list; the first entry is primary.
	Providers []Provider

	// CacheSufficiency overrides the accepted cache-coverage fraction.
	// Zero means the 0.9 default.
	CacheSufficiency float64

	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.Metrics

	// OnBars, when set, is invoked with every freshly fetched (not cached)
	// ascending bar batch after a successful reconcile. Used by the gateway
	// to feed live subscribers.
	OnBars func(symbol string, iv model.Interval, bars []model.Bar)

	Logger *slog.Logger
}

// Reconciler produces complete, time-ascending bar sequences for a
// (symbol, interval, range), preferring the local cache and falling back
// across providers with format reconciliation.
type Reconciler struct {
	cache       model.BarCache
	providers   []Provider
	sufficiency float64
	metrics     *metrics.Metrics
	onBars      func(string, model.Interval, []model.Bar)
	log         *slog.Logger
}

// New creates a Reconciler from cfg.
func New(cfg Config) (*Reconciler, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("reconciler: at least one provider required")
	}
	if cfg.CacheSufficiency == 0 {
		cfg.CacheSufficiency = defaultCacheSufficiency
	}
	if cfg.CacheSufficiency < 0 || cfg.CacheSufficiency > 1 {
		return nil, fmt.Errorf("reconciler: cache sufficiency %v out of [0,1]", cfg.CacheSufficiency)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Reconciler{
		cache:       cfg.Cache,
		providers:   cfg.Providers,
		sufficiency: cfg.CacheSufficiency,
		metrics:     cfg.Metrics,
		onBars:      cfg.OnBars,
		log:         cfg.Logger,
	}, nil
}

// FetchBars returns an ordered, de-duplicated bar sequence covering
// [startMs, endMs). The cache is consulted first and accepted when it covers
// at least the sufficiency fraction of the expected count; otherwise the
// range is fetched in concurrent provider-limited batches, falling back
// sequentially across providers. When every provider fails the call fails
// with ErrNoDataAvailable and nothing is cached.
func (r *Reconciler) FetchBars(ctx context.Context, symbol string, iv model.Interval, startMs, endMs int64) ([]model.Bar, error) {
	if !iv.Valid() || endMs <= startMs {
		return nil, ErrInvalidRange
	}

	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.FetchDur.Observe(time.Since(start).Seconds())
		}
	}()

	expected := model.ExpectedBarCount(iv, startMs, endMs)

	cached := r.readCache(ctx, symbol, iv, startMs, endMs)
	if float64(len(cached)) >= r.sufficiency*float64(expected) {
		if r.metrics != nil {
			r.metrics.CacheHits.Inc()
		}
		r.log.Debug("cache sufficient", "symbol", symbol, "interval", iv,
			"cached", len(cached), "expected", expected)
		return cached, nil
	}
	if r.metrics != nil {
		r.metrics.CacheMisses.Inc()
	}

	// Fallback is sequential, not concurrent: one provider at a time keeps
	// cache writes single-writer and avoids doubly-billing rate limits.
	var lastErr error
	for _, p := range r.providers {
		bars, err := r.fetchFromProvider(ctx, p, symbol, iv, startMs, endMs)
		if err != nil {
			lastErr = err
			if r.metrics != nil {
				r.metrics.ProviderFailures.WithLabelValues(p.Name()).Inc()
			}
			r.log.Warn("provider fetch failed, falling back",
				"provider", p.Name(), "symbol", symbol, "err", err)
			continue
		}

		r.writeCache(ctx, symbol, iv, bars)
		if r.onBars != nil && len(bars) > 0 {
			r.onBars(symbol, iv, bars)
		}
		return bars, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrNoDataAvailable, lastErr)
}

// fetchFromProvider splits the range into provider-limited batches, issues
// them concurrently (fire all, await all) and merges the results. Any batch
// failure fails the whole provider fetch: callers must never receive a
// sequence with undisclosed gaps misattributed to a cache hit.
func (r *Reconciler) fetchFromProvider(ctx context.Context, p Provider, symbol string, iv model.Interval, startMs, endMs int64) ([]model.Bar, error) {
	if r.metrics != nil {
		r.metrics.ProviderRequests.WithLabelValues(p.Name()).Inc()
	}

	batchSpan := int64(p.BarCap()) * iv.Ms()
	type result struct {
		bars []model.Bar
		err  error
	}

	var spans [][2]int64
	for cur := startMs; cur < endMs; cur += batchSpan {
		hi := cur + batchSpan
		if hi > endMs {
			hi = endMs
		}
		spans = append(spans, [2]int64{cur, hi})
	}

	// Buffer one slot per batch so abandoned goroutines can always send
	// and exit; nothing retains them if the caller walks away.
	results := make(chan result, len(spans))
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, span := range spans {
		go func(lo, hi int64) {
			bars, err := p.Fetch(batchCtx, symbol, iv, lo, hi, p.BarCap())
			results <- result{bars: bars, err: err}
		}(span[0], span[1])
	}

	merged := make([]model.Bar, 0, model.ExpectedBarCount(iv, startMs, endMs))
	for range spans {
		select {
		case res := <-results:
			if res.err != nil {
				cancel() // stop remaining batches; partial data is useless
				return nil, fmt.Errorf("%s batch: %w", p.Name(), res.err)
			}
			merged = append(merged, res.bars...)
		case <-ctx.Done():
			return nil, fmt.Errorf("%s fetch: %w", p.Name(), classifyErr(ctx.Err()))
		}
	}

	model.SortBarsAscending(merged)
	merged = model.DedupBarsByTime(merged)
	merged = trimToRange(merged, startMs, endMs)
	return merged, nil
}

func (r *Reconciler) readCache(ctx context.Context, symbol string, iv model.Interval, startMs, endMs int64) []model.Bar {
	if r.cache == nil {
		return nil
	}
	bars, err := r.cache.GetBars(ctx, symbol, iv, startMs, endMs)
	if err != nil {
		// The cache is not a hard dependency: unreachable means empty.
		r.log.Warn("cache read failed, treating as empty", "symbol", symbol, "err", err)
		return nil
	}
	return bars
}

func (r *Reconciler) writeCache(ctx context.Context, symbol string, iv model.Interval, bars []model.Bar) {
	if r.cache == nil || len(bars) == 0 {
		return
	}
	if err := r.cache.PutBars(ctx, symbol, iv, bars); err != nil {
		r.log.Warn("cache write failed", "symbol", symbol, "count", len(bars), "err", err)
		return
	}
	if r.metrics != nil {
		r.metrics.BarsCached.Add(float64(len(bars)))
	}
}

// trimToRange drops bars outside [startMs, endMs) from an ascending slice.
// Providers may return boundary bars just outside the requested span.
func trimToRange(bars []model.Bar, startMs, endMs int64) []model.Bar {
	lo := 0
	for lo < len(bars) && bars[lo].Time < startMs {
		lo++
	}
	hi := len(bars)
	for hi > lo && bars[hi-1].Time >= endMs {
		hi--
	}
	return bars[lo:hi]
}
