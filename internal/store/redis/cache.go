// Package redis implements a bar cache on top of Redis hashes.
//
// Each symbol/interval series lives in one hash keyed
// "bars:{symbol}:{interval}" with the bar open time (epoch ms, decimal
// string) as field and the JSON-encoded bar as value. Writes are
// idempotent upserts, so re-fetching an overlapping range never
// duplicates bars. All operations are guarded by a circuit breaker so a
// down Redis degrades to cache misses instead of per-request timeouts.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"tradelab/internal/metrics"
	"tradelab/internal/model"
)

const pipelineBatchSize = 500

// CacheConfig configures the Redis bar cache.
type CacheConfig struct {
	Addr     string
	Password string
	DB       int

	// Circuit breaker tuning. Zero values take the defaults
	// (5 failures, 30s reset).
	BreakerMaxFailures int
	BreakerReset       time.Duration
}

// Cache implements model.BarCache over Redis.
type Cache struct {
	rdb     *redis.Client
	breaker *breaker
	metrics *metrics.Metrics
}

// NewCache connects to Redis and verifies the connection with a ping.
// The metrics registry is optional.
func NewCache(cfg CacheConfig, m *metrics.Metrics) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	maxFailures := cfg.BreakerMaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	reset := cfg.BreakerReset
	if reset <= 0 {
		reset = 30 * time.Second
	}

	c := &Cache{
		rdb:     rdb,
		breaker: newBreaker(maxFailures, reset),
		metrics: m,
	}
	c.breaker.onStateChange = func(from, to State) {
		log.Printf("[redis-cache] circuit breaker %s -> %s", from, to)
		if m != nil {
			m.CacheCBState.Set(float64(to))
			if to == StateOpen {
				m.CacheCBTrips.Inc()
			}
		}
	}
	log.Printf("[redis-cache] connected to %s (db %d)", cfg.Addr, cfg.DB)
	return c, nil
}

func seriesKey(symbol string, iv model.Interval) string {
	return "bars:" + symbol + ":" + string(iv)
}

// GetBars returns the cached bars whose open time falls in
// [startMs, endMs), sorted ascending. A missing series returns an empty
// slice, not an error.
func (c *Cache) GetBars(ctx context.Context, symbol string, iv model.Interval, startMs, endMs int64) ([]model.Bar, error) {
	var fields map[string]string
	err := c.breaker.do(func() error {
		var err error
		fields, err = c.rdb.HGetAll(ctx, seriesKey(symbol, iv)).Result()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redis get bars %s %s: %w", symbol, iv, err)
	}

	bars := make([]model.Bar, 0, len(fields))
	for field, raw := range fields {
		t, err := strconv.ParseInt(field, 10, 64)
		if err != nil || t < startMs || t >= endMs {
			continue
		}
		var b model.Bar
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			log.Printf("[redis-cache] skipping corrupt bar %s %s @%s: %v", symbol, iv, field, err)
			continue
		}
		bars = append(bars, b)
	}
	model.SortBarsAscending(bars)
	return bars, nil
}

// PutBars upserts bars into the series hash using pipelined HSET.
func (c *Cache) PutBars(ctx context.Context, symbol string, iv model.Interval, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	key := seriesKey(symbol, iv)
	err := c.breaker.do(func() error {
		for start := 0; start < len(bars); start += pipelineBatchSize {
			end := start + pipelineBatchSize
			if end > len(bars) {
				end = len(bars)
			}
			pipe := c.rdb.Pipeline()
			for _, b := range bars[start:end] {
				raw, err := json.Marshal(b)
				if err != nil {
					return fmt.Errorf("marshal bar @%d: %w", b.Time, err)
				}
				pipe.HSet(ctx, key, strconv.FormatInt(b.Time, 10), raw)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put bars %s %s: %w", symbol, iv, err)
	}
	return nil
}

// Ping reports cache reachability, used by the health checker.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Client exposes the underlying client for the liveness checker.
func (c *Cache) Client() *redis.Client { return c.rdb }

// BreakerState exposes the breaker state for health reporting.
func (c *Cache) BreakerState() State {
	return c.breaker.currentState()
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.rdb.Close()
}
