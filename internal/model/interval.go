package model

import "fmt"

// Interval is a canonical bar granularity token ("1m", "1h", "1d", ...).
// The token set and casing follow the Binance convention; providers with a
// different vocabulary translate through explicit mapping tables.
type Interval string

// Canonical intervals supported by the engine.
const (
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
)

var intervalMs = map[Interval]int64{
	Interval1m:  60_000,
	Interval3m:  180_000,
	Interval5m:  300_000,
	Interval15m: 900_000,
	Interval30m: 1_800_000,
	Interval1h:  3_600_000,
	Interval2h:  7_200_000,
	Interval4h:  14_400_000,
	Interval6h:  21_600_000,
	Interval12h: 43_200_000,
	Interval1d:  86_400_000,
	Interval1w:  604_800_000,
}

// Ms returns the nominal bar duration in milliseconds, or 0 for an
// unknown interval.
func (iv Interval) Ms() int64 {
	return intervalMs[iv]
}

// Valid reports whether iv is a canonical interval token.
func (iv Interval) Valid() bool {
	_, ok := intervalMs[iv]
	return ok
}

// ParseInterval validates a raw interval token.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if !iv.Valid() {
		return "", fmt.Errorf("unknown interval %q", s)
	}
	return iv, nil
}

// ExpectedBarCount returns ceil((endMs-startMs)/interval) — the number of
// bars a gap-free series would contain for the half-open range.
func ExpectedBarCount(iv Interval, startMs, endMs int64) int {
	ms := iv.Ms()
	if ms <= 0 || endMs <= startMs {
		return 0
	}
	return int((endMs - startMs + ms - 1) / ms)
}
