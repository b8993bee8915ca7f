package model

import (
	"encoding/json"
	"sort"
)

// Bar represents one OHLCV sample for a (symbol, interval) series.
// Time is the bucket open time in epoch milliseconds. Bars within one series
// are unique by Time and ordered ascending; gaps are legitimate (exchange
// downtime) and are never filled with fabricated bars.
type Bar struct {
	Time   int64   `json:"time"` // epoch ms
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}

// SortBarsAscending sorts bars in place by open time, ascending.
// Providers may return descending order; callers normalize before merging.
func SortBarsAscending(bars []Bar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time < bars[j].Time })
}

// DedupBarsByTime removes duplicate bar times from an ascending-sorted slice,
// keeping the last occurrence (bar data for a fixed key is immutable once
// closed, so last-write-wins is safe). Returns the compacted slice.
func DedupBarsByTime(bars []Bar) []Bar {
	if len(bars) < 2 {
		return bars
	}
	out := bars[:1]
	for _, b := range bars[1:] {
		if b.Time == out[len(out)-1].Time {
			out[len(out)-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}
