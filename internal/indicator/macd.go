package indicator

import "tradelab/internal/model"

// MACD computes the Moving Average Convergence Divergence lines:
// macd = EMA(fast) - EMA(slow), aligned by time (only times present in both
// EMAs produce a point); signal = EMA of the macd line over signalPeriod;
// histogram = macd - signal at each time the signal is defined.
func MACD(bars []model.Bar, fastPeriod, slowPeriod, signalPeriod int) model.MACDSeries {
	fast := EMA(bars, fastPeriod)
	slow := EMA(bars, slowPeriod)
	if len(fast) == 0 || len(slow) == 0 {
		return model.MACDSeries{}
	}

	// Align by time. EMAs over the same bars share a tail, so index the
	// fast line once instead of scanning per point.
	fastAt := make(map[int64]float64, len(fast))
	for _, p := range fast {
		fastAt[p.Time] = p.Value
	}

	macd := make([]model.Point, 0, len(slow))
	for _, s := range slow {
		if f, ok := fastAt[s.Time]; ok {
			macd = append(macd, model.Point{Time: s.Time, Value: f - s.Value})
		}
	}

	signal := emaOfPoints(macd, signalPeriod)
	hist := make([]model.Point, 0, len(signal))
	if len(signal) > 0 {
		// The signal line is a suffix of the macd line's time axis.
		offset := len(macd) - len(signal)
		for i, s := range signal {
			hist = append(hist, model.Point{Time: s.Time, Value: macd[offset+i].Value - s.Value})
		}
	}

	return model.MACDSeries{MACD: macd, Signal: signal, Histogram: hist}
}
