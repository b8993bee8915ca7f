package indicator

import "tradelab/internal/model"

// EMA computes the exponential moving average of closes. The seed value is
// the simple average of the first period closes, emitted at index period-1;
// subsequent values use ema = close*k + prev*(1-k) with k = 2/(period+1).
// Fewer than period bars produce no points.
func EMA(bars []model.Bar, period int) []model.Point {
	if period <= 0 || len(bars) < period {
		return nil
	}

	k := 2.0 / float64(period+1)
	var seed float64
	for _, b := range bars[:period] {
		seed += b.Close
	}
	ema := seed / float64(period)

	out := make([]model.Point, 0, len(bars)-period+1)
	out = append(out, model.Point{Time: bars[period-1].Time, Value: ema})
	for _, b := range bars[period:] {
		ema = b.Close*k + ema*(1-k)
		out = append(out, model.Point{Time: b.Time, Value: ema})
	}
	return out
}

// emaOfPoints applies the same seed-then-smooth recurrence to an already
// computed line. Used for the MACD signal line.
func emaOfPoints(points []model.Point, period int) []model.Point {
	if period <= 0 || len(points) < period {
		return nil
	}

	k := 2.0 / float64(period+1)
	var seed float64
	for _, p := range points[:period] {
		seed += p.Value
	}
	ema := seed / float64(period)

	out := make([]model.Point, 0, len(points)-period+1)
	out = append(out, model.Point{Time: points[period-1].Time, Value: ema})
	for _, p := range points[period:] {
		ema = p.Value*k + ema*(1-k)
		out = append(out, model.Point{Time: p.Time, Value: ema})
	}
	return out
}
