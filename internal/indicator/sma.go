package indicator

import "tradelab/internal/model"

// SMA computes the simple moving average of closes over a sliding window.
// Emits no point for the first period-1 bars. Uses a running sum (subtract
// the bar leaving the window, add the bar entering) so the pass is linear
// in input size.
func SMA(bars []model.Bar, period int) []model.Point {
	if period <= 0 || len(bars) < period {
		return nil
	}

	out := make([]model.Point, 0, len(bars)-period+1)
	var sum float64
	for i, b := range bars {
		sum += b.Close
		if i >= period {
			sum -= bars[i-period].Close
		}
		if i >= period-1 {
			out = append(out, model.Point{Time: b.Time, Value: sum / float64(period)})
		}
	}
	return out
}
