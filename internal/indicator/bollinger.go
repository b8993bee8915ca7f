package indicator

import (
	"math"

	"tradelab/internal/model"
)

// Bollinger computes Bollinger Bands: middle is the SMA of closes, upper and
// lower are middle ± mult times the population standard deviation of the
// same trailing window. All three lines share the SMA's time alignment.
func Bollinger(bars []model.Bar, period int, mult float64) model.Bands {
	if period <= 0 || len(bars) < period {
		return model.Bands{}
	}

	n := len(bars) - period + 1
	bands := model.Bands{
		Upper:  make([]model.Point, 0, n),
		Middle: make([]model.Point, 0, n),
		Lower:  make([]model.Point, 0, n),
	}

	// Running sums of x and x² give mean and population variance per window
	// without re-summing.
	var sum, sumSq float64
	for i, b := range bars {
		sum += b.Close
		sumSq += b.Close * b.Close
		if i >= period {
			old := bars[i-period].Close
			sum -= old
			sumSq -= old * old
		}
		if i < period-1 {
			continue
		}

		mean := sum / float64(period)
		variance := sumSq/float64(period) - mean*mean
		if variance < 0 {
			variance = 0 // float cancellation on near-constant windows
		}
		std := math.Sqrt(variance)

		bands.Middle = append(bands.Middle, model.Point{Time: b.Time, Value: mean})
		bands.Upper = append(bands.Upper, model.Point{Time: b.Time, Value: mean + mult*std})
		bands.Lower = append(bands.Lower, model.Point{Time: b.Time, Value: mean - mult*std})
	}
	return bands
}
