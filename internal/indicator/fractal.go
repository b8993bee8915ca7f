package indicator

import "tradelab/internal/model"

// Fractals detects 5-bar Bill Williams swing markers. A bar is an up fractal
// (local high, resistance) when its high exceeds the highs of the two bars
// before and the two bars after it; a down fractal (local low, support) by
// the symmetric condition on lows. The first and last two bars of the series
// can never qualify.
func Fractals(bars []model.Bar) model.FractalSet {
	var set model.FractalSet
	for i := 2; i < len(bars)-2; i++ {
		b := bars[i]
		if b.High > bars[i-2].High && b.High > bars[i-1].High &&
			b.High > bars[i+1].High && b.High > bars[i+2].High {
			set.Up = append(set.Up, model.Point{Time: b.Time, Value: b.High})
		}
		if b.Low < bars[i-2].Low && b.Low < bars[i-1].Low &&
			b.Low < bars[i+1].Low && b.Low < bars[i+2].Low {
			set.Down = append(set.Down, model.Point{Time: b.Time, Value: b.Low})
		}
	}
	return set
}
