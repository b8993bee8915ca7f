package model

// Point is a single indicator value anchored to a bar open time.
// An indicator can only emit points for times present in its input bars.
type Point struct {
	Time  int64   `json:"time"` // epoch ms, always one of the input bars' times
	Value float64 `json:"value"`
}

// Bands holds the three Bollinger Band lines. All lines share the same
// time axis.
type Bands struct {
	Upper  []Point `json:"upper"`
	Middle []Point `json:"middle"`
	Lower  []Point `json:"lower"`
}

// MACDSeries holds the MACD line, its signal EMA and the histogram.
// Signal and Histogram share a time axis; MACD starts earlier.
type MACDSeries struct {
	MACD      []Point `json:"macd"`
	Signal    []Point `json:"signal"`
	Histogram []Point `json:"histogram"`
}

// FractalSet holds 5-bar swing markers. Up fractals are local highs
// (resistance), down fractals local lows (support).
type FractalSet struct {
	Up   []Point `json:"up"`
	Down []Point `json:"down"`
}
