package model

// MACDValue is the three-part MACD output.
type MACDValue struct {
	MACD      float64
	Signal    float64
	Histogram float64
	Present   bool
}

// BandValue is a generic three-band envelope (Bollinger, Keltner, ATR bands).
type BandValue struct {
	Upper   float64
	Middle  float64
	Lower   float64
	Present bool
}

// ScalarValue wraps a single float that may be absent for lack of history.
type ScalarValue struct {
	Value   float64
	Present bool
}

// Present constructs a present ScalarValue.
func Present(v float64) ScalarValue { return ScalarValue{Value: v, Present: true} }

// SuperTrendValue carries both the band value and its direction.
type SuperTrendValue struct {
	Value     float64
	Direction string // "up" or "down"
	Present   bool
}

// IndicatorValues is the full set of named indicator outputs computed by
// IndicatorEngine for one candle series snapshot. Every field may be
// "absent" (Present=false) when its minimum-history requirement is unmet.
type IndicatorValues struct {
	EMA map[int]ScalarValue // periods {5,9,12,21,50}
	SMA map[int]ScalarValue // periods {20,50,200}
	HullMA9 ScalarValue

	MACD MACDValue

	RSI14 ScalarValue

	StochK ScalarValue
	StochD ScalarValue

	ATR14 ScalarValue
	ADX14 ScalarValue
	CCI20 ScalarValue
	WilliamsR14 ScalarValue

	Bollinger BandValue
	Keltner   BandValue

	SuperTrend SuperTrendValue

	ROC12      ScalarValue
	Momentum10 ScalarValue

	DonchianHigh20 ScalarValue
	DonchianLow20  ScalarValue

	PSAR ScalarValue

	OBV ScalarValue

	UltimateOsc ScalarValue

	ZScore20 ScalarValue

	LinRegSlope14 ScalarValue

	Fisher ScalarValue

	ATRBands BandValue

	RangePercentile20 ScalarValue

	EMARibbon ScalarValue
}

// NewIndicatorValues returns a zero-value IndicatorValues with its maps
// initialized, so callers can assign into EMA/SMA without nil-checking.
func NewIndicatorValues() IndicatorValues {
	return IndicatorValues{
		EMA: make(map[int]ScalarValue),
		SMA: make(map[int]ScalarValue),
	}
}
