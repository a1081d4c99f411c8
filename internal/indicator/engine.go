// Package indicator computes technical indicators over a candle series.
// It implements IndicatorEngine (spec §4.2, component C3): a pure
// function from an ordered candle slice to model.IndicatorValues, with
// every entry absent when its minimum-history requirement is unmet.
//
// Grounded on the teacher's internal/indicator package (the Indicator
// interface and per-(tf,token) Engine instance map), generalized here
// into a single stateless Compute pass over a slice rather than
// incrementally-updated stateful instances — the base spec calls
// IndicatorEngine a "pure function: candles -> indicator values", so
// statefulness is pushed down into small per-call helper loops instead
// of long-lived Indicator objects.
package indicator

import (
	"math"

	"signalbot/internal/model"
)

// Compute derives the full indicator set from an ordered candle slice
// (oldest first). The caller may include a trailing forming candle; all
// indicators treat the slice uniformly as "closes so far".
func Compute(candles []model.Candle) model.IndicatorValues {
	iv := model.NewIndicatorValues()
	n := len(candles)
	if n == 0 {
		return iv
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	for _, p := range []int{5, 9, 12, 21, 50} {
		iv.EMA[p] = ema(closes, p)
	}
	for _, p := range []int{20, 50, 200} {
		iv.SMA[p] = sma(closes, p)
	}
	iv.HullMA9 = hullMA(closes, 9)

	iv.MACD = macd(closes, 12, 26, 9)
	iv.RSI14 = rsi(closes, 14)

	k, d := stochastic(highs, lows, closes, 14, 3)
	iv.StochK, iv.StochD = k, d

	atr14 := atr(highs, lows, closes, 14)
	iv.ATR14 = atr14
	iv.ADX14 = adx(highs, lows, closes, 14)
	iv.CCI20 = cci(highs, lows, closes, 20)
	iv.WilliamsR14 = williamsR(highs, lows, closes, 14)

	iv.Bollinger = bollinger(closes, 20, 2)
	iv.Keltner = keltner(closes, highs, lows, 20, 2)

	iv.SuperTrend = superTrend(highs, lows, closes, 10, 3)

	iv.ROC12 = roc(closes, 12)
	iv.Momentum10 = momentum(closes, 10)

	dh, dl := donchian(highs, lows, 20)
	iv.DonchianHigh20, iv.DonchianLow20 = dh, dl

	iv.PSAR = parabolicSAR(highs, lows, 0.02, 0.2)

	ticks := make([]float64, n)
	for i, c := range candles {
		ticks[i] = float64(c.TickCount)
	}
	iv.OBV = obv(closes, ticks)

	iv.UltimateOsc = ultimateOscillator(highs, lows, closes, 7, 14, 28)

	iv.ZScore20 = zscore(closes, 20)
	iv.LinRegSlope14 = linRegSlope(closes, 14)

	mids := make([]float64, n)
	for i := range candles {
		mids[i] = (highs[i] + lows[i]) / 2
	}
	iv.Fisher = fisherTransform(mids)

	iv.ATRBands = atrBands(closes, atr14, 20)
	iv.RangePercentile20 = rangePercentile(highs, lows, 20)
	iv.EMARibbon = emaRibbon(iv.EMA, []int{5, 9, 12, 21, 50})

	return iv
}

// --- shared numeric helpers ---

func absent() model.ScalarValue { return model.ScalarValue{} }

func isFiniteNonZeroDenom(d float64) bool {
	return d != 0 && !math.IsNaN(d) && !math.IsInf(d, 0)
}

func meanStdDev(xs []float64) (mean, stddev float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / n
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	stddev = math.Sqrt(sq / n)
	return
}
