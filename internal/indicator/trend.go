package indicator

import (
	"math"

	"signalbot/internal/model"
)

// sma computes the simple moving average over the last `period` closes.
func sma(closes []float64, period int) model.ScalarValue {
	if len(closes) < period || period <= 0 {
		return absent()
	}
	window := closes[len(closes)-period:]
	var sum float64
	for _, v := range window {
		sum += v
	}
	return model.Present(sum / float64(period))
}

// emaSeries returns the full EMA series (same length as closes), or nil
// if there isn't enough history (period points) to seed it.
func emaSeries(closes []float64, period int) []float64 {
	if len(closes) < period || period <= 0 {
		return nil
	}
	out := make([]float64, len(closes))
	k := 2.0 / (float64(period) + 1.0)

	var seed float64
	for i := 0; i < period; i++ {
		seed += closes[i]
	}
	seed /= float64(period)
	out[period-1] = seed
	for i := period; i < len(closes); i++ {
		out[i] = closes[i]*k + out[i-1]*(1-k)
	}
	return out
}

func ema(closes []float64, period int) model.ScalarValue {
	series := emaSeries(closes, period)
	if series == nil {
		return absent()
	}
	return model.Present(series[len(series)-1])
}

// hullMA computes the Hull Moving Average: WMA(2*WMA(n/2) - WMA(n), sqrt(n)).
func hullMA(closes []float64, period int) model.ScalarValue {
	if period <= 0 || len(closes) < period {
		return absent()
	}
	half := period / 2
	if half < 1 {
		half = 1
	}
	sqrtN := int(math.Sqrt(float64(period)))
	if sqrtN < 1 {
		sqrtN = 1
	}

	wmaHalf := wmaSeries(closes, half)
	wmaFull := wmaSeries(closes, period)
	if wmaHalf == nil || wmaFull == nil {
		return absent()
	}

	raw := make([]float64, len(closes))
	for i := range closes {
		raw[i] = 2*wmaHalf[i] - wmaFull[i]
	}
	// Trim leading zeros before period-1 (unseeded).
	start := period - 1
	if start >= len(raw) {
		return absent()
	}
	hull := wmaSeries(raw[start:], sqrtN)
	if hull == nil {
		return absent()
	}
	return model.Present(hull[len(hull)-1])
}

// wmaSeries returns a linearly-weighted moving average series, with
// zeros where there isn't yet `period` points of history.
func wmaSeries(xs []float64, period int) []float64 {
	if period <= 0 || len(xs) < period {
		return nil
	}
	out := make([]float64, len(xs))
	denom := float64(period*(period+1)) / 2
	for i := period - 1; i < len(xs); i++ {
		var sum float64
		for j := 0; j < period; j++ {
			weight := float64(j + 1)
			sum += xs[i-period+1+j] * weight
		}
		out[i] = sum / denom
	}
	return out
}

// macd requires at least slow+signal closes (spec §4.2).
func macd(closes []float64, fast, slow, signal int) model.MACDValue {
	if len(closes) < slow+signal {
		return model.MACDValue{}
	}
	fastSeries := emaSeries(closes, fast)
	slowSeries := emaSeries(closes, slow)
	if fastSeries == nil || slowSeries == nil {
		return model.MACDValue{}
	}

	start := slow - 1
	macdLine := make([]float64, 0, len(closes)-start)
	for i := start; i < len(closes); i++ {
		macdLine = append(macdLine, fastSeries[i]-slowSeries[i])
	}
	if len(macdLine) < signal {
		return model.MACDValue{}
	}
	signalSeries := emaSeries(macdLine, signal)
	if signalSeries == nil {
		return model.MACDValue{}
	}

	m := macdLine[len(macdLine)-1]
	s := signalSeries[len(signalSeries)-1]
	return model.MACDValue{MACD: m, Signal: s, Histogram: m - s, Present: true}
}

// superTrend derives value and direction from price vs (H+L)/2 +/- m*ATR.
func superTrend(highs, lows, closes []float64, period int, mult float64) model.SuperTrendValue {
	if len(closes) < period+1 {
		return model.SuperTrendValue{}
	}
	a := atr(highs, lows, closes, period)
	if !a.Present {
		return model.SuperTrendValue{}
	}
	n := len(closes)
	mid := (highs[n-1] + lows[n-1]) / 2
	upperBand := mid + mult*a.Value
	lowerBand := mid - mult*a.Value

	direction := "up"
	value := lowerBand
	if closes[n-1] < lowerBand {
		direction = "down"
		value = upperBand
	} else if closes[n-1] > upperBand {
		direction = "up"
		value = lowerBand
	} else {
		// Inside the band: continue previous-bar bias using a second
		// look-back point so single-point noise doesn't flip direction.
		prevMid := (highs[n-2] + lows[n-2]) / 2
		if closes[n-1] >= prevMid {
			direction = "up"
			value = lowerBand
		} else {
			direction = "down"
			value = upperBand
		}
	}
	return model.SuperTrendValue{Value: value, Direction: direction, Present: true}
}

// parabolicSAR is a simplified incremental PSAR computed once over the
// full series (step 0.02, max 0.2 per spec §4.2).
func parabolicSAR(highs, lows []float64, step, maxStep float64) model.ScalarValue {
	n := len(highs)
	if n < 3 {
		return absent()
	}
	// Seed direction from first two bars.
	long := highs[1] >= highs[0]
	sar := lows[0]
	ep := highs[0]
	if !long {
		sar = highs[0]
		ep = lows[0]
	}
	af := step

	for i := 1; i < n; i++ {
		prevSAR := sar
		sar = prevSAR + af*(ep-prevSAR)

		if long {
			if lows[i] < sar {
				long = false
				sar = ep
				ep = lows[i]
				af = step
			} else {
				if highs[i] > ep {
					ep = highs[i]
					af = math.Min(af+step, maxStep)
				}
			}
		} else {
			if highs[i] > sar {
				long = true
				sar = ep
				ep = highs[i]
				af = step
			} else {
				if lows[i] < ep {
					ep = lows[i]
					af = math.Min(af+step, maxStep)
				}
			}
		}
	}
	return model.Present(sar)
}

// emaRibbon is the mean of the given EMA periods' current values.
func emaRibbon(emas map[int]model.ScalarValue, periods []int) model.ScalarValue {
	var sum float64
	var count int
	for _, p := range periods {
		v, ok := emas[p]
		if !ok || !v.Present {
			return absent()
		}
		sum += v.Value
		count++
	}
	if count == 0 {
		return absent()
	}
	return model.Present(sum / float64(count))
}

// linRegSlope fits y=close[i] against x=i by least squares over the
// last `period` points and returns the slope.
func linRegSlope(closes []float64, period int) model.ScalarValue {
	if len(closes) < period {
		return absent()
	}
	window := closes[len(closes)-period:]
	n := float64(period)
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range window {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if !isFiniteNonZeroDenom(denom) {
		return absent()
	}
	slope := (n*sumXY - sumX*sumY) / denom
	return model.Present(slope)
}

// adx computes the 14-period Average Directional Index from +DI/-DI.
func adx(highs, lows, closes []float64, period int) model.ScalarValue {
	n := len(closes)
	if n < period*2+1 {
		return absent()
	}

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
		tr[i] = trueRange(highs[i], lows[i], closes[i-1])
	}

	smoothTR := wilderSmooth(tr[1:], period)
	smoothPlus := wilderSmooth(plusDM[1:], period)
	smoothMinus := wilderSmooth(minusDM[1:], period)
	if smoothTR == nil || smoothPlus == nil || smoothMinus == nil {
		return absent()
	}

	dx := make([]float64, 0, len(smoothTR))
	for i := range smoothTR {
		if !isFiniteNonZeroDenom(smoothTR[i]) {
			dx = append(dx, 0)
			continue
		}
		plusDI := 100 * smoothPlus[i] / smoothTR[i]
		minusDI := 100 * smoothMinus[i] / smoothTR[i]
		sum := plusDI + minusDI
		if !isFiniteNonZeroDenom(sum) {
			dx = append(dx, 0)
			continue
		}
		dx = append(dx, 100*math.Abs(plusDI-minusDI)/sum)
	}
	if len(dx) < period {
		return absent()
	}
	adxSeries := wilderSmooth(dx, period)
	if adxSeries == nil {
		return absent()
	}
	return model.Present(adxSeries[len(adxSeries)-1] / float64(period))
}

// wilderSmooth applies Wilder's smoothing in its running-sum form (seed
// is the sum of the first `period` inputs, then prev - prev/period + x)
// and returns the smoothed series starting once `period` inputs have
// accumulated. Divide by period to get the running average.
func wilderSmooth(xs []float64, period int) []float64 {
	if len(xs) < period {
		return nil
	}
	var seed float64
	for i := 0; i < period; i++ {
		seed += xs[i]
	}
	out := []float64{seed}
	for i := period; i < len(xs); i++ {
		prev := out[len(out)-1]
		out = append(out, prev-prev/float64(period)+xs[i])
	}
	return out
}

func trueRange(high, low, prevClose float64) float64 {
	tr := high - low
	if v := math.Abs(high - prevClose); v > tr {
		tr = v
	}
	if v := math.Abs(low - prevClose); v > tr {
		tr = v
	}
	return tr
}
