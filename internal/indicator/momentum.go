package indicator

import (
	"math"

	"signalbot/internal/model"
)

// rsi computes the Wilder-smoothed Relative Strength Index.
func rsi(closes []float64, period int) model.ScalarValue {
	if len(closes) < period+1 {
		return absent()
	}
	gains := make([]float64, 0, len(closes)-1)
	losses := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains = append(gains, d)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -d)
		}
	}

	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return model.Present(50)
		}
		return model.Present(100)
	}
	rs := avgGain / avgLoss
	return model.Present(100 - (100 / (1 + rs)))
}

// stochastic returns %K smoothed into %D over the given periods.
func stochastic(highs, lows, closes []float64, kPeriod, dPeriod int) (k, d model.ScalarValue) {
	n := len(closes)
	if n < kPeriod+dPeriod-1 {
		return absent(), absent()
	}

	kValues := make([]float64, 0, dPeriod)
	for offset := dPeriod - 1; offset >= 0; offset-- {
		end := n - offset
		start := end - kPeriod
		if start < 0 {
			return absent(), absent()
		}
		hh := maxOf(highs[start:end])
		ll := minOf(lows[start:end])
		denom := hh - ll
		var kv float64
		if isFiniteNonZeroDenom(denom) {
			kv = 100 * (closes[end-1] - ll) / denom
		} else {
			kv = 50
		}
		kValues = append(kValues, kv)
	}

	var sum float64
	for _, v := range kValues {
		sum += v
	}
	return model.Present(kValues[len(kValues)-1]), model.Present(sum / float64(len(kValues)))
}

// roc is the rate-of-change over `period` bars, in percent.
func roc(closes []float64, period int) model.ScalarValue {
	if len(closes) <= period {
		return absent()
	}
	prev := closes[len(closes)-1-period]
	if !isFiniteNonZeroDenom(prev) {
		return absent()
	}
	return model.Present((closes[len(closes)-1] - prev) / prev * 100)
}

// momentum is the raw price difference over `period` bars.
func momentum(closes []float64, period int) model.ScalarValue {
	if len(closes) <= period {
		return absent()
	}
	return model.Present(closes[len(closes)-1] - closes[len(closes)-1-period])
}

// williamsR is the Williams %R oscillator over `period` bars.
func williamsR(highs, lows, closes []float64, period int) model.ScalarValue {
	n := len(closes)
	if n < period {
		return absent()
	}
	hh := maxOf(highs[n-period:])
	ll := minOf(lows[n-period:])
	denom := hh - ll
	if !isFiniteNonZeroDenom(denom) {
		return absent()
	}
	return model.Present(-100 * (hh - closes[n-1]) / denom)
}

// cci is the Commodity Channel Index over `period` bars.
func cci(highs, lows, closes []float64, period int) model.ScalarValue {
	n := len(closes)
	if n < period {
		return absent()
	}
	typical := make([]float64, period)
	for i := 0; i < period; i++ {
		idx := n - period + i
		typical[i] = (highs[idx] + lows[idx] + closes[idx]) / 3
	}
	var sum float64
	for _, v := range typical {
		sum += v
	}
	mean := sum / float64(period)

	var meanDev float64
	for _, v := range typical {
		meanDev += math.Abs(v - mean)
	}
	meanDev /= float64(period)

	denom := 0.015 * meanDev
	if !isFiniteNonZeroDenom(denom) {
		return absent()
	}
	return model.Present((typical[period-1] - mean) / denom)
}

// ultimateOscillator blends three buying-pressure averages over short,
// medium, and long periods (Williams' weighting 4:2:1).
func ultimateOscillator(highs, lows, closes []float64, p1, p2, p3 int) model.ScalarValue {
	n := len(closes)
	longest := p3
	if n < longest+1 {
		return absent()
	}

	bp := make([]float64, n)
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		minLow := math.Min(lows[i], closes[i-1])
		maxHigh := math.Max(highs[i], closes[i-1])
		bp[i] = closes[i] - minLow
		tr[i] = maxHigh - minLow
	}

	avg := func(period int) float64 {
		var bpSum, trSum float64
		for i := n - period; i < n; i++ {
			bpSum += bp[i]
			trSum += tr[i]
		}
		if !isFiniteNonZeroDenom(trSum) {
			return 0
		}
		return bpSum / trSum
	}

	avg1 := avg(p1)
	avg2 := avg(p2)
	avg3 := avg(p3)
	return model.Present(100 * (4*avg1 + 2*avg2 + avg3) / 7)
}

// fisherTransform maps normalized price into a Gaussian-ish oscillator
// over a 10-bar lookback, the conventional Fisher Transform period.
func fisherTransform(mids []float64) model.ScalarValue {
	const period = 10
	n := len(mids)
	if n < period {
		return absent()
	}
	window := mids[n-period:]
	hh := maxOf(window)
	ll := minOf(window)
	denom := hh - ll
	if !isFiniteNonZeroDenom(denom) {
		return absent()
	}
	raw := 2*((mids[n-1]-ll)/denom) - 1
	raw = math.Max(-0.999, math.Min(0.999, raw))
	return model.Present(0.5 * math.Log((1+raw)/(1-raw)))
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, v := range xs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, v := range xs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
