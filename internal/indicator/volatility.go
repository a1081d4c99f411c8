package indicator

import "signalbot/internal/model"

// atr is the Wilder-smoothed Average True Range over `period` bars.
func atr(highs, lows, closes []float64, period int) model.ScalarValue {
	n := len(closes)
	if n < period+1 {
		return absent()
	}
	tr := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		tr = append(tr, trueRange(highs[i], lows[i], closes[i-1]))
	}
	smoothed := wilderSmooth(tr, period)
	if smoothed == nil {
		return absent()
	}
	return model.Present(smoothed[len(smoothed)-1] / float64(period))
}

// bollinger is SMA(period) +/- mult*stddev(period).
func bollinger(closes []float64, period int, mult float64) model.BandValue {
	if len(closes) < period {
		return model.BandValue{}
	}
	window := closes[len(closes)-period:]
	mean, stddev := meanStdDev(window)
	return model.BandValue{
		Upper:   mean + mult*stddev,
		Middle:  mean,
		Lower:   mean - mult*stddev,
		Present: true,
	}
}

// keltner is EMA(period) +/- mult*ATR(period).
func keltner(closes, highs, lows []float64, period int, mult float64) model.BandValue {
	if len(closes) < period {
		return model.BandValue{}
	}
	mid := ema(closes, period)
	a := atr(highs, lows, closes, period)
	if !mid.Present || !a.Present {
		return model.BandValue{}
	}
	return model.BandValue{
		Upper:   mid.Value + mult*a.Value,
		Middle:  mid.Value,
		Lower:   mid.Value - mult*a.Value,
		Present: true,
	}
}

// atrBands is SMA(period) +/- 2*atr14, a wider volatility-adjusted band
// distinct from the Keltner EMA-centered band.
func atrBands(closes []float64, atr14 model.ScalarValue, period int) model.BandValue {
	if len(closes) < period || !atr14.Present {
		return model.BandValue{}
	}
	mid := sma(closes, period)
	if !mid.Present {
		return model.BandValue{}
	}
	return model.BandValue{
		Upper:   mid.Value + 2*atr14.Value,
		Middle:  mid.Value,
		Lower:   mid.Value - 2*atr14.Value,
		Present: true,
	}
}

// rangePercentile places the current bar's range within the distribution
// of the last `period` bars' ranges, as a 0-100 percentile rank.
func rangePercentile(highs, lows []float64, period int) model.ScalarValue {
	n := len(highs)
	if n < period {
		return absent()
	}
	ranges := make([]float64, period)
	for i := 0; i < period; i++ {
		idx := n - period + i
		ranges[i] = highs[idx] - lows[idx]
	}
	current := ranges[period-1]

	var below int
	for _, r := range ranges {
		if r <= current {
			below++
		}
	}
	return model.Present(float64(below) / float64(period) * 100)
}

// zscore is (close - mean)/stddev over `period` bars.
func zscore(closes []float64, period int) model.ScalarValue {
	if len(closes) < period {
		return absent()
	}
	window := closes[len(closes)-period:]
	mean, stddev := meanStdDev(window)
	if !isFiniteNonZeroDenom(stddev) {
		return absent()
	}
	return model.Present((closes[len(closes)-1] - mean) / stddev)
}

// donchian returns the highest high and lowest low over `period` bars.
func donchian(highs, lows []float64, period int) (high, low model.ScalarValue) {
	n := len(highs)
	if n < period {
		return absent(), absent()
	}
	return model.Present(maxOf(highs[n-period:])), model.Present(minOf(lows[n-period:]))
}

// obv is an On-Balance-Volume proxy: cumulative tick count signed by
// close-to-close direction (spec §4.2 "OBV over tickCount as volume
// proxy", since tick-level trade volume isn't available upstream).
func obv(closes, ticks []float64) model.ScalarValue {
	n := len(closes)
	if n < 2 {
		return absent()
	}
	var cum float64
	for i := 1; i < n; i++ {
		switch {
		case closes[i] > closes[i-1]:
			cum += ticks[i]
		case closes[i] < closes[i-1]:
			cum -= ticks[i]
		}
	}
	return model.Present(cum)
}
