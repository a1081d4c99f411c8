package pattern

import (
	"math"

	"signalbot/internal/model"
)

// DetectChart scans a sliding window of the last 20-50 candles for
// double top/bottom, head & shoulders, triangles, flags, and wedges.
func DetectChart(candles []model.Candle) []model.DetectedPattern {
	n := len(candles)
	if n < 20 {
		return nil
	}
	window := candles
	if n > 50 {
		window = candles[n-50:]
	}
	idx := len(candles) - 1

	var out []model.DetectedPattern
	if p, ok := detectDoubleTopBottom(window, idx); ok {
		out = append(out, p)
	}
	if p, ok := detectHeadAndShoulders(window, idx); ok {
		out = append(out, p)
	}
	if p, ok := detectTriangle(window, idx); ok {
		out = append(out, p)
	}
	if p, ok := detectFlag(window, idx); ok {
		out = append(out, p)
	}
	if p, ok := detectWedge(window, idx); ok {
		out = append(out, p)
	}
	return out
}

// swingHighs/swingLows return the indices of local extremes (3-bar
// pivot) within the window.
func swingHighs(window []model.Candle) []int {
	var out []int
	for i := 1; i < len(window)-1; i++ {
		if window[i].High > window[i-1].High && window[i].High > window[i+1].High {
			out = append(out, i)
		}
	}
	return out
}

func swingLows(window []model.Candle) []int {
	var out []int
	for i := 1; i < len(window)-1; i++ {
		if window[i].Low < window[i-1].Low && window[i].Low < window[i+1].Low {
			out = append(out, i)
		}
	}
	return out
}

func withinPct(a, b, pct float64) bool {
	if a == 0 {
		return b == 0
	}
	return math.Abs(a-b)/math.Abs(a) <= pct
}

func detectDoubleTopBottom(window []model.Candle, idx int) (model.DetectedPattern, bool) {
	highs := swingHighs(window)
	if len(highs) >= 2 {
		i, j := highs[len(highs)-2], highs[len(highs)-1]
		if withinPct(window[i].High, window[j].High, 0.01) {
			return model.DetectedPattern{
				Kind: model.PatternChart, Name: "double_top", Direction: model.DirDown,
				Strength: clampStrength(1.5), Reason: "two matched swing highs within 1%", AtIndex: idx,
			}, true
		}
	}
	lows := swingLows(window)
	if len(lows) >= 2 {
		i, j := lows[len(lows)-2], lows[len(lows)-1]
		if withinPct(window[i].Low, window[j].Low, 0.01) {
			return model.DetectedPattern{
				Kind: model.PatternChart, Name: "double_bottom", Direction: model.DirUp,
				Strength: clampStrength(1.5), Reason: "two matched swing lows within 1%", AtIndex: idx,
			}, true
		}
	}
	return model.DetectedPattern{}, false
}

func detectHeadAndShoulders(window []model.Candle, idx int) (model.DetectedPattern, bool) {
	highs := swingHighs(window)
	if len(highs) >= 3 {
		l, h, r := highs[len(highs)-3], highs[len(highs)-2], highs[len(highs)-1]
		leftH, headH, rightH := window[l].High, window[h].High, window[r].High
		if headH > leftH && headH > rightH && withinPct(leftH, rightH, 0.05) {
			return model.DetectedPattern{
				Kind: model.PatternChart, Name: "head_and_shoulders", Direction: model.DirDown,
				Strength: clampStrength(2.0), Reason: "symmetric shoulders around a higher head", AtIndex: idx,
			}, true
		}
	}
	lows := swingLows(window)
	if len(lows) >= 3 {
		l, h, r := lows[len(lows)-3], lows[len(lows)-2], lows[len(lows)-1]
		leftL, headL, rightL := window[l].Low, window[h].Low, window[r].Low
		if headL < leftL && headL < rightL && withinPct(leftL, rightL, 0.05) {
			return model.DetectedPattern{
				Kind: model.PatternChart, Name: "inverse_head_and_shoulders", Direction: model.DirUp,
				Strength: clampStrength(2.0), Reason: "symmetric shoulders around a lower head", AtIndex: idx,
			}, true
		}
	}
	return model.DetectedPattern{}, false
}

// detectTriangle fits a simple slope sign to recent swing highs and
// lows: flat/falling highs + rising lows is a triangle compressing the
// range, direction set by which side is constant.
func detectTriangle(window []model.Candle, idx int) (model.DetectedPattern, bool) {
	highs := swingHighs(window)
	lows := swingLows(window)
	if len(highs) < 2 || len(lows) < 2 {
		return model.DetectedPattern{}, false
	}
	highSlope := slopeOf(window, highs, func(c model.Candle) float64 { return c.High })
	lowSlope := slopeOf(window, lows, func(c model.Candle) float64 { return c.Low })

	const flat = 1e-6
	switch {
	case math.Abs(highSlope) < flat && lowSlope > flat:
		return model.DetectedPattern{
			Kind: model.PatternChart, Name: "ascending_triangle", Direction: model.DirUp,
			Strength: clampStrength(1.3), Reason: "flat highs, rising lows", AtIndex: idx,
		}, true
	case highSlope < -flat && math.Abs(lowSlope) < flat:
		return model.DetectedPattern{
			Kind: model.PatternChart, Name: "descending_triangle", Direction: model.DirDown,
			Strength: clampStrength(1.3), Reason: "falling highs, flat lows", AtIndex: idx,
		}, true
	case highSlope < -flat && lowSlope > flat:
		return model.DetectedPattern{
			Kind: model.PatternChart, Name: "symmetrical_triangle", Direction: model.DirNeutral,
			Strength: clampStrength(1.0), Reason: "converging highs and lows", AtIndex: idx,
		}, true
	}
	return model.DetectedPattern{}, false
}

func slopeOf(window []model.Candle, pivots []int, pick func(model.Candle) float64) float64 {
	n := float64(len(pivots))
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range pivots {
		x := float64(i)
		y := pick(window[p])
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if !isFiniteNonZeroDenom(denom) {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// detectFlag looks for a strong directional "pole" move followed by a
// tight consolidation whose range is less than half the pole's range.
func detectFlag(window []model.Candle, idx int) (model.DetectedPattern, bool) {
	n := len(window)
	if n < 15 {
		return model.DetectedPattern{}, false
	}
	poleLen := 10
	flagLen := n - poleLen
	if flagLen < 5 {
		flagLen = 5
		poleLen = n - flagLen
	}
	pole := window[:poleLen]
	flag := window[poleLen:]

	poleMove := pole[len(pole)-1].Close - pole[0].Open
	if math.Abs(poleMove)/math.Max(pole[0].Open, 1e-9) < 0.02 {
		return model.DetectedPattern{}, false
	}

	flagHigh, flagLow := flag[0].High, flag[0].Low
	for _, c := range flag {
		if c.High > flagHigh {
			flagHigh = c.High
		}
		if c.Low < flagLow {
			flagLow = c.Low
		}
	}
	poleHigh, poleLow := pole[0].High, pole[0].Low
	for _, c := range pole {
		if c.High > poleHigh {
			poleHigh = c.High
		}
		if c.Low < poleLow {
			poleLow = c.Low
		}
	}
	if (flagHigh - flagLow) >= 0.5*(poleHigh-poleLow) {
		return model.DetectedPattern{}, false
	}

	if poleMove > 0 {
		return model.DetectedPattern{
			Kind: model.PatternChart, Name: "bullish_flag", Direction: model.DirUp,
			Strength: clampStrength(1.4), Reason: "tight consolidation after a strong upward pole", AtIndex: idx,
		}, true
	}
	return model.DetectedPattern{
		Kind: model.PatternChart, Name: "bearish_flag", Direction: model.DirDown,
		Strength: clampStrength(1.4), Reason: "tight consolidation after a strong downward pole", AtIndex: idx,
	}, true
}

// detectWedge looks for both swing highs and swing lows sloping the
// same direction (rising wedge: both rising but highs converging down
// toward lows; falling wedge: both falling, lows converging up).
func detectWedge(window []model.Candle, idx int) (model.DetectedPattern, bool) {
	highs := swingHighs(window)
	lows := swingLows(window)
	if len(highs) < 2 || len(lows) < 2 {
		return model.DetectedPattern{}, false
	}
	highSlope := slopeOf(window, highs, func(c model.Candle) float64 { return c.High })
	lowSlope := slopeOf(window, lows, func(c model.Candle) float64 { return c.Low })

	const flat = 1e-6
	if highSlope > flat && lowSlope > flat && lowSlope > highSlope {
		return model.DetectedPattern{
			Kind: model.PatternChart, Name: "rising_wedge", Direction: model.DirDown,
			Strength: clampStrength(1.3), Reason: "both highs and lows rising, range narrowing", AtIndex: idx,
		}, true
	}
	if highSlope < -flat && lowSlope < -flat && lowSlope > highSlope {
		return model.DetectedPattern{
			Kind: model.PatternChart, Name: "falling_wedge", Direction: model.DirUp,
			Strength: clampStrength(1.3), Reason: "both highs and lows falling, range narrowing", AtIndex: idx,
		}, true
	}
	return model.DetectedPattern{}, false
}
