// Package pattern implements PatternEngine (spec §4.3, component C4): a
// pure, idempotent function from an ordered candle slice to
// candlestick, chart, and harmonic pattern detections plus order-block
// and fair-value-gap signals, each emitted as a model.DetectedPattern
// with a directional vote.
//
// Grounded on other_examples/a5d60518 (koshedutech-binance-trading-app
// internal/patterns detector: engulfing/star/hammer body-ratio and
// wick-ratio thresholds, trend-context confidence scaling) and on the
// teacher's candle helpers in internal/model (Body/UpperWick/LowerWick),
// generalized from that detector's 2-3-candle reversal set to the full
// candlestick/chart/harmonic roster.
package pattern

import (
	"math"

	"signalbot/internal/model"
)

// DetectCandlestick scans the last few candles for single, two-, and
// three-candle formations, each scored as a DetectedPattern with
// Strength in [0.5, 2.5].
func DetectCandlestick(candles []model.Candle) []model.DetectedPattern {
	n := len(candles)
	if n == 0 {
		return nil
	}
	var out []model.DetectedPattern

	last := n - 1
	if p, ok := detectDoji(candles[last], last); ok {
		out = append(out, p)
	}
	if p, ok := detectHammerFamily(candles[last], last); ok {
		out = append(out, p)
	}
	if n >= 2 {
		if p, ok := detectEngulfing(candles[last-1], candles[last], last); ok {
			out = append(out, p)
		}
		if p, ok := detectHarami(candles[last-1], candles[last], last); ok {
			out = append(out, p)
		}
		if p, ok := detectInsideOutside(candles[last-1], candles[last], last); ok {
			out = append(out, p)
		}
		if p, ok := detectTweezer(candles[last-1], candles[last], last); ok {
			out = append(out, p)
		}
		if p, ok := detectPiercingDarkCloud(candles[last-1], candles[last], last); ok {
			out = append(out, p)
		}
		if p, ok := detectWickRejection(candles[last], last); ok {
			out = append(out, p)
		}
	}
	if n >= 3 {
		if p, ok := detectStar(candles[last-2], candles[last-1], candles[last], last); ok {
			out = append(out, p)
		}
		if p, ok := detectThreeSoldiersCrows(candles[last-2], candles[last-1], candles[last], last); ok {
			out = append(out, p)
		}
		if p, ok := detectThreeMethods(candles[last-2], candles[last-1], candles[last], last); ok {
			out = append(out, p)
		}
	}
	return out
}

func body(c model.Candle) float64  { return math.Abs(c.Body()) }
func rng(c model.Candle) float64   { return c.Range() }
func bullish(c model.Candle) bool  { return c.Bullish() }

func clampStrength(v float64) float64 {
	if v < 0.5 {
		return 0.5
	}
	if v > 2.5 {
		return 2.5
	}
	return v
}

func detectDoji(c model.Candle, idx int) (model.DetectedPattern, bool) {
	r := rng(c)
	if r == 0 {
		return model.DetectedPattern{}, false
	}
	if body(c)/r >= 0.1 {
		return model.DetectedPattern{}, false
	}

	upper := c.UpperWick()
	lower := c.LowerWick()
	class := "doji"
	dir := model.DirNeutral
	switch {
	case lower > r*0.6 && upper < r*0.15:
		class = "dragonfly_doji"
		dir = model.DirUp
	case upper > r*0.6 && lower < r*0.15:
		class = "gravestone_doji"
		dir = model.DirDown
	case upper > r*0.3 && lower > r*0.3:
		class = "long_legged_doji"
	}

	return model.DetectedPattern{
		Kind: model.PatternCandlestick, Name: class, Direction: dir,
		Strength: clampStrength(1.0), Reason: "body < 10% of range", AtIndex: idx,
	}, true
}

func detectHammerFamily(c model.Candle, idx int) (model.DetectedPattern, bool) {
	r := rng(c)
	b := body(c)
	if r == 0 || b/r >= 0.4 {
		return model.DetectedPattern{}, false
	}
	upper := c.UpperWick()
	lower := c.LowerWick()

	switch {
	case lower >= r*0.6 && lower >= b*2 && upper < b:
		name := "hammer"
		dir := model.DirUp
		if !bullish(c) {
			name = "hanging_man"
			dir = model.DirDown
		}
		return model.DetectedPattern{
			Kind: model.PatternCandlestick, Name: name, Direction: dir,
			Strength: clampStrength(1.0 + lower/(r+1e-9)), Reason: "long lower wick, small body", AtIndex: idx,
		}, true
	case upper >= r*0.6 && upper >= b*2 && lower < b:
		name := "inverted_hammer"
		dir := model.DirUp
		if bullish(c) {
			name = "shooting_star"
			dir = model.DirDown
		}
		return model.DetectedPattern{
			Kind: model.PatternCandlestick, Name: name, Direction: dir,
			Strength: clampStrength(1.0 + upper/(r+1e-9)), Reason: "long upper wick, small body", AtIndex: idx,
		}, true
	}
	return model.DetectedPattern{}, false
}

func detectEngulfing(prev, cur model.Candle, idx int) (model.DetectedPattern, bool) {
	bPrev := body(prev)
	bCur := body(cur)
	if bPrev == 0 || bCur/bPrev <= 1.2 {
		return model.DetectedPattern{}, false
	}
	if bullish(prev) == bullish(cur) {
		return model.DetectedPattern{}, false
	}
	contained := math.Max(cur.Open, cur.Close) >= math.Max(prev.Open, prev.Close) &&
		math.Min(cur.Open, cur.Close) <= math.Min(prev.Open, prev.Close)
	if !contained {
		return model.DetectedPattern{}, false
	}

	name, dir := "bearish_engulfing", model.DirDown
	if bullish(cur) {
		name, dir = "bullish_engulfing", model.DirUp
	}
	return model.DetectedPattern{
		Kind: model.PatternCandlestick, Name: name, Direction: dir,
		Strength: clampStrength(1.0 + (bCur/bPrev-1.2)), Reason: "body engulfs prior candle", AtIndex: idx,
	}, true
}

func detectHarami(prev, cur model.Candle, idx int) (model.DetectedPattern, bool) {
	bPrev := body(prev)
	bCur := body(cur)
	if bPrev == 0 || bCur >= bPrev*0.6 {
		return model.DetectedPattern{}, false
	}
	contained := math.Max(cur.Open, cur.Close) <= math.Max(prev.Open, prev.Close) &&
		math.Min(cur.Open, cur.Close) >= math.Min(prev.Open, prev.Close)
	if !contained || bullish(prev) == bullish(cur) {
		return model.DetectedPattern{}, false
	}
	name, dir := "bearish_harami", model.DirDown
	if bullish(cur) {
		name, dir = "bullish_harami", model.DirUp
	}
	return model.DetectedPattern{
		Kind: model.PatternCandlestick, Name: name, Direction: dir,
		Strength: clampStrength(1.0), Reason: "small body contained within prior candle", AtIndex: idx,
	}, true
}

func detectInsideOutside(prev, cur model.Candle, idx int) (model.DetectedPattern, bool) {
	if cur.High <= prev.High && cur.Low >= prev.Low {
		return model.DetectedPattern{
			Kind: model.PatternCandlestick, Name: "inside_bar", Direction: model.DirNeutral,
			Strength: clampStrength(0.8), Reason: "range contained within prior bar", AtIndex: idx,
		}, true
	}
	if cur.High > prev.High && cur.Low < prev.Low {
		dir := model.DirUp
		if !bullish(cur) {
			dir = model.DirDown
		}
		return model.DetectedPattern{
			Kind: model.PatternCandlestick, Name: "outside_bar", Direction: dir,
			Strength: clampStrength(1.0), Reason: "range engulfs prior bar", AtIndex: idx,
		}, true
	}
	return model.DetectedPattern{}, false
}

func detectTweezer(prev, cur model.Candle, idx int) (model.DetectedPattern, bool) {
	const tol = 0.001
	if math.Abs(prev.High-cur.High) <= prev.High*tol && bullish(prev) != bullish(cur) {
		return model.DetectedPattern{
			Kind: model.PatternCandlestick, Name: "tweezer_top", Direction: model.DirDown,
			Strength: clampStrength(1.0), Reason: "matching highs, reversal in body color", AtIndex: idx,
		}, true
	}
	if math.Abs(prev.Low-cur.Low) <= prev.Low*tol && bullish(prev) != bullish(cur) {
		return model.DetectedPattern{
			Kind: model.PatternCandlestick, Name: "tweezer_bottom", Direction: model.DirUp,
			Strength: clampStrength(1.0), Reason: "matching lows, reversal in body color", AtIndex: idx,
		}, true
	}
	return model.DetectedPattern{}, false
}

func detectPiercingDarkCloud(prev, cur model.Candle, idx int) (model.DetectedPattern, bool) {
	mid := (prev.Open + prev.Close) / 2
	if !bullish(prev) && bullish(cur) && cur.Open < prev.Close && cur.Close > mid && cur.Close < prev.Open {
		return model.DetectedPattern{
			Kind: model.PatternCandlestick, Name: "piercing_line", Direction: model.DirUp,
			Strength: clampStrength(1.2), Reason: "opens below prior low, closes above prior midpoint", AtIndex: idx,
		}, true
	}
	if bullish(prev) && !bullish(cur) && cur.Open > prev.Close && cur.Close < mid && cur.Close > prev.Open {
		return model.DetectedPattern{
			Kind: model.PatternCandlestick, Name: "dark_cloud_cover", Direction: model.DirDown,
			Strength: clampStrength(1.2), Reason: "opens above prior high, closes below prior midpoint", AtIndex: idx,
		}, true
	}
	return model.DetectedPattern{}, false
}

func detectWickRejection(c model.Candle, idx int) (model.DetectedPattern, bool) {
	r := rng(c)
	if r == 0 {
		return model.DetectedPattern{}, false
	}
	upper := c.UpperWick()
	lower := c.LowerWick()
	if upper > r*0.5 && upper > lower*2 {
		return model.DetectedPattern{
			Kind: model.PatternCandlestick, Name: "upper_wick_rejection", Direction: model.DirDown,
			Strength: clampStrength(0.8 + upper/r), Reason: "upper wick dominates range", AtIndex: idx,
		}, true
	}
	if lower > r*0.5 && lower > upper*2 {
		return model.DetectedPattern{
			Kind: model.PatternCandlestick, Name: "lower_wick_rejection", Direction: model.DirUp,
			Strength: clampStrength(0.8 + lower/r), Reason: "lower wick dominates range", AtIndex: idx,
		}, true
	}
	return model.DetectedPattern{}, false
}

func detectStar(c1, c2, c3 model.Candle, idx int) (model.DetectedPattern, bool) {
	body1 := body(c1)
	range1 := rng(c1)
	body2 := body(c2)
	body3 := body(c3)
	range3 := rng(c3)
	if range1 == 0 || range3 == 0 || body1 < range1*0.6 || body2 > body1*0.4 || body3 < range3*0.6 {
		return model.DetectedPattern{}, false
	}
	midpoint := (c1.Open + c1.Close) / 2

	if !bullish(c1) && bullish(c3) && c3.Close >= midpoint {
		return model.DetectedPattern{
			Kind: model.PatternCandlestick, Name: "morning_star", Direction: model.DirUp,
			Strength: clampStrength(1.5 + (body3/body1-1.0)), Reason: "bearish, indecision, strong bullish reversal", AtIndex: idx,
		}, true
	}
	if bullish(c1) && !bullish(c3) && c3.Close <= midpoint {
		return model.DetectedPattern{
			Kind: model.PatternCandlestick, Name: "evening_star", Direction: model.DirDown,
			Strength: clampStrength(1.5 + (body3/body1-1.0)), Reason: "bullish, indecision, strong bearish reversal", AtIndex: idx,
		}, true
	}
	return model.DetectedPattern{}, false
}

func detectThreeSoldiersCrows(c1, c2, c3 model.Candle, idx int) (model.DetectedPattern, bool) {
	if bullish(c1) && bullish(c2) && bullish(c3) &&
		c2.Close > c1.Close && c3.Close > c2.Close &&
		c2.Open > c1.Open && c3.Open > c2.Open {
		return model.DetectedPattern{
			Kind: model.PatternCandlestick, Name: "three_white_soldiers", Direction: model.DirUp,
			Strength: clampStrength(1.5), Reason: "three consecutive rising bullish closes", AtIndex: idx,
		}, true
	}
	if !bullish(c1) && !bullish(c2) && !bullish(c3) &&
		c2.Close < c1.Close && c3.Close < c2.Close &&
		c2.Open < c1.Open && c3.Open < c2.Open {
		return model.DetectedPattern{
			Kind: model.PatternCandlestick, Name: "three_black_crows", Direction: model.DirDown,
			Strength: clampStrength(1.5), Reason: "three consecutive falling bearish closes", AtIndex: idx,
		}, true
	}
	return model.DetectedPattern{}, false
}

func detectThreeMethods(c1, c2, c3 model.Candle, idx int) (model.DetectedPattern, bool) {
	// Simplified two-small-candle continuation: c1 a long trend candle,
	// c2/c3 small-bodied pullback candles contained within c1's range.
	body1 := body(c1)
	range1 := rng(c1)
	if range1 == 0 || body1 < range1*0.6 {
		return model.DetectedPattern{}, false
	}
	contained2 := c2.High <= c1.High && c2.Low >= c1.Low
	contained3 := c3.High <= c1.High && c3.Low >= c1.Low
	if !contained2 || !contained3 {
		return model.DetectedPattern{}, false
	}
	if bullish(c1) {
		return model.DetectedPattern{
			Kind: model.PatternCandlestick, Name: "rising_three_methods", Direction: model.DirUp,
			Strength: clampStrength(1.2), Reason: "pullback contained within long bullish candle", AtIndex: idx,
		}, true
	}
	return model.DetectedPattern{
		Kind: model.PatternCandlestick, Name: "falling_three_methods", Direction: model.DirDown,
		Strength: clampStrength(1.2), Reason: "pullback contained within long bearish candle", AtIndex: idx,
	}, true
}
