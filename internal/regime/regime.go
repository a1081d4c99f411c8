// Package regime implements MarketRegimeDetector (spec §4.7, component
// C9): classifies recent price action into a directional regime with
// a tradeability verdict and a confidence-scaling penalty multiplier.
//
// Grounded on other_examples/8269c969_ducminhle1904-crypto-dca-bot__
// internal-engines-trend_engine.go.go's trend/regime-aware entry gating
// (bias timeframe trend classification feeding a tradeable/not verdict)
// and the teacher's ADX-style indicator shape for the ranging/trending/
// strong tiering.
package regime

import (
	"math"

	"signalbot/internal/model"
)

const (
	swingLookback = 30

	adxRanging  = 12
	adxTrending = 18
	adxStrong   = 25

	atrRatioMedium = 0.015
	atrRatioHigh   = 0.03

	momentumAlignThreshold = 0.60
	directionVetoStrength  = 0.5
)

// Inputs bundles everything Classify needs.
type Inputs struct {
	Candles       []model.Candle
	Indicators    model.IndicatorValues
	Price         float64
	TrendDuration int // consecutive confirming candles, tracked by the caller across invocations
}

// Classify derives a RegimeAnalysis from recent candles and indicators
// (spec §4.7).
func Classify(in Inputs) model.RegimeAnalysis {
	n := len(in.Candles)
	if n < 2 {
		return model.RegimeAnalysis{Regime: model.RegimeUnknown, VolatilityLevel: model.VolLevelLow, PriceAction: model.PriceActionMessy}
	}

	window := in.Candles
	if n > swingLookback {
		window = in.Candles[n-swingLookback:]
	}

	higherHighs, higherLows, lowerHighs, lowerLows, confirmed := swingAnalysis(window)
	action := priceAction(window)
	volLevel := volatilityLevel(in.Indicators, in.Price)

	regime, strength := classifyDirection(in.Indicators, higherHighs, higherLows, lowerHighs, lowerLows)
	if regime == model.RegimeTrendingUp || regime == model.RegimeTrendingDown {
		if action == model.PriceActionChoppy {
			regime = model.RegimeChoppy
		}
	}

	aligned := momentumAligned(in.Indicators, regime)

	tradeable, reason := tradeability(regime, volLevel, in.TrendDuration, confirmed, strength)

	return model.RegimeAnalysis{
		Regime:          regime,
		Strength:        strength,
		IsTradeable:     tradeable,
		Reason:          reason,
		TrendDuration:   in.TrendDuration,
		MomentumAligned: aligned,
		VolatilityLevel: volLevel,
		PriceAction:     action,
	}
}

// swingAnalysis reports higher-high/higher-low and lower-high/lower-low
// pivot counts over window, plus whether swings confirm a clean trend
// (no opposing pivot type present). When fewer than two pivots of a kind
// exist (a steady one-way move), the window's first and last candles
// are compared instead.
func swingAnalysis(window []model.Candle) (higherHighs, higherLows, lowerHighs, lowerLows int, confirmed bool) {
	highs := swingHighs(window)
	lows := swingLows(window)
	if len(highs) < 2 {
		highs = []int{0, len(window) - 1}
	}
	if len(lows) < 2 {
		lows = []int{0, len(window) - 1}
	}

	for i := 1; i < len(highs); i++ {
		if window[highs[i]].High > window[highs[i-1]].High {
			higherHighs++
		} else {
			lowerHighs++
		}
	}
	for i := 1; i < len(lows); i++ {
		if window[lows[i]].Low > window[lows[i-1]].Low {
			higherLows++
		} else {
			lowerLows++
		}
	}

	confirmed = (higherHighs > 0 && higherLows > 0 && lowerHighs == 0 && lowerLows == 0) ||
		(lowerHighs > 0 && lowerLows > 0 && higherHighs == 0 && higherLows == 0)
	return
}

func swingHighs(window []model.Candle) []int {
	var idxs []int
	for i := 1; i < len(window)-1; i++ {
		if window[i].High > window[i-1].High && window[i].High > window[i+1].High {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

func swingLows(window []model.Candle) []int {
	var idxs []int
	for i := 1; i < len(window)-1; i++ {
		if window[i].Low < window[i-1].Low && window[i].Low < window[i+1].Low {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

// priceAction classifies direction-change frequency and wick dominance
// over window into CLEAN/MESSY/CHOPPY (spec §4.7).
func priceAction(window []model.Candle) model.PriceAction {
	n := len(window)
	if n < 3 {
		return model.PriceActionMessy
	}
	var flips int
	var wickSum, bodySum float64
	prevUp := window[0].Bullish()
	for i, c := range window {
		wickSum += c.UpperWick() + c.LowerWick()
		bodySum += c.Body()
		if i == 0 {
			continue
		}
		up := c.Bullish()
		if up != prevUp {
			flips++
		}
		prevUp = up
	}
	flipRatio := float64(flips) / float64(n-1)
	wickDominance := 0.0
	if denom := wickSum + bodySum; denom > 0 {
		wickDominance = wickSum / denom
	}

	switch {
	case flipRatio < 0.35 && wickDominance < 0.45:
		return model.PriceActionClean
	case flipRatio > 0.60 || wickDominance > 0.60:
		return model.PriceActionChoppy
	default:
		return model.PriceActionMessy
	}
}

func volatilityLevel(iv model.IndicatorValues, price float64) model.VolatilityLevel {
	if !iv.ATR14.Present || price <= 0 {
		return model.VolLevelLow
	}
	ratio := iv.ATR14.Value / price
	switch {
	case ratio >= atrRatioHigh:
		return model.VolLevelHigh
	case ratio >= atrRatioMedium:
		return model.VolLevelMedium
	default:
		return model.VolLevelLow
	}
}

// classifyDirection combines ADX tiering with swing-pivot bias into a
// regime and a [0,1] strength (spec §4.7).
func classifyDirection(iv model.IndicatorValues, higherHighs, higherLows, lowerHighs, lowerLows int) (model.RegimeType, float64) {
	adx := 0.0
	if iv.ADX14.Present {
		adx = iv.ADX14.Value
	}

	if adx < adxRanging {
		return model.RegimeRanging, clamp01(adx / adxRanging * 0.4)
	}

	upBias := higherHighs + higherLows
	downBias := lowerHighs + lowerLows

	strength := clamp01((adx - adxRanging) / (adxStrong*1.5 - adxRanging))
	switch {
	case upBias > downBias && adx >= adxTrending:
		return model.RegimeTrendingUp, strength
	case downBias > upBias && adx >= adxTrending:
		return model.RegimeTrendingDown, strength
	case upBias == downBias:
		return model.RegimeChoppy, clamp01(adx / adxStrong * 0.5)
	default:
		return model.RegimeRanging, clamp01(adx / adxTrending * 0.5)
	}
}

// momentumAligned checks whether at least momentumAlignThreshold of
// {RSI position, MACD histogram sign, Stochastic cross, SuperTrend
// direction} match the regime's implied direction (spec §4.7).
func momentumAligned(iv model.IndicatorValues, regime model.RegimeType) bool {
	wantUp := regime == model.RegimeTrendingUp
	wantDown := regime == model.RegimeTrendingDown
	if !wantUp && !wantDown {
		return false
	}

	var checks, matches int

	if iv.RSI14.Present {
		checks++
		if (wantUp && iv.RSI14.Value > 50) || (wantDown && iv.RSI14.Value < 50) {
			matches++
		}
	}
	if iv.MACD.Present {
		checks++
		if (wantUp && iv.MACD.Histogram > 0) || (wantDown && iv.MACD.Histogram < 0) {
			matches++
		}
	}
	if iv.StochK.Present && iv.StochD.Present {
		checks++
		if (wantUp && iv.StochK.Value > iv.StochD.Value) || (wantDown && iv.StochK.Value < iv.StochD.Value) {
			matches++
		}
	}
	if iv.SuperTrend.Present {
		checks++
		if (wantUp && iv.SuperTrend.Direction == "up") || (wantDown && iv.SuperTrend.Direction == "down") {
			matches++
		}
	}

	if checks == 0 {
		return false
	}
	return float64(matches)/float64(checks) >= momentumAlignThreshold
}

// tradeability requires the regime not be CHOPPY+HIGH volatility, a
// minimum trend duration, and at least partial confirmation via clean
// swing structure or strength > 0.4 (spec §4.7).
func tradeability(regime model.RegimeType, vol model.VolatilityLevel, trendDuration int, confirmedSwings bool, strength float64) (bool, string) {
	const minTrendDuration = 2

	if regime == model.RegimeChoppy && vol == model.VolLevelHigh {
		return false, "choppy regime with high volatility"
	}
	if trendDuration < minTrendDuration {
		return false, "insufficient trend duration"
	}
	if !confirmedSwings && strength <= 0.4 {
		return false, "no confirmed swing structure and weak regime strength"
	}
	return true, ""
}

// AllowsDirection applies the direction veto: CALL is forbidden when
// the regime is TRENDING_DOWN with strength > 0.5 (symmetric for PUT)
// (spec §4.7).
func AllowsDirection(a model.RegimeAnalysis, direction model.SignalDirection) bool {
	if direction == model.SignalCall && a.Regime == model.RegimeTrendingDown && a.Strength > directionVetoStrength {
		return false
	}
	if direction == model.SignalPut && a.Regime == model.RegimeTrendingUp && a.Strength > directionVetoStrength {
		return false
	}
	return true
}

// PenaltyMultiplier returns the [0.4, 1.0] confidence-scaling
// multiplier for a regime analysis (spec §4.7): tradeable, aligned,
// strong regimes scale near 1.0; weak or unconfirmed regimes pull
// confidence down toward the 0.4 floor.
func PenaltyMultiplier(a model.RegimeAnalysis) float64 {
	m := 0.4 + 0.6*a.Strength
	if !a.IsTradeable {
		m *= 0.7
	}
	if a.MomentumAligned {
		m = math.Min(1.0, m*1.1)
	}
	return clamp01Range(m, 0.4, 1.0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clamp01Range(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
