// Package feature implements FeatureExtractor (spec §4.4, component
// C5): a pure function from a candle series plus its indicator and
// pattern analysis into a fixed-length, normalized feature vector fed
// to MLEnsemble.
//
// Grounded on other_examples/48c63c17_koshedutech-binance-trading-app__
// internal-autopilot-adaptive_engine.go.go and .../31fbc95c_...signal_
// aggregator.go.go for the shape of a pure feature-vector builder
// feeding an online ensemble, generalized to the 28-length vector and
// normalization rules this domain's spec defines.
package feature

import (
	"math"

	"signalbot/internal/model"
)

// Length is the fixed feature vector size (spec §4.4).
const Length = 28

// Inputs bundles everything Extract needs. Candles must be ordered
// oldest-first and include at least 21 entries for slope/volatility
// features to be meaningful (fewer just yields zeroed features, not an
// error — feature extraction never fails).
type Inputs struct {
	Candles        []model.Candle
	Indicators     model.IndicatorValues
	PrevIndicators model.IndicatorValues // indicators as of the prior closed candle, for slope features
	HasPrev        bool
	Psychology     model.PsychologyAnalysis

	// Supplied by RegimeClassifier/VolatilityScorer (C8/C9); feature
	// extraction treats them as opaque scalar/boolean context rather
	// than recomputing regime logic itself.
	RegimeStrength float64
	IsRanging      bool
	IsTrending     bool
}

// Extract builds the 28-length normalized feature vector (spec §4.4).
// Every entry is finite; indicators absent for lack of history
// contribute 0, the neutral value for every feature in this vector.
func Extract(in Inputs) []float64 {
	f := make([]float64, Length)
	n := len(in.Candles)
	if n == 0 {
		return f
	}
	last := in.Candles[n-1]

	f[0] = priceChangePct(in.Candles)
	f[1] = volatility20(in.Candles)
	f[2] = atrOverPrice(in.Indicators, last.Close)
	f[3] = scaled(in.Indicators.RSI14, 100)
	f[4] = rsiSlope(in) / 10
	f[5] = math.Tanh(in.Indicators.MACD.Histogram * 100)
	f[6] = sign(macdDiff(in.Indicators))
	f[7] = scaled(in.Indicators.StochK, 100)
	f[8] = scaled(in.Indicators.StochD, 100)
	f[9] = trendStrength(in.Indicators)
	f[10] = sign(trendDirectionRaw(in.Indicators))
	f[11] = math.Tanh(ema9Slope(in) / math.Max(last.Close, 1e-9) * 1000)
	f[12] = math.Tanh(ema21Slope(in) / math.Max(last.Close, 1e-9) * 1000)
	f[13] = sign(emaCrossDiff(in.Indicators))
	f[14] = math.Min(3, volumeRatio(in.Candles)) / 3
	f[15] = sign(volumeTrend(in.Candles))
	f[16] = in.Psychology.BodyRatio
	f[17] = in.Psychology.UpperWickRatio
	f[18] = in.Psychology.LowerWickRatio

	bullScore, bearScore := patternScores(in.Psychology.Patterns)
	f[19] = bullScore
	f[20] = bearScore

	f[21] = boolToFloat(in.IsRanging)
	f[22] = boolToFloat(in.IsTrending)
	f[23] = clamp01(in.RegimeStrength)

	buy, sell := pressure(in.Candles)
	f[24] = buy
	f[25] = sell
	f[26] = momentum(in.Candles)
	f[27] = math.Abs(buy - sell)

	for i, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			f[i] = 0
		}
	}
	return f
}

func scaled(v model.ScalarValue, div float64) float64 {
	if !v.Present {
		return 0
	}
	return v.Value / div
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
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

func priceChangePct(candles []model.Candle) float64 {
	n := len(candles)
	if n < 2 {
		return 0
	}
	prev := candles[n-2].Close
	if prev == 0 {
		return 0
	}
	return (candles[n-1].Close - prev) / prev * 100
}

func volatility20(candles []model.Candle) float64 {
	n := len(candles)
	period := 20
	if n < period {
		return 0
	}
	window := candles[n-period:]
	var sum float64
	closes := make([]float64, period)
	for i, c := range window {
		closes[i] = c.Close
		sum += c.Close
	}
	mean := sum / float64(period)
	var sq float64
	for _, c := range closes {
		d := c - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(period))
}

func atrOverPrice(iv model.IndicatorValues, price float64) float64 {
	if !iv.ATR14.Present || price == 0 {
		return 0
	}
	return iv.ATR14.Value / price
}

func rsiSlope(in Inputs) float64 {
	if !in.HasPrev || !in.Indicators.RSI14.Present || !in.PrevIndicators.RSI14.Present {
		return 0
	}
	return in.Indicators.RSI14.Value - in.PrevIndicators.RSI14.Value
}

func macdDiff(iv model.IndicatorValues) float64 {
	if !iv.MACD.Present {
		return 0
	}
	return iv.MACD.MACD - iv.MACD.Signal
}

func trendStrength(iv model.IndicatorValues) float64 {
	if !iv.ADX14.Present {
		return 0
	}
	return clamp01(iv.ADX14.Value / 100)
}

func trendDirectionRaw(iv model.IndicatorValues) float64 {
	fast, slowOK := iv.EMA[9], iv.EMA[21]
	if !fast.Present || !slowOK.Present {
		return 0
	}
	return fast.Value - slowOK.Value
}

func ema9Slope(in Inputs) float64 {
	if !in.HasPrev {
		return 0
	}
	cur, prev := in.Indicators.EMA[9], in.PrevIndicators.EMA[9]
	if !cur.Present || !prev.Present {
		return 0
	}
	return cur.Value - prev.Value
}

func ema21Slope(in Inputs) float64 {
	if !in.HasPrev {
		return 0
	}
	cur, prev := in.Indicators.EMA[21], in.PrevIndicators.EMA[21]
	if !cur.Present || !prev.Present {
		return 0
	}
	return cur.Value - prev.Value
}

func emaCrossDiff(iv model.IndicatorValues) float64 {
	fast, slowOK := iv.EMA[9], iv.EMA[21]
	if !fast.Present || !slowOK.Present {
		return 0
	}
	return fast.Value - slowOK.Value
}

// volumeRatio uses tick count as a volume proxy (no trade volume is
// available from the upstream tick feed, same proxy OBV uses).
func volumeRatio(candles []model.Candle) float64 {
	n := len(candles)
	period := 20
	if n < period+1 {
		return 1
	}
	window := candles[n-period-1 : n-1]
	var sum float64
	for _, c := range window {
		sum += float64(c.TickCount)
	}
	mean := sum / float64(period)
	if mean == 0 {
		return 1
	}
	return float64(candles[n-1].TickCount) / mean
}

func volumeTrend(candles []model.Candle) float64 {
	n := len(candles)
	if n < 6 {
		return 0
	}
	recent := candles[n-5:]
	var sum float64
	for _, c := range recent {
		sum += float64(c.TickCount)
	}
	prior := candles[n-6 : n-1]
	var priorSum float64
	for _, c := range prior {
		priorSum += float64(c.TickCount)
	}
	return sum - priorSum
}

// patternScores folds detected patterns into normalized [0,1]
// bullish/bearish confluence scores, weighted by strength.
func patternScores(patterns []model.DetectedPattern) (bull, bear float64) {
	if len(patterns) == 0 {
		return 0, 0
	}
	var bullSum, bearSum, total float64
	for _, p := range patterns {
		total += p.Strength
		switch p.Direction {
		case model.DirUp:
			bullSum += p.Strength
		case model.DirDown:
			bearSum += p.Strength
		}
	}
	if total == 0 {
		return 0, 0
	}
	return bullSum / total, bearSum / total
}

// pressure estimates buy/sell pressure from the directional body sum of
// the last 10 candles, each normalized to [0,1].
func pressure(candles []model.Candle) (buy, sell float64) {
	n := len(candles)
	period := 10
	if n < period {
		period = n
	}
	if period == 0 {
		return 0, 0
	}
	window := candles[n-period:]
	var up, down, total float64
	for _, c := range window {
		b := c.Body()
		total += b
		if c.Bullish() {
			up += b
		} else {
			down += b
		}
	}
	if total == 0 {
		return 0, 0
	}
	return up / total, down / total
}

func momentum(candles []model.Candle) float64 {
	n := len(candles)
	period := 10
	if n <= period {
		return 0
	}
	change := candles[n-1].Close - candles[n-1-period].Close
	base := candles[n-1-period].Close
	if base == 0 {
		return 0
	}
	return math.Tanh(change / base * 10)
}
