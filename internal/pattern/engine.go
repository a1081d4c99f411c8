package pattern

import (
	"math"

	"signalbot/internal/model"
)

// Analyze runs all three sub-detectors over the candle series and
// folds the result into a PsychologyAnalysis describing the most
// recent candle's body/wick structure plus order-block and fair-value
// gap signals (spec §3/§4.3).
func Analyze(candles []model.Candle) model.PsychologyAnalysis {
	n := len(candles)
	if n == 0 {
		return model.PsychologyAnalysis{Bias: model.DirNeutral}
	}

	var patterns []model.DetectedPattern
	patterns = append(patterns, DetectCandlestick(candles)...)
	patterns = append(patterns, DetectChart(candles)...)
	patterns = append(patterns, DetectHarmonic(candles)...)

	last := candles[n-1]
	r := last.Range()
	var bodyRatio, upperRatio, lowerRatio float64
	if r > 0 {
		bodyRatio = last.Body() / r
		upperRatio = last.UpperWick() / r
		lowerRatio = last.LowerWick() / r
	}
	isDoji := r > 0 && bodyRatio < 0.1

	return model.PsychologyAnalysis{
		BodyRatio:             bodyRatio,
		UpperWickRatio:        upperRatio,
		LowerWickRatio:        lowerRatio,
		IsDoji:                isDoji,
		Patterns:              patterns,
		Bias:                  biasOf(patterns),
		OrderBlockProbability: orderBlockProbability(candles),
		FVGDetected:           fairValueGapDetected(candles),
	}
}

// biasOf tallies directional weight across detected patterns into a
// single up/down/neutral call.
func biasOf(patterns []model.DetectedPattern) model.Direction {
	var up, down float64
	for _, p := range patterns {
		switch p.Direction {
		case model.DirUp:
			up += p.Strength
		case model.DirDown:
			down += p.Strength
		}
	}
	switch {
	case up > down:
		return model.DirUp
	case down > up:
		return model.DirDown
	default:
		return model.DirNeutral
	}
}

// orderBlockProbability is the fraction of the last 5 candles sharing
// the majority direction, weighted up if the final candle's body is at
// least 1.5x the mean body of the window (spec §4.3).
func orderBlockProbability(candles []model.Candle) float64 {
	n := len(candles)
	if n < 5 {
		return 0
	}
	window := candles[n-5:]

	var bullishCount int
	var bodySum float64
	for _, c := range window {
		if c.Bullish() {
			bullishCount++
		}
		bodySum += c.Body()
	}
	meanBody := bodySum / float64(len(window))

	majority := float64(bullishCount) / float64(len(window))
	if bullishCount < len(window)/2+len(window)%2 {
		majority = 1 - majority
	}

	last := window[len(window)-1]
	if meanBody > 0 && last.Body() >= meanBody*1.5 {
		majority = math.Min(1.0, majority+0.15)
	}
	return majority
}

// fairValueGapDetected reports a three-candle imbalance where the first
// candle's low is above the third's high (bearish gap) or the inverse
// (bullish gap), leaving unfilled price between them.
func fairValueGapDetected(candles []model.Candle) bool {
	n := len(candles)
	if n < 3 {
		return false
	}
	first, third := candles[n-3], candles[n-1]
	return first.Low > third.High || third.Low > first.High
}
