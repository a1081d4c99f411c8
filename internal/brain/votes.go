// Package brain implements AdvancedBrain (spec §4.8, component C10):
// the indicator-rule and strategy-head vote generators plus the
// weighted-aggregation scoring that SignalEngine (C11) drives through
// generate()'s steps 3-5 and 7-8.
//
// Grounded on other_examples/31fbc95c_...signal_aggregator.go.go's
// multi-source weighted-vote-into-one-verdict shape, and the teacher's
// internal/strategy/engine.go Strategy-interface/registration pattern,
// generalized here from a single SMA-crossover strategy to an
// eleven-head pool plus a separate indicator-rule vote set.
package brain

import (
	"math"

	"signalbot/internal/model"
)

// DefaultIndicatorWeights is the per-indicator weight table applied on
// top of each rule's magnitude-scaled weight (spec §4.8 step 3).
// Values fall in [0.7, 1.5]; anything not listed defaults to 1.0.
var DefaultIndicatorWeights = map[string]float64{
	"EMA_CROSS":    1.3,
	"MACD_CROSS":   1.2,
	"RSI":          1.0,
	"STOCH":        0.9,
	"ADX_TREND":    1.1,
	"SUPER_TREND":  1.4,
	"BOLLINGER":    0.8,
	"CCI":          0.7,
	"WILLIAMS_R":   0.7,
	"PSAR":         1.0,
	"ULTIMATE_OSC": 0.8,
	"PSYCHOLOGY":   1.5,
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// applyWeight multiplies a rule's raw weight by its configured
// per-indicator weight (default 1.0) and drops the vote entirely if
// the source is excluded by enabled.
func applyWeight(source string, raw float64, enabled map[string]bool) (float64, bool) {
	if enabled != nil {
		if on, listed := enabled[source]; listed && !on {
			return 0, false
		}
	}
	w := DefaultIndicatorWeights[source]
	if w == 0 {
		w = 1.0
	}
	return raw * w, true
}

func vote(source string, dir model.Direction, weight float64, reason string, enabled map[string]bool) (model.Vote, bool) {
	w, ok := applyWeight(source, weight, enabled)
	if !ok {
		return model.Vote{}, false
	}
	return model.Vote{Source: source, Direction: dir, Weight: clamp(w, 0, 3), Reason: reason}, true
}

// IndicatorVotes applies the indicator rule set enumerated in spec
// §4.2/§4.3 to a computed IndicatorValues + PsychologyAnalysis,
// emitting one Vote per triggered rule (spec §4.8 step 3). price is
// the most recent close, needed for the band/PSAR-relative rules.
func IndicatorVotes(iv model.IndicatorValues, psych model.PsychologyAnalysis, price float64, enabled map[string]bool) []model.Vote {
	var votes []model.Vote
	add := func(source string, dir model.Direction, weight float64, reason string) {
		if dir == model.DirNeutral {
			return
		}
		if v, ok := vote(source, dir, weight, reason, enabled); ok {
			votes = append(votes, v)
		}
	}

	if fast, slow := iv.EMA[9], iv.EMA[21]; fast.Present && slow.Present {
		diff := fast.Value - slow.Value
		strength := 0.0
		if slow.Value != 0 {
			strength = math.Abs(diff) / math.Abs(slow.Value)
		}
		weight := clamp(1+strength*10, 0.5, 2.5)
		if diff > 0 {
			add("EMA_CROSS", model.DirUp, weight, "EMA9 above EMA21")
		} else if diff < 0 {
			add("EMA_CROSS", model.DirDown, weight, "EMA9 below EMA21")
		}
	}

	if iv.MACD.Present {
		diff := iv.MACD.MACD - iv.MACD.Signal
		weight := clamp(1+math.Abs(iv.MACD.Histogram)*20, 0.5, 2.5)
		if diff > 0 {
			add("MACD_CROSS", model.DirUp, weight, "MACD above signal")
		} else if diff < 0 {
			add("MACD_CROSS", model.DirDown, weight, "MACD below signal")
		}
	}

	if iv.RSI14.Present {
		switch {
		case iv.RSI14.Value >= 70:
			add("RSI", model.DirDown, 1.2, "RSI overbought")
		case iv.RSI14.Value <= 30:
			add("RSI", model.DirUp, 1.2, "RSI oversold")
		case iv.RSI14.Value > 55:
			add("RSI", model.DirUp, 0.6, "RSI above midline")
		case iv.RSI14.Value < 45:
			add("RSI", model.DirDown, 0.6, "RSI below midline")
		}
	}

	if iv.StochK.Present && iv.StochD.Present {
		if iv.StochK.Value > iv.StochD.Value && iv.StochK.Value < 80 {
			add("STOCH", model.DirUp, 0.8, "stochastic bullish cross")
		} else if iv.StochK.Value < iv.StochD.Value && iv.StochK.Value > 20 {
			add("STOCH", model.DirDown, 0.8, "stochastic bearish cross")
		}
	}

	if iv.ADX14.Present && iv.ADX14.Value >= 20 {
		if fast, slow := iv.EMA[9], iv.EMA[21]; fast.Present && slow.Present {
			weight := clamp(iv.ADX14.Value/25, 0.7, 2.0)
			if fast.Value > slow.Value {
				add("ADX_TREND", model.DirUp, weight, "ADX confirms uptrend")
			} else {
				add("ADX_TREND", model.DirDown, weight, "ADX confirms downtrend")
			}
		}
	}

	if iv.SuperTrend.Present {
		if iv.SuperTrend.Direction == "up" {
			add("SUPER_TREND", model.DirUp, 1.3, "SuperTrend up")
		} else if iv.SuperTrend.Direction == "down" {
			add("SUPER_TREND", model.DirDown, 1.3, "SuperTrend down")
		}
	}

	if iv.Bollinger.Present && price > 0 {
		if price > iv.Bollinger.Upper {
			add("BOLLINGER", model.DirDown, 0.8, "price above upper Bollinger band")
		} else if price < iv.Bollinger.Lower {
			add("BOLLINGER", model.DirUp, 0.8, "price below lower Bollinger band")
		}
	}

	if iv.CCI20.Present {
		if iv.CCI20.Value > 100 {
			add("CCI", model.DirDown, 0.8, "CCI overbought")
		} else if iv.CCI20.Value < -100 {
			add("CCI", model.DirUp, 0.8, "CCI oversold")
		}
	}

	if iv.WilliamsR14.Present {
		if iv.WilliamsR14.Value > -20 {
			add("WILLIAMS_R", model.DirDown, 0.7, "Williams %R overbought")
		} else if iv.WilliamsR14.Value < -80 {
			add("WILLIAMS_R", model.DirUp, 0.7, "Williams %R oversold")
		}
	}

	if iv.PSAR.Present && price > 0 {
		if iv.PSAR.Value < price {
			add("PSAR", model.DirUp, 0.9, "PSAR below price")
		} else if iv.PSAR.Value > price {
			add("PSAR", model.DirDown, 0.9, "PSAR above price")
		}
	}

	if iv.UltimateOsc.Present {
		if iv.UltimateOsc.Value > 70 {
			add("ULTIMATE_OSC", model.DirDown, 0.7, "Ultimate Oscillator overbought")
		} else if iv.UltimateOsc.Value < 30 {
			add("ULTIMATE_OSC", model.DirUp, 0.7, "Ultimate Oscillator oversold")
		}
	}

	if len(psych.Patterns) > 0 {
		weight := clamp(1+psych.OrderBlockProbability, 0.5, 2.5)
		if psych.Bias == model.DirUp {
			add("PSYCHOLOGY", model.DirUp, weight, "bullish candlestick/chart confluence")
		} else if psych.Bias == model.DirDown {
			add("PSYCHOLOGY", model.DirDown, weight, "bearish candlestick/chart confluence")
		}
	}

	return votes
}

// Score is the Step-4 base-scoring result: aggregated probabilities,
// alignment/conflict ratios, strong-vote count, base confidence, and
// quality score (spec §4.8 step 4).
type Score struct {
	PUp            float64
	PDown          float64
	AlignmentRatio float64
	ConflictRatio  float64
	StrongVotes    int
	BaseConfidence float64
	Quality        float64
}

const epsilon = 1e-9

// Aggregate combines a vote pool into upWeight/downWeight totals and
// derives the Step-4 base score, scaled by the regime penalty
// multiplier (spec §4.7, §4.8 step 4).
func Aggregate(votes []model.Vote, regimePenalty float64) Score {
	var up, down float64
	for _, v := range votes {
		switch v.Direction {
		case model.DirUp:
			up += v.Weight
		case model.DirDown:
			down += v.Weight
		}
	}

	total := up + down + epsilon
	pUp := up / total
	pDown := down / total

	var strong int
	var alignedWeight, conflictingWeight float64
	dominantUp := up >= down
	for _, v := range votes {
		if v.Weight >= 1.0 {
			strong++
		}
		if (v.Direction == model.DirUp) == dominantUp && v.Direction != model.DirNeutral {
			alignedWeight += v.Weight
		} else if v.Direction != model.DirNeutral {
			conflictingWeight += v.Weight
		}
	}

	alignmentRatio := 0.0
	conflictRatio := 0.0
	if total > epsilon {
		alignmentRatio = alignedWeight / total
		conflictRatio = conflictingWeight / total
	}

	directionStrength := math.Abs(pUp - 0.5)
	base := directionStrength * 180

	alignmentFactor := clamp(0.6+alignmentRatio*0.6, 0.6, 1.2)
	strongFactor := clamp(0.7+float64(strong)*0.06, 0.7, 1.3)
	conflictFactor := clamp(1.2-conflictRatio*1.5, 0.5, 1.2)

	baseConfidence := base * alignmentFactor * strongFactor * conflictFactor * clamp(regimePenalty, 0.4, 1.0)

	quality := clamp(
		alignmentRatio*40+
			clamp(float64(strong)/6, 0, 1)*30+
			(1-clamp(conflictRatio/0.32, 0, 1))*20+
			clamp(regimePenalty, 0.4, 1.0)*10,
		0, 100)

	return Score{
		PUp:            pUp,
		PDown:          pDown,
		AlignmentRatio: alignmentRatio,
		ConflictRatio:  conflictRatio,
		StrongVotes:    strong,
		BaseConfidence: clamp(baseConfidence, 0, 100),
		Quality:        quality,
	}
}
