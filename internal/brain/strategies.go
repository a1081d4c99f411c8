package brain

import (
	"signalbot/internal/model"
)

// StrategyHead is one of the eleven additional vote sources from spec
// §4.8 step 5. Each inspects the candle series plus already-computed
// indicators/psychology/regime and may emit a vote (nil if it has no
// opinion this bar).
type StrategyHead func(candles []model.Candle, iv model.IndicatorValues, psych model.PsychologyAnalysis, regime model.RegimeAnalysis) *model.Vote

// StrategyHeads is the fixed pool of eleven strategy votes (spec §4.8
// step 5), run in addition to the indicator rule set.
var StrategyHeads = []StrategyHead{
	multiTimeframeTrendAlignment,
	divergenceReversal,
	squeezeBreakout,
	meanReversionAtExtremes,
	momentumContinuation,
	volatilityExpansion,
	candlestickWithTrend,
	goWithFlow,
	exhaustion,
	confluenceCounter,
	priceActionReversal,
}

func headVote(source string, dir model.Direction, weight float64, reason string) *model.Vote {
	if dir == model.DirNeutral {
		return nil
	}
	return &model.Vote{Source: source, Direction: dir, Weight: clamp(weight, 0.2, 2.5), Reason: reason}
}

// multiTimeframeTrendAlignment approximates higher-timeframe bias from
// the regime classification itself, voting with the regime direction
// when trending and aligned.
func multiTimeframeTrendAlignment(_ []model.Candle, _ model.IndicatorValues, _ model.PsychologyAnalysis, regime model.RegimeAnalysis) *model.Vote {
	switch regime.Regime {
	case model.RegimeTrendingUp:
		if regime.MomentumAligned {
			return headVote("MTF_TREND", model.DirUp, 1+regime.Strength, "higher-timeframe uptrend confirmed")
		}
	case model.RegimeTrendingDown:
		if regime.MomentumAligned {
			return headVote("MTF_TREND", model.DirDown, 1+regime.Strength, "higher-timeframe downtrend confirmed")
		}
	}
	return nil
}

// divergenceReversal votes against price direction when RSI diverges
// from the last 5-candle price move (higher high/lower RSI or inverse).
func divergenceReversal(candles []model.Candle, iv model.IndicatorValues, _ model.PsychologyAnalysis, _ model.RegimeAnalysis) *model.Vote {
	n := len(candles)
	if n < 6 || !iv.RSI14.Present {
		return nil
	}
	priceUp := candles[n-1].Close > candles[n-6].Close
	rsiWeak := iv.RSI14.Value < 55
	rsiStrong := iv.RSI14.Value > 45
	if priceUp && rsiWeak && iv.RSI14.Value > 65 {
		return headVote("DIVERGENCE_REVERSAL", model.DirDown, 1.1, "bearish RSI divergence at highs")
	}
	if !priceUp && rsiStrong && iv.RSI14.Value < 35 {
		return headVote("DIVERGENCE_REVERSAL", model.DirUp, 1.1, "bullish RSI divergence at lows")
	}
	return nil
}

// squeezeBreakout votes with the breakout direction when Bollinger
// bands sit inside the Keltner channel (a squeeze) and price breaks
// one Bollinger edge.
func squeezeBreakout(candles []model.Candle, iv model.IndicatorValues, _ model.PsychologyAnalysis, _ model.RegimeAnalysis) *model.Vote {
	if !iv.Bollinger.Present || !iv.Keltner.Present || len(candles) == 0 {
		return nil
	}
	squeeze := iv.Bollinger.Upper < iv.Keltner.Upper && iv.Bollinger.Lower > iv.Keltner.Lower
	if !squeeze {
		return nil
	}
	price := candles[len(candles)-1].Close
	if price > iv.Bollinger.Upper {
		return headVote("SQUEEZE_BREAKOUT", model.DirUp, 1.4, "squeeze breakout above upper band")
	}
	if price < iv.Bollinger.Lower {
		return headVote("SQUEEZE_BREAKOUT", model.DirDown, 1.4, "squeeze breakout below lower band")
	}
	return nil
}

// meanReversionAtExtremes fades price when it is pinned to a Bollinger
// edge with RSI confirming an extreme.
func meanReversionAtExtremes(candles []model.Candle, iv model.IndicatorValues, _ model.PsychologyAnalysis, _ model.RegimeAnalysis) *model.Vote {
	if !iv.Bollinger.Present || !iv.RSI14.Present || len(candles) == 0 {
		return nil
	}
	price := candles[len(candles)-1].Close
	if price >= iv.Bollinger.Upper && iv.RSI14.Value >= 70 {
		return headVote("MEAN_REVERSION", model.DirDown, 1.0, "overbought at upper band")
	}
	if price <= iv.Bollinger.Lower && iv.RSI14.Value <= 30 {
		return headVote("MEAN_REVERSION", model.DirUp, 1.0, "oversold at lower band")
	}
	return nil
}

// momentumContinuation votes with ROC/Momentum when both agree in sign
// and exceed a noise floor.
func momentumContinuation(_ []model.Candle, iv model.IndicatorValues, _ model.PsychologyAnalysis, _ model.RegimeAnalysis) *model.Vote {
	if !iv.ROC12.Present || !iv.Momentum10.Present {
		return nil
	}
	if iv.ROC12.Value > 0.5 && iv.Momentum10.Value > 0 {
		return headVote("MOMENTUM_CONTINUATION", model.DirUp, 0.9, "ROC and momentum both positive")
	}
	if iv.ROC12.Value < -0.5 && iv.Momentum10.Value < 0 {
		return headVote("MOMENTUM_CONTINUATION", model.DirDown, 0.9, "ROC and momentum both negative")
	}
	return nil
}

// volatilityExpansion votes with the breakout direction when ATR is
// expanding and price clears the prior Donchian extreme.
func volatilityExpansion(candles []model.Candle, iv model.IndicatorValues, _ model.PsychologyAnalysis, _ model.RegimeAnalysis) *model.Vote {
	if !iv.ATR14.Present || !iv.DonchianHigh20.Present || !iv.DonchianLow20.Present || len(candles) == 0 {
		return nil
	}
	price := candles[len(candles)-1].Close
	if price > iv.DonchianHigh20.Value {
		return headVote("VOLATILITY_EXPANSION", model.DirUp, 1.2, "breakout above Donchian high with ATR expansion")
	}
	if price < iv.DonchianLow20.Value {
		return headVote("VOLATILITY_EXPANSION", model.DirDown, 1.2, "breakdown below Donchian low with ATR expansion")
	}
	return nil
}

// candlestickWithTrend only honors a candlestick pattern's bias when
// the regime trend agrees, filtering countertrend pattern noise.
func candlestickWithTrend(_ []model.Candle, _ model.IndicatorValues, psych model.PsychologyAnalysis, regime model.RegimeAnalysis) *model.Vote {
	if psych.Bias == model.DirNeutral {
		return nil
	}
	if psych.Bias == model.DirUp && regime.Regime == model.RegimeTrendingUp {
		return headVote("CANDLESTICK_WITH_TREND", model.DirUp, 1.1, "bullish pattern with trend")
	}
	if psych.Bias == model.DirDown && regime.Regime == model.RegimeTrendingDown {
		return headVote("CANDLESTICK_WITH_TREND", model.DirDown, 1.1, "bearish pattern with trend")
	}
	return nil
}

// goWithFlow votes with 3-5 consecutive same-direction candles when
// aligned with the short trend (spec §4.8 step 5).
func goWithFlow(candles []model.Candle, _ model.IndicatorValues, _ model.PsychologyAnalysis, regime model.RegimeAnalysis) *model.Vote {
	n := len(candles)
	if n < 5 {
		return nil
	}
	run := 1
	up := candles[n-1].Bullish()
	for i := n - 2; i >= 0 && n-1-i < 5; i-- {
		if candles[i].Bullish() == up {
			run++
		} else {
			break
		}
	}
	if run < 3 {
		return nil
	}
	if up && regime.Regime != model.RegimeTrendingDown {
		return headVote("GO_WITH_FLOW", model.DirUp, clamp(float64(run)*0.3, 0.6, 1.8), "consecutive bullish candles with trend")
	}
	if !up && regime.Regime != model.RegimeTrendingUp {
		return headVote("GO_WITH_FLOW", model.DirDown, clamp(float64(run)*0.3, 0.6, 1.8), "consecutive bearish candles with trend")
	}
	return nil
}

// exhaustion flags an oversized body combined with an RSI extreme as a
// reversal signal against the current candle's direction.
func exhaustion(candles []model.Candle, iv model.IndicatorValues, _ model.PsychologyAnalysis, _ model.RegimeAnalysis) *model.Vote {
	n := len(candles)
	if n < 10 || !iv.RSI14.Present {
		return nil
	}
	last := candles[n-1]
	var bodySum float64
	for _, c := range candles[n-10:] {
		bodySum += c.Body()
	}
	avgBody := bodySum / 10
	if avgBody == 0 || last.Body() < 2*avgBody {
		return nil
	}
	if last.Bullish() && iv.RSI14.Value >= 75 {
		return headVote("EXHAUSTION", model.DirDown, 1.0, "oversized bullish body with RSI exhaustion")
	}
	if !last.Bullish() && iv.RSI14.Value <= 25 {
		return headVote("EXHAUSTION", model.DirUp, 1.0, "oversized bearish body with RSI exhaustion")
	}
	return nil
}

// confluenceCounter tallies simple bullish/bearish factor counts
// across the indicator set and votes only when one side has 5+ factors
// with a clear majority (spec §4.8 step 5).
func confluenceCounter(_ []model.Candle, iv model.IndicatorValues, psych model.PsychologyAnalysis, _ model.RegimeAnalysis) *model.Vote {
	var bull, bear int
	count := func(up, down bool) {
		if up {
			bull++
		}
		if down {
			bear++
		}
	}
	if iv.RSI14.Present {
		count(iv.RSI14.Value > 50, iv.RSI14.Value < 50)
	}
	if iv.MACD.Present {
		count(iv.MACD.Histogram > 0, iv.MACD.Histogram < 0)
	}
	if fast, slow := iv.EMA[9], iv.EMA[21]; fast.Present && slow.Present {
		count(fast.Value > slow.Value, fast.Value < slow.Value)
	}
	if iv.ADX14.Present {
		count(false, false) // ADX alone carries no direction; included for trend-strength context only
	}
	if iv.StochK.Present && iv.StochD.Present {
		count(iv.StochK.Value > iv.StochD.Value, iv.StochK.Value < iv.StochD.Value)
	}
	if iv.CCI20.Present {
		count(iv.CCI20.Value > 0, iv.CCI20.Value < 0)
	}
	if iv.SuperTrend.Present {
		count(iv.SuperTrend.Direction == "up", iv.SuperTrend.Direction == "down")
	}
	if psych.Bias != model.DirNeutral {
		count(psych.Bias == model.DirUp, psych.Bias == model.DirDown)
	}

	if bull >= 5 && bull > bear {
		return headVote("CONFLUENCE", model.DirUp, clamp(float64(bull)*0.2, 1.0, 2.2), "five or more bullish factors")
	}
	if bear >= 5 && bear > bull {
		return headVote("CONFLUENCE", model.DirDown, clamp(float64(bear)*0.2, 1.0, 2.2), "five or more bearish factors")
	}
	return nil
}

// priceActionReversal combines a three-bar reversal pattern, a
// price gap, and PSAR bias into a single vote (spec §4.8 step 5).
func priceActionReversal(candles []model.Candle, iv model.IndicatorValues, _ model.PsychologyAnalysis, _ model.RegimeAnalysis) *model.Vote {
	n := len(candles)
	if n < 3 {
		return nil
	}
	a, b, c := candles[n-3], candles[n-2], candles[n-1]

	threeBarUp := !a.Bullish() && !b.Bullish() && c.Bullish() && c.Close > a.Open
	threeBarDown := a.Bullish() && b.Bullish() && !c.Bullish() && c.Close < a.Open

	gapUp := c.Low > b.High
	gapDown := c.High < b.Low

	psarUp := iv.PSAR.Present && iv.PSAR.Value < c.Close
	psarDown := iv.PSAR.Present && iv.PSAR.Value > c.Close

	upSignals := boolCount(threeBarUp, gapUp, psarUp)
	downSignals := boolCount(threeBarDown, gapDown, psarDown)

	if upSignals >= 2 && upSignals > downSignals {
		return headVote("PRICE_ACTION_REVERSAL", model.DirUp, float64(upSignals)*0.5, "three-bar/gap/PSAR bullish reversal confluence")
	}
	if downSignals >= 2 && downSignals > upSignals {
		return headVote("PRICE_ACTION_REVERSAL", model.DirDown, float64(downSignals)*0.5, "three-bar/gap/PSAR bearish reversal confluence")
	}
	return nil
}

func boolCount(bs ...bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}

// RunStrategyHeads evaluates every registered head and returns the
// votes that fired.
func RunStrategyHeads(candles []model.Candle, iv model.IndicatorValues, psych model.PsychologyAnalysis, regime model.RegimeAnalysis) []model.Vote {
	var votes []model.Vote
	for _, head := range StrategyHeads {
		if v := head(candles, iv, psych, regime); v != nil {
			votes = append(votes, *v)
		}
	}
	return votes
}
