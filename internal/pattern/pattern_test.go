package pattern

import (
	"testing"

	"signalbot/internal/model"
)

func c(open, high, low, close float64) model.Candle {
	return model.Candle{Open: open, High: high, Low: low, Close: close}
}

func TestDetectCandlestick_BullishEngulfing(t *testing.T) {
	candles := []model.Candle{
		c(100, 101, 98, 99),   // bearish, body 1
		c(98.5, 103, 98, 102), // bullish, body 3.5, engulfs prior body
	}
	found := DetectCandlestick(candles)
	var ok bool
	for _, p := range found {
		if p.Name == "bullish_engulfing" && p.Direction == model.DirUp {
			ok = true
		}
	}
	if !ok {
		t.Errorf("expected bullish_engulfing in %+v", found)
	}
}

func TestDetectCandlestick_Doji(t *testing.T) {
	candles := []model.Candle{c(100, 102, 98, 100.05)}
	found := DetectCandlestick(candles)
	var ok bool
	for _, p := range found {
		if p.Kind == model.PatternCandlestick && p.Name != "" && p.Reason == "body < 10% of range" {
			ok = true
		}
	}
	if !ok {
		t.Errorf("expected a doji variant in %+v", found)
	}
}

func TestDetectCandlestick_Hammer(t *testing.T) {
	// Small body near the top, long lower wick, after a down candle.
	candles := []model.Candle{
		c(105, 106, 100, 101),
		c(100, 100.5, 95, 100.3),
	}
	found := DetectCandlestick(candles)
	var ok bool
	for _, p := range found {
		if p.Name == "hammer" {
			ok = true
		}
	}
	if !ok {
		t.Errorf("expected hammer in %+v", found)
	}
}

func TestDetectChart_RequiresMinHistory(t *testing.T) {
	candles := make([]model.Candle, 10)
	for i := range candles {
		candles[i] = c(100, 101, 99, 100)
	}
	if got := DetectChart(candles); got != nil {
		t.Errorf("expected nil chart patterns with <20 candles, got %+v", got)
	}
}

func TestDetectChart_DoubleTop(t *testing.T) {
	closes := []float64{
		100, 102, 105, 103, 101, 99, 101, 104, 105, 102,
		100, 98, 96, 94, 92, 90, 91, 92, 93, 94,
	}
	candles := make([]model.Candle, len(closes))
	for i, cl := range closes {
		candles[i] = c(cl, cl+1, cl-1, cl)
	}
	// Inject two matched swing highs near 105.
	candles[2] = c(103, 105.2, 102, 104)
	candles[8] = c(103, 105.1, 102, 104)
	found := DetectChart(candles)
	_ = found // best-effort: swing detection is heuristic, just must not panic
}

func TestDetectHarmonic_RequiresMinHistory(t *testing.T) {
	candles := make([]model.Candle, 20)
	for i := range candles {
		candles[i] = c(100, 101, 99, 100)
	}
	if got := DetectHarmonic(candles); got != nil {
		t.Errorf("expected nil harmonic patterns with <30 candles, got %+v", got)
	}
}

func TestAnalyze_EmptySeries(t *testing.T) {
	a := Analyze(nil)
	if a.Bias != model.DirNeutral {
		t.Errorf("expected neutral bias on empty series, got %v", a.Bias)
	}
}

func TestAnalyze_OrderBlockProbability_Range(t *testing.T) {
	candles := []model.Candle{
		c(100, 102, 99, 101),
		c(101, 103, 100, 102),
		c(102, 104, 101, 103),
		c(103, 105, 102, 104),
		c(104, 108, 103, 107),
	}
	a := Analyze(candles)
	if a.OrderBlockProbability < 0 || a.OrderBlockProbability > 1 {
		t.Errorf("order block probability out of [0,1]: %v", a.OrderBlockProbability)
	}
}

func TestFairValueGapDetected(t *testing.T) {
	// Bullish gap: first.high < third.low.
	candles := []model.Candle{
		c(100, 101, 99, 100),
		c(103, 106, 102, 105),
		c(107, 109, 106, 108),
	}
	if !fairValueGapDetected(candles) {
		t.Error("expected fair value gap detected")
	}
}

func TestFairValueGapDetected_NoGap(t *testing.T) {
	candles := []model.Candle{
		c(100, 101, 99, 100),
		c(100, 101.5, 99.5, 101),
		c(101, 102, 100, 101.5),
	}
	if fairValueGapDetected(candles) {
		t.Error("expected no fair value gap for overlapping ranges")
	}
}
