package feature

import (
	"math"
	"testing"

	"signalbot/internal/model"
)

func synthCandles(n int, start float64, step float64) []model.Candle {
	out := make([]model.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		price += step
		out[i] = model.Candle{
			Open: price - step, High: price + 0.5, Low: price - step - 0.5, Close: price,
			StartTime: int64(i * 60), TickCount: 10 + i%5,
		}
	}
	return out
}

func TestExtract_EmptyCandles_ZeroVector(t *testing.T) {
	v := Extract(Inputs{})
	if len(v) != Length {
		t.Fatalf("expected length %d, got %d", Length, len(v))
	}
	for i, x := range v {
		if x != 0 {
			t.Errorf("index %d: expected 0 on empty input, got %v", i, x)
		}
	}
}

func TestExtract_Length(t *testing.T) {
	candles := synthCandles(30, 100, 0.5)
	v := Extract(Inputs{Candles: candles})
	if len(v) != Length {
		t.Fatalf("expected length %d, got %d", Length, len(v))
	}
}

func TestExtract_NoNaNOrInf(t *testing.T) {
	// Flat series: several denominators (volatility, ATR/price, slopes)
	// land on zero; extractor must never leak NaN/Inf.
	candles := make([]model.Candle, 25)
	for i := range candles {
		candles[i] = model.Candle{Open: 100, High: 100, Low: 100, Close: 100, TickCount: 0}
	}
	v := Extract(Inputs{Candles: candles})
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			t.Errorf("index %d leaked non-finite value: %v", i, x)
		}
	}
}

func TestExtract_PriceChangePct(t *testing.T) {
	candles := []model.Candle{
		{Close: 100},
		{Close: 102},
	}
	v := Extract(Inputs{Candles: candles})
	if math.Abs(v[0]-2.0) > 0.0001 {
		t.Errorf("expected priceChangePct=2.0, got %v", v[0])
	}
}

func TestExtract_BoundedRanges(t *testing.T) {
	candles := synthCandles(60, 100, 1.0)
	iv := model.NewIndicatorValues()
	iv.RSI14 = model.Present(70)
	iv.MACD = model.MACDValue{MACD: 5, Signal: 2, Histogram: 3, Present: true}
	iv.StochK = model.Present(80)
	iv.StochD = model.Present(75)
	iv.ADX14 = model.Present(40)
	iv.EMA[9] = model.Present(150)
	iv.EMA[21] = model.Present(140)
	iv.ATR14 = model.Present(2)

	v := Extract(Inputs{Candles: candles, Indicators: iv, RegimeStrength: 0.6, IsTrending: true})

	checkRange := func(idx int, lo, hi float64) {
		if v[idx] < lo || v[idx] > hi {
			t.Errorf("index %d out of range [%v,%v]: got %v", idx, lo, hi, v[idx])
		}
	}
	checkRange(3, 0, 1)   // RSI/100
	checkRange(5, -1, 1)  // tanh(MACD hist)
	checkRange(7, 0, 1)   // stochK/100
	checkRange(8, 0, 1)   // stochD/100
	checkRange(9, 0, 1)   // trendStrength
	checkRange(23, 0, 1)  // regimeStrength clamp
	checkRange(11, -1, 1) // tanh ema9 slope
	checkRange(12, -1, 1) // tanh ema21 slope
}

func TestExtract_PatternScores_BullishDominant(t *testing.T) {
	psych := model.PsychologyAnalysis{
		Patterns: []model.DetectedPattern{
			{Direction: model.DirUp, Strength: 2.0},
			{Direction: model.DirDown, Strength: 0.5},
		},
	}
	candles := synthCandles(5, 100, 1)
	v := Extract(Inputs{Candles: candles, Psychology: psych})
	if v[19] <= v[20] {
		t.Errorf("expected bullish score > bearish score: bull=%v bear=%v", v[19], v[20])
	}
}
