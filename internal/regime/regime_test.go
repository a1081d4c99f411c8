package regime

import (
	"testing"

	"signalbot/internal/model"
)

func trendingCandles(n int, start float64) []model.Candle {
	out := make([]model.Candle, n)
	price := start
	for i := range out {
		open := price
		price += 1
		out[i] = model.Candle{Open: open, Close: price, High: price + 0.2, Low: open - 0.2}
	}
	return out
}

func TestClassify_TooFewCandlesIsUnknown(t *testing.T) {
	a := Classify(Inputs{Candles: []model.Candle{{}}})
	if a.Regime != model.RegimeUnknown {
		t.Errorf("expected UNKNOWN with <2 candles, got %v", a.Regime)
	}
}

func TestClassify_StrongUptrendWithHighADX(t *testing.T) {
	candles := trendingCandles(40, 100)
	iv := model.NewIndicatorValues()
	iv.ADX14 = model.Present(30)
	iv.RSI14 = model.Present(65)
	iv.MACD = model.MACDValue{Histogram: 1, Present: true}
	iv.StochK = model.Present(80)
	iv.StochD = model.Present(70)
	iv.SuperTrend = model.SuperTrendValue{Direction: "up", Present: true}
	iv.ATR14 = model.Present(0.5)

	a := Classify(Inputs{Candles: candles, Indicators: iv, Price: 130, TrendDuration: 5})
	if a.Regime != model.RegimeTrendingUp {
		t.Errorf("expected TRENDING_UP, got %v", a.Regime)
	}
	if !a.MomentumAligned {
		t.Errorf("expected momentum aligned with all four indicators agreeing")
	}
}

func TestClassify_LowADXIsRanging(t *testing.T) {
	candles := trendingCandles(40, 100)
	iv := model.NewIndicatorValues()
	iv.ADX14 = model.Present(8)
	a := Classify(Inputs{Candles: candles, Indicators: iv, Price: 130})
	if a.Regime != model.RegimeRanging {
		t.Errorf("expected RANGING at low ADX, got %v", a.Regime)
	}
}

func TestAllowsDirection_VetoesCallInStrongDowntrend(t *testing.T) {
	a := model.RegimeAnalysis{Regime: model.RegimeTrendingDown, Strength: 0.8}
	if AllowsDirection(a, model.SignalCall) {
		t.Errorf("expected CALL to be vetoed in a strong downtrend")
	}
	if !AllowsDirection(a, model.SignalPut) {
		t.Errorf("expected PUT to be allowed in a downtrend")
	}
}

func TestAllowsDirection_WeakTrendDoesNotVeto(t *testing.T) {
	a := model.RegimeAnalysis{Regime: model.RegimeTrendingDown, Strength: 0.3}
	if !AllowsDirection(a, model.SignalCall) {
		t.Errorf("expected no veto below the 0.5 strength threshold")
	}
}

func TestPenaltyMultiplier_Bounded(t *testing.T) {
	cases := []model.RegimeAnalysis{
		{Strength: 0, IsTradeable: false, MomentumAligned: false},
		{Strength: 1, IsTradeable: true, MomentumAligned: true},
		{Strength: 0.5, IsTradeable: true, MomentumAligned: false},
	}
	for _, a := range cases {
		m := PenaltyMultiplier(a)
		if m < 0.4 || m > 1.0 {
			t.Errorf("expected multiplier in [0.4,1.0], got %v for %+v", m, a)
		}
	}
}

func TestTradeability_ChoppyHighVolatilityBlocks(t *testing.T) {
	ok, reason := tradeability(model.RegimeChoppy, model.VolLevelHigh, 5, true, 0.8)
	if ok || reason == "" {
		t.Errorf("expected choppy+high-vol to block with a reason")
	}
}

func TestTradeability_InsufficientTrendDurationBlocks(t *testing.T) {
	ok, _ := tradeability(model.RegimeTrendingUp, model.VolLevelLow, 0, true, 0.8)
	if ok {
		t.Errorf("expected insufficient trend duration to block")
	}
}
