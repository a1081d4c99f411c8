package signalengine

import (
	"math/rand"
	"testing"
	"time"

	"signalbot/internal/ml"
	"signalbot/internal/model"
	"signalbot/internal/threshold"
	"signalbot/internal/volatility"
)

func sampleCandles(n int) []model.Candle {
	out := make([]model.Candle, n)
	price := 100.0
	for i := range out {
		open := price
		price += 0.3
		out[i] = model.Candle{
			Symbol: "EURUSD", TF: 60,
			Open: open, Close: price,
			High: maxf(open, price) + 0.1, Low: minf(open, price) - 0.1,
			StartTime: int64(i * 60), TickCount: 20,
		}
	}
	return out
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func testDeps() Deps {
	return Deps{
		Ensemble:   ml.NewEnsemble(ml.NewGradientBoostedStumps(rand.New(rand.NewSource(1)))),
		Thresholds: threshold.New(),
		VolCache:   volatility.NewCache(),
	}
}

func TestGenerate_InsufficientHistoryIsNoTrade(t *testing.T) {
	e := New(1)
	closed := sampleCandles(10)
	result := e.Generate("s1", "EURUSD", 60, closed, model.Candle{}, false, 600, model.SignalOptions{}, testDeps(), time.Now())
	if result.Direction != model.SignalNoTrade {
		t.Errorf("expected NO_TRADE with insufficient history, got %v", result.Direction)
	}
	if result.Confidence != 0 {
		t.Errorf("expected confidence 0 on precondition failure, got %v", result.Confidence)
	}
}

func TestGenerate_DoesNotPanicOnSufficientHistory(t *testing.T) {
	e := New(2)
	closed := sampleCandles(60)
	forming := model.Candle{Symbol: "EURUSD", TF: 60, Open: closed[59].Close, Close: closed[59].Close + 0.1, High: closed[59].Close + 0.2, Low: closed[59].Close - 0.1}
	result := e.Generate("s1", "EURUSD", 60, closed, forming, true, 3600, model.SignalOptions{}, testDeps(), time.Now())

	if result.Confidence < 0 || result.Confidence > 95 {
		t.Errorf("expected confidence in [0,95], got %v", result.Confidence)
	}
	if result.Direction != model.SignalNoTrade && result.Direction != model.SignalCall && result.Direction != model.SignalPut {
		t.Errorf("unexpected direction %v", result.Direction)
	}
}

func TestGenerate_RecordsPrevIndicatorsAcrossCalls(t *testing.T) {
	e := New(3)
	closed := sampleCandles(60)
	forming := model.Candle{Symbol: "EURUSD", TF: 60, Open: 100, Close: 100.5}
	e.Generate("s1", "EURUSD", 60, closed, forming, true, 3600, model.SignalOptions{}, testDeps(), time.Now())

	k := key("EURUSD", 60)
	if !e.hasPrev[k] {
		t.Errorf("expected prevIndicators to be recorded after a successful generate call")
	}
}

func TestGenerate_EnabledIndicatorsFilterIsHonored(t *testing.T) {
	e := New(4)
	closed := sampleCandles(60)
	opts := model.SignalOptions{EnabledIndicators: map[string]bool{"RSI": false, "MACD_CROSS": false}}
	result := e.Generate("s1", "EURUSD", 60, closed, model.Candle{}, false, 3600, opts, testDeps(), time.Now())
	for _, v := range result.Votes {
		if v.Source == "RSI" || v.Source == "MACD_CROSS" {
			t.Errorf("expected disabled sources filtered from votes, found %v", v.Source)
		}
	}
}

func TestJitter_AntiRepeatForcesSeparation(t *testing.T) {
	e := New(5)
	now := time.Now()
	first := e.jitter("k", 80, now)
	second := e.jitter("k", first, now.Add(time.Minute))
	if second == first {
		t.Errorf("expected anti-repeat jitter to avoid an identical successive value")
	}
}
