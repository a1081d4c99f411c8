package session

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"signalbot/internal/aggregator"
	"signalbot/internal/bus"
	"signalbot/internal/ml"
	"signalbot/internal/model"
	"signalbot/internal/signalengine"
	"signalbot/internal/threshold"
	"signalbot/internal/volatility"
)

type fakeFeed struct {
	history []model.Candle
	ticks   chan model.Tick
}

func (f *fakeFeed) FetchHistory(ctx context.Context, symbol string, timeframe int, n int) ([]model.Candle, error) {
	return f.history, nil
}

func (f *fakeFeed) Subscribe(symbol string) (<-chan model.Tick, func(), error) {
	return f.ticks, func() {}, nil
}

func sampleHistory(n int) []model.Candle {
	out := make([]model.Candle, n)
	price := 100.0
	for i := range out {
		open := price
		price += 0.2
		out[i] = model.Candle{
			Symbol: "EURUSD", TF: 60, Open: open, Close: price,
			High: price + 0.1, Low: open - 0.1, StartTime: int64(i * 60), TickCount: 10,
		}
	}
	return out
}

func testManager(t *testing.T, feed Feed) (*Manager, *aggregator.Aggregator) {
	t.Helper()
	agg := aggregator.New()
	engine := signalengine.New(1)
	deps := signalengine.Deps{
		Ensemble:   ml.NewEnsemble(ml.NewGradientBoostedStumps(rand.New(rand.NewSource(1)))),
		Thresholds: threshold.New(),
		VolCache:   volatility.NewCache(),
	}
	hub := bus.NewHub()
	m := New(agg, engine, deps, hub, feed)
	return m, agg
}

func TestManager_StartActivatesSession(t *testing.T) {
	feed := &fakeFeed{history: sampleHistory(60), ticks: make(chan model.Tick, 4)}
	m, _ := testManager(t, feed)

	s, err := m.Start(context.Background(), "chat1", "EURUSD", 60, model.Preferences{}, model.SignalOptions{}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Status != model.SessionActive {
		t.Errorf("expected session active, got %v", s.Status)
	}

	got, ok := m.Get(s.ID)
	if !ok || got.Status != model.SessionActive {
		t.Errorf("expected to retrieve active session, got %+v ok=%v", got, ok)
	}
}

func TestManager_StopIsIdempotent(t *testing.T) {
	feed := &fakeFeed{history: sampleHistory(60), ticks: make(chan model.Tick, 4)}
	m, _ := testManager(t, feed)
	s, _ := m.Start(context.Background(), "chat1", "EURUSD", 60, model.Preferences{}, model.SignalOptions{}, time.Now())

	m.Stop(s.ID)
	m.Stop(s.ID)

	got, _ := m.Get(s.ID)
	if got.Status != model.SessionStopped {
		t.Errorf("expected stopped session, got %v", got.Status)
	}
}

func TestManager_ExactlyOneSignalPerCandleClose(t *testing.T) {
	feed := &fakeFeed{history: sampleHistory(60), ticks: make(chan model.Tick, 4)}
	m, agg := testManager(t, feed)
	s, err := m.Start(context.Background(), "chat1", "EURUSD", 60, model.Preferences{}, model.SignalOptions{}, time.Now())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	sub := m.hub.Signals.Subscribe()

	closed := model.Candle{Symbol: "EURUSD", TF: 60, Open: 100, Close: 101, High: 101.2, Low: 99.9, StartTime: 999 * 60}
	agg.OnClosed("EURUSD", 60, closed)
	agg.OnClosed("EURUSD", 60, closed)

	count := 0
loop:
	for {
		select {
		case <-sub:
			count++
		case <-time.After(100 * time.Millisecond):
			break loop
		}
	}

	if count != 1 {
		t.Errorf("expected exactly one signal for a repeated candle-close key, got %d", count)
	}

	got, _ := m.Get(s.ID)
	if !got.HasLastSignalCandleStart || got.LastSignalCandleStart != closed.StartTime {
		t.Errorf("expected lastSignalCandleStart recorded, got %+v", got)
	}
}

func TestManager_ConfidenceFilterFlipsToNoTrade(t *testing.T) {
	feed := &fakeFeed{history: sampleHistory(60), ticks: make(chan model.Tick, 4)}
	m, _ := testManager(t, feed)

	s := &model.Session{ID: "s1", Symbol: "EURUSD", Timeframe: 60, Status: model.SessionActive, Preferences: model.Preferences{ConfidenceFilter: 95}}
	result := model.SignalResult{Direction: model.SignalCall, Confidence: 80, Symbol: "EURUSD", Timeframe: 60, Indicators: model.NewIndicatorValues()}
	m.postFilter(&result, sampleHistory(60), model.Candle{}, false, s)

	if result.Direction != model.SignalNoTrade {
		t.Errorf("expected confidence filter to flip to NO_TRADE, got %v", result.Direction)
	}
	if !result.IsLowConfidence || result.SuggestedDirection != model.SignalCall {
		t.Errorf("expected low-confidence flag and preserved suggestedDirection, got %+v", result)
	}
}
