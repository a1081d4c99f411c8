package feed

import (
	"context"
	"testing"
	"time"

	"signalbot/internal/model"
)

func tickFor(symbol string) model.Tick {
	return model.Tick{Symbol: symbol, Price: 1.0, Epoch: time.Now().Unix()}
}

func TestSimFeed_FetchHistoryIsDeterministicAcrossCalls(t *testing.T) {
	f1 := NewSimFeed(42)
	f2 := NewSimFeed(42)

	c1, err := f1.FetchHistory(context.Background(), "EURUSD", 60, 300)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	c2, err := f2.FetchHistory(context.Background(), "EURUSD", 60, 300)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}

	if len(c1) != 300 || len(c2) != 300 {
		t.Fatalf("expected 300 candles, got %d and %d", len(c1), len(c2))
	}
	for i := range c1 {
		if c1[i] != c2[i] {
			t.Fatalf("candle %d differs between same-seed feeds: %+v vs %+v", i, c1[i], c2[i])
		}
	}
	for i := 1; i < len(c1); i++ {
		if c1[i].StartTime <= c1[i-1].StartTime {
			t.Fatalf("history not ascending at %d", i)
		}
		if c1[i].Forming {
			t.Fatalf("history candle %d is marked forming", i)
		}
	}
}

func TestSimFeed_SubscribeMultiplexesASingleGenerator(t *testing.T) {
	f := NewSimFeed(1)
	f.TickPeriod = 5 * time.Millisecond

	chA, unsubA, err := f.Subscribe("EURUSD")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	chB, unsubB, err := f.Subscribe("EURUSD")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case <-chA:
	case <-time.After(time.Second):
		t.Fatal("first subscriber saw no ticks")
	}
	select {
	case <-chB:
	case <-time.After(time.Second):
		t.Fatal("second subscriber saw no ticks")
	}

	f.mu.Lock()
	generators := len(f.cancels)
	f.mu.Unlock()
	if generators != 1 {
		t.Errorf("expected exactly one generator for a shared symbol, got %d", generators)
	}

	unsubA()
	unsubB()

	f.mu.Lock()
	generators = len(f.cancels)
	f.mu.Unlock()
	if generators != 0 {
		t.Errorf("expected the generator to stop after the last unsubscribe, got %d running", generators)
	}
}

func TestMultiplexer_DispatchOnlyReachesSubscribersOfThatSymbol(t *testing.T) {
	var subscribeCount int
	var unsubscribeCount int
	mux := newMultiplexer(
		func(symbol string) error { subscribeCount++; return nil },
		func(symbol string) { unsubscribeCount++ },
	)

	chEUR, unsubEUR, err := mux.subscribe("EURUSD")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	chGBP, unsubGBP, err := mux.subscribe("GBPUSD")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if subscribeCount != 2 {
		t.Fatalf("expected one wire subscribe per distinct symbol, got %d", subscribeCount)
	}

	mux.dispatch(tickFor("EURUSD"))

	select {
	case <-chEUR:
	default:
		t.Fatal("EURUSD subscriber did not receive its tick")
	}
	select {
	case <-chGBP:
		t.Fatal("GBPUSD subscriber incorrectly received an EURUSD tick")
	default:
	}

	unsubEUR()
	unsubGBP()
	if unsubscribeCount != 2 {
		t.Errorf("expected one wire unsubscribe per symbol once its last listener leaves, got %d", unsubscribeCount)
	}
}
