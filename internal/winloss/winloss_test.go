package winloss

import (
	"context"
	"testing"
	"time"

	"signalbot/internal/bus"
	"signalbot/internal/model"
	"signalbot/internal/pricecache"
	"signalbot/internal/volatility"
)

type fakeSessions struct {
	sessions []model.Session
}

func (f *fakeSessions) ActiveSessions() []model.Session { return f.sessions }

func TestTracker_ResolvesWinningCall(t *testing.T) {
	prices := pricecache.New()
	prices.Set("EURUSD", 1.2510)
	hub := bus.NewHub()
	tr := New(prices, volatility.NewCache(), nil, nil, hub, nil)

	sub := hub.Outcomes.Subscribe()
	tr.AddPending(model.PendingSignal{
		Key: "s1_1", SessionID: "s1", Symbol: "EURUSD", Timeframe: 60,
		Direction: model.SignalCall, EntryPrice: 1.2500, ExpiryEpoch: time.Now().Add(-time.Second).Unix(),
	})

	tr.resolveExpired(context.Background(), time.Now())

	select {
	case e := <-sub:
		if e.Outcome != model.OutcomeWin {
			t.Errorf("expected WIN outcome, got %v", e.Outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outcome event")
	}

	stats := tr.Stats("s1")
	if stats.Wins != 1 || stats.TotalSignals != 1 {
		t.Errorf("expected stats{wins:1, total:1}, got %+v", stats)
	}
}

func TestTracker_TieIsALoss(t *testing.T) {
	prices := pricecache.New()
	prices.Set("EURUSD", 1.2500)
	tr := New(prices, volatility.NewCache(), nil, nil, bus.NewHub(), nil)

	tr.AddPending(model.PendingSignal{
		Key: "s1_2", SessionID: "s1", Symbol: "EURUSD", Timeframe: 60,
		Direction: model.SignalCall, EntryPrice: 1.2500, ExpiryEpoch: time.Now().Add(-time.Second).Unix(),
	})
	tr.resolveExpired(context.Background(), time.Now())

	stats := tr.Stats("s1")
	if stats.Losses != 1 {
		t.Errorf("expected a tie to resolve as a loss, got %+v", stats)
	}
}

func TestTracker_MissingPriceDropsWithoutResolution(t *testing.T) {
	tr := New(pricecache.New(), volatility.NewCache(), nil, nil, bus.NewHub(), nil)
	tr.AddPending(model.PendingSignal{
		Key: "s1_3", SessionID: "s1", Symbol: "UNKNOWN", Timeframe: 60,
		Direction: model.SignalCall, EntryPrice: 1.0, ExpiryEpoch: time.Now().Add(-time.Second).Unix(),
	})
	tr.resolveExpired(context.Background(), time.Now())

	if stats := tr.Stats("s1"); stats.TotalSignals != 0 {
		t.Errorf("expected no stats update when price is missing, got %+v", stats)
	}
	tr.mu.Lock()
	_, stillPending := tr.pending["s1_3"]
	tr.mu.Unlock()
	if stillPending {
		t.Errorf("expected the pending signal to be dropped, not re-enqueued")
	}
}

func TestTracker_ResolvesEachKeyOnlyOnce(t *testing.T) {
	prices := pricecache.New()
	prices.Set("EURUSD", 1.3)
	tr := New(prices, volatility.NewCache(), nil, nil, bus.NewHub(), nil)
	tr.AddPending(model.PendingSignal{
		Key: "s1_4", SessionID: "s1", Symbol: "EURUSD", Timeframe: 60,
		Direction: model.SignalCall, EntryPrice: 1.0, ExpiryEpoch: time.Now().Add(-time.Second).Unix(),
	})
	tr.resolveExpired(context.Background(), time.Now())
	tr.AddPending(model.PendingSignal{
		Key: "s1_4", SessionID: "s1", Symbol: "EURUSD", Timeframe: 60,
		Direction: model.SignalCall, EntryPrice: 1.0, ExpiryEpoch: time.Now().Add(-time.Second).Unix(),
	})
	tr.resolveExpired(context.Background(), time.Now())

	stats := tr.Stats("s1")
	if stats.TotalSignals != 1 {
		t.Errorf("expected exactly one resolution for a reused key, got %+v", stats)
	}
}

func TestTracker_VolatilityWarningRateLimited(t *testing.T) {
	volCache := volatility.NewCache()
	volCache.Set(volatility.Analysis{Symbol: "EURUSD", VolatilityScore: 0.8, PriceStability: 0.1})
	sessions := &fakeSessions{sessions: []model.Session{{ID: "s1", ChatID: "c1", Symbol: "EURUSD", Timeframe: 60, Status: model.SessionActive}}}
	hub := bus.NewHub()
	tr := New(pricecache.New(), volCache, nil, nil, hub, sessions)

	sub := hub.Warnings.Subscribe()
	now := time.Now()
	tr.checkVolatility(context.Background(), now)
	tr.checkVolatility(context.Background(), now.Add(time.Second))

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
		t.Errorf("expected exactly one warning within the cooldown window, got %d", count)
	}
}
