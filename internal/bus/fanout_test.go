package bus

import (
	"context"
	"testing"
	"time"

	"signalbot/internal/model"
)

func TestFanOut_BroadcastsToAllSubscribers(t *testing.T) {
	f := New[ClosedCandleEvent](4)
	a := f.Subscribe()
	b := f.Subscribe()

	input := make(chan ClosedCandleEvent, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx, input)

	input <- ClosedCandleEvent{Candle: model.Candle{Symbol: "EURUSD"}}

	select {
	case v := <-a:
		if v.Candle.Symbol != "EURUSD" {
			t.Errorf("unexpected candle on subscriber a: %+v", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber a")
	}
	select {
	case v := <-b:
		if v.Candle.Symbol != "EURUSD" {
			t.Errorf("unexpected candle on subscriber b: %+v", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber b")
	}
}

func TestFanOut_DropsOnFullSubscriberWithoutBlocking(t *testing.T) {
	f := New[TickEvent](1)
	sub := f.Subscribe()

	var drops int
	f.OnDrop = func(idx int) { drops++ }

	input := make(chan TickEvent, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx, input)

	for i := 0; i < 3; i++ {
		input <- TickEvent{Tick: model.Tick{Symbol: "EURUSD", Price: 1.1}}
	}
	time.Sleep(50 * time.Millisecond)

	if drops == 0 {
		t.Errorf("expected at least one dropped event for a 1-buffer subscriber fed 3 events")
	}
	<-sub
}

func TestFanOut_ClosesSubscribersWhenInputCloses(t *testing.T) {
	f := New[TickEvent](2)
	sub := f.Subscribe()

	input := make(chan TickEvent)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx, input)
	close(input)

	select {
	case _, ok := <-sub:
		if ok {
			t.Errorf("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber channel to close")
	}
}

func TestHub_NewHubProvidesAllStreams(t *testing.T) {
	h := NewHub()
	if h.Ticks == nil || h.Forming == nil || h.Closed == nil || h.Signals == nil || h.Outcomes == nil || h.Warnings == nil {
		t.Errorf("expected all Hub fan-outs to be initialized, got %+v", h)
	}
}
