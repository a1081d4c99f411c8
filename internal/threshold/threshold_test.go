package threshold

import (
	"testing"
	"time"
)

func TestAdaptive_StartsAtBase(t *testing.T) {
	a := New()
	c := a.Current()
	if c.MinConfidence != base.MinConfidence || c.MinAlignedIndicators != base.MinAlignedIndicators {
		t.Errorf("expected base thresholds, got %+v", c)
	}
}

func TestAdaptive_TightensOnPoorRecentWinRate(t *testing.T) {
	a := New()
	now := time.Now()
	for i := 0; i < 15; i++ {
		won := i%3 == 0 // 5/15 wins ~ 0.33, well under 0.65
		a.RecordOutcome(won, 75, now.Add(time.Duration(i)*time.Second))
	}
	c := a.Current()
	if c.MinConfidence <= base.MinConfidence {
		t.Errorf("expected tightened MinConfidence above base %v, got %v", base.MinConfidence, c.MinConfidence)
	}
}

func TestAdaptive_RelaxesOnStrongWinRate(t *testing.T) {
	a := New()
	now := time.Now()
	// First tighten away from base...
	for i := 0; i < 15; i++ {
		a.RecordOutcome(i%3 != 0, 75, now.Add(time.Duration(i)*time.Second))
	}
	tightened := a.Current().MinConfidence

	// ...then sustain a high win rate past cooldown to relax back down.
	later := now.Add(10 * time.Minute)
	for i := 0; i < 15; i++ {
		a.RecordOutcome(true, 75, later.Add(time.Duration(i)*time.Second))
	}
	relaxed := a.Current().MinConfidence
	if relaxed >= tightened {
		t.Errorf("expected relax to lower MinConfidence below tightened %v, got %v", tightened, relaxed)
	}
}

func TestAdaptive_EmergencyTightenOnLossStreak(t *testing.T) {
	a := New()
	now := time.Now()
	for i := 0; i < 3; i++ {
		a.RecordOutcome(false, 75, now.Add(time.Duration(i)*time.Second))
	}
	if c := a.Current(); c.MinConfidence <= base.MinConfidence {
		t.Errorf("expected emergency tighten after 3-loss streak, got %v", c.MinConfidence)
	}
}

func TestAdaptive_IsAllowedDeniesBelowMinConfidence(t *testing.T) {
	a := New()
	if a.IsAllowed(base.MinConfidence - 1) {
		t.Errorf("expected denial below MinConfidence")
	}
	if !a.IsAllowed(base.MinConfidence + 1) {
		t.Errorf("expected allowance above MinConfidence")
	}
}

func TestAdaptive_IsAllowedDeniesOnLossStreak(t *testing.T) {
	a := New()
	now := time.Now()
	for i := 0; i < 4; i++ {
		a.RecordOutcome(false, 75, now.Add(time.Duration(i)*time.Second))
	}
	if a.IsAllowed(base.MinConfidence + 1) {
		t.Errorf("expected denial while loss streak >= 4 and confidence below cap")
	}
}

func TestAdaptive_WindowPrunesStaleEntries(t *testing.T) {
	a := New()
	old := time.Now().Add(-3 * time.Hour)
	a.RecordOutcome(true, 80, old)
	recent := time.Now()
	a.RecordOutcome(true, 80, recent)
	if len(a.window) != 1 {
		t.Errorf("expected stale entry pruned, window has %d entries", len(a.window))
	}
}

func TestAdaptive_SnapshotRoundTrip(t *testing.T) {
	a := New()
	now := time.Now()
	for i := 0; i < 12; i++ {
		a.RecordOutcome(i%4 != 0, 75, now.Add(time.Duration(i)*time.Second))
	}
	snap := a.Snapshot()

	restored := New()
	if err := restored.RestoreFromSnapshot(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Current() != a.Current() {
		t.Errorf("restored thresholds %+v, want %+v", restored.Current(), a.Current())
	}
	if len(restored.window) != len(a.window) {
		t.Errorf("restored window len %d, want %d", len(restored.window), len(a.window))
	}
}
