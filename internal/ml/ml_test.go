package ml

import (
	"math/rand"
	"testing"

	"signalbot/internal/feature"
)

func onesVector(v float64) []float64 {
	x := make([]float64, feature.Length)
	for i := range x {
		x[i] = v
	}
	return x
}

func TestLogisticRegression_LearnsSeparableSignal(t *testing.T) {
	l := NewLogisticRegression()
	pos := onesVector(1)
	neg := onesVector(-1)
	for i := 0; i < 500; i++ {
		l.Update(pos, 1)
		l.Update(neg, 0)
	}
	if p := l.Predict(pos); p < 0.8 {
		t.Errorf("expected high P(up) for positive signal, got %v", p)
	}
	if p := l.Predict(neg); p > 0.2 {
		t.Errorf("expected low P(up) for negative signal, got %v", p)
	}
}

func TestLogisticRegression_SnapshotRoundTrip(t *testing.T) {
	l := NewLogisticRegression()
	l.Update(onesVector(1), 1)
	snap := l.Snapshot()

	restored := NewLogisticRegression()
	if err := restored.RestoreFromSnapshot(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got, want := restored.Predict(onesVector(1)), l.Predict(onesVector(1)); got != want {
		t.Errorf("restored predict %v, want %v", got, want)
	}
}

func TestGradientBoostedStumps_PredictBounded(t *testing.T) {
	g := NewGradientBoostedStumps(rand.New(rand.NewSource(1)))
	for i := 0; i < 100; i++ {
		x := onesVector(float64(i % 3))
		label := 0.0
		if i%2 == 0 {
			label = 1.0
		}
		g.Update(x, label)
	}
	p := g.Predict(onesVector(1))
	if p < 0 || p > 1 {
		t.Errorf("expected prediction in [0,1], got %v", p)
	}
}

func TestGradientBoostedStumps_SnapshotRoundTrip(t *testing.T) {
	g := NewGradientBoostedStumps(rand.New(rand.NewSource(2)))
	for i := 0; i < 40; i++ {
		g.Update(onesVector(float64(i)), 1)
	}
	snap := g.Snapshot()
	restored := NewGradientBoostedStumps(rand.New(rand.NewSource(3)))
	if err := restored.RestoreFromSnapshot(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(restored.stumps) != len(g.stumps) {
		t.Errorf("expected %d stumps restored, got %d", len(g.stumps), len(restored.stumps))
	}
}

func TestKNN_NoOpinionBelowK(t *testing.T) {
	k := NewKNN()
	for i := 0; i < 3; i++ {
		k.Update(onesVector(float64(i)), 1)
	}
	if p := k.Predict(onesVector(0)); p != 0.5 {
		t.Errorf("expected 0.5 with fewer than k samples, got %v", p)
	}
}

func TestKNN_WeightsNearestNeighbors(t *testing.T) {
	k := NewKNN()
	for i := 0; i < 7; i++ {
		k.Update(onesVector(10), 0)
	}
	for i := 0; i < 7; i++ {
		k.Update(onesVector(0), 1)
	}
	p := k.Predict(onesVector(0.1))
	if p < 0.5 {
		t.Errorf("expected prediction biased toward nearby label=1 samples, got %v", p)
	}
}

func TestKNN_RingEvictsOldest(t *testing.T) {
	k := NewKNN()
	for i := 0; i < knnCapacity+10; i++ {
		k.Update(onesVector(float64(i)), 1)
	}
	if len(k.samples) != knnCapacity {
		t.Errorf("expected ring capped at %d, got %d", knnCapacity, len(k.samples))
	}
}

func TestPatternMemory_PredictsNoOpinionWhenUnseen(t *testing.T) {
	p := NewPatternMemory()
	if got := p.Predict("unseen"); got != 0.5 {
		t.Errorf("expected 0.5 for unseen signature, got %v", got)
	}
}

func TestPatternMemory_TracksWinRate(t *testing.T) {
	p := NewPatternMemory()
	sig := Signature("high", "up", "up", "engulfing", "trending", "normal")
	for i := 0; i < 10; i++ {
		p.Update(sig, true)
	}
	if got := p.Predict(sig); got < 0.9 {
		t.Errorf("expected near-1.0 win rate, got %v", got)
	}
}

func TestPatternMemory_DecayErodesStaleEntries(t *testing.T) {
	p := NewPatternMemory()
	sig := Signature("low", "down", "down", "doji", "ranging", "low")
	p.Update(sig, true)
	for i := 0; i < 2000; i++ {
		p.Update("other", false)
	}
	if _, ok := p.entries[sig]; ok {
		t.Errorf("expected stale signature to be evicted after sustained decay")
	}
}

func TestEnsemble_VerdictNoTradeNearHalf(t *testing.T) {
	dir, conf, tier := Verdict(0.5)
	if dir != "NO_TRADE" {
		t.Errorf("expected NO_TRADE at p=0.5, got %v", dir)
	}
	if conf != 50 {
		t.Errorf("expected confidence=50 at p=0.5, got %v", conf)
	}
	if tier != "LOW" {
		t.Errorf("expected LOW tier at p=0.5, got %v", tier)
	}
}

func TestEnsemble_VerdictCallAtHighProbability(t *testing.T) {
	dir, conf, tier := Verdict(0.95)
	if dir != "CALL" {
		t.Errorf("expected CALL at p=0.95, got %v", dir)
	}
	if conf != 88 {
		t.Errorf("expected confidence round(50 + 0.9*42) = 88, got %v", conf)
	}
	if tier != "PREMIUM" {
		t.Errorf("expected PREMIUM tier, got %v", tier)
	}
}

func TestEnsemble_VerdictPutAtLowProbability(t *testing.T) {
	dir, _, _ := Verdict(0.05)
	if dir != "PUT" {
		t.Errorf("expected PUT at p=0.05, got %v", dir)
	}
}

func TestEnsemble_PredictWithinBounds(t *testing.T) {
	e := NewEnsemble(NewGradientBoostedStumps(rand.New(rand.NewSource(4))))
	sig := Signature("mid", "flat", "flat", "none", "ranging", "normal")
	p := e.Predict(onesVector(0.5), sig)
	if p < 0 || p > 1 {
		t.Errorf("expected calibrated probability in [0,1], got %v", p)
	}
}

func TestEnsemble_UpdateImprovesRollingAccuracy(t *testing.T) {
	e := NewEnsemble(NewGradientBoostedStumps(rand.New(rand.NewSource(5))))
	sig := Signature("high", "up", "up", "engulfing", "trending", "high")
	for i := 0; i < 20; i++ {
		e.Update(onesVector(1), sig, 0.9, true)
	}
	if acc := e.RollingAccuracy(); acc != 1.0 {
		t.Errorf("expected rolling accuracy 1.0 after all wins, got %v", acc)
	}
}

func TestEnsemble_SnapshotRoundTrip(t *testing.T) {
	e := NewEnsemble(NewGradientBoostedStumps(rand.New(rand.NewSource(6))))
	sig := Signature("low", "down", "down", "doji", "ranging", "low")
	e.Update(onesVector(-1), sig, 0.2, false)
	snap := e.Snapshot()

	restored := NewEnsemble(NewGradientBoostedStumps(rand.New(rand.NewSource(7))))
	if err := restored.RestoreFromSnapshot(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.RollingAccuracy() != e.RollingAccuracy() {
		t.Errorf("rolling accuracy mismatch after restore")
	}
}
