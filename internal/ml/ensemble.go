package ml

import (
	"math"

	"signalbot/internal/model"
)

const calibrationBuckets = 10

type bucketStats struct {
	Correct float64 `json:"correct"`
	Total   float64 `json:"total"`
}

// Ensemble combines the four online learners into a single calibrated
// up probability and derives the directional verdict from it (spec
// §4.4). All state is process-wide and mutated in place; callers must
// serialize access (cmd/signalengine builds one instance that every
// session, symbol and timeframe shares through the session/winloss
// packages).
type Ensemble struct {
	Logistic *LogisticRegression
	Boosting *GradientBoostedStumps
	KNN      *KNN
	Pattern  *PatternMemory

	buckets [calibrationBuckets]bucketStats

	recent     [50]bool
	recentN    int
	recentNext int
}

// NewEnsemble returns a fresh ensemble with all four learners zeroed.
func NewEnsemble(boosting *GradientBoostedStumps) *Ensemble {
	return &Ensemble{
		Logistic: NewLogisticRegression(),
		Boosting: boosting,
		KNN:      NewKNN(),
		Pattern:  NewPatternMemory(),
	}
}

// Predict returns the calibrated P(up) for features x with pattern
// signature sig, combining all four learners per the weight-shift rule
// and decile calibration (spec §4.4).
func (e *Ensemble) Predict(x []float64, sig string) float64 {
	raw := e.rawPredict(x, sig)
	return e.calibrate(raw)
}

func (e *Ensemble) rawPredict(x []float64, sig string) float64 {
	pLogistic := e.Logistic.Predict(x)
	pBoosting := e.Boosting.Predict(x)
	pKNN := e.KNN.Predict(x)
	pPattern := e.Pattern.Predict(sig)

	wLogistic, wBoosting, wKNN, wPattern := 0.30, 0.30, 0.20, 0.20
	if math.Abs(pPattern-0.5) > 0.2 {
		wLogistic, wBoosting, wKNN, wPattern = 0.25, 0.25, 0.15, 0.35
	}

	p := wLogistic*pLogistic + wBoosting*pBoosting + wKNN*pKNN + wPattern*pPattern
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func (e *Ensemble) bucketFor(p float64) int {
	idx := int(p * calibrationBuckets)
	if idx < 0 {
		idx = 0
	}
	if idx >= calibrationBuckets {
		idx = calibrationBuckets - 1
	}
	return idx
}

func (e *Ensemble) calibrate(raw float64) float64 {
	b := &e.buckets[e.bucketFor(raw)]
	if b.Total < 5 {
		return raw
	}
	empirical := b.Correct / b.Total
	return 0.6*raw + 0.4*empirical
}

// Verdict derives the CALL/PUT/NO_TRADE direction, confidence, and tier
// from a calibrated probability (spec §4.4).
func Verdict(p float64) (direction model.SignalDirection, confidence float64, tier model.Tier) {
	directionStrength := 2 * math.Abs(p-0.5)
	if directionStrength > 0.15 {
		if p >= 0.5 {
			direction = model.SignalCall
		} else {
			direction = model.SignalPut
		}
	} else {
		direction = model.SignalNoTrade
	}

	confidence = math.Round(50 + directionStrength*42)
	if confidence < 50 {
		confidence = 50
	}
	if confidence > 92 {
		confidence = 92
	}
	tier = model.TierFor(confidence)
	return direction, confidence, tier
}

// Update dispatches the observed outcome (won=true means the predicted
// direction was correct) to every learner plus the calibration bucket
// and rolling accuracy tracker (spec §4.4).
func (e *Ensemble) Update(x []float64, sig string, raw float64, won bool) {
	label := 0.0
	if won {
		label = 1.0
	}
	e.Logistic.Update(x, label)
	e.Boosting.Update(x, label)
	e.KNN.Update(x, label)
	e.Pattern.Update(sig, won)

	b := &e.buckets[e.bucketFor(raw)]
	b.Correct = b.Correct*bucketDecay + label
	b.Total = b.Total*bucketDecay + 1

	e.recent[e.recentNext] = won
	e.recentNext = (e.recentNext + 1) % len(e.recent)
	if e.recentN < len(e.recent) {
		e.recentN++
	}
}

const bucketDecay = 0.995

// RollingAccuracy returns the win rate over the last (up to 50) Update
// calls, or 0 if there have been none yet.
func (e *Ensemble) RollingAccuracy() float64 {
	if e.recentN == 0 {
		return 0
	}
	var wins int
	for i := 0; i < e.recentN; i++ {
		if e.recent[i] {
			wins++
		}
	}
	return float64(wins) / float64(e.recentN)
}

// EnsembleSnapshot is the persisted state of an Ensemble.
type EnsembleSnapshot struct {
	Logistic LogisticSnapshot      `json:"logistic"`
	Boosting BoostingSnapshot      `json:"boosting"`
	KNN      KNNSnapshot           `json:"knn"`
	Pattern  PatternMemorySnapshot `json:"pattern"`
	Buckets  [calibrationBuckets]bucketStats `json:"buckets"`
	Recent   []bool                `json:"recent"`
	RecentN  int                   `json:"recentN"`
	RecentNext int                 `json:"recentNext"`
}

// Snapshot serializes the whole ensemble for checkpoint persistence.
func (e *Ensemble) Snapshot() EnsembleSnapshot {
	recent := make([]bool, len(e.recent))
	copy(recent, e.recent[:])
	return EnsembleSnapshot{
		Logistic:   e.Logistic.Snapshot(),
		Boosting:   e.Boosting.Snapshot(),
		KNN:        e.KNN.Snapshot(),
		Pattern:    e.Pattern.Snapshot(),
		Buckets:    e.buckets,
		Recent:     recent,
		RecentN:    e.recentN,
		RecentNext: e.recentNext,
	}
}

// RestoreFromSnapshot restores a full ensemble checkpoint.
func (e *Ensemble) RestoreFromSnapshot(snap EnsembleSnapshot) error {
	if err := e.Logistic.RestoreFromSnapshot(snap.Logistic); err != nil {
		return err
	}
	if err := e.Boosting.RestoreFromSnapshot(snap.Boosting); err != nil {
		return err
	}
	if err := e.KNN.RestoreFromSnapshot(snap.KNN); err != nil {
		return err
	}
	if err := e.Pattern.RestoreFromSnapshot(snap.Pattern); err != nil {
		return err
	}
	e.buckets = snap.Buckets
	e.recentN = snap.RecentN
	e.recentNext = snap.RecentNext
	for i := range e.recent {
		if i < len(snap.Recent) {
			e.recent[i] = snap.Recent[i]
		}
	}
	return nil
}
