// Package ml implements MLEnsemble (spec §4.4, component C6): four
// online learners — logistic regression, gradient-boosted stumps, kNN,
// and discrete pattern memory — combined into a calibrated up
// probability, plus the tiering/confidence verdict derived from it.
//
// Grounded on other_examples/48c63c17_...adaptive_engine.go.go and
// .../31fbc95c_...signal_aggregator.go.go for the shape of an online,
// weighted multi-source ensemble, and on the teacher's
// internal/indicator Snapshot/RestoreFromSnapshot idiom (each learner
// below exposes the same checkpoint pair) for persistence across
// restarts via internal/snapshot.
package ml

import (
	"fmt"
	"math"

	"signalbot/internal/feature"
)

// LogisticRegression is an online SGD-trained classifier over the
// 28-length feature vector (spec §4.4.1).
type LogisticRegression struct {
	weights [feature.Length]float64
	bias    float64
	n       int64

	learningRate float64
	l2           float64
}

// NewLogisticRegression returns a zero-initialized learner.
func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{learningRate: 0.1, l2: 1e-3}
}

func sigmoid(z float64) float64 {
	if z > 500 {
		z = 500
	} else if z < -500 {
		z = -500
	}
	return 1 / (1 + math.Exp(-z))
}

// Predict returns P(up) for the given feature vector.
func (l *LogisticRegression) Predict(x []float64) float64 {
	var z float64
	for i := 0; i < feature.Length && i < len(x); i++ {
		z += l.weights[i] * x[i]
	}
	z += l.bias
	return sigmoid(z)
}

// Update performs one SGD step toward label (1.0=WIN/up, 0.0=LOSS/down)
// with a decaying learning rate and an L2 penalty (spec §4.4.1).
func (l *LogisticRegression) Update(x []float64, label float64) {
	pred := l.Predict(x)
	err := pred - label
	alpha := l.learningRate / (1 + float64(l.n)*1e-4)

	for i := 0; i < feature.Length && i < len(x); i++ {
		grad := err*x[i] + l.l2*l.weights[i]
		l.weights[i] -= alpha * grad
	}
	l.bias -= alpha * err
	l.n++
}

// LogisticSnapshot is the persisted state of a LogisticRegression.
type LogisticSnapshot struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	N       int64     `json:"n"`
}

// Snapshot serializes the learner for checkpoint persistence.
func (l *LogisticRegression) Snapshot() LogisticSnapshot {
	w := make([]float64, feature.Length)
	copy(w, l.weights[:])
	return LogisticSnapshot{Weights: w, Bias: l.bias, N: l.n}
}

// RestoreFromSnapshot restores learner state from a checkpoint.
func (l *LogisticRegression) RestoreFromSnapshot(snap LogisticSnapshot) error {
	if len(snap.Weights) != feature.Length {
		return fmt.Errorf("ml: logistic snapshot has %d weights, want %d", len(snap.Weights), feature.Length)
	}
	copy(l.weights[:], snap.Weights)
	l.bias = snap.Bias
	l.n = snap.N
	return nil
}
