package ml

import (
	"math/rand"
	"sort"

	"signalbot/internal/feature"
)

const (
	maxStumps        = 15
	refitEvery       = 10
	minBufferForFit  = 30
	candidateFeatures = 10
	quantileCandidates = 5
)

// stump is a single decision-stump weak learner: splits on featureIdx
// at threshold, predicting leftValue below it and rightValue above.
type stump struct {
	FeatureIdx int     `json:"featureIdx"`
	Threshold  float64 `json:"threshold"`
	LeftValue  float64 `json:"leftValue"`
	RightValue float64 `json:"rightValue"`
}

func (s stump) predict(x []float64) float64 {
	if s.FeatureIdx >= len(x) {
		return 0
	}
	if x[s.FeatureIdx] < s.Threshold {
		return s.LeftValue
	}
	return s.RightValue
}

type sample struct {
	features []float64
	label    float64
}

// GradientBoostedStumps is an online-retrained ensemble of up to 15
// decision stumps fit by greedy residual minimization (spec §4.4.2).
type GradientBoostedStumps struct {
	stumps []stump
	buffer []sample
	count  int
	rng    *rand.Rand
}

// NewGradientBoostedStumps returns an empty ensemble. The caller
// supplies a seeded rand.Rand so the quantile/feature sampling in Fit
// is reproducible in tests; production wiring (cmd/signalengine) seeds it
// from the configured feed seed.
func NewGradientBoostedStumps(rng *rand.Rand) *GradientBoostedStumps {
	return &GradientBoostedStumps{rng: rng}
}

// Predict returns the clipped-to-[0,1] sum of all stump outputs.
func (g *GradientBoostedStumps) Predict(x []float64) float64 {
	var sum float64
	for _, s := range g.stumps {
		sum += s.predict(x)
	}
	if sum < 0 {
		return 0
	}
	if sum > 1 {
		return 1
	}
	return sum
}

// Update appends the sample to the fit buffer, nudges the leaf selected
// by the current ensemble toward the observed label, and triggers a
// periodic refit once the buffer is large enough (spec §4.4.2).
func (g *GradientBoostedStumps) Update(x []float64, label float64) {
	xs := make([]float64, len(x))
	copy(xs, x)
	g.buffer = append(g.buffer, sample{features: xs, label: label})
	if len(g.buffer) > 500 {
		g.buffer = g.buffer[len(g.buffer)-500:]
	}
	g.count++

	pred := g.Predict(x)
	err := label - pred
	g.nudgeSelectedLeaf(x, err)

	if g.count%refitEvery == 0 && len(g.buffer) >= minBufferForFit {
		g.fit()
	}
}

func (g *GradientBoostedStumps) nudgeSelectedLeaf(x []float64, err float64) {
	for i := range g.stumps {
		s := &g.stumps[i]
		if s.FeatureIdx >= len(x) {
			continue
		}
		if x[s.FeatureIdx] < s.Threshold {
			s.LeftValue += 0.01 * err
		} else {
			s.RightValue += 0.01 * err
		}
	}
}

// fit greedily rebuilds the stump ensemble: each stump is chosen over a
// random 10-feature subset and up to 5 quantile thresholds per
// feature, selecting the split that most reduces squared residual
// error against the current ensemble's running prediction.
func (g *GradientBoostedStumps) fit() {
	residuals := make([]float64, len(g.buffer))
	for i, s := range g.buffer {
		residuals[i] = s.label - g.Predict(s.features)
	}

	var newStumps []stump
	for round := 0; round < maxStumps; round++ {
		best, bestGain, ok := g.bestSplit(residuals)
		if !ok || bestGain <= 0 {
			break
		}
		newStumps = append(newStumps, best)
		for i, s := range g.buffer {
			residuals[i] -= best.predict(s.features)
		}
	}
	g.stumps = newStumps
}

func (g *GradientBoostedStumps) bestSplit(residuals []float64) (stump, float64, bool) {
	nFeatures := feature.Length
	idxs := g.rng.Perm(nFeatures)
	if len(idxs) > candidateFeatures {
		idxs = idxs[:candidateFeatures]
	}

	var best stump
	var bestGain float64
	found := false

	for _, fi := range idxs {
		values := make([]float64, 0, len(g.buffer))
		for _, s := range g.buffer {
			if fi < len(s.features) {
				values = append(values, s.features[fi])
			}
		}
		if len(values) == 0 {
			continue
		}
		thresholds := quantileThresholds(values, quantileCandidates)

		for _, th := range thresholds {
			var leftSum, rightSum float64
			var leftN, rightN int
			for i, s := range g.buffer {
				if fi >= len(s.features) {
					continue
				}
				if s.features[fi] < th {
					leftSum += residuals[i]
					leftN++
				} else {
					rightSum += residuals[i]
					rightN++
				}
			}
			if leftN == 0 || rightN == 0 {
				continue
			}
			leftVal := leftSum / float64(leftN)
			rightVal := rightSum / float64(rightN)

			var gain float64
			for i, s := range g.buffer {
				if fi >= len(s.features) {
					continue
				}
				pred := rightVal
				if s.features[fi] < th {
					pred = leftVal
				}
				before := residuals[i] * residuals[i]
				after := (residuals[i] - pred) * (residuals[i] - pred)
				gain += before - after
			}
			if gain > bestGain {
				bestGain = gain
				best = stump{FeatureIdx: fi, Threshold: th, LeftValue: leftVal, RightValue: rightVal}
				found = true
			}
		}
	}
	return best, bestGain, found
}

func quantileThresholds(values []float64, count int) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	out := make([]float64, 0, count)
	for i := 1; i <= count; i++ {
		pos := i * (len(sorted) - 1) / (count + 1)
		out = append(out, sorted[pos])
	}
	return out
}

// BoostingSnapshot is the persisted state of a GradientBoostedStumps.
type BoostingSnapshot struct {
	Stumps []stump `json:"stumps"`
	Count  int     `json:"count"`
}

func (g *GradientBoostedStumps) Snapshot() BoostingSnapshot {
	s := make([]stump, len(g.stumps))
	copy(s, g.stumps)
	return BoostingSnapshot{Stumps: s, Count: g.count}
}

func (g *GradientBoostedStumps) RestoreFromSnapshot(snap BoostingSnapshot) error {
	g.stumps = make([]stump, len(snap.Stumps))
	copy(g.stumps, snap.Stumps)
	g.count = snap.Count
	return nil
}
