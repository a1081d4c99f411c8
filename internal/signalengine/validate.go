package signalengine

import (
	"signalbot/internal/brain"
	"signalbot/internal/model"
	"signalbot/internal/regime"
	"signalbot/internal/threshold"
)

const qualityRejectionFloor = 45

// validate runs the Step-7 admission checks (spec §4.8): the quality
// floor, at least two of four supporting signals, the conflict-ratio
// and aligned-indicator-count gates from the current adaptive
// thresholds, the short-term-trend contradiction veto, and the
// unresolved-divergence-at-low-quality check.
func validate(
	base brain.Score,
	augmented brain.Score,
	r model.RegimeAnalysis,
	direction model.SignalDirection,
	t threshold.Thresholds,
	pool []model.Vote,
) (bool, string) {
	if base.Quality < qualityRejectionFloor {
		return false, "quality score below rejection floor"
	}

	trendSupport := (direction == model.SignalCall && r.Regime == model.RegimeTrendingUp) ||
		(direction == model.SignalPut && r.Regime == model.RegimeTrendingDown)
	momentumSupport := r.MomentumAligned
	strongConsensus := augmented.StrongVotes >= t.MinAlignedIndicators
	weightRatio := augmented.PUp
	if direction == model.SignalPut {
		weightRatio = augmented.PDown
	}
	weightRatioOK := weightRatio > 0.58

	supportCount := boolCount(trendSupport, momentumSupport, strongConsensus, weightRatioOK)
	if supportCount < 2 {
		return false, "fewer than two supporting confirmation factors"
	}

	if augmented.ConflictRatio > t.MaxConflictRatio {
		return false, "conflict ratio exceeds adaptive ceiling"
	}
	if augmented.StrongVotes < t.MinAlignedIndicators {
		return false, "fewer aligned indicators than the adaptive floor"
	}

	confirmationFactors := float64(supportCount)
	if !trendSupport && confirmationFactors < 2.5 {
		contradicts := (direction == model.SignalCall && r.Regime == model.RegimeTrendingDown) ||
			(direction == model.SignalPut && r.Regime == model.RegimeTrendingUp)
		if contradicts && !regime.AllowsDirection(r, direction) {
			return false, "direction contradicts short-term trend without sufficient confirmation"
		}
	}

	if base.Quality < 60 && hasUnresolvedDivergence(pool, direction) {
		return false, "unresolved momentum divergence at low quality"
	}

	return true, ""
}

func hasUnresolvedDivergence(pool []model.Vote, direction model.SignalDirection) bool {
	for _, v := range pool {
		if v.Source != "DIVERGENCE_REVERSAL" {
			continue
		}
		if (v.Direction == model.DirUp && direction == model.SignalPut) ||
			(v.Direction == model.DirDown && direction == model.SignalCall) {
			return true
		}
	}
	return false
}

func boolCount(bs ...bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}
