package brain

import (
	"testing"

	"signalbot/internal/model"
)

func TestIndicatorVotes_EmptyWithNoIndicators(t *testing.T) {
	votes := IndicatorVotes(model.NewIndicatorValues(), model.PsychologyAnalysis{}, 0, nil)
	if len(votes) != 0 {
		t.Errorf("expected no votes from all-absent indicators, got %d", len(votes))
	}
}

func TestIndicatorVotes_EMACrossUp(t *testing.T) {
	iv := model.NewIndicatorValues()
	iv.EMA[9] = model.Present(110)
	iv.EMA[21] = model.Present(100)
	votes := IndicatorVotes(iv, model.PsychologyAnalysis{}, 0, nil)
	found := false
	for _, v := range votes {
		if v.Source == "EMA_CROSS" && v.Direction == model.DirUp {
			found = true
		}
	}
	if !found {
		t.Errorf("expected EMA_CROSS up vote, got %+v", votes)
	}
}

func TestIndicatorVotes_DisabledSourceFiltered(t *testing.T) {
	iv := model.NewIndicatorValues()
	iv.RSI14 = model.Present(75)
	votes := IndicatorVotes(iv, model.PsychologyAnalysis{}, 0, map[string]bool{"RSI": false})
	for _, v := range votes {
		if v.Source == "RSI" {
			t.Errorf("expected RSI votes filtered out, got %+v", v)
		}
	}
}

func TestAggregate_BalancedVotesYieldLowConfidence(t *testing.T) {
	votes := []model.Vote{
		{Source: "A", Direction: model.DirUp, Weight: 1},
		{Source: "B", Direction: model.DirDown, Weight: 1},
	}
	s := Aggregate(votes, 1.0)
	if s.BaseConfidence > 20 {
		t.Errorf("expected low base confidence for a balanced vote pool, got %v", s.BaseConfidence)
	}
}

func TestAggregate_OneSidedVotesYieldHighConfidence(t *testing.T) {
	votes := []model.Vote{
		{Source: "A", Direction: model.DirUp, Weight: 1.5},
		{Source: "B", Direction: model.DirUp, Weight: 1.3},
		{Source: "C", Direction: model.DirUp, Weight: 1.1},
	}
	s := Aggregate(votes, 1.0)
	if s.PUp < 0.9 {
		t.Errorf("expected pUp near 1.0 for unanimous up votes, got %v", s.PUp)
	}
	if s.BaseConfidence <= 50 {
		t.Errorf("expected high base confidence for unanimous votes, got %v", s.BaseConfidence)
	}
}

func TestAggregate_RegimePenaltyScalesConfidenceDown(t *testing.T) {
	votes := []model.Vote{
		{Source: "A", Direction: model.DirUp, Weight: 1.5},
		{Source: "B", Direction: model.DirUp, Weight: 1.3},
	}
	full := Aggregate(votes, 1.0)
	penalized := Aggregate(votes, 0.4)
	if penalized.BaseConfidence >= full.BaseConfidence {
		t.Errorf("expected regime penalty to reduce confidence: full=%v penalized=%v", full.BaseConfidence, penalized.BaseConfidence)
	}
}

func trendCandles(n int, up bool) []model.Candle {
	out := make([]model.Candle, n)
	price := 100.0
	for i := range out {
		open := price
		if up {
			price += 1
		} else {
			price -= 1
		}
		out[i] = model.Candle{Open: open, Close: price, High: max2(open, price) + 0.1, Low: min2(open, price) - 0.1}
	}
	return out
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func TestGoWithFlow_VotesWithConsecutiveRun(t *testing.T) {
	candles := trendCandles(6, true)
	v := goWithFlow(candles, model.IndicatorValues{}, model.PsychologyAnalysis{}, model.RegimeAnalysis{Regime: model.RegimeTrendingUp})
	if v == nil || v.Direction != model.DirUp {
		t.Errorf("expected GO_WITH_FLOW up vote for a consistent uptrend, got %+v", v)
	}
}

func TestGoWithFlow_NoVoteAgainstTrend(t *testing.T) {
	candles := trendCandles(6, true)
	v := goWithFlow(candles, model.IndicatorValues{}, model.PsychologyAnalysis{}, model.RegimeAnalysis{Regime: model.RegimeTrendingDown})
	if v != nil {
		t.Errorf("expected no vote when the run contradicts a strong opposing regime, got %+v", v)
	}
}

func TestRunStrategyHeads_ReturnsOnlyFiredVotes(t *testing.T) {
	candles := trendCandles(40, true)
	iv := model.NewIndicatorValues()
	votes := RunStrategyHeads(candles, iv, model.PsychologyAnalysis{}, model.RegimeAnalysis{Regime: model.RegimeTrendingUp, MomentumAligned: true, Strength: 0.6})
	for _, v := range votes {
		if v.Direction == model.DirNeutral {
			t.Errorf("expected no neutral votes in the result, got %+v", v)
		}
	}
}

func TestConfluenceCounter_RequiresFiveFactors(t *testing.T) {
	iv := model.NewIndicatorValues()
	iv.RSI14 = model.Present(60)
	v := confluenceCounter(nil, iv, model.PsychologyAnalysis{}, model.RegimeAnalysis{})
	if v != nil {
		t.Errorf("expected no vote with fewer than 5 confirming factors, got %+v", v)
	}
}
