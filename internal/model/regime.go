package model

// RegimeType classifies the market's overall directional character.
type RegimeType string

const (
	RegimeTrendingUp   RegimeType = "TRENDING_UP"
	RegimeTrendingDown RegimeType = "TRENDING_DOWN"
	RegimeRanging      RegimeType = "RANGING"
	RegimeChoppy       RegimeType = "CHOPPY"
	RegimeUnknown      RegimeType = "UNKNOWN"
)

// PriceAction classifies how clean recent candle-to-candle movement is.
type PriceAction string

const (
	PriceActionClean PriceAction = "CLEAN"
	PriceActionMessy PriceAction = "MESSY"
	PriceActionChoppy PriceAction = "CHOPPY"
)

// VolatilityLevel is ADX/range-derived, distinct from VolatilityService's
// component-weighted score — a coarse tier used only for regime gating.
type VolatilityLevel string

const (
	VolLevelLow    VolatilityLevel = "LOW"
	VolLevelMedium VolatilityLevel = "MEDIUM"
	VolLevelHigh   VolatilityLevel = "HIGH"
)

// RegimeAnalysis is the output of MarketRegimeDetector (spec §4.7).
type RegimeAnalysis struct {
	Regime          RegimeType
	Strength        float64 // [0,1]
	IsTradeable     bool
	Reason          string
	TrendDuration   int
	MomentumAligned bool
	VolatilityLevel VolatilityLevel
	PriceAction     PriceAction
}
