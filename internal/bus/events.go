package bus

import "signalbot/internal/model"

// TickEvent wraps one validated tick for the aggregator's fan-out.
type TickEvent struct {
	Tick model.Tick
}

// FormingCandleEvent carries the in-progress candle for a (symbol, tf)
// bucket, published once per tick for live preview consumers.
type FormingCandleEvent struct {
	Candle model.Candle
}

// ClosedCandleEvent carries a candle the moment its bucket closes; this
// is what drives internal/session's exactly-once signal generation.
type ClosedCandleEvent struct {
	Candle model.Candle
}

// SignalEvent is a completed SignalResult, published regardless of
// direction (NO_TRADE included) so UI consumers can show engine
// activity even when nothing actionable fires.
type SignalEvent struct {
	Result model.SignalResult
}

// OutcomeEvent reports a resolved PendingSignal (spec §4.10).
type OutcomeEvent struct {
	SessionID  string
	ChatID     string
	Symbol     string
	Timeframe  int
	Direction  model.SignalDirection
	Outcome    model.Outcome
	EntryPrice float64
	ExitPrice  float64
}

// WarningEvent is an in-session volatility warning (spec §4.10's 5s
// re-check loop), rate-limited by internal/winloss before publication.
type WarningEvent struct {
	SessionID string
	ChatID    string
	Symbol    string
	Timeframe int
	Reason    string
	At        int64
}

// Hub bundles the in-process fan-outs the pipeline stages publish to
// and session/winloss subscribe from. Grounded on the teacher's
// gateway.Hub pattern of one struct owning every client/subscriber
// registry the process needs, generalized here to typed FanOuts
// instead of a single WebSocket client map.
type Hub struct {
	Ticks    *FanOut[TickEvent]
	Forming  *FanOut[FormingCandleEvent]
	Closed   *FanOut[ClosedCandleEvent]
	Signals  *FanOut[SignalEvent]
	Outcomes *FanOut[OutcomeEvent]
	Warnings *FanOut[WarningEvent]
}

// NewHub builds a Hub with reasonable per-stream buffer sizes: ticks
// and forming updates are high-frequency and safe to drop under load,
// closed candles and UI events are low-frequency and given more room.
func NewHub() *Hub {
	return &Hub{
		Ticks:    New[TickEvent](64),
		Forming:  New[FormingCandleEvent](64),
		Closed:   New[ClosedCandleEvent](256),
		Signals:  New[SignalEvent](256),
		Outcomes: New[OutcomeEvent](256),
		Warnings: New[WarningEvent](256),
	}
}
