// Package session implements SessionManager (spec §4.9, component
// C12): the session table, tick-subscription wiring, and exactly-once
// signal routing from C2's closed-candle events into C11 and out to
// the event bus.
//
// Grounded on the teacher's internal/gateway/hub.go (RWMutex-guarded
// registry of clients keyed by identity, with per-client subscription
// matching and a callback-driven broadcast loop), generalized here from
// WebSocket clients to trading sessions keyed by (symbol, timeframe).
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"signalbot/internal/aggregator"
	"signalbot/internal/bus"
	"signalbot/internal/indicator"
	"signalbot/internal/logger"
	"signalbot/internal/model"
	"signalbot/internal/regime"
	"signalbot/internal/signalengine"
	"signalbot/internal/volatility"
)

const historyDepth = 300

// Feed is the subset of a feed adapter SessionManager needs: fetch
// history and subscribe to a symbol's tick stream. internal/feed
// supplies the concrete implementation.
type Feed interface {
	FetchHistory(ctx context.Context, symbol string, timeframe int, n int) ([]model.Candle, error)
	Subscribe(symbol string) (<-chan model.Tick, func(), error)
}

// Manager owns the session table exclusively (spec §5 "Shared
// resources"): single writer, many readers, all mutation under mu.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	cancels  map[string]func()

	agg    *aggregator.Aggregator
	engine *signalengine.Engine
	deps   signalengine.Deps
	hub    *bus.Hub
	feed   Feed

	// OnPendingSignal is invoked once per directional emission that
	// survives post-filtering. internal/winloss subscribes through
	// this callback rather than SessionManager holding a reference to
	// it, breaking the cyclic dependency the spec calls out in §4.10.
	OnPendingSignal func(model.PendingSignal)
}

// New wires a Manager to an Aggregator's OnClosed callback; agg must not
// already have OnClosed set by another consumer.
func New(agg *aggregator.Aggregator, engine *signalengine.Engine, deps signalengine.Deps, hub *bus.Hub, feed Feed) *Manager {
	m := &Manager{
		sessions: make(map[string]*model.Session),
		cancels:  make(map[string]func()),
		agg:      agg,
		engine:   engine,
		deps:     deps,
		hub:      hub,
		feed:     feed,
	}
	agg.OnClosed = m.handleClosed
	agg.OnForming = m.handleForming
	return m
}

// Start creates and activates a session (spec §4.9's start operation):
// fetches 300-candle history, initializes the aggregator for the pair,
// subscribes to the tick stream, and marks the session active. Fails if
// a session with this id already exists (ids are server-generated here,
// so in practice this only guards against a UUID collision).
func (m *Manager) Start(ctx context.Context, chatID, symbol string, timeframe int, prefs model.Preferences, opts model.SignalOptions, now time.Time) (*model.Session, error) {
	id := uuid.NewString()

	history, err := m.feed.FetchHistory(ctx, symbol, timeframe, historyDepth)
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", symbol, err)
	}
	m.agg.Initialize(symbol, timeframe, history, historyDepth)

	ticks, unsubscribe, err := m.feed.Subscribe(symbol)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", symbol, err)
	}

	s := &model.Session{
		ID:          id,
		ChatID:      chatID,
		Symbol:      symbol,
		Timeframe:   timeframe,
		Status:      model.SessionActive,
		StartedAt:   now.Unix(),
		Preferences: prefs,
		Options:     opts,
	}

	tickCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		cancel()
		unsubscribe()
		return nil, fmt.Errorf("session %s already exists", id)
	}
	m.sessions[id] = s
	m.cancels[id] = func() { cancel(); unsubscribe() }
	m.mu.Unlock()

	go m.forwardTicks(tickCtx, symbol, timeframe, ticks)

	slog.Info("session started", "session_id", id, "symbol", symbol, "timeframe", timeframe)

	return s, nil
}

// Stop is idempotent: it marks the session stopped and releases its
// subscriber/aggregator state. A duplicate stop is a no-op (spec §4.9).
func (m *Manager) Stop(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok || s.Status == model.SessionStopped {
		m.mu.Unlock()
		return
	}
	s.Status = model.SessionStopped
	cancel, hasCancel := m.cancels[sessionID]
	delete(m.cancels, sessionID)
	m.mu.Unlock()

	if hasCancel {
		cancel()
	}

	slog.Info("session stopped", "session_id", sessionID)
}

// Get returns a copy of the session by id.
func (m *Manager) Get(sessionID string) (model.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return model.Session{}, false
	}
	return *s, true
}

// ActiveSessions returns copies of every active session, for
// WinLossTracker's volatility re-check loop (spec §4.10).
func (m *Manager) ActiveSessions() []model.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Session
	for _, s := range m.sessions {
		if s.Status == model.SessionActive {
			out = append(out, *s)
		}
	}
	return out
}

// ListByChat returns copies of every session belonging to chatID.
func (m *Manager) ListByChat(chatID string) []model.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Session
	for _, s := range m.sessions {
		if s.ChatID == chatID {
			out = append(out, *s)
		}
	}
	return out
}

// Rehydrate re-fetches history and re-subscribes every active session,
// for use on feed reconnect (spec §4.9's reconnect hook).
func (m *Manager) Rehydrate(ctx context.Context, now time.Time) {
	m.mu.RLock()
	active := make([]*model.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.Status == model.SessionActive {
			active = append(active, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range active {
		history, err := m.feed.FetchHistory(ctx, s.Symbol, s.Timeframe, historyDepth)
		if err != nil {
			continue
		}
		m.agg.Initialize(s.Symbol, s.Timeframe, history, historyDepth)

		ticks, unsubscribe, err := m.feed.Subscribe(s.Symbol)
		if err != nil {
			continue
		}
		tickCtx, cancel := context.WithCancel(ctx)

		m.mu.Lock()
		if old, ok := m.cancels[s.ID]; ok {
			old()
		}
		m.cancels[s.ID] = func() { cancel(); unsubscribe() }
		m.mu.Unlock()

		go m.forwardTicks(tickCtx, s.Symbol, s.Timeframe, ticks)
	}
}

func (m *Manager) forwardTicks(ctx context.Context, symbol string, timeframe int, ticks <-chan model.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			if m.hub != nil {
				m.hub.Ticks.Publish(bus.TickEvent{Tick: t})
			}
			m.processTick(symbol, timeframe, t)
		}
	}
}

// processTick runs one tick through the aggregator, which synchronously
// drives handleClosed/emitForSession and from there every strategy head
// and indicator in the pool. A panic there must degrade this one tick
// to a no-op rather than kill the session's tick-forwarding goroutine.
func (m *Manager) processTick(symbol string, timeframe int, t model.Tick) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic processing tick", "symbol", symbol, "timeframe", timeframe, "panic", r)
		}
	}()
	m.agg.ProcessTick(t, timeframe)
}

func (m *Manager) handleForming(symbol string, tf int, candle model.Candle) {
	if m.hub != nil {
		m.hub.Forming.Publish(bus.FormingCandleEvent{Candle: candle})
	}
}

// handleClosed is the aggregator's OnClosed callback: it implements
// spec §4.9's signal-routing and post-filtering for every session
// matching (symbol, timeframe).
func (m *Manager) handleClosed(symbol string, tf int, candle model.Candle) {
	if m.hub != nil {
		m.hub.Closed.Publish(bus.ClosedCandleEvent{Candle: candle})
	}

	m.mu.RLock()
	var matching []*model.Session
	for _, s := range m.sessions {
		if s.Status == model.SessionActive && s.Symbol == symbol && s.Timeframe == tf {
			matching = append(matching, s)
		}
	}
	m.mu.RUnlock()

	if len(matching) == 0 {
		return
	}

	closed := m.agg.GetClosed(symbol, tf)
	forming, hasForming := m.agg.GetForming(symbol, tf)
	now := time.Now()

	for _, s := range matching {
		m.emitForSession(s, closed, forming, hasForming, candle, now)
	}
}

// emitForSession enforces exactly-once emission per (session,
// candle.startEpoch), calls C11, applies the Step-1..4 post-filter, and
// publishes the result.
func (m *Manager) emitForSession(s *model.Session, closed []model.Candle, forming model.Candle, hasForming bool, candle model.Candle, now time.Time) {
	m.mu.Lock()
	if s.HasLastSignalCandleStart && s.LastSignalCandleStart == candle.StartTime {
		m.mu.Unlock()
		return
	}
	s.LastSignalCandleStart = candle.StartTime
	s.HasLastSignalCandleStart = true
	opts := s.Options
	sessionID := s.ID
	chatID := s.ChatID
	m.mu.Unlock()

	traceID := logger.GenerateTraceID(s.Symbol, now)
	traceCtx := logger.WithTraceID(context.Background(), traceID)

	result := m.engine.Generate(sessionID, s.Symbol, s.Timeframe, closed, forming, hasForming, candle.StartTime, opts, m.deps, now)

	m.postFilter(&result, closed, forming, hasForming, s)

	m.mu.Lock()
	s.LastSignalAt = now.Unix()
	s.HasLastSignalAt = true
	m.mu.Unlock()

	slog.Info("signal generated",
		append(logger.LogWithTrace(traceCtx),
			slog.String("session_id", sessionID),
			slog.String("symbol", result.Symbol),
			slog.String("direction", string(result.Direction)),
			slog.Float64("confidence", result.Confidence))...)

	if m.hub != nil {
		m.hub.Signals.Publish(bus.SignalEvent{Result: result})
	}

	if (result.Direction == model.SignalCall || result.Direction == model.SignalPut) && m.OnPendingSignal != nil {
		key := fmt.Sprintf("%s_%d", sessionID, result.Timestamp)
		m.OnPendingSignal(model.PendingSignal{
			Key:             key,
			SessionID:       sessionID,
			ChatID:          chatID,
			Symbol:          result.Symbol,
			Timeframe:       result.Timeframe,
			Direction:       result.Direction,
			EntryPrice:      result.EntryPrice,
			ExpiryEpoch:     result.CandleCloseTime + int64(result.Timeframe),
			Features:        result.Features,
			Signature:       result.PatternSignature,
			MLRawPrediction: result.MLRawPrediction,
			Confidence:      result.Confidence,
			TraceID:         traceID,
		})
	}
}

// postFilter implements spec §4.9's four post-filter steps. C11 already
// applies its own internal volatility/regime gates (spec §4.8 step 1-2);
// this is the session-level safety net re-checking against the latest
// cached analysis and the user's own confidence preference.
func (m *Manager) postFilter(result *model.SignalResult, closed []model.Candle, forming model.Candle, hasForming bool, s *model.Session) {
	if result.Direction != model.SignalCall && result.Direction != model.SignalPut {
		return
	}

	// Step 1: shouldNoTrade veto using the cached volatility analysis.
	if m.deps.VolCache != nil {
		if analysis, ok := m.deps.VolCache.Get(result.Symbol); ok {
			if veto, reason := volatility.ShouldNoTrade(analysis); veto {
				flipToNoTrade(result, reason)
				return
			}
		}
	}

	// Step 2: shouldTradeInCurrentCondition veto, recomputed from the
	// indicators/candles C11 already attached to this result.
	estimated := closed
	if hasForming {
		estimated = append(append([]model.Candle{}, closed...), forming)
	}
	price := result.Indicators.EMA[9].Value
	if len(estimated) > 0 {
		price = estimated[len(estimated)-1].Close
	}
	ivForGate := result.Indicators
	if !ivForGate.RSI14.Present {
		ivForGate = indicator.Compute(estimated)
	}
	// Trend duration: trailing candles whose color agrees with the signal.
	trendDuration := 0
	for i := len(estimated) - 1; i >= 0 && estimated[i].Bullish() == (result.Direction == model.SignalCall); i-- {
		trendDuration++
	}
	regimeAnalysis := regime.Classify(regime.Inputs{
		Candles:       estimated,
		Indicators:    ivForGate,
		Price:         price,
		TrendDuration: trendDuration,
	})
	if !regimeAnalysis.IsTradeable || !regime.AllowsDirection(regimeAnalysis, result.Direction) {
		flipToNoTrade(result, "regime veto: "+regimeAnalysis.Reason)
		return
	}

	// Step 3: confidence preference filter.
	minConfidence := s.Preferences.ConfidenceFilter
	if minConfidence > 0 && result.Confidence < float64(minConfidence) {
		result.SuggestedDirection = result.Direction
		result.IsLowConfidence = true
		result.Direction = model.SignalNoTrade
		return
	}

	// Step 4: volatility info is already attached via Indicators/Psychology;
	// nothing further to stamp here beyond what C11 produced.
}

func flipToNoTrade(result *model.SignalResult, reason string) {
	result.SuggestedDirection = result.Direction
	result.Direction = model.SignalNoTrade
	result.VolatilityOverride = true
	result.VolatilityReason = reason
	result.HasEntryPrice = false
}
