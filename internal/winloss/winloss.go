// Package winloss implements WinLossTracker (spec §4.10, component
// C13): the pending-signal table, the 1s expiry poll loop, the 5s
// volatility re-check loop, and the dispatch of resolved outcomes into
// the ML ensemble and adaptive thresholds.
//
// Grounded on the teacher's internal/indengine/snapshot.go ticker-driven
// periodic-loop shape and internal/execution/paper.go's fill/result
// bookkeeping idiom, generalized from order fills to CALL/PUT outcome
// resolution.
package winloss

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sort"
	"sync"
	"time"

	"signalbot/internal/bus"
	"signalbot/internal/logger"
	"signalbot/internal/ml"
	"signalbot/internal/model"
	"signalbot/internal/pricecache"
	"signalbot/internal/threshold"
	"signalbot/internal/volatility"
)

const (
	processedCapacity      = 1000
	warningCooldown        = 60 * time.Second
	maxWarningsPerSession  = 3
	volatilityWarnFloor    = 0.6
	pollInterval           = 1 * time.Second
	volatilityCheckInterval = 5 * time.Second
)

// SessionLister is the subset of internal/session's Manager that
// WinLossTracker needs for its volatility re-check loop, kept as an
// interface so the two packages don't import each other directly (spec
// §4.10's cyclic-dependency-via-event-bus note).
type SessionLister interface {
	ActiveSessions() []model.Session
}

// Tracker owns the pending-signal table, processed-set, and per-session
// stats exclusively (spec §5 "Shared resources"): the poll loop is the
// sole writer, with inserts from signal emission (AddPending) appended
// under the same lock.
type Tracker struct {
	mu        sync.Mutex
	pending   map[string]model.PendingSignal
	processed map[string]struct{}
	order     []string // processed keys, oldest first, bounded to processedCapacity

	statsMu sync.Mutex
	stats   map[string]*model.SessionStats

	warnMu    sync.Mutex
	warnCount map[string]int
	lastWarn  map[string]time.Time

	prices     *pricecache.Cache
	volCache   *volatility.Cache
	ensemble   *ml.Ensemble
	thresholds *threshold.Adaptive
	hub        *bus.Hub
	sessions   SessionLister
}

func New(prices *pricecache.Cache, volCache *volatility.Cache, ensemble *ml.Ensemble, thresholds *threshold.Adaptive, hub *bus.Hub, sessions SessionLister) *Tracker {
	return &Tracker{
		pending:    make(map[string]model.PendingSignal),
		processed:  make(map[string]struct{}),
		stats:      make(map[string]*model.SessionStats),
		warnCount:  make(map[string]int),
		lastWarn:   make(map[string]time.Time),
		prices:     prices,
		volCache:   volCache,
		ensemble:   ensemble,
		thresholds: thresholds,
		hub:        hub,
		sessions:   sessions,
	}
}

// AddPending registers a directional signal awaiting resolution. Wired
// as internal/session's Manager.OnPendingSignal callback.
func (t *Tracker) AddPending(p model.PendingSignal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[p.Key] = p
}

// Stats returns a copy of sessionID's running win/loss record.
func (t *Tracker) Stats(sessionID string) model.SessionStats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	if s, ok := t.stats[sessionID]; ok {
		return *s
	}
	return model.SessionStats{}
}

// AllStats returns a copy of every session's stats, for periodic
// snapshot persistence (internal/snapshot).
func (t *Tracker) AllStats() map[string]model.SessionStats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	out := make(map[string]model.SessionStats, len(t.stats))
	for k, v := range t.stats {
		out[k] = *v
	}
	return out
}

// RestoreStats seeds the stats table from a checkpoint loaded at
// startup (internal/snapshot), so restarting the process doesn't reset
// every session's running win/loss record to zero.
func (t *Tracker) RestoreStats(stats map[string]model.SessionStats) {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	for k, v := range stats {
		cp := v
		t.stats[k] = &cp
	}
}

// Run starts the poll loop and the volatility re-check loop; blocks
// until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()
	volTicker := time.NewTicker(volatilityCheckInterval)
	defer volTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-pollTicker.C:
			t.resolveExpired(ctx, now)
		case <-volTicker.C:
			t.checkVolatility(ctx, time.Now())
		}
	}
}

// resolveExpired implements the 1s poll loop (spec §4.10): every
// pending whose expiryEpoch <= now is resolved, processed in ascending
// expiryEpoch order within this cycle.
func (t *Tracker) resolveExpired(ctx context.Context, now time.Time) {
	nowEpoch := now.Unix()

	t.mu.Lock()
	var due []model.PendingSignal
	for key, p := range t.pending {
		if p.ExpiryEpoch <= nowEpoch {
			if _, seen := t.processed[key]; seen {
				delete(t.pending, key)
				continue
			}
			due = append(due, p)
		}
	}
	for _, p := range due {
		delete(t.pending, p.Key)
		t.markProcessed(p.Key)
	}
	t.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].ExpiryEpoch < due[j].ExpiryEpoch })

	for _, p := range due {
		t.resolveOneSafely(ctx, p)
	}
}

// resolveOneSafely isolates one pending signal's resolution from the
// poll loop: a panic inside (e.g. a corrupt feature vector reaching the
// ML ensemble) must drop that one outcome, not take down the goroutine
// every other pending signal relies on to ever resolve.
func (t *Tracker) resolveOneSafely(ctx context.Context, p model.PendingSignal) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic resolving pending signal", "key", p.Key, "session_id", p.SessionID, "panic", r)
		}
	}()
	t.resolveOne(ctx, p)
}

// markProcessed must be called with t.mu held.
func (t *Tracker) markProcessed(key string) {
	t.processed[key] = struct{}{}
	t.order = append(t.order, key)
	if len(t.order) > processedCapacity {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.processed, oldest)
	}
}

func (t *Tracker) resolveOne(ctx context.Context, p model.PendingSignal) {
	exit, ok := t.prices.Get(p.Symbol)
	if !ok {
		log.Printf("[winloss] no cached price for %s, dropping pending signal %s without resolution", p.Symbol, p.Key)
		return
	}

	var won bool
	switch p.Direction {
	case model.SignalCall:
		won = exit > p.EntryPrice
	case model.SignalPut:
		won = exit < p.EntryPrice
	default:
		won = false
	}

	outcome := model.OutcomeLoss
	if won {
		outcome = model.OutcomeWin
	}

	if t.ensemble != nil && len(p.Features) > 0 {
		t.ensemble.Update(p.Features, p.Signature, p.MLRawPrediction, won)
	}
	if t.thresholds != nil {
		t.thresholds.RecordOutcome(won, p.Confidence, time.Now())
	}

	t.statsMu.Lock()
	s, ok := t.stats[p.SessionID]
	if !ok {
		s = &model.SessionStats{}
		t.stats[p.SessionID] = s
	}
	s.TotalSignals++
	if won {
		s.Wins++
	} else {
		s.Losses++
	}
	t.statsMu.Unlock()

	if p.TraceID != "" {
		traceCtx := logger.WithTraceID(context.Background(), p.TraceID)
		slog.Info("signal outcome resolved",
			append(logger.LogWithTrace(traceCtx),
				slog.String("session_id", p.SessionID),
				slog.String("symbol", p.Symbol),
				slog.String("outcome", string(outcome)))...)
	}

	if t.hub != nil {
		t.hub.Outcomes.Publish(bus.OutcomeEvent{
			SessionID:  p.SessionID,
			ChatID:     p.ChatID,
			Symbol:     p.Symbol,
			Timeframe:  p.Timeframe,
			Direction:  p.Direction,
			Outcome:    outcome,
			EntryPrice: p.EntryPrice,
			ExitPrice:  exit,
		})
	}
}

// checkVolatility implements the 5s volatility re-check loop (spec
// §4.10): publishes an in-session warning for sessions whose symbol is
// volatile and unstable, rate-limited per session.
func (t *Tracker) checkVolatility(ctx context.Context, now time.Time) {
	if t.sessions == nil || t.volCache == nil {
		return
	}

	for _, s := range t.sessions.ActiveSessions() {
		analysis, ok := t.volCache.Get(s.Symbol)
		if !ok {
			continue
		}
		if analysis.VolatilityScore <= volatilityWarnFloor || analysis.PriceStability >= 0.4 {
			continue
		}

		t.warnMu.Lock()
		count := t.warnCount[s.ID]
		last, hasLast := t.lastWarn[s.ID]
		if count >= maxWarningsPerSession || (hasLast && now.Sub(last) < warningCooldown) {
			t.warnMu.Unlock()
			continue
		}
		t.warnCount[s.ID] = count + 1
		t.lastWarn[s.ID] = now
		t.warnMu.Unlock()

		if t.hub != nil {
			t.hub.Warnings.Publish(bus.WarningEvent{
				SessionID: s.ID,
				ChatID:    s.ChatID,
				Symbol:    s.Symbol,
				Timeframe: s.Timeframe,
				Reason:    fmt.Sprintf("elevated volatility (score=%.2f)", analysis.VolatilityScore),
				At:        now.Unix(),
			})
		}
	}
}
