// Package aggregator implements CandleAggregator (spec §4.1, component
// C2): it folds an ordered tick stream into fixed-duration OHLC candles
// per (symbol, timeframe), holding a bounded ring of closed candles plus
// one forming candle, and emits forming/tick/closed events exactly once
// per boundary crossing.
//
// Grounded on the teacher's internal/marketdata/agg (single-goroutine
// per-key folding) and internal/marketdata/tfbuilder (multi-timeframe
// map-of-state shape, explicit per-TF config), generalized into one
// aggregator keyed by (symbol, timeframe) instead of a fixed 1s stage
// feeding a separate resampler — the base spec's candles ARE the
// timeframe the session cares about, there is no intermediate 1s tier.
package aggregator

import (
	"log"
	"sync"

	"signalbot/internal/model"
)

// state holds the forming candle and closed-candle ring for one
// (symbol, timeframe) key. All mutation happens under Aggregator.mu,
// with processTick required to be called in epoch order per key
// (single-writer discipline, spec §5).
type state struct {
	timeframe int
	capacity  int
	closed    []model.Candle // oldest first, len <= capacity
	forming   *model.Candle
	hasForming bool
}

// Callbacks are invoked synchronously from processTick while holding no
// lock (called after the internal mutex is released), matching the
// teacher's OnDroppedTick/OnLateTick callback-field idiom.
type Aggregator struct {
	mu     sync.Mutex
	states map[string]*state

	// OnForming fires on the first tick of a new interval.
	OnForming func(symbol string, tf int, candle model.Candle)
	// OnTick fires on every further tick within the same interval.
	OnTick func(symbol string, tf int, candle model.Candle)
	// OnClosed fires exactly once at boundary crossing.
	OnClosed func(symbol string, tf int, candle model.Candle)

	// OnDroppedTick fires for invalid or out-of-order ticks.
	OnDroppedTick func(symbol string, tf int, reason string)
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{
		states: make(map[string]*state),
	}
}

func key(symbol string, tf int) string {
	return symbol + ":" + itoa(tf)
}

// Initialize seeds the closed-candle ring for (symbol, timeframe) with
// sorted, non-forming history truncated to capacity. Calling Initialize
// again replaces any existing state for the key (spec §4.1).
func (a *Aggregator) Initialize(symbol string, tf int, history []model.Candle, capacity int) {
	if capacity <= 0 {
		capacity = 1
	}
	closed := make([]model.Candle, 0, capacity)
	for _, c := range history {
		c.Forming = false
		closed = append(closed, c)
	}
	if len(closed) > capacity {
		closed = closed[len(closed)-capacity:]
	}

	a.mu.Lock()
	a.states[key(symbol, tf)] = &state{
		timeframe: tf,
		capacity:  capacity,
		closed:    closed,
	}
	a.mu.Unlock()
}

// ProcessTick folds a single tick into the (symbol, timeframe)
// aggregator identified by tick.Symbol and tf. Must be called in
// monotone-epoch order per (symbol, tf); out-of-order ticks are dropped
// silently per spec §3/§4.1.
func (a *Aggregator) ProcessTick(tick model.Tick, tf int) {
	if !tick.Valid() {
		a.drop(tick.Symbol, tf, "invalid price")
		return
	}

	boundary := floorToBoundary(tick.Epoch, tf)

	a.mu.Lock()
	st, ok := a.states[key(tick.Symbol, tf)]
	if !ok {
		a.mu.Unlock()
		log.Printf("[aggregator] processTick: no aggregator for %s tf=%d, ignoring", tick.Symbol, tf)
		return
	}

	if st.hasForming && boundary < st.forming.StartTime {
		a.mu.Unlock()
		a.drop(tick.Symbol, tf, "out of order")
		return
	}

	var (
		emitClosed  model.Candle
		doEmitClose bool
		emitForming model.Candle
		doEmitForm  bool
		emitTick    model.Candle
		doEmitTick  bool
	)

	switch {
	case !st.hasForming:
		st.forming = newCandle(tick.Symbol, tf, boundary, tick.Price)
		st.hasForming = true
		emitForming = *st.forming
		doEmitForm = true

	case boundary == st.forming.StartTime:
		foldTick(st.forming, tick.Price)
		emitTick = *st.forming
		doEmitTick = true

	default: // boundary > st.forming.StartTime: close previous, open new
		closed := *st.forming
		closed.Forming = false
		st.closed = append(st.closed, closed)
		if len(st.closed) > st.capacity {
			st.closed = st.closed[len(st.closed)-st.capacity:]
		}
		emitClosed = closed
		doEmitClose = true

		st.forming = newCandle(tick.Symbol, tf, boundary, tick.Price)
		emitForming = *st.forming
		doEmitForm = true
	}
	a.mu.Unlock()

	if doEmitClose && a.OnClosed != nil {
		a.OnClosed(tick.Symbol, tf, emitClosed)
	}
	if doEmitForm && a.OnForming != nil {
		a.OnForming(tick.Symbol, tf, emitForming)
	}
	if doEmitTick && a.OnTick != nil {
		a.OnTick(tick.Symbol, tf, emitTick)
	}
}

func (a *Aggregator) drop(symbol string, tf int, reason string) {
	if a.OnDroppedTick != nil {
		a.OnDroppedTick(symbol, tf, reason)
	}
}

// GetClosed returns a snapshot copy of the closed-candle ring, oldest
// first.
func (a *Aggregator) GetClosed(symbol string, tf int) []model.Candle {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[key(symbol, tf)]
	if !ok {
		return nil
	}
	out := make([]model.Candle, len(st.closed))
	copy(out, st.closed)
	return out
}

// GetForming returns a snapshot copy of the forming candle, if any.
func (a *Aggregator) GetForming(symbol string, tf int) (model.Candle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[key(symbol, tf)]
	if !ok || !st.hasForming {
		return model.Candle{}, false
	}
	return *st.forming, true
}

// GetLastN returns up to the last n closed candles, oldest first.
func (a *Aggregator) GetLastN(symbol string, tf int, n int) []model.Candle {
	all := a.GetClosed(symbol, tf)
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Cleanup releases state for (symbol, timeframe).
func (a *Aggregator) Cleanup(symbol string, tf int) {
	a.mu.Lock()
	delete(a.states, key(symbol, tf))
	a.mu.Unlock()
}

func newCandle(symbol string, tf int, boundary int64, price float64) *model.Candle {
	return &model.Candle{
		Symbol:    symbol,
		TF:        tf,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		StartTime: boundary,
		TickCount: 1,
		Forming:   true,
	}
}

func foldTick(c *model.Candle, price float64) {
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
	c.TickCount++
}

func floorToBoundary(epoch int64, tf int) int64 {
	t := int64(tf)
	if t <= 0 {
		return epoch
	}
	return epoch - (epoch % t)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
