package feed

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"signalbot/internal/model"
)

// SimFeed is a deterministic simulated FeedAdapter, grounded on the
// teacher's internal/marketdata/wssim staging adapter: since the real
// upstream feed is an external collaborator (spec §1, out of scope),
// this drives the aggregator/session/win-loss loop for local
// development and tests without a live broker connection.
//
// Each symbol gets its own seeded random walk so repeated runs with the
// same Seed produce the same candle history and tick sequence.
type SimFeed struct {
	Seed       int64
	TickPeriod time.Duration // defaults to 200ms

	mux *multiplexer

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	last    map[string]float64
}

// NewSimFeed builds a simulated feed. seed makes history and tick
// generation reproducible across runs.
func NewSimFeed(seed int64) *SimFeed {
	f := &SimFeed{
		Seed:       seed,
		TickPeriod: 200 * time.Millisecond,
		cancels:    make(map[string]context.CancelFunc),
		last:       make(map[string]float64),
	}
	f.mux = newMultiplexer(f.startGenerator, f.stopGenerator)
	return f
}

// symbolRNG gives each symbol its own deterministic stream, seeded from
// the feed seed and the symbol's bytes.
func (f *SimFeed) symbolRNG(symbol string) *rand.Rand {
	h := f.Seed
	for _, c := range symbol {
		h = h*131 + int64(c)
	}
	return rand.New(rand.NewSource(h))
}

// FetchHistory synthesizes n ascending, non-forming candles ending
// "now", with a basic random walk around a symbol-stable base price.
func (f *SimFeed) FetchHistory(ctx context.Context, symbol string, timeframe int, n int) ([]model.Candle, error) {
	rng := f.symbolRNG(symbol)
	base := 1.0 + rng.Float64()*99.0

	now := time.Now().Unix()
	lastStart := now - now%int64(timeframe) - int64(timeframe)

	out := make([]model.Candle, n)
	price := base
	for i := 0; i < n; i++ {
		open := price
		delta := (rng.Float64() - 0.5) * base * 0.004
		close := math.Max(0.0001, open+delta)
		high := math.Max(open, close) + rng.Float64()*base*0.001
		low := math.Min(open, close) - rng.Float64()*base*0.001
		out[i] = model.Candle{
			Symbol:    symbol,
			TF:        timeframe,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			StartTime: lastStart - int64(n-1-i)*int64(timeframe),
			TickCount: 1,
			Forming:   false,
		}
		price = close
	}

	f.mu.Lock()
	f.last[symbol] = price
	f.mu.Unlock()

	return out, nil
}

// Subscribe multiplexes symbol's simulated tick stream.
func (f *SimFeed) Subscribe(symbol string) (<-chan model.Tick, func(), error) {
	return f.mux.subscribe(symbol)
}

func (f *SimFeed) startGenerator(symbol string) error {
	ctx, cancel := context.WithCancel(context.Background())
	f.mu.Lock()
	f.cancels[symbol] = cancel
	price, ok := f.last[symbol]
	f.mu.Unlock()
	if !ok {
		rng := f.symbolRNG(symbol)
		price = 1.0 + rng.Float64()*99.0
	}

	rng := f.symbolRNG(symbol + ":ticks")
	go func() {
		ticker := time.NewTicker(f.TickPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				price = math.Max(0.0001, price+(rng.Float64()-0.5)*price*0.0015)
				f.mu.Lock()
				f.last[symbol] = price
				f.mu.Unlock()
				f.mux.dispatch(model.Tick{Symbol: symbol, Price: price, Epoch: now.Unix()})
			}
		}
	}()
	return nil
}

func (f *SimFeed) stopGenerator(symbol string) {
	f.mu.Lock()
	cancel, ok := f.cancels[symbol]
	delete(f.cancels, symbol)
	f.mu.Unlock()
	if ok {
		cancel()
	}
}
