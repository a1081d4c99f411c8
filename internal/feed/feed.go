// Package feed implements C1 FeedAdapter (spec §6 "Feed boundary"): an
// ordered tick stream per symbol plus historical candle fetch, with
// subscription multiplexing (first subscriber opens the wire
// subscription, further subscribers share it, last unsubscribe closes
// it) shared by every transport-specific implementation.
package feed

import (
	"context"
	"sync"

	"signalbot/internal/model"
)

// Adapter is the contract internal/session.Manager depends on (as
// session.Feed); kept here as the canonical definition since C1 is an
// external boundary with potentially more than one implementation.
type Adapter interface {
	FetchHistory(ctx context.Context, symbol string, timeframe int, n int) ([]model.Candle, error)
	Subscribe(symbol string) (<-chan model.Tick, func(), error)
}

// multiplexer fans a single wire subscription per symbol out to any
// number of local listeners, per spec §6: "first subscriber starts the
// wire subscription, further subscribers share it; last unsubscribe
// releases". wireSubscribe/wireUnsubscribe are supplied by the
// transport (WebSocket control frames, or the simulated generator).
type multiplexer struct {
	mu              sync.Mutex
	streams         map[string]*stream
	wireSubscribe   func(symbol string) error
	wireUnsubscribe func(symbol string)
}

type stream struct {
	listeners map[int]chan model.Tick
	nextID    int
}

func newMultiplexer(wireSubscribe func(string) error, wireUnsubscribe func(string)) *multiplexer {
	return &multiplexer{
		streams:         make(map[string]*stream),
		wireSubscribe:   wireSubscribe,
		wireUnsubscribe: wireUnsubscribe,
	}
}

// subscribe registers a new local listener for symbol, opening the
// wire subscription if this is the first one.
func (m *multiplexer) subscribe(symbol string) (<-chan model.Tick, func(), error) {
	m.mu.Lock()
	s, exists := m.streams[symbol]
	if !exists {
		s = &stream{listeners: make(map[int]chan model.Tick)}
		if m.wireSubscribe != nil {
			if err := m.wireSubscribe(symbol); err != nil {
				m.mu.Unlock()
				return nil, nil, err
			}
		}
		m.streams[symbol] = s
	}
	id := s.nextID
	s.nextID++
	ch := make(chan model.Tick, 64)
	s.listeners[id] = ch
	m.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			st, ok := m.streams[symbol]
			if !ok {
				return
			}
			delete(st.listeners, id)
			if len(st.listeners) == 0 {
				delete(m.streams, symbol)
				if m.wireUnsubscribe != nil {
					m.wireUnsubscribe(symbol)
				}
			}
		})
	}
	return ch, unsubscribe, nil
}

// dispatch delivers tick to every listener subscribed to its symbol,
// dropping on a full listener channel rather than blocking the feed.
func (m *multiplexer) dispatch(tick model.Tick) {
	m.mu.Lock()
	st, ok := m.streams[tick.Symbol]
	var listeners []chan model.Tick
	if ok {
		listeners = make([]chan model.Tick, 0, len(st.listeners))
		for _, ch := range st.listeners {
			listeners = append(listeners, ch)
		}
	}
	m.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- tick:
		default:
		}
	}
}

// activeSymbols reports which symbols currently have at least one
// listener, used by transports to know what to resubscribe to after a
// reconnect (spec §6 reconnect hook).
func (m *multiplexer) activeSymbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.streams))
	for symbol := range m.streams {
		out = append(out, symbol)
	}
	return out
}
