package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"signalbot/internal/model"

	"github.com/gorilla/websocket"
)

// Reconnect parameters per spec §6: "exponential-ish backoff starting
// ~5 s, capped at a small multiplier, up to 10 attempts before emitting
// a terminal event; ping keep-alive every 30 s." Grounded on
// pkg/smartconnect/websocket.go's SmartWebSocketV3 retry/heartbeat
// fields, generalized from its Angel One binary protocol to plain JSON
// tick/candle messages (this domain has no broker handshake to
// replicate; §1 Non-goals excludes authentication).
const (
	baseReconnectDelay     = 5 * time.Second
	maxReconnectMultiplier = 4
	maxReconnectAttempts   = 10
	pingInterval           = 30 * time.Second
)

// WSConfig configures the live WebSocket FeedAdapter.
type WSConfig struct {
	WSURL      string // e.g. "wss://feed.example.com/stream"
	HistoryURL string // REST endpoint returning candle history JSON
	HTTPClient *http.Client
}

// wireCandle is the REST wire shape FetchHistory decodes, kept
// separate from model.Candle so the HTTP boundary can evolve without
// touching the domain type.
type wireCandle struct {
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	StartTime int64   `json:"startTime"`
}

// WSFeed is the live FeedAdapter (C1): a gorilla/websocket tick stream
// plus a REST historical-candle fetch, with automatic reconnect and
// resubscription of every symbol that had an active listener.
type WSFeed struct {
	cfg    WSConfig
	dialer *websocket.Dialer
	mux    *multiplexer

	mu   sync.Mutex
	conn *websocket.Conn

	// OnConnected/OnDisconnected/OnTerminal let the caller (e.g.
	// cmd/signalengine) rehydrate sessions (spec §6 reconnect hook)
	// and surface a terminal failure after exhausting retries.
	OnConnected    func()
	OnDisconnected func()
	OnTerminal     func()
}

// NewWSFeed builds a live feed. Connect must be called before the feed
// delivers any ticks.
func NewWSFeed(cfg WSConfig) *WSFeed {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	f := &WSFeed{cfg: cfg, dialer: websocket.DefaultDialer}
	f.mux = newMultiplexer(f.wireSubscribe, f.wireUnsubscribe)
	return f
}

// Connect dials the feed and starts the read and heartbeat loops.
// ctx cancellation tears both down; a connection drop triggers
// reconnectWithBackoff in the background.
func (f *WSFeed) Connect(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.cfg.WSURL, err)
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	go f.readLoop(ctx)
	go f.heartbeatLoop(ctx)
	if f.OnConnected != nil {
		f.OnConnected()
	}
	return nil
}

func (f *WSFeed) readLoop(ctx context.Context) {
	for {
		f.mu.Lock()
		conn := f.conn
		f.mu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if f.OnDisconnected != nil {
				f.OnDisconnected()
			}
			f.reconnectWithBackoff(ctx)
			return
		}

		if string(raw) == "pong" {
			continue
		}

		var tick model.Tick
		if err := json.Unmarshal(raw, &tick); err != nil {
			log.Printf("[feed] dropping unparseable message: %v", err)
			continue
		}
		if tick.Symbol == "" || !tick.Valid() {
			continue
		}
		f.mux.dispatch(tick)
	}
}

func (f *WSFeed) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.Lock()
			conn := f.conn
			f.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				log.Printf("[feed] ping failed: %v", err)
				return
			}
		}
	}
}

// reconnectWithBackoff retries the dial up to maxReconnectAttempts,
// with delay doubling each attempt and capped at
// baseReconnectDelay*maxReconnectMultiplier. On success it resubscribes
// every symbol that still has listeners and fires OnConnected; on
// exhaustion it fires OnTerminal.
func (f *WSFeed) reconnectWithBackoff(ctx context.Context) {
	delay := baseReconnectDelay
	delayCap := baseReconnectDelay * maxReconnectMultiplier

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		conn, _, err := f.dialer.DialContext(ctx, f.cfg.WSURL, nil)
		if err == nil {
			f.mu.Lock()
			f.conn = conn
			f.mu.Unlock()

			for _, symbol := range f.mux.activeSymbols() {
				if err := f.wireSubscribe(symbol); err != nil {
					log.Printf("[feed] resubscribe %s failed: %v", symbol, err)
				}
			}

			go f.readLoop(ctx)
			go f.heartbeatLoop(ctx)
			if f.OnConnected != nil {
				f.OnConnected()
			}
			return
		}

		log.Printf("[feed] reconnect attempt %d/%d failed: %v", attempt, maxReconnectAttempts, err)
		delay *= 2
		if delay > delayCap {
			delay = delayCap
		}
	}

	if f.OnTerminal != nil {
		f.OnTerminal()
	}
}

type controlMessage struct {
	Action int    `json:"action"` // 1 = subscribe, 0 = unsubscribe
	Symbol string `json:"symbol"`
}

func (f *WSFeed) wireSubscribe(symbol string) error {
	return f.writeControl(controlMessage{Action: 1, Symbol: symbol})
}

func (f *WSFeed) wireUnsubscribe(symbol string) {
	if err := f.writeControl(controlMessage{Action: 0, Symbol: symbol}); err != nil {
		log.Printf("[feed] unsubscribe %s failed: %v", symbol, err)
	}
}

func (f *WSFeed) writeControl(msg controlMessage) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("feed: not connected")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Subscribe multiplexes symbol's live tick stream (spec §6: first
// subscriber opens the wire subscription, further subscribers share
// it, last unsubscribe releases it).
func (f *WSFeed) Subscribe(symbol string) (<-chan model.Tick, func(), error) {
	return f.mux.subscribe(symbol)
}

// FetchHistory fetches n ascending, non-forming candles from the REST
// history endpoint, grounded on pkg/smartconnect/client.go's
// doRequest/GetCandleData pattern (query-param GET, JSON decode),
// simplified to this domain's plain-float64 candle shape.
func (f *WSFeed) FetchHistory(ctx context.Context, symbol string, timeframe int, n int) ([]model.Candle, error) {
	reqURL := f.cfg.HistoryURL
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("timeframe", strconv.Itoa(timeframe))
	q.Set("count", strconv.Itoa(n))
	if strings.Contains(reqURL, "?") {
		reqURL += "&" + q.Encode()
	} else {
		reqURL += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed: history request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed: history request failed: status=%d body=%s", resp.StatusCode, raw)
	}

	var wire []wireCandle
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("feed: couldn't parse history response: %w", err)
	}

	out := make([]model.Candle, len(wire))
	for i, c := range wire {
		out[i] = model.Candle{
			Symbol:    symbol,
			TF:        timeframe,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			StartTime: c.StartTime,
			TickCount: 1,
			Forming:   false,
		}
	}
	return out, nil
}
