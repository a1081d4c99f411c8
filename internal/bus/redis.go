package bus

import (
	"context"
	"encoding/json"
	"log"

	"signalbot/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// RedisPublisher fans SignalEvent/OutcomeEvent/WarningEvent out to
// Redis PubSub channels, so a second process (e.g. a separate bot-API
// instance) can observe the same events without sharing this process's
// in-memory Hub. Grounded on internal/store/redis/writer.go's
// Publish-per-event-channel pattern.
type RedisPublisher struct {
	client *goredis.Client
}

func NewRedisPublisher(client *goredis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func signalChannel(symbol string, timeframe int) string {
	return "signalbot:signal:" + symbol + ":" + itoa(timeframe)
}

func outcomeChannel(symbol string, timeframe int) string {
	return "signalbot:outcome:" + symbol + ":" + itoa(timeframe)
}

func warningChannel(sessionID string) string {
	return "signalbot:warning:" + sessionID
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

// PublishSignal publishes a SignalEvent to its symbol/timeframe channel.
func (p *RedisPublisher) PublishSignal(ctx context.Context, result model.SignalResult) {
	data, err := json.Marshal(result)
	if err != nil {
		log.Printf("[bus/redis] marshal signal: %v", err)
		return
	}
	if err := p.client.Publish(ctx, signalChannel(result.Symbol, result.Timeframe), data).Err(); err != nil {
		log.Printf("[bus/redis] publish signal: %v", err)
	}
}

// PublishOutcome publishes an OutcomeEvent to its symbol/timeframe channel.
func (p *RedisPublisher) PublishOutcome(ctx context.Context, e OutcomeEvent) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("[bus/redis] marshal outcome: %v", err)
		return
	}
	if err := p.client.Publish(ctx, outcomeChannel(e.Symbol, e.Timeframe), data).Err(); err != nil {
		log.Printf("[bus/redis] publish outcome: %v", err)
	}
}

// PublishWarning publishes a WarningEvent to its session's channel.
func (p *RedisPublisher) PublishWarning(ctx context.Context, e WarningEvent) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("[bus/redis] marshal warning: %v", err)
		return
	}
	if err := p.client.Publish(ctx, warningChannel(e.SessionID), data).Err(); err != nil {
		log.Printf("[bus/redis] publish warning: %v", err)
	}
}

// Relay subscribes hub's output fan-outs and republishes every event to
// Redis, bridging the in-process Hub to cross-process subscribers.
// Blocks until ctx is cancelled.
func (p *RedisPublisher) Relay(ctx context.Context, hub *Hub) {
	signals := hub.Signals.Subscribe()
	outcomes := hub.Outcomes.Subscribe()
	warnings := hub.Warnings.Subscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-signals:
			if !ok {
				return
			}
			p.PublishSignal(ctx, e.Result)
		case e, ok := <-outcomes:
			if !ok {
				return
			}
			p.PublishOutcome(ctx, e)
		case e, ok := <-warnings:
			if !ok {
				return
			}
			p.PublishWarning(ctx, e)
		}
	}
}
