// Package bus implements the event plumbing between the feed/session
// pipeline stages (spec §5 Concurrency & Resource Model): in-process
// fan-out for the tick/forming/closed candle streams each session
// subscribes to, and a Redis-PubSub-backed variant for the UI-facing
// signal/result/warning events so a second process (e.g. a bot API
// instance) can observe them.
//
// Grounded on internal/marketdata/bus/fanout.go's single-input,
// N-output, drop-on-full broadcast shape, generalized from a
// model.Candle-only channel to any event type via generics.
package bus

import (
	"context"
	"log"
	"sync"
)

// FanOut broadcasts values of type T from one input channel to any
// number of subscriber channels. A full subscriber channel causes the
// value to be dropped for that subscriber only, so one slow consumer
// never blocks the others or the producer.
type FanOut[T any] struct {
	mu      sync.RWMutex
	outputs []chan T
	bufSize int

	// OnDrop is called with the 0-based subscriber index when a value
	// is dropped for that subscriber.
	OnDrop func(subscriberIdx int)
}

// New creates a FanOut whose subscriber channels are buffered to
// outputBufferSize.
func New[T any](outputBufferSize int) *FanOut[T] {
	return &FanOut[T]{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new output channel.
func (f *FanOut[T]) Subscribe() <-chan T {
	ch := make(chan T, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.mu.Unlock()
	return ch
}

// Run reads from input and fans out to all subscribers until ctx is
// cancelled or input is closed, at which point every subscriber
// channel is closed.
func (f *FanOut[T]) Run(ctx context.Context, input <-chan T) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-input:
			if !ok {
				return
			}
			f.Publish(v)
		}
	}
}

// Publish fans v out to every subscriber directly, for producers that
// call back synchronously (e.g. internal/aggregator's OnForming/OnClosed
// callbacks) rather than owning an input channel for Run to drain.
func (f *FanOut[T]) Publish(v T) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for i, ch := range f.outputs {
		select {
		case ch <- v:
		default:
			if f.OnDrop != nil {
				f.OnDrop(i)
			} else {
				log.Printf("[bus] subscriber %d full, dropping event", i)
			}
		}
	}
}

// ChannelStat reports saturation for one subscriber channel.
type ChannelStat struct {
	Len int
	Cap int
}

func (f *FanOut[T]) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
