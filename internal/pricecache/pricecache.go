// Package pricecache holds the most recent tick price per symbol, the
// lookup WinLossTracker (internal/winloss) uses to resolve a pending
// signal's exit price at expiry (spec §4.10).
//
// Grounded on the teacher's gateway.Hub latest-value cache (a plain
// RWMutex-guarded map, no eviction beyond overwrite-by-key), narrowed
// here to a single float64 per symbol instead of a raw JSON payload per
// channel.
package pricecache

import "sync"

type Cache struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func New() *Cache {
	return &Cache{prices: make(map[string]float64)}
}

// Set records the latest observed price for symbol.
func (c *Cache) Set(symbol string, price float64) {
	c.mu.Lock()
	c.prices[symbol] = price
	c.mu.Unlock()
}

// Get returns the latest cached price for symbol, or ok=false if none
// has been observed yet.
func (c *Cache) Get(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[symbol]
	return p, ok
}
