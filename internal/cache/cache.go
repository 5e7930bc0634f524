package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/gustycube/uplinks/internal/metrics"
)

// Cache stores encoded lookup results by key. Implementations treat every
// backend failure as a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte)
}

// Nop never stores anything
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Nop) Set(context.Context, string, []byte)        {}

// Memory is an in-process LRU with per-entry expiry
type Memory struct {
	lru *expirable.LRU[string, []byte]
}

func NewMemory(size int, ttl time.Duration) *Memory {
	return &Memory{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	return m.lru.Get(key)
}

func (m *Memory) Set(_ context.Context, key string, val []byte) {
	m.lru.Add(key, val)
}

// size returns the number of live entries
func (m *Memory) size() int { return m.lru.Len() }

// GetJSON decodes a cached value into out and reports whether it was found
func GetJSON(ctx context.Context, c Cache, key string, out interface{}) bool {
	b, ok := c.Get(ctx, key)
	if !ok {
		metrics.CacheTotal.WithLabelValues("miss").Inc()
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		metrics.CacheTotal.WithLabelValues("corrupt").Inc()
		return false
	}
	metrics.CacheTotal.WithLabelValues("hit").Inc()
	return true
}

// SetJSON encodes v and stores it under key
func SetJSON(ctx context.Context, c Cache, key string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.Set(ctx, key, b)
}
