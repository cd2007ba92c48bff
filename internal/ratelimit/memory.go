package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	count int
	start time.Time
}

// Memory is a process-local fixed-window limiter. Counters live in a
// single mutex-guarded map, so concurrent calls for one key serialize
// their read-modify-write and never lose an increment. Limits are per
// process instance: behind a load balancer each instance enforces its own
// share of the nominal limit.
type Memory struct {
	limit int
	now   func() time.Time

	mu       sync.Mutex
	counters map[string]counter
}

// MemoryOption configures the in-memory limiter.
type MemoryOption func(*Memory)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) MemoryOption {
	return func(m *Memory) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewMemory builds a limiter admitting at most limit calls per key per
// window.
func NewMemory(limit int, opts ...MemoryOption) *Memory {
	m := &Memory{
		limit:    limit,
		now:      time.Now,
		counters: make(map[string]counter),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[key]
	if !ok || now.Sub(c.start) >= Window {
		c = counter{start: now}
	}
	d := Decision{Limit: m.limit}
	if c.count < m.limit {
		c.count++
		d.Admitted = true
	}
	m.counters[key] = c

	d.Remaining = m.limit - c.count
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	reset := Window - now.Sub(c.start)
	if reset < 0 {
		reset = 0
	}
	d.ResetSeconds = int(reset / time.Second)
	return d, nil
}

// Sweep drops counters whose window ended more than olderThan ago so the
// map does not grow without bound. Callers run it on a ticker.
func (m *Memory) Sweep(olderThan time.Duration) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, c := range m.counters {
		if now.Sub(c.start) > Window+olderThan {
			delete(m.counters, key)
		}
	}
}
