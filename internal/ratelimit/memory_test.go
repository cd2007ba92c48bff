package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryFixedWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := NewMemory(3, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		d, err := m.Allow(ctx, "user:1")
		if err != nil {
			t.Fatalf("Allow %d: %v", i, err)
		}
		if !d.Admitted {
			t.Fatalf("call %d should be admitted", i)
		}
		if d.Remaining != 3-i-1 {
			t.Fatalf("call %d: remaining = %d, want %d", i, d.Remaining, 3-i-1)
		}
	}

	d, err := m.Allow(ctx, "user:1")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Admitted {
		t.Fatalf("fourth call should be denied")
	}
	if d.Limit != 3 || d.Remaining != 0 {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if d.ResetSeconds <= 0 || d.ResetSeconds > 60 {
		t.Fatalf("reset out of range: %d", d.ResetSeconds)
	}
}

func TestMemoryWindowResets(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := NewMemory(1, WithClock(clock.Now))

	if d, _ := m.Allow(ctx, "k"); !d.Admitted {
		t.Fatalf("first call should be admitted")
	}
	if d, _ := m.Allow(ctx, "k"); d.Admitted {
		t.Fatalf("second call in window should be denied")
	}

	clock.Advance(59 * time.Second)
	if d, _ := m.Allow(ctx, "k"); d.Admitted {
		t.Fatalf("still inside window, should be denied")
	}

	clock.Advance(time.Second)
	d, _ := m.Allow(ctx, "k")
	if !d.Admitted {
		t.Fatalf("new window should admit")
	}
	if d.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", d.Remaining)
	}
}

func TestMemoryKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(1)

	if d, _ := m.Allow(ctx, "a"); !d.Admitted {
		t.Fatalf("key a should be admitted")
	}
	if d, _ := m.Allow(ctx, "b"); !d.Admitted {
		t.Fatalf("key b should be admitted")
	}
	if d, _ := m.Allow(ctx, "a"); d.Admitted {
		t.Fatalf("key a should now be denied")
	}
}

// Concurrent callers must never admit more than the limit in one window.
func TestMemoryConcurrent(t *testing.T) {
	ctx := context.Background()
	const limit = 10
	m := NewMemory(limit)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := m.Allow(ctx, "shared")
			if err != nil {
				t.Errorf("Allow: %v", err)
				return
			}
			if d.Admitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if admitted != limit {
		t.Fatalf("admitted %d, want %d", admitted, limit)
	}
}

func TestMemorySweep(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := NewMemory(5, WithClock(clock.Now))

	_, _ = m.Allow(ctx, "stale")
	clock.Advance(10 * time.Minute)
	_, _ = m.Allow(ctx, "fresh")

	m.Sweep(5 * time.Minute)

	m.mu.Lock()
	_, staleOK := m.counters["stale"]
	_, freshOK := m.counters["fresh"]
	m.mu.Unlock()
	if staleOK {
		t.Fatalf("stale counter should be swept")
	}
	if !freshOK {
		t.Fatalf("fresh counter should survive")
	}
}
