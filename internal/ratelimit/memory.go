package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryCounter is a process-local Counter for single-node deployments and
// tests. Increments are serialized by a mutex, so concurrent callers sharing
// an identity never lose updates.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (c *MemoryCounter) Incr(ctx context.Context, key string, dur time.Duration) (int, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{count: 0, resetAt: now.Add(dur)}
		c.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt, nil
}

func (c *MemoryCounter) Peek(ctx context.Context, key string) (int, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[key]
	if !ok {
		return 0, time.Time{}, nil
	}
	return w.count, w.resetAt, nil
}

// SetClock overrides the time source. Test hook.
func (c *MemoryCounter) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
