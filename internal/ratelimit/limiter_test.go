package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type failingCounter struct{}

func (failingCounter) Incr(ctx context.Context, key string, dur time.Duration) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("store unreachable")
}

func (failingCounter) Peek(ctx context.Context, key string) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("store unreachable")
}

func TestLimiter_Admit(t *testing.T) {
	ctx := context.Background()

	t.Run("Within Limit", func(t *testing.T) {
		l := NewLimiter(NewMemoryCounter(), 3, time.Hour, false)

		for i := 1; i <= 3; i++ {
			res := l.Admit(ctx, "v1:10.0.0.1")
			assert.True(t, res.Allowed)
			assert.Equal(t, i, res.Used)
			assert.Equal(t, 3-i, res.Remaining)
		}
	})

	t.Run("Rejects Past Limit", func(t *testing.T) {
		l := NewLimiter(NewMemoryCounter(), 2, time.Hour, false)

		l.Admit(ctx, "v2:10.0.0.1")
		l.Admit(ctx, "v2:10.0.0.1")
		res := l.Admit(ctx, "v2:10.0.0.1")
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
		assert.True(t, res.ResetAt.After(time.Now()))
	})

	t.Run("Identities Are Independent", func(t *testing.T) {
		l := NewLimiter(NewMemoryCounter(), 1, time.Hour, false)

		assert.True(t, l.Admit(ctx, "a:1.1.1.1").Allowed)
		assert.False(t, l.Admit(ctx, "a:1.1.1.1").Allowed)
		assert.True(t, l.Admit(ctx, "b:1.1.1.1").Allowed)
	})

	t.Run("Window Expiry Restarts Count", func(t *testing.T) {
		counter := NewMemoryCounter()
		now := time.Now()
		counter.SetClock(func() time.Time { return now })

		l := NewLimiter(counter, 1, time.Hour, false)
		assert.True(t, l.Admit(ctx, "v:ip").Allowed)
		assert.False(t, l.Admit(ctx, "v:ip").Allowed)

		counter.SetClock(func() time.Time { return now.Add(2 * time.Hour) })
		res := l.Admit(ctx, "v:ip")
		assert.True(t, res.Allowed)
		assert.Equal(t, 1, res.Used)
	})
}

// Exactly L of N concurrent admissions may pass on a fresh identity,
// regardless of arrival order.
func TestLimiter_Atomicity(t *testing.T) {
	const limit = 5
	const callers = 50

	l := NewLimiter(NewMemoryCounter(), limit, time.Hour, false)

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit(context.Background(), "shared:ip").Allowed {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), admitted)
}

func TestLimiter_CounterOutage(t *testing.T) {
	ctx := context.Background()

	t.Run("Fail Open Admits With Full Allowance", func(t *testing.T) {
		l := NewLimiter(failingCounter{}, 3, time.Hour, true)
		res := l.Admit(ctx, "v:ip")
		assert.True(t, res.Allowed)
		// Usage is unknown during the outage; Remaining: 0 would make
		// well-behaved clients stop sending.
		assert.Equal(t, 3, res.Remaining)
	})

	t.Run("Fail Closed Rejects", func(t *testing.T) {
		l := NewLimiter(failingCounter{}, 3, time.Hour, false)
		res := l.Admit(ctx, "v:ip")
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
	})
}

func TestLimiter_Status(t *testing.T) {
	ctx := context.Background()
	l := NewLimiter(NewMemoryCounter(), 3, time.Hour, false)

	t.Run("Fresh Identity Has Full Allowance", func(t *testing.T) {
		res, err := l.Status(ctx, "fresh:ip")
		assert.NoError(t, err)
		assert.Equal(t, 3, res.Remaining)
		assert.Equal(t, 0, res.Used)
	})

	t.Run("Does Not Consume", func(t *testing.T) {
		l.Admit(ctx, "st:ip")
		before, _ := l.Status(ctx, "st:ip")
		after, _ := l.Status(ctx, "st:ip")
		assert.Equal(t, before.Used, after.Used)
		assert.Equal(t, 1, after.Used)
	})
}
