package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// Counter is the shared atomic store behind the limiter. Incr must be an
// atomic increment-and-get: concurrent calls for the same key may never lose
// updates, and an expired window is restarted with count 1 in the same
// operation. Peek reads the current window without consuming an admission.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)
	Peek(ctx context.Context, key string) (count int, resetAt time.Time, err error)
}

// Result reports the outcome of one admission check.
type Result struct {
	Allowed   bool
	Limit     int
	Used      int
	Remaining int
	ResetAt   time.Time
}

// ResetIn is the time left until the window resets, floored at zero.
func (r Result) ResetIn(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Limiter applies a sliding-window admission policy per visitor identity.
// When the counter store is unreachable the limiter fails in the configured
// direction: fail-open admits the request, fail-closed rejects it. Either
// way the outage is logged at Error level.
type Limiter struct {
	counter  Counter
	limit    int
	window   time.Duration
	failOpen bool
}

func NewLimiter(counter Counter, limit int, window time.Duration, failOpen bool) *Limiter {
	return &Limiter{counter: counter, limit: limit, window: window, failOpen: failOpen}
}

// Admit consumes one admission for identity and reports whether it is within
// the window limit.
func (l *Limiter) Admit(ctx context.Context, identity string) Result {
	count, resetAt, err := l.counter.Incr(ctx, identity, l.window)
	if err != nil {
		slog.ErrorContext(ctx, "rate limit counter unreachable", "error", err, "fail_open", l.failOpen)
		// Usage is unknown during an outage. When admitting, report a full
		// allowance so clients do not self-throttle on Remaining: 0.
		remaining := 0
		if l.failOpen {
			remaining = l.limit
		}
		return Result{
			Allowed:   l.failOpen,
			Limit:     l.limit,
			Remaining: remaining,
			ResetAt:   time.Now().Add(l.window),
		}
	}

	return l.result(count, resetAt)
}

// Status reads the current window for identity without consuming an
// admission. A missing window reports a full allowance.
func (l *Limiter) Status(ctx context.Context, identity string) (Result, error) {
	count, resetAt, err := l.counter.Peek(ctx, identity)
	if err != nil {
		return Result{}, err
	}
	if resetAt.IsZero() || time.Now().After(resetAt) {
		return Result{Allowed: true, Limit: l.limit, Used: 0, Remaining: l.limit, ResetAt: time.Now().Add(l.window)}, nil
	}
	return l.result(count, resetAt), nil
}

func (l *Limiter) result(count int, resetAt time.Time) Result {
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Used:      count,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
