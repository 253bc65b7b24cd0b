// Package ratelimit admits or rejects requests per client key under a fixed
// window budget of N requests per window.
//
// One Limiter is shared by every rate-limited endpoint; the budget is keyed
// by client identity only, so /execute, /chat and /analyze draw from the
// same allowance.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimited marks a request rejected because its client exhausted the
// budget of the current window.
var ErrRateLimited = errors.New("rate limit exceeded")

// Store counts hits in fixed windows. Implementations must be safe for
// concurrent use.
type Store interface {
	// Incr records one hit for key and returns the hit count of the current
	// window (including this one) and the time until that window resets.
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Err returns ErrRateLimited for a rejected decision and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrRateLimited
}

// Limiter enforces Limit requests per Window for each client key.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
}

// New creates a limiter backed by store.
func New(store Store, limit int, window time.Duration) *Limiter {
	return &Limiter{store: store, limit: limit, window: window}
}

// Limit returns the configured request budget per window.
func (l *Limiter) Limit() int { return l.limit }

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Allow records a request for key and reports whether it fits in the
// current window. A store error is returned as-is with a zero decision; the
// caller decides whether to fail open.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	count, resetIn, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		return Decision{}, err
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Allowed:   count <= int64(l.limit),
		Limit:     l.limit,
		Remaining: remaining,
	}
	if !d.Allowed {
		d.RetryAfter = resetIn
	}
	return d, nil
}
