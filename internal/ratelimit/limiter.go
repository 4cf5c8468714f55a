// Package ratelimit bounds request volume per caller over a sliding window.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/zoobzio/clockz"
)

var ErrEmptyKey = errors.New("rate limit key is empty")

// Usage is what a Store reports for one admission attempt.
type Usage struct {
	Allowed bool
	// Count is the number of admitted requests inside the window, including
	// this one when it was admitted.
	Count int
	// Oldest is the timestamp of the earliest admitted request still inside
	// the window.
	Oldest time.Time
}

// Store keeps the per-key request log. Take must check and record
// atomically: a request is only recorded when it is admitted.
type Store interface {
	Take(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (Usage, error)
}

type Decision struct {
	Allowed    bool
	Limit      int
	Count      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type Limiter struct {
	store  Store
	window time.Duration
	max    int
	clock  clockz.Clock
}

func NewLimiter(store Store, window time.Duration, max int, clock clockz.Clock) *Limiter {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &Limiter{store: store, window: window, max: max, clock: clock}
}

func (l *Limiter) Window() time.Duration { return l.window }
func (l *Limiter) Max() int              { return l.max }

// Allow accounts one request for key.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyKey
	}

	now := l.clock.Now()
	usage, err := l.store.Take(ctx, key, now, l.window, l.max)
	if err != nil {
		return Decision{}, err
	}

	oldest := usage.Oldest
	if oldest.IsZero() {
		oldest = now
	}
	d := Decision{
		Allowed:   usage.Allowed,
		Limit:     l.max,
		Count:     usage.Count,
		Remaining: l.max - usage.Count,
		ResetAt:   oldest.Add(l.window),
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = d.ResetAt.Sub(now)
		if d.RetryAfter < time.Second {
			d.RetryAfter = time.Second
		}
	}
	return d, nil
}
