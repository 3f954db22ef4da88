// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ratelimit provides client-side token bucket rate limiting
// for outbound calls to external services.
//
// Each service gets its own bucket from a Registry; buckets never
// interact, so consuming the wandb budget leaves the anthropic budget
// untouched. Refill is lazy: tokens accrue as a function of elapsed
// time on each acquire attempt, so an idle bucket costs nothing.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Limit describes the shape of one bucket.
type Limit struct {
	// RequestsPerMinute is the sustained refill rate.
	RequestsPerMinute float64

	// Burst is the bucket capacity, i.e. the number of requests that
	// can be issued back to back after a long idle period. Zero means
	// RequestsPerMinute.
	Burst float64
}

// PerMinute returns a Limit with the given sustained rate and a burst
// of one minute's worth of requests.
func PerMinute(requests float64) Limit {
	return Limit{RequestsPerMinute: requests}
}

// Bucket is a token bucket. Tokens are fractional so that refill
// arithmetic does not lose partial tokens between attempts.
//
// # Thread Safety
//
// Bucket is safe for concurrent use. The mutex is held only for the
// refill-and-decrement step; waiting for tokens happens outside the
// lock so one blocked caller never serializes the others.
type Bucket struct {
	capacity float64
	rate     float64 // tokens per second

	mu     sync.Mutex
	tokens float64
	last   time.Time

	// now is swapped out by tests to drive refill with a fake clock.
	now func() time.Time
}

// NewBucket creates a full bucket for the given limit.
//
// A non-positive rate yields a bucket that never refills; its burst
// can still be spent, which is the degenerate "n calls ever" limiter.
func NewBucket(limit Limit) *Bucket {
	burst := limit.Burst
	if burst <= 0 {
		burst = limit.RequestsPerMinute
	}
	if burst < 1 {
		burst = 1
	}
	b := &Bucket{
		capacity: burst,
		rate:     limit.RequestsPerMinute / 60.0,
		tokens:   burst,
		now:      time.Now,
	}
	b.last = b.now()
	return b
}

// Acquire blocks until a token is available, then consumes it.
//
// # Inputs
//
//   - ctx: Cancellation and deadline. ctx.Err() is returned if the
//     context ends before a token frees up.
//
// # Outputs
//
//   - error: nil once a token was consumed.
func (b *Bucket) Acquire(ctx context.Context) error {
	for {
		ok, wait := b.take()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Re-check; another caller may have taken the token that
			// accrued while we slept.
		}
	}
}

// TryAcquire consumes a token if one is available right now. It never
// blocks.
func (b *Bucket) TryAcquire() bool {
	ok, _ := b.take()
	return ok
}

// Tokens reports the current token count after refill. Intended for
// introspection endpoints and tests.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(b.now())
	return b.tokens
}

// take refills, then consumes one token if possible. On failure it
// returns how long until the next token accrues at the current rate.
func (b *Bucket) take() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(b.now())
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}

	if b.rate <= 0 {
		// Never refills; wake rarely just to observe cancellation.
		return false, time.Second
	}

	deficit := 1 - b.tokens
	wait := time.Duration(deficit / b.rate * float64(time.Second))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return false, wait
}

// refill credits tokens for the time elapsed since the last refill.
// Must be called with the lock held.
func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.rate)
	b.last = now
}
