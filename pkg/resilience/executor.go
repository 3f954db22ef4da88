// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resilience wraps outbound calls with rate limiting, retry
// with exponential backoff, and an optional circuit breaker.
//
// The Executor is the single entry point: every external call in
// runlens goes through Execute, which acquires a rate limit token
// before each attempt, classifies failures as transient or terminal,
// and backs off between retries. Terminal failures surface
// immediately; exhausting all attempts on transient failures yields an
// *ExhaustedError so callers can tell "the service said no" from "the
// service kept timing out".
package resilience

import (
	"context"
	"math/rand"
	"time"
)

// Limiter gates attempts per service. *ratelimit.Registry satisfies
// it.
type Limiter interface {
	Acquire(ctx context.Context, service string) error
}

// Config controls retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the
	// initial one). Default: 3
	MaxAttempts int

	// InitialBackoff is the wait before the first retry. Default: 2s
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between retries. Default: 10s
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier for exponential backoff.
	// Default: 2.0
	BackoffFactor float64

	// JitterFactor is the maximum jitter as a fraction of backoff
	// (0-1). Adds randomness to prevent thundering herd. Default: 0.2
	JitterFactor float64

	// IsTransient overrides the default failure classifier.
	IsTransient func(error) bool

	// Breaker enables a per-service circuit breaker when non-nil.
	Breaker *BreakerConfig
}

// DefaultConfig returns the stock retry policy: three attempts, 2s
// initial backoff doubling up to 10s, 20% jitter, no breaker.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0.2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = d.BackoffFactor
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		c.JitterFactor = d.JitterFactor
	}
	if c.IsTransient == nil {
		c.IsTransient = IsTransient
	}
	return c
}

// Executor runs operations against named services with the configured
// retry policy.
//
// # Thread Safety
//
// Executor is safe for concurrent use.
//
// # Example
//
//	exec := resilience.NewExecutor(registry, resilience.DefaultConfig())
//	err := exec.Execute(ctx, ratelimit.ServiceWandb, func(ctx context.Context) error {
//	    return client.fetchRuns(ctx)
//	})
type Executor struct {
	limiter  Limiter
	config   Config
	breakers *breakerRegistry

	// sleep is swapped out by tests to observe backoff without real
	// waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor. A nil limiter disables rate
// limiting, which is intended for tests and offline analysis paths.
func NewExecutor(limiter Limiter, config Config) *Executor {
	e := &Executor{
		limiter: limiter,
		config:  config.withDefaults(),
		sleep:   sleepContext,
	}
	if config.Breaker != nil {
		e.breakers = newBreakerRegistry(*config.Breaker)
	}
	return e
}

// Execute runs op with rate limiting and retries.
//
// # Description
//
// Each attempt first consumes a rate limit token for the service, so
// retries cannot stampede past the service's budget. A terminal error
// (or one the classifier does not recognize) is returned as-is after
// the first attempt that produced it. Transient errors are retried
// with exponential backoff until attempts run out, at which point an
// *ExhaustedError wrapping the last failure is returned.
//
// The context bounds the whole call including backoff waits; pass a
// deadline to impose an overall budget distinct from any per-attempt
// timeout inside op.
//
// # Inputs
//
//   - ctx: Cancellation and overall deadline. Must not be nil.
//   - service: Logical service name for rate limiting and breaker
//     lookup.
//   - op: The operation to run. Called once per attempt.
//
// # Outputs
//
//   - error: nil on success; ctx.Err() on cancellation; the terminal
//     error; ErrCircuitOpen; or *ExhaustedError.
func (e *Executor) Execute(ctx context.Context, service string, op func(context.Context) error) error {
	var br *Breaker
	if e.breakers != nil {
		br = e.breakers.get(service)
	}

	backoff := e.config.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if br != nil && !br.Allow() {
			return ErrCircuitOpen
		}

		// Rate limit gate applies to every attempt, retries included.
		if e.limiter != nil {
			if err := e.limiter.Acquire(ctx, service); err != nil {
				return err
			}
		}

		err := op(ctx)
		if err == nil {
			if br != nil {
				br.RecordSuccess()
			}
			return nil
		}
		if br != nil {
			br.RecordFailure()
		}
		lastErr = err

		if !e.config.IsTransient(err) {
			return err
		}
		if attempt == e.config.MaxAttempts {
			break
		}

		wait := applyJitter(backoff, e.config.JitterFactor)
		if err := e.sleep(ctx, wait); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, e.config.BackoffFactor, e.config.MaxBackoff)
	}

	return &ExhaustedError{Service: service, Attempts: e.config.MaxAttempts, Err: lastErr}
}

// applyJitter spreads the backoff over [base*(1-jitter), base*(1+jitter)].
func applyJitter(base time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return base
	}
	jitter := (rand.Float64()*2 - 1) * jitterFactor
	return time.Duration(float64(base) * (1 + jitter))
}

// nextBackoff grows the backoff geometrically up to max.
func nextBackoff(current time.Duration, factor float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		return max
	}
	return next
}

// sleepContext waits for d or until the context ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
