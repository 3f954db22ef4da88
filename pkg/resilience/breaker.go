// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import (
	"sync"
	"time"
)

// CircuitState is the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed allows requests through normally.
	CircuitClosed CircuitState = iota

	// CircuitOpen rejects all requests immediately.
	CircuitOpen

	// CircuitHalfOpen allows limited requests to test recovery.
	CircuitHalfOpen
)

// String returns the human-readable name for the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the optional per-service circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before
	// opening. Default: 5
	FailureThreshold int

	// ResetTimeout is how long to stay open before allowing a probe.
	// Default: 30s
	ResetTimeout time.Duration

	// HalfOpenMaxRequests is the max in-flight probes while half-open.
	// Default: 2
	HalfOpenMaxRequests int

	// SuccessThreshold is consecutive successes in half-open required
	// to close. Default: 2
	SuccessThreshold int
}

// DefaultBreakerConfig returns the stock breaker thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:    5,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxRequests: 2,
		SuccessThreshold:    2,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = d.HalfOpenMaxRequests
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	return c
}

// Breaker tracks consecutive failures for one service and trips open
// past the threshold. The executor consults it before each attempt
// when breakers are enabled.
//
// Thread Safety: safe for concurrent use.
type Breaker struct {
	config BreakerConfig

	mu               sync.Mutex
	state            CircuitState
	failures         int
	successes        int
	halfOpenRequests int
	lastFailure      time.Time
}

// NewBreaker creates a breaker in the closed state.
func NewBreaker(config BreakerConfig) *Breaker {
	return &Breaker{config: config.withDefaults()}
}

// Allow reports whether a request may proceed, counting half-open
// probes against the configured maximum.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return true

	case CircuitOpen:
		if time.Since(b.lastFailure) >= b.config.ResetTimeout {
			b.transitionTo(CircuitHalfOpen)
			b.halfOpenRequests = 1
			return true
		}
		return false

	case CircuitHalfOpen:
		if b.halfOpenRequests < b.config.HalfOpenMaxRequests {
			b.halfOpenRequests++
			return true
		}
		return false

	default:
		return false
	}
}

// RecordSuccess notes a successful request. Enough successes in
// half-open close the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		b.failures = 0

	case CircuitHalfOpen:
		b.successes++
		b.failures = 0
		if b.successes >= b.config.SuccessThreshold {
			b.transitionTo(CircuitClosed)
		}
	}
}

// RecordFailure notes a failed request. Threshold failures open the
// circuit; any failure in half-open reopens it.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = time.Now()

	switch b.state {
	case CircuitClosed:
		b.failures++
		b.successes = 0
		if b.failures >= b.config.FailureThreshold {
			b.transitionTo(CircuitOpen)
		}

	case CircuitHalfOpen:
		b.transitionTo(CircuitOpen)
	}
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to closed. For tests and manual
// intervention.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.failures = 0
	b.successes = 0
	b.halfOpenRequests = 0
}

// transitionTo changes state. Must be called with the lock held.
func (b *Breaker) transitionTo(state CircuitState) {
	b.state = state
	b.successes = 0
	b.halfOpenRequests = 0
	if state == CircuitClosed {
		b.failures = 0
	}
}

// breakerRegistry lazily creates one breaker per service.
type breakerRegistry struct {
	config   BreakerConfig
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

func newBreakerRegistry(config BreakerConfig) *breakerRegistry {
	return &breakerRegistry{
		config:   config,
		breakers: make(map[string]*Breaker),
	}
}

func (r *breakerRegistry) get(service string) *Breaker {
	r.mu.RLock()
	b, exists := r.breakers[service]
	r.mu.RUnlock()

	if exists {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, exists = r.breakers[service]; exists {
		return b
	}

	b = NewBreaker(r.config)
	r.breakers[service] = b
	return b
}
