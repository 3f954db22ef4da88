// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// fastConfig retries without meaningful waiting.
func fastConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  2.0,
	}
}

// countingLimiter records Acquire calls per service.
type countingLimiter struct {
	acquires int32
	err      error
}

func (l *countingLimiter) Acquire(ctx context.Context, service string) error {
	atomic.AddInt32(&l.acquires, 1)
	return l.err
}

func TestExecute_SuccessOnFirstAttempt(t *testing.T) {
	exec := NewExecutor(nil, fastConfig())

	var calls int32
	err := exec.Execute(context.Background(), "svc", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestExecute_TransientFailuresThenSuccess(t *testing.T) {
	exec := NewExecutor(nil, fastConfig())

	var calls int32
	err := exec.Execute(context.Background(), "svc", func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) <= 2 {
			return fmt.Errorf("fetching runs: %w", ErrConnection)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("op called %d times, want 3 (two retries then success)", calls)
	}
}

func TestExecute_TerminalErrorNotRetried(t *testing.T) {
	exec := NewExecutor(nil, fastConfig())

	var calls int32
	authErr := fmt.Errorf("listing runs: %w", ErrAuthentication)
	err := exec.Execute(context.Background(), "svc", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return authErr
	})

	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("error = %v, want ErrAuthentication", err)
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		t.Error("terminal error must not be wrapped in ExhaustedError")
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestExecute_UnknownErrorIsTerminal(t *testing.T) {
	exec := NewExecutor(nil, fastConfig())

	var calls int32
	err := exec.Execute(context.Background(), "svc", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("novel failure mode")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1 (unknown errors are not retried)", calls)
	}
}

func TestExecute_ExhaustedWrapsLastError(t *testing.T) {
	exec := NewExecutor(nil, fastConfig())

	var calls int32
	err := exec.Execute(context.Background(), "wandb", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return ErrTimeout
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %T, want *ExhaustedError", err)
	}
	if exhausted.Service != "wandb" {
		t.Errorf("Service = %q, want wandb", exhausted.Service)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exhausted.Attempts)
	}
	if !errors.Is(err, ErrTimeout) {
		t.Error("ExhaustedError should unwrap to the last attempt's error")
	}
	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
}

func TestExecute_BackoffSequence(t *testing.T) {
	config := Config{
		MaxAttempts:    5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0, // predictable waits
	}
	exec := NewExecutor(nil, config)

	var waits []time.Duration
	exec.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	_ = exec.Execute(context.Background(), "svc", func(ctx context.Context) error {
		return ErrConnection
	})

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}
	if len(waits) != len(want) {
		t.Fatalf("waited %d times, want %d: %v", len(waits), len(want), waits)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("wait[%d] = %v, want %v", i, waits[i], want[i])
		}
	}
}

func TestExecute_AcquiresTokenPerAttempt(t *testing.T) {
	limiter := &countingLimiter{}
	exec := NewExecutor(limiter, fastConfig())

	_ = exec.Execute(context.Background(), "svc", func(ctx context.Context) error {
		return ErrRateLimited
	})

	if got := atomic.LoadInt32(&limiter.acquires); got != 3 {
		t.Errorf("limiter acquired %d times, want 3 (once per attempt)", got)
	}
}

func TestExecute_LimiterErrorAborts(t *testing.T) {
	limiter := &countingLimiter{err: context.DeadlineExceeded}
	exec := NewExecutor(limiter, fastConfig())

	var calls int32
	err := exec.Execute(context.Background(), "svc", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded from limiter", err)
	}
	if calls != 0 {
		t.Error("op must not run when the limiter rejects the attempt")
	}
}

func TestExecute_ContextCancelDuringBackoff(t *testing.T) {
	config := Config{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		BackoffFactor:  2.0,
	}
	exec := NewExecutor(nil, config)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	var calls int32
	err := exec.Execute(ctx, "svc", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return ErrConnection
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls > 2 {
		t.Errorf("op called %d times before cancel, want at most 2", calls)
	}
}

func TestExecute_BreakerOpensAfterThreshold(t *testing.T) {
	config := fastConfig()
	config.MaxAttempts = 5
	config.Breaker = &BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	}
	exec := NewExecutor(nil, config)

	var calls int32
	err := exec.Execute(context.Background(), "svc", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return ErrConnection
	})

	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("error = %v, want ErrCircuitOpen", err)
	}
	if calls != 2 {
		t.Errorf("op called %d times, want 2 (threshold trips before third)", calls)
	}
}

func TestExecute_BreakerIsPerService(t *testing.T) {
	config := fastConfig()
	config.MaxAttempts = 1
	config.Breaker = &BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
	}
	exec := NewExecutor(nil, config)

	_ = exec.Execute(context.Background(), "failing", func(ctx context.Context) error {
		return ErrConnection
	})

	// The failing service's open circuit must not affect others.
	err := exec.Execute(context.Background(), "healthy", func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("healthy service rejected: %v", err)
	}
}

// --- classifier ---

type taggedErr struct {
	transient bool
}

func (e *taggedErr) Error() string   { return "tagged" }
func (e *taggedErr) Transient() bool { return e.transient }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "connection", err: ErrConnection, want: true},
		{name: "timeout", err: ErrTimeout, want: true},
		{name: "rate limited", err: ErrRateLimited, want: true},
		{name: "wrapped transient", err: fmt.Errorf("call failed: %w", ErrConnection), want: true},
		{name: "authentication", err: ErrAuthentication, want: false},
		{name: "not found", err: ErrNotFound, want: false},
		{name: "attempt deadline", err: context.DeadlineExceeded, want: true},
		{name: "marker transient", err: &taggedErr{transient: true}, want: true},
		{name: "marker terminal", err: &taggedErr{transient: false}, want: false},
		{name: "unknown", err: errors.New("mystery"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// --- backoff helpers ---

func TestApplyJitter_NoJitter(t *testing.T) {
	base := 100 * time.Millisecond
	if got := applyJitter(base, 0); got != base {
		t.Errorf("applyJitter with no jitter = %v, want %v", got, base)
	}
}

func TestApplyJitter_WithinRange(t *testing.T) {
	base := 100 * time.Millisecond
	jitter := 0.2

	for i := 0; i < 100; i++ {
		got := applyJitter(base, jitter)
		minExpected := time.Duration(float64(base) * (1 - jitter))
		maxExpected := time.Duration(float64(base) * (1 + jitter))
		if got < minExpected || got > maxExpected {
			t.Fatalf("applyJitter = %v, expected in [%v, %v]", got, minExpected, maxExpected)
		}
	}
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		current  time.Duration
		factor   float64
		max      time.Duration
		expected time.Duration
	}{
		{2 * time.Second, 2.0, 10 * time.Second, 4 * time.Second},
		{8 * time.Second, 2.0, 10 * time.Second, 10 * time.Second},
		{time.Second, 3.0, time.Minute, 3 * time.Second},
	}

	for _, tt := range tests {
		if got := nextBackoff(tt.current, tt.factor, tt.max); got != tt.expected {
			t.Errorf("nextBackoff(%v, %v, %v) = %v, want %v",
				tt.current, tt.factor, tt.max, got, tt.expected)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 2*time.Second {
		t.Errorf("InitialBackoff = %v, want 2s", config.InitialBackoff)
	}
	if config.MaxBackoff != 10*time.Second {
		t.Errorf("MaxBackoff = %v, want 10s", config.MaxBackoff)
	}
	if config.BackoffFactor != 2.0 {
		t.Errorf("BackoffFactor = %f, want 2.0", config.BackoffFactor)
	}
	if config.JitterFactor != 0.2 {
		t.Errorf("JitterFactor = %f, want 0.2", config.JitterFactor)
	}
}
