// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ratelimit

import (
	"context"
	"sync"
	"testing"
)

func TestRegistry_GetReturnsSameBucket(t *testing.T) {
	reg := NewDefaultRegistry()

	a := reg.Get(ServiceWandb)
	b := reg.Get(ServiceWandb)
	if a != b {
		t.Error("Get should return the same bucket instance per service")
	}
}

func TestRegistry_BucketsAreIndependent(t *testing.T) {
	reg := NewRegistry(PerMinute(100), map[string]Limit{
		ServiceWandb:     {RequestsPerMinute: 60, Burst: 2},
		ServiceAnthropic: {RequestsPerMinute: 50, Burst: 2},
	})

	reg.TryAcquire(ServiceWandb)
	reg.TryAcquire(ServiceWandb)
	if reg.TryAcquire(ServiceWandb) {
		t.Fatal("wandb bucket should be drained")
	}

	if !reg.TryAcquire(ServiceAnthropic) {
		t.Error("draining wandb must not consume anthropic tokens")
	}
}

func TestRegistry_FallbackLimit(t *testing.T) {
	reg := NewRegistry(Limit{RequestsPerMinute: 100, Burst: 1}, nil)

	if !reg.TryAcquire("some-new-service") {
		t.Fatal("unknown service should get the fallback bucket")
	}
	if reg.TryAcquire("some-new-service") {
		t.Error("fallback burst of 1 should be spent")
	}
}

func TestRegistry_DefaultLimits(t *testing.T) {
	reg := NewDefaultRegistry()

	if got := reg.Get(ServiceWandb).Tokens(); got != 60 {
		t.Errorf("wandb capacity = %v, want 60", got)
	}
	if got := reg.Get(ServiceAnthropic).Tokens(); got != 50 {
		t.Errorf("anthropic capacity = %v, want 50", got)
	}
	if got := reg.Get("anything-else").Tokens(); got != 100 {
		t.Errorf("fallback capacity = %v, want 100", got)
	}
}

func TestRegistry_SetLimitResetsBucket(t *testing.T) {
	reg := NewRegistry(PerMinute(100), map[string]Limit{
		"svc": {RequestsPerMinute: 60, Burst: 1},
	})
	reg.TryAcquire("svc")
	if reg.TryAcquire("svc") {
		t.Fatal("bucket should be drained")
	}

	reg.SetLimit("svc", Limit{RequestsPerMinute: 60, Burst: 3})
	if got := reg.Get("svc").Tokens(); got != 3 {
		t.Errorf("Tokens() = %v after SetLimit, want fresh burst 3", got)
	}
}

func TestRegistry_Acquire(t *testing.T) {
	reg := NewDefaultRegistry()
	if err := reg.Acquire(context.Background(), ServiceWandb); err != nil {
		t.Fatalf("Acquire on a full bucket should not block: %v", err)
	}
}

func TestRegistry_Tokens(t *testing.T) {
	reg := NewDefaultRegistry()
	reg.TryAcquire(ServiceWandb)

	snap := reg.Tokens()
	if len(snap) != 1 {
		t.Fatalf("Tokens() has %d entries, want 1 (only materialized buckets)", len(snap))
	}
	if _, ok := snap[ServiceWandb]; !ok {
		t.Error("wandb bucket missing from snapshot")
	}
}

func TestRegistry_ConcurrentGet(t *testing.T) {
	reg := NewDefaultRegistry()

	var wg sync.WaitGroup
	buckets := make([]*Bucket, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buckets[i] = reg.Get(ServiceWandb)
		}(i)
	}
	wg.Wait()

	for i := 1; i < 20; i++ {
		if buckets[i] != buckets[0] {
			t.Fatal("concurrent Get returned different bucket instances")
		}
	}
}
