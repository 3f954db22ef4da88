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
)

// Service names used by the default registry. Callers are free to use
// any string; these are just the ones the fetch and insight layers
// pass today.
const (
	ServiceWandb     = "wandb"
	ServiceAnthropic = "anthropic"
	ServiceOpenAI    = "openai"
	ServiceOllama    = "ollama"
)

// Registry manages one bucket per external service.
//
// # Description
//
// Provides a centralized registry for token buckets, creating them on
// demand from per-service limits with a fallback limit for services
// it has no specific configuration for.
//
// # Thread Safety
//
// Registry is safe for concurrent use.
//
// # Example
//
//	reg := NewDefaultRegistry()
//	if err := reg.Acquire(ctx, ServiceWandb); err != nil {
//	    return err
//	}
type Registry struct {
	fallback Limit
	limits   map[string]Limit

	mu      sync.RWMutex
	buckets map[string]*Bucket
}

// NewRegistry creates a registry with the given per-service limits.
//
// # Inputs
//
//   - fallback: Limit applied to services absent from limits.
//   - limits: Per-service limits, keyed by service name. May be nil.
//
// # Outputs
//
//   - *Registry: New empty registry; buckets materialize on first use.
func NewRegistry(fallback Limit, limits map[string]Limit) *Registry {
	copied := make(map[string]Limit, len(limits))
	for name, limit := range limits {
		copied[name] = limit
	}
	return &Registry{
		fallback: fallback,
		limits:   copied,
		buckets:  make(map[string]*Bucket),
	}
}

// NewDefaultRegistry returns a registry with the stock limits for the
// services runlens talks to: wandb at 60 requests/minute, anthropic at
// 50, and 100 for everything else.
func NewDefaultRegistry() *Registry {
	return NewRegistry(PerMinute(100), map[string]Limit{
		ServiceWandb:     PerMinute(60),
		ServiceAnthropic: PerMinute(50),
	})
}

// Get returns the bucket for a service, creating it if needed.
//
// # Inputs
//
//   - service: Service name (used as key)
//
// # Outputs
//
//   - *Bucket: The bucket for this service
func (r *Registry) Get(service string) *Bucket {
	r.mu.RLock()
	b, exists := r.buckets[service]
	r.mu.RUnlock()

	if exists {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if b, exists = r.buckets[service]; exists {
		return b
	}

	limit, ok := r.limits[service]
	if !ok {
		limit = r.fallback
	}
	b = NewBucket(limit)
	r.buckets[service] = b
	return b
}

// SetLimit installs a limit for a service and resets its bucket so
// the new shape takes effect immediately.
func (r *Registry) SetLimit(service string, limit Limit) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.limits[service] = limit
	delete(r.buckets, service)
}

// Acquire blocks until the service's bucket yields a token.
func (r *Registry) Acquire(ctx context.Context, service string) error {
	return r.Get(service).Acquire(ctx)
}

// TryAcquire consumes a token from the service's bucket if one is
// available right now.
func (r *Registry) TryAcquire(service string) bool {
	return r.Get(service).TryAcquire()
}

// Tokens returns the current token count of every materialized
// bucket, keyed by service name.
func (r *Registry) Tokens() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]float64, len(r.buckets))
	for name, b := range r.buckets {
		result[name] = b.Tokens()
	}
	return result
}
